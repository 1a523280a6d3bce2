package blockchain

import (
	"bytes"
	"encoding/base32"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/blake2b"
)

const (
	AddressPrefix = "lat_"
	checksumSize  = 5
)

var addressEncoding = base32.NewEncoding("13456789abcdefghijkmnopqrstuwxyz").WithPadding(base32.NoPadding)

var addressLength = len(AddressPrefix) + addressEncoding.EncodedLen(AccountSize+checksumSize)

// Account is an ed25519 public key identifying a chain
type Account [AccountSize]byte

var ZeroAccount Account

func (a Account) IsZero() bool { return a == ZeroAccount }

func (a Account) String() string {
	raw := make([]byte, 0, AccountSize+checksumSize)
	raw = append(raw, a[:]...)
	raw = append(raw, accountChecksum(a)...)
	return AddressPrefix + addressEncoding.EncodeToString(raw)
}

func accountChecksum(a Account) []byte {
	h, _ := blake2b.New(checksumSize, nil)
	h.Write(a[:])
	return h.Sum(nil)
}

func ParseAccount(address string) (Account, error) {
	var a Account
	if !strings.HasPrefix(address, AddressPrefix) {
		return a, errors.Newf("address %q is missing the %s prefix", address, AddressPrefix)
	}
	if len(address) != addressLength {
		return a, errors.Newf("address %q has length %d, expected %d", address, len(address), addressLength)
	}

	raw, err := addressEncoding.DecodeString(address[len(AddressPrefix):])
	if err != nil {
		return a, errors.Wrapf(err, "address %q", address)
	}
	copy(a[:], raw[:AccountSize])
	if !bytes.Equal(raw[AccountSize:], accountChecksum(a)) {
		return a, errors.Newf("address %q has a bad checksum", address)
	}
	return a, nil
}
