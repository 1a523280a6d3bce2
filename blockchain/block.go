package blockchain

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/blake2b"
)

// InvalidHeight marks an account that has no block at that position yet
const InvalidHeight = math.MaxUint64

const (
	HashSize      = 32
	AccountSize   = 32
	SignatureSize = 64
	BalanceSize   = 16 // balances are 128-bit on the wire
)

type Hash [HashSize]byte

var ZeroHash Hash

func (h Hash) IsZero() bool { return h == ZeroHash }

func (h Hash) String() string { return strings.ToUpper(hex.EncodeToString(h[:])) }

func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, errors.Wrapf(err, "hash %q", s)
	}
	if len(b) != HashSize {
		return h, errors.Newf("hash %q has %d bytes, expected %d", s, len(b), HashSize)
	}
	copy(h[:], b)
	return h, nil
}

type Signature [SignatureSize]byte

func (s Signature) String() string { return strings.ToUpper(hex.EncodeToString(s[:])) }

// Signer is the signing oracle. It returns an error if the wallet holding index is locked.
type Signer interface {
	Sign(index uint32, digest Hash) (Signature, error)
}

type Opcode uint8

const (
	OpSend Opcode = iota
	OpReceive
	OpChange
	OpCredit
	OpDestroy
)

var opcodeNames = map[Opcode]string{
	OpSend:    "send",
	OpReceive: "receive",
	OpChange:  "change",
	OpCredit:  "credit",
	OpDestroy: "destroy",
}

func (o Opcode) String() string {
	if n, ok := opcodeNames[o]; ok {
		return n
	}
	return fmt.Sprintf("opcode(%d)", uint8(o))
}

func (o Opcode) Valid() bool {
	_, ok := opcodeNames[o]
	return ok
}

func ParseOpcode(s string) (Opcode, error) {
	for o, n := range opcodeNames {
		if n == s {
			return o, nil
		}
	}
	return 0, errors.Newf("unknown opcode %q", s)
}

// Type is the kind of account a chain belongs to. Every block of a chain carries it.
type Type uint8

const (
	TypeTx Type = iota
	TypeRep
	TypeApp
)

var typeNames = map[Type]string{
	TypeTx:  "tx",
	TypeRep: "rep",
	TypeApp: "app",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

func ParseType(s string) (Type, error) {
	for t, n := range typeNames {
		if n == s {
			return t, nil
		}
	}
	return 0, errors.Newf("unknown block type %q", s)
}

// Block is one link of an account chain. Once hashed or signed it must not be modified.
type Block struct {
	Type           Type
	Opcode         Opcode
	Credit         uint16
	Counter        uint32
	Timestamp      uint64
	Height         uint64
	Account        Account
	Previous       Hash
	Representative Account
	Balance        uint256.Int
	Link           Hash
	Extensions     []byte
	Signature      Signature
}

// Hash is the BLAKE2b-256 digest of every field except the signature
func (b *Block) Hash() Hash {
	buf := getBuffer()
	defer putBuffer(buf)
	writeUnsigned(buf, b)
	return blake2b.Sum256(buf.B)
}

// Sign attaches a signature from the oracle and checks it against the block's account
func (b *Block) Sign(signer Signer, index uint32) error {
	sig, err := signer.Sign(index, b.Hash())
	if err != nil {
		return err
	}
	b.Signature = sig
	if !b.Verify() {
		return errors.Newf("signature from key %d does not verify for %s", index, b.Account)
	}
	return nil
}

func (b *Block) Verify() bool {
	h := b.Hash()
	return ed25519.Verify(ed25519.PublicKey(b.Account[:]), h[:], b.Signature[:])
}

// LinkAccount reads the link field as the destination of a send
func (b *Block) LinkAccount() Account {
	return Account(b.Link)
}

func (b *Block) String() string {
	return fmt.Sprintf("%s %s #%d %s", b.Account, b.Opcode, b.Height, b.Hash())
}
