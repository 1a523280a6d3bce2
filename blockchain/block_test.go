package blockchain

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keySigner struct {
	key ed25519.PrivateKey
}

func (k keySigner) Sign(_ uint32, digest Hash) (Signature, error) {
	var sig Signature
	copy(sig[:], ed25519.Sign(k.key, digest[:]))
	return sig, nil
}

func newSigner(seed byte) (keySigner, Account) {
	s := make([]byte, ed25519.SeedSize)
	s[0] = seed
	key := ed25519.NewKeyFromSeed(s)
	var a Account
	copy(a[:], key.Public().(ed25519.PublicKey))
	return keySigner{key: key}, a
}

func testBlock(account Account) *Block {
	b := &Block{
		Type:           TypeTx,
		Opcode:         OpSend,
		Credit:         1,
		Counter:        3,
		Timestamp:      1700000000,
		Height:         7,
		Account:        account,
		Representative: account,
		Extensions:     []byte{0, 1, 0, 2, 'h', 'i'},
	}
	b.Previous[0] = 0xAA
	b.Link[31] = 0xBB
	b.Balance.SetUint64(123456789)
	return b
}

func TestHashDeterministic(t *testing.T) {
	_, account := newSigner(1)
	a := testBlock(account)
	b := testBlock(account)

	assert.Equal(t, a.Hash(), a.Hash())
	assert.Equal(t, a.Hash(), b.Hash())

	b.Counter++
	assert.NotEqual(t, a.Hash(), b.Hash())

	c := testBlock(account)
	c.Balance.SetUint64(1)
	assert.NotEqual(t, a.Hash(), c.Hash())

	d := testBlock(account)
	d.Signature[0] = 0xFF
	assert.Equal(t, a.Hash(), d.Hash(), "signature is not part of the hash")
}

func TestSignVerify(t *testing.T) {
	signer, account := newSigner(2)
	b := testBlock(account)
	require.NoError(t, b.Sign(signer, 0))
	assert.True(t, b.Verify())

	b.Height++
	assert.False(t, b.Verify())
}

func TestSignRejectsWrongKey(t *testing.T) {
	signer, _ := newSigner(3)
	_, other := newSigner(4)
	b := testBlock(other)
	assert.Error(t, b.Sign(signer, 0))
}

func TestEncodeDecode(t *testing.T) {
	signer, account := newSigner(5)
	b := testBlock(account)
	require.NoError(t, b.Sign(signer, 0))

	data, err := Encode(b)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, b.Hash(), decoded.Hash())
	assert.Equal(t, b.Signature, decoded.Signature)
	assert.True(t, decoded.Verify())
}

func TestDecodeRejectsBadExtensionLength(t *testing.T) {
	_, account := newSigner(6)
	data, err := Encode(testBlock(account))
	require.NoError(t, err)

	lenOffset := fixedSize - 2
	binary.BigEndian.PutUint16(data[lenOffset:], 300)
	_, err = Decode(data)
	assert.Error(t, err)

	_, err = Decode(data[:40])
	assert.Error(t, err)
}

func TestParseExtensionsPartial(t *testing.T) {
	raw, err := EncodeExtensions([]Extension{
		{Type: ExtensionNote, Value: []byte("hello")},
		{Type: ExtensionAlias, Value: []byte("bob")},
	})
	require.NoError(t, err)

	entries, err := ParseExtensions(raw)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "bob", string(entries[1].Value))

	// second entry claims more bytes than are present
	broken := append([]byte{}, raw...)
	binary.BigEndian.PutUint16(broken[4+5+2:], 50)
	entries, err = ParseExtensions(broken)
	assert.True(t, errors.Is(err, ErrExtensionLength))
	assert.True(t, errors.Is(err, ErrMalformedExtension))
	assert.Empty(t, entries)

	// truncated header after a good entry
	entries, err = ParseExtensions(raw[:4+5+2])
	assert.True(t, errors.Is(err, ErrExtensionLength))
	assert.Empty(t, entries)

	// an empty alias is a bad value, the note before it survives
	empty := append([]byte{}, raw[:4+5]...)
	empty = append(empty, 0, byte(ExtensionAlias), 0, 0)
	entries, err = ParseExtensions(empty)
	assert.True(t, errors.Is(err, ErrMalformedExtension))
	assert.False(t, errors.Is(err, ErrExtensionLength))
	require.Len(t, entries, 1)
	assert.Equal(t, "hello", string(entries[0].Value))

	_, err = EncodeExtensions([]Extension{{Type: ExtensionToken, Value: make([]byte, 300)}})
	assert.Error(t, err)
}

func TestAddress(t *testing.T) {
	_, account := newSigner(7)
	addr := account.String()
	assert.Len(t, addr, addressLength)

	parsed, err := ParseAccount(addr)
	require.NoError(t, err)
	assert.Equal(t, account, parsed)

	// flip one character in the checksum part
	bad := []byte(addr)
	if bad[len(bad)-2] == '1' {
		bad[len(bad)-2] = '3'
	} else {
		bad[len(bad)-2] = '1'
	}
	_, err = ParseAccount(string(bad))
	assert.Error(t, err)

	_, err = ParseAccount("xrb_" + addr[4:])
	assert.Error(t, err)
}

func TestJSON(t *testing.T) {
	signer, account := newSigner(8)
	b := testBlock(account)
	require.NoError(t, b.Sign(signer, 0))

	data, err := json.Marshal(b)
	require.NoError(t, err)

	var decoded Block
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, b.Hash(), decoded.Hash())

	var m map[string]string
	require.NoError(t, json.Unmarshal(data, &m))
	m["representative"] = "lat_notanaddress"
	bad, _ := json.Marshal(m)
	assert.Error(t, json.Unmarshal(bad, &decoded))
}

func TestAmounts(t *testing.T) {
	prev := uint256.NewInt(100)
	next := uint256.NewInt(40)

	out := AmountBetween(prev, next)
	assert.Equal(t, -1, out.Sign())
	assert.Equal(t, "-60", AmountString(&out))

	in := AmountBetween(next, prev)
	assert.Equal(t, "60", AmountString(&in))

	parsed, err := ParseAmount("-60")
	require.NoError(t, err)
	assert.True(t, parsed.Eq(&out))

	assert.Equal(t, "1.5", FormatAmount(uint256.NewInt(1500000000), Decimals))
	assert.Equal(t, "-0.06", FormatAmount(&out, 3))

	_, err = ParseBalance("340282366920938463463374607431768211456") // 2^128
	assert.Error(t, err)
}
