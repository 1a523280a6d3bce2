package blockchain

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"
)

// MaxExtensionsSize bounds the extensions blob of a single block
const MaxExtensionsSize = 256

// hashed fields plus the 2-byte extensions length
const fixedSize = 1 + 1 + 2 + 4 + 8 + 8 + AccountSize + HashSize + AccountSize + BalanceSize + HashSize + 2

func getBuffer() *bytebufferpool.ByteBuffer { return bytebufferpool.Get() }

func putBuffer(b *bytebufferpool.ByteBuffer) { bytebufferpool.Put(b) }

func writeUnsigned(w io.Writer, b *Block) {
	var scratch [8]byte

	w.Write([]byte{byte(b.Type), byte(b.Opcode)})

	binary.BigEndian.PutUint16(scratch[:2], b.Credit)
	w.Write(scratch[:2])
	binary.BigEndian.PutUint32(scratch[:4], b.Counter)
	w.Write(scratch[:4])
	binary.BigEndian.PutUint64(scratch[:], b.Timestamp)
	w.Write(scratch[:])
	binary.BigEndian.PutUint64(scratch[:], b.Height)
	w.Write(scratch[:])

	w.Write(b.Account[:])
	w.Write(b.Previous[:])
	w.Write(b.Representative[:])

	balance := b.Balance.Bytes32()
	w.Write(balance[32-BalanceSize:])

	w.Write(b.Link[:])

	binary.BigEndian.PutUint16(scratch[:2], uint16(len(b.Extensions)))
	w.Write(scratch[:2])
	w.Write(b.Extensions)
}

// Encode returns the binary form of the block: the hashed fields followed by the signature
func Encode(b *Block) ([]byte, error) {
	if len(b.Extensions) > MaxExtensionsSize {
		return nil, errors.Newf("extensions are %d bytes, max is %d", len(b.Extensions), MaxExtensionsSize)
	}
	if b.Balance.BitLen() > BalanceSize*8 {
		return nil, errors.Newf("balance %s does not fit in 128 bits", b.Balance.ToBig())
	}

	out := bytes.NewBuffer(make([]byte, 0, fixedSize+len(b.Extensions)+SignatureSize))
	writeUnsigned(out, b)
	out.Write(b.Signature[:])
	return out.Bytes(), nil
}

// Decode parses the binary form produced by Encode
func Decode(data []byte) (*Block, error) {
	r := bytes.NewReader(data)
	b := &Block{}

	head, err := read(r, 2)
	if err != nil {
		return nil, err
	}
	b.Type = Type(head[0])
	b.Opcode = Opcode(head[1])
	if !b.Type.Valid() {
		return nil, errors.Newf("invalid block type %d", head[0])
	}
	if !b.Opcode.Valid() {
		return nil, errors.Newf("invalid opcode %d", head[1])
	}

	if b.Credit, err = readUint16(r); err != nil {
		return nil, err
	}
	if b.Counter, err = readUint32(r); err != nil {
		return nil, err
	}
	if b.Timestamp, err = readUint64(r); err != nil {
		return nil, err
	}
	if b.Height, err = readUint64(r); err != nil {
		return nil, err
	}
	if err = readInto(r, b.Account[:]); err != nil {
		return nil, err
	}
	if err = readInto(r, b.Previous[:]); err != nil {
		return nil, err
	}
	if err = readInto(r, b.Representative[:]); err != nil {
		return nil, err
	}

	balance, err := read(r, BalanceSize)
	if err != nil {
		return nil, err
	}
	b.Balance.SetBytes(balance)

	if err = readInto(r, b.Link[:]); err != nil {
		return nil, err
	}

	extLen, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	if int(extLen) > MaxExtensionsSize || int(extLen) > r.Len() {
		return nil, errors.Newf("extensions length %d is invalid (%d bytes left)", extLen, r.Len())
	}
	if extLen > 0 {
		if b.Extensions, err = read(r, int(extLen)); err != nil {
			return nil, err
		}
	}

	if err = readInto(r, b.Signature[:]); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, errors.Newf("%d trailing bytes after block", r.Len())
	}

	return b, nil
}

func readUint64(r io.Reader) (uint64, error) {
	buf, err := read(r, 8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf), nil
}

func readUint32(r io.Reader) (uint32, error) {
	buf, err := read(r, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf), nil
}

func readUint16(r io.Reader) (uint16, error) {
	buf, err := read(r, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf), nil
}

func readInto(r io.Reader, dst []byte) error {
	buf, err := read(r, len(dst))
	if err != nil {
		return err
	}
	copy(dst, buf)
	return nil
}

func read(r io.Reader, numBytes int) ([]byte, error) {
	b := make([]byte, numBytes)
	n, err := io.ReadFull(r, b)
	if err != nil {
		if n > 0 {
			return nil, errors.Newf("expected to read %d bytes, only got %d", numBytes, n)
		}
		return nil, errors.Wrap(err, "read")
	}
	return b, nil
}
