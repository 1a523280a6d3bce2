package blockchain

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

type ExtensionType uint16

const (
	ExtensionNote  ExtensionType = 0x0001
	ExtensionAlias ExtensionType = 0x0002
	ExtensionToken ExtensionType = 0x0003
)

// ErrMalformedExtension marks a blob that did not fully decode
var ErrMalformedExtension = errors.New("malformed extension entry")

// ErrExtensionLength marks a corrupt or truncated entry header. Nothing after it can be framed,
// so no entries are returned.
var ErrExtensionLength = errors.Mark(errors.New("malformed extension length"), ErrMalformedExtension)

const extensionHeaderSize = 4 // type u16 + length u16

type Extension struct {
	Type  ExtensionType
	Value []byte
}

// EncodeExtensions packs entries into the blob stored on a block
func EncodeExtensions(entries []Extension) ([]byte, error) {
	var out []byte
	for _, e := range entries {
		if len(e.Value) > MaxExtensionsSize {
			return nil, errors.Newf("extension %d value is %d bytes", e.Type, len(e.Value))
		}
		var hdr [extensionHeaderSize]byte
		binary.BigEndian.PutUint16(hdr[0:2], uint16(e.Type))
		binary.BigEndian.PutUint16(hdr[2:4], uint16(len(e.Value)))
		out = append(out, hdr[:]...)
		out = append(out, e.Value...)
	}
	if len(out) > MaxExtensionsSize {
		return nil, errors.Newf("extensions are %d bytes, max is %d", len(out), MaxExtensionsSize)
	}
	return out, nil
}

// ParseExtensions decodes the blob of a block. On a malformed value it stops and returns
// everything decoded before it together with ErrMalformedExtension. A malformed length field
// aborts with no entries.
func ParseExtensions(raw []byte) ([]Extension, error) {
	if len(raw) > MaxExtensionsSize {
		return nil, errors.Newf("extensions are %d bytes, max is %d", len(raw), MaxExtensionsSize)
	}

	var entries []Extension
	for offset := 0; offset < len(raw); {
		if len(raw)-offset < extensionHeaderSize {
			return nil, errors.Wrapf(ErrExtensionLength, "truncated header at offset %d", offset)
		}
		t := ExtensionType(binary.BigEndian.Uint16(raw[offset : offset+2]))
		size := int(binary.BigEndian.Uint16(raw[offset+2 : offset+4]))
		offset += extensionHeaderSize

		if size > len(raw)-offset {
			return nil, errors.Wrapf(ErrExtensionLength, "entry %d wants %d bytes, %d left", t, size, len(raw)-offset)
		}
		if t == ExtensionNote || t == ExtensionAlias {
			if size == 0 {
				return entries, errors.Wrapf(ErrMalformedExtension, "empty %s", t)
			}
		}

		value := make([]byte, size)
		copy(value, raw[offset:offset+size])
		entries = append(entries, Extension{Type: t, Value: value})
		offset += size
	}
	return entries, nil
}

func (t ExtensionType) String() string {
	switch t {
	case ExtensionNote:
		return "note"
	case ExtensionAlias:
		return "alias"
	case ExtensionToken:
		return "token"
	}
	return "extension"
}
