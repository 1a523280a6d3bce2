package blockchain

import (
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

type blockJSON struct {
	Type           string `json:"type"`
	Opcode         string `json:"opcode"`
	Credit         string `json:"credit"`
	Counter        string `json:"counter"`
	Timestamp      string `json:"timestamp"`
	Height         string `json:"height"`
	Account        string `json:"account"`
	Previous       string `json:"previous"`
	Representative string `json:"representative"`
	Balance        string `json:"balance"`
	Link           string `json:"link"`
	Extensions     string `json:"extensions,omitempty"`
	Signature      string `json:"signature"`
}

func (b *Block) MarshalJSON() ([]byte, error) {
	return json.Marshal(blockJSON{
		Type:           b.Type.String(),
		Opcode:         b.Opcode.String(),
		Credit:         strconv.FormatUint(uint64(b.Credit), 10),
		Counter:        strconv.FormatUint(uint64(b.Counter), 10),
		Timestamp:      strconv.FormatUint(b.Timestamp, 10),
		Height:         strconv.FormatUint(b.Height, 10),
		Account:        b.Account.String(),
		Previous:       b.Previous.String(),
		Representative: b.Representative.String(),
		Balance:        b.Balance.ToBig().String(),
		Link:           b.Link.String(),
		Extensions:     strings.ToUpper(hex.EncodeToString(b.Extensions)),
		Signature:      b.Signature.String(),
	})
}

func (b *Block) UnmarshalJSON(data []byte) error {
	var raw blockJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.WithStack(err)
	}

	var out Block
	var err error

	if out.Type, err = ParseType(raw.Type); err != nil {
		return err
	}
	if out.Opcode, err = ParseOpcode(raw.Opcode); err != nil {
		return err
	}

	credit, err := strconv.ParseUint(raw.Credit, 10, 16)
	if err != nil {
		return errors.Wrap(err, "credit")
	}
	out.Credit = uint16(credit)

	counter, err := strconv.ParseUint(raw.Counter, 10, 32)
	if err != nil {
		return errors.Wrap(err, "counter")
	}
	out.Counter = uint32(counter)

	if out.Timestamp, err = strconv.ParseUint(raw.Timestamp, 10, 64); err != nil {
		return errors.Wrap(err, "timestamp")
	}
	if out.Height, err = strconv.ParseUint(raw.Height, 10, 64); err != nil {
		return errors.Wrap(err, "height")
	}

	if out.Account, err = ParseAccount(raw.Account); err != nil {
		return err
	}
	if out.Representative, err = ParseAccount(raw.Representative); err != nil {
		return err
	}
	if out.Previous, err = ParseHash(raw.Previous); err != nil {
		return errors.Wrap(err, "previous")
	}
	if out.Link, err = ParseHash(raw.Link); err != nil {
		return errors.Wrap(err, "link")
	}
	if out.Balance, err = ParseBalance(raw.Balance); err != nil {
		return err
	}

	if raw.Extensions != "" {
		if out.Extensions, err = hex.DecodeString(raw.Extensions); err != nil {
			return errors.Wrap(err, "extensions")
		}
		if len(out.Extensions) > MaxExtensionsSize {
			return errors.Newf("extensions are %d bytes, max is %d", len(out.Extensions), MaxExtensionsSize)
		}
	}

	sig, err := hex.DecodeString(raw.Signature)
	if err != nil {
		return errors.Wrap(err, "signature")
	}
	if len(sig) != SignatureSize {
		return errors.Newf("signature has %d bytes, expected %d", len(sig), SignatureSize)
	}
	copy(out.Signature[:], sig)

	*b = out
	return nil
}
