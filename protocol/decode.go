package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/OdyseeTeam/lattice-wallet/blockchain"

	"github.com/cockroachdb/errors"
)

// ErrDecode wraps every failure to turn an inbound frame into a Message
var ErrDecode = errors.New("malformed message")

type envelopeIn struct {
	Ack       string `json:"ack"`
	Notify    string `json:"notify"`
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
}

// uintField accepts both a JSON number and a decimal string
type uintField struct {
	set   bool
	value uint64
}

func (u *uintField) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	if s == "null" {
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "integer %s", data)
	}
	u.set, u.value = true, v
	return nil
}

type accountInfoIn struct {
	Account         string            `json:"account"`
	HeadHeight      uintField         `json:"head_height"`
	Head            string            `json:"head"`
	HeadBlock       *blockchain.Block `json:"head_block"`
	HeadBlockAmount *string           `json:"head_block_amount"`
	ConfirmedHeight uintField         `json:"confirmed_height"`
	ConfirmedBlock  *blockchain.Block `json:"confirmed_block"`
	Forks           uintField         `json:"forks"`
	Restricted      bool              `json:"restricted"`
	Type            string            `json:"type"`
}

type blockQueryIn struct {
	Status    string            `json:"status"`
	Block     *blockchain.Block `json:"block"`
	Amount    *string           `json:"amount"`
	Confirmed bool              `json:"confirmed"`
}

type receivableIn struct {
	Account   string    `json:"account"`
	Source    string    `json:"source"`
	Amount    string    `json:"amount"`
	Hash      string    `json:"hash"`
	Timestamp uintField `json:"timestamp"`
}

type receivablesIn struct {
	Account     string         `json:"account"`
	Receivables []receivableIn `json:"receivables"`
}

type accountIn struct {
	Account string `json:"account"`
}

type blockIn struct {
	Block *blockchain.Block `json:"block"`
}

// Decode validates one inbound frame and returns its typed variant
func Decode(data []byte) (Message, error) {
	msg, err := decode(data)
	if err != nil {
		return nil, errors.Mark(err, ErrDecode)
	}
	return msg, nil
}

func decode(data []byte) (Message, error) {
	var env envelopeIn
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.WithStack(err)
	}

	if env.Notify != "" {
		return decodeNotify(env, data)
	}
	if env.Ack == "" {
		return nil, errors.New("message is neither an ack nor a notification")
	}

	meta := Meta{Name: env.Ack, ReqID: env.RequestID}

	// account_info reports a missing account as an error, which is a valid answer
	if env.Error != "" && !(env.Ack == ActionAccountInfo && env.Error == ErrAccountNotFound) {
		return &ErrorAck{Meta: meta, Error: env.Error}, nil
	}

	switch env.Ack {
	case ActionAccountSubscribe:
		var in accountIn
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, errors.WithStack(err)
		}
		account, err := blockchain.ParseAccount(in.Account)
		if err != nil {
			return nil, err
		}
		return &SubscribeAck{Meta: meta, Account: account}, nil

	case ActionAccountInfo:
		return decodeAccountInfo(meta, env, data)

	case ActionBlockQuery:
		var in blockQueryIn
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, errors.WithStack(err)
		}
		if in.Status != StatusSuccess && in.Status != StatusFork {
			return nil, errors.Newf("block_query status %q", in.Status)
		}
		ack := &BlockQueryAck{Meta: meta, Status: in.Status, Block: in.Block, Confirmed: in.Confirmed}
		if in.Block != nil {
			if in.Amount == nil {
				return nil, errors.New("block_query block without amount")
			}
			amount, err := blockchain.ParseAmount(*in.Amount)
			if err != nil {
				return nil, err
			}
			ack.Amount = amount
		}
		return ack, nil

	case ActionReceivables:
		var in receivablesIn
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, errors.WithStack(err)
		}
		ack := &ReceivablesAck{Meta: meta}
		if in.Account != "" {
			account, err := blockchain.ParseAccount(in.Account)
			if err != nil {
				return nil, err
			}
			ack.Account = account
		}
		for _, r := range in.Receivables {
			entry, err := r.entry()
			if err != nil {
				return nil, err
			}
			ack.Receivables = append(ack.Receivables, entry)
		}
		return ack, nil
	}

	return nil, errors.Newf("unknown ack %q", env.Ack)
}

func decodeAccountInfo(meta Meta, env envelopeIn, data []byte) (Message, error) {
	var in accountInfoIn
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, errors.WithStack(err)
	}

	ack := &AccountInfoAck{
		Meta:            meta,
		HeadHeight:      blockchain.InvalidHeight,
		ConfirmedHeight: blockchain.InvalidHeight,
	}
	if in.Account != "" {
		account, err := blockchain.ParseAccount(in.Account)
		if err != nil {
			return nil, err
		}
		ack.Account = account
	}
	if env.Error == ErrAccountNotFound {
		return ack, nil
	}

	if !in.HeadHeight.set || in.Head == "" || in.HeadBlock == nil || in.HeadBlockAmount == nil {
		return nil, errors.New("account_info is missing head fields")
	}
	head, err := blockchain.ParseHash(in.Head)
	if err != nil {
		return nil, err
	}
	if in.HeadBlock.Hash() != head || in.HeadBlock.Height != in.HeadHeight.value {
		return nil, errors.Newf("account_info head %s does not match its block", head)
	}
	amount, err := blockchain.ParseAmount(*in.HeadBlockAmount)
	if err != nil {
		return nil, err
	}

	ack.Exists = true
	ack.HeadHeight = in.HeadHeight.value
	ack.Head = head
	ack.HeadBlock = in.HeadBlock
	ack.HeadBlockAmount = amount
	ack.Forks = in.Forks.value
	ack.Restricted = in.Restricted

	if in.Type != "" {
		if ack.Type, err = blockchain.ParseType(in.Type); err != nil {
			return nil, err
		}
	} else {
		ack.Type = in.HeadBlock.Type
	}

	if in.ConfirmedHeight.set {
		ack.ConfirmedHeight = in.ConfirmedHeight.value
		if ack.ConfirmedHeight > ack.HeadHeight {
			return nil, errors.Newf("confirmed height %d above head %d", ack.ConfirmedHeight, ack.HeadHeight)
		}
		ack.ConfirmedBlock = in.ConfirmedBlock
		if ack.ConfirmedBlock == nil && ack.ConfirmedHeight == ack.HeadHeight {
			ack.ConfirmedBlock = in.HeadBlock
		}
		if ack.ConfirmedBlock == nil {
			return nil, errors.New("account_info has a confirmed height without its block")
		}
		if ack.ConfirmedBlock.Height != ack.ConfirmedHeight {
			return nil, errors.Newf("confirmed block height %d, expected %d", ack.ConfirmedBlock.Height, ack.ConfirmedHeight)
		}
	}
	return ack, nil
}

func decodeNotify(env envelopeIn, data []byte) (Message, error) {
	meta := Meta{Name: env.Notify, ReqID: env.RequestID}

	switch env.Notify {
	case NotifyBlockAppend, NotifyBlockConfirm:
		var in blockIn
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, errors.WithStack(err)
		}
		if in.Block == nil {
			return nil, errors.Newf("%s without block", env.Notify)
		}
		if env.Notify == NotifyBlockAppend {
			return &BlockAppend{Meta: meta, Block: in.Block}, nil
		}
		return &BlockConfirm{Meta: meta, Block: in.Block}, nil

	case NotifyReceivableInfo:
		var in receivableIn
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, errors.WithStack(err)
		}
		account, err := blockchain.ParseAccount(in.Account)
		if err != nil {
			return nil, err
		}
		entry, err := in.entry()
		if err != nil {
			return nil, err
		}
		return &ReceivableInfo{Meta: meta, Account: account, ReceivableEntry: entry}, nil

	case NotifyAccountUnsubscribe:
		var in accountIn
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, errors.WithStack(err)
		}
		account, err := blockchain.ParseAccount(in.Account)
		if err != nil {
			return nil, err
		}
		return &AccountUnsubscribe{Meta: meta, Account: account}, nil
	}

	return nil, errors.Newf("unknown notification %q", env.Notify)
}

func (r receivableIn) entry() (ReceivableEntry, error) {
	var e ReceivableEntry
	var err error
	if e.Source, err = blockchain.ParseAccount(r.Source); err != nil {
		return e, err
	}
	if e.Hash, err = blockchain.ParseHash(r.Hash); err != nil {
		return e, err
	}
	if e.Amount, err = blockchain.ParseBalance(r.Amount); err != nil {
		return e, err
	}
	if !r.Timestamp.set {
		return e, errors.New("receivable without timestamp")
	}
	e.Timestamp = r.Timestamp.value
	return e, nil
}
