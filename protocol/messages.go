package protocol

import (
	"github.com/OdyseeTeam/lattice-wallet/blockchain"

	"github.com/holiman/uint256"
)

const (
	ActionAccountSubscribe   = "account_subscribe"
	ActionAccountInfo        = "account_info"
	ActionBlockQuery         = "block_query"
	ActionBlockPublish       = "block_publish"
	ActionReceivables        = "receivables"
	NotifyBlockAppend        = "block_append"
	NotifyBlockConfirm       = "block_confirm"
	NotifyReceivableInfo     = "receivable_info"
	NotifyAccountUnsubscribe = "account_unsubscribe"
)

const (
	StatusSuccess = "success"
	StatusFork    = "fork"
)

// ErrAccountNotFound is the error text the node answers account_info with for an empty chain
const ErrAccountNotFound = "The account does not exist"

// Envelope carries the fields common to every outbound request
type Envelope struct {
	Action    string `json:"action"`
	RequestID string `json:"request_id,omitempty"`
}

func (e *Envelope) envelope() *Envelope { return e }

// Request is any message the wallet sends to the node
type Request interface {
	envelope() *Envelope
}

func ActionOf(r Request) string { return r.envelope().Action }

func RequestIDOf(r Request) string { return r.envelope().RequestID }

func SetRequestID(r Request, id string) { r.envelope().RequestID = id }

type AccountSubscribe struct {
	Envelope
	Account   string `json:"account"`
	Timestamp uint64 `json:"timestamp,string"`
	Signature string `json:"signature,omitempty"`
}

func NewAccountSubscribe(account blockchain.Account, timestamp uint64) *AccountSubscribe {
	return &AccountSubscribe{
		Envelope:  Envelope{Action: ActionAccountSubscribe},
		Account:   account.String(),
		Timestamp: timestamp,
	}
}

type AccountInfo struct {
	Envelope
	Account string `json:"account"`
}

func NewAccountInfo(account blockchain.Account) *AccountInfo {
	return &AccountInfo{Envelope: Envelope{Action: ActionAccountInfo}, Account: account.String()}
}

// BlockQuery asks for a block either by hash or by account and height. Previous, when set,
// lets the node answer with a fork status if it does not match its own chain.
type BlockQuery struct {
	Envelope
	Account  string `json:"account,omitempty"`
	Height   string `json:"height,omitempty"`
	Previous string `json:"previous,omitempty"`
	Hash     string `json:"hash,omitempty"`
}

type BlockPublish struct {
	Envelope
	Account string            `json:"account"`
	Block   *blockchain.Block `json:"block"`
}

func NewBlockPublish(b *blockchain.Block) *BlockPublish {
	return &BlockPublish{Envelope: Envelope{Action: ActionBlockPublish}, Account: b.Account.String(), Block: b}
}

type ReceivablesQuery struct {
	Envelope
	Account string `json:"account"`
	Type    string `json:"type"`
	Count   int    `json:"count"`
}

func NewReceivablesQuery(account blockchain.Account, count int) *ReceivablesQuery {
	return &ReceivablesQuery{
		Envelope: Envelope{Action: ActionReceivables},
		Account:  account.String(),
		Type:     "confirmed",
		Count:    count,
	}
}

// Message is a decoded inbound ack or notification
type Message interface {
	Kind() string
	RequestID() string
}

// Meta identifies an inbound message: the ack or notify name and the request it answers
type Meta struct {
	Name  string
	ReqID string
}

func (m Meta) Kind() string      { return m.Name }
func (m Meta) RequestID() string { return m.ReqID }

// ErrorAck is any ack that only carries an error
type ErrorAck struct {
	Meta
	Error string
}

type SubscribeAck struct {
	Meta
	Account blockchain.Account
}

type AccountInfoAck struct {
	Meta
	Account blockchain.Account // zero if the node did not echo it
	Exists  bool

	HeadHeight      uint64
	Head            blockchain.Hash
	HeadBlock       *blockchain.Block
	HeadBlockAmount uint256.Int

	ConfirmedHeight uint64 // blockchain.InvalidHeight if absent
	ConfirmedBlock  *blockchain.Block

	Forks      uint64
	Restricted bool
	Type       blockchain.Type
}

type BlockQueryAck struct {
	Meta
	Status    string
	Block     *blockchain.Block // nil when the node has nothing at the queried position
	Amount    uint256.Int
	Confirmed bool
}

type ReceivableEntry struct {
	Source    blockchain.Account
	Amount    uint256.Int
	Hash      blockchain.Hash
	Timestamp uint64
}

type ReceivablesAck struct {
	Meta
	Account     blockchain.Account
	Receivables []ReceivableEntry
}

type BlockAppend struct {
	Meta
	Block *blockchain.Block
}

type BlockConfirm struct {
	Meta
	Block *blockchain.Block
}

type ReceivableInfo struct {
	Meta
	Account blockchain.Account
	ReceivableEntry
}

type AccountUnsubscribe struct {
	Meta
	Account blockchain.Account
}

// ConnectionEvent reports the channel coming up or going down
type ConnectionEvent struct {
	Connected bool
}
