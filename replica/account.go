package replica

import (
	"time"

	"github.com/OdyseeTeam/lattice-wallet/blockchain"

	"github.com/holiman/uint256"
)

// Account is the local replica of one tracked chain.
//
// Head, Confirmed and Tail are only meaningful while the matching height is not
// blockchain.InvalidHeight. Whenever all three heights are valid,
// TailHeight <= ConfirmedHeight <= HeadHeight.
type Account struct {
	Address blockchain.Account
	Index   uint32 // signing key index in the wallet
	Type    blockchain.Type

	Head       blockchain.Hash
	HeadHeight uint64

	Confirmed       blockchain.Hash
	ConfirmedHeight uint64

	Tail       blockchain.Hash
	TailHeight uint64

	BalanceHead       uint256.Int
	BalanceConfirmed  uint256.Int
	BalanceReceivable uint256.Int

	Forks      uint64
	Restricted bool

	Subscribed bool
	Synced     bool
	CaughtUp   bool // synced and nothing above the confirmed block

	// RecentBlocks is how many blocks below the head the replica keeps cached
	RecentBlocks int

	nextSubscribe time.Time
	resubscribeAt time.Time
	nextSync      time.Time
}

func NewAccount(address blockchain.Account, index uint32, recentBlocks int) *Account {
	return &Account{
		Address:         address,
		Index:           index,
		HeadHeight:      blockchain.InvalidHeight,
		ConfirmedHeight: blockchain.InvalidHeight,
		TailHeight:      blockchain.InvalidHeight,
		RecentBlocks:    recentBlocks,
	}
}

// Created is true once the account has at least one known block
func (a *Account) Created() bool { return a.HeadHeight != blockchain.InvalidHeight }

func (a *Account) HasConfirmed() bool { return a.ConfirmedHeight != blockchain.InvalidHeight }

func (a *Account) HasTail() bool { return a.TailHeight != blockchain.InvalidHeight }

// Balance is the spendable balance, which only counts confirmed blocks
func (a *Account) Balance() uint256.Int {
	return a.BalanceConfirmed
}

// Spendable is the smaller of the head and confirmed balances. Unconfirmed receives do not
// count, unconfirmed sends do.
func (a *Account) Spendable() uint256.Int {
	if a.BalanceHead.Lt(&a.BalanceConfirmed) {
		return a.BalanceHead
	}
	return a.BalanceConfirmed
}

// nextHeight is the height the next head block must have
func (a *Account) nextHeight() uint64 {
	if !a.Created() {
		return 0
	}
	return a.HeadHeight + 1
}

func (a *Account) nextConfirmedHeight() uint64 {
	if !a.HasConfirmed() {
		return 0
	}
	return a.ConfirmedHeight + 1
}

func (a *Account) updateCaughtUp() {
	a.CaughtUp = a.Synced && a.HeadHeight == a.ConfirmedHeight
}

func (a *Account) clearTail() {
	a.Tail = blockchain.ZeroHash
	a.TailHeight = blockchain.InvalidHeight
}

func (a *Account) clearHead() {
	a.Head = blockchain.ZeroHash
	a.HeadHeight = blockchain.InvalidHeight
	a.BalanceHead.Clear()
}
