package builder

import (
	"math"
	"math/rand"

	"github.com/OdyseeTeam/lattice-wallet/blockchain"
	"github.com/OdyseeTeam/lattice-wallet/ledger"

	"github.com/cockroachdb/errors"
	"github.com/holiman/uint256"
)

// State is what the builder needs to know about the account it extends
type State struct {
	Account blockchain.Account
	Index   uint32 // signing key index
	Type    blockchain.Type

	// Head is the latest known block, nil for an account with no chain yet
	Head *blockchain.Block

	// Spendable bounds what sends and credit purchases may take from the balance
	Spendable uint256.Int

	// Now is the server clock in seconds
	Now uint64
}

type Builder struct {
	Signer blockchain.Signer

	// Representatives is the pool a first block picks its representative from
	Representatives []blockchain.Account
}

func New(signer blockchain.Signer, representatives []blockchain.Account) *Builder {
	return &Builder{Signer: signer, Representatives: representatives}
}

// next fills the fields every block derives from its predecessor and checks the daily quota
func (bl *Builder) next(s State, opcode blockchain.Opcode, minTimestamp uint64, extensions []byte) (*blockchain.Block, error) {
	if s.Head == nil {
		return nil, errors.Wrapf(ErrNotActivated, "%s has no blocks", s.Account)
	}
	if err := checkExtensions(extensions); err != nil {
		return nil, err
	}

	prev := s.Head
	timestamp, err := nextTimestamp(s.Now, prev.Timestamp, minTimestamp)
	if err != nil {
		return nil, err
	}

	b := &blockchain.Block{
		Type:           s.Type,
		Opcode:         opcode,
		Credit:         prev.Credit,
		Counter:        NextCounter(prev, timestamp),
		Timestamp:      timestamp,
		Height:         prev.Height + 1,
		Account:        s.Account,
		Previous:       prev.Hash(),
		Representative: prev.Representative,
		Balance:        prev.Balance,
		Extensions:     extensions,
	}

	if uint64(b.Counter) > Quota(prev.Credit) {
		return nil, errors.Wrapf(ErrCredit, "block %d today exceeds quota of %d", b.Counter, Quota(prev.Credit))
	}
	return b, nil
}

func nextTimestamp(now uint64, floors ...uint64) (uint64, error) {
	ts := now
	for _, f := range floors {
		if f > ts {
			ts = f
		}
	}
	if ts > now+MaxClockSkew {
		return 0, errors.Wrapf(ErrTimestamp, "timestamp %d is %ds ahead of server time", ts, ts-now)
	}
	return ts, nil
}

func checkExtensions(raw []byte) error {
	if len(raw) > blockchain.MaxExtensionsSize {
		return errors.Wrapf(ErrExtensions, "%d bytes", len(raw))
	}
	if _, err := blockchain.ParseExtensions(raw); err != nil {
		return errors.Mark(err, ErrExtensions)
	}
	return nil
}

// Send moves amount to destination
func (bl *Builder) Send(s State, destination blockchain.Account, amount uint256.Int, extensions []byte) (*blockchain.Block, error) {
	if s.Head == nil {
		return nil, errors.Wrapf(ErrNotActivated, "%s has no blocks", s.Account)
	}
	if destination.IsZero() {
		return nil, errors.Wrap(ErrDestination, "send to zero account")
	}
	if amount.IsZero() {
		return nil, errors.Wrap(ErrAmount, "send of zero")
	}
	if amount.Gt(&s.Spendable) {
		return nil, errors.Wrapf(ErrBalance, "send %s with %s spendable", amount.ToBig(), s.Spendable.ToBig())
	}

	b, err := bl.next(s, blockchain.OpSend, 0, extensions)
	if err != nil {
		return nil, err
	}
	if amount.Gt(&b.Balance) {
		return nil, errors.Wrapf(ErrBalance, "send %s with balance %s", amount.ToBig(), b.Balance.ToBig())
	}
	b.Balance.Sub(&b.Balance, &amount)
	b.Link = blockchain.Hash(destination)
	return bl.sign(s, b)
}

// Receive claims r. For an account without blocks it builds the opening block, which buys
// its first credit unit out of the received amount.
func (bl *Builder) Receive(s State, r ledger.Receivable, extensions []byte) (*blockchain.Block, error) {
	if s.Head == nil {
		return bl.open(s, r, extensions)
	}

	b, err := bl.next(s, blockchain.OpReceive, r.Timestamp, extensions)
	if err != nil {
		return nil, err
	}
	balance, overflow := new(uint256.Int).AddOverflow(&b.Balance, &r.Amount)
	if overflow || !blockchain.FitsBalance(balance) {
		return nil, errors.Wrap(ErrBalance, "receive overflows balance")
	}
	b.Balance.Set(balance)
	b.Link = r.Hash
	return bl.sign(s, b)
}

func (bl *Builder) open(s State, r ledger.Receivable, extensions []byte) (*blockchain.Block, error) {
	if err := checkExtensions(extensions); err != nil {
		return nil, err
	}
	if len(bl.Representatives) == 0 {
		return nil, errors.Wrap(ErrRepresentative, "no default representatives configured")
	}
	timestamp, err := nextTimestamp(s.Now, r.Timestamp)
	if err != nil {
		return nil, err
	}
	price := CreditPrice(timestamp)
	if price.IsZero() {
		return nil, errors.Wrapf(ErrTimestamp, "timestamp %d is before the credit epoch", timestamp)
	}
	if r.Amount.Lt(&price) {
		return nil, errors.Wrapf(ErrReceivableAmount, "receivable %s cannot pay credit price %s", r.Amount.ToBig(), price.ToBig())
	}

	b := &blockchain.Block{
		Type:           s.Type,
		Opcode:         blockchain.OpReceive,
		Credit:         1,
		Counter:        1,
		Timestamp:      timestamp,
		Height:         0,
		Account:        s.Account,
		Representative: bl.Representatives[rand.Intn(len(bl.Representatives))],
		Link:           r.Hash,
		Extensions:     extensions,
	}
	b.Balance.Sub(&r.Amount, &price)
	return bl.sign(s, b)
}

// ChangeRepresentative delegates the account's weight to rep
func (bl *Builder) ChangeRepresentative(s State, rep blockchain.Account, extensions []byte) (*blockchain.Block, error) {
	if s.Type == blockchain.TypeRep {
		return nil, errors.Wrap(ErrAccountType, "representative accounts cannot delegate")
	}
	if rep.IsZero() {
		return nil, errors.Wrap(ErrRepresentative, "zero representative")
	}
	b, err := bl.next(s, blockchain.OpChange, 0, extensions)
	if err != nil {
		return nil, err
	}
	b.Representative = rep
	return bl.sign(s, b)
}

// ChangeExtensions publishes new extension entries without touching balance or representative
func (bl *Builder) ChangeExtensions(s State, extensions []byte) (*blockchain.Block, error) {
	if len(extensions) == 0 {
		return nil, errors.Wrap(ErrExtensions, "nothing to change")
	}
	b, err := bl.next(s, blockchain.OpChange, 0, extensions)
	if err != nil {
		return nil, err
	}
	return bl.sign(s, b)
}

// IncreaseCredit buys units more credit at the current price
func (bl *Builder) IncreaseCredit(s State, units uint16, extensions []byte) (*blockchain.Block, error) {
	if units == 0 {
		return nil, errors.Wrap(ErrAmount, "credit increase of zero")
	}
	b, err := bl.next(s, blockchain.OpCredit, 0, extensions)
	if err != nil {
		return nil, err
	}
	if uint32(b.Credit)+uint32(units) > math.MaxUint16 {
		return nil, errors.Wrapf(ErrCreditOverflow, "credit %d + %d", b.Credit, units)
	}

	price := CreditPrice(b.Timestamp)
	if price.IsZero() {
		return nil, errors.Wrapf(ErrTimestamp, "timestamp %d is before the credit epoch", b.Timestamp)
	}
	cost := new(uint256.Int).Mul(&price, uint256.NewInt(uint64(units)))
	if cost.Gt(&s.Spendable) || cost.Gt(&b.Balance) {
		return nil, errors.Wrapf(ErrBalance, "credit costs %s, %s spendable", cost.ToBig(), s.Spendable.ToBig())
	}

	b.Credit += units
	b.Balance.Sub(&b.Balance, cost)
	return bl.sign(s, b)
}

func (bl *Builder) sign(s State, b *blockchain.Block) (*blockchain.Block, error) {
	sig, err := bl.Signer.Sign(s.Index, b.Hash())
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "signing"), ErrLocked)
	}
	b.Signature = sig
	if !b.Verify() {
		return nil, errors.Wrapf(ErrSignature, "oracle signature for key %d does not verify", s.Index)
	}
	return b, nil
}
