package replica

import (
	"github.com/OdyseeTeam/lattice-wallet/blockchain"
	"github.com/OdyseeTeam/lattice-wallet/builder"
	"github.com/OdyseeTeam/lattice-wallet/protocol"

	"github.com/cockroachdb/errors"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

// state checks the preconditions shared by every operation and snapshots what the builder
// needs from the replica
func (e *Engine) state(address blockchain.Account) (*Account, builder.State, error) {
	a, ok := e.accounts.Get(address)
	if !ok {
		return nil, builder.State{}, errors.Wrapf(builder.ErrAccountUnknown, "%s is not tracked", address)
	}
	if e.wallet.Locked() {
		return nil, builder.State{}, errors.Wrap(builder.ErrLocked, "wallet is locked")
	}
	if !a.Synced {
		return nil, builder.State{}, errors.Wrapf(builder.ErrDesync, "%s is not synced", address)
	}
	if a.Restricted {
		return nil, builder.State{}, errors.Wrapf(builder.ErrRestricted, "%s is restricted", address)
	}

	s := builder.State{
		Account:   a.Address,
		Index:     a.Index,
		Type:      a.Type,
		Spendable: a.Spendable(),
		Now:       uint64(e.clock.Now().Unix()),
	}
	if a.Created() {
		info, ok := e.cache.GetBlock(a.Head)
		if !ok {
			return nil, builder.State{}, errors.Wrapf(builder.ErrDesync, "head of %s not cached", address)
		}
		s.Head = info.Block
	}
	return a, s, nil
}

// commit appends a locally built block and publishes it
func (e *Engine) commit(a *Account, b *blockchain.Block) (*blockchain.Block, error) {
	hash := b.Hash()
	e.published.Add(hash, struct{}{})
	if !e.AppendBlock(a, b, true) {
		return nil, errors.Wrapf(builder.ErrDesync, "head of %s moved while building %s", a.Address, hash)
	}
	if err := e.channel.Send(protocol.NewBlockPublish(b)); err != nil {
		// the block stays appended; the head pull reconciles it once the node is reachable
		logrus.Warnf("publishing %s: %v", hash, err)
	}
	logrus.Infof("published %s %s at height %d", a.Address, b.Opcode, b.Height)
	return b, nil
}

func (e *Engine) Send(address, destination blockchain.Account, amount uint256.Int, extensions []byte) (*blockchain.Block, error) {
	a, s, err := e.state(address)
	if err != nil {
		return nil, err
	}
	b, err := e.builder.Send(s, destination, amount, extensions)
	if err != nil {
		return nil, err
	}
	return e.commit(a, b)
}

// Receive claims the receivable identified by the hash of its send block
func (e *Engine) Receive(address blockchain.Account, hash blockchain.Hash, extensions []byte) (*blockchain.Block, error) {
	a, s, err := e.state(address)
	if err != nil {
		return nil, err
	}
	if e.cache.IsReceiving(hash) || e.claimedInHeadChain(a, hash) {
		return nil, errors.Wrapf(builder.ErrReceiving, "%s is already being received", hash)
	}
	r, ok := e.cache.GetReceivable(a.Address, hash)
	if !ok {
		return nil, errors.Wrapf(builder.ErrReceivableUnknown, "no receivable %s for %s", hash, address)
	}
	b, err := e.builder.Receive(s, r, extensions)
	if err != nil {
		return nil, err
	}
	e.cache.SetReceiving(hash)
	out, err := e.commit(a, b)
	if err != nil {
		e.cache.ReleaseReceiving(hash)
		return nil, err
	}
	return out, nil
}

func (e *Engine) ChangeRepresentative(address, representative blockchain.Account, extensions []byte) (*blockchain.Block, error) {
	a, s, err := e.state(address)
	if err != nil {
		return nil, err
	}
	b, err := e.builder.ChangeRepresentative(s, representative, extensions)
	if err != nil {
		return nil, err
	}
	return e.commit(a, b)
}

func (e *Engine) ChangeExtensions(address blockchain.Account, extensions []byte) (*blockchain.Block, error) {
	a, s, err := e.state(address)
	if err != nil {
		return nil, err
	}
	b, err := e.builder.ChangeExtensions(s, extensions)
	if err != nil {
		return nil, err
	}
	return e.commit(a, b)
}

func (e *Engine) IncreaseCredit(address blockchain.Account, units uint16, extensions []byte) (*blockchain.Block, error) {
	a, s, err := e.state(address)
	if err != nil {
		return nil, err
	}
	b, err := e.builder.IncreaseCredit(s, units, extensions)
	if err != nil {
		return nil, err
	}
	return e.commit(a, b)
}
