package replica

import (
	"strconv"

	"github.com/OdyseeTeam/lattice-wallet/blockchain"
	"github.com/OdyseeTeam/lattice-wallet/ledger"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

func formatHeight(h uint64) string { return strconv.FormatUint(h, 10) }

// AppendBlock extends a's head with b. It accepts b only when a is synced and b sits exactly on
// top of the head; anything else is a gap and re-triggers the head pull. local marks blocks
// built by this process, any other accepted block locks the wallet.
func (e *Engine) AppendBlock(a *Account, b *blockchain.Block, local bool) bool {
	if !a.Synced || b.Account != a.Address {
		return false
	}
	hash := b.Hash()
	if a.Created() && hash == a.Head {
		return false
	}
	if a.Created() && b.Height <= a.HeadHeight {
		logrus.Debugf("dropping block %s at height %d, head of %s is at %d", hash, b.Height, a.Address, a.HeadHeight)
		return false
	}
	if b.Height != a.nextHeight() || (a.Created() && b.Previous != a.Head) || (!a.Created() && !b.Previous.IsZero()) {
		logrus.Debugf("gap appending %s at height %d to %s", hash, b.Height, a.Address)
		e.pullHead(a)
		return false
	}
	if !local && !b.Verify() {
		logrus.Warnf("block %s for %s has a bad signature", hash, a.Address)
		return false
	}

	amount := blockchain.AmountBetween(&a.BalanceHead, &b.Balance)
	e.cache.PutBlock(hash, b, amount, blockchain.ZeroHash)
	a.Head = hash
	a.HeadHeight = b.Height
	a.BalanceHead = b.Balance
	a.updateCaughtUp()
	e.updateTail(a)

	if b.Opcode == blockchain.OpReceive {
		e.cache.DelReceivable(a.Address, b.Link)
		if !local {
			e.cache.ReleaseReceiving(b.Link)
		}
		a.BalanceReceivable = e.cache.ReceivableTotal(a.Address)
	}

	if !local && !e.published.Contains(hash) {
		logrus.Infof("%s moved to %s without us, locking wallet", a.Address, hash)
		e.wallet.Lock()
	}
	logrus.Debugf("appended %s %s at height %d", a.Address, b.Opcode, b.Height)
	e.notify(a)
	return true
}

// ConfirmBlock moves a's confirmed pointer to b. A b newer than the confirmed block that is
// neither cached nor able to fill the gap below the cached head means the local chain forked:
// it is rolled back and the head queried again.
func (e *Engine) ConfirmBlock(a *Account, b *blockchain.Block) {
	e.confirm(a, b, nil)
}

// confirm is ConfirmBlock with the amount the node reported for b, if any
func (e *Engine) confirm(a *Account, b *blockchain.Block, amount *uint256.Int) {
	if !a.Synced || b.Account != a.Address {
		return
	}
	hash := b.Hash()
	if a.HasConfirmed() && b.Height <= a.ConfirmedHeight {
		if b.Height == a.ConfirmedHeight && hash != a.Confirmed {
			logrus.Warnf("node confirmed %s at %d, we have %s", hash, b.Height, a.Confirmed)
		}
		return
	}

	if !e.cache.HasBlock(hash) && !e.fillGap(a, b, amount) {
		if !b.Verify() {
			logrus.Warnf("confirmation of %s for %s has a bad signature", hash, a.Address)
			return
		}
		if a.Created() && b.Height > a.HeadHeight {
			// confirmed past our head, the head pull catches up
			e.pullHead(a)
			return
		}
		if _, low := e.lowest(a); low != nil && low.Height > b.Height {
			// below the cached window, nothing to compare against yet
			e.backfill(a)
			return
		}
		logrus.Warnf("%s confirmed unknown block %s at height %d, rolling back", a.Address, hash, b.Height)
		e.Rollback(a)
		e.pullHead(a)
		return
	}
	if !e.onHeadChain(a, hash, b.Height) {
		logrus.Warnf("%s confirmed %s, which is off the head chain, rolling back", a.Address, hash)
		e.Rollback(a)
		e.pullHead(a)
		return
	}

	e.settle(a, hash)
	a.Confirmed = hash
	a.ConfirmedHeight = b.Height
	a.BalanceConfirmed = b.Balance
	a.updateCaughtUp()
	e.updateTail(a)
	logrus.Debugf("confirmed %s at height %d", a.Address, b.Height)
	e.notify(a)

	if !a.CaughtUp {
		e.pullConfirmed(a)
	}
}

// settle handles the blocks that become confirmed between the old confirmed block and hash
func (e *Engine) settle(a *Account, hash blockchain.Hash) {
	for h := hash; ; {
		info, ok := e.cache.GetBlock(h)
		if !ok || (a.HasConfirmed() && info.Block.Height <= a.ConfirmedHeight) {
			return
		}
		switch info.Block.Opcode {
		case blockchain.OpReceive:
			e.cache.ReleaseReceiving(info.Block.Link)
		case blockchain.OpSend:
			e.observeSend(h, info)
		}
		if info.Block.Height == 0 {
			return
		}
		h = info.Block.Previous
	}
}

// observeSend records a confirmed send to another tracked account as receivable there
func (e *Engine) observeSend(hash blockchain.Hash, info ledger.BlockInfo) {
	dest, ok := e.accounts.Get(info.Block.LinkAccount())
	if !ok || e.cache.IsReceiving(hash) || e.claimedInHeadChain(dest, hash) {
		return
	}
	var amount uint256.Int
	amount.Abs(&info.Amount)
	r := ledger.Receivable{Source: info.Block.Account, Amount: amount, Hash: hash, Timestamp: info.Block.Timestamp}
	if e.cache.AddReceivable(dest.Address, r) {
		dest.BalanceReceivable = e.cache.ReceivableTotal(dest.Address)
		e.notify(dest)
	}
}

// onHeadChain reports whether hash at height is an ancestor of, or is, the head
func (e *Engine) onHeadChain(a *Account, hash blockchain.Hash, height uint64) bool {
	if !a.Created() || height > a.HeadHeight {
		return false
	}
	for h := a.Head; ; {
		if h == hash {
			return true
		}
		info, ok := e.cache.GetBlock(h)
		if !ok || info.Block.Height <= height || info.Block.Height == 0 {
			return false
		}
		h = info.Block.Previous
	}
}

// fillGap caches b when it is the missing link between the confirmed block and the cached head
// chain. amount is the node's figure for b; without it the amount comes from the cached
// predecessor.
func (e *Engine) fillGap(a *Account, b *blockchain.Block, amount *uint256.Int) bool {
	if !a.Created() || b.Height >= a.HeadHeight {
		return false
	}
	if b.Height != a.nextConfirmedHeight() || (a.HasConfirmed() && b.Previous != a.Confirmed) {
		return false
	}
	hash := b.Hash()
	successor, ok := e.successorOnHeadChain(a, b.Height)
	if !ok || successor.Block.Previous != hash {
		return false
	}
	if !b.Verify() {
		return false
	}

	var value uint256.Int
	switch {
	case amount != nil:
		value = *amount
	case b.Height == 0:
		value = blockchain.AmountBetween(new(uint256.Int), &b.Balance)
	case a.HasConfirmed():
		value = blockchain.AmountBetween(&a.BalanceConfirmed, &b.Balance)
	default:
		return false
	}
	e.cache.PutBlock(hash, b, value, successor.Block.Hash())
	e.updateTail(a)
	logrus.Debugf("filled gap in %s at height %d", a.Address, b.Height)
	return true
}

// successorOnHeadChain finds the cached head-chain block at height+1
func (e *Engine) successorOnHeadChain(a *Account, height uint64) (ledger.BlockInfo, bool) {
	for h := a.Head; ; {
		info, ok := e.cache.GetBlock(h)
		if !ok || info.Block.Height <= height {
			return ledger.BlockInfo{}, false
		}
		if info.Block.Height == height+1 {
			return info, true
		}
		h = info.Block.Previous
	}
}

// Rollback discards unconfirmed blocks from the head down to the confirmed block. It never
// removes the confirmed block. If a predecessor is missing from the cache it stops and leaves a
// unsynced, so account_info resynchronizes the head.
func (e *Engine) Rollback(a *Account) {
	refresh := false
	defer func() {
		a.updateCaughtUp()
		e.updateTail(a)
		if refresh {
			a.BalanceReceivable = e.cache.ReceivableTotal(a.Address)
			e.pollReceivables(a)
		}
		e.backfill(a)
		e.notify(a)
	}()

	for a.Created() && !(a.HasConfirmed() && a.Head == a.Confirmed) {
		info, ok := e.cache.GetBlock(a.Head)
		if !ok || (a.HasConfirmed() && info.Block.Height <= a.ConfirmedHeight) {
			logrus.Warnf("cannot roll %s back past %s, resyncing", a.Address, a.Head)
			a.Synced = false
			return
		}
		b := info.Block

		var balance uint256.Int
		if b.Height > 0 {
			if prev, ok := e.cache.GetBlock(b.Previous); ok {
				balance = prev.Block.Balance
			} else if a.HasConfirmed() && b.Previous == a.Confirmed {
				balance = a.BalanceConfirmed
			} else {
				logrus.Warnf("predecessor of %s not cached, resyncing %s", a.Head, a.Address)
				a.Synced = false
				return
			}
		}

		e.cache.DelBlock(a.Head)
		if b.Opcode == blockchain.OpReceive {
			e.cache.ReleaseReceiving(b.Link)
			refresh = true
		}
		logrus.Infof("rolled back %s %s at height %d", a.Address, b.Opcode, b.Height)

		if b.Height == 0 {
			a.clearHead()
			return
		}
		a.Head = b.Previous
		a.HeadHeight = b.Height - 1
		a.BalanceHead = balance
	}
}

// discard drops the cached head chain above the confirmed block, stopping at any hash in keep.
// Receives on dropped blocks give up their claim. It reports whether any did.
func (e *Engine) discard(a *Account, keep ...blockchain.Hash) bool {
	released := false
	if !a.Created() {
		return released
	}
walk:
	for h := a.Head; ; {
		for _, k := range keep {
			if h == k {
				break walk
			}
		}
		info, ok := e.cache.GetBlock(h)
		if !ok || (a.HasConfirmed() && info.Block.Height <= a.ConfirmedHeight) {
			break
		}
		e.cache.DelBlock(h)
		if info.Block.Opcode == blockchain.OpReceive {
			e.cache.ReleaseReceiving(info.Block.Link)
			released = true
		}
		logrus.Debugf("discarded %s %s at height %d", a.Address, info.Block.Opcode, info.Block.Height)
		if info.Block.Height == 0 {
			break
		}
		h = info.Block.Previous
	}
	return released
}

// lowest is the bottom of the contiguous cached chain under the head
func (e *Engine) lowest(a *Account) (blockchain.Hash, *blockchain.Block) {
	var (
		low     *blockchain.Block
		lowHash blockchain.Hash
	)
	if !a.Created() {
		return lowHash, nil
	}
	for h := a.Head; ; {
		info, ok := e.cache.GetBlock(h)
		if !ok {
			break
		}
		low, lowHash = info.Block, h
		if low.Height == 0 {
			break
		}
		h = low.Previous
	}
	return lowHash, low
}

// updateTail points the tail at the lowest block of the contiguous cached chain under the
// head. There is no tail while that chain does not reach the confirmed block.
func (e *Engine) updateTail(a *Account) {
	lowHash, low := e.lowest(a)
	if low == nil || (a.HasConfirmed() && low.Height > a.ConfirmedHeight) {
		a.clearTail()
		return
	}
	a.Tail = lowHash
	a.TailHeight = low.Height
}

// claimedInHeadChain reports whether an unconfirmed receive in a's head chain links to hash
func (e *Engine) claimedInHeadChain(a *Account, hash blockchain.Hash) bool {
	if !a.Created() {
		return false
	}
	for h := a.Head; ; {
		info, ok := e.cache.GetBlock(h)
		if !ok || (a.HasConfirmed() && info.Block.Height <= a.ConfirmedHeight) {
			return false
		}
		if info.Block.Opcode == blockchain.OpReceive && info.Block.Link == hash {
			return true
		}
		if info.Block.Height == 0 {
			return false
		}
		h = info.Block.Previous
	}
}
