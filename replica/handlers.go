package replica

import (
	"github.com/OdyseeTeam/lattice-wallet/blockchain"
	"github.com/OdyseeTeam/lattice-wallet/ledger"
	"github.com/OdyseeTeam/lattice-wallet/protocol"

	"github.com/sirupsen/logrus"
)

// Handle applies one inbound message. Replies to unknown requests and notifications for
// untracked accounts are dropped.
func (e *Engine) Handle(msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.ErrorAck:
		e.handleError(m)
	case *protocol.SubscribeAck:
		e.handleSubscribe(m)
	case *protocol.AccountInfoAck:
		e.handleAccountInfo(m)
	case *protocol.BlockQueryAck:
		e.handleBlockQuery(m)
	case *protocol.ReceivablesAck:
		e.handleReceivables(m)
	case *protocol.BlockAppend:
		if a, ok := e.accounts.Get(m.Block.Account); ok {
			e.AppendBlock(a, m.Block, false)
		}
	case *protocol.BlockConfirm:
		if a, ok := e.accounts.Get(m.Block.Account); ok {
			e.ConfirmBlock(a, m.Block)
		}
	case *protocol.ReceivableInfo:
		e.handleReceivableInfo(m)
	case *protocol.AccountUnsubscribe:
		if a, ok := e.accounts.Get(m.Account); ok {
			logrus.Infof("node dropped subscription of %s", a.Address)
			a.Subscribed = false
			a.nextSubscribe = e.clock.Now()
		}
	default:
		logrus.Debugf("ignoring %s message", msg.Kind())
	}
}

// replyAccount resolves the tracked account a reply is about
func (e *Engine) replyAccount(msg protocol.Message) (*pendingQuery, *Account, bool) {
	p, ok := e.claim(msg)
	if !ok {
		logrus.Debugf("%s reply to unknown request %q", msg.Kind(), msg.RequestID())
		return nil, nil, false
	}
	a, ok := e.accounts.Get(p.account)
	if !ok {
		return nil, nil, false
	}
	return p, a, true
}

func (e *Engine) handleError(m *protocol.ErrorAck) {
	p, a, ok := e.replyAccount(m)
	if !ok {
		logrus.Warnf("%s failed: %s", m.Kind(), m.Error)
		return
	}
	logrus.Warnf("%s for %s failed: %s", p.kind, a.Address, m.Error)
}

func (e *Engine) handleSubscribe(m *protocol.SubscribeAck) {
	p, a, ok := e.replyAccount(m)
	if !ok || p.kind != querySubscribe {
		return
	}
	if !m.Account.IsZero() && m.Account != a.Address {
		logrus.Warnf("subscribe ack for %s answered %s", m.Account, a.Address)
		return
	}
	now := e.clock.Now()
	a.resubscribeAt = now.Add(e.config.ResubscribeInterval)
	if a.Subscribed {
		return
	}
	a.Subscribed = true
	logrus.Debugf("subscribed %s", a.Address)
	if !a.Synced {
		a.nextSync = now.Add(e.config.RetryInterval)
		e.queryInfo(a)
	}
}

func (e *Engine) handleAccountInfo(m *protocol.AccountInfoAck) {
	p, a, ok := e.replyAccount(m)
	if !ok || p.kind != queryInfo || a.Synced {
		return
	}
	if !m.Account.IsZero() && m.Account != a.Address {
		logrus.Warnf("account_info for %s answered %s", m.Account, a.Address)
		return
	}

	if !m.Exists {
		if a.HasConfirmed() {
			logrus.Warnf("node has no chain for %s, we have it confirmed at %d", a.Address, a.ConfirmedHeight)
			return
		}
		e.discard(a)
		a.clearHead()
		a.clearTail()
		a.Type = blockchain.TypeTx
		a.Synced = true
		a.updateCaughtUp()
		logrus.Infof("synced %s with an empty chain", a.Address)
		e.notify(a)
		e.pollReceivables(a)
		return
	}

	if a.HasConfirmed() && (m.ConfirmedHeight == blockchain.InvalidHeight || m.ConfirmedHeight < a.ConfirmedHeight) {
		logrus.Warnf("node is behind on %s, confirmed at %d", a.Address, a.ConfirmedHeight)
		return
	}
	if m.HeadBlock.Account != a.Address || !m.HeadBlock.Verify() {
		logrus.Warnf("account_info for %s has a bad head block", a.Address)
		return
	}
	if m.ConfirmedBlock != nil && (m.ConfirmedBlock.Account != a.Address || !m.ConfirmedBlock.Verify()) {
		logrus.Warnf("account_info for %s has a bad confirmed block", a.Address)
		return
	}

	// local blocks the node does not hold are gone, the node's chain is backfilled instead
	keep := []blockchain.Hash{m.Head}
	if m.ConfirmedBlock != nil {
		keep = append(keep, m.ConfirmedBlock.Hash())
	}
	if e.discard(a, keep...) {
		logrus.Infof("resync of %s dropped unconfirmed receives", a.Address)
	}

	e.cache.PutBlock(m.Head, m.HeadBlock, m.HeadBlockAmount, blockchain.ZeroHash)
	a.Head = m.Head
	a.HeadHeight = m.HeadHeight
	a.BalanceHead = m.HeadBlock.Balance
	if m.ConfirmedBlock != nil {
		a.Confirmed = m.ConfirmedBlock.Hash()
		a.ConfirmedHeight = m.ConfirmedHeight
		a.BalanceConfirmed = m.ConfirmedBlock.Balance
	}
	a.Type = m.Type
	a.Forks = m.Forks
	a.Restricted = m.Restricted
	a.Synced = true
	a.updateCaughtUp()
	e.updateTail(a)
	logrus.Infof("synced %s at height %d, confirmed %d", a.Address, a.HeadHeight, a.ConfirmedHeight)
	e.notify(a)

	if !a.CaughtUp {
		e.pullConfirmed(a)
		e.backfill(a)
	}
	e.pollReceivables(a)
}

func (e *Engine) handleBlockQuery(m *protocol.BlockQueryAck) {
	p, a, ok := e.replyAccount(m)
	if !ok || !a.Synced {
		return
	}
	if m.Block != nil && m.Block.Account != a.Address {
		logrus.Warnf("%s for %s answered with a block of %s", p.kind, a.Address, m.Block.Account)
		return
	}
	switch p.kind {
	case queryHead:
		e.handleHead(a, p, m)
	case queryConfirm:
		e.handleConfirmed(a, p, m)
	case queryBackfill:
		e.handleBackfill(a, p, m)
	}
}

func (e *Engine) handleHead(a *Account, p *pendingQuery, m *protocol.BlockQueryAck) {
	if p.height != a.nextHeight() || p.previous != a.Head {
		return
	}
	if m.Status == protocol.StatusFork {
		if a.HasConfirmed() && a.Head == a.Confirmed {
			logrus.Warnf("node forks %s at its confirmed block, resyncing", a.Address)
			a.Synced = false
			a.updateCaughtUp()
			return
		}
		logrus.Warnf("node reports fork above %s at height %d", a.Address, p.height)
		e.Rollback(a)
		e.pullHead(a)
		return
	}
	if m.Block == nil || !e.AppendBlock(a, m.Block, false) {
		return
	}
	if m.Confirmed {
		e.ConfirmBlock(a, m.Block)
	}
	e.pullHead(a)
}

func (e *Engine) handleConfirmed(a *Account, p *pendingQuery, m *protocol.BlockQueryAck) {
	if p.height != a.nextConfirmedHeight() || p.previous != a.Confirmed {
		return
	}
	if m.Status == protocol.StatusFork {
		logrus.Warnf("node disagrees with confirmed %s of %s, resyncing", a.Confirmed, a.Address)
		a.Synced = false
		a.updateCaughtUp()
		return
	}
	if m.Block == nil {
		return
	}
	if !m.Confirmed {
		if !e.cache.HasBlock(m.Block.Hash()) {
			e.fillGap(a, m.Block, &m.Amount)
		}
		return
	}
	e.confirm(a, m.Block, &m.Amount)
}

func (e *Engine) handleBackfill(a *Account, p *pendingQuery, m *protocol.BlockQueryAck) {
	if m.Block == nil {
		return
	}
	hash := m.Block.Hash()
	_, low := e.lowest(a)
	linked := (low == nil && hash == a.Head) || (low != nil && low.Previous == hash)
	if hash != p.hash || !linked || m.Block.Height != p.height {
		return
	}
	if !m.Block.Verify() {
		logrus.Warnf("backfilled block %s of %s has a bad signature", hash, a.Address)
		return
	}
	e.cache.PutBlock(hash, m.Block, m.Amount, blockchain.ZeroHash)
	e.updateTail(a)
	e.backfill(a)
}

func (e *Engine) handleReceivables(m *protocol.ReceivablesAck) {
	p, a, ok := e.replyAccount(m)
	if !ok || p.kind != queryReceivables {
		return
	}
	rs := make([]ledger.Receivable, 0, len(m.Receivables))
	for _, r := range m.Receivables {
		rs = append(rs, receivable(r))
	}
	e.cache.ReplaceReceivables(a.Address, rs, func(r ledger.Receivable) bool {
		return e.claimable(a, r.Hash)
	})
	a.BalanceReceivable = e.cache.ReceivableTotal(a.Address)
	e.notify(a)
}

func (e *Engine) handleReceivableInfo(m *protocol.ReceivableInfo) {
	a, ok := e.accounts.Get(m.Account)
	if !ok || !e.claimable(a, m.Hash) {
		return
	}
	if e.cache.AddReceivable(a.Address, receivable(m.ReceivableEntry)) {
		a.BalanceReceivable = e.cache.ReceivableTotal(a.Address)
		e.notify(a)
	}
}

// claimable is false for sends a local receive already claims
func (e *Engine) claimable(a *Account, hash blockchain.Hash) bool {
	return !e.cache.IsReceiving(hash) && !e.claimedInHeadChain(a, hash)
}

func receivable(r protocol.ReceivableEntry) ledger.Receivable {
	return ledger.Receivable{Source: r.Source, Amount: r.Amount, Hash: r.Hash, Timestamp: r.Timestamp}
}
