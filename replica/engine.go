package replica

import (
	"encoding/binary"
	"math/rand"
	"time"

	"github.com/OdyseeTeam/lattice-wallet/blockchain"
	"github.com/OdyseeTeam/lattice-wallet/builder"
	"github.com/OdyseeTeam/lattice-wallet/ledger"
	"github.com/OdyseeTeam/lattice-wallet/protocol"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

// Wallet signs blocks and is locked whenever the chain moves under it
type Wallet interface {
	blockchain.Signer
	Lock()
	Locked() bool
}

// Clock is the server clock used for block timestamps
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type Config struct {
	// RetryInterval paces subscribe and account_info retries, and pulls while catching up
	RetryInterval time.Duration
	// PollMin and PollMax bound the randomized interval between pulls of a caught-up account
	PollMin time.Duration
	PollMax time.Duration
	// ResubscribeInterval renews subscriptions the node may have silently dropped
	ResubscribeInterval time.Duration
	// RequestTimeout forgets a query whose reply never came
	RequestTimeout time.Duration

	ReceivablesCount   int
	RecentBlocks       int
	PublishedCacheSize int
}

func DefaultConfig() Config {
	return Config{
		RetryInterval:       2 * time.Second,
		PollMin:             15 * time.Second,
		PollMax:             45 * time.Second,
		ResubscribeInterval: 10 * time.Minute,
		RequestTimeout:      30 * time.Second,
		ReceivablesCount:    50,
		RecentBlocks:        16,
		PublishedCacheSize:  1024,
	}
}

type queryKind int

const (
	querySubscribe queryKind = iota
	queryInfo
	queryHead
	queryConfirm
	queryBackfill
	queryReceivables
)

var queryNames = map[queryKind]string{
	querySubscribe:   "subscribe",
	queryInfo:        "account_info",
	queryHead:        "head pull",
	queryConfirm:     "confirmation pull",
	queryBackfill:    "backfill",
	queryReceivables: "receivables",
}

func (k queryKind) String() string { return queryNames[k] }

// pendingQuery is what a reply is checked against. A reply whose query no longer matches the
// account state is stale and ignored.
type pendingQuery struct {
	kind     queryKind
	account  blockchain.Account
	height   uint64
	previous blockchain.Hash
	hash     blockchain.Hash
	expires  time.Time
	answered bool
}

// Engine keeps every tracked account in step with the node. It is not safe for concurrent use;
// the synchronizer loop owns it.
type Engine struct {
	config   Config
	channel  protocol.Sender
	cache    *ledger.Cache
	accounts Repository
	wallet   Wallet
	builder  *builder.Builder
	clock    Clock

	pending   map[string]*pendingQuery
	published *lru.Cache // hashes of blocks built here

	onChangeFn []func(a *Account)
}

func New(config Config, channel protocol.Sender, cache *ledger.Cache, accounts Repository, w Wallet, bl *builder.Builder, clock Clock) (*Engine, error) {
	if config.PublishedCacheSize <= 0 {
		config.PublishedCacheSize = DefaultConfig().PublishedCacheSize
	}
	published, err := lru.New(config.PublishedCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "published block cache")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Engine{
		config:    config,
		channel:   channel,
		cache:     cache,
		accounts:  accounts,
		wallet:    w,
		builder:   bl,
		clock:     clock,
		pending:   make(map[string]*pendingQuery),
		published: published,
	}, nil
}

// OnChange registers fn to run whenever an account's replica state moves
func (e *Engine) OnChange(fn func(a *Account)) {
	e.onChangeFn = append(e.onChangeFn, fn)
}

func (e *Engine) notify(a *Account) {
	for _, fn := range e.onChangeFn {
		fn(a)
	}
}

// Track starts replicating address, signed with key index
func (e *Engine) Track(address blockchain.Account, index uint32) *Account {
	if a, ok := e.accounts.Get(address); ok {
		return a
	}
	a := NewAccount(address, index, e.config.RecentBlocks)
	e.accounts.Put(a)
	return a
}

func (e *Engine) Untrack(address blockchain.Account) {
	e.accounts.Delete(address)
}

func (e *Engine) Account(address blockchain.Account) (*Account, bool) {
	return e.accounts.Get(address)
}

func (e *Engine) Accounts() []*Account { return e.accounts.All() }

func (e *Engine) Cache() *ledger.Cache { return e.cache }

// OnConnect schedules every account for an immediate subscribe
func (e *Engine) OnConnect() {
	for _, a := range e.accounts.All() {
		a.Subscribed = false
		a.nextSubscribe = time.Time{}
	}
}

// OnDisconnect drops every account to unsynced. Chain pointers survive so confirmed state
// never moves backwards across a reconnect.
func (e *Engine) OnDisconnect() {
	e.pending = make(map[string]*pendingQuery)
	for _, a := range e.accounts.All() {
		a.Subscribed = false
		a.Synced = false
		a.CaughtUp = false
		a.nextSubscribe = time.Time{}
		a.nextSync = time.Time{}
		e.notify(a)
	}
}

// Tick issues whatever queries are due at now
func (e *Engine) Tick(now time.Time) {
	e.expire(now)
	if !e.channel.Connected() {
		return
	}
	for _, a := range e.accounts.All() {
		e.schedule(a, now)
	}
}

func (e *Engine) schedule(a *Account, now time.Time) {
	if !a.Subscribed || (!a.resubscribeAt.IsZero() && !now.Before(a.resubscribeAt)) {
		if !now.Before(a.nextSubscribe) {
			a.nextSubscribe = now.Add(e.config.RetryInterval)
			a.resubscribeAt = time.Time{}
			e.subscribe(a)
		}
		if !a.Subscribed {
			return
		}
	}

	if now.Before(a.nextSync) {
		return
	}
	if !a.Synced {
		a.nextSync = now.Add(e.config.RetryInterval)
		e.queryInfo(a)
		return
	}
	a.nextSync = now.Add(e.pollInterval(a))
	e.pull(a)
}

func (e *Engine) pollInterval(a *Account) time.Duration {
	if !a.CaughtUp {
		return e.config.RetryInterval
	}
	spread := e.config.PollMax - e.config.PollMin
	if spread <= 0 {
		return e.config.PollMin
	}
	return e.config.PollMin + time.Duration(rand.Int63n(int64(spread)))
}

// pull runs the three chain loops and the receivables poll
func (e *Engine) pull(a *Account) {
	e.pullHead(a)
	if !a.CaughtUp {
		e.pullConfirmed(a)
	}
	e.backfill(a)
	e.pollReceivables(a)
}

func (e *Engine) expire(now time.Time) {
	for id, p := range e.pending {
		if now.After(p.expires) {
			if !p.answered {
				logrus.Debugf("%s query for %s timed out", p.kind, p.account)
			}
			delete(e.pending, id)
		}
	}
}

// inflight reports whether an unanswered query equal to p is still pending
func (e *Engine) inflight(p pendingQuery) bool {
	now := e.clock.Now()
	for _, q := range e.pending {
		if !q.answered && q.expires.After(now) && q.kind == p.kind && q.account == p.account && q.height == p.height &&
			q.previous == p.previous && q.hash == p.hash {
			return true
		}
	}
	return false
}

func (e *Engine) query(req protocol.Request, p pendingQuery) {
	if e.inflight(p) {
		return
	}
	id := protocol.NewRequestID()
	protocol.SetRequestID(req, id)
	p.expires = e.clock.Now().Add(e.config.RequestTimeout)
	e.pending[id] = &p
	if err := e.channel.Send(req); err != nil {
		logrus.Debugf("sending %s for %s: %v", p.kind, p.account, err)
		delete(e.pending, id)
	}
}

// claim returns the query a reply answers. Later replies to the same request still resolve,
// so duplicates reach the handlers, which treat them idempotently.
func (e *Engine) claim(msg protocol.Message) (*pendingQuery, bool) {
	p, ok := e.pending[msg.RequestID()]
	if !ok {
		return nil, false
	}
	p.answered = true
	return p, true
}

func subscribeDigest(account blockchain.Account, timestamp uint64) blockchain.Hash {
	var buf [blockchain.AccountSize + 8]byte
	copy(buf[:], account[:])
	binary.BigEndian.PutUint64(buf[blockchain.AccountSize:], timestamp)
	return blake2b.Sum256(buf[:])
}

func (e *Engine) subscribe(a *Account) {
	ts := uint64(e.clock.Now().Unix())
	req := protocol.NewAccountSubscribe(a.Address, ts)
	if !e.wallet.Locked() {
		if sig, err := e.wallet.Sign(a.Index, subscribeDigest(a.Address, ts)); err == nil {
			req.Signature = sig.String()
		}
	}
	e.query(req, pendingQuery{kind: querySubscribe, account: a.Address})
}

func (e *Engine) queryInfo(a *Account) {
	e.query(protocol.NewAccountInfo(a.Address), pendingQuery{kind: queryInfo, account: a.Address})
}

func heightQuery(a *Account, height uint64, previous blockchain.Hash, hasPrevious bool) *protocol.BlockQuery {
	req := &protocol.BlockQuery{
		Envelope: protocol.Envelope{Action: protocol.ActionBlockQuery},
		Account:  a.Address.String(),
		Height:   formatHeight(height),
	}
	if hasPrevious {
		req.Previous = previous.String()
	}
	return req
}

// pullHead asks for the block above the head
func (e *Engine) pullHead(a *Account) {
	if !a.Synced {
		return
	}
	height := a.nextHeight()
	e.query(heightQuery(a, height, a.Head, a.Created()),
		pendingQuery{kind: queryHead, account: a.Address, height: height, previous: a.Head})
}

// pullConfirmed asks for the block above the confirmed block
func (e *Engine) pullConfirmed(a *Account) {
	if !a.Synced || !a.Created() {
		return
	}
	height := a.nextConfirmedHeight()
	if height > a.HeadHeight {
		return
	}
	e.query(heightQuery(a, height, a.Confirmed, a.HasConfirmed()),
		pendingQuery{kind: queryConfirm, account: a.Address, height: height, previous: a.Confirmed})
}

// backfill extends the cached window below the head one block at a time, and fetches the head
// itself when a rollback left it uncached
func (e *Engine) backfill(a *Account) {
	if !a.Synced || !a.Created() {
		return
	}
	target, height := a.Head, a.HeadHeight
	if _, low := e.lowest(a); low != nil {
		if low.Height == 0 {
			return
		}
		belowConfirmed := a.HasConfirmed() && low.Height > a.ConfirmedHeight
		if !belowConfirmed && a.HeadHeight-low.Height >= uint64(a.RecentBlocks) {
			return
		}
		target, height = low.Previous, low.Height-1
	}
	req := &protocol.BlockQuery{
		Envelope: protocol.Envelope{Action: protocol.ActionBlockQuery},
		Hash:     target.String(),
	}
	e.query(req, pendingQuery{kind: queryBackfill, account: a.Address, height: height, hash: target})
}

func (e *Engine) pollReceivables(a *Account) {
	if !a.Synced {
		return
	}
	e.query(protocol.NewReceivablesQuery(a.Address, e.config.ReceivablesCount),
		pendingQuery{kind: queryReceivables, account: a.Address})
}
