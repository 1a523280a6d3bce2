package synchronizer

import (
	"context"
	"testing"
	"time"

	"github.com/OdyseeTeam/lattice-wallet/protocol"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	ticks       int
	handled     []protocol.Message
	connects    int
	disconnects int
}

func (e *fakeEngine) Tick(time.Time) { e.ticks++ }
func (e *fakeEngine) Handle(msg protocol.Message) { e.handled = append(e.handled, msg) }
func (e *fakeEngine) OnConnect() { e.connects++ }
func (e *fakeEngine) OnDisconnect() { e.disconnects++ }

type fakeChannel struct {
	inbound chan protocol.Message
	events  chan protocol.ConnectionEvent
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{inbound: make(chan protocol.Message, 8), events: make(chan protocol.ConnectionEvent, 8)}
}

func (c *fakeChannel) Send(protocol.Request) error { return nil }
func (c *fakeChannel) Connected() bool { return true }
func (c *fakeChannel) Inbound() <-chan protocol.Message { return c.inbound }
func (c *fakeChannel) Events() <-chan protocol.ConnectionEvent { return c.events }

func start(t *testing.T, interval time.Duration) (*Loop, *fakeEngine, *fakeChannel, context.Context) {
	engine := &fakeEngine{}
	channel := newFakeChannel()
	l := New(engine, channel, interval)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.True(t, errors.Is(<-done, context.Canceled))
	})
	return l, engine, channel, ctx
}

// read inspects the engine from inside the loop
func read(ctx context.Context, l *Loop, fn func()) {
	_ = l.Do(ctx, func() error { fn(); return nil })
}

func TestLoopDispatches(t *testing.T) {
	l, engine, channel, ctx := start(t, time.Hour)

	channel.events <- protocol.ConnectionEvent{Connected: true}
	channel.inbound <- &protocol.BlockAppend{Meta: protocol.Meta{Name: protocol.NotifyBlockAppend}}
	channel.events <- protocol.ConnectionEvent{Connected: false}

	require.Eventually(t, func() bool {
		var handled, connects, disconnects int
		read(ctx, l, func() {
			handled, connects, disconnects = len(engine.handled), engine.connects, engine.disconnects
		})
		return handled == 1 && connects == 1 && disconnects == 1
	}, time.Second, 5*time.Millisecond)

	var ticks int
	read(ctx, l, func() { ticks = engine.ticks })
	assert.Equal(t, 1, ticks, "connecting ticks right away")
}

func TestLoopTicks(t *testing.T) {
	l, engine, _, ctx := start(t, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		var ticks int
		read(ctx, l, func() { ticks = engine.ticks })
		return ticks >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestDoReturnsError(t *testing.T) {
	l, _, _, ctx := start(t, time.Hour)
	boom := errors.New("boom")
	err := l.Do(ctx, func() error { return boom })
	assert.True(t, errors.Is(err, boom))
	assert.NoError(t, l.Do(ctx, func() error { return nil }))
}

func TestDoAfterStop(t *testing.T) {
	engine := &fakeEngine{}
	l := New(engine, newFakeChannel(), time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Do(ctx, func() error { return nil })
	assert.True(t, errors.Is(err, ErrStopped))
}
