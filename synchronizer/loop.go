package synchronizer

import (
	"context"
	"time"

	"github.com/OdyseeTeam/lattice-wallet/protocol"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

// Engine is the replica state the loop drives
type Engine interface {
	Tick(now time.Time)
	Handle(msg protocol.Message)
	OnConnect()
	OnDisconnect()
}

type op struct {
	fn     func() error
	result chan error
}

// Loop is the only goroutine that touches the engine. Ticks, inbound messages, connection
// events and caller operations are serialized through it.
type Loop struct {
	engine   Engine
	channel  protocol.Channel
	interval time.Duration
	ops      chan op
}

var ErrStopped = errors.New("synchronizer stopped")

func New(engine Engine, channel protocol.Channel, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = time.Second
	}
	return &Loop{engine: engine, channel: channel, interval: interval, ops: make(chan op)}
}

// Run processes events until ctx is done or the channel closes its inbound stream
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	inbound := l.channel.Inbound()
	events := l.channel.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case now := <-ticker.C:
			l.engine.Tick(now)

		case msg, ok := <-inbound:
			if !ok {
				logrus.Infof("inbound stream closed")
				return nil
			}
			l.engine.Handle(msg)

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Connected {
				logrus.Infof("connected to node")
				l.engine.OnConnect()
				l.engine.Tick(time.Now())
			} else {
				logrus.Warnf("lost connection to node")
				l.engine.OnDisconnect()
			}

		case o := <-l.ops:
			o.result <- o.fn()
		}
	}
}

// Do runs fn on the loop and returns its error
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	o := op{fn: fn, result: make(chan error, 1)}
	select {
	case l.ops <- o:
	case <-ctx.Done():
		return errors.Mark(ctx.Err(), ErrStopped)
	}
	select {
	case err := <-o.result:
		return err
	case <-ctx.Done():
		return errors.Mark(ctx.Err(), ErrStopped)
	}
}
