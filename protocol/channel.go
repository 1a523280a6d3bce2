package protocol

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var ErrNotConnected = errors.New("not connected")

// Sender is the outbound half of a channel
type Sender interface {
	Send(req Request) error
	Connected() bool
}

// Channel is a persistent message connection to a node. It may deliver inbound messages
// duplicated or out of order.
type Channel interface {
	Sender
	Inbound() <-chan Message
	Events() <-chan ConnectionEvent
}

// NewRequestID returns a random correlation id
func NewRequestID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

type WebsocketConfig struct {
	URL          string
	WriteTimeout time.Duration
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
	InboundSize  int
}

// WebsocketChannel dials a node over a websocket and redials with backoff when it drops
type WebsocketChannel struct {
	config WebsocketConfig
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn

	inbound chan Message
	events  chan ConnectionEvent
}

func NewWebsocketChannel(config WebsocketConfig) *WebsocketChannel {
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}
	if config.MinBackoff <= 0 {
		config.MinBackoff = time.Second
	}
	if config.MaxBackoff < config.MinBackoff {
		config.MaxBackoff = 30 * time.Second
	}
	if config.InboundSize <= 0 {
		config.InboundSize = 256
	}
	return &WebsocketChannel{
		config:  config,
		dialer:  websocket.DefaultDialer,
		inbound: make(chan Message, config.InboundSize),
		events:  make(chan ConnectionEvent, 4),
	}
}

func (c *WebsocketChannel) Inbound() <-chan Message { return c.inbound }

func (c *WebsocketChannel) Events() <-chan ConnectionEvent { return c.events }

func (c *WebsocketChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *WebsocketChannel) Send(req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return errors.WithStack(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err = c.conn.WriteMessage(websocket.TextMessage, data)
	return errors.Wrapf(err, "sending %s", ActionOf(req))
}

// Run keeps the connection up until ctx is done
func (c *WebsocketChannel) Run(ctx context.Context) {
	backoff := c.config.MinBackoff
	for ctx.Err() == nil {
		conn, _, err := c.dialer.DialContext(ctx, c.config.URL, nil)
		if err != nil {
			logrus.Warnf("dial %s: %v (retry in %s)", c.config.URL, err, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.config.MaxBackoff {
				backoff = c.config.MaxBackoff
			}
			continue
		}

		backoff = c.config.MinBackoff
		logrus.Infof("connected to %s", c.config.URL)
		c.setConn(conn)
		c.emit(ConnectionEvent{Connected: true})

		c.readLoop(ctx, conn)

		c.setConn(nil)
		conn.Close()
		c.emit(ConnectionEvent{Connected: false})
		logrus.Infof("disconnected from %s", c.config.URL)
	}
}

func (c *WebsocketChannel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *WebsocketChannel) emit(ev ConnectionEvent) {
	select {
	case c.events <- ev:
	default:
		logrus.Warnf("dropping connection event %+v", ev)
	}
}

func (c *WebsocketChannel) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logrus.Warnf("read: %v", err)
			}
			return
		}

		msg, err := Decode(data)
		if err != nil {
			logrus.Warnf("dropping inbound message: %v", err)
			continue
		}

		select {
		case c.inbound <- msg:
		case <-ctx.Done():
			return
		}
	}
}
