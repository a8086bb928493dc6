// Package stream provides the event sources feeding the engine: a websocket
// client for a live upstream feed and a local simulator.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/edgeview/internal/events"
	"github.com/signalsfoundry/edgeview/internal/logging"
)

// ErrInvalidURL is returned for upstream URLs that are not ws:// or wss://.
var ErrInvalidURL = errors.New("invalid upstream url")

// ClientConfig configures the upstream websocket client.
type ClientConfig struct {
	URL    string
	Header http.Header

	HandshakeTimeout time.Duration
	// InitialBackoff and MaxBackoff bound the reconnect delay.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxMessageBytes caps a single inbound envelope.
	MaxMessageBytes int64
}

func (c *ClientConfig) applyDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 1 << 20
	}
}

// Client is an events.Source reading JSON envelopes from a websocket.
// Dropped connections are re-established with exponential backoff until the
// subscription is closed.
type Client struct {
	cfg    ClientConfig
	dialer *websocket.Dialer
	log    logging.Logger
}

// NewClient validates cfg and returns a client.
func NewClient(cfg ClientConfig, log logging.Logger) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	cfg.applyDefaults()
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		log: logging.OrNoop(log).With(
			logging.Component("stream.client"),
			logging.String("url", u.Redacted()),
		),
	}, nil
}

// Subscription is a live upstream connection. Close stops reconnecting,
// closes the socket and waits for the reader to exit.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	conn     *websocket.Conn
	connects int
	closed   bool
}

// Connects returns how many times a connection was established.
func (s *Subscription) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

func (s *Subscription) setConn(c *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed && c != nil {
		return false
	}
	s.conn = c
	if c != nil {
		s.connects++
	}
	return true
}

// Close implements io.Closer.
func (s *Subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		// Unblocks the reader; it closes the socket again on its way out.
		_ = conn.Close()
	}
	<-s.done
	return nil
}

// Subscribe connects in the background and forwards every text message to
// sink.SubmitRaw until the subscription is closed or ctx is cancelled.
func (c *Client) Subscribe(ctx context.Context, sink events.Sink) (io.Closer, error) {
	if sink == nil {
		return nil, errors.New("subscribe: nil sink")
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}
	go c.run(ctx, sink, sub)
	return sub, nil
}

func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	return b
}

func (c *Client) run(ctx context.Context, sink events.Sink, sub *Subscription) {
	defer close(sub.done)
	for {
		conn, err := backoff.Retry(ctx, func() (*websocket.Conn, error) {
			return c.dial(ctx)
		},
			backoff.WithBackOff(c.newBackOff()),
			backoff.WithMaxElapsedTime(0),
			backoff.WithNotify(func(err error, next time.Duration) {
				c.log.Warn(ctx, "upstream connect failed", logging.Err(err), logging.Duration("retry_in", next))
			}),
		)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Error(ctx, "giving up on upstream", logging.Err(err))
			}
			return
		}
		if !sub.setConn(conn) {
			_ = conn.Close()
			return
		}
		c.log.Info(ctx, "upstream connected")

		err = c.read(ctx, conn, sink)
		sub.setConn(nil)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		c.log.Warn(ctx, "upstream disconnected", logging.Err(err))
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		// A client error other than rate limiting will not fix itself.
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(fmt.Errorf("upstream handshake: %s: %w", resp.Status, err))
		}
		return nil, err
	}
	conn.SetReadLimit(c.cfg.MaxMessageBytes)
	return conn, nil
}

func (c *Client) read(ctx context.Context, conn *websocket.Conn, sink events.Sink) error {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := sink.SubmitRaw(ctx, data); err != nil {
			c.log.Debug(ctx, "upstream event rejected", logging.Err(err))
		}
	}
}
