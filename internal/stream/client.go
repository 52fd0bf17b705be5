// Package stream owns the live connection to the upstream aggregate feed:
// auth handshake, subscription management, keepalive, and the bounded
// reconnection policy. Each inbound bar is normalized and pushed into the
// market state store.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"scanner-systemv1/internal/model"
)

// State is the connection lifecycle state.
type State int32

const (
	Disconnected State = iota
	Connecting
	AuthPending
	Subscribed
	Reconnecting
	GivenUp
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case AuthPending:
		return "auth_pending"
	case Subscribed:
		return "subscribed"
	case Reconnecting:
		return "reconnecting"
	case GivenUp:
		return "given_up"
	}
	return "unknown"
}

var (
	// ErrAuthFailed is returned by Connect when the upstream rejects the
	// credential. Terminal for that connection attempt.
	ErrAuthFailed = errors.New("stream: authentication rejected")
	// ErrAuthTimeout is returned by Connect when no auth acknowledgment
	// arrives within the handshake timeout.
	ErrAuthTimeout = errors.New("stream: authentication timed out")
	// ErrGivenUp is surfaced via OnTerminal once the reconnection budget
	// is exhausted.
	ErrGivenUp = errors.New("stream: reconnect attempts exhausted")
	// ErrClosed is returned when the client was disconnected by its owner.
	ErrClosed = errors.New("stream: client closed")
)

const (
	defaultKeepAlive      = 30 * time.Second
	defaultReconnectDelay = 5 * time.Second
	defaultAuthTimeout    = 10 * time.Second
	defaultMaxReconnects  = 5
	defaultAggPrefix      = "AM"

	controlWriteTimeout = 5 * time.Second
)

// Config holds the client's connection parameters.
type Config struct {
	URL            string
	APIKey         string
	Tickers        []string
	AggPrefix      string        // aggregate subscription prefix, e.g. "AM"
	KeepAlive      time.Duration // ping interval
	ReconnectDelay time.Duration // fixed delay between reconnect attempts
	AuthTimeout    time.Duration // handshake acknowledgment timeout
	MaxReconnects  int           // reconnect attempt budget
}

// BarSink receives normalized bars. *state.Store satisfies it.
type BarSink interface {
	Update(ticker string, bar model.Bar)
}

// Client is the streaming ingestion client. One Client owns one logical
// connection; Disconnect is final.
type Client struct {
	cfg  Config
	sink BarSink

	// Optional hooks, set before Connect.
	OnBar       func(model.Bar) // after the sink update
	OnReconnect func()          // per transport loss
	OnDropped   func()          // per dropped event/frame
	OnTerminal  func(error)     // auth failure surfaced via Connect; budget exhaustion here

	rootCtx    context.Context
	rootCancel context.CancelFunc

	writeMu sync.Mutex // serializes JSON writes on the live conn

	mu            sync.Mutex
	st            State
	conn          *websocket.Conn
	tickers       map[string]struct{}
	attempts      int
	closed        bool
	keepaliveStop chan struct{}
}

// NewClient creates a client for the given sink. Zero config fields take
// defaults; the ticker list may be empty and grown later via AddTickers.
func NewClient(cfg Config, sink BarSink) *Client {
	if cfg.AggPrefix == "" {
		cfg.AggPrefix = defaultAggPrefix
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = defaultKeepAlive
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = defaultAuthTimeout
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = defaultMaxReconnects
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:        cfg,
		sink:       sink,
		rootCtx:    ctx,
		rootCancel: cancel,
		st:         Disconnected,
		tickers:    make(map[string]struct{}, len(cfg.Tickers)),
	}
	for _, t := range cfg.Tickers {
		c.tickers[t] = struct{}{}
	}
	return c
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// Connect opens the transport, authenticates, subscribes the configured
// tickers and starts the read and keepalive loops. Auth failure and handshake
// timeout are terminal for this attempt and returned without retry.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return errors.New("stream: already connected")
	}
	c.st = Connecting
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(c.cfg.URL, nil)
	if err != nil {
		c.setState(Disconnected)
		return fmt.Errorf("stream: dial %s: %w", c.cfg.URL, err)
	}

	c.setState(AuthPending)
	if err := c.authenticate(conn); err != nil {
		conn.Close()
		c.setState(Disconnected)
		return err
	}

	if err := c.writeAction(conn, "subscribe", c.snapshotTickers()); err != nil {
		conn.Close()
		c.setState(Disconnected)
		return fmt.Errorf("stream: subscribe: %w", err)
	}

	stop := make(chan struct{})
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.st = Subscribed
	c.attempts = 0
	c.keepaliveStop = stop
	c.mu.Unlock()

	go c.readLoop(conn)
	go c.keepaliveLoop(conn, stop)

	slog.Info("[stream] connected and subscribed", "tickers", len(c.snapshotTickers()))
	return nil
}

// Disconnect stops the keepalive probe and any pending reconnect, and closes
// the transport if open. Idempotent; the client never resurrects after it.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	if c.keepaliveStop != nil {
		close(c.keepaliveStop)
		c.keepaliveStop = nil
	}
	c.st = Disconnected
	c.mu.Unlock()

	c.rootCancel()
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(controlWriteTimeout))
		conn.Close()
	}
	slog.Info("[stream] disconnected")
}

// AddTickers subscribes additional tickers on an already-subscribed
// connection. A diagnostic no-op otherwise.
func (c *Client) AddTickers(tickers []string) error {
	c.mu.Lock()
	if c.st != Subscribed || c.conn == nil {
		c.mu.Unlock()
		slog.Warn("[stream] not subscribed, ignoring ticker add", "tickers", tickers)
		return nil
	}
	conn := c.conn
	added := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if _, ok := c.tickers[t]; !ok {
			c.tickers[t] = struct{}{}
			added = append(added, t)
		}
	}
	c.mu.Unlock()

	if len(added) == 0 {
		return nil
	}
	return c.writeAction(conn, "subscribe", added)
}

// RemoveTickers unsubscribes tickers on an already-subscribed connection.
// A diagnostic no-op otherwise.
func (c *Client) RemoveTickers(tickers []string) error {
	c.mu.Lock()
	if c.st != Subscribed || c.conn == nil {
		c.mu.Unlock()
		slog.Warn("[stream] not subscribed, ignoring ticker remove", "tickers", tickers)
		return nil
	}
	conn := c.conn
	removed := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if _, ok := c.tickers[t]; ok {
			delete(c.tickers, t)
			removed = append(removed, t)
		}
	}
	c.mu.Unlock()

	if len(removed) == 0 {
		return nil
	}
	return c.writeAction(conn, "unsubscribe", removed)
}

// authenticate sends the credential and waits for an explicit acknowledgment
// within the handshake timeout. Non-status events arriving first are skipped.
func (c *Client) authenticate(conn *websocket.Conn) error {
	if err := conn.WriteJSON(actionFrame{Action: "auth", Params: c.cfg.APIKey}); err != nil {
		return fmt.Errorf("stream: send auth: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(c.cfg.AuthTimeout))
	defer conn.SetReadDeadline(time.Time{})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				return ErrAuthTimeout
			}
			return fmt.Errorf("stream: auth read: %w", err)
		}
		events, err := parseFrame(data)
		if err != nil {
			slog.Warn("[stream] dropping malformed frame during handshake", "err", err)
			continue
		}
		for _, ev := range events {
			if ev.Ev != "status" {
				continue
			}
			switch ev.Status {
			case statusAuthSuccess:
				return nil
			case statusAuthFailed:
				return fmt.Errorf("%w: %s", ErrAuthFailed, ev.Message)
			}
		}
	}
}

// writeAction sends a subscribe/unsubscribe frame for the given tickers.
func (c *Client) writeAction(conn *websocket.Conn, action string, tickers []string) error {
	if len(tickers) == 0 {
		return nil
	}
	params := make([]string, len(tickers))
	for i, t := range tickers {
		params[i] = c.cfg.AggPrefix + "." + t
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(actionFrame{Action: action, Params: strings.Join(params, ",")})
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.transportLost(conn, err)
			return
		}
		c.handleMessage(data)
	}
}

// handleMessage parses one inbound frame and applies each recognized event.
// Protocol errors drop the offending message; data-quality failures drop the
// single event. Neither is fatal to the stream.
func (c *Client) handleMessage(data []byte) {
	events, err := parseFrame(data)
	if err != nil {
		slog.Warn("[stream] dropping malformed frame", "err", err)
		c.dropped()
		return
	}
	for _, ev := range events {
		switch ev.Ev {
		case "status":
			slog.Debug("[stream] status event", "status", ev.Status, "message", ev.Message)
		case c.cfg.AggPrefix:
			bar, ok := normalizeAggregate(ev)
			if !ok {
				slog.Warn("[stream] dropping incomplete aggregate event", "sym", ev.Sym)
				c.dropped()
				continue
			}
			c.sink.Update(bar.Ticker, bar)
			if c.OnBar != nil {
				c.OnBar(bar)
			}
		default:
			// Unrecognized event types are ignored without error.
		}
	}
}

func (c *Client) keepaliveLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			err := conn.WriteControl(websocket.PingMessage, []byte("ping"),
				time.Now().Add(controlWriteTimeout))
			if err != nil {
				slog.Warn("[stream] keepalive write failed", "err", err)
				c.transportLost(conn, err)
				return
			}
		}
	}
}

// transportLost handles an unexpected close of the live connection. The first
// caller for a given conn wins; it stops the keepalive probe and starts the
// reconnect loop.
func (c *Client) transportLost(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.st = Reconnecting
	if c.keepaliveStop != nil {
		close(c.keepaliveStop)
		c.keepaliveStop = nil
	}
	c.mu.Unlock()

	conn.Close()
	slog.Warn("[stream] transport closed, reconnecting", "err", err)
	if c.OnReconnect != nil {
		c.OnReconnect()
	}
	go c.reconnectLoop()
}

// reconnectLoop retries Connect on a fixed delay until it succeeds, the
// budget is exhausted, or the client is closed. A timed-out auth handshake
// counts against the budget like any other failed attempt.
func (c *Client) reconnectLoop() {
	var lastErr error
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		if c.attempts >= c.cfg.MaxReconnects {
			c.st = GivenUp
			c.mu.Unlock()
			err := fmt.Errorf("%w after %d attempts: %v", ErrGivenUp, c.cfg.MaxReconnects, lastErr)
			slog.Error("[stream] giving up", "err", err)
			if c.OnTerminal != nil {
				c.OnTerminal(err)
			}
			return
		}
		c.attempts++
		attempt := c.attempts
		c.mu.Unlock()

		select {
		case <-time.After(c.cfg.ReconnectDelay):
		case <-c.rootCtx.Done():
			return
		}

		err := c.Connect()
		if err == nil {
			return
		}
		if errors.Is(err, ErrClosed) {
			return
		}
		lastErr = err
		slog.Warn("[stream] reconnect attempt failed",
			"attempt", attempt, "max", c.cfg.MaxReconnects, "err", err)
	}
}

func (c *Client) snapshotTickers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.tickers))
	for t := range c.tickers {
		out = append(out, t)
	}
	return out
}

func (c *Client) setState(st State) {
	c.mu.Lock()
	c.st = st
	c.mu.Unlock()
}

func (c *Client) dropped() {
	if c.OnDropped != nil {
		c.OnDropped()
	}
}
