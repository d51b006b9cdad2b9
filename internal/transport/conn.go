// Package transport owns the persistent connection to the chat backend.
//
// A single websocket is shared by all conversations; frames carry a chat id
// and room membership is controlled with explicit join/leave frames. The
// connection recovers from abnormal closes with capped exponential backoff and
// re-joins its rooms after every reconnect.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/JavierZam/pasargamex-fe-sub000/internal/auth"
	"github.com/JavierZam/pasargamex-fe-sub000/internal/wire"
	"github.com/JavierZam/pasargamex-fe-sub000/pkg/logger"
)

var (
	// ErrNotConnected is returned by Send when no connection is open.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrHandshakeTimeout is returned when no auth acknowledgment arrives in time.
	ErrHandshakeTimeout = errors.New("transport: handshake timeout")
	// ErrAuthRejected is returned when the server refuses the credential.
	// It is terminal: the client must obtain a new credential before retrying.
	ErrAuthRejected = errors.New("transport: authentication rejected")
	// ErrRetriesExhausted is reported after the automatic reconnect budget is
	// spent. Further attempts require an explicit Connect call.
	ErrRetriesExhausted = errors.New("transport: reconnect attempts exhausted")
)

const (
	defaultPingInterval = 30 * time.Second
	writeTimeout        = 10 * time.Second
)

// Options configures a Conn.
type Options struct {
	// URL is the websocket endpoint, without the token query parameter.
	URL string
	// HandshakeTimeout bounds the dial plus the wait for the auth ack.
	HandshakeTimeout time.Duration
	// BackoffBase and BackoffCap shape the reconnect delay curve.
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// MaxAttempts is the automatic reconnect budget.
	MaxAttempts int
	// PingInterval is the client keepalive period. Zero selects the default.
	PingInterval time.Duration
	// Refresh, when set, supplies a fresh credential before each reconnect so
	// a long outage does not resume with an expired token.
	Refresh func(ctx context.Context) (string, error)
}

// Conn is a reconnecting websocket connection.
//
// All exported methods are safe for concurrent use.
type Conn struct {
	opts Options

	onFrame  func(raw []byte)
	statusMu sync.Mutex
	onStatus []func(connected bool)
	onDown   []func(err error)

	dialMu  sync.Mutex
	writeMu sync.Mutex

	mu             sync.Mutex
	ws             *websocket.Conn
	token          string
	userID         string
	connected      bool
	closing        bool
	terminal       bool
	attempts       int
	reconnectTimer *time.Timer
	genDone        chan struct{}
	joined         map[string]struct{}
}

// New builds a Conn. The frame callback is invoked from the read loop in
// arrival order (FIFO per connection).
func New(opts Options, onFrame func(raw []byte)) *Conn {
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	return &Conn{
		opts:    opts,
		onFrame: onFrame,
		joined:  make(map[string]struct{}),
	}
}

// OnStatus registers a connection-status subscriber. Subscribers run in
// registration order.
func (c *Conn) OnStatus(fn func(connected bool)) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.onStatus = append(c.onStatus, fn)
}

// OnDown registers a subscriber for terminal failures (auth rejection or an
// exhausted reconnect budget).
func (c *Conn) OnDown(fn func(err error)) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.onDown = append(c.onDown, fn)
}

// Connect opens the connection with the given credential.
//
// Calling Connect while a connection is already open is a no-op success. A
// malformed credential fails synchronously; a missing auth acknowledgment
// fails after the handshake timeout.
func (c *Conn) Connect(ctx context.Context, token string) error {
	if err := auth.ValidateFormat(token); err != nil {
		return err
	}

	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.token = token
	c.closing = false
	c.terminal = false
	c.attempts = 0
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.mu.Unlock()

	return c.dial(ctx)
}

func (c *Conn) dial(ctx context.Context) error {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	token := c.token
	c.mu.Unlock()

	endpoint, err := c.endpoint(token)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		c.notifyStatus(false)
		return fmt.Errorf("transport: dial: %w", err)
	}

	if err := c.awaitAuth(ws); err != nil {
		_ = ws.Close()
		c.notifyStatus(false)
		return err
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.ws = ws
	c.connected = true
	c.attempts = 0
	c.genDone = done
	rooms := make([]string, 0, len(c.joined))
	for id := range c.joined {
		rooms = append(rooms, id)
	}
	c.mu.Unlock()

	c.notifyStatus(true)

	// Membership does not survive a server-side close; restore it before any
	// new frames are consumed.
	for _, id := range rooms {
		if err := c.Send(wire.JoinChatRoom(id)); err != nil {
			logger.Warnf("transport: re-join %s: %v", id, err)
		}
	}

	go c.readPump(ws, done)
	go c.pingLoop(done)
	return nil
}

func (c *Conn) endpoint(token string) (string, error) {
	parsed, err := url.Parse(c.opts.URL)
	if err != nil {
		return "", fmt.Errorf("transport: parse url: %w", err)
	}
	query := parsed.Query()
	query.Set("token", token)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// awaitAuth reads frames until the auth acknowledgment arrives or the
// handshake deadline passes. Non-auth frames sent before the ack are dropped.
func (c *Conn) awaitAuth(ws *websocket.Conn) error {
	deadline := time.Now().Add(c.opts.HandshakeTimeout)
	if err := ws.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("transport: set handshake deadline: %w", err)
	}
	defer func() {
		_ = ws.SetReadDeadline(time.Time{})
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if netTimeout(err) {
				return ErrHandshakeTimeout
			}
			return fmt.Errorf("transport: handshake read: %w", err)
		}
		ev, err := wire.DecodeFrame(raw)
		if err != nil {
			logger.Warnf("transport: malformed handshake frame dropped: %v", err)
			continue
		}
		switch ev := ev.(type) {
		case wire.AuthEvent:
			if !ev.OK {
				if ev.Message != "" {
					return fmt.Errorf("%w: %s", ErrAuthRejected, ev.Message)
				}
				return ErrAuthRejected
			}
			if ev.UserID != "" {
				c.mu.Lock()
				c.userID = ev.UserID
				c.mu.Unlock()
			}
			return nil
		default:
			logger.Debugf("transport: frame before auth ack dropped")
		}
	}
}

func netTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

func (c *Conn) readPump(ws *websocket.Conn, done chan struct{}) {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			c.handleClosed(done, err)
			return
		}

		var probe struct {
			Type wire.FrameType `json:"type"`
		}
		if err := json.Unmarshal(raw, &probe); err == nil {
			switch probe.Type {
			case wire.FramePing:
				if err := c.Send(wire.Pong()); err != nil {
					logger.Debugf("transport: pong: %v", err)
				}
				continue
			case wire.FramePong:
				continue
			}
		}

		if c.onFrame != nil {
			c.onFrame(raw)
		}
	}
}

func (c *Conn) pingLoop(done chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.Send(wire.Ping()); err != nil {
				return
			}
		}
	}
}

func (c *Conn) handleClosed(done chan struct{}, err error) {
	c.mu.Lock()
	if c.genDone != done {
		// A newer connection superseded this pump; its state is not ours to
		// tear down.
		c.mu.Unlock()
		return
	}
	close(c.genDone)
	c.genDone = nil
	wasConnected := c.connected
	c.connected = false
	c.ws = nil
	closing := c.closing
	c.mu.Unlock()

	if wasConnected {
		c.notifyStatus(false)
	}
	if closing || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		logger.Debugf("transport: connection closed: %v", err)
		return
	}

	logger.Warnf("transport: connection lost: %v", err)
	c.scheduleReconnect()
}

// scheduleReconnect arms the single reconnect timer. At most one timer is ever
// pending; once the attempt budget is spent the failure becomes terminal.
func (c *Conn) scheduleReconnect() {
	c.mu.Lock()
	if c.reconnectTimer != nil || c.closing || c.terminal || c.connected {
		c.mu.Unlock()
		return
	}
	c.attempts++
	if c.attempts > c.opts.MaxAttempts {
		c.terminal = true
		c.mu.Unlock()
		c.notifyDown(ErrRetriesExhausted)
		return
	}
	attempt := c.attempts
	delay := Delay(c.opts.BackoffBase, c.opts.BackoffCap, attempt)
	c.reconnectTimer = time.AfterFunc(delay, c.retry)
	c.mu.Unlock()

	logger.Infof("transport: reconnect attempt %d in %s", attempt, delay)
}

func (c *Conn) retry() {
	c.mu.Lock()
	c.reconnectTimer = nil
	if c.closing || c.terminal {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*c.opts.HandshakeTimeout)
	defer cancel()

	if c.opts.Refresh != nil {
		if token, err := c.opts.Refresh(ctx); err == nil && auth.ValidateFormat(token) == nil {
			c.mu.Lock()
			c.token = token
			c.mu.Unlock()
		} else if err != nil {
			logger.Warnf("transport: credential refresh before reconnect: %v", err)
		}
	}

	err := c.dial(ctx)
	if err == nil {
		return
	}
	if errors.Is(err, ErrAuthRejected) {
		c.mu.Lock()
		c.terminal = true
		c.mu.Unlock()
		c.notifyDown(err)
		return
	}
	c.scheduleReconnect()
}

// Disconnect closes the connection deliberately. No reconnect is scheduled.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.closing = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	ws := c.ws
	c.mu.Unlock()

	if ws == nil {
		return
	}
	c.writeMu.Lock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"))
	c.writeMu.Unlock()
	_ = ws.Close()
}

// Send marshals a frame and writes it to the connection.
func (c *Conn) Send(v any) error {
	c.mu.Lock()
	ws := c.ws
	connected := c.connected
	c.mu.Unlock()

	if !connected || ws == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return ws.WriteJSON(v)
}

// JoinRoom subscribes to a conversation's events. Membership is remembered and
// restored after reconnects; joining twice is harmless.
func (c *Conn) JoinRoom(chatID string) error {
	c.mu.Lock()
	c.joined[chatID] = struct{}{}
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.Send(wire.JoinChatRoom(chatID))
}

// LeaveRoom unsubscribes from a conversation's events.
func (c *Conn) LeaveRoom(chatID string) error {
	c.mu.Lock()
	delete(c.joined, chatID)
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.Send(wire.LeaveChatRoom(chatID))
}

// UserID returns the identity the server acknowledged during the auth
// handshake, empty before the first successful connect.
func (c *Conn) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// IsConnected reports whether the connection is currently open.
func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// WaitForConnect waits for the connection to report open or times out.
func (c *Conn) WaitForConnect(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.IsConnected() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return c.IsConnected()
}

func (c *Conn) notifyStatus(connected bool) {
	c.statusMu.Lock()
	subs := make([]func(bool), len(c.onStatus))
	copy(subs, c.onStatus)
	c.statusMu.Unlock()
	for _, fn := range subs {
		fn(connected)
	}
}

func (c *Conn) notifyDown(err error) {
	c.statusMu.Lock()
	subs := make([]func(error), len(c.onDown))
	copy(subs, c.onDown)
	c.statusMu.Unlock()
	for _, fn := range subs {
		fn(err)
	}
}
