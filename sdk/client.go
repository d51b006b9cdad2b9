// Package sdk is the embeddable chat client. It composes the transport,
// event dispatch and local stores behind a single facade that UI layers can
// drive without touching the wire protocol.
package sdk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JavierZam/pasargamex-fe-sub000/internal/auth"
	"github.com/JavierZam/pasargamex-fe-sub000/internal/config"
	"github.com/JavierZam/pasargamex-fe-sub000/internal/dispatch"
	"github.com/JavierZam/pasargamex-fe-sub000/internal/rest"
	"github.com/JavierZam/pasargamex-fe-sub000/internal/store"
	"github.com/JavierZam/pasargamex-fe-sub000/internal/transport"
	"github.com/JavierZam/pasargamex-fe-sub000/internal/wire"
	"github.com/JavierZam/pasargamex-fe-sub000/pkg/logger"
)

const defaultCallbackQueueSize = 256

// Listener receives client lifecycle events. Methods are invoked from a
// single callback goroutine and must not block for long.
type Listener interface {
	// OnConnected fires after the websocket handshake completes.
	OnConnected()
	// OnDisconnected fires when the connection drops; the client may still be
	// reconnecting on its own.
	OnDisconnected(reason string)
	// OnConnectionLost fires when reconnection has been given up (rejected
	// credential or exhausted attempt budget). A new Connect call is required.
	OnConnectionLost(reason string)
	// OnError delivers non-fatal errors for display or logging.
	OnError(message string)
}

// socket is the slice of the transport the client drives. *transport.Conn
// satisfies it.
type socket interface {
	Connect(ctx context.Context, token string) error
	Disconnect()
	Send(v any) error
	JoinRoom(chatID string) error
	LeaveRoom(chatID string) error
	IsConnected() bool
	UserID() string
}

// submitter is the slice of the REST client used by the submission path.
// *rest.Client satisfies it.
type submitter interface {
	SendMessage(ctx context.Context, chatID string, req rest.SendMessageRequest) (wire.Message, error)
	History(ctx context.Context, chatID string, page, limit int) ([]wire.Message, error)
	ListChats(ctx context.Context) ([]wire.ChatRoom, error)
	Chat(ctx context.Context, chatID string) (wire.ChatRoom, error)
	Participants(ctx context.Context, chatID string) ([]wire.Participant, error)
}

// Client is the chat client facade.
//
// Every dependency is injected at construction; there is no package-level
// instance. Stores are owned by the client and exposed read-only through
// accessor methods.
type Client struct {
	cfg    config.Config
	tokens auth.TokenSource

	sock   socket
	api    submitter
	events *dispatch.Dispatcher

	messages *store.MessageStore
	chats    *store.ConversationList
	presence *store.PresenceTracker
	typist   *typist

	callbacks *queue

	mu          sync.Mutex
	listener    Listener
	localUserID string
}

// New builds a connected-capable client from configuration and a credential
// source.
func New(cfg config.Config, tokens auth.TokenSource) *Client {
	c := &Client{
		cfg:       cfg,
		tokens:    tokens,
		events:    dispatch.New(),
		messages:  store.NewMessageStore(),
		chats:     store.NewConversationList(""),
		presence:  store.NewPresenceTracker(cfg.PresenceCapacity),
		callbacks: newQueue(defaultCallbackQueueSize),
	}
	c.api = rest.New(cfg.APIBaseURL, tokens, cfg.SubmitTimeout)

	conn := transport.New(transport.Options{
		URL:              cfg.SocketURL,
		HandshakeTimeout: cfg.HandshakeTimeout,
		BackoffBase:      cfg.BackoffBase,
		BackoffCap:       cfg.BackoffCap,
		MaxAttempts:      cfg.MaxReconnectAttempts,
		Refresh:          tokens.Token,
	}, c.events.Dispatch)
	conn.OnStatus(c.onTransportStatus)
	conn.OnDown(c.onTransportDown)
	c.sock = conn

	c.typist = newTypist(c.sock)
	c.wireEvents()
	return c
}

// SetListener registers the listener for client events. The swap runs on the
// callback queue, so once SetListener returns no callback reaches the old
// listener.
func (c *Client) SetListener(l Listener) {
	_, _ = c.callbacks.call(func() (any, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.listener = l
		return nil, nil
	})
}

// Events exposes the typed event dispatcher for callers that want raw
// subscriptions alongside the stores.
func (c *Client) Events() *dispatch.Dispatcher {
	return c.events
}

// Connect fetches a credential and opens the websocket.
func (c *Client) Connect(ctx context.Context) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("sdk: fetch credential: %w", err)
	}
	return c.sock.Connect(ctx, token)
}

// Disconnect closes the websocket deliberately and silences the typists.
func (c *Client) Disconnect() {
	c.typist.Shutdown()
	c.sock.Disconnect()
}

// IsConnected reports the transport state.
func (c *Client) IsConnected() bool {
	return c.sock.IsConnected()
}

// RefreshChats reloads the authoritative conversation list.
func (c *Client) RefreshChats(ctx context.Context) error {
	rooms, err := c.api.ListChats(ctx)
	if err != nil {
		return err
	}
	c.chats.Replace(rooms)
	return nil
}

// Chats returns conversation summaries, most recent first.
func (c *Client) Chats() []wire.ChatRoom {
	return c.chats.List()
}

// Messages returns the reconciled message list for a conversation, oldest
// first.
func (c *Client) Messages(chatID string) []wire.Message {
	return c.messages.Get(chatID)
}

// TypingUsers returns who is typing in a conversation right now.
func (c *Client) TypingUsers(chatID string) []string {
	return c.presence.Typing(chatID)
}

// Online reports a user's last known presence.
func (c *Client) Online(userID string) bool {
	return c.presence.Online(userID)
}

// OpenChat makes a conversation the active one: joins its room, seeds its
// history and clears its unread counter. History loading failures leave the
// chat open with whatever messages are already local.
func (c *Client) OpenChat(ctx context.Context, chatID string) error {
	if err := c.sock.JoinRoom(chatID); err != nil {
		return fmt.Errorf("sdk: join %s: %w", chatID, err)
	}
	if _, known := c.chats.Get(chatID); !known {
		if room, err := c.api.Chat(ctx, chatID); err == nil {
			c.chats.ApplyUpdate(room)
		} else {
			logger.Debugf("sdk: chat summary for %s: %v", chatID, err)
		}
	}
	if room, ok := c.chats.Get(chatID); ok && len(room.Participants) == 0 {
		// Some summary payloads omit the roster. Fetch it separately so the
		// conversation list can attribute messages to display names.
		if participants, err := c.api.Participants(ctx, chatID); err == nil && len(participants) > 0 {
			c.chats.ApplyUpdate(wire.ChatRoom{ID: chatID, Participants: participants})
		} else if err != nil {
			logger.Debugf("sdk: participants for %s: %v", chatID, err)
		}
	}
	c.chats.Select(chatID)

	history, err := c.api.History(ctx, chatID, 1, 50)
	if err != nil {
		logger.Warnf("sdk: history for %s: %v", chatID, err)
		return nil
	}
	c.messages.Seed(chatID, history)
	return nil
}

// SelectChat marks a conversation as the one on screen without joining its
// room or loading history. Selection is what gates unread accounting.
func (c *Client) SelectChat(chatID string) {
	c.chats.Select(chatID)
}

// CloseChat leaves the conversation's room and deselects it.
func (c *Client) CloseChat(chatID string) {
	c.typist.Stop(chatID)
	if err := c.sock.LeaveRoom(chatID); err != nil {
		logger.Debugf("sdk: leave %s: %v", chatID, err)
	}
	if c.chats.Selected() == chatID {
		c.chats.Select("")
	}
}

// MarkRead tells the server a message has been viewed so the sender's copy
// can advance to read.
func (c *Client) MarkRead(chatID, messageID string) error {
	return c.sock.Send(wire.MarkMessageRead(chatID, messageID))
}

// StartTyping reports keystroke activity in a conversation. Call it on every
// keystroke; start frames are debounced and a stop frame follows inactivity.
func (c *Client) StartTyping(chatID string) {
	c.typist.Keystroke(chatID)
}

// StopTyping reports that composing ended (send pressed, input cleared).
func (c *Client) StopTyping(chatID string) {
	c.typist.Stop(chatID)
}

// wireEvents routes dispatcher events into the local stores.
func (c *Client) wireEvents() {
	c.events.OnMessage(func(ev wire.MessageEvent) {
		c.messages.Append(ev.Message.ChatID, ev.Message)
		c.chats.ApplyMessage(ev.Message)
	})
	c.events.OnStatus(func(ev wire.StatusEvent) {
		c.messages.AdvanceStatus(ev.MessageID, ev.Status)
	})
	c.events.OnReadReceipt(func(ev wire.ReadReceiptEvent) {
		// Our own receipt echo carries no new information; receipts from
		// others advance our outbound copies.
		if ev.ReaderID != "" && ev.ReaderID == c.localUser() {
			return
		}
		c.messages.AdvanceStatus(ev.MessageID, wire.StatusRead)
	})
	c.events.OnTyping(func(ev wire.TypingEvent) {
		if ev.UserID == c.localUser() {
			return
		}
		c.presence.ApplyTyping(ev.ChatID, ev.UserID, ev.Typing)
	})
	c.events.OnPresence(func(ev wire.PresenceEvent) {
		c.presence.ApplyPresence(ev.Presence)
	})
	c.events.OnChatUpdate(func(ev wire.ChatUpdateEvent) {
		switch {
		case ev.Room != nil:
			c.chats.ApplyUpdate(*ev.Room)
		case ev.MemberID != "":
			c.chats.ApplyMember(ev.ChatID, ev.MemberID, ev.MemberLeft)
			if ev.MemberLeft {
				c.presence.DropUser(ev.ChatID, ev.MemberID)
			}
		case ev.Offer != nil:
			meta := make(map[string]any, len(ev.Offer.Metadata)+1)
			for k, v := range ev.Offer.Metadata {
				meta[k] = v
			}
			if ev.Offer.Status != "" {
				meta["status"] = ev.Offer.Status
			}
			c.messages.AmendMetadata(ev.Offer.MessageID, meta)
		}
	})
	c.events.OnError(func(ev wire.ErrorEvent) {
		msg := ev.Message
		if msg == "" {
			msg = ev.Code
		}
		if ev.RateLimited {
			msg = "sending too fast, slow down"
		}
		c.notifyError(msg)
	})
}

func (c *Client) onTransportStatus(connected bool) {
	if connected {
		if id := c.sock.UserID(); id != "" {
			c.mu.Lock()
			c.localUserID = id
			c.mu.Unlock()
			c.chats.SetLocalUser(id)
		}
	}
	l := c.currentListener()
	if l == nil {
		return
	}
	if connected {
		_ = c.callbacks.do(func() { l.OnConnected() })
	} else {
		_ = c.callbacks.do(func() { l.OnDisconnected("connection closed") })
	}
}

func (c *Client) onTransportDown(err error) {
	l := c.currentListener()
	if l == nil {
		return
	}
	reason := "connection lost"
	if err != nil {
		reason = err.Error()
	}
	_ = c.callbacks.do(func() { l.OnConnectionLost(reason) })
}

func (c *Client) notifyError(message string) {
	if message == "" {
		return
	}
	l := c.currentListener()
	if l == nil {
		logger.Warnf("sdk: %s", message)
		return
	}
	_ = c.callbacks.do(func() { l.OnError(message) })
}

func (c *Client) currentListener() Listener {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listener
}

func (c *Client) localUser() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localUserID
}

// WaitForConnect polls until the transport reports open or the timeout
// expires. Convenience for CLI flows.
func (c *Client) WaitForConnect(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.sock.IsConnected() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return c.sock.IsConnected()
}
