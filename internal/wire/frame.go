package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// FrameType is the discriminator carried by every frame on the persistent
// connection.
type FrameType string

const (
	FrameAuthSuccess      FrameType = "auth_success"
	FrameAuthError        FrameType = "auth_error"
	FrameNewMessage       FrameType = "new_message"
	FrameMessageLegacy    FrameType = "message"
	FrameReadReceipt      FrameType = "message_read_receipt"
	FrameMessageSent      FrameType = "message_sent"
	FrameMessageDelivered FrameType = "message_delivered"
	FrameStatusUpdate     FrameType = "message_status_update"
	FramePresence         FrameType = "user_presence"
	FrameTyping           FrameType = "typing_indicator"
	FrameChatUpdated      FrameType = "chat_updated"
	FrameUserJoined       FrameType = "user_joined"
	FrameUserLeft         FrameType = "user_left"
	FrameOfferUpdate      FrameType = "offer_update"
	FramePaymentStatus    FrameType = "payment_status_update"
	FrameGroupChatCreated FrameType = "group_chat_created"
	FramePing             FrameType = "ping"
	FramePong             FrameType = "pong"
	FrameError            FrameType = "error"
	FrameRateLimit        FrameType = "rate_limit_exceeded"
)

// Event is the decoded form of an inbound frame.
//
// The concrete types below form a closed set over the known frame types; a
// frame with an unrecognized discriminator decodes to UnknownEvent so the
// connection survives server-side protocol evolution.
type Event interface {
	frameType() FrameType
}

// AuthEvent reports the outcome of the connection handshake.
type AuthEvent struct {
	OK      bool
	UserID  string
	Message string
}

// MessageEvent carries a server-confirmed chat message.
type MessageEvent struct {
	Message Message
}

// ReadReceiptEvent signals that a user has viewed a specific message.
type ReadReceiptEvent struct {
	ChatID    string
	MessageID string
	ReaderID  string
}

// StatusEvent advances the delivery status of a message.
type StatusEvent struct {
	ChatID    string
	MessageID string
	Status    Status
}

// PresenceEvent carries a user's current presence record.
type PresenceEvent struct {
	Presence Presence
}

// TypingEvent signals that a user started or stopped typing in a chat.
type TypingEvent struct {
	ChatID string
	UserID string
	Typing bool
}

// ChatUpdateEvent resyncs a conversation summary or membership.
//
// Room is set for chat_updated and group_chat_created frames; MemberID is set
// for user_joined/user_left; Offer is set for offer_update and
// payment_status_update frames.
type ChatUpdateEvent struct {
	ChatID     string
	Room       *ChatRoom
	MemberID   string
	MemberLeft bool
	Offer      *OfferUpdate
}

// OfferUpdate describes a change to a payment offer message.
type OfferUpdate struct {
	MessageID string         `json:"message_id"`
	Status    string         `json:"status"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ErrorEvent is a server-signaled error or rate limit.
type ErrorEvent struct {
	Code        string
	Message     string
	RateLimited bool
}

// PingEvent is a server keepalive probe (or its answer).
type PingEvent struct {
	Pong bool
}

// UnknownEvent carries a frame whose type is not part of the known set.
type UnknownEvent struct {
	Type FrameType
	Raw  json.RawMessage
}

func (AuthEvent) frameType() FrameType        { return FrameAuthSuccess }
func (MessageEvent) frameType() FrameType     { return FrameNewMessage }
func (ReadReceiptEvent) frameType() FrameType { return FrameReadReceipt }
func (StatusEvent) frameType() FrameType      { return FrameStatusUpdate }
func (PresenceEvent) frameType() FrameType    { return FramePresence }
func (TypingEvent) frameType() FrameType      { return FrameTyping }
func (ChatUpdateEvent) frameType() FrameType  { return FrameChatUpdated }
func (ErrorEvent) frameType() FrameType       { return FrameError }
func (PingEvent) frameType() FrameType        { return FramePing }
func (e UnknownEvent) frameType() FrameType   { return e.Type }

// envelope is the outer frame shape. Payloads have been observed both nested
// under "data" and inlined next to "type"; payload() returns whichever is
// populated.
type envelope struct {
	Type FrameType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`

	raw json.RawMessage
}

func (e *envelope) payload() json.RawMessage {
	if len(e.Data) > 0 && string(e.Data) != "null" {
		return e.Data
	}
	return e.raw
}

// DecodeFrame parses a raw inbound frame into its typed Event.
func DecodeFrame(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode frame envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("frame missing type discriminator")
	}
	env.raw = raw

	switch env.Type {
	case FrameAuthSuccess, FrameAuthError:
		return decodeAuth(env)
	case FrameNewMessage, FrameMessageLegacy:
		return decodeMessage(env)
	case FrameReadReceipt:
		return decodeReadReceipt(env)
	case FrameMessageSent:
		return decodeStatus(env, StatusSent)
	case FrameMessageDelivered:
		return decodeStatus(env, StatusDelivered)
	case FrameStatusUpdate:
		return decodeStatus(env, "")
	case FramePresence:
		return decodePresence(env)
	case FrameTyping:
		return decodeTyping(env)
	case FrameChatUpdated, FrameGroupChatCreated:
		return decodeChatUpdate(env)
	case FrameUserJoined:
		return decodeMember(env, false)
	case FrameUserLeft:
		return decodeMember(env, true)
	case FrameOfferUpdate, FramePaymentStatus:
		return decodeOffer(env)
	case FramePing:
		return PingEvent{}, nil
	case FramePong:
		return PingEvent{Pong: true}, nil
	case FrameError:
		return decodeError(env, false)
	case FrameRateLimit:
		return decodeError(env, true)
	default:
		return UnknownEvent{Type: env.Type, Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

func decodeAuth(env envelope) (Event, error) {
	var p struct {
		UserID  string `json:"user_id"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(env.payload(), &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	ev := AuthEvent{OK: env.Type == FrameAuthSuccess, UserID: p.UserID, Message: p.Message}
	if ev.Message == "" {
		ev.Message = p.Error
	}
	return ev, nil
}

func decodeMessage(env envelope) (Event, error) {
	var msg Message
	if err := json.Unmarshal(env.payload(), &msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	if msg.ID == "" && msg.Content == "" {
		// Some backends nest the message one level deeper.
		var p struct {
			Message *Message `json:"message"`
		}
		if err := json.Unmarshal(env.payload(), &p); err == nil && p.Message != nil {
			msg = *p.Message
		}
	}
	if string(msg.Kind) == string(env.Type) {
		// Inline payloads share the top-level object with the frame envelope,
		// so the "type" key holds the frame discriminator, not the kind.
		msg.Kind = ""
	}
	if msg.Kind == "" {
		msg.Kind = KindText
	}
	return MessageEvent{Message: msg}, nil
}

func decodeReadReceipt(env envelope) (Event, error) {
	var p struct {
		ChatID    string `json:"chat_id"`
		MessageID string `json:"message_id"`
		ReaderID  string `json:"user_id"`
	}
	if err := json.Unmarshal(env.payload(), &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return ReadReceiptEvent{ChatID: p.ChatID, MessageID: p.MessageID, ReaderID: p.ReaderID}, nil
}

func decodeStatus(env envelope, implied Status) (Event, error) {
	var p struct {
		ChatID    string `json:"chat_id"`
		MessageID string `json:"message_id"`
		Status    Status `json:"status"`
	}
	if err := json.Unmarshal(env.payload(), &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	status := p.Status
	if implied != "" {
		status = implied
	}
	if status == "" {
		return nil, fmt.Errorf("decode %s: missing status", env.Type)
	}
	return StatusEvent{ChatID: p.ChatID, MessageID: p.MessageID, Status: status}, nil
}

func decodePresence(env envelope) (Event, error) {
	var p struct {
		UserID   string     `json:"user_id"`
		Online   bool       `json:"is_online"`
		LastSeen *time.Time `json:"last_seen"`
	}
	if err := json.Unmarshal(env.payload(), &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	pr := Presence{UserID: p.UserID, Online: p.Online}
	if p.LastSeen != nil {
		pr.LastSeen = *p.LastSeen
	}
	return PresenceEvent{Presence: pr}, nil
}

func decodeTyping(env envelope) (Event, error) {
	var p struct {
		ChatID string `json:"chat_id"`
		UserID string `json:"user_id"`
		Typing bool   `json:"typing"`
	}
	if err := json.Unmarshal(env.payload(), &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return TypingEvent{ChatID: p.ChatID, UserID: p.UserID, Typing: p.Typing}, nil
}

func decodeChatUpdate(env envelope) (Event, error) {
	var room ChatRoom
	if err := json.Unmarshal(env.payload(), &room); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	if room.ID == "" {
		var p struct {
			ChatID string    `json:"chat_id"`
			Chat   *ChatRoom `json:"chat"`
		}
		if err := json.Unmarshal(env.payload(), &p); err == nil {
			if p.Chat != nil {
				room = *p.Chat
			} else {
				room.ID = p.ChatID
			}
		}
	}
	return ChatUpdateEvent{ChatID: room.ID, Room: &room}, nil
}

func decodeMember(env envelope, left bool) (Event, error) {
	var p struct {
		ChatID string `json:"chat_id"`
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(env.payload(), &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return ChatUpdateEvent{ChatID: p.ChatID, MemberID: p.UserID, MemberLeft: left}, nil
}

func decodeError(env envelope, rateLimited bool) (Event, error) {
	var p struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Error   struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(env.payload(), &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	ev := ErrorEvent{Code: p.Code, Message: p.Message, RateLimited: rateLimited}
	if ev.Code == "" {
		ev.Code = p.Error.Code
	}
	if ev.Message == "" {
		ev.Message = p.Error.Message
	}
	return ev, nil
}

func decodeOffer(env envelope) (Event, error) {
	var p struct {
		ChatID string `json:"chat_id"`
		OfferUpdate
	}
	if err := json.Unmarshal(env.payload(), &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return ChatUpdateEvent{ChatID: p.ChatID, Offer: &p.OfferUpdate}, nil
}
