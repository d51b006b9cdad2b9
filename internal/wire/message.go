// Package wire defines the chat data model and the JSON frame protocol spoken
// over the persistent connection and the REST endpoints.
package wire

import (
	"encoding/json"
	"time"
)

// Kind classifies a message payload.
type Kind string

const (
	KindText   Kind = "text"
	KindImage  Kind = "image"
	KindSystem Kind = "system"
	KindOffer  Kind = "offer"
)

// Status is the delivery state of a message.
//
// Transitions are forward-only along sending -> sent -> delivered -> read.
// StatusFailed is terminal and reachable only from StatusSending.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

func (s Status) rank() int {
	switch s {
	case StatusSending:
		return 0
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return -1
	}
}

// CanAdvance reports whether a transition from s to next is allowed.
//
// Equal states are not an advance; callers treat a false return as "keep the
// current status", never as an error.
func (s Status) CanAdvance(next Status) bool {
	if s == StatusFailed {
		return false
	}
	if next == StatusFailed {
		return s == StatusSending
	}
	return next.rank() > s.rank()
}

// Message is a single chat message.
//
// ID may be a temporary client-generated identifier while the message is
// optimistic (not yet confirmed by the server).
type Message struct {
	ID             string         `json:"id"`
	ChatID         string         `json:"chat_id"`
	SenderID       string         `json:"sender_id"`
	SenderName     string         `json:"sender_name,omitempty"`
	Content        string         `json:"content"`
	Kind           Kind           `json:"type"`
	AttachmentURLs []string       `json:"attachment_urls,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	Status         Status         `json:"status,omitempty"`

	// ClientRef is the client-supplied correlation key echoed back by the
	// server so optimistic entries reconcile without content heuristics.
	ClientRef string `json:"client_ref,omitempty"`

	// Optimistic marks a locally created entry pending server confirmation.
	// Never serialized; it exists only in client state.
	Optimistic bool `json:"-"`
}

// UnmarshalJSON accepts the field name variants seen across backend versions.
//
// Observed variants:
// - chat_id vs chatId
// - sender_id vs senderId
// - created_at vs createdAt vs timestamp
// - attachment_urls vs attachmentUrls (plus legacy singular attachment_url)
// - client_ref vs clientRef vs localId
func (m *Message) UnmarshalJSON(data []byte) error {
	type compat struct {
		ID              string         `json:"id"`
		ChatID          string         `json:"chat_id"`
		ChatIDAlt       string         `json:"chatId"`
		SenderID        string         `json:"sender_id"`
		SenderIDAlt     string         `json:"senderId"`
		SenderName      string         `json:"sender_name"`
		SenderNameAlt   string         `json:"senderName"`
		Content         string         `json:"content"`
		Kind            Kind           `json:"type"`
		Attachments     []string       `json:"attachment_urls"`
		AttachmentsAlt  []string       `json:"attachmentUrls"`
		AttachmentOne   string         `json:"attachment_url"`
		Metadata        map[string]any `json:"metadata"`
		CreatedAt       *time.Time     `json:"created_at"`
		CreatedAtAlt    *time.Time     `json:"createdAt"`
		Timestamp       *time.Time     `json:"timestamp"`
		Status          Status         `json:"status"`
		ClientRef       string         `json:"client_ref"`
		ClientRefAlt    string         `json:"clientRef"`
		ClientRefLegacy string         `json:"localId"`
	}
	var tmp compat
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	m.ID = tmp.ID
	m.ChatID = firstNonEmpty(tmp.ChatID, tmp.ChatIDAlt)
	m.SenderID = firstNonEmpty(tmp.SenderID, tmp.SenderIDAlt)
	m.SenderName = firstNonEmpty(tmp.SenderName, tmp.SenderNameAlt)
	m.Content = tmp.Content
	m.Kind = tmp.Kind
	m.AttachmentURLs = tmp.Attachments
	if len(m.AttachmentURLs) == 0 && len(tmp.AttachmentsAlt) > 0 {
		m.AttachmentURLs = tmp.AttachmentsAlt
	}
	if len(m.AttachmentURLs) == 0 && tmp.AttachmentOne != "" {
		m.AttachmentURLs = []string{tmp.AttachmentOne}
	}
	m.Metadata = tmp.Metadata
	switch {
	case tmp.CreatedAt != nil:
		m.CreatedAt = *tmp.CreatedAt
	case tmp.CreatedAtAlt != nil:
		m.CreatedAt = *tmp.CreatedAtAlt
	case tmp.Timestamp != nil:
		m.CreatedAt = *tmp.Timestamp
	}
	m.Status = tmp.Status
	m.ClientRef = firstNonEmpty(tmp.ClientRef, tmp.ClientRefAlt, tmp.ClientRefLegacy)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Participant is a chat room member.
type Participant struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Role      string `json:"role,omitempty"`
}

// ChatRoom is a logical conversation between a set of participants,
// optionally tied to a marketplace product.
type ChatRoom struct {
	ID           string        `json:"id"`
	Participants []Participant `json:"participants,omitempty"`
	LastMessage  *Message      `json:"last_message,omitempty"`
	UnreadCount  int           `json:"unread_count"`
	ProductID    string        `json:"product_id,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// RecencyKey is the ordering key for conversation lists: the last message
// timestamp when present, else the room's own update time.
func (r *ChatRoom) RecencyKey() time.Time {
	if r.LastMessage != nil && !r.LastMessage.CreatedAt.IsZero() {
		return r.LastMessage.CreatedAt
	}
	return r.UpdatedAt
}

// Presence is a user's online state and last-seen timestamp.
type Presence struct {
	UserID   string    `json:"user_id"`
	Online   bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
}
