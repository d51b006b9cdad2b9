package store

import (
	"sort"
	"sync"
	"time"

	"github.com/JavierZam/pasargamex-fe-sub000/internal/wire"
)

// ConversationList owns conversation summaries ordered by recency.
//
// Message content flows in as a read-only projection from inbound events; the
// list never fetches message bodies on its own.
type ConversationList struct {
	localUserID string

	mu       sync.Mutex
	rooms    map[string]*wire.ChatRoom
	selected string
}

// NewConversationList builds an empty list. localUserID is used for unread
// accounting: the local user's own messages never count as unread.
func NewConversationList(localUserID string) *ConversationList {
	return &ConversationList{
		localUserID: localUserID,
		rooms:       make(map[string]*wire.ChatRoom),
	}
}

// SetLocalUser updates the local user identity (known only after the auth
// handshake on some backends).
func (l *ConversationList) SetLocalUser(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.localUserID = userID
}

// Replace installs the authoritative conversation set from the list endpoint.
// Local unread counts are kept when higher than the server's: the server may
// lag mark-read acknowledgments, never the other way around.
func (l *ConversationList) Replace(rooms []wire.ChatRoom) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := make(map[string]*wire.ChatRoom, len(rooms))
	for i := range rooms {
		room := rooms[i]
		if prev, ok := l.rooms[room.ID]; ok && prev.UnreadCount > room.UnreadCount {
			room.UnreadCount = prev.UnreadCount
		}
		if room.ID == l.selected {
			room.UnreadCount = 0
		}
		next[room.ID] = &room
	}
	l.rooms = next
}

// List returns the conversations ordered most-recent first.
func (l *ConversationList) List() []wire.ChatRoom {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]wire.ChatRoom, 0, len(l.rooms))
	for _, room := range l.rooms {
		out = append(out, *room)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecencyKey().After(out[j].RecencyKey())
	})
	return out
}

// Get returns a conversation summary by ID.
func (l *ConversationList) Get(chatID string) (wire.ChatRoom, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	room, ok := l.rooms[chatID]
	if !ok {
		return wire.ChatRoom{}, false
	}
	return *room, true
}

// ApplyMessage updates a conversation's summary from a message event.
//
// Unknown conversations are ignored: a bare message event lacks participant
// metadata, so the conversation appears on the next full list reload instead
// of being synthesized half-empty.
func (l *ConversationList) ApplyMessage(msg wire.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	room, ok := l.rooms[msg.ChatID]
	if !ok {
		return
	}

	copied := msg
	room.LastMessage = &copied
	if msg.CreatedAt.After(room.UpdatedAt) {
		room.UpdatedAt = msg.CreatedAt
	} else {
		room.UpdatedAt = time.Now().UTC()
	}
	if msg.SenderID != l.localUserID && msg.ChatID != l.selected {
		room.UnreadCount++
	}
}

// ApplyUpdate applies an authoritative summary event (chat_updated and
// friends). Summary fields are last-writer-wins; the unread counter never
// drops below what local tracking already computed, and stays zero for the
// selected conversation.
func (l *ConversationList) ApplyUpdate(update wire.ChatRoom) {
	l.mu.Lock()
	defer l.mu.Unlock()

	room, ok := l.rooms[update.ID]
	if !ok {
		copied := update
		if copied.ID == l.selected {
			copied.UnreadCount = 0
		}
		l.rooms[update.ID] = &copied
		return
	}

	if update.LastMessage != nil {
		room.LastMessage = update.LastMessage
	}
	if len(update.Participants) > 0 {
		room.Participants = update.Participants
	}
	if update.ProductID != "" {
		room.ProductID = update.ProductID
	}
	if !update.UpdatedAt.IsZero() {
		room.UpdatedAt = update.UpdatedAt
	}
	switch {
	case room.ID == l.selected:
		room.UnreadCount = 0
	case update.UnreadCount > room.UnreadCount:
		room.UnreadCount = update.UnreadCount
	}
}

// ApplyMember applies a user_joined/user_left membership delta.
func (l *ConversationList) ApplyMember(chatID, userID string, left bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	room, ok := l.rooms[chatID]
	if !ok {
		return
	}
	idx := -1
	for i, p := range room.Participants {
		if p.UserID == userID {
			idx = i
			break
		}
	}
	switch {
	case left && idx >= 0:
		room.Participants = append(room.Participants[:idx], room.Participants[idx+1:]...)
	case !left && idx < 0:
		room.Participants = append(room.Participants, wire.Participant{UserID: userID})
	}
}

// Select marks a conversation as the one currently open and resets its unread
// counter. This is a purely local side effect.
func (l *ConversationList) Select(chatID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.selected = chatID
	if room, ok := l.rooms[chatID]; ok {
		room.UnreadCount = 0
	}
}

// Selected returns the currently open conversation ID, if any.
func (l *ConversationList) Selected() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.selected
}
