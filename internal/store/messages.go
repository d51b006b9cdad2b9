// Package store holds the client-side chat state: per-conversation message
// lists, conversation summaries, and typing/presence maps.
//
// Each structure guards its own state with a mutex: a submission response and
// an inbound echo for the same message can race.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/JavierZam/pasargamex-fe-sub000/internal/wire"
	"github.com/JavierZam/pasargamex-fe-sub000/pkg/logger"
)

// matchTolerance is the timestamp window used by the content-match fallback
// when an inbound message carries no correlation key.
const matchTolerance = 5 * time.Second

// msgKey locates a message: the conversation it lives in and its current ID.
// Superseded temporary IDs keep an entry pointing at the server ID so late
// status updates addressed to either ID resolve to the same message.
type msgKey struct {
	chatID      string
	canonicalID string
}

// MessageStore owns the per-conversation ordered message lists and merges
// locally created optimistic entries with server-confirmed ones.
type MessageStore struct {
	mu     sync.Mutex
	byChat map[string][]wire.Message
	index  map[string]msgKey
}

// NewMessageStore builds an empty store.
func NewMessageStore() *MessageStore {
	return &MessageStore{
		byChat: make(map[string][]wire.Message),
		index:  make(map[string]msgKey),
	}
}

// Append inserts or reconciles a message in its conversation's list.
//
// In order: an exact-ID duplicate is merged in place; a confirmed message
// matching a pending optimistic entry (by correlation key, else by content
// within the timestamp tolerance) replaces it at its existing index; anything
// else is inserted and the list re-sorted ascending by timestamp.
func (s *MessageStore) Append(chatID string, msg wire.Message) {
	if chatID == "" {
		chatID = msg.ChatID
	}
	if msg.ChatID == "" {
		msg.ChatID = chatID
	}
	if chatID == "" || msg.ID == "" {
		logger.Debugf("store: dropping message without chat id or id")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.byChat[chatID]

	if key, ok := s.index[msg.ID]; ok && key.chatID == chatID {
		if idx := indexByID(list, key.canonicalID); idx >= 0 {
			list[idx] = mergeMessage(list[idx], msg)
			s.byChat[chatID] = sortedByTime(list)
			return
		}
	}

	if msg.Optimistic && msg.ClientRef != "" {
		// The confirmed copy can land first (the event channel and the
		// submission response are not ordered relative to each other). A late
		// placeholder folds into it instead of duplicating.
		for i := range list {
			if !list[i].Optimistic && list[i].ClientRef == msg.ClientRef {
				s.index[msg.ID] = msgKey{chatID: chatID, canonicalID: list[i].ID}
				return
			}
		}
	}

	if !msg.Optimistic {
		if idx := matchOptimistic(list, msg); idx >= 0 {
			old := list[idx]
			merged := mergeMessage(old, msg)
			merged.ID = msg.ID
			merged.Optimistic = false
			list[idx] = merged
			s.index[old.ID] = msgKey{chatID: chatID, canonicalID: msg.ID}
			s.index[msg.ID] = msgKey{chatID: chatID, canonicalID: msg.ID}
			s.byChat[chatID] = list
			return
		}
	}

	if msg.Status == "" {
		if msg.Optimistic {
			msg.Status = wire.StatusSending
		} else {
			msg.Status = wire.StatusSent
		}
	}
	list = append(list, msg)
	s.byChat[chatID] = sortedByTime(list)
	s.index[msg.ID] = msgKey{chatID: chatID, canonicalID: msg.ID}
}

// matchOptimistic finds the pending optimistic entry a confirmed message
// corresponds to. An explicit correlation key wins; the content+time-window
// heuristic is only a fallback for backends that do not echo the key.
func matchOptimistic(list []wire.Message, msg wire.Message) int {
	if msg.ClientRef != "" {
		for i, existing := range list {
			if existing.Optimistic && existing.ClientRef == msg.ClientRef {
				return i
			}
		}
	}
	for i, existing := range list {
		if !existing.Optimistic || existing.Content != msg.Content {
			continue
		}
		if msg.SenderID != "" && existing.SenderID != "" && existing.SenderID != msg.SenderID {
			continue
		}
		delta := existing.CreatedAt.Sub(msg.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= matchTolerance {
			return i
		}
	}
	return -1
}

// AdvanceStatus moves a message's delivery status forward. Backward
// transitions are ignored, as are unknown IDs (the message may belong to a
// conversation that has not been loaded yet).
func (s *MessageStore) AdvanceStatus(messageID string, status wire.Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.index[messageID]
	if !ok {
		return false
	}
	list := s.byChat[key.chatID]
	idx := indexByID(list, key.canonicalID)
	if idx < 0 {
		return false
	}
	if !list[idx].Status.CanAdvance(status) {
		return false
	}
	list[idx].Status = status
	return true
}

// Get returns a copy of the conversation's messages in ascending timestamp
// order.
func (s *MessageStore) Get(chatID string) []wire.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.byChat[chatID]
	out := make([]wire.Message, len(list))
	copy(out, list)
	return out
}

// Find returns a message by ID (temporary or canonical).
func (s *MessageStore) Find(messageID string) (wire.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.index[messageID]
	if !ok {
		return wire.Message{}, false
	}
	if idx := indexByID(s.byChat[key.chatID], key.canonicalID); idx >= 0 {
		return s.byChat[key.chatID][idx], true
	}
	return wire.Message{}, false
}

// Seed merges a page of historical messages into the conversation. Existing
// entries, including optimistic ones, are preserved: seeding merges, it never
// replaces.
func (s *MessageStore) Seed(chatID string, history []wire.Message) {
	for _, msg := range history {
		s.Append(chatID, msg)
	}
}

// ResetForRetry flips a failed optimistic entry back to sending so the
// submission path can re-run it. This is the only sanctioned exit from the
// terminal failed state and applies solely to optimistic entries.
func (s *MessageStore) ResetForRetry(messageID string) (wire.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.index[messageID]
	if !ok {
		return wire.Message{}, false
	}
	list := s.byChat[key.chatID]
	idx := indexByID(list, key.canonicalID)
	if idx < 0 || !list[idx].Optimistic || list[idx].Status != wire.StatusFailed {
		return wire.Message{}, false
	}
	list[idx].Status = wire.StatusSending
	return list[idx], true
}

// AmendMetadata merges metadata fields into an existing message. Offer and
// payment updates amend the message they refer to instead of inserting a new
// one.
func (s *MessageStore) AmendMetadata(messageID string, metadata map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.index[messageID]
	if !ok {
		return false
	}
	list := s.byChat[key.chatID]
	idx := indexByID(list, key.canonicalID)
	if idx < 0 {
		return false
	}
	if list[idx].Metadata == nil {
		list[idx].Metadata = make(map[string]any, len(metadata))
	}
	for k, v := range metadata {
		list[idx].Metadata[k] = v
	}
	return true
}

func indexByID(list []wire.Message, id string) int {
	if id == "" {
		return -1
	}
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

// mergeMessage folds src into dst, preferring src's populated fields and
// advancing status forward-only.
func mergeMessage(dst, src wire.Message) wire.Message {
	if src.Content != "" {
		dst.Content = src.Content
	}
	if src.SenderID != "" {
		dst.SenderID = src.SenderID
	}
	if src.SenderName != "" {
		dst.SenderName = src.SenderName
	}
	if src.Kind != "" {
		dst.Kind = src.Kind
	}
	if len(src.AttachmentURLs) > 0 {
		dst.AttachmentURLs = src.AttachmentURLs
	}
	if src.Metadata != nil {
		dst.Metadata = src.Metadata
	}
	if !src.CreatedAt.IsZero() {
		dst.CreatedAt = src.CreatedAt
	}
	if src.ClientRef != "" {
		dst.ClientRef = src.ClientRef
	}

	next := src.Status
	if next == "" && !src.Optimistic {
		// A confirmed echo with no explicit status means at least sent.
		next = wire.StatusSent
	}
	if next != "" && (dst.Status == "" || dst.Status.CanAdvance(next)) {
		dst.Status = next
	}
	if !src.Optimistic {
		dst.Optimistic = false
	}
	return dst
}

func sortedByTime(list []wire.Message) []wire.Message {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}
