package store

import (
	"sort"
	"sync"

	"github.com/JavierZam/pasargamex-fe-sub000/internal/wire"
)

// DefaultPresenceCapacity bounds the presence map when no explicit capacity
// is configured.
const DefaultPresenceCapacity = 512

// PresenceTracker keeps per-conversation typing sets and a bounded
// last-writer-wins map of user presence.
type PresenceTracker struct {
	capacity int

	mu       sync.Mutex
	typing   map[string]map[string]struct{}
	presence map[string]wire.Presence
}

// NewPresenceTracker builds a tracker holding at most capacity presence
// entries. Non-positive capacity falls back to the default.
func NewPresenceTracker(capacity int) *PresenceTracker {
	if capacity <= 0 {
		capacity = DefaultPresenceCapacity
	}
	return &PresenceTracker{
		capacity: capacity,
		typing:   make(map[string]map[string]struct{}),
		presence: make(map[string]wire.Presence),
	}
}

// ApplyTyping records a typing start/stop event. Duplicate starts and stops
// for absent users are no-ops.
func (p *PresenceTracker) ApplyTyping(chatID, userID string, typing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	set := p.typing[chatID]
	if typing {
		if set == nil {
			set = make(map[string]struct{})
			p.typing[chatID] = set
		}
		set[userID] = struct{}{}
		return
	}
	if set == nil {
		return
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(p.typing, chatID)
	}
}

// Typing returns the users currently typing in a conversation, sorted for
// stable rendering.
func (p *PresenceTracker) Typing(chatID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	set := p.typing[chatID]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for userID := range set {
		out = append(out, userID)
	}
	sort.Strings(out)
	return out
}

// DropUser removes a user from a conversation's typing set, e.g. when they
// leave the room mid-keystroke.
func (p *PresenceTracker) DropUser(chatID, userID string) {
	p.ApplyTyping(chatID, userID, false)
}

// ApplyPresence records an online/offline transition. The latest arrival for
// a user overwrites the prior record unconditionally (servers emit these in
// order; an offline report may carry no last-seen timestamp at all). When the
// map is full the entry with the oldest last-seen timestamp is evicted first.
func (p *PresenceTracker) ApplyPresence(pr wire.Presence) {
	if pr.UserID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.presence[pr.UserID]; !ok && len(p.presence) >= p.capacity {
		p.evictOldest()
	}
	p.presence[pr.UserID] = pr
}

func (p *PresenceTracker) evictOldest() {
	var victim string
	first := true
	for userID, pr := range p.presence {
		if first || pr.LastSeen.Before(p.presence[victim].LastSeen) {
			victim = userID
			first = false
		}
	}
	if victim != "" {
		delete(p.presence, victim)
	}
}

// Presence returns the last known presence for a user.
func (p *PresenceTracker) Presence(userID string) (wire.Presence, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.presence[userID]
	return pr, ok
}

// Online reports whether a user's last known state is online. Unknown users
// report offline.
func (p *PresenceTracker) Online(userID string) bool {
	pr, ok := p.Presence(userID)
	return ok && pr.Online
}

// Len returns the number of tracked presence entries.
func (p *PresenceTracker) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.presence)
}
