package sdk

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JavierZam/pasargamex-fe-sub000/internal/wire"
	"github.com/JavierZam/pasargamex-fe-sub000/pkg/logger"
)

const (
	// typingDebounce is the minimum spacing between typing_start frames.
	typingDebounce = 500 * time.Millisecond
	// typingIdle is how long after the last keystroke a typing_stop frame is
	// sent on the caller's behalf.
	typingIdle = 2 * time.Second
)

// typist turns raw keystroke notifications into debounced typing frames.
type typist struct {
	send func(v any) error

	mu    sync.Mutex
	chats map[string]*typingState
}

type typingState struct {
	limiter *rate.Limiter
	idle    *time.Timer
	active  bool
}

func newTypist(sock socket) *typist {
	return &typist{
		send:  sock.Send,
		chats: make(map[string]*typingState),
	}
}

// Keystroke records activity in a conversation. The first keystroke of a
// burst emits typing_start; further ones only re-arm the idle timer. Bursts
// closer together than the debounce window emit no extra frames.
func (t *typist) Keystroke(chatID string) {
	t.mu.Lock()
	st := t.chats[chatID]
	if st == nil {
		st = &typingState{
			limiter: rate.NewLimiter(rate.Every(typingDebounce), 1),
		}
		t.chats[chatID] = st
	}
	start := !st.active && st.limiter.Allow()
	if start {
		st.active = true
	}
	if st.active {
		if st.idle != nil {
			st.idle.Stop()
		}
		st.idle = time.AfterFunc(typingIdle, func() { t.Stop(chatID) })
	}
	t.mu.Unlock()

	if start {
		if err := t.send(wire.TypingStart(chatID)); err != nil {
			logger.Debugf("sdk: typing start: %v", err)
		}
	}
}

// Stop emits typing_stop if a start was sent for the conversation. Calling it
// while idle is a no-op, so explicit stops and the idle timer can both fire.
func (t *typist) Stop(chatID string) {
	t.mu.Lock()
	st := t.chats[chatID]
	stop := st != nil && st.active
	if stop {
		st.active = false
		if st.idle != nil {
			st.idle.Stop()
			st.idle = nil
		}
	}
	t.mu.Unlock()

	if stop {
		if err := t.send(wire.TypingStop(chatID)); err != nil {
			logger.Debugf("sdk: typing stop: %v", err)
		}
	}
}

// Shutdown cancels pending idle timers and sends stops for active
// conversations.
func (t *typist) Shutdown() {
	t.mu.Lock()
	active := make([]string, 0, len(t.chats))
	for chatID, st := range t.chats {
		if st.active {
			active = append(active, chatID)
		}
	}
	t.mu.Unlock()

	for _, chatID := range active {
		t.Stop(chatID)
	}
}
