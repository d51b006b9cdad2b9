// Package dispatch classifies inbound frames and fans them out to registered
// subscribers, so the transport never needs to know who consumes what.
package dispatch

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/JavierZam/pasargamex-fe-sub000/internal/wire"
	"github.com/JavierZam/pasargamex-fe-sub000/pkg/logger"
)

// rateLimitNoticeWindow throttles user-visible rate-limit notices: no matter
// how many rate_limit_exceeded frames arrive, subscribers see at most one per
// window.
const rateLimitNoticeWindow = 5 // seconds

// benignErrorCodes are server error classes that reflect harmless protocol
// skew. They are logged but never surfaced to subscribers.
var benignErrorCodes = map[string]struct{}{
	"unknown_message_type": {},
	"unknown_event":        {},
	"unsupported_type":     {},
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

type subscriberList[T any] struct {
	subs []subscriber[T]
}

func (l *subscriberList[T]) add(id int, fn func(T)) {
	l.subs = append(l.subs, subscriber[T]{id: id, fn: fn})
}

func (l *subscriberList[T]) remove(id int) {
	for i, s := range l.subs {
		if s.id == id {
			l.subs = append(l.subs[:i], l.subs[i+1:]...)
			return
		}
	}
}

// snapshot copies the handlers so they can be called without the lock held:
// handlers may re-subscribe.
func (l *subscriberList[T]) snapshot() []func(T) {
	out := make([]func(T), len(l.subs))
	for i, s := range l.subs {
		out[i] = s.fn
	}
	return out
}

// Dispatcher routes decoded events to per-category subscribers.
//
// Dispatch order across subscribers of one category is registration order;
// there is no ordering guarantee across categories.
type Dispatcher struct {
	mu     sync.Mutex
	nextID int

	message     subscriberList[wire.MessageEvent]
	status      subscriberList[wire.StatusEvent]
	typing      subscriberList[wire.TypingEvent]
	presence    subscriberList[wire.PresenceEvent]
	chatUpdate  subscriberList[wire.ChatUpdateEvent]
	readReceipt subscriberList[wire.ReadReceiptEvent]
	errs        subscriberList[wire.ErrorEvent]

	rateLimitNotices *rate.Limiter
}

// New builds an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{
		rateLimitNotices: rate.NewLimiter(rate.Limit(1.0/rateLimitNoticeWindow), 1),
	}
}

func register[T any](d *Dispatcher, l *subscriberList[T], fn func(T)) func() {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	l.add(id, fn)
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		l.remove(id)
		d.mu.Unlock()
	}
}

// OnMessage subscribes to confirmed message events. The returned function
// unsubscribes.
func (d *Dispatcher) OnMessage(fn func(wire.MessageEvent)) func() {
	return register(d, &d.message, fn)
}

// OnStatus subscribes to message delivery-status events.
func (d *Dispatcher) OnStatus(fn func(wire.StatusEvent)) func() {
	return register(d, &d.status, fn)
}

// OnTyping subscribes to typing indicator events.
func (d *Dispatcher) OnTyping(fn func(wire.TypingEvent)) func() {
	return register(d, &d.typing, fn)
}

// OnPresence subscribes to user presence events.
func (d *Dispatcher) OnPresence(fn func(wire.PresenceEvent)) func() {
	return register(d, &d.presence, fn)
}

// OnChatUpdate subscribes to conversation summary, membership and offer
// events.
func (d *Dispatcher) OnChatUpdate(fn func(wire.ChatUpdateEvent)) func() {
	return register(d, &d.chatUpdate, fn)
}

// OnReadReceipt subscribes to read-receipt events.
func (d *Dispatcher) OnReadReceipt(fn func(wire.ReadReceiptEvent)) func() {
	return register(d, &d.readReceipt, fn)
}

// OnError subscribes to server error and rate-limit events. Rate-limit
// notices are throttled before delivery.
func (d *Dispatcher) OnError(fn func(wire.ErrorEvent)) func() {
	return register(d, &d.errs, fn)
}

// Dispatch decodes a raw frame and fans it out. Malformed frames and unknown
// frame types are logged and dropped; they never reach subscribers.
func (d *Dispatcher) Dispatch(raw []byte) {
	ev, err := wire.DecodeFrame(raw)
	if err != nil {
		logger.Warnf("dispatch: dropping malformed frame: %v", err)
		return
	}

	switch ev := ev.(type) {
	case wire.MessageEvent:
		fanOut(d, &d.message, ev)
	case wire.StatusEvent:
		fanOut(d, &d.status, ev)
	case wire.TypingEvent:
		fanOut(d, &d.typing, ev)
	case wire.PresenceEvent:
		fanOut(d, &d.presence, ev)
	case wire.ChatUpdateEvent:
		fanOut(d, &d.chatUpdate, ev)
	case wire.ReadReceiptEvent:
		fanOut(d, &d.readReceipt, ev)
	case wire.ErrorEvent:
		d.dispatchError(ev)
	case wire.AuthEvent:
		// Handshake frames are consumed by the transport; one arriving
		// mid-stream means the server re-evaluated the credential.
		if !ev.OK {
			d.dispatchError(wire.ErrorEvent{Code: "auth_error", Message: ev.Message})
		}
	case wire.PingEvent:
		// Keepalives are answered at the transport layer.
	case wire.UnknownEvent:
		logger.Debugf("dispatch: unknown frame type %q dropped", ev.Type)
	}
}

func (d *Dispatcher) dispatchError(ev wire.ErrorEvent) {
	if _, benign := benignErrorCodes[ev.Code]; benign {
		logger.Debugf("dispatch: benign server error %q: %s", ev.Code, ev.Message)
		return
	}
	if ev.RateLimited && !d.rateLimitNotices.Allow() {
		logger.Debugf("dispatch: rate-limit notice suppressed")
		return
	}
	fanOut(d, &d.errs, ev)
}

func fanOut[T any](d *Dispatcher, l *subscriberList[T], ev T) {
	d.mu.Lock()
	subs := l.snapshot()
	d.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}
