package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JavierZam/pasargamex-fe-sub000/internal/wire"
)

func TestDispatch_RoutesByCategory(t *testing.T) {
	t.Parallel()

	d := New()

	var messages []wire.MessageEvent
	var typing []wire.TypingEvent
	var presence []wire.PresenceEvent
	var receipts []wire.ReadReceiptEvent
	d.OnMessage(func(ev wire.MessageEvent) { messages = append(messages, ev) })
	d.OnTyping(func(ev wire.TypingEvent) { typing = append(typing, ev) })
	d.OnPresence(func(ev wire.PresenceEvent) { presence = append(presence, ev) })
	d.OnReadReceipt(func(ev wire.ReadReceiptEvent) { receipts = append(receipts, ev) })

	d.Dispatch([]byte(`{"type":"new_message","data":{"id":"m1","chat_id":"c1","content":"hi"}}`))
	d.Dispatch([]byte(`{"type":"typing_indicator","data":{"chat_id":"c1","user_id":"u2","typing":true}}`))
	d.Dispatch([]byte(`{"type":"user_presence","data":{"user_id":"u2","is_online":true}}`))
	d.Dispatch([]byte(`{"type":"message_read_receipt","data":{"chat_id":"c1","message_id":"m1","user_id":"u2"}}`))

	require.Len(t, messages, 1)
	require.Equal(t, "m1", messages[0].Message.ID)
	require.Len(t, typing, 1)
	require.Len(t, presence, 1)
	require.Len(t, receipts, 1)
}

func TestDispatch_RegistrationOrderAndUnsubscribe(t *testing.T) {
	t.Parallel()

	d := New()

	var order []string
	unsubA := d.OnMessage(func(wire.MessageEvent) { order = append(order, "a") })
	d.OnMessage(func(wire.MessageEvent) { order = append(order, "b") })
	d.OnMessage(func(wire.MessageEvent) { order = append(order, "c") })

	frame := []byte(`{"type":"new_message","data":{"id":"m1","chat_id":"c1","content":"x"}}`)
	d.Dispatch(frame)
	require.Equal(t, []string{"a", "b", "c"}, order)

	unsubA()
	order = nil
	d.Dispatch(frame)
	require.Equal(t, []string{"b", "c"}, order)
}

func TestDispatch_UnknownAndMalformedDropped(t *testing.T) {
	t.Parallel()

	d := New()

	called := false
	d.OnMessage(func(wire.MessageEvent) { called = true })
	d.OnError(func(wire.ErrorEvent) { called = true })

	d.Dispatch([]byte(`{"type":"future_feature","data":{"x":1}}`))
	d.Dispatch([]byte(`this is not json`))
	d.Dispatch([]byte(`{"data":{"no":"type"}}`))

	require.False(t, called)
}

func TestDispatch_BenignErrorsSuppressed(t *testing.T) {
	t.Parallel()

	d := New()

	var errs []wire.ErrorEvent
	d.OnError(func(ev wire.ErrorEvent) { errs = append(errs, ev) })

	d.Dispatch([]byte(`{"type":"error","data":{"code":"unknown_message_type","message":"skew"}}`))
	require.Empty(t, errs)

	d.Dispatch([]byte(`{"type":"error","data":{"code":"forbidden","message":"not a participant"}}`))
	require.Len(t, errs, 1)
	require.Equal(t, "forbidden", errs[0].Code)
}

func TestDispatch_RateLimitNoticesThrottled(t *testing.T) {
	t.Parallel()

	d := New()

	var notices []wire.ErrorEvent
	d.OnError(func(ev wire.ErrorEvent) { notices = append(notices, ev) })

	frame := []byte(`{"type":"rate_limit_exceeded","data":{"message":"slow down"}}`)
	for i := 0; i < 5; i++ {
		d.Dispatch(frame)
	}

	// Five back-to-back frames collapse into a single visible notice.
	require.Len(t, notices, 1)
	require.True(t, notices[0].RateLimited)
}

func TestDispatch_MidStreamAuthErrorSurfaced(t *testing.T) {
	t.Parallel()

	d := New()

	var errs []wire.ErrorEvent
	d.OnError(func(ev wire.ErrorEvent) { errs = append(errs, ev) })

	d.Dispatch([]byte(`{"type":"auth_error","data":{"message":"session revoked"}}`))
	require.Len(t, errs, 1)
	require.Equal(t, "auth_error", errs[0].Code)
}
