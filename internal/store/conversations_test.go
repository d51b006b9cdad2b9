package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JavierZam/pasargamex-fe-sub000/internal/wire"
)

func room(id string, updated time.Time) wire.ChatRoom {
	return wire.ChatRoom{
		ID:        id,
		UpdatedAt: updated,
		Participants: []wire.Participant{
			{UserID: "me"},
			{UserID: "peer-" + id},
		},
	}
}

func TestConversations_ListOrderedByRecency(t *testing.T) {
	t.Parallel()

	l := NewConversationList("me")
	l.Replace([]wire.ChatRoom{
		room("chat-a", t0),
		room("chat-b", t0.Add(time.Minute)),
		room("chat-c", t0.Add(30*time.Second)),
	})

	got := l.List()
	require.Len(t, got, 3)
	require.Equal(t, "chat-b", got[0].ID)
	require.Equal(t, "chat-c", got[1].ID)
	require.Equal(t, "chat-a", got[2].ID)

	// A new message in the oldest room promotes it to the top.
	l.ApplyMessage(wire.Message{
		ID:        "m-1",
		ChatID:    "chat-a",
		SenderID:  "peer-chat-a",
		Content:   "ping",
		CreatedAt: t0.Add(2 * time.Minute),
	})
	got = l.List()
	require.Equal(t, "chat-a", got[0].ID)
	require.NotNil(t, got[0].LastMessage)
	require.Equal(t, "m-1", got[0].LastMessage.ID)
}

func TestConversations_UnreadAccounting(t *testing.T) {
	t.Parallel()

	l := NewConversationList("me")
	l.Replace([]wire.ChatRoom{room("chat-a", t0), room("chat-b", t0)})
	l.Select("chat-a")

	incoming := func(chatID, id string) wire.Message {
		return wire.Message{
			ID:        id,
			ChatID:    chatID,
			SenderID:  "peer-" + chatID,
			Content:   "hi",
			CreatedAt: time.Now().UTC(),
		}
	}

	// Messages into the open conversation never count as unread.
	l.ApplyMessage(incoming("chat-a", "m-1"))
	// Messages elsewhere do.
	l.ApplyMessage(incoming("chat-b", "m-2"))

	a, _ := l.Get("chat-a")
	b, _ := l.Get("chat-b")
	require.Zero(t, a.UnreadCount)
	require.Equal(t, 1, b.UnreadCount)

	// Selecting the other conversation clears its counter.
	l.Select("chat-b")
	b, _ = l.Get("chat-b")
	require.Zero(t, b.UnreadCount)
}

func TestConversations_OwnMessagesNotUnread(t *testing.T) {
	t.Parallel()

	l := NewConversationList("me")
	l.Replace([]wire.ChatRoom{room("chat-a", t0)})

	l.ApplyMessage(wire.Message{
		ID:        "m-1",
		ChatID:    "chat-a",
		SenderID:  "me",
		Content:   "sent from here",
		CreatedAt: time.Now().UTC(),
	})

	a, _ := l.Get("chat-a")
	require.Zero(t, a.UnreadCount)
	require.NotNil(t, a.LastMessage)
}

func TestConversations_UnknownRoomIgnored(t *testing.T) {
	t.Parallel()

	l := NewConversationList("me")
	l.ApplyMessage(wire.Message{ID: "m-1", ChatID: "chat-ghost", SenderID: "x"})
	require.Empty(t, l.List())
}

func TestConversations_ApplyUpdate(t *testing.T) {
	t.Parallel()

	l := NewConversationList("me")
	l.Replace([]wire.ChatRoom{room("chat-a", t0)})

	// Local tracking already saw two messages.
	l.ApplyMessage(wire.Message{ID: "m-1", ChatID: "chat-a", SenderID: "peer", CreatedAt: t0.Add(time.Second)})
	l.ApplyMessage(wire.Message{ID: "m-2", ChatID: "chat-a", SenderID: "peer", CreatedAt: t0.Add(2 * time.Second)})

	// A lagging server update must not drop the local count.
	l.ApplyUpdate(wire.ChatRoom{ID: "chat-a", UnreadCount: 1, UpdatedAt: t0.Add(3 * time.Second)})
	a, _ := l.Get("chat-a")
	require.Equal(t, 2, a.UnreadCount)
	require.Equal(t, t0.Add(3*time.Second), a.UpdatedAt)

	// A higher server count wins.
	l.ApplyUpdate(wire.ChatRoom{ID: "chat-a", UnreadCount: 7})
	a, _ = l.Get("chat-a")
	require.Equal(t, 7, a.UnreadCount)

	// Updates for the selected conversation keep the counter at zero.
	l.Select("chat-a")
	l.ApplyUpdate(wire.ChatRoom{ID: "chat-a", UnreadCount: 9})
	a, _ = l.Get("chat-a")
	require.Zero(t, a.UnreadCount)
}

func TestConversations_ApplyUpdateInsertsNewRoom(t *testing.T) {
	t.Parallel()

	l := NewConversationList("me")
	l.ApplyUpdate(wire.ChatRoom{ID: "chat-new", UnreadCount: 3, UpdatedAt: t0})

	got, ok := l.Get("chat-new")
	require.True(t, ok)
	require.Equal(t, 3, got.UnreadCount)
}

func TestConversations_Membership(t *testing.T) {
	t.Parallel()

	l := NewConversationList("me")
	l.Replace([]wire.ChatRoom{room("chat-a", t0)})

	l.ApplyMember("chat-a", "newcomer", false)
	a, _ := l.Get("chat-a")
	require.Len(t, a.Participants, 3)

	// Joining twice is a no-op.
	l.ApplyMember("chat-a", "newcomer", false)
	a, _ = l.Get("chat-a")
	require.Len(t, a.Participants, 3)

	l.ApplyMember("chat-a", "newcomer", true)
	a, _ = l.Get("chat-a")
	require.Len(t, a.Participants, 2)
}

func TestConversations_ReplaceKeepsLocalUnread(t *testing.T) {
	t.Parallel()

	l := NewConversationList("me")
	l.Replace([]wire.ChatRoom{room("chat-a", t0)})
	l.ApplyMessage(wire.Message{ID: "m-1", ChatID: "chat-a", SenderID: "peer", CreatedAt: t0.Add(time.Second)})

	l.Replace([]wire.ChatRoom{room("chat-a", t0)})
	a, _ := l.Get("chat-a")
	require.Equal(t, 1, a.UnreadCount)
}
