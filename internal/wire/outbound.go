package wire

// Outbound is the client -> server frame shape.
//
// Room control and typing frames carry chat_id next to the type; frames with a
// structured payload nest it under data.
type Outbound struct {
	Type   FrameType `json:"type"`
	ChatID string    `json:"chat_id,omitempty"`
	Data   any       `json:"data,omitempty"`
}

// JoinChatRoom subscribes the connection to a conversation's events.
// The server treats repeated joins as idempotent.
func JoinChatRoom(chatID string) Outbound {
	return Outbound{Type: "join_chat_room", ChatID: chatID}
}

// LeaveChatRoom unsubscribes the connection from a conversation's events.
func LeaveChatRoom(chatID string) Outbound {
	return Outbound{Type: "leave_chat_room", ChatID: chatID}
}

// TypingStart announces that the local user started typing in a chat.
func TypingStart(chatID string) Outbound {
	return Outbound{Type: "typing_start", ChatID: chatID}
}

// TypingStop announces that the local user stopped typing in a chat.
func TypingStop(chatID string) Outbound {
	return Outbound{Type: "typing_stop", ChatID: chatID}
}

// MarkMessageRead reports that the local user has viewed a message.
func MarkMessageRead(chatID, messageID string) Outbound {
	return Outbound{
		Type:   "mark_message_read",
		ChatID: chatID,
		Data:   map[string]string{"message_id": messageID},
	}
}

// Ping is the client-initiated keepalive probe.
func Ping() Outbound {
	return Outbound{Type: FramePing}
}

// Pong answers a server keepalive probe.
func Pong() Outbound {
	return Outbound{Type: FramePong}
}
