package sdk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JavierZam/pasargamex-fe-sub000/internal/rest"
	"github.com/JavierZam/pasargamex-fe-sub000/internal/wire"
	"github.com/JavierZam/pasargamex-fe-sub000/pkg/logger"
)

// deliveredFallback advances a confirmed message from sent to delivered when
// no explicit delivery event arrives; older backends never emit one.
const deliveredFallback = 2 * time.Second

// SendMessage appends an optimistic entry and submits it over REST. The
// temporary message ID is returned immediately; the entry is reconciled with
// the server copy when either the REST response or the websocket echo lands.
func (c *Client) SendMessage(chatID, content string, kind wire.Kind, attachmentURLs []string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" && len(attachmentURLs) == 0 {
		return "", fmt.Errorf("sdk: empty message")
	}
	if kind == "" {
		kind = wire.KindText
	}

	msg := wire.Message{
		ID:             "local-" + uuid.NewString(),
		ChatID:         chatID,
		SenderID:       c.localUser(),
		Content:        content,
		Kind:           kind,
		AttachmentURLs: attachmentURLs,
		CreatedAt:      time.Now().UTC(),
		Status:         wire.StatusSending,
		ClientRef:      uuid.NewString(),
		Optimistic:     true,
	}
	c.messages.Append(chatID, msg)
	c.chats.ApplyMessage(msg)

	go c.submit(msg)
	return msg.ID, nil
}

// RetryMessage re-runs the submission path for a failed optimistic entry.
func (c *Client) RetryMessage(messageID string) error {
	msg, ok := c.messages.ResetForRetry(messageID)
	if !ok {
		return fmt.Errorf("sdk: message %s is not retryable", messageID)
	}
	go c.submit(msg)
	return nil
}

// submit runs one REST submission. The entry keeps its correlation key across
// retries so the backend can deduplicate repeated deliveries.
func (c *Client) submit(msg wire.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SubmitTimeout)
	defer cancel()

	confirmed, err := c.api.SendMessage(ctx, msg.ChatID, rest.SendMessageRequest{
		Content:        msg.Content,
		Kind:           msg.Kind,
		AttachmentURLs: msg.AttachmentURLs,
		ClientRef:      msg.ClientRef,
	})
	if err != nil {
		c.messages.AdvanceStatus(msg.ID, wire.StatusFailed)
		logger.Warnf("sdk: submit %s: %v", msg.ID, err)
		c.notifyError(fmt.Sprintf("message not sent: %v", err))
		return
	}

	canonicalID := confirmed.ID
	if canonicalID == "" {
		// Some backends acknowledge without echoing the message body. The
		// optimistic entry advances in place and keeps its temporary ID until
		// the websocket echo reconciles it.
		canonicalID = msg.ID
		c.messages.AdvanceStatus(canonicalID, wire.StatusSent)
	} else {
		if confirmed.ClientRef == "" {
			confirmed.ClientRef = msg.ClientRef
		}
		if confirmed.ChatID == "" {
			confirmed.ChatID = msg.ChatID
		}
		c.messages.Append(msg.ChatID, confirmed)
		c.messages.AdvanceStatus(canonicalID, wire.StatusSent)
		c.chats.ApplyMessage(confirmed)
	}

	time.AfterFunc(deliveredFallback, func() {
		c.messages.AdvanceStatus(canonicalID, wire.StatusDelivered)
	})
}
