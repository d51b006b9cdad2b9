package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/JavierZam/pasargamex-fe-sub000/internal/auth"
	"github.com/JavierZam/pasargamex-fe-sub000/internal/wire"
	"github.com/JavierZam/pasargamex-fe-sub000/pkg/logger"
)

const defaultTimeout = 15 * time.Second

// Client talks to the chat REST endpoints. Message submission goes through
// here; the websocket only carries events and lightweight signals.
type Client struct {
	http   *resty.Client
	tokens auth.TokenSource
}

// SendMessageRequest is the body for message submission.
type SendMessageRequest struct {
	Content        string    `json:"content"`
	Kind           wire.Kind `json:"type"`
	AttachmentURLs []string  `json:"attachment_urls,omitempty"`
	ClientRef      string    `json:"client_ref,omitempty"`
}

// envelope is the common success/error response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

type apiError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// APIError is a non-2xx or success=false response from the backend.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// New builds a REST client for the given base URL. Every request fetches a
// fresh credential from tokens, so refreshes propagate without rebuilding the
// client.
func New(baseURL string, tokens auth.TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{http: http, tokens: tokens}
}

// SendMessage submits a message to a conversation and returns the confirmed
// server copy.
func (c *Client) SendMessage(ctx context.Context, chatID string, req SendMessageRequest) (wire.Message, error) {
	var msg wire.Message
	err := c.do(ctx, &msg, func(r *resty.Request) (*resty.Response, error) {
		return r.
			SetBody(req).
			SetPathParam("chatId", chatID).
			Post("/v1/chats/{chatId}/messages")
	})
	return msg, err
}

// History fetches a page of messages for a conversation, oldest first.
func (c *Client) History(ctx context.Context, chatID string, page, limit int) ([]wire.Message, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	var msgs []wire.Message
	err := c.do(ctx, &msgs, func(r *resty.Request) (*resty.Response, error) {
		return r.
			SetPathParam("chatId", chatID).
			SetQueryParam("page", fmt.Sprintf("%d", page)).
			SetQueryParam("limit", fmt.Sprintf("%d", limit)).
			Get("/v1/chats/{chatId}/messages")
	})
	if err != nil {
		return nil, err
	}
	// Some deployments page newest-first; normalize so callers always seed in
	// chronological order.
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}

// ListChats fetches the caller's conversation summaries.
func (c *Client) ListChats(ctx context.Context) ([]wire.ChatRoom, error) {
	var rooms []wire.ChatRoom
	err := c.do(ctx, &rooms, func(r *resty.Request) (*resty.Response, error) {
		return r.Get("/v1/chats")
	})
	return rooms, err
}

// Chat fetches a single conversation summary with its participants.
func (c *Client) Chat(ctx context.Context, chatID string) (wire.ChatRoom, error) {
	var room wire.ChatRoom
	err := c.do(ctx, &room, func(r *resty.Request) (*resty.Response, error) {
		return r.
			SetPathParam("chatId", chatID).
			Get("/v1/chats/{chatId}")
	})
	return room, err
}

// Participants fetches the members of a conversation.
func (c *Client) Participants(ctx context.Context, chatID string) ([]wire.Participant, error) {
	var participants []wire.Participant
	err := c.do(ctx, &participants, func(r *resty.Request) (*resty.Response, error) {
		return r.
			SetPathParam("chatId", chatID).
			Get("/v1/chats/{chatId}/participants")
	})
	return participants, err
}

// do runs one authenticated request and decodes the response envelope into
// out. A nil data payload leaves out untouched.
func (c *Client) do(ctx context.Context, out any, send func(*resty.Request) (*resty.Response, error)) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("fetch credential: %w", err)
	}

	resp, err := send(c.http.R().
		SetContext(ctx).
		SetAuthToken(token))
	if err != nil {
		return fmt.Errorf("chat api request: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		if resp.IsError() {
			return &APIError{StatusCode: resp.StatusCode(), Message: resp.Status()}
		}
		return fmt.Errorf("decode chat api response: %w", err)
	}

	if resp.IsError() || (!env.Success && env.Error != nil) {
		apiErr := &APIError{StatusCode: resp.StatusCode(), Message: env.Message}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		if apiErr.Message == "" {
			apiErr.Message = resp.Status()
		}
		logger.Debugf("chat api error: %v", apiErr)
		return apiErr
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode chat api payload: %w", err)
	}
	return nil
}
