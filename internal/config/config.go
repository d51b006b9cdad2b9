// Package config loads client configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds everything the chat client needs to reach the backend.
type Config struct {
	// APIBaseURL is the base URL of the marketplace REST API.
	APIBaseURL string
	// SocketURL is the persistent connection endpoint. Derived from APIBaseURL
	// when unset.
	SocketURL string

	// HandshakeTimeout bounds the wait for the auth acknowledgment after the
	// websocket opens.
	HandshakeTimeout time.Duration
	// SubmitTimeout bounds each outbound message submission request.
	SubmitTimeout time.Duration

	// BackoffBase is the delay before the first reconnect attempt.
	BackoffBase time.Duration
	// BackoffCap is the maximum delay between reconnect attempts.
	BackoffCap time.Duration
	// MaxReconnectAttempts is the number of automatic reconnects before the
	// client surfaces a terminal disconnected state.
	MaxReconnectAttempts int

	// PresenceCapacity bounds the presence map for long-lived sessions.
	PresenceCapacity int

	// Debug enables verbose logging.
	Debug bool
}

// Load loads configuration from environment and defaults.
func Load() (*Config, error) {
	apiURL := getenvFirst("CHATKIT_API_URL", "NEXT_PUBLIC_API_URL")
	if apiURL == "" {
		return nil, fmt.Errorf("CHATKIT_API_URL is required")
	}

	socketURL := getenvFirst("CHATKIT_WS_URL", "NEXT_PUBLIC_WS_URL")
	if socketURL == "" {
		derived, err := DeriveSocketURL(apiURL)
		if err != nil {
			return nil, err
		}
		socketURL = derived
	}

	cfg := &Config{
		APIBaseURL:           apiURL,
		SocketURL:            socketURL,
		HandshakeTimeout:     envDuration("CHATKIT_HANDSHAKE_TIMEOUT", 10*time.Second),
		SubmitTimeout:        envDuration("CHATKIT_SUBMIT_TIMEOUT", 15*time.Second),
		BackoffBase:          envDuration("CHATKIT_BACKOFF_BASE", 3*time.Second),
		BackoffCap:           envDuration("CHATKIT_BACKOFF_CAP", 30*time.Second),
		MaxReconnectAttempts: envInt("CHATKIT_MAX_RECONNECT_ATTEMPTS", 5),
		PresenceCapacity:     envInt("CHATKIT_PRESENCE_CAPACITY", 512),
		Debug:                os.Getenv("CHATKIT_DEBUG") == "true" || os.Getenv("CHATKIT_DEBUG") == "1",
	}
	return cfg, nil
}

// DeriveSocketURL maps an HTTP API base URL to the websocket endpoint.
func DeriveSocketURL(apiURL string) (string, error) {
	parsed, err := url.Parse(apiURL)
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}
	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	case "http":
		parsed.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported api url scheme %q", parsed.Scheme)
	}
	parsed.Path = "/v1/ws"
	parsed.RawQuery = ""
	return parsed.String(), nil
}

func getenvFirst(primary, fallback string) string {
	if val := os.Getenv(primary); val != "" {
		return val
	}
	return os.Getenv(fallback)
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
