package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresAPIURL(t *testing.T) {
	t.Setenv("CHATKIT_API_URL", "")
	t.Setenv("NEXT_PUBLIC_API_URL", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CHATKIT_API_URL", "https://api.example.com")
	t.Setenv("CHATKIT_WS_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "wss://api.example.com/v1/ws", cfg.SocketURL)
	require.Equal(t, 10*time.Second, cfg.HandshakeTimeout)
	require.Equal(t, 15*time.Second, cfg.SubmitTimeout)
	require.Equal(t, 3*time.Second, cfg.BackoffBase)
	require.Equal(t, 30*time.Second, cfg.BackoffCap)
	require.Equal(t, 5, cfg.MaxReconnectAttempts)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CHATKIT_API_URL", "http://localhost:8080")
	t.Setenv("CHATKIT_WS_URL", "ws://localhost:8080/v1/ws")
	t.Setenv("CHATKIT_BACKOFF_BASE", "250ms")
	t.Setenv("CHATKIT_MAX_RECONNECT_ATTEMPTS", "2")
	t.Setenv("CHATKIT_DEBUG", "1")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:8080/v1/ws", cfg.SocketURL)
	require.Equal(t, 250*time.Millisecond, cfg.BackoffBase)
	require.Equal(t, 2, cfg.MaxReconnectAttempts)
	require.True(t, cfg.Debug)
}

func TestDeriveSocketURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "https", in: "https://api.example.com", want: "wss://api.example.com/v1/ws"},
		{name: "http", in: "http://localhost:8080", want: "ws://localhost:8080/v1/ws"},
		{name: "alreadyWS", in: "wss://api.example.com/old", want: "wss://api.example.com/v1/ws"},
		{name: "badScheme", in: "ftp://api.example.com", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := DeriveSocketURL(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
