package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/JavierZam/pasargamex-fe-sub000/internal/wire"
)

const testToken = "test-token-0123456789abcdef"

type fakeServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	authOK    bool
	silent    bool
	rejectMsg string

	mu       sync.Mutex
	conns    []*websocket.Conn
	tokens   []string
	inbound  chan map[string]any
	accepted chan struct{}
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		t:        t,
		authOK:   true,
		inbound:  make(chan map[string]any, 64),
		accepted: make(chan struct{}, 16),
	}
	fs.srv = httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(fs.close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := fs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	fs.mu.Lock()
	fs.conns = append(fs.conns, conn)
	fs.tokens = append(fs.tokens, r.URL.Query().Get("token"))
	fs.mu.Unlock()
	fs.accepted <- struct{}{}

	if fs.silent {
		return
	}
	if fs.authOK {
		fs.writeTo(conn, map[string]any{"type": "auth_success", "data": map[string]any{"user_id": "u1"}})
	} else {
		fs.writeTo(conn, map[string]any{"type": "auth_error", "data": map[string]any{"message": fs.rejectMsg}})
		return
	}

	for {
		var decoded map[string]any
		if err := conn.ReadJSON(&decoded); err != nil {
			return
		}
		fs.inbound <- decoded
	}
}

func (fs *fakeServer) writeTo(conn *websocket.Conn, v any) {
	raw, err := json.Marshal(v)
	require.NoError(fs.t, err)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_ = conn.WriteMessage(websocket.TextMessage, raw)
}

// write sends a frame to the most recently accepted client.
func (fs *fakeServer) write(v any) {
	fs.mu.Lock()
	conn := fs.conns[len(fs.conns)-1]
	fs.mu.Unlock()
	fs.writeTo(conn, v)
}

// dropAll abnormally closes every accepted connection. Needed when tearing
// the server down: httptest's Close does not touch hijacked connections.
func (fs *fakeServer) dropAll() {
	fs.mu.Lock()
	conns := make([]*websocket.Conn, len(fs.conns))
	copy(conns, fs.conns)
	fs.mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
}

// dropLast abnormally closes the most recent client connection.
func (fs *fakeServer) dropLast() {
	fs.mu.Lock()
	conn := fs.conns[len(fs.conns)-1]
	fs.mu.Unlock()
	_ = conn.Close()
}

func (fs *fakeServer) lastToken() string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.tokens[len(fs.tokens)-1]
}

func (fs *fakeServer) close() {
	fs.mu.Lock()
	conns := fs.conns
	fs.conns = nil
	fs.mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
	fs.srv.Close()
}

func testOptions(url string) Options {
	return Options{
		URL:              url,
		HandshakeTimeout: 2 * time.Second,
		BackoffBase:      30 * time.Millisecond,
		BackoffCap:       100 * time.Millisecond,
		MaxAttempts:      3,
		PingInterval:     time.Hour,
	}
}

func TestConnect_Success(t *testing.T) {
	fs := newFakeServer(t)

	var mu sync.Mutex
	var statuses []bool
	conn := New(testOptions(fs.url()), nil)
	conn.OnStatus(func(up bool) {
		mu.Lock()
		statuses = append(statuses, up)
		mu.Unlock()
	})
	defer conn.Disconnect()

	require.NoError(t, conn.Connect(context.Background(), testToken))
	require.True(t, conn.IsConnected())
	require.Equal(t, testToken, fs.lastToken())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []bool{true}, statuses)
}

func TestConnect_RejectsBadCredentialSynchronously(t *testing.T) {
	t.Parallel()

	conn := New(testOptions("ws://127.0.0.1:0"), nil)
	require.Error(t, conn.Connect(context.Background(), ""))
	require.Error(t, conn.Connect(context.Background(), "short"))
}

func TestConnect_AuthRejected(t *testing.T) {
	fs := newFakeServer(t)
	fs.authOK = false
	fs.rejectMsg = "token expired"

	conn := New(testOptions(fs.url()), nil)
	err := conn.Connect(context.Background(), testToken)
	require.ErrorIs(t, err, ErrAuthRejected)
	require.ErrorContains(t, err, "token expired")
	require.False(t, conn.IsConnected())
}

func TestConnect_HandshakeTimeout(t *testing.T) {
	fs := newFakeServer(t)
	fs.silent = true

	opts := testOptions(fs.url())
	opts.HandshakeTimeout = 150 * time.Millisecond
	conn := New(opts, nil)

	err := conn.Connect(context.Background(), testToken)
	require.ErrorIs(t, err, ErrHandshakeTimeout)
}

func TestConnect_WhileOpenIsNoop(t *testing.T) {
	fs := newFakeServer(t)

	conn := New(testOptions(fs.url()), nil)
	defer conn.Disconnect()

	require.NoError(t, conn.Connect(context.Background(), testToken))
	require.NoError(t, conn.Connect(context.Background(), testToken))

	fs.mu.Lock()
	accepted := len(fs.conns)
	fs.mu.Unlock()
	require.Equal(t, 1, accepted)
}

func TestFramesForwardedInOrder(t *testing.T) {
	fs := newFakeServer(t)

	var mu sync.Mutex
	var got []string
	conn := New(testOptions(fs.url()), func(raw []byte) {
		var probe struct {
			Data struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &probe))
		mu.Lock()
		got = append(got, probe.Data.ID)
		mu.Unlock()
	})
	defer conn.Disconnect()

	require.NoError(t, conn.Connect(context.Background(), testToken))
	for _, id := range []string{"m1", "m2", "m3"} {
		fs.write(map[string]any{"type": "new_message", "data": map[string]any{"id": id}})
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"m1", "m2", "m3"}, got)
}

func TestServerPingAnsweredWithPong(t *testing.T) {
	fs := newFakeServer(t)

	conn := New(testOptions(fs.url()), func([]byte) {})
	defer conn.Disconnect()
	require.NoError(t, conn.Connect(context.Background(), testToken))

	fs.write(map[string]any{"type": "ping"})

	select {
	case frame := <-fs.inbound:
		require.Equal(t, "pong", frame["type"])
	case <-time.After(2 * time.Second):
		t.Fatal("no pong received")
	}
}

func TestReconnect_AfterAbnormalCloseRejoinsRooms(t *testing.T) {
	fs := newFakeServer(t)

	conn := New(testOptions(fs.url()), nil)
	defer conn.Disconnect()

	require.NoError(t, conn.Connect(context.Background(), testToken))
	require.NoError(t, conn.JoinRoom("c1"))

	// Drain the initial join frame.
	select {
	case frame := <-fs.inbound:
		require.Equal(t, "join_chat_room", frame["type"])
	case <-time.After(2 * time.Second):
		t.Fatal("no join frame")
	}

	fs.dropLast()

	// A second accept means the client reconnected on its own.
	select {
	case <-fs.accepted:
	case <-time.After(2 * time.Second):
	}
	select {
	case <-fs.accepted:
		// First receive may have been the initial connect.
	case <-time.After(2 * time.Second):
		t.Fatal("client did not reconnect")
	}

	select {
	case frame := <-fs.inbound:
		require.Equal(t, "join_chat_room", frame["type"])
		require.Equal(t, "c1", frame["chat_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("room not re-joined after reconnect")
	}
}

func TestReconnect_StopsAfterMaxAttempts(t *testing.T) {
	fs := newFakeServer(t)

	opts := testOptions(fs.url())
	opts.MaxAttempts = 2
	conn := New(opts, nil)

	downCh := make(chan error, 1)
	conn.OnDown(func(err error) { downCh <- err })

	require.NoError(t, conn.Connect(context.Background(), testToken))

	// Kill the server so every reconnect attempt fails to dial, then close
	// the upgraded connections directly: the client only notices the outage
	// through its read loop.
	fs.srv.Close()
	fs.dropAll()

	select {
	case err := <-downCh:
		require.ErrorIs(t, err, ErrRetriesExhausted)
	case <-time.After(5 * time.Second):
		t.Fatal("terminal state never surfaced")
	}
	require.False(t, conn.IsConnected())
}

func TestDisconnect_NoReconnect(t *testing.T) {
	fs := newFakeServer(t)

	conn := New(testOptions(fs.url()), nil)
	require.NoError(t, conn.Connect(context.Background(), testToken))

	conn.Disconnect()

	require.Eventually(t, func() bool {
		return !conn.IsConnected()
	}, 2*time.Second, 10*time.Millisecond)

	// Give any (incorrect) reconnect a chance to land.
	time.Sleep(200 * time.Millisecond)
	fs.mu.Lock()
	accepted := len(fs.conns)
	fs.mu.Unlock()
	require.Equal(t, 1, accepted)
}

func TestReconnect_UsesRefreshedCredential(t *testing.T) {
	fs := newFakeServer(t)

	refreshed := "refreshed-token-0123456789"
	opts := testOptions(fs.url())
	opts.Refresh = func(ctx context.Context) (string, error) {
		return refreshed, nil
	}
	conn := New(opts, nil)
	defer conn.Disconnect()

	require.NoError(t, conn.Connect(context.Background(), testToken))
	<-fs.accepted
	fs.dropLast()

	select {
	case <-fs.accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not reconnect")
	}
	require.Equal(t, refreshed, fs.lastToken())
}

func TestSend_WhenDisconnected(t *testing.T) {
	t.Parallel()

	conn := New(testOptions("ws://127.0.0.1:0"), nil)
	require.ErrorIs(t, conn.Send(wire.Ping()), ErrNotConnected)
}
