package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateBackoff(t *testing.T) {
	baseInterval := 2 * time.Second
	maxBackoff := 30 * time.Second

	tests := []struct {
		name     string
		failures int
		want     time.Duration
	}{
		{"zero failures", 0, 2 * time.Second},
		{"negative failures", -1, 2 * time.Second},
		{"one failure", 1, 4 * time.Second},
		{"two failures", 2, 8 * time.Second},
		{"three failures", 3, 16 * time.Second},
		{"four failures capped", 4, 30 * time.Second}, // Would be 32s, capped to 30s
		{"many failures capped", 10, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calculateBackoff(tt.failures, baseInterval, maxBackoff)
			if got != tt.want {
				t.Errorf("calculateBackoff(%d, %v) = %v, want %v", tt.failures, baseInterval, got, tt.want)
			}
		})
	}
}

func TestCalculateBackoff_MaxCap(t *testing.T) {
	// Verify that backoff never exceeds the cap regardless of input
	baseInterval := 2 * time.Second
	maxBackoff := 30 * time.Second
	for failures := 0; failures <= 80; failures++ {
		got := calculateBackoff(failures, baseInterval, maxBackoff)
		if got > maxBackoff || got <= 0 {
			t.Errorf("calculateBackoff(%d, %v) = %v, outside (0, %v]", failures, baseInterval, got, maxBackoff)
		}
	}
}

func TestNew_Validates(t *testing.T) {
	noop := func([]byte) {}

	_, err := New(Options{URL: "http://localhost/ws", Handler: noop})
	assert.Error(t, err)

	_, err = New(Options{URL: "ws://localhost/ws"})
	assert.Error(t, err)

	s, err := New(Options{URL: "ws://localhost/ws", Handler: noop, MinBackoff: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, StateConnecting, s.State(), "reported before Run starts")
	assert.GreaterOrEqual(t, s.opts.MaxBackoff, s.opts.MinBackoff)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "closed", StateClosed.String())
}

// frameServer upgrades every request and hands the connection to serve.
func frameServer(t *testing.T, serve func(conn *websocket.Conn, attempt int)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	var mu sync.Mutex
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		serve(conn, n)
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/rooms/status"
}

type frameLog struct {
	mu     sync.Mutex
	frames []string
}

func (f *frameLog) add(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, string(data))
}

func (f *frameLog) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.frames...)
}

func TestSubscriber_DeliversTextFramesInOrder(t *testing.T) {
	server := frameServer(t, func(conn *websocket.Conn, _ int) {
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[]`))
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0x01})
		_ = conn.WriteMessage(websocket.TextMessage, []byte(``))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ROOM_STATUS_UPDATE","room_id":"1","new_status":"GUIDING"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	var got frameLog
	s, err := New(Options{URL: wsURL(server), Handler: got.add, MinBackoff: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return len(got.snapshot()) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{
		`[]`,
		`{"type":"ROOM_STATUS_UPDATE","room_id":"1","new_status":"GUIDING"}`,
		`garbage`,
	}, got.snapshot())
	assert.Equal(t, StateOpen, s.State())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StateClosed, s.State())
}

func TestSubscriber_ReconnectsAndReportsReopen(t *testing.T) {
	server := frameServer(t, func(conn *websocket.Conn, attempt int) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte{byte('0' + attempt)})
		if attempt == 1 {
			// Drop the first connection abruptly.
			_ = conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	var got frameLog
	var mu sync.Mutex
	var opens []bool
	s, err := New(Options{
		URL:        wsURL(server),
		Handler:    got.add,
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 20 * time.Millisecond,
		OnOpen: func(reconnect bool) {
			mu.Lock()
			opens = append(opens, reconnect)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = s.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(opens) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []bool{false, true}, opens[:2])
	mu.Unlock()
	assert.GreaterOrEqual(t, s.Opens(), int64(2))
	require.Eventually(t, func() bool { return len(got.snapshot()) >= 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"1", "2"}, got.snapshot()[:2])
}

func TestSubscriber_DialFailureRetriesUntilCancelled(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(server)
	server.Close()

	s, err := New(Options{URL: url, Handler: func([]byte) {}, MinBackoff: 5 * time.Millisecond, MaxBackoff: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.NoError(t, s.Run(ctx))
	assert.Zero(t, s.Opens())
	assert.Equal(t, StateClosed, s.State())
}
