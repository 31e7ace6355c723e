package listener

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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"https maps to wss", "https://stream.example.com", "wss://stream.example.com/websocket"},
		{"wss preserved", "wss://stream.example.com", "wss://stream.example.com/websocket"},
		{"http maps to ws", "http://localhost:8080", "ws://localhost:8080/websocket"},
		{"bare host", "stream.example.com", "ws://stream.example.com/websocket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(Config{URL: tt.url}, func([]byte) {})
			got, err := l.buildURL()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// fakeStream is a test killstream server: it accepts one websocket connection,
// records the subscription message, and writes the configured frames.
type fakeStream struct {
	server *httptest.Server

	mu  sync.Mutex
	sub map[string]string

	frames [][]byte
}

func newFakeStream(t *testing.T, frames [][]byte) *fakeStream {
	t.Helper()
	fs := &fakeStream{frames: frames}
	upgrader := websocket.Upgrader{}

	fs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/websocket" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		// First client message is the subscription.
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub map[string]string
		if err := json.Unmarshal(data, &sub); err == nil {
			fs.mu.Lock()
			fs.sub = sub
			fs.mu.Unlock()
		}

		for _, frame := range fs.frames {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}

		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(fs.server.Close)
	return fs
}

func (fs *fakeStream) subscription() map[string]string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.sub
}

func TestListenerReceivesKillmails(t *testing.T) {
	frames := [][]byte{
		[]byte(`{"kind":"killmail","payload":{"killmail_id":1}}`),
		[]byte(`{"kind":"heartbeat"}`),
		[]byte(`not even json`),
		[]byte(`{"kind":"killmail","payload":{"killmail_id":2}}`),
	}
	fs := newFakeStream(t, frames)

	var mu sync.Mutex
	var received []string
	l := New(Config{
		URL:            strings.Replace(fs.server.URL, "http://", "ws://", 1),
		Channel:        "killstream",
		MaxRetries:     3,
		ReconnectDelay: 10 * time.Millisecond,
	}, func(payload []byte) {
		mu.Lock()
		received = append(received, string(payload))
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.JSONEq(t, `{"killmail_id":1}`, received[0])
	assert.JSONEq(t, `{"killmail_id":2}`, received[1])
	mu.Unlock()

	// Subscription handshake announces the channel.
	require.Eventually(t, func() bool {
		sub := fs.subscription()
		return sub != nil
	}, time.Second, 10*time.Millisecond)
	sub := fs.subscription()
	assert.Equal(t, "sub", sub["action"])
	assert.Equal(t, "killstream", sub["channel"])

	// Wrong-kind frames are skipped, not errors.
	_, _, msgs, skipped, _ := l.Stats()
	assert.Equal(t, uint64(2), msgs)
	assert.Equal(t, uint64(1), skipped)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop on cancellation")
	}
}

func TestListenerGivesUpAfterMaxRetries(t *testing.T) {
	l := New(Config{
		URL:            "ws://127.0.0.1:1", // nothing listens here
		MaxRetries:     2,
		ReconnectDelay: time.Millisecond,
	}, func([]byte) {})

	err := l.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries")
}
