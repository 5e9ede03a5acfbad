package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensegate/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		PingPeriod:      time.Second,
		PongWait:        2 * time.Second,
	}
}

// startHub runs a hub behind a test server and tears both down with t
func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(testConfig(), testLogger(), nil)
	hub.Start()
	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Stop()
		server.Close()
	})
	return hub, server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_StartStop(t *testing.T) {
	hub := NewHub(testConfig(), testLogger(), nil)

	hub.Start()
	hub.Start()
	hub.Stop()
	hub.Stop()

	assert.False(t, hub.Broadcast([]byte("{}")))
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_StopWithoutStart(t *testing.T) {
	hub := NewHub(testConfig(), testLogger(), nil)
	assert.NotPanics(t, hub.Stop)
}

func TestHub_GreetsAndBroadcasts(t *testing.T) {
	hub, server := startHub(t)

	first := dial(t, server)
	second := dial(t, server)

	assert.Equal(t, TypeConnection, readJSON(t, first)["type"])
	assert.Equal(t, TypeConnection, readJSON(t, second)["type"])
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.BroadcastJSON(map[string]string{"type": "license-checking"}))
	assert.Equal(t, "license-checking", readJSON(t, first)["type"])
	assert.Equal(t, "license-checking", readJSON(t, second)["type"])
}

func TestHub_UnregistersClosedClients(t *testing.T) {
	hub, server := startHub(t)

	var (
		mu     sync.Mutex
		counts []int
	)
	remove := hub.OnClientCount(func(count int) {
		mu.Lock()
		counts = append(counts, count)
		mu.Unlock()
	})
	defer remove()

	conn := dial(t, server)
	readJSON(t, conn)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(counts) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []int{1, 0}, counts)
	mu.Unlock()
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	_, server := startHub(t)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	header := http.Header{"Origin": []string{"http://evil.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		conn.Close()
	}
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSameOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{"no origin", "", "127.0.0.1:8765", true},
		{"same host", "http://127.0.0.1:8765", "127.0.0.1:8765", true},
		{"other port", "http://127.0.0.1:9999", "127.0.0.1:8765", false},
		{"other host", "https://evil.example", "127.0.0.1:8765", false},
		{"malformed", "http://%zz", "127.0.0.1:8765", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws/license", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, sameOrigin(r))
		})
	}
}
