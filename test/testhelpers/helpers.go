// Package testhelpers provides common utilities for testing the minichat
// server.
//
// It contains in-memory gateway fakes and helpers for spinning up a complete
// relay (hub + HTTP routes) against which WebSocket clients can be dialed, to
// reduce duplication in integration tests.
package testhelpers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hanbit0/minichat/internal/server"
)

// TestOrigin is allow-listed by default in configs built by NewChatServer.
const TestOrigin = "http://localhost:8080"

// MemoryHistory is an in-memory HistoryGateway.
type MemoryHistory struct {
	mu       sync.Mutex
	messages map[string][]server.Message
}

// NewMemoryHistory returns an empty in-memory message log.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{messages: make(map[string][]server.Message)}
}

// Append stores one message for a room.
func (m *MemoryHistory) Append(room string, msg server.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[room] = append(m.messages[room], msg)
	return nil
}

// Recent returns up to limit messages for a room, oldest first.
func (m *MemoryHistory) Recent(room string, limit int) ([]server.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[room]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]server.Message(nil), msgs...), nil
}

// Stored returns everything appended for a room.
func (m *MemoryHistory) Stored(room string) []server.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]server.Message(nil), m.messages[room]...)
}

// MemoryPresence is an in-memory PresenceGateway recording join/leave events.
type MemoryPresence struct {
	mu     sync.Mutex
	Joins  []string
	Leaves []string
}

// NewMemoryPresence returns an empty in-memory presence recorder.
func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{}
}

// RecordJoin notes a join as "room/name".
func (m *MemoryPresence) RecordJoin(room, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Joins = append(m.Joins, room+"/"+name)
	return nil
}

// RecordLeave notes a leave as "room/name".
func (m *MemoryPresence) RecordLeave(room, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Leaves = append(m.Leaves, room+"/"+name)
	return nil
}

// LeaveCount returns how many leaves were recorded.
func (m *MemoryPresence) LeaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Leaves)
}

// ChatServer bundles a running hub and its HTTP test server.
type ChatServer struct {
	Hub      *server.Hub
	History  *MemoryHistory
	Presence *MemoryPresence
	HTTP     *httptest.Server
}

// NewChatServer starts a complete relay backed by in-memory gateways. It is
// torn down automatically when the test finishes.
func NewChatServer(t *testing.T) *ChatServer {
	t.Helper()

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{TestOrigin}

	history := NewMemoryHistory()
	presence := NewMemoryPresence()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hub := server.NewHub(cfg, history, presence, logger)
	server.StartHub(hub)

	ts := httptest.NewServer(server.SetupRoutes(hub))
	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(5 * time.Second)
	})

	return &ChatServer{Hub: hub, History: history, Presence: presence, HTTP: ts}
}

// TryDial opens a WebSocket connection to the relay with the given desired
// name and room, sending an allow-listed Origin header. Unlike Dial it returns
// the error, so it can be used from goroutines.
func (s *ChatServer) TryDial(name, room string) (*websocket.Conn, error) {
	params := url.Values{}
	params.Set("name", name)
	params.Set("room", room)
	wsURL := "ws" + strings.TrimPrefix(s.HTTP.URL, "http") + "/ws?" + params.Encode()
	header := http.Header{"Origin": []string{TestOrigin}}

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// Dial opens a WebSocket connection like TryDial but fails the test on error
// and closes the connection during cleanup.
func (s *ChatServer) Dial(t *testing.T, name, room string) *websocket.Conn {
	t.Helper()

	conn, err := s.TryDial(name, room)
	if err != nil {
		t.Fatalf("Failed to dial as %q in %q: %v", name, room, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// Frame is a decoded wire message with every optional field present.
type Frame struct {
	Type      string                   `json:"type"`
	Text      string                   `json:"text"`
	Sender    string                   `json:"sender"`
	Room      string                   `json:"room"`
	Timestamp string                   `json:"timestamp"`
	MsgID     string                   `json:"msgId"`
	Name      string                   `json:"name"`
	Users     []string                 `json:"users"`
	Messages  []map[string]interface{} `json:"messages"`
	ImageData string                   `json:"imageData"`
}

// ReadFrame reads and decodes the next frame, failing the test on timeout.
func ReadFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}

	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("Failed to decode frame %q: %v", data, err)
	}
	return frame
}

// WaitForFrame reads frames until one of the wanted type arrives. Other
// frames received along the way are discarded.
func WaitForFrame(t *testing.T, conn *websocket.Conn, typ string) Frame {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frame := ReadFrame(t, conn)
		if frame.Type == typ {
			return frame
		}
	}
	t.Fatalf("No %q frame received before deadline", typ)
	return Frame{}
}

// ExpectNoFrame asserts that nothing arrives on the connection within the
// given window.
func ExpectNoFrame(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no frame, got %q", data)
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Fatalf("Expected read timeout, got %v", err)
	}
}

// CloseGracefully performs a WebSocket close handshake from the client side.
func CloseGracefully(conn *websocket.Conn) {
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
}
