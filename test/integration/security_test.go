// Package integration contains security-focused integration tests.
//
// These tests verify that the origin allow-list and the message size limit are
// enforced at the WebSocket boundary.
package integration

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hanbit0/minichat/internal/server"
	"github.com/hanbit0/minichat/test/testhelpers"
)

func wsEndpoint(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
}

// TestOriginValidationEdgeCases tests various edge cases for origin validation.
func TestOriginValidationEdgeCases(t *testing.T) {
	s := testhelpers.NewChatServer(t)
	wsURL := wsEndpoint(s.HTTP.URL)

	t.Run("Missing Origin header", func(t *testing.T) {
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{})
		if err == nil {
			_ = conn.Close()
			_ = resp.Body.Close()
			t.Fatal("Expected connection to fail with missing origin")
		}
		if resp != nil {
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode != http.StatusForbidden {
				t.Errorf("Expected status %d, got %d", http.StatusForbidden, resp.StatusCode)
			}
		}
	})

	t.Run("Malformed Origin URL", func(t *testing.T) {
		malformedOrigins := []string{
			"not-a-url",
			"://missing-scheme",
			"http://",
			"javascript:alert(1)",
		}

		for _, origin := range malformedOrigins {
			header := http.Header{}
			header.Set("Origin", origin)
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
			if err == nil {
				_ = conn.Close()
				_ = resp.Body.Close()
				t.Errorf("Expected connection to fail with malformed origin %q", origin)
				continue
			}
			if resp != nil {
				_ = resp.Body.Close()
			}
		}
	})

	t.Run("Case sensitivity in origin matching", func(t *testing.T) {
		caseVariations := []string{
			"http://LOCALHOST:8080",
			"http://Localhost:8080",
			"HTTP://localhost:8080",
		}

		for _, origin := range caseVariations {
			header := http.Header{}
			header.Set("Origin", origin)
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
			if err != nil {
				t.Errorf("Expected origin %q to be allowed (case-insensitive): %v", origin, err)
			} else {
				_ = conn.Close()
			}
			if resp != nil {
				_ = resp.Body.Close()
			}
		}
	})
}

// TestWildcardOriginAllowsAll verifies that a configured "*" entry accepts any
// origin.
func TestWildcardOriginAllowsAll(t *testing.T) {
	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{"*"}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := server.NewHub(cfg, testhelpers.NewMemoryHistory(), testhelpers.NewMemoryPresence(), logger)
	server.StartHub(hub)
	ts := httptest.NewServer(server.SetupRoutes(hub))
	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(5 * time.Second)
	})

	header := http.Header{}
	header.Set("Origin", "http://anything.example.com")
	conn, resp, err := websocket.DefaultDialer.Dial(wsEndpoint(ts.URL), header)
	if err != nil {
		t.Fatalf("Expected any origin to be allowed with wildcard config: %v", err)
	}
	_ = conn.Close()
	_ = resp.Body.Close()
}

// TestMessageSizeLimitEnforced verifies that the server drops a connection
// sending a payload over the configured limit.
func TestMessageSizeLimitEnforced(t *testing.T) {
	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{testhelpers.TestOrigin}
	cfg.MaxMessageSize = 64

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := server.NewHub(cfg, testhelpers.NewMemoryHistory(), testhelpers.NewMemoryPresence(), logger)
	server.StartHub(hub)
	ts := httptest.NewServer(server.SetupRoutes(hub))
	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(5 * time.Second)
	})

	header := http.Header{}
	header.Set("Origin", testhelpers.TestOrigin)
	conn, resp, err := websocket.DefaultDialer.Dial(wsEndpoint(ts.URL)+"?name=big&room=lobby", header)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	oversized := strings.Repeat("x", 128)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(oversized)); err != nil {
		t.Fatalf("Failed to send oversized message: %v", err)
	}

	// The server closes the connection; subsequent reads must fail.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	sawError := false
	for i := 0; i < 10; i++ {
		if _, _, err := conn.ReadMessage(); err != nil {
			sawError = true
			break
		}
	}
	if !sawError {
		t.Error("Expected connection to be closed after oversized message")
	}
}
