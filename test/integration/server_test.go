package integration

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/hanbit0/minichat/test/testhelpers"
)

// TestHealthEndpoint verifies the health check with the real route setup.
func TestHealthEndpoint(t *testing.T) {
	s := testhelpers.NewChatServer(t)

	resp, err := http.Get(s.HTTP.URL + "/")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Expected content type text/plain, got %s", ct)
	}
}

// TestMetricsEndpoint verifies that Prometheus metrics are exposed.
func TestMetricsEndpoint(t *testing.T) {
	s := testhelpers.NewChatServer(t)

	resp, err := http.Get(s.HTTP.URL + "/metrics")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	if !strings.Contains(string(body), "minichat_") {
		t.Errorf("Expected minichat metrics in response")
	}
}

// TestWebSocketRejectsNonGet verifies the upgrade endpoint only accepts GET.
func TestWebSocketRejectsNonGet(t *testing.T) {
	s := testhelpers.NewChatServer(t)

	resp, err := http.Post(s.HTTP.URL+"/ws", "text/plain", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected status code %d, got %d", http.StatusMethodNotAllowed, resp.StatusCode)
	}
}

// TestWebSocketRejectsDisallowedOrigin verifies the origin allow-list blocks
// upgrades from unknown origins.
func TestWebSocketRejectsDisallowedOrigin(t *testing.T) {
	s := testhelpers.NewChatServer(t)

	req, err := http.NewRequest(http.MethodGet, s.HTTP.URL+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Origin", "http://evil.example.com")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected status code %d, got %d", http.StatusForbidden, resp.StatusCode)
	}
}
