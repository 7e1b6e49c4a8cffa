// Package testhelpers provides common utilities and helper functions for testing the StreamChat server.
//
// The central piece is ChatEnv: a complete server (registry, hub, routes)
// behind an httptest.Server, backed by an in-memory SQLite database and real
// JWTs, so tests talk to it exactly as a browser would.
package testhelpers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gorm.io/gorm/logger"

	"github.com/Tyrowin/streamchat/internal/auth"
	"github.com/Tyrowin/streamchat/internal/chat"
	"github.com/Tyrowin/streamchat/internal/server"
	"github.com/Tyrowin/streamchat/internal/storage"
)

// TestOrigin is the origin every test connection presents.
const TestOrigin = "http://localhost:8080"

// ChatEnv is a running chat server for tests.
type ChatEnv struct {
	Config  server.Config
	Service *server.Service
	Server  *httptest.Server
	Store   *storage.Store
	Tokens  *auth.TokenManager
}

// TestConfig returns a configuration tuned for tests: the test origin is
// allowed and the rate limit is loose enough not to interfere.
func TestConfig() server.Config {
	cfg := *server.NewConfig()
	cfg.AllowedOrigins = []string{TestOrigin}
	cfg.RateLimit = server.RateLimitConfig{Burst: 1000, RefillInterval: time.Second}
	cfg.JWTSecret = "test-secret"
	cfg.BridgeTimeout = 2 * time.Second
	return cfg
}

// NewChatEnv starts a chat server. configure, if non-nil, adjusts the
// configuration first. Everything is torn down when the test ends.
func NewChatEnv(t *testing.T, configure func(*server.Config)) *ChatEnv {
	t.Helper()

	cfg := TestConfig()
	if configure != nil {
		configure(&cfg)
	}

	db, err := storage.Open(":memory:", logger.Silent)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	store := storage.NewStore(db)

	tokens := auth.NewTokenManager(cfg.Sanitized().AuthConfig())
	deps := chat.Deps{
		Auth:     auth.NewResolver(tokens, store),
		Streams:  store,
		Messages: store,
		Users:    store,
		Blocks:   store,
	}

	service := server.NewService(cfg, deps)
	testServer := httptest.NewServer(service.Mux)

	env := &ChatEnv{
		Config:  service.Config,
		Service: service,
		Server:  testServer,
		Store:   store,
		Tokens:  tokens,
	}
	t.Cleanup(func() {
		if err := service.Shutdown(5 * time.Second); err != nil {
			t.Errorf("Service shutdown failed: %v", err)
		}
		testServer.Close()
		_ = store.Close()
	})
	return env
}

// WSURL returns the WebSocket endpoint of the server.
func (e *ChatEnv) WSURL() string {
	return "ws" + strings.TrimPrefix(e.Server.URL, "http") + "/ws"
}

// CreateUser registers a user, opens a session and returns the user id and
// a valid access token.
func (e *ChatEnv) CreateUser(t *testing.T, nickname string) (int32, string) {
	t.Helper()
	ctx := context.Background()

	id, err := e.Store.CreateUser(ctx, nickname)
	if err != nil {
		t.Fatalf("Failed to create user %q: %v", nickname, err)
	}
	num, err := e.Store.OpenSession(ctx, id)
	if err != nil {
		t.Fatalf("Failed to open session for %q: %v", nickname, err)
	}
	token, err := e.Tokens.GenerateAccessToken(id, num)
	if err != nil {
		t.Fatalf("Failed to issue token for %q: %v", nickname, err)
	}
	return id, token
}

// CreateStream creates a stream owned by ownerID and returns its room id.
func (e *ChatEnv) CreateStream(t *testing.T, ownerID int32, live bool) int32 {
	t.Helper()
	id, err := e.Store.CreateStream(context.Background(), ownerID, "test stream", live)
	if err != nil {
		t.Fatalf("Failed to create stream: %v", err)
	}
	return id
}

// Connect opens a WebSocket to the server and closes it when the test ends.
func (e *ChatEnv) Connect(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, err := ConnectWebSocket(e.WSURL())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// ConnectWebSocket creates a WebSocket connection to the specified URL
// presenting TestOrigin.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	return ConnectWebSocketWithOrigin(url, TestOrigin)
}

// ConnectWebSocketWithOrigin dials url with the given Origin header. An
// empty origin sends none.
func ConnectWebSocketWithOrigin(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// SendFrame writes a raw text frame.
func SendFrame(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("Failed to send %s: %v", frame, err)
	}
}

// ReadEvent reads the next text frame and decodes it as a JSON object.
func ReadEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	var event map[string]any
	if err := json.Unmarshal(raw, &event); err != nil {
		t.Fatalf("Invalid event %s: %v", raw, err)
	}
	return event
}

// ExpectEvent reads the next event and checks that it carries key.
func ExpectEvent(t *testing.T, conn *websocket.Conn, key string) map[string]any {
	t.Helper()
	event := ReadEvent(t, conn)
	if _, ok := event[key]; !ok {
		t.Fatalf("Expected %q event, got %v", key, event)
	}
	return event
}

// ExpectError reads the next event and checks that it is an error with status.
func ExpectError(t *testing.T, conn *websocket.Conn, status int) map[string]any {
	t.Helper()
	event := ExpectEvent(t, conn, "err")
	if event["err"] != float64(status) {
		t.Fatalf("Expected err %d, got %v", status, event)
	}
	return event
}

// ExpectNoEvent checks that nothing arrives within wait. The timed-out read
// leaves the connection unreadable, so this must be the last read on conn;
// mid-test, use ExpectSentinel instead.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no event, got %s", raw)
	}
	if netErr, ok := err.(net.Error); !ok || !netErr.Timeout() {
		t.Fatalf("Expected read timeout, got %v", err)
	}
}

// ExpectSentinel sends an echo sentinel and checks that it is the next event,
// proving that nothing was queued ahead of it.
func ExpectSentinel(t *testing.T, conn *websocket.Conn, sentinel string) {
	t.Helper()
	SendFrame(t, conn, `{"echo":"`+sentinel+`"}`)
	event := ReadEvent(t, conn)
	if event["echo"] != sentinel {
		t.Fatalf("Expected sentinel %q, got %v", sentinel, event)
	}
}

// Join sends a join command and returns the personal join event. An empty
// token joins anonymously.
func Join(t *testing.T, conn *websocket.Conn, roomID int32, token string) map[string]any {
	t.Helper()
	frame := `{"join":` + strconv.Itoa(int(roomID))
	if token != "" {
		frame += `,"access":"` + token + `"`
	}
	SendFrame(t, conn, frame+"}")
	return ExpectEvent(t, conn, "join")
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// WaitFor polls cond until it holds or the timeout expires.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}
