package unit

import (
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/streamchat/internal/chat"
	"github.com/Tyrowin/streamchat/internal/server"
	"github.com/Tyrowin/streamchat/test/testhelpers"
)

// TestHubShutdownContext verifies that the hub loop stops on shutdown.
func TestHubShutdownContext(t *testing.T) {
	hub := newTestHub()

	hubStopped := make(chan struct{})
	go func() {
		hub.Run()
		close(hubStopped)
	}()

	if err := hub.Shutdown(2 * time.Second); err != nil {
		t.Errorf("Shutdown returned error: %v", err)
	}

	select {
	case <-hubStopped:
	case <-time.After(3 * time.Second):
		t.Error("Hub did not stop after shutdown")
	}
}

// TestHubShutdownTimeout verifies that an idle hub stops well within its timeout.
func TestHubShutdownTimeout(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	start := time.Now()
	_ = hub.Shutdown(50 * time.Millisecond)
	elapsed := time.Since(start)

	if elapsed > 200*time.Millisecond {
		t.Errorf("Shutdown took %v, expected around 50ms", elapsed)
	}
}

// TestServiceShutdownTwice verifies that a second shutdown is harmless.
func TestServiceShutdownTwice(t *testing.T) {
	service := server.NewService(testhelpers.TestConfig(), chat.Deps{})

	if err := service.Shutdown(time.Second); err != nil {
		t.Fatalf("first Shutdown() error = %v", err)
	}
	if err := service.Shutdown(time.Second); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

// TestConnectAfterShutdown verifies that a late connection is closed
// instead of hanging on the stopped hub.
func TestConnectAfterShutdown(t *testing.T) {
	service := server.NewService(testhelpers.TestConfig(), chat.Deps{})
	testServer := testhelpers.CreateTestServer(service.Mux)
	defer testServer.Close()

	if err := service.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	url := "ws" + strings.TrimPrefix(testServer.URL, "http") + "/ws"
	conn, err := testhelpers.ConnectWebSocket(url)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("expected going-away close, got %v", err)
	}
}

// TestWriteAfterClientClose verifies that writing to a closed socket fails cleanly.
func TestWriteAfterClientClose(t *testing.T) {
	service := newTestService(t)
	testServer := testhelpers.CreateTestServer(service.Mux)
	defer testServer.Close()

	url := "ws" + strings.TrimPrefix(testServer.URL, "http") + "/ws"
	conn, err := testhelpers.ConnectWebSocket(url)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"echo":"hi"}`)); err != nil {
		t.Errorf("Failed to write message: %v", err)
	}
	_ = conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"echo":"again"}`)); err == nil {
		t.Error("Expected error writing to closed connection")
	}

	if !testhelpers.WaitFor(t, 2*time.Second, func() bool { return service.Hub.ClientCount() == 0 }) {
		t.Errorf("client still registered after disconnect: %d", service.Hub.ClientCount())
	}
}

// TestShutdownForgetsConnectedClients verifies that connections closed by
// shutdown no longer count as live.
func TestShutdownForgetsConnectedClients(t *testing.T) {
	service := server.NewService(testhelpers.TestConfig(), chat.Deps{})
	testServer := testhelpers.CreateTestServer(service.Mux)
	defer testServer.Close()

	url := "ws" + strings.TrimPrefix(testServer.URL, "http") + "/ws"
	const numClients = 3
	for i := 0; i < numClients; i++ {
		conn, err := testhelpers.ConnectWebSocket(url)
		if err != nil {
			t.Fatalf("Failed to connect client %d: %v", i, err)
		}
		defer func() { _ = conn.Close() }()
	}

	if !testhelpers.WaitFor(t, 2*time.Second, func() bool { return service.Hub.ClientCount() == numClients }) {
		t.Fatalf("expected %d registered clients, got %d", numClients, service.Hub.ClientCount())
	}

	if err := service.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if count := service.Hub.ClientCount(); count != 0 {
		t.Errorf("ClientCount() after shutdown = %d, want 0", count)
	}
	if stats := service.Handlers.Stats(); stats.Connections != 0 || stats.Rooms != 0 || stats.Members != 0 {
		t.Errorf("Stats() after shutdown = %+v, want zeros", stats)
	}
}
