package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cpilot-dev/cpilot/internal/domain/events"
	"github.com/cpilot-dev/cpilot/internal/hub"
	"github.com/cpilot-dev/cpilot/internal/testutil"
)

func TestNewServer(t *testing.T) {
	server := NewServer(testutil.NewMockEventHub())

	if server.hub == nil {
		t.Error("expected hub to be set")
	}
	if server.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", server.ClientCount())
	}
}

func TestServer_StartStop(t *testing.T) {
	server := NewServer(testutil.NewMockEventHub())

	if err := server.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestServer_GetClient_NotFound(t *testing.T) {
	server := NewServer(testutil.NewMockEventHub())

	if client := server.GetClient("non-existent"); client != nil {
		t.Error("expected nil for non-existent client")
	}
}

func TestServer_Broadcast_Empty(t *testing.T) {
	server := NewServer(testutil.NewMockEventHub())

	// Broadcast to an empty server should not panic.
	server.Broadcast([]byte("test message"))
}

func TestServer_SetStatusProvider(t *testing.T) {
	server := NewServer(testutil.NewMockEventHub())

	server.SetStatusProvider(&mockStatusProvider{sessions: 2, uptime: 3600})

	if server.statusProvider == nil {
		t.Error("expected statusProvider to be set")
	}
}

type mockStatusProvider struct {
	sessions int
	uptime   int64
}

func (m *mockStatusProvider) ActiveSessions() int  { return m.sessions }
func (m *mockStatusProvider) UptimeSeconds() int64 { return m.uptime }

// dialTestClient stands up an httptest server around HandleUpgrade and
// dials it, returning the live connection.
func dialTestClient(t *testing.T, server *Server) (*websocket.Conn, *httptest.Server) {
	t.Helper()

	testServer := httptest.NewServer(http.HandlerFunc(server.HandleUpgrade))
	wsURL := "ws" + strings.TrimPrefix(testServer.URL, "http")

	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		testServer.Close()
		t.Fatalf("failed to connect: %v", err)
	}
	return ws, testServer
}

func TestServer_EventsReachConnectedClient(t *testing.T) {
	eventHub := hub.New()
	if err := eventHub.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = eventHub.Stop() }()

	server := NewServer(eventHub)
	ws, testServer := dialTestClient(t, server)
	defer testServer.Close()
	defer ws.Close()

	// Wait until the client is registered with the hub.
	deadline := time.Now().Add(2 * time.Second)
	for eventHub.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never subscribed to hub")
		}
		time.Sleep(10 * time.Millisecond)
	}

	eventHub.Publish(events.NewEventWithContext(events.EventTypeQueueUpdated, nil, "ws-1", "s-1"))

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var decoded struct {
		Event       string `json:"event"`
		WorkspaceID string `json:"workspace_id"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Event != string(events.EventTypeQueueUpdated) || decoded.WorkspaceID != "ws-1" {
		t.Errorf("received %s/%s, want queue_updated/ws-1", decoded.Event, decoded.WorkspaceID)
	}
}

func TestServer_SubscribeCommandFiltersWorkspaces(t *testing.T) {
	eventHub := hub.New()
	if err := eventHub.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = eventHub.Stop() }()

	server := NewServer(eventHub)
	ws, testServer := dialTestClient(t, server)
	defer testServer.Close()
	defer ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for eventHub.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never subscribed to hub")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"command":"subscribe","workspace_id":"ws-keep"}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// Wait for the command to land before publishing.
	for start := time.Now(); time.Since(start) < 2*time.Second; {
		server.mu.RLock()
		var filtering bool
		for _, f := range server.filters {
			filtering = f.IsFiltering()
		}
		server.mu.RUnlock()
		if filtering {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	eventHub.Publish(events.NewEventWithContext(events.EventTypeScreenUpdated, nil, "ws-other", "s-1"))
	eventHub.Publish(events.NewEventWithContext(events.EventTypeScreenUpdated, nil, "ws-keep", "s-2"))

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var decoded struct {
		WorkspaceID string `json:"workspace_id"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.WorkspaceID != "ws-keep" {
		t.Errorf("first delivered event is from %q, want ws-keep", decoded.WorkspaceID)
	}
}

func TestServer_ClientCountTracksConnections(t *testing.T) {
	eventHub := hub.New()
	if err := eventHub.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = eventHub.Stop() }()

	server := NewServer(eventHub)
	ws, testServer := dialTestClient(t, server)
	defer testServer.Close()

	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want 1", server.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}

	ws.Close()

	deadline = time.Now().Add(2 * time.Second)
	for server.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d after close, want 0", server.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServer_RemoveClient_Unknown(t *testing.T) {
	server := NewServer(testutil.NewMockEventHub())

	// Must not panic for a client it never saw.
	server.removeClient("non-existent")
}
