package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jedp/fptv/internal/domain"
	"github.com/jedp/fptv/internal/eventbus"
	"github.com/jedp/fptv/internal/testutil"
)

func testHub(t *testing.T) (*WebSocketHub, *eventbus.EventBus) {
	t.Helper()
	repo := testutil.NewTestRepo(t)
	eb := eventbus.NewEventBus(repo.DB)
	t.Cleanup(eb.Shutdown)
	return NewWebSocketHub(eb), eb
}

func TestWebSocketHubInit(t *testing.T) {
	hub, eb := testHub(t)

	if hub.clients == nil {
		t.Error("clients map not initialized")
	}
	if hub.broadcast == nil || hub.register == nil || hub.unregister == nil {
		t.Error("hub channels not initialized")
	}
	if hub.eventBus != eb {
		t.Error("eventBus not set")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0 for a fresh hub", hub.ClientCount())
	}
}

// dialHub connects a real WebSocket client to a hub through httptest.
func dialHub(t *testing.T, hub *WebSocketHub) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		}
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.register <- ws
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				hub.unregister <- ws
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestWebSocketHubRegisterUnregister(t *testing.T) {
	hub, _ := testHub(t)

	ws := dialHub(t, hub)

	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "client registration")

	ws.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 }, "client unregistration")
}

func TestWebSocketHubBroadcastsEvents(t *testing.T) {
	hub, eb := testHub(t)

	ws := dialHub(t, hub)
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "client registration")

	err := eb.Publish(domain.Event{
		AggregateType: "scan",
		AggregateID:   "run-1",
		EventType:     domain.ScanProgress,
		EventData:     map[string]interface{}{"message": "scanning"},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := ws.SetReadDeadline(deadline); err != nil {
			t.Fatalf("set deadline: %v", err)
		}
		_, raw, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg struct {
			Type string `json:"type"`
			Data struct {
				EventType string `json:"event_type"`
			} `json:"data"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("decode %q: %v", raw, err)
		}
		if msg.Type == "event" && msg.Data.EventType == string(domain.ScanProgress) {
			return
		}
	}
	t.Fatal("ScanProgress broadcast never arrived")
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
