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
)

func testClient(hub *Hub, id string) *Client {
	return &Client{ID: id, Room: StatusRoom, Send: make(chan *Message, 4), Hub: hub}
}

func TestHubRegisterAndUnregister(t *testing.T) {
	hub := NewHub()
	client := testClient(hub, "client-1")

	hub.registerClient(client)
	if hub.RoomSize(StatusRoom) != 1 {
		t.Fatalf("expected room size 1")
	}

	hub.unregisterClient(client)
	if hub.RoomSize(StatusRoom) != 0 {
		t.Fatalf("expected room to be empty")
	}
	if _, ok := <-client.Send; ok {
		t.Fatalf("expected send channel to be closed")
	}

	// second unregister is a no-op
	hub.unregisterClient(client)
}

func TestHubReplaysLatestOnJoin(t *testing.T) {
	hub := NewHub()
	hub.broadcastToRoom(broadcastMessage{room: StatusRoom, message: &Message{Type: "status", Payload: 1}})
	hub.broadcastToRoom(broadcastMessage{room: StatusRoom, message: &Message{Type: "status", Payload: 2}})

	client := testClient(hub, "late")
	hub.registerClient(client)

	select {
	case msg := <-client.Send:
		if msg.Payload != 2 {
			t.Fatalf("expected the latest message, got %v", msg.Payload)
		}
	default:
		t.Fatalf("expected the latest message to be replayed")
	}
}

func TestHubBroadcastIsolatesRooms(t *testing.T) {
	hub := NewHub()
	status := testClient(hub, "a")
	other := &Client{ID: "b", Room: "other", Send: make(chan *Message, 1), Hub: hub}
	hub.registerClient(status)
	hub.registerClient(other)

	hub.broadcastToRoom(broadcastMessage{room: StatusRoom, message: &Message{Type: "status"}})

	if len(status.Send) != 1 || len(other.Send) != 0 {
		t.Fatalf("unexpected delivery: status=%d other=%d", len(status.Send), len(other.Send))
	}
}

func TestBroadcastAfterStopDoesNotBlock(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	for i := 0; i < 300; i++ {
		hub.BroadcastToRoom(StatusRoom, "status", i)
	}
	if hub.Register(testClient(hub, "x")) {
		t.Fatalf("register should fail on a stopped hub")
	}
}

func TestClientReceivesBroadcastOverWebsocket(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn, StatusRoom, r.RemoteAddr)
		hub.Register(client)
		go client.WritePump()
		client.ReadPump()
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.RoomSize(StatusRoom) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never joined")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.BroadcastToRoom(StatusRoom, "status", map[string]bool{"db": true})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var msg struct {
		Type    string          `json:"type"`
		Payload map[string]bool `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("bad frame %s: %v", data, err)
	}
	if msg.Type != "status" || !msg.Payload["db"] {
		t.Fatalf("unexpected frame %s", data)
	}
}
