package chat

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/ecopower/ecopower/internal/model"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, userID int64) *Client {
	return &Client{
		hub:    hub,
		conn:   nil,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
	}
}

func testHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterUnregister(t *testing.T) {
	hub := testHub()

	c1 := mockClient(hub, 1)
	c2 := mockClient(hub, 2)

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}
	if !hub.Online(1) || !hub.Online(2) {
		t.Error("both users should be online")
	}

	hub.Unregister(c1)

	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}
	if hub.Online(1) {
		t.Error("user 1 should be offline")
	}

	hub.Unregister(c2)
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := testHub()
	c := mockClient(hub, 1)
	hub.Register(c)
	hub.Unregister(c)
	// must not panic
	hub.Unregister(c)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestSendToUserAllDevices(t *testing.T) {
	hub := testHub()

	// the same user on two devices
	c1 := mockClient(hub, 7)
	c2 := mockClient(hub, 7)
	other := mockClient(hub, 8)
	hub.Register(c1)
	hub.Register(c2)
	hub.Register(other)

	delivered := hub.SendToUser(7, Event{
		Type:    EventMessage,
		Message: &model.Message{ID: 42, Body: "hello"},
	})
	if !delivered {
		t.Fatal("expected delivery to succeed")
	}

	for _, c := range []*Client{c1, c2} {
		select {
		case data := <-c.send:
			var got Event
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Type != EventMessage {
				t.Errorf("type = %q, want %q", got.Type, EventMessage)
			}
			if got.Message == nil || got.Message.ID != 42 {
				t.Errorf("message = %+v, want id 42", got.Message)
			}
		default:
			t.Fatal("expected frame on device channel")
		}
	}

	select {
	case <-other.send:
		t.Fatal("other user should not receive the frame")
	default:
	}
}

func TestSendToUserOffline(t *testing.T) {
	hub := testHub()

	if hub.SendToUser(99, Event{Type: EventSystem}) {
		t.Error("delivery to an offline user should report false")
	}

	offline := hub.SendToUsers([]int64{1, 2}, Event{Type: EventSystem})
	if len(offline) != 2 {
		t.Errorf("offline = %v, want both users", offline)
	}
}

func TestSendToUserFullBufferDoesNotBlock(t *testing.T) {
	hub := testHub()
	c := mockClient(hub, 1)
	hub.Register(c)

	// fill the buffer
	for i := 0; i < sendBufferSize; i++ {
		if !hub.SendToUser(1, Event{Type: EventSystem}) {
			t.Fatalf("send %d failed", i)
		}
	}

	// the next send drops the frame instead of blocking
	done := make(chan bool, 1)
	go func() {
		done <- hub.SendToUser(1, Event{Type: EventSystem})
	}()
	if delivered := <-done; delivered {
		t.Error("send to a full buffer should report not delivered")
	}
}
