package stream

import (
	"bytes"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brensch/runger/game"
	"github.com/brensch/runger/rules"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestHub_BroadcastsTickFrame(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	a, b := dial(t, srv), dial(t, srv)
	defer a.Close()
	defer b.Close()
	waitFor(t, "two clients", func() bool { return hub.Clients() == 2 })

	var obs rules.Observer = hub
	obs.Notify(rules.Notification{Turn: 3, Kind: rules.Moved, Player: 1, Pos: game.Point{X: 2, Y: 5}, Facing: game.Left,
		Occupant: game.Occupant{Kind: game.PlayerOccupant, ID: 1}})
	obs.Notify(rules.Notification{Turn: 3, Kind: rules.FoodPlaced, Player: -1, Pos: game.Point{X: 0, Y: 1},
		Occupant: game.Occupant{Kind: game.FoodOccupant, ID: 9}})
	hub.Flush("gen_1", nil, 3)

	for _, conn := range []*websocket.Conn{a, b} {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read: %v", err)
		}
		if frame.Type != "tick" || frame.Generation != "gen_1" || frame.Turn != 3 || len(frame.Events) != 2 {
			t.Fatalf("frame=%+v", frame)
		}
		moved := frame.Events[0]
		if moved.Kind != "moved" || moved.X != 2 || moved.Y != 5 || moved.Facing != "Left" || moved.Status != "Alive" {
			t.Fatalf("moved=%+v", moved)
		}
		food := frame.Events[1]
		if food.Player != -1 || food.Facing != "" || food.Occupant != game.FoodOccupant.String() {
			t.Fatalf("food=%+v", food)
		}
	}
}

func TestHub_FlushClearsPending(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv)
	defer conn.Close()
	waitFor(t, "client", func() bool { return hub.Clients() == 1 })

	hub.Notify(rules.Notification{Kind: rules.Turned, Player: 0})
	hub.Flush("gen_1", nil, 0)
	hub.Flush("gen_1", nil, 1)

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var first, second Frame
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(first.Events) != 1 || len(second.Events) != 0 || second.Turn != 1 {
		t.Fatalf("first=%+v second=%+v", first, second)
	}
}

func TestHub_DisconnectRemovesClient(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	waitFor(t, "client", func() bool { return hub.Clients() == 1 })
	_ = conn.Close()
	waitFor(t, "disconnect", func() bool { return hub.Clients() == 0 })

	// Publishing with nobody listening is a no-op.
	hub.Publish(Frame{Type: "summary", Generation: "gen_1"})
	hub.Close()
	if hub.Clients() != 0 {
		t.Fatalf("clients=%d", hub.Clients())
	}
}
