package progress

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/model"
)

func dial(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e Event
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	return e
}

func TestHub_Publish(t *testing.T) {
	h := NewHub(rate.Inf, 1, nil, zerolog.Nop())
	conn := dial(t, h)

	h.Publish(Event{Type: EventProgress, ImportID: "run-1", Progress: &model.Progress{RowsProcessed: 10, Percent: 50}})
	h.Publish(Event{Type: EventComplete, ImportID: "run-1", Summary: &model.ImportSummary{ID: "run-1", Inserted: 10}})

	first := read(t, conn)
	if first.Type != EventProgress || first.Progress == nil || first.Progress.RowsProcessed != 10 {
		t.Errorf("Unexpected first event %+v", first)
	}
	second := read(t, conn)
	if second.Type != EventComplete || second.Summary == nil || second.Summary.Inserted != 10 {
		t.Errorf("Unexpected second event %+v", second)
	}
}

// TestHub_Throttle verifies that throttled progress events are dropped while the final
// event of an import always arrives.
func TestHub_Throttle(t *testing.T) {
	h := NewHub(rate.Every(time.Hour), 1, nil, zerolog.Nop())
	conn := dial(t, h)

	for i := 1; i <= 3; i++ {
		h.Publish(Event{Type: EventProgress, Progress: &model.Progress{RowsProcessed: i}})
	}
	h.Publish(Event{Type: EventFailed, Error: "boom"})

	first := read(t, conn)
	if first.Type != EventProgress || first.Progress.RowsProcessed != 1 {
		t.Errorf("Expected first progress event, got %+v", first)
	}
	final := read(t, conn)
	if final.Type != EventFailed || final.Error != "boom" {
		t.Errorf("Expected failure event next, got %+v", final)
	}
}

// TestHub_ThrottlePerSubscriber verifies each subscriber has its own progress budget.
//
// WHY: A subscriber that joins mid-import must see progress right away, even when an
// earlier subscriber already used up its budget.
func TestHub_ThrottlePerSubscriber(t *testing.T) {
	h := NewHub(rate.Every(time.Hour), 1, nil, zerolog.Nop())
	early := dial(t, h)
	h.Publish(Event{Type: EventProgress, Progress: &model.Progress{RowsProcessed: 1}})
	if e := read(t, early); e.Progress == nil || e.Progress.RowsProcessed != 1 {
		t.Fatalf("Expected first progress event, got %+v", e)
	}

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	late, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { late.Close() })
	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("Second subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.Publish(Event{Type: EventProgress, Progress: &model.Progress{RowsProcessed: 2}})
	h.Publish(Event{Type: EventComplete})

	if e := read(t, late); e.Type != EventProgress || e.Progress.RowsProcessed != 2 {
		t.Errorf("Expected the late subscriber to get progress 2, got %+v", e)
	}
	if e := read(t, late); e.Type != EventComplete {
		t.Errorf("Expected completion for the late subscriber, got %+v", e)
	}
	if e := read(t, early); e.Type != EventComplete {
		t.Errorf("Expected the early subscriber's progress to be throttled, got %+v", e)
	}
}

func TestHub_Disconnect(t *testing.T) {
	h := NewHub(rate.Inf, 1, nil, zerolog.Nop())
	conn := dial(t, h)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Subscriber was not removed after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
	// Publishing with no subscribers must not block.
	h.Publish(Event{Type: EventComplete})
}

func TestHub_CheckOrigin(t *testing.T) {
	h := NewHub(rate.Inf, 1, []string{"https://dash.example"}, zerolog.Nop())
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := map[string][]string{"Origin": {"https://evil.example"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Error("Expected foreign origin to be rejected")
	}
	header["Origin"] = []string{"https://dash.example"}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("Expected allowed origin to connect, got %v", err)
	}
	conn.Close()
}
