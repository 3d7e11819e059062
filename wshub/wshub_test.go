package wshub

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"
)

func newHubServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	h := New()
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, err := websocket.Dial(url, "", srv.URL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func waitForCount(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.Count() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("count = %d, want %d", h.Count(), want)
}

func TestConnectGreeting(t *testing.T) {
	// WHAT: A connecting client is registered and receives the
	// "connected" event.
	// WHY: The dashboard uses the greeting to confirm the live channel
	// is up before hiding its polling fallback.
	h, srv := newHubServer(t)
	ws := dial(t, srv)

	var ev Event
	if err := websocket.JSON.Receive(ws, &ev); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if ev.Type != "connected" {
		t.Errorf("greeting type = %q, want connected", ev.Type)
	}
	waitForCount(t, h, 1)
}

func TestBroadcastReachesAllClients(t *testing.T) {
	// WHAT: One Broadcast is delivered to every connected client.
	// WHY: Several operators keep the dashboard open at once; each must
	// see the same live samples.
	h, srv := newHubServer(t)
	a := dial(t, srv)
	b := dial(t, srv)
	waitForCount(t, h, 2)

	// Skip greetings.
	var ev Event
	websocket.JSON.Receive(a, &ev)
	websocket.JSON.Receive(b, &ev)

	h.Broadcast("activity.sample", map[string]int{"whatsapp": 12})

	for name, ws := range map[string]*websocket.Conn{"a": a, "b": b} {
		var got Event
		if err := websocket.JSON.Receive(ws, &got); err != nil {
			t.Fatalf("client %s receive: %v", name, err)
		}
		if got.Type != "activity.sample" {
			t.Errorf("client %s: type = %q", name, got.Type)
		}
	}
}

func TestStalledClientDropped(t *testing.T) {
	// WHAT: A connected client that never reads is dropped once its
	// write deadline trips, and Broadcast keeps returning meanwhile.
	// WHY: TCP backpressure from a wedged tab leaves the socket open;
	// an unbounded write there would stall every other dashboard.
	h := New(WithWriteTimeout(50 * time.Millisecond))
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)

	dial(t, srv) // never reads, not even the greeting
	waitForCount(t, h, 1)

	// Large frames fill the socket buffers until the deadline trips.
	payload := strings.Repeat("x", 1<<16)
	deadline := time.Now().Add(5 * time.Second)
	for h.Count() > 0 && time.Now().Before(deadline) {
		h.Broadcast("activity.sample", payload)
	}
	if got := h.Count(); got != 0 {
		t.Fatalf("count = %d, want 0 after write timeout", got)
	}
}

func TestDeadClientDropped(t *testing.T) {
	// WHAT: After a client disconnects, broadcasts continue and the
	// count eventually returns to the live client set.
	// WHY: A closed laptop lid must not wedge updates for everyone else.
	h, srv := newHubServer(t)
	a := dial(t, srv)
	b := dial(t, srv)
	waitForCount(t, h, 2)

	var ev Event
	websocket.JSON.Receive(a, &ev)
	websocket.JSON.Receive(b, &ev)

	b.Close()
	waitForCount(t, h, 1)

	h.Broadcast("activity.sample", map[string]int{"facebook": 7})
	var got Event
	if err := websocket.JSON.Receive(a, &got); err != nil {
		t.Fatalf("live client receive: %v", err)
	}
	if got.Type != "activity.sample" {
		t.Errorf("type = %q", got.Type)
	}
}
