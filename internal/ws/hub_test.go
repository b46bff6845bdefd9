package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcastReachesClient(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitFor(t, func() bool { return h.Clients() == 1 })

	h.Publish(map[string]any{"type": "rep_scored", "score": 61})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]any
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got["type"] != "rep_scored" || got["score"] != float64(61) {
		t.Fatalf("unexpected message %v", got)
	}

	conn.Close()
	waitFor(t, func() bool { return h.Clients() == 0 })
}

func TestFullQueueDrops(t *testing.T) {
	h := NewHub()
	for i := 0; i < cap(h.broadcast)+3; i++ {
		h.BroadcastJSON(i)
	}
	if got := h.Dropped(); got != 3 {
		t.Fatalf("expected 3 dropped messages, got %d", got)
	}
}

func TestUnmarshalableValueIsIgnored(t *testing.T) {
	h := NewHub()
	h.BroadcastJSON(make(chan int))
	if len(h.broadcast) != 0 || h.Dropped() != 0 {
		t.Fatalf("expected nothing queued")
	}
}
