package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/callscribe/server/pkg/logger"
)

func newTestHub(t *testing.T) (*Server, string) {
	t.Helper()
	s := NewServer(logger.NewNop())
	go s.Run()

	ts := httptest.NewServer(http.HandlerFunc(s.HandleConnection))
	t.Cleanup(ts.Close)

	return s, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *gorilla.Conn {
	t.Helper()
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, s *Server, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("client count = %d, want %d", s.ClientCount(), want)
}

func readMessage(t *testing.T, conn *gorilla.Conn) *Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return &msg
}

func TestBroadcastReachesSubscriber(t *testing.T) {
	s, url := newTestHub(t)
	conn := dial(t, url)
	waitForClients(t, s, 1)

	s.Broadcast(&Message{
		Type: EventSegment,
		Data: map[string]any{"text": "hello", "start": 1.5},
	})

	msg := readMessage(t, conn)
	if msg.Type != EventSegment {
		t.Errorf("type = %q, want %q", msg.Type, EventSegment)
	}
	if msg.Data["text"] != "hello" {
		t.Errorf("text = %v, want hello", msg.Data["text"])
	}
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	s, url := newTestHub(t)
	conn1 := dial(t, url)
	conn2 := dial(t, url)
	waitForClients(t, s, 2)

	s.Broadcast(&Message{Type: EventStatus, Data: map[string]any{"state": "processing"}})

	for i, conn := range []*gorilla.Conn{conn1, conn2} {
		msg := readMessage(t, conn)
		if msg.Type != EventStatus {
			t.Errorf("subscriber %d type = %q, want %q", i, msg.Type, EventStatus)
		}
	}
}

func TestDisconnectedClientRemoved(t *testing.T) {
	s, url := newTestHub(t)
	conn := dial(t, url)
	waitForClients(t, s, 1)

	conn.Close()
	waitForClients(t, s, 0)

	// Broadcasting after the disconnect must not panic or block.
	s.Broadcast(&Message{Type: EventStatus, Data: map[string]any{"state": "idle"}})
}

func TestLateJoinerMissesEarlierEvents(t *testing.T) {
	s, url := newTestHub(t)

	s.Broadcast(&Message{Type: EventStatus, Data: map[string]any{"state": "recording"}})
	time.Sleep(50 * time.Millisecond)

	conn := dial(t, url)
	waitForClients(t, s, 1)

	s.Broadcast(&Message{Type: EventStatus, Data: map[string]any{"state": "processing"}})

	msg := readMessage(t, conn)
	if got := msg.Data["state"]; got != "processing" {
		t.Errorf("late joiner saw state %v, want processing", got)
	}
}
