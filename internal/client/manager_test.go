package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"Deskwire/internal/event"
	"Deskwire/internal/model"
)

// chatServer is a minimal in-process stand-in for the socket server.
// It records dials and joins, answers joins with an empty replay,
// echoes heartbeat probes, and lets tests push events or drop
// connections at will.
type chatServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn
	dials int
	joins []string
}

func newChatServer(t *testing.T) *chatServer {
	t.Helper()

	s := &chatServer{}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *chatServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *chatServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.dials++
	s.mu.Unlock()

	for {
		var ev event.WsEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return
		}

		switch ev.Event {
		case event.EventJoinRoom:
			var join event.JoinRoomPayload
			if err := json.Unmarshal(ev.Payload, &join); err != nil {
				continue
			}
			s.mu.Lock()
			s.joins = append(s.joins, join.TicketID)
			s.mu.Unlock()
			s.writeTo(conn, event.EventReplayBatch, model.ReplayBatchPayload{TicketID: join.TicketID})
		case event.EventHeartbeatProbe:
			var probe event.HeartbeatPayload
			if err := json.Unmarshal(ev.Payload, &probe); err != nil {
				continue
			}
			s.writeTo(conn, event.EventHeartbeatEcho, probe)
		}
	}
}

func (s *chatServer) writeTo(conn *websocket.Conn, eventName string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = conn.WriteJSON(event.WsEvent{Event: eventName, Payload: raw})
}

// push delivers an event to the most recently accepted connection.
func (s *chatServer) push(t *testing.T, eventName string, payload any) {
	t.Helper()

	s.mu.Lock()
	if len(s.conns) == 0 {
		s.mu.Unlock()
		t.Fatal("No connection to push to")
	}
	conn := s.conns[len(s.conns)-1]
	s.mu.Unlock()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal %s payload: %v", eventName, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	if err := conn.WriteJSON(event.WsEvent{Event: eventName, Payload: raw}); err != nil {
		t.Fatalf("Failed to push %s: %v", eventName, err)
	}
}

// dropConns closes every accepted connection from the server side.
func (s *chatServer) dropConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		_ = conn.Close()
	}
}

func (s *chatServer) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func (s *chatServer) joinedTickets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.joins))
	copy(out, s.joins)
	return out
}

func newTestManager(srv *chatServer) *Manager {
	return NewManager(Options{
		URL:               srv.url(),
		Identity:          Identity{UserID: "alice", Name: "Alice", Role: "user"},
		HeartbeatInterval: 30 * time.Millisecond,
		Backoff: Backoff{
			InitialDelay: 20 * time.Millisecond,
			MaxDelay:     100 * time.Millisecond,
			MaxAttempts:  20,
		},
	})
}

// waitFor polls cond until it holds or the timeout passes.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestConnectIsIdempotent(t *testing.T) {
	srv := newChatServer(t)
	m := newTestManager(srv)
	defer m.Disconnect()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Second Connect failed: %v", err)
	}

	if got := m.State(); got != StateConnected {
		t.Errorf("State = %v, want %v", got, StateConnected)
	}
	if got := srv.dialCount(); got != 1 {
		t.Errorf("Server saw %d dials, want 1", got)
	}
}

func TestJoinBeforeConnectIsEmittedOnConnect(t *testing.T) {
	srv := newChatServer(t)
	m := newTestManager(srv)
	defer m.Disconnect()

	if err := m.JoinTicket("T-1"); err != nil {
		t.Fatalf("JoinTicket before Connect failed: %v", err)
	}

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	waitFor(t, 2*time.Second, "join to reach server", func() bool {
		return len(srv.joinedTickets()) == 1
	})
	if joins := srv.joinedTickets(); joins[0] != "T-1" {
		t.Errorf("Server saw join for %q, want T-1", joins[0])
	}
}

func TestJoinIntentsReplayedAfterReconnect(t *testing.T) {
	srv := newChatServer(t)
	m := newTestManager(srv)
	defer m.Disconnect()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := m.JoinTicket("T-1"); err != nil {
		t.Fatalf("JoinTicket failed: %v", err)
	}
	if err := m.JoinTicket("T-2"); err != nil {
		t.Fatalf("JoinTicket failed: %v", err)
	}
	waitFor(t, 2*time.Second, "initial joins", func() bool {
		return len(srv.joinedTickets()) == 2
	})

	// Server-side drop; the manager must redial and re-emit every
	// remembered join on the new connection.
	srv.dropConns()

	waitFor(t, 5*time.Second, "reconnect", func() bool {
		return srv.dialCount() == 2 && m.State() == StateConnected
	})
	waitFor(t, 2*time.Second, "joins replayed", func() bool {
		return len(srv.joinedTickets()) == 4
	})

	replayed := srv.joinedTickets()[2:]
	seen := map[string]bool{}
	for _, id := range replayed {
		seen[id] = true
	}
	if !seen["T-1"] || !seen["T-2"] {
		t.Errorf("Replayed joins = %v, want both T-1 and T-2", replayed)
	}
}

func TestBackoffExhaustionEntersErrorState(t *testing.T) {
	srv := newChatServer(t)
	m := NewManager(Options{
		URL:               srv.url(),
		Identity:          Identity{UserID: "alice", Role: "user"},
		HeartbeatInterval: 30 * time.Millisecond,
		Backoff: Backoff{
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     20 * time.Millisecond,
			MaxAttempts:  3,
		},
	})
	defer m.Disconnect()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Take the server away entirely so every redial fails. httptest
	// stops tracking hijacked (upgraded) connections, so the live
	// websocket must be closed explicitly.
	srv.srv.CloseClientConnections()
	srv.srv.Close()
	srv.dropConns()

	waitFor(t, 5*time.Second, "error state", func() bool {
		return m.State() == StateError
	})
	if m.LastError() == nil {
		t.Error("LastError is nil after backoff exhaustion")
	}
}

func TestHeartbeatMeasuresLatency(t *testing.T) {
	srv := newChatServer(t)
	m := newTestManager(srv)
	defer m.Disconnect()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	waitFor(t, 2*time.Second, "latency sample", func() bool {
		return m.Latency() > 0
	})
}

func TestDispatchAppliesAndDeduplicates(t *testing.T) {
	srv := newChatServer(t)
	m := newTestManager(srv)
	defer m.Disconnect()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	msg := model.ChatMessage{Seq: 1, TicketID: "T-1", SenderID: "bob", SenderRole: model.SenderRoleSupport, Body: "hi"}
	srv.push(t, event.EventNewMessage, msg)
	srv.push(t, event.EventNewMessage, msg)
	srv.push(t, event.EventNewMessage, model.ChatMessage{Seq: 2, TicketID: "T-1", SenderID: "bob", SenderRole: model.SenderRoleSupport, Body: "again"})

	waitFor(t, 2*time.Second, "messages in store", func() bool {
		return len(m.Store().Messages("T-1")) == 2
	})

	got := m.Store().Messages("T-1")
	if got[0].Seq != 1 || got[1].Seq != 2 {
		t.Errorf("Store order = [%d %d], want [1 2]", got[0].Seq, got[1].Seq)
	}
}

func TestPresenceTracking(t *testing.T) {
	srv := newChatServer(t)
	m := newTestManager(srv)
	defer m.Disconnect()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	srv.push(t, event.EventPeerOnline, event.PresencePayload{UserID: "bob"})
	waitFor(t, 2*time.Second, "bob online", func() bool {
		return m.PeerOnline("bob")
	})

	srv.push(t, event.EventPeerOffline, event.PresencePayload{UserID: "bob"})
	waitFor(t, 2*time.Second, "bob offline", func() bool {
		return !m.PeerOnline("bob")
	})
}

func TestTicketUpdateGatesSending(t *testing.T) {
	srv := newChatServer(t)
	m := newTestManager(srv)
	defer m.Disconnect()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := m.SendMessage("T-1", "while open"); err != nil {
		t.Fatalf("SendMessage to unknown ticket failed: %v", err)
	}

	srv.push(t, event.EventTicketUpdated, model.TicketSummary{
		TicketID: "T-1",
		Status:   model.TicketStatusClosed,
	})
	waitFor(t, 2*time.Second, "ticket marked closed", func() bool {
		_, ok := m.Store().Ticket("T-1")
		return ok
	})

	if err := m.SendMessage("T-1", "too late"); err != ErrTicketClosed {
		t.Errorf("SendMessage after close = %v, want ErrTicketClosed", err)
	}
}

func TestEmitWithoutConnection(t *testing.T) {
	srv := newChatServer(t)
	m := newTestManager(srv)

	if err := m.Emit(event.EventHeartbeatProbe, event.HeartbeatPayload{SentAt: 1}); err != ErrNotConnected {
		t.Errorf("Emit before Connect = %v, want ErrNotConnected", err)
	}
}

func TestUserHandlersObserveEvents(t *testing.T) {
	srv := newChatServer(t)
	m := newTestManager(srv)
	defer m.Disconnect()

	var mu sync.Mutex
	var bodies []string
	m.On(event.EventNewMessage, func(raw json.RawMessage) {
		var msg model.ChatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		mu.Lock()
		bodies = append(bodies, msg.Body)
		mu.Unlock()
	})

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	srv.push(t, event.EventNewMessage, model.ChatMessage{Seq: 1, TicketID: "T-1", Body: "observe me"})

	waitFor(t, 2*time.Second, "handler invocation", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(bodies) == 1 && bodies[0] == "observe me"
	})
}
