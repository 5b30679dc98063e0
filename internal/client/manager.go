package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"Deskwire/internal/event"
	"Deskwire/internal/model"
)

var (
	ErrNotConnected = errors.New("client: not connected")
	ErrTicketClosed = errors.New("client: ticket no longer accepts messages")
)

// State is the connection lifecycle of a Manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Identity is who this client presents itself as when connecting.
type Identity struct {
	UserID string
	Name   string
	Role   string
}

// Backoff tunes the reconnect schedule. Delay doubles after each
// failed attempt up to MaxDelay. MaxAttempts of zero retries forever.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
}

func (b *Backoff) withDefaults() {
	if b.InitialDelay <= 0 {
		b.InitialDelay = 500 * time.Millisecond
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = 30 * time.Second
	}
}

// Options configures a Manager.
type Options struct {
	// URL is the websocket endpoint, e.g. ws://localhost:8081/ws.
	URL      string
	Identity Identity
	// HeartbeatInterval is how often a probe is sent while connected.
	HeartbeatInterval time.Duration
	Backoff           Backoff
	Dialer            *websocket.Dialer
}

// Manager owns one logical connection to the chat server. It dials,
// reads, dispatches events into the TicketStore and user handlers,
// and transparently reconnects with exponential backoff, re-emitting
// every remembered join so subscriptions survive the drop.
type Manager struct {
	opts  Options
	store *TicketStore

	mu       sync.Mutex
	state    State
	lastErr  error
	conn     *websocket.Conn
	connDone chan struct{}
	latency  time.Duration

	writeMu sync.Mutex

	handlersMu sync.Mutex
	handlers   map[string][]func(json.RawMessage)

	joinedMu sync.Mutex
	joined   map[string]struct{}

	peersMu sync.RWMutex
	peers   map[string]bool
}

// NewManager creates a Manager. Connect must be called before any
// traffic flows.
func NewManager(opts Options) *Manager {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 15 * time.Second
	}
	opts.Backoff.withDefaults()
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}

	return &Manager{
		opts:     opts,
		store:    NewTicketStore(),
		state:    StateDisconnected,
		handlers: make(map[string][]func(json.RawMessage)),
		joined:   make(map[string]struct{}),
		peers:    make(map[string]bool),
	}
}

// Connect dials the server and starts the read and heartbeat loops.
// Calling Connect while already connected or connecting is a no-op.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnected || m.state == StateConnecting || m.state == StateReconnecting {
		m.mu.Unlock()
		return nil
	}
	m.state = StateConnecting
	m.mu.Unlock()

	conn, err := m.dial(ctx)
	if err != nil {
		m.mu.Lock()
		m.state = StateDisconnected
		m.lastErr = err
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.adoptLocked(conn)
	m.mu.Unlock()

	m.rejoinAll()
	return nil
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(m.opts.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("userId", m.opts.Identity.UserID)
	q.Set("name", m.opts.Identity.Name)
	q.Set("role", m.opts.Identity.Role)
	u.RawQuery = q.Encode()

	conn, _, err := m.opts.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// adoptLocked installs conn as the live connection and starts its
// loops. Caller holds m.mu.
func (m *Manager) adoptLocked(conn *websocket.Conn) {
	m.conn = conn
	m.connDone = make(chan struct{})
	m.state = StateConnected
	m.lastErr = nil

	go m.readLoop(conn)
	go m.heartbeatLoop(conn, m.connDone)
}

func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		var evt event.WsEvent
		if err := conn.ReadJSON(&evt); err != nil {
			m.handleDisconnect(conn, err)
			return
		}
		m.dispatch(evt)
	}
}

func (m *Manager) heartbeatLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(m.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			probe := event.HeartbeatPayload{SentAt: time.Now().UnixMilli()}
			_ = m.writeTo(conn, event.EventHeartbeatProbe, probe)
		}
	}
}

// dispatch updates built-in state from a server event, then notifies
// any user handlers registered for it.
func (m *Manager) dispatch(evt event.WsEvent) {
	switch evt.Event {
	case event.EventHeartbeatEcho:
		var probe event.HeartbeatPayload
		if err := json.Unmarshal(evt.Payload, &probe); err == nil && probe.SentAt > 0 {
			rtt := time.Duration(time.Now().UnixMilli()-probe.SentAt) * time.Millisecond
			m.mu.Lock()
			m.latency = rtt
			m.mu.Unlock()
		}

	case event.EventNewMessage:
		var msg model.ChatMessage
		if err := json.Unmarshal(evt.Payload, &msg); err == nil {
			if !m.store.Apply(msg) {
				// Duplicate delivery, nothing to surface.
				return
			}
		}

	case event.EventReplayBatch:
		var batch model.ReplayBatchPayload
		if err := json.Unmarshal(evt.Payload, &batch); err == nil {
			m.store.ApplyBatch(batch)
		}

	case event.EventTicketUpdated:
		var summary model.TicketSummary
		if err := json.Unmarshal(evt.Payload, &summary); err == nil {
			m.store.SetTicket(summary)
		}

	case event.EventPeerOnline:
		var p event.PresencePayload
		if err := json.Unmarshal(evt.Payload, &p); err == nil {
			m.peersMu.Lock()
			m.peers[p.UserID] = true
			m.peersMu.Unlock()
		}

	case event.EventPeerOffline:
		var p event.PresencePayload
		if err := json.Unmarshal(evt.Payload, &p); err == nil {
			m.peersMu.Lock()
			m.peers[p.UserID] = false
			m.peersMu.Unlock()
		}
	}

	m.notifyHandlers(evt)
}

func (m *Manager) notifyHandlers(evt event.WsEvent) {
	m.handlersMu.Lock()
	handlers := m.handlers[evt.Event]
	m.handlersMu.Unlock()

	for _, h := range handlers {
		h(evt.Payload)
	}
}

// On registers a handler for a server event type. Handlers run on the
// read loop goroutine, after the Manager's own state is updated.
func (m *Manager) On(eventName string, handler func(json.RawMessage)) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.handlers[eventName] = append(m.handlers[eventName], handler)
}

// handleDisconnect runs when a connection's read loop dies. A stale
// connection (already replaced or voluntarily closed) is ignored.
func (m *Manager) handleDisconnect(conn *websocket.Conn, err error) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	close(m.connDone)
	m.conn = nil
	_ = conn.Close()

	if m.state == StateDisconnected {
		// Voluntary Disconnect already ran.
		m.mu.Unlock()
		return
	}
	m.state = StateReconnecting
	m.lastErr = err
	m.mu.Unlock()

	go m.reconnectLoop()
}

func (m *Manager) reconnectLoop() {
	delay := m.opts.Backoff.InitialDelay
	attempts := 0

	for {
		time.Sleep(delay)

		m.mu.Lock()
		if m.state != StateReconnecting {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		conn, err := m.dial(ctx)
		cancel()

		if err == nil {
			m.mu.Lock()
			if m.state != StateReconnecting {
				// Disconnected while dialing, drop the new conn.
				m.mu.Unlock()
				conn.Close()
				return
			}
			m.adoptLocked(conn)
			m.mu.Unlock()

			m.rejoinAll()
			return
		}

		attempts++
		if m.opts.Backoff.MaxAttempts > 0 && attempts >= m.opts.Backoff.MaxAttempts {
			m.mu.Lock()
			m.state = StateError
			m.lastErr = err
			m.mu.Unlock()
			return
		}

		delay *= 2
		if delay > m.opts.Backoff.MaxDelay {
			delay = m.opts.Backoff.MaxDelay
		}
	}
}

// Disconnect closes the connection and stops any reconnect attempts.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	conn := m.conn
	if conn != nil {
		close(m.connDone)
	}
	m.conn = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Emit sends an event to the server.
func (m *Manager) Emit(eventName string, payload any) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	return m.writeTo(conn, eventName, payload)
}

func (m *Manager) writeTo(conn *websocket.Conn, eventName string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteJSON(event.WsEvent{Event: eventName, Payload: raw})
}

// JoinTicket subscribes to a ticket's live events. The intent is
// remembered and replayed after every reconnect. Joining before
// Connect is allowed; the join is emitted once a connection exists.
func (m *Manager) JoinTicket(ticketID string) error {
	m.joinedMu.Lock()
	m.joined[ticketID] = struct{}{}
	m.joinedMu.Unlock()

	err := m.Emit(event.EventJoinRoom, event.JoinRoomPayload{TicketID: ticketID})
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

// SendMessage sends a chat message to a ticket. Messages to tickets
// the client knows to be resolved or closed are rejected locally.
func (m *Manager) SendMessage(ticketID, body string) error {
	if !m.store.CanSend(ticketID) {
		return ErrTicketClosed
	}

	return m.Emit(event.EventSendMessage, event.SendMessagePayload{
		TicketID:   ticketID,
		SenderID:   m.opts.Identity.UserID,
		SenderRole: model.SenderRoleFor(m.opts.Identity.Role),
		Body:       body,
	})
}

// SetTyping relays a typing indicator to the other room members.
func (m *Manager) SetTyping(ticketID string, isTyping bool) error {
	return m.Emit(event.EventTyping, event.TypingPayload{
		TicketID: ticketID,
		UserID:   m.opts.Identity.UserID,
		IsTyping: isTyping,
	})
}

func (m *Manager) rejoinAll() {
	m.joinedMu.Lock()
	tickets := make([]string, 0, len(m.joined))
	for id := range m.joined {
		tickets = append(tickets, id)
	}
	m.joinedMu.Unlock()

	for _, id := range tickets {
		_ = m.Emit(event.EventJoinRoom, event.JoinRoomPayload{TicketID: id})
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the most recent connection error, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Latency returns the round-trip time measured by the last heartbeat
// echo, or zero if none has completed yet.
func (m *Manager) Latency() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latency
}

// PeerOnline reports the last known presence of a user.
func (m *Manager) PeerOnline(userID string) bool {
	m.peersMu.RLock()
	defer m.peersMu.RUnlock()
	return m.peers[userID]
}

// Store exposes the client-side conversation cache.
func (m *Manager) Store() *TicketStore {
	return m.store
}
