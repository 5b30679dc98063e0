package event

import "encoding/json"

// Event types - Client to Server
const (
	EventJoinRoom       = "join_room"
	EventSendMessage    = "send_message"
	EventHeartbeatProbe = "heartbeat_probe"
	EventTyping         = "typing"
)

// Event types - Server to Client
const (
	EventReplayBatch   = "replay_batch"
	EventNewMessage    = "new_message"
	EventTicketUpdated = "ticket_updated"
	EventPeerOnline    = "peer_online"
	EventPeerOffline   = "peer_offline"
	EventHeartbeatEcho = "heartbeat_echo"
	EventPeerTyping    = "peer_typing"
	EventError         = "error"
)

// WsEvent is the envelope for every frame on the socket. Payload shape
// is discriminated by Event.
type WsEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// JoinRoomPayload subscribes the connection to a ticket room and
// triggers a history replay to that connection only.
type JoinRoomPayload struct {
	TicketID string `json:"ticketId"`
}

// SendMessagePayload carries an outgoing chat message. SenderID and
// SenderRole are advisory; the server resolves both from the
// authenticated connection identity.
type SendMessagePayload struct {
	TicketID   string `json:"ticketId"`
	SenderID   string `json:"senderId"`
	SenderRole string `json:"senderRole"`
	Body       string `json:"body"`
}

// HeartbeatPayload is echoed back unchanged so the client can compute
// round-trip latency from its own clock.
type HeartbeatPayload struct {
	SentAt int64 `json:"sentAt"` // unix milliseconds, client clock
}

// PresencePayload announces that an identity went online or offline.
type PresencePayload struct {
	UserID string `json:"userId"`
}

// TypingPayload relays a typing indicator to the other room members.
type TypingPayload struct {
	TicketID string `json:"ticketId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// ErrorPayload is sent to a single client when its request is rejected.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
