package hub

import (
	"Deskwire/internal/event"
	"Deskwire/internal/model"
	"context"
	"encoding/json"
	"log"
	"time"
)

func (h *Hub) handleEvent(ev event.WsEvent, c *Client) {
	switch ev.Event {
	case event.EventJoinRoom:
		h.handleJoin(ev, c)
	case event.EventSendMessage:
		h.handleSend(ev, c)
	case event.EventHeartbeatProbe:
		h.handleHeartbeat(ev, c)
	case event.EventTyping:
		h.handleTyping(ev, c)
	default:
		log.Printf("unknown event type: %s", ev.Event)
	}
}

func (h *Hub) handleJoin(ev event.WsEvent, c *Client) {
	var payload event.JoinRoomPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		log.Printf("failed to unmarshal join payload: %v", err)
		h.sendError(c, "invalid_payload", "Failed to parse join request")
		return
	}

	if payload.TicketID == "" {
		h.sendError(c, "invalid_ticket_id", "ticketId is required")
		return
	}
	if c.identity.UserID == "" {
		h.sendError(c, "unauthenticated", "Connection has no identity")
		return
	}

	h.joinRoom(c, payload.TicketID)
}

// handleSend appends a message to the ticket log and fans it out to the
// room. The append and the broadcast happen under the room's send lock,
// so members observe messages in log order, and nothing is broadcast
// that was not durably appended first.
func (h *Hub) handleSend(ev event.WsEvent, c *Client) {
	var payload event.SendMessagePayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		log.Printf("failed to unmarshal send payload: %v", err)
		h.sendError(c, "invalid_payload", "Failed to parse send request")
		return
	}

	if payload.TicketID == "" {
		h.sendError(c, "invalid_ticket_id", "ticketId is required")
		return
	}
	if payload.Body == "" {
		h.sendError(c, "empty_body", "Message body is required")
		return
	}
	if c.identity.UserID == "" {
		h.sendError(c, "unauthenticated", "Connection has no identity")
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, 10*time.Second)
	defer cancel()

	status, err := h.tickets.Status(ctx, payload.TicketID)
	if err != nil {
		log.Printf("status lookup failed for ticket %s: %v", payload.TicketID, err)
		h.sendError(c, "ticket_lookup_failed", "Failed to look up ticket status")
		return
	}
	if status.IsTerminal() {
		h.sendError(c, "ticket_closed", "Ticket no longer accepts messages")
		return
	}

	// The stored role comes from the connection identity, never from
	// the payload.
	role := model.SenderRoleFor(c.identity.Role)

	room := h.lockRoomForSend(payload.TicketID)
	// A send to a ticket nobody joined must not leave an empty room
	// behind. The collector runs after the send lock is released.
	defer h.collectRoomIfEmpty(room)
	defer room.sendMu.Unlock()

	msg, err := h.store.Append(ctx, payload.TicketID, c.identity.UserID, role, payload.Body)
	if err != nil {
		log.Printf("append failed for ticket %s: %v", payload.TicketID, err)
		h.sendError(c, "message_store_failed", "Failed to store message")
		return
	}

	out, err := json.Marshal(msg)
	if err != nil {
		log.Printf("failed to marshal message %d for ticket %s: %v", msg.Seq, msg.TicketID, err)
		return
	}

	h.broadcast(room, event.WsEvent{Event: event.EventNewMessage, Payload: out})
}

// handleHeartbeat echoes the probe payload back unchanged; the client
// computes latency from its own embedded timestamp.
func (h *Hub) handleHeartbeat(ev event.WsEvent, c *Client) {
	c.SafeSend(event.WsEvent{Event: event.EventHeartbeatEcho, Payload: ev.Payload}, sendTimeout)
}

// handleTyping relays a typing indicator to the other members of the
// room. Nothing is persisted.
func (h *Hub) handleTyping(ev event.WsEvent, c *Client) {
	var payload event.TypingPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		log.Printf("failed to unmarshal typing payload: %v", err)
		return
	}
	if payload.TicketID == "" || !c.InRoom(payload.TicketID) {
		return
	}

	payload.UserID = c.identity.UserID
	out, err := json.Marshal(payload)
	if err != nil {
		return
	}

	room := h.GetRoom(payload.TicketID)
	if room == nil {
		return
	}

	room.mu.RLock()
	members := make([]*Client, 0, len(room.Members))
	for _, member := range room.Members {
		if member.ID != c.ID {
			members = append(members, member)
		}
	}
	room.mu.RUnlock()

	ev = event.WsEvent{Event: event.EventPeerTyping, Payload: out}
	for _, member := range members {
		member.SafeSend(ev, sendTimeout)
	}
}

func (h *Hub) sendError(c *Client, code, message string) {
	payload, err := json.Marshal(event.ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	c.SafeSend(event.WsEvent{Event: event.EventError, Payload: payload}, sendTimeout)
}
