package hub

import (
	"Deskwire/internal/event"
	"Deskwire/internal/model"
	"context"
	"encoding/json"
	"log"
	"time"
)

// -----------------------------------------------------------------
// Room Registry - ticket-scoped pub/sub
// -----------------------------------------------------------------

// GetRoom returns the room for a ticket, or nil if nobody has joined it.
func (h *Hub) GetRoom(ticketID string) *Room {
	b := h.shards[getShard(ticketID)]
	b.RLock()
	defer b.RUnlock()
	return b.rooms[ticketID]
}

func (h *Hub) getOrCreateRoom(ticketID string) *Room {
	b := h.shards[getShard(ticketID)]
	b.Lock()
	defer b.Unlock()

	room, ok := b.rooms[ticketID]
	if !ok {
		room = &Room{
			TicketID: ticketID,
			Members:  make(map[string]*Client),
		}
		b.rooms[ticketID] = room
	}
	return room
}

// lockRoomForSend returns the ticket's room with its send lock held,
// creating the room if absent. If the room was collected between the
// lookup and the lock it re-fetches, so the returned room is the one
// in the shard map for as long as the caller holds sendMu.
func (h *Hub) lockRoomForSend(ticketID string) *Room {
	for {
		room := h.getOrCreateRoom(ticketID)
		room.sendMu.Lock()
		if h.GetRoom(ticketID) == room {
			return room
		}
		room.sendMu.Unlock()
	}
}

// joinRoom adds the connection to the ticket's room and replays the
// full message history to that connection only. Joining twice is a
// no-op beyond a fresh replay. The member is added under the bucket
// lock so the collector's emptiness check cannot interleave with it.
func (h *Hub) joinRoom(c *Client, ticketID string) {
	b := h.shards[getShard(ticketID)]
	b.Lock()
	room, ok := b.rooms[ticketID]
	if !ok {
		room = &Room{
			TicketID: ticketID,
			Members:  make(map[string]*Client),
		}
		b.rooms[ticketID] = room
	}
	room.mu.Lock()
	room.Members[c.ID] = c
	room.mu.Unlock()
	b.Unlock()

	c.addRoom(ticketID)
	log.Printf("client %s joined room %s", c.ID, ticketID)

	h.replayHistory(c, ticketID)
}

// leaveRoom removes the connection from a room. Membership is
// ephemeral; the durable state is the message log. A room whose member
// set empties is handed to the collector.
func (h *Hub) leaveRoom(c *Client, ticketID string) {
	b := h.shards[getShard(ticketID)]
	b.Lock()
	room, ok := b.rooms[ticketID]
	if !ok {
		b.Unlock()
		return
	}

	room.mu.Lock()
	delete(room.Members, c.ID)
	empty := len(room.Members) == 0
	room.mu.Unlock()
	b.Unlock()

	log.Printf("client %s removed from room %s", c.ID, ticketID)

	if empty {
		h.collectRoomIfEmpty(room)
	}
}

// collectRoomIfEmpty drops the room from the shard map once it is
// still current and still empty. It takes sendMu first, so a room can
// never be collected in the middle of an append+broadcast, and never
// while a lockRoomForSend holder is working with it.
func (h *Hub) collectRoomIfEmpty(room *Room) {
	room.sendMu.Lock()
	defer room.sendMu.Unlock()

	b := h.shards[getShard(room.TicketID)]
	b.Lock()
	defer b.Unlock()

	if b.rooms[room.TicketID] != room {
		return
	}

	room.mu.RLock()
	empty := len(room.Members) == 0
	room.mu.RUnlock()

	if empty {
		delete(b.rooms, room.TicketID)
	}
}

// replayHistory sends the ticket's ordered history to one connection.
func (h *Hub) replayHistory(c *Client, ticketID string) {
	ctx, cancel := context.WithTimeout(h.ctx, 10*time.Second)
	defer cancel()

	history, err := h.store.History(ctx, ticketID)
	if err != nil {
		log.Printf("history replay failed for room %s: %v", ticketID, err)
		h.sendError(c, "replay_failed", "Failed to load message history")
		return
	}

	payload, err := json.Marshal(model.ReplayBatchPayload{
		TicketID: ticketID,
		Messages: history,
	})
	if err != nil {
		log.Printf("failed to marshal replay batch for room %s: %v", ticketID, err)
		return
	}

	c.SafeSend(event.WsEvent{Event: event.EventReplayBatch, Payload: payload}, sendTimeout)
}

// broadcast delivers an event to every current member of the room.
// Callers that need ordering against the message log hold room.sendMu.
func (h *Hub) broadcast(room *Room, ev event.WsEvent) {
	// collect clients while holding RLock
	room.mu.RLock()
	clients := make([]*Client, 0, len(room.Members))
	for _, c := range room.Members {
		clients = append(clients, c)
	}
	room.mu.RUnlock()

	// deliver to clients without holding lock
	for _, c := range clients {
		if c.SafeSend(ev, sendTimeout) {
			continue
		}

		// egress full -> apply policy
		log.Printf("egress full for client %s in room %s", c.ID, room.TicketID)
		if kickOnFull {
			select {
			case h.unregister <- c:
			default:
			}
		}
	}
}

// BroadcastToRoom delivers an event to a ticket room, serialized with
// the room's message sends. A no-op when nobody has joined the room.
func (h *Hub) BroadcastToRoom(ticketID string, ev event.WsEvent) {
	for {
		room := h.GetRoom(ticketID)
		if room == nil {
			return
		}

		room.sendMu.Lock()
		if h.GetRoom(ticketID) == room {
			h.broadcast(room, ev)
			room.sendMu.Unlock()
			return
		}
		// Room was collected and replaced while we waited for the
		// lock; repeat the lookup against the current one.
		room.sendMu.Unlock()
	}
}
