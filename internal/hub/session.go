package hub

import (
	"Deskwire/internal/event"
	"encoding/json"
	"log"
	"time"
)

// -----------------------------------------------------------------
// Session Registry - identity presence tracking
// -----------------------------------------------------------------

// addSession records the connection under its identity. The first live
// session for an identity flips it online and announces that to every
// other connected client.
func (h *Hub) addSession(c *Client) {
	userID := c.identity.UserID

	h.sessionsMu.Lock()
	first := len(h.sessions[userID]) == 0
	h.sessions[userID] = append(h.sessions[userID], c)
	h.sessionsMu.Unlock()

	if first {
		h.broadcastPresence(event.EventPeerOnline, userID)
	}
}

// removeSession drops the connection. When the identity's session count
// reaches zero it flips offline and that is announced.
func (h *Hub) removeSession(c *Client) {
	userID := c.identity.UserID

	h.sessionsMu.Lock()
	clients := h.sessions[userID]
	removed := false
	for i, cl := range clients {
		if cl.ID == c.ID {
			clients = append(clients[:i], clients[i+1:]...)
			removed = true
			break
		}
	}
	if len(clients) == 0 {
		delete(h.sessions, userID)
	} else {
		h.sessions[userID] = clients
	}
	last := removed && len(clients) == 0
	h.sessionsMu.Unlock()

	if last {
		h.broadcastPresence(event.EventPeerOffline, userID)
	}
}

// broadcastPresence delivers a presence flip to every connection except
// the subject's own. Presence is connection-scoped: no room membership
// is required to observe it.
func (h *Hub) broadcastPresence(eventName, userID string) {
	payload, err := json.Marshal(event.PresencePayload{UserID: userID})
	if err != nil {
		log.Printf("failed to marshal presence payload: %v", err)
		return
	}
	ev := event.WsEvent{Event: eventName, Payload: payload}

	for _, c := range h.allClients() {
		if c.identity.UserID == userID {
			continue
		}
		c.SafeSend(ev, sendTimeout)
	}

	log.Printf("presence broadcast: %s %s", eventName, userID)
}

// allClients snapshots every live connection.
func (h *Hub) allClients() []*Client {
	h.sessionsMu.RLock()
	defer h.sessionsMu.RUnlock()

	clients := make([]*Client, 0, len(h.sessions))
	for _, cs := range h.sessions {
		clients = append(clients, cs...)
	}
	return clients
}

// IsOnline reports whether the identity has at least one live session.
func (h *Hub) IsOnline(userID string) bool {
	h.sessionsMu.RLock()
	defer h.sessionsMu.RUnlock()
	return len(h.sessions[userID]) > 0
}

// OnlineUserIDs returns every identity with at least one live session.
func (h *Hub) OnlineUserIDs() []string {
	h.sessionsMu.RLock()
	defer h.sessionsMu.RUnlock()

	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	return ids
}

// -----------------------------------------------------------------
// Stale Session Reaper
// -----------------------------------------------------------------

// reapStaleSessions force-removes sessions that stayed silent for more
// than HeartbeatMissLimit probe intervals. This protects the registry
// against half-open connections that never produce a read error.
func (h *Hub) reapStaleSessions() {
	interval := h.opts.HeartbeatInterval
	cutoff := interval * time.Duration(h.opts.HeartbeatMissLimit)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			for _, c := range h.allClients() {
				if time.Since(c.LastSeen()) <= cutoff {
					continue
				}
				log.Printf("reaping stale session %s (user %s)", c.ID, c.identity.UserID)
				select {
				case h.unregister <- c:
				default:
					// unregister queue full; the read pump's own
					// cleanup will catch it once the conn closes
				}
				c.Close()
			}
		}
	}
}
