package hub

import (
	"Deskwire/internal/event"
	"encoding/json"
	"log"

	"Deskwire/internal/model"
)

// -----------------------------------------------------------------
// Ticket State Synchronizer
// -----------------------------------------------------------------

// TicketChanged pushes a ticket lifecycle change into the ticket's room
// so every joined participant sees the new status without reloading.
// The ticket service calls this after each status-mutating update.
func (h *Hub) TicketChanged(summary model.TicketSummary) {
	payload, err := json.Marshal(summary)
	if err != nil {
		log.Printf("failed to marshal ticket summary for %s: %v", summary.TicketID, err)
		return
	}

	h.BroadcastToRoom(summary.TicketID, event.WsEvent{
		Event:   event.EventTicketUpdated,
		Payload: payload,
	})

	log.Printf("ticket %s status broadcast: %s", summary.TicketID, summary.Status)
}
