package client

import (
	"sync"

	"Deskwire/internal/model"
)

// TicketStore is the client-side cache of ticket conversations. It
// deduplicates by message id and keeps each ticket's history sorted,
// so replay batches and live events can be applied in any order.
type TicketStore struct {
	mu       sync.RWMutex
	messages map[string][]model.ChatMessage
	seen     map[string]map[int64]struct{}
	tickets  map[string]model.TicketSummary
}

func NewTicketStore() *TicketStore {
	return &TicketStore{
		messages: make(map[string][]model.ChatMessage),
		seen:     make(map[string]map[int64]struct{}),
		tickets:  make(map[string]model.TicketSummary),
	}
}

// Apply inserts a message into its ticket's history, keeping seq order.
// Returns false when the message id was already seen.
func (s *TicketStore) Apply(msg model.ChatMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(msg)
}

// ApplyBatch applies a replayed history and reports how many messages
// were actually new.
func (s *TicketStore) ApplyBatch(batch model.ReplayBatchPayload) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied := 0
	for _, msg := range batch.Messages {
		if s.applyLocked(msg) {
			applied++
		}
	}
	return applied
}

func (s *TicketStore) applyLocked(msg model.ChatMessage) bool {
	seen, ok := s.seen[msg.TicketID]
	if !ok {
		seen = make(map[int64]struct{})
		s.seen[msg.TicketID] = seen
	}
	if _, dup := seen[msg.Seq]; dup {
		return false
	}
	seen[msg.Seq] = struct{}{}

	list := s.messages[msg.TicketID]
	// Messages almost always arrive in order, so scan from the tail.
	i := len(list)
	for i > 0 && list[i-1].Seq > msg.Seq {
		i--
	}
	list = append(list, model.ChatMessage{})
	copy(list[i+1:], list[i:])
	list[i] = msg
	s.messages[msg.TicketID] = list
	return true
}

// Messages returns a copy of the ticket's cached history, ascending by
// message id.
func (s *TicketStore) Messages(ticketID string) []model.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.messages[ticketID]
	out := make([]model.ChatMessage, len(list))
	copy(out, list)
	return out
}

// SetTicket records the latest known state of a ticket.
func (s *TicketStore) SetTicket(summary model.TicketSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[summary.TicketID] = summary
}

// Ticket returns the last known state of a ticket, if any.
func (s *TicketStore) Ticket(ticketID string) (model.TicketSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary, ok := s.tickets[ticketID]
	return summary, ok
}

// CanSend reports whether the ticket is known to accept new messages.
// Unknown tickets are allowed; the authoritative check happens on the
// server.
func (s *TicketStore) CanSend(ticketID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.tickets[ticketID]
	if !ok {
		return true
	}
	return !summary.Status.IsTerminal()
}
