package client

import (
	"testing"
	"time"

	"Deskwire/internal/model"
)

func msg(ticketID string, seq int64, body string) model.ChatMessage {
	return model.ChatMessage{
		Seq:       seq,
		TicketID:  ticketID,
		SenderID:  "alice",
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
}

func TestStoreDeduplicatesById(t *testing.T) {
	s := NewTicketStore()

	if !s.Apply(msg("T-1", 1, "first")) {
		t.Error("First apply of id 1 returned false")
	}
	if s.Apply(msg("T-1", 1, "first again")) {
		t.Error("Second apply of id 1 returned true")
	}
	if got := len(s.Messages("T-1")); got != 1 {
		t.Errorf("Store holds %d messages, want 1", got)
	}

	// Same id on a different ticket is a different message.
	if !s.Apply(msg("T-2", 1, "other ticket")) {
		t.Error("Apply of id 1 on another ticket returned false")
	}
}

func TestStoreKeepsMessagesOrdered(t *testing.T) {
	s := NewTicketStore()

	for _, seq := range []int64{3, 1, 5, 2, 4} {
		s.Apply(msg("T-1", seq, "x"))
	}

	got := s.Messages("T-1")
	if len(got) != 5 {
		t.Fatalf("Store holds %d messages, want 5", len(got))
	}
	for i, m := range got {
		if m.Seq != int64(i+1) {
			t.Errorf("Position %d has id %d, want %d", i, m.Seq, i+1)
		}
	}
}

func TestStoreApplyBatchCountsNewMessages(t *testing.T) {
	s := NewTicketStore()
	s.Apply(msg("T-1", 2, "already here"))

	applied := s.ApplyBatch(model.ReplayBatchPayload{
		TicketID: "T-1",
		Messages: []model.ChatMessage{
			msg("T-1", 1, "a"),
			msg("T-1", 2, "b"),
			msg("T-1", 3, "c"),
		},
	})

	if applied != 2 {
		t.Errorf("ApplyBatch applied %d messages, want 2", applied)
	}
	if got := len(s.Messages("T-1")); got != 3 {
		t.Errorf("Store holds %d messages, want 3", got)
	}
}

func TestStoreCanSend(t *testing.T) {
	tests := []struct {
		name   string
		status model.TicketStatus
		known  bool
		want   bool
	}{
		{"unknown ticket", "", false, true},
		{"open", model.TicketStatusOpen, true, true},
		{"in progress", model.TicketStatusInProgress, true, true},
		{"resolved", model.TicketStatusResolved, true, false},
		{"closed", model.TicketStatusClosed, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewTicketStore()
			if tt.known {
				s.SetTicket(model.TicketSummary{TicketID: "T-1", Status: tt.status})
			}
			if got := s.CanSend("T-1"); got != tt.want {
				t.Errorf("CanSend = %v, want %v", got, tt.want)
			}
		})
	}
}
