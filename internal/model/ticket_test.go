package model

import "testing"

func TestTicketStatusValid(t *testing.T) {
	valid := []TicketStatus{TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("%q reported invalid", s)
		}
	}

	invalid := []TicketStatus{"", "open", "DONE", "ARCHIVED"}
	for _, s := range invalid {
		if s.Valid() {
			t.Errorf("%q reported valid", s)
		}
	}
}

func TestTicketStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status TicketStatus
		want   bool
	}{
		{TicketStatusOpen, false},
		{TicketStatusInProgress, false},
		{TicketStatusResolved, true},
		{TicketStatusClosed, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("IsTerminal(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestSenderRoleFor(t *testing.T) {
	tests := []struct {
		role string
		want string
	}{
		{"support", SenderRoleSupport},
		{"admin", SenderRoleSupport},
		{"supervisor", SenderRoleSupport},
		{"user", SenderRoleUser},
		{"", SenderRoleUser},
		{"guest", SenderRoleUser},
	}

	for _, tt := range tests {
		if got := SenderRoleFor(tt.role); got != tt.want {
			t.Errorf("SenderRoleFor(%q) = %q, want %q", tt.role, got, tt.want)
		}
	}
}
