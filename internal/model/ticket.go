package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TicketStatus is the lifecycle state of a support ticket.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// Valid reports whether s is a known ticket status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the ticket no longer accepts new messages.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusResolved || s == TicketStatusClosed
}

// Ticket represents a support ticket document in MongoDB.
type Ticket struct {
	ID          primitive.ObjectID `json:"-" bson:"_id,omitempty"`
	TicketID    string             `json:"ticketId" bson:"ticket_id"`
	Subject     string             `json:"subject" bson:"subject"`
	RequesterID string             `json:"requesterId" bson:"requester_id"`
	AssigneeID  string             `json:"assigneeId" bson:"assignee_id"`
	Status      TicketStatus       `json:"status" bson:"status"`
	CreatedAt   time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt   time.Time          `json:"updatedAt" bson:"updated_at"`
}

// Summary is the shape broadcast into the ticket's room after a
// lifecycle change.
func (t Ticket) Summary() TicketSummary {
	return TicketSummary{
		TicketID:    t.TicketID,
		Subject:     t.Subject,
		RequesterID: t.RequesterID,
		AssigneeID:  t.AssigneeID,
		Status:      t.Status,
		UpdatedAt:   t.UpdatedAt,
	}
}

// TicketSummary is the ticket_updated wire payload.
type TicketSummary struct {
	TicketID    string       `json:"ticketId"`
	Subject     string       `json:"subject"`
	RequesterID string       `json:"requesterId"`
	AssigneeID  string       `json:"assigneeId,omitempty"`
	Status      TicketStatus `json:"status"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}
