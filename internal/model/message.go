package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Sender roles recorded on messages. The role is resolved once, at send
// time, from the sender's administrative role; it never changes after
// the message is created, so history stays interpretable even if the
// user's role changes later.
const (
	SenderRoleUser    = "user"
	SenderRoleSupport = "support"
)

// SenderRoleFor maps an administrative role to the sender role stamped
// on outgoing messages. Support staff write as "support", everyone
// else as "user".
func SenderRoleFor(adminRole string) string {
	switch adminRole {
	case "support", "admin", "supervisor":
		return SenderRoleSupport
	default:
		return SenderRoleUser
	}
}

// ChatMessage represents one support-ticket chat message in MongoDB.
// Seq is assigned by the message log, strictly increasing within a
// ticket, and is the sole client-side deduplication key.
type ChatMessage struct {
	ID         primitive.ObjectID `json:"-" bson:"_id,omitempty"`
	Seq        int64              `json:"id" bson:"seq"`
	TicketID   string             `json:"ticketId" bson:"ticket_id"`
	SenderID   string             `json:"senderId" bson:"sender_id"`
	SenderRole string             `json:"senderRole" bson:"sender_role"`
	Body       string             `json:"body" bson:"body"`
	CreatedAt  time.Time          `json:"createdAt" bson:"created_at"`
}

// ReplayBatchPayload delivers a ticket's full history, ascending by
// message id, to a freshly joined connection.
type ReplayBatchPayload struct {
	TicketID string        `json:"ticketId"`
	Messages []ChatMessage `json:"messages"`
}
