package repo

import (
	"Deskwire/internal/db"
	"Deskwire/internal/model"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var (
	ErrTicketNotFound = errors.New("ticket not found")
	ErrInvalidStatus  = errors.New("invalid ticket status")
)

// TicketRepository persists support tickets and answers the status
// lookups the messaging layer uses for send-gating.
type TicketRepository interface {
	Create(ctx context.Context, t *model.Ticket) (*model.Ticket, error)
	Get(ctx context.Context, ticketID string) (*model.Ticket, error)
	List(ctx context.Context) ([]model.Ticket, error)
	UpdateStatus(ctx context.Context, ticketID string, status model.TicketStatus) (*model.Ticket, error)
	Status(ctx context.Context, ticketID string) (model.TicketStatus, error)
}

type ticketRepository struct {
	tickets *db.Repository[model.Ticket]
	logger  *zap.Logger
}

func NewTicketRepository(con *mongo.Database, collectionName string, logger *zap.Logger) TicketRepository {
	return &ticketRepository{
		tickets: db.NewRepository[model.Ticket](con, collectionName),
		logger:  logger,
	}
}

func (r *ticketRepository) Create(ctx context.Context, t *model.Ticket) (*model.Ticket, error) {
	if t == nil {
		return nil, errors.New("ticket cannot be nil")
	}

	ctx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	now := time.Now().UTC()
	if t.TicketID == "" {
		t.TicketID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = model.TicketStatusOpen
	}
	if !t.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	t.CreatedAt = now
	t.UpdatedAt = now

	if _, err := r.tickets.Create(ctx, *t); err != nil {
		r.logger.Error("failed to create ticket", zap.Error(err), zap.String("ticket_id", t.TicketID))
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	r.logger.Info("ticket created",
		zap.String("ticket_id", t.TicketID),
		zap.String("requester_id", t.RequesterID),
	)
	return t, nil
}

func (r *ticketRepository) Get(ctx context.Context, ticketID string) (*model.Ticket, error) {
	if ticketID == "" {
		return nil, ErrTicketNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultReadTimeout)
	defer cancel()

	t, err := r.tickets.FindOne(ctx, db.NewFilter().Eq("ticket_id", ticketID).Build())
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return t, nil
}

func (r *ticketRepository) List(ctx context.Context) ([]model.Ticket, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	tickets, err := r.tickets.FindAll(ctx, db.Empty(), opts)
	if err != nil {
		r.logger.Error("failed to list tickets", zap.Error(err))
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	if tickets == nil {
		tickets = []model.Ticket{}
	}
	return tickets, nil
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, ticketID string, status model.TicketStatus) (*model.Ticket, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	ctx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	res := r.tickets.Collection().FindOneAndUpdate(ctx,
		bson.M{"ticket_id": ticketID},
		bson.M{"$set": bson.M{"status": status, "updated_at": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)

	var updated model.Ticket
	if err := res.Decode(&updated); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrTicketNotFound
		}
		r.logger.Error("failed to update ticket status",
			zap.Error(err),
			zap.String("ticket_id", ticketID),
		)
		return nil, fmt.Errorf("update ticket status: %w", err)
	}

	r.logger.Info("ticket status updated",
		zap.String("ticket_id", ticketID),
		zap.String("status", string(status)),
	)
	return &updated, nil
}

// Status returns the ticket's current lifecycle state. The messaging
// layer consults it before every append.
func (r *ticketRepository) Status(ctx context.Context, ticketID string) (model.TicketStatus, error) {
	t, err := r.Get(ctx, ticketID)
	if err != nil {
		return "", err
	}
	return t.Status, nil
}
