package service

import (
	"Deskwire/internal/db"
	"Deskwire/internal/model"
	"Deskwire/internal/repo"
	"context"

	"go.uber.org/zap"
)

// Notifier receives ticket lifecycle changes so live room participants
// learn about them without polling. The websocket hub implements this.
type Notifier interface {
	TicketChanged(summary model.TicketSummary)
}

type TicketService interface {
	CreateTicket(ctx context.Context, subject, requesterID string) (*model.Ticket, error)
	GetTicket(ctx context.Context, ticketID string) (*model.Ticket, error)
	ListTickets(ctx context.Context) ([]model.Ticket, error)
	UpdateTicketStatus(ctx context.Context, ticketID string, status model.TicketStatus) (*model.Ticket, error)
	GetTicketMessages(ctx context.Context, ticketID string, page int64) (*db.PaginatedResult[model.ChatMessage], error)
}

type ticketService struct {
	tickets  repo.TicketRepository
	messages repo.MessageLog
	notifier Notifier
	logger   *zap.Logger
}

func NewTicketService(tickets repo.TicketRepository, messages repo.MessageLog, notifier Notifier, logger *zap.Logger) TicketService {
	return &ticketService{
		tickets:  tickets,
		messages: messages,
		notifier: notifier,
		logger:   logger,
	}
}

func (s *ticketService) CreateTicket(ctx context.Context, subject, requesterID string) (*model.Ticket, error) {
	return s.tickets.Create(ctx, &model.Ticket{
		Subject:     subject,
		RequesterID: requesterID,
	})
}

func (s *ticketService) GetTicket(ctx context.Context, ticketID string) (*model.Ticket, error) {
	return s.tickets.Get(ctx, ticketID)
}

func (s *ticketService) ListTickets(ctx context.Context) ([]model.Ticket, error) {
	return s.tickets.List(ctx)
}

// UpdateTicketStatus persists the transition and then notifies the
// ticket's room. Terminal transitions also flip send-gating for every
// live participant, client- and server-side.
func (s *ticketService) UpdateTicketStatus(ctx context.Context, ticketID string, status model.TicketStatus) (*model.Ticket, error) {
	updated, err := s.tickets.UpdateStatus(ctx, ticketID, status)
	if err != nil {
		return nil, err
	}

	s.logger.Info("ticket status changed",
		zap.String("ticket_id", ticketID),
		zap.String("status", string(status)),
	)

	if s.notifier != nil {
		s.notifier.TicketChanged(updated.Summary())
	}
	return updated, nil
}

func (s *ticketService) GetTicketMessages(ctx context.Context, ticketID string, page int64) (*db.PaginatedResult[model.ChatMessage], error) {
	return s.messages.FilterMessages(ctx, ticketID, page)
}
