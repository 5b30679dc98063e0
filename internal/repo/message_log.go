package repo

import (
	"Deskwire/internal/db"
	"Deskwire/internal/model"
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var (
	ErrMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")
	ErrInvalidTicketID    = errors.New("invalid ticket ID: cannot be empty")
	ErrEmptyMessageBody   = errors.New("invalid message: body cannot be empty")
	ErrOperationTimeout   = errors.New("operation timeout exceeded")
)

const (
	// Timeouts
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 30 * time.Second

	// Retry configuration
	maxRetries     = 3
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 2 * time.Second
)

// MessageLog is the durable, ordered record of chat for each ticket.
// Append assigns each message a strictly increasing per-ticket id;
// History returns the full log in ascending id order.
type MessageLog interface {
	Append(ctx context.Context, ticketID, senderID, senderRole, body string) (model.ChatMessage, error)
	History(ctx context.Context, ticketID string) ([]model.ChatMessage, error)
	FilterMessages(ctx context.Context, ticketID string, page int64) (*db.PaginatedResult[model.ChatMessage], error)
}

type messageLog struct {
	messages *db.Repository[model.ChatMessage]
	counters *mongo.Collection
	logger   *zap.Logger
}

func NewMessageLog(con *mongo.Database, messagesCollection, countersCollection string, logger *zap.Logger) MessageLog {
	return &messageLog{
		messages: db.NewRepository[model.ChatMessage](con, messagesCollection),
		counters: con.Collection(countersCollection),
		logger:   logger,
	}
}

// -----------------------------------------------------------------------------
// Append
// -----------------------------------------------------------------------------

func (m *messageLog) Append(ctx context.Context, ticketID, senderID, senderRole, body string) (model.ChatMessage, error) {
	if ticketID == "" {
		return model.ChatMessage{}, ErrInvalidTicketID
	}
	if body == "" {
		return model.ChatMessage{}, ErrEmptyMessageBody
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	seq, err := m.nextSeq(ctx, ticketID)
	if err != nil {
		m.logger.Error("failed to allocate message seq",
			zap.Error(err),
			zap.String("ticket_id", ticketID),
		)
		return model.ChatMessage{}, fmt.Errorf("allocate seq: %w", err)
	}

	msg := model.ChatMessage{
		Seq:        seq,
		TicketID:   ticketID,
		SenderID:   senderID,
		SenderRole: senderRole,
		Body:       body,
		CreatedAt:  time.Now().UTC(),
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := m.waitForRetry(ctx, attempt); err != nil {
				return model.ChatMessage{}, err
			}
			m.logger.Warn("retrying message insert",
				zap.String("ticket_id", ticketID),
				zap.Int64("seq", seq),
				zap.Int("attempt", attempt+1),
			)
		}

		if _, err := m.messages.Create(ctx, msg); err == nil {
			m.logger.Info("message appended",
				zap.String("ticket_id", ticketID),
				zap.Int64("seq", seq),
				zap.String("sender_id", senderID),
			)
			return msg, nil
		} else {
			lastErr = err
			if !m.isRetryableError(err) {
				break
			}
		}
	}

	m.logger.Error("failed to append message after all retries",
		zap.Error(lastErr),
		zap.String("ticket_id", ticketID),
	)
	return model.ChatMessage{}, fmt.Errorf("append message: %w", lastErr)
}

// nextSeq atomically advances the per-ticket counter and returns the
// freshly issued value. The counter document is created on first use.
func (m *messageLog) nextSeq(ctx context.Context, ticketID string) (int64, error) {
	res := m.counters.FindOneAndUpdate(ctx,
		bson.M{"ticket_id": ticketID},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After),
	)

	var out struct {
		Seq int64 `bson:"seq"`
	}
	if err := res.Decode(&out); err != nil {
		return 0, err
	}
	return out.Seq, nil
}

// -----------------------------------------------------------------------------
// History
// -----------------------------------------------------------------------------

func (m *messageLog) History(ctx context.Context, ticketID string) ([]model.ChatMessage, error) {
	if ticketID == "" {
		return nil, ErrInvalidTicketID
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("ticket_id", ticketID).Build()
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})

	messages, err := m.messages.FindAll(ctx, filter, opts)
	if err != nil {
		return nil, m.handleReadError(err, ticketID)
	}
	if messages == nil {
		messages = []model.ChatMessage{}
	}

	m.logger.Debug("history loaded",
		zap.String("ticket_id", ticketID),
		zap.Int("count", len(messages)),
	)
	return messages, nil
}

// FilterMessages is the paginated variant backing the HTTP history API.
func (m *messageLog) FilterMessages(ctx context.Context, ticketID string, page int64) (*db.PaginatedResult[model.ChatMessage], error) {
	if ticketID == "" {
		return nil, ErrInvalidTicketID
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("ticket_id", ticketID).Build()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := m.waitForRetry(ctx, attempt); err != nil {
				return nil, err
			}
		}

		result, err := m.messages.FindWithPagination(ctx, filter, db.PaginationParams{
			Page:     page,
			PageSize: 25,
			SortBy:   "seq",
			SortDesc: false,
		})
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !m.isRetryableError(err) {
			break
		}
	}

	return nil, m.handleReadError(lastErr, ticketID)
}

// -----------------------------------------------------------------------------
// Private Helper Methods
// -----------------------------------------------------------------------------

func (m *messageLog) ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (m *messageLog) waitForRetry(ctx context.Context, attempt int) error {
	delay := time.Duration(1<<uint(attempt)) * baseRetryDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (m *messageLog) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return true
	}

	return false
}

func (m *messageLog) handleReadError(err error, ticketID string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		m.logger.Error("read timeout", zap.String("ticket_id", ticketID))
		return ErrOperationTimeout
	}

	if errors.Is(err, context.Canceled) {
		m.logger.Debug("read cancelled", zap.String("ticket_id", ticketID))
		return err
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil // Not an error, just empty result
	}

	m.logger.Error("read failed", zap.Error(err), zap.String("ticket_id", ticketID))
	return fmt.Errorf("filter messages failed: %w", err)
}
