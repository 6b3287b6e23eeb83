package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// DeadLetterDTO is the admin view of a dead-lettered event.
type DeadLetterDTO struct {
	ID              uuid.UUID                  `json:"id"`
	EventID         uuid.UUID                  `json:"event_id"`
	EventType       enums.OutboxEventType      `json:"event_type"`
	AggregateType   enums.OutboxAggregateType  `json:"aggregate_type"`
	AggregateID     uuid.UUID                  `json:"aggregate_id"`
	ErrorReason     enums.OutboxDLQErrorReason `json:"error_reason"`
	ErrorMessage    *string                    `json:"error_message,omitempty"`
	AttemptCount    int                        `json:"attempt_count"`
	FailedAt        time.Time                  `json:"failed_at"`
	RequeuedAt      *time.Time                 `json:"requeued_at,omitempty"`
	RequeuedEventID *uuid.UUID                 `json:"requeued_event_id,omitempty"`
}

// RequeueResult links a dead letter to the outbox row that replaces it.
type RequeueResult struct {
	DLQID      uuid.UUID `json:"dlq_id"`
	NewEventID uuid.UUID `json:"new_event_id"`
}

// DLQService lets operators inspect and replay dead letters.
type DLQService struct {
	db   txRunner
	repo *DLQRepository
	logg *logger.Logger
	now  func() time.Time
}

func NewDLQService(db txRunner, repo *DLQRepository, logg *logger.Logger) (*DLQService, error) {
	switch {
	case db == nil:
		return nil, errors.New("db runner required")
	case repo == nil:
		return nil, errors.New("dlq repository required")
	case logg == nil:
		return nil, errors.New("logger required")
	}
	return &DLQService{db: db, repo: repo, logg: logg, now: time.Now}, nil
}

func (s *DLQService) List(ctx context.Context, filter DLQFilter) ([]DeadLetterDTO, error) {
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list dead letters")
	}
	out := make([]DeadLetterDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDeadLetterDTO(row))
	}
	return out, nil
}

// Requeue moves a dead letter back onto the outbox. A second call for the
// same entry is a conflict.
func (s *DLQService) Requeue(ctx context.Context, id, actorID uuid.UUID) (*RequeueResult, error) {
	var event *models.OutboxEvent
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		event, err = s.repo.RequeueTx(ctx, tx, id, s.now())
		return err
	})
	switch {
	case errors.Is(err, ErrDLQEntryNotFound):
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dead letter not found")
	case errors.Is(err, ErrDLQAlreadyRequeued):
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "dead letter already requeued")
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "requeue dead letter")
	}

	s.logg.Info(s.logg.WithFields(s.logg.WithUserID(ctx, actorID.String()), map[string]any{
		"dlq_id":       id.String(),
		"event_type":   event.EventType,
		"ordering_key": event.OrderingKey(),
		"new_event_id": event.ID.String(),
	}), "dead letter requeued")
	return &RequeueResult{DLQID: id, NewEventID: event.ID}, nil
}

func toDeadLetterDTO(row models.OutboxDLQ) DeadLetterDTO {
	return DeadLetterDTO{
		ID:              row.ID,
		EventID:         row.EventID,
		EventType:       row.EventType,
		AggregateType:   row.AggregateType,
		AggregateID:     row.AggregateID,
		ErrorReason:     row.ErrorReason,
		ErrorMessage:    row.ErrorMessage,
		AttemptCount:    row.AttemptCount,
		FailedAt:        row.FailedAt,
		RequeuedAt:      row.RequeuedAt,
		RequeuedEventID: row.RequeuedEventID,
	}
}
