package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/tradepost-backend/pkg/db/models"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	"github.com/angelmondragon/tradepost-backend/pkg/pagination"
)

const maxDLQErrorLen = 1024

var (
	// ErrDLQEntryNotFound is returned when no dead letter matches the id.
	ErrDLQEntryNotFound = errors.New("dlq entry not found")
	// ErrDLQAlreadyRequeued guards against publishing the same dead letter twice.
	ErrDLQAlreadyRequeued = errors.New("dlq entry already requeued")
)

// DLQFilter narrows the dead-letter listing.
type DLQFilter struct {
	Reason          *enums.OutboxDLQErrorReason
	AggregateID     *uuid.UUID
	IncludeRequeued bool
	Limit           int
}

type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil && len(*entry.ErrorMessage) > maxDLQErrorLen {
		msg := (*entry.ErrorMessage)[:maxDLQErrorLen]
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// List returns dead letters newest first. Requeued entries are hidden unless
// asked for.
func (r *DLQRepository) List(ctx context.Context, filter DLQFilter) ([]models.OutboxDLQ, error) {
	query := r.db.WithContext(ctx).Model(&models.OutboxDLQ{})
	if !filter.IncludeRequeued {
		query = query.Where("requeued_at IS NULL")
	}
	if filter.Reason != nil {
		query = query.Where("error_reason = ?", *filter.Reason)
	}
	if filter.AggregateID != nil {
		query = query.Where("aggregate_id = ?", *filter.AggregateID)
	}
	var rows []models.OutboxDLQ
	err := query.
		Order("failed_at DESC").
		Order("id DESC").
		Limit(pagination.NormalizeLimit(filter.Limit)).
		Find(&rows).Error
	return rows, err
}

// RequeueTx copies a dead letter back into outbox_events as a fresh row and
// marks the entry requeued. The new row keeps the original payload and thus
// the original event id in its envelope.
func (r *DLQRepository) RequeueTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, now time.Time) (*models.OutboxEvent, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	query := tx.WithContext(ctx)
	if tx.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var entry models.OutboxDLQ
	if err := query.Where("id = ?", id).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDLQEntryNotFound
		}
		return nil, err
	}
	if entry.RequeuedAt != nil {
		return nil, ErrDLQAlreadyRequeued
	}

	event := models.OutboxEvent{
		ID:            uuid.New(),
		AggregateType: entry.AggregateType,
		AggregateID:   entry.AggregateID,
		EventType:     entry.EventType,
		Payload:       entry.Payload,
	}
	if err := tx.WithContext(ctx).Create(&event).Error; err != nil {
		return nil, err
	}
	err := tx.WithContext(ctx).Model(&models.OutboxDLQ{}).
		Where("id = ?", entry.ID).
		Updates(map[string]any{
			"requeued_at":       now.UTC(),
			"requeued_event_id": event.ID,
		}).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}
