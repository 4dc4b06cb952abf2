package sms

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/pitabwire/frame/datastore/pool"
)

// ErrNotFound is returned for an unknown dead letter.
var ErrNotFound = errors.New("dead letter not found")

// Repository records delivery attempts and dead letters. A nil Repository
// records nothing.
type Repository struct {
	pool pool.Pool
}

// NewRepository creates a repository on the frame datastore pool.
func NewRepository(pool pool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) db(ctx context.Context, readOnly bool) *gorm.DB {
	return r.pool.DB(ctx, readOnly)
}

// Migrate creates the delivery tables.
func (r *Repository) Migrate(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.db(ctx, false).AutoMigrate(&DeliveryAttempt{}, &DeadLetter{})
}

// RecordDelivery persists a delivery attempt.
func (r *Repository) RecordDelivery(ctx context.Context, da *DeliveryAttempt) error {
	if r == nil {
		return nil
	}
	return r.db(ctx, false).Create(da).Error
}

// CreateDeadLetter persists a message that could not be delivered.
func (r *Repository) CreateDeadLetter(ctx context.Context, dl *DeadLetter) error {
	if r == nil {
		return nil
	}
	return r.db(ctx, false).Create(dl).Error
}

// ListDeliveries returns attempts for a recipient, newest first.
func (r *Repository) ListDeliveries(ctx context.Context, recipient string, limit int) ([]DeliveryAttempt, error) {
	if r == nil {
		return nil, nil
	}
	var attempts []DeliveryAttempt
	q := r.db(ctx, true).Where("recipient = ?", recipient).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&attempts).Error
	return attempts, err
}

// ListDeadLetters returns every dead letter, newest first.
func (r *Repository) ListDeadLetters(ctx context.Context) ([]DeadLetter, error) {
	if r == nil {
		return nil, nil
	}
	var letters []DeadLetter
	err := r.db(ctx, true).Order("created_at DESC").Find(&letters).Error
	return letters, err
}

// GetDeadLetter loads one dead letter.
func (r *Repository) GetDeadLetter(ctx context.Context, id string) (*DeadLetter, error) {
	if r == nil {
		return nil, ErrNotFound
	}
	var dl DeadLetter
	err := r.db(ctx, true).Where("id = ?", id).First(&dl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &dl, nil
}

// MarkDeadLetterReplayed flags a dead letter as handed back to the queue.
func (r *Repository) MarkDeadLetterReplayed(ctx context.Context, id string) error {
	if r == nil {
		return nil
	}
	return r.db(ctx, false).
		Model(&DeadLetter{}).
		Where("id = ?", id).
		Update("replayed", true).Error
}
