package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dukalink-backend/pkg/db/models"
	"github.com/angelmondragon/dukalink-backend/pkg/enums"
)

// Repository persists payment intents.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a payment intent repository bound to db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx rebinds the repository to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *Repository) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).Where("checkout_request_id = ?", checkoutRequestID).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

// FindPendingForOrder returns the open intent for orderID, or nil.
func (r *Repository) FindPendingForOrder(ctx context.Context, orderID uuid.UUID) (*models.PaymentIntent, error) {
	var intents []models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.PaymentIntentPending).
		Order("created_at DESC").
		Limit(1).
		Find(&intents).Error
	if err != nil {
		return nil, err
	}
	if len(intents) == 0 {
		return nil, nil
	}
	return &intents[0], nil
}

// Resolve moves a pending intent to a terminal status. It reports false when
// the intent was no longer pending.
func (r *Repository) Resolve(ctx context.Context, id uuid.UUID, to enums.PaymentIntentStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ? AND status = ?", id, enums.PaymentIntentPending).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListPendingBefore returns pending intents created before cutoff, oldest first.
func (r *Repository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentIntent, error) {
	var intents []models.PaymentIntent
	q := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.PaymentIntentPending, cutoff).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&intents).Error; err != nil {
		return nil, err
	}
	return intents, nil
}
