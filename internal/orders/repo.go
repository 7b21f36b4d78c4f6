package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dukalink-backend/pkg/db/models"
	"github.com/angelmondragon/dukalink-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateAttempt(ctx context.Context, attempt *models.CheckoutAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit("Items", "Vendor").Create(order).Error
}

func (r *repository) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Vendor").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindAttempt(ctx context.Context, id uuid.UUID) (*models.CheckoutAttempt, error) {
	var attempt models.CheckoutAttempt
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *repository) FindAttemptByToken(ctx context.Context, token string) (*models.CheckoutAttempt, error) {
	var attempt models.CheckoutAttempt
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *repository) ListAttemptOrders(ctx context.Context, attemptID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Vendor").
		Where("checkout_attempt_id = ?", attemptID).
		Order("sequence ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) FindAttemptOrder(ctx context.Context, attemptID uuid.UUID, sequence int) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Vendor").
		Where("checkout_attempt_id = ? AND sequence = ?", attemptID, sequence).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) TransitionAttempt(ctx context.Context, t AttemptTransition) (bool, error) {
	updates := map[string]any{
		"state":      t.To,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range t.Updates {
		updates[k] = v
	}
	q := r.db.WithContext(ctx).
		Model(&models.CheckoutAttempt{}).
		Where("id = ? AND state IN ?", t.AttemptID, t.From)
	if t.Index != nil {
		q = q.Where("current_index = ?", *t.Index)
	}
	if t.CheckoutRequestID != nil {
		q = q.Where("current_checkout_request_id = ?", *t.CheckoutRequestID)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdateUnpaidOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND paid = ?", orderID, false).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(updates).Error
}

func (r *repository) OrderHasVendorItems(ctx context.Context, orderID uuid.UUID, vendorIDs []uuid.UUID) (bool, error) {
	if len(vendorIDs) == 0 {
		return false, nil
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("order_id = ? AND vendor_id IN ?", orderID, vendorIDs).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) ListPendingMerchantDirect(ctx context.Context, vendorIDs []uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	if len(vendorIDs) == 0 {
		return orders, nil
	}
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("vendor_id IN ?", vendorIDs).
		Where("payment_method = ? AND paid = ?", enums.PaymentMethodMerchantDirect, false).
		Where("transaction_code IS NOT NULL AND transaction_code <> ''").
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) ListUnpaidBySession(ctx context.Context, sessionKey string) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Vendor").
		Where("session_key = ? AND paid = ? AND status <> ?", sessionKey, false, enums.OrderStatusCancelled).
		Order("created_at ASC, sequence ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// CloseStaleAttempts marks attempts that stopped making progress before cutoff
// as done. Orders are left untouched.
func (r *repository) CloseStaleAttempts(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	sub := r.db.WithContext(ctx).
		Model(&models.CheckoutAttempt{}).
		Select("id").
		Where("state IN ? AND updated_at < ?", []enums.CheckoutAttemptState{enums.CheckoutAttemptCreated, enums.CheckoutAttemptFailed}, cutoff).
		Order("updated_at ASC").
		Limit(limit)
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutAttempt{}).
		Where("id IN (?)", sub).
		Where("state IN ?", []enums.CheckoutAttemptState{enums.CheckoutAttemptCreated, enums.CheckoutAttemptFailed}).
		Updates(map[string]any{
			"state":      enums.CheckoutAttemptDone,
			"last_error": "checkout attempt expired",
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// ReleaseStalledDispatches fails attempts stuck in dispatching since before
// cutoff whose current order has no pending payment intent, so the same
// vendor can be pushed again.
func (r *repository) ReleaseStalledDispatches(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	pendingIntent := r.db.
		Table("payment_intents AS pi").
		Select("1").
		Joins("JOIN orders o ON o.id = pi.order_id").
		Where("o.checkout_attempt_id = checkout_attempts.id AND o.sequence = checkout_attempts.current_index AND pi.status = ?", enums.PaymentIntentPending)
	sub := r.db.WithContext(ctx).
		Model(&models.CheckoutAttempt{}).
		Select("id").
		Where("state = ? AND updated_at < ?", enums.CheckoutAttemptDispatching, cutoff).
		Where("NOT EXISTS (?)", pendingIntent).
		Order("updated_at ASC").
		Limit(limit)
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutAttempt{}).
		Where("id IN (?)", sub).
		Where("state = ?", enums.CheckoutAttemptDispatching).
		Updates(map[string]any{
			"state":      enums.CheckoutAttemptFailed,
			"last_error": "payment request was interrupted, please try again",
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}
