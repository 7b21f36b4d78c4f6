package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dukalink-backend/pkg/db/models"
	"github.com/angelmondragon/dukalink-backend/pkg/enums"
)

// Repository defines persistence operations for checkout attempts and orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateAttempt(ctx context.Context, attempt *models.CheckoutAttempt) error
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindAttempt(ctx context.Context, id uuid.UUID) (*models.CheckoutAttempt, error)
	FindAttemptByToken(ctx context.Context, token string) (*models.CheckoutAttempt, error)
	ListAttemptOrders(ctx context.Context, attemptID uuid.UUID) ([]models.Order, error)
	FindAttemptOrder(ctx context.Context, attemptID uuid.UUID, sequence int) (*models.Order, error)
	TransitionAttempt(ctx context.Context, t AttemptTransition) (bool, error)
	UpdateUnpaidOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) (bool, error)
	UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	OrderHasVendorItems(ctx context.Context, orderID uuid.UUID, vendorIDs []uuid.UUID) (bool, error)
	ListPendingMerchantDirect(ctx context.Context, vendorIDs []uuid.UUID) ([]models.Order, error)
	ListUnpaidBySession(ctx context.Context, sessionKey string) ([]models.Order, error)
	CloseStaleAttempts(ctx context.Context, cutoff time.Time, limit int) (int64, error)
	ReleaseStalledDispatches(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// AttemptTransition is a guarded single-row state change of a checkout
// attempt. Optional guards narrow the WHERE clause further.
type AttemptTransition struct {
	AttemptID uuid.UUID
	From      []enums.CheckoutAttemptState
	To        enums.CheckoutAttemptState

	Index             *int
	CheckoutRequestID *string

	Updates map[string]any
}
