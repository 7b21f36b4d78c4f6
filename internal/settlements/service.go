package settlements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dukalink-backend/pkg/db/models"
	"github.com/angelmondragon/dukalink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dukalink-backend/pkg/errors"
	"github.com/angelmondragon/dukalink-backend/pkg/logger"
	"github.com/angelmondragon/dukalink-backend/pkg/pagination"
)

type ownedBusinesses interface {
	ListBusinessIDsByOwner(ctx context.Context, ownerUserID uuid.UUID) ([]uuid.UUID, error)
}

// Service records what the platform owes vendors for paid orders.
type Service interface {
	CreateForOrder(ctx context.Context, tx *gorm.DB, order *models.Order, receipt, transactionID string) (*models.VendorSettlement, error)
	ListForVendor(ctx context.Context, params ListParams) (*ListResult, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID, transactionID string) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

// ListParams scopes a vendor settlement listing.
type ListParams struct {
	UserID uuid.UUID
	Status *enums.SettlementStatus
	pagination.Params
}

// ListResult is one page of settlements. Cursor is empty on the last page.
type ListResult struct {
	Items  []models.VendorSettlement
	Cursor string
}

type service struct {
	repo       *Repository
	businesses ownedBusinesses
	rate       decimal.Decimal
	logg       *logger.Logger
	now        func() time.Time
}

// NewService builds the settlement service. rate is the platform commission
// as a fraction of the order total.
func NewService(repo *Repository, businesses ownedBusinesses, rate decimal.Decimal, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("settlements repository required")
	}
	if businesses == nil {
		return nil, fmt.Errorf("business lookup required")
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("commission rate must be in [0, 1)")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:       repo,
		businesses: businesses,
		rate:       rate,
		logg:       logg,
		now:        time.Now,
	}, nil
}

// Commission splits amount into the platform commission and the vendor net.
func Commission(amount, rate decimal.Decimal) (commission, net decimal.Decimal) {
	commission = amount.Mul(rate).Round(2)
	return commission, amount.Sub(commission)
}

// CreateForOrder writes the settlement for a paid order inside tx. Calling it
// twice for the same order returns the first settlement.
func (s *service) CreateForOrder(ctx context.Context, tx *gorm.DB, order *models.Order, receipt, transactionID string) (*models.VendorSettlement, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if order == nil || order.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	repo := s.repo.WithTx(tx)

	commission, net := Commission(order.Total, s.rate)
	row := &models.VendorSettlement{
		OrderID:          order.ID,
		VendorID:         order.VendorID,
		Amount:           order.Total,
		CommissionAmount: commission,
		NetAmount:        net,
		Status:           enums.SettlementStatusPending,
		MpesaReceipt:     optional(receipt),
		TransactionID:    optional(transactionID),
		CreatedAt:        s.now().UTC().Truncate(time.Microsecond),
	}
	created, err := repo.CreateIfAbsent(ctx, row)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create vendor settlement")
	}
	if created {
		return row, nil
	}

	existing, err := repo.FindByOrder(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load vendor settlement")
	}
	s.logg.Debug(s.logg.WithOrderID(ctx, order.ID.String()), "vendor settlement already recorded")
	return existing, nil
}

func (s *service) ListForVendor(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid settlement status %q", *params.Status)
	}
	ids, err := s.businesses.ListBusinessIDsByOwner(ctx, params.UserID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "no business owned by user")
	}

	query := listQuery{
		vendorIDs: ids,
		status:    params.Status,
		limit:     pagination.LimitWithBuffer(params.Limit),
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.cursor = cursor
	}

	rows, err := s.repo.ListByVendors(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list vendor settlements")
	}

	page, next := pagination.Trim(rows, params.Limit, func(row models.VendorSettlement) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return &ListResult{Items: page, Cursor: next}, nil
}

func (s *service) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, []enums.SettlementStatus{enums.SettlementStatusPending}, enums.SettlementStatusProcessing, nil)
}

func (s *service) MarkCompleted(ctx context.Context, id uuid.UUID, transactionID string) error {
	extra := map[string]any{"completed_at": s.now().UTC()}
	if tid := strings.TrimSpace(transactionID); tid != "" {
		extra["transaction_id"] = tid
	}
	return s.transition(ctx, id, []enums.SettlementStatus{enums.SettlementStatusProcessing}, enums.SettlementStatusCompleted, extra)
}

func (s *service) MarkFailed(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, []enums.SettlementStatus{enums.SettlementStatusPending, enums.SettlementStatusProcessing}, enums.SettlementStatusFailed, nil)
}

func (s *service) transition(ctx context.Context, id uuid.UUID, from []enums.SettlementStatus, to enums.SettlementStatus, extra map[string]any) error {
	ok, err := s.repo.Transition(ctx, id, from, to, extra)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update vendor settlement")
	}
	if ok {
		return nil
	}
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load vendor settlement")
	}
	return pkgerrors.Newf(pkgerrors.CodeStateConflict, "settlement is %s", current.Status).
		WithDetails(map[string]any{"status": current.Status, "target": to})
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
