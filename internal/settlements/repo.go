package settlements

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/dukalink-backend/pkg/db/models"
	"github.com/angelmondragon/dukalink-backend/pkg/enums"
	"github.com/angelmondragon/dukalink-backend/pkg/pagination"
)

// Repository persists vendor settlements.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository bound to db.
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

// CreateIfAbsent inserts s unless a settlement already exists for the order.
// It reports whether a row was written.
func (r *Repository) CreateIfAbsent(ctx context.Context, s *models.VendorSettlement) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(s)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.VendorSettlement, error) {
	var s models.VendorSettlement
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.VendorSettlement, error) {
	var s models.VendorSettlement
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

type listQuery struct {
	vendorIDs []uuid.UUID
	status    *enums.SettlementStatus
	limit     int
	cursor    *pagination.Cursor
}

// ListByVendors returns settlements for the query's vendors, newest first,
// resuming after the cursor when one is set.
func (r *Repository) ListByVendors(ctx context.Context, opts listQuery) ([]models.VendorSettlement, error) {
	var rows []models.VendorSettlement
	if len(opts.vendorIDs) == 0 {
		return rows, nil
	}
	q := r.db.WithContext(ctx).Where("vendor_id IN ?", opts.vendorIDs)
	if opts.status != nil {
		q = q.Where("status = ?", *opts.status)
	}
	if opts.cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", opts.cursor.CreatedAt, opts.cursor.CreatedAt, opts.cursor.ID)
	}
	q = q.Order("created_at DESC").Order("id DESC")
	if opts.limit > 0 {
		q = q.Limit(opts.limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Transition moves a settlement from one of from to to. It reports false
// when the row was not in an allowed state.
func (r *Repository) Transition(ctx context.Context, id uuid.UUID, from []enums.SettlementStatus, to enums.SettlementStatus, extra map[string]any) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.VendorSettlement{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
