package products

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dukalink-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dukalink-backend/pkg/errors"
)

// Lookup is the read-only catalog surface the checkout pipeline depends on.
type Lookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

// BusinessLookup resolves vendor storefronts.
type BusinessLookup interface {
	FindBusiness(ctx context.Context, id uuid.UUID) (*models.Business, error)
	FindBusinessesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Business, error)
	ListBusinessIDsByOwner(ctx context.Context, ownerUserID uuid.UUID) ([]uuid.UUID, error)
}

// Repository reads products and businesses. Writes belong to the catalog service.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByID loads the product with its business.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Business").
		Where("id = ?", id).
		First(&product).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	return &product, nil
}

// FindByIDs loads every product in ids that still exists, keyed by id. Missing
// ids are simply absent from the map.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Preload("Business").
		Where("id IN ?", ids).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load products")
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// FindBusiness loads a single business.
func (r *Repository) FindBusiness(ctx context.Context, id uuid.UUID) (*models.Business, error) {
	var business models.Business
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&business).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "business not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load business")
	}
	return &business, nil
}

// FindBusinessesByIDs loads businesses keyed by id.
func (r *Repository) FindBusinessesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Business, error) {
	out := make(map[uuid.UUID]models.Business, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Business
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load businesses")
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// ListBusinessIDsByOwner returns the businesses a user owns.
func (r *Repository) ListBusinessIDsByOwner(ctx context.Context, ownerUserID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Business{}).
		Where("owner_user_id = ?", ownerUserID).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list owned businesses")
	}
	return ids, nil
}
