package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/dukalink-backend/internal/cart"
	"github.com/angelmondragon/dukalink-backend/internal/checkout/helpers"
	"github.com/angelmondragon/dukalink-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dukalink-backend/pkg/errors"
	"github.com/angelmondragon/dukalink-backend/pkg/logger"
)

// ErrEmptyCart is returned when a cart has nothing left to check out.
var ErrEmptyCart = errors.New("cart is empty")

type productLookup interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

// Aggregator resolves cart lines to their current vendors and splits them.
type Aggregator struct {
	products productLookup
	logg     *logger.Logger
}

func NewAggregator(products productLookup, logg *logger.Logger) (*Aggregator, error) {
	if products == nil {
		return nil, fmt.Errorf("product lookup required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Aggregator{products: products, logg: logg}, nil
}

// Aggregate groups the cart by vendor. Lines whose product is gone or
// inactive, or whose vendor is gone or inactive, are dropped and logged.
func (a *Aggregator) Aggregate(ctx context.Context, c cart.Cart) ([]helpers.VendorGroup, error) {
	if c.IsEmpty() {
		return nil, emptyCart()
	}

	ids := make([]uuid.UUID, 0, len(c.Lines))
	for _, line := range c.Lines {
		ids = append(ids, line.ProductID)
	}
	found, err := a.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	kept := make([]cart.Line, 0, len(c.Lines))
	vendors := make(map[uuid.UUID]models.Business)
	for _, line := range c.Lines {
		lineCtx := a.logg.WithField(ctx, "product_id", line.ProductID.String())
		product, ok := found[line.ProductID]
		if !ok || !product.Active {
			a.logg.Warn(lineCtx, "dropping cart line for unavailable product")
			continue
		}
		if product.Business == nil || !product.Business.Active {
			a.logg.Warn(lineCtx, "dropping cart line without an active vendor")
			continue
		}
		line.VendorID = product.BusinessID
		line.VendorName = product.Business.Name
		vendors[product.BusinessID] = *product.Business
		kept = append(kept, line)
	}

	groups := helpers.GroupLinesByVendor(kept, vendors)
	if len(groups) == 0 {
		return nil, emptyCart()
	}
	return groups, nil
}

func emptyCart() error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, ErrEmptyCart, "your cart has no items available for checkout")
}
