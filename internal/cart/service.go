package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/dukalink-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dukalink-backend/pkg/errors"
)

type productLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// Service exposes the session cart operations.
type Service interface {
	View(ctx context.Context, sessionKey string) (Cart, error)
	Add(ctx context.Context, sessionKey string, productID uuid.UUID, quantity int) (Cart, error)
	SetQuantity(ctx context.Context, sessionKey string, productID uuid.UUID, quantity int) (Cart, error)
	Decrement(ctx context.Context, sessionKey string, productID uuid.UUID) (Cart, error)
	Remove(ctx context.Context, sessionKey string, productID uuid.UUID) (Cart, error)
	Clear(ctx context.Context, sessionKey string) error
}

type service struct {
	store    Store
	products productLoader
}

// NewService builds a cart service backed by the provided store and catalog.
func NewService(store Store, products productLoader) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	return &service{store: store, products: products}, nil
}

func (s *service) View(ctx context.Context, sessionKey string) (Cart, error) {
	if err := requireSession(sessionKey); err != nil {
		return Cart{}, err
	}
	cart, err := s.store.Load(ctx, sessionKey)
	if err != nil {
		return Cart{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	return cart, nil
}

// Add snapshots the product's current price, name and vendor into the line.
func (s *service) Add(ctx context.Context, sessionKey string, productID uuid.UUID, quantity int) (Cart, error) {
	if err := requireSession(sessionKey); err != nil {
		return Cart{}, err
	}
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 1 {
		return Cart{}, pkgerrors.New(pkgerrors.CodeValidation, ErrInvalidQuantity.Error())
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Cart{}, err
	}
	if !product.Active || product.Business == nil || !product.Business.Active {
		return Cart{}, pkgerrors.New(pkgerrors.CodeValidation, "product is not available")
	}

	return s.mutate(ctx, sessionKey, func(c Cart) (Cart, error) {
		return c.Add(Line{
			ProductID:  product.ID,
			Name:       product.Name,
			VendorID:   product.BusinessID,
			VendorName: product.Business.Name,
			UnitPrice:  product.Price,
			Quantity:   quantity,
			ImageURL:   product.ImageURL,
		})
	})
}

func (s *service) SetQuantity(ctx context.Context, sessionKey string, productID uuid.UUID, quantity int) (Cart, error) {
	if err := requireSession(sessionKey); err != nil {
		return Cart{}, err
	}
	return s.mutate(ctx, sessionKey, func(c Cart) (Cart, error) {
		return c.SetQuantity(productID, quantity)
	})
}

func (s *service) Decrement(ctx context.Context, sessionKey string, productID uuid.UUID) (Cart, error) {
	if err := requireSession(sessionKey); err != nil {
		return Cart{}, err
	}
	return s.mutate(ctx, sessionKey, func(c Cart) (Cart, error) {
		return c.Decrement(productID)
	})
}

func (s *service) Remove(ctx context.Context, sessionKey string, productID uuid.UUID) (Cart, error) {
	if err := requireSession(sessionKey); err != nil {
		return Cart{}, err
	}
	return s.mutate(ctx, sessionKey, func(c Cart) (Cart, error) {
		return c.Remove(productID), nil
	})
}

// Clear drops the session cart. Clearing an already empty cart succeeds.
func (s *service) Clear(ctx context.Context, sessionKey string) error {
	if err := requireSession(sessionKey); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, sessionKey); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
	}
	return nil
}

func (s *service) mutate(ctx context.Context, sessionKey string, fn func(Cart) (Cart, error)) (Cart, error) {
	current, err := s.store.Load(ctx, sessionKey)
	if err != nil {
		return Cart{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	next, err := fn(current)
	if err != nil {
		return Cart{}, mapCartError(err)
	}
	if err := s.store.Save(ctx, sessionKey, next); err != nil {
		return Cart{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save cart")
	}
	return next, nil
}

func mapCartError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidQuantity):
		return pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	case errors.Is(err, ErrLineNotFound):
		return pkgerrors.New(pkgerrors.CodeNotFound, err.Error())
	default:
		return err
	}
}

func requireSession(sessionKey string) error {
	if strings.TrimSpace(sessionKey) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session key required")
	}
	return nil
}
