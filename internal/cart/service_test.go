package cart

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dukalink-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dukalink-backend/pkg/errors"
)

type stubProducts struct {
	products map[uuid.UUID]*models.Product
}

func (s *stubProducts) FindByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	if p, ok := s.products[id]; ok {
		return p, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
}

func newTestService(t *testing.T, products ...*models.Product) (Service, *stubProducts) {
	t.Helper()
	store, err := NewRedisStore(newFakeKV(), time.Hour)
	require.NoError(t, err)
	stub := &stubProducts{products: map[uuid.UUID]*models.Product{}}
	for _, p := range products {
		stub.products[p.ID] = p
	}
	svc, err := NewService(store, stub)
	require.NoError(t, err)
	return svc, stub
}

func product(name, price string) *models.Product {
	business := &models.Business{ID: uuid.New(), Name: name + " shop", Active: true}
	return &models.Product{
		ID:         uuid.New(),
		BusinessID: business.ID,
		Business:   business,
		Name:       name,
		Price:      decimal.RequireFromString(price),
		Active:     true,
	}
}

func TestServiceAddSnapshotsPrice(t *testing.T) {
	maize := product("maize flour", "180.00")
	svc, _ := newTestService(t, maize)
	ctx := context.Background()

	c, err := svc.Add(ctx, "sess", maize.ID, 0)
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, 1, c.Lines[0].Quantity)
	assert.Equal(t, "maize flour shop", c.Lines[0].VendorName)

	maize.Price = decimal.RequireFromString("250.00")

	c, err = svc.Add(ctx, "sess", maize.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Lines[0].Quantity)
	assert.True(t, c.Total().Equal(decimal.RequireFromString("540.00")), c.Total().String())

	viewed, err := svc.View(ctx, "sess")
	require.NoError(t, err)
	require.Len(t, viewed.Lines, 1)
	assert.Equal(t, c.Count(), viewed.Count())
	assert.True(t, c.Total().Equal(viewed.Total()))
}

func TestServiceAddRejectsUnavailableProducts(t *testing.T) {
	inactive := product("stale", "10.00")
	inactive.Active = false
	closed := product("closed", "10.00")
	closed.Business.Active = false
	svc, _ := newTestService(t, inactive, closed)
	ctx := context.Background()

	_, err := svc.Add(ctx, "sess", inactive.ID, 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = svc.Add(ctx, "sess", closed.ID, 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = svc.Add(ctx, "sess", uuid.New(), 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = svc.Add(ctx, "sess", inactive.ID, -2)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestServiceMutationsAndClear(t *testing.T) {
	a := product("a", "10.00")
	b := product("b", "20.00")
	svc, _ := newTestService(t, a, b)
	ctx := context.Background()

	_, err := svc.Add(ctx, "sess", a.ID, 2)
	require.NoError(t, err)
	_, err = svc.Add(ctx, "sess", b.ID, 1)
	require.NoError(t, err)

	c, err := svc.Decrement(ctx, "sess", b.ID)
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)

	c, err = svc.SetQuantity(ctx, "sess", a.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, c.Count())

	_, err = svc.SetQuantity(ctx, "sess", b.ID, 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	c, err = svc.Remove(ctx, "sess", a.ID)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	require.NoError(t, svc.Clear(ctx, "sess"))
	require.NoError(t, svc.Clear(ctx, "sess"))

	_, err = svc.View(ctx, " ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
