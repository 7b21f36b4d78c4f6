package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dukalink-backend/internal/checkout/helpers"
	"github.com/angelmondragon/dukalink-backend/internal/orders"
	"github.com/angelmondragon/dukalink-backend/pkg/auth/session"
	"github.com/angelmondragon/dukalink-backend/pkg/db/models"
	"github.com/angelmondragon/dukalink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dukalink-backend/pkg/errors"
	"github.com/angelmondragon/dukalink-backend/pkg/outbox"
	"github.com/angelmondragon/dukalink-backend/pkg/outbox/payloads"
)

const (
	attemptTokenBytes = 16
	referenceIDLength = 5
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Customer identifies who is checking out.
type Customer struct {
	UserID     *uuid.UUID
	SessionKey string
	Name       string
	Phone      string
}

// CreatedOrders is the result of one successful factory run.
type CreatedOrders struct {
	Attempt models.CheckoutAttempt
	Orders  []models.Order
	Total   decimal.Decimal
}

// OrderIDs lists the created orders in dispatch order.
func (c *CreatedOrders) OrderIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(c.Orders))
	for _, order := range c.Orders {
		ids = append(ids, order.ID)
	}
	return ids
}

// Factory materializes vendor groups as orders.
type Factory struct {
	repo   orders.Repository
	tx     txRunner
	outbox outboxPublisher
}

func NewFactory(repo orders.Repository, tx txRunner, publisher outboxPublisher) (*Factory, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &Factory{repo: repo, tx: tx, outbox: publisher}, nil
}

// Create writes the checkout attempt and one order per group in a single
// transaction. Either every order exists afterwards or none does.
func (f *Factory) Create(ctx context.Context, groups []helpers.VendorGroup, customer Customer, path enums.SettlementPath) (*CreatedOrders, error) {
	if len(groups) == 0 {
		return nil, emptyCart()
	}
	if !path.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown payment method %q", path)
	}
	token, err := session.RandomHex(attemptTokenBytes)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate checkout token")
	}

	state := enums.CheckoutAttemptCreated
	if path != enums.SettlementPathPushPayment {
		state = enums.CheckoutAttemptDone
	}

	var out *CreatedOrders
	err = f.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := f.repo.WithTx(tx)

		attempt := models.CheckoutAttempt{
			Token:        token,
			SessionKey:   customer.SessionKey,
			CustomerID:   customer.UserID,
			CustomerName: customer.Name,
			Phone:        customer.Phone,
			Path:         path,
			OrderCount:   len(groups),
			State:        state,
		}
		if err := repo.CreateAttempt(ctx, &attempt); err != nil {
			return err
		}

		created := make([]models.Order, 0, len(groups))
		total := decimal.Zero
		items := 0
		for i, group := range groups {
			order, err := f.createOrder(ctx, tx, &attempt, i, group, customer, path)
			if err != nil {
				return err
			}
			total = total.Add(order.Total)
			items += group.ItemCount()
			created = append(created, *order)
		}
		if cartTotal := helpers.Total(groups); !total.Equal(cartTotal) {
			return fmt.Errorf("order totals %s do not match cart total %s", total.StringFixed(2), cartTotal.StringFixed(2))
		}

		result := &CreatedOrders{Attempt: attempt, Orders: created, Total: total}
		if err := f.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCheckoutCreated,
			AggregateType: enums.AggregateCheckoutAttempt,
			AggregateID:   attempt.ID,
			Actor:         &outbox.ActorRef{UserID: customer.UserID, SessionKey: customer.SessionKey},
			Data: payloads.CheckoutCreatedEvent{
				CheckoutAttemptID: attempt.ID,
				Path:              path,
				OrderIDs:          result.OrderIDs(),
				ItemCount:         items,
				Total:             total,
			},
		}); err != nil {
			return err
		}
		out = result
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create orders")
	}
	return out, nil
}

func (f *Factory) createOrder(ctx context.Context, tx *gorm.DB, attempt *models.CheckoutAttempt, sequence int, group helpers.VendorGroup, customer Customer, path enums.SettlementPath) (*models.Order, error) {
	repo := f.repo.WithTx(tx)
	orderID := uuid.New()
	items := make([]models.OrderItem, 0, len(group.Lines))
	total := decimal.Zero
	for _, line := range group.Lines {
		item := models.OrderItem{
			OrderID:     orderID,
			ProductID:   line.ProductID,
			VendorID:    group.VendorID,
			ProductName: line.Name,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
		}
		total = total.Add(item.LineTotal())
		items = append(items, item)
	}

	order := &models.Order{
		ID:                orderID,
		CheckoutAttemptID: &attempt.ID,
		Sequence:          sequence,
		VendorID:          group.VendorID,
		CustomerID:        customer.UserID,
		CustomerName:      customer.Name,
		CustomerPhone:     customer.Phone,
		SessionKey:        customer.SessionKey,
		Total:             total,
		Status:            path.InitialOrderStatus(),
		PaymentMethod:     path.InitialPaymentMethod(),
		PaymentReference:  paymentReference(path, group.VendorID, orderID),
	}
	if err := repo.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	if err := repo.CreateOrderItems(ctx, items); err != nil {
		return nil, err
	}
	order.Items = items

	if err := f.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: customer.UserID, SessionKey: customer.SessionKey},
		Data: payloads.OrderCreatedEvent{
			OrderID:           order.ID,
			CheckoutAttemptID: attempt.ID,
			VendorID:          order.VendorID,
			Sequence:          order.Sequence,
			ItemCount:         group.ItemCount(),
			Total:             order.Total,
			PaymentMethod:     order.PaymentMethod,
		},
	}); err != nil {
		return nil, err
	}
	return order, nil
}

// paymentReference is the account reference the customer sees on the prompt
// or types into the mobile-money app.
func paymentReference(path enums.SettlementPath, vendorID, orderID uuid.UUID) string {
	if path == enums.SettlementPathPushPayment {
		return "V" + shortID(vendorID) + "O" + shortID(orderID)
	}
	return "ORDER" + shortID(orderID)
}

func shortID(id uuid.UUID) string {
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:referenceIDLength])
}
