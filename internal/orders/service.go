package orders

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
	"github.com/angelmondragon/dukalink-backend/pkg/outbox"
	"github.com/angelmondragon/dukalink-backend/pkg/outbox/payloads"
)

const (
	minTransactionCodeLength = 8
	maxTransactionCodeLength = 32
	defaultRejectReason      = "Payment not received"
	rejectionNotePrefix      = "Payment rejected: "
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ownedBusinesses interface {
	ListBusinessIDsByOwner(ctx context.Context, ownerUserID uuid.UUID) ([]uuid.UUID, error)
}

type settlementCreator interface {
	CreateForOrder(ctx context.Context, tx *gorm.DB, order *models.Order, receipt, transactionID string) (*models.VendorSettlement, error)
}

// Service covers the settlement paths confirmed by people rather than the gateway.
type Service interface {
	CustomerConfirm(ctx context.Context, actor Actor, orderID uuid.UUID, transactionCode string) (*models.Order, error)
	VendorConfirm(ctx context.Context, userID, orderID uuid.UUID, transactionCode string) (*models.Order, error)
	VendorReject(ctx context.Context, userID, orderID uuid.UUID, reason string) (*models.Order, error)
	VendorPendingPayments(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	Instructions(ctx context.Context, sessionKey, attemptToken string) (*InstructionsView, error)
}

// ServiceParams wires the orders service.
type ServiceParams struct {
	Repository  Repository
	Tx          txRunner
	Outbox      outboxPublisher
	Businesses  ownedBusinesses
	Settlements settlementCreator
	Logger      *logger.Logger
}

type service struct {
	repo        Repository
	tx          txRunner
	outbox      outboxPublisher
	businesses  ownedBusinesses
	settlements settlementCreator
	logg        *logger.Logger
	now         func() time.Time
}

// NewService builds the orders service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Businesses == nil {
		return nil, fmt.Errorf("business lookup required")
	}
	if params.Settlements == nil {
		return nil, fmt.Errorf("settlement creator required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:        params.Repository,
		tx:          params.Tx,
		outbox:      params.Outbox,
		businesses:  params.Businesses,
		settlements: params.Settlements,
		logg:        params.Logger,
		now:         time.Now,
	}, nil
}

// CustomerConfirm records the transaction code a customer got after paying a
// vendor directly. The order stays unpaid until the vendor confirms it.
func (s *service) CustomerConfirm(ctx context.Context, actor Actor, orderID uuid.UUID, transactionCode string) (*models.Order, error) {
	code, err := normalizeTransactionCode(transactionCode)
	if err != nil {
		return nil, err
	}
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !ownsAsCustomer(actor, order) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to caller")
	}
	if order.PaymentMethod != enums.PaymentMethodMerchantDirect {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not paid directly to the merchant")
	}

	ok, err := s.repo.UpdateUnpaidOrder(ctx, order.ID, map[string]any{"transaction_code": code})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store transaction code")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
	}

	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "customer submitted merchant-direct transaction code")
	return s.loadOrder(ctx, order.ID)
}

// VendorConfirm marks a merchant-direct or cash-on-delivery order as paid on
// the vendor's word.
func (s *service) VendorConfirm(ctx context.Context, userID, orderID uuid.UUID, transactionCode string) (*models.Order, error) {
	order, err := s.authorizeVendor(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if !order.PaymentMethod.ManuallyConfirmable() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is settled by the payment gateway")
	}
	if order.Paid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
	}

	code := strings.ToUpper(strings.TrimSpace(transactionCode))
	if code == "" && order.TransactionCode != nil {
		code = *order.TransactionCode
	}
	confirmedAt := s.now().UTC()
	updates := map[string]any{
		"paid":                 true,
		"status":               enums.OrderStatusProcessing,
		"payment_confirmed_by": userID,
		"payment_confirmed_at": confirmedAt,
	}
	if code != "" {
		updates["transaction_code"] = code
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).UpdateUnpaidOrder(ctx, order.ID, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "confirm order payment")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
		}
		if _, err := s.settlements.CreateForOrder(ctx, tx, order, "", code); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: &userID, Role: enums.UserRoleVendor.String()},
			Data: payloads.OrderPaidEvent{
				OrderID:       order.ID,
				VendorID:      order.VendorID,
				Amount:        order.Total,
				PaymentMethod: order.PaymentMethod,
				Receipt:       code,
				ConfirmedBy:   &userID,
				PaidAt:        confirmedAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "vendor confirmed payment")
	return s.loadOrder(ctx, order.ID)
}

// VendorReject records that the vendor did not receive a self-declared payment.
func (s *service) VendorReject(ctx context.Context, userID, orderID uuid.UUID, reason string) (*models.Order, error) {
	order, err := s.authorizeVendor(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != enums.PaymentMethodMerchantDirect {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only merchant-direct payments can be rejected")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultRejectReason
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).UpdateUnpaidOrder(ctx, order.ID, map[string]any{
			"payment_notes":    rejectionNotePrefix + reason,
			"transaction_code": nil,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reject order payment")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaymentRejected,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: &userID, Role: enums.UserRoleVendor.String()},
			Data: payloads.OrderPaymentRejectedEvent{
				OrderID:    order.ID,
				VendorID:   order.VendorID,
				RejectedBy: userID,
				Reason:     reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "vendor rejected payment")
	return s.loadOrder(ctx, order.ID)
}

func (s *service) VendorPendingPayments(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	ids, err := s.ownedBusinessIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	orders, err := s.repo.ListPendingMerchantDirect(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list pending payments")
	}
	return orders, nil
}

// Instructions lists where and how much to pay for every order of a
// merchant-direct checkout.
func (s *service) Instructions(ctx context.Context, sessionKey, attemptToken string) (*InstructionsView, error) {
	attempt, err := s.repo.FindAttemptByToken(ctx, strings.TrimSpace(attemptToken))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout attempt")
	}
	if sessionKey == "" || attempt.SessionKey != sessionKey {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout not found")
	}
	if attempt.Path != enums.SettlementPathMerchantDirect {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout is not paid directly to merchants")
	}

	orders, err := s.repo.ListAttemptOrders(ctx, attempt.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout orders")
	}

	view := &InstructionsView{
		Token:  attempt.Token,
		Path:   attempt.Path,
		Total:  decimal.Zero,
		Orders: make([]InstructionLine, 0, len(orders)),
	}
	for _, order := range orders {
		line := InstructionLine{
			OrderID:          order.ID,
			Sequence:         order.Sequence,
			VendorID:         order.VendorID,
			Amount:           order.Total,
			AccountReference: order.PaymentReference,
			TransactionCode:  order.TransactionCode,
			PaymentNotes:     order.PaymentNotes,
			Paid:             order.Paid,
		}
		if order.Vendor != nil {
			line.VendorName = order.Vendor.Name
			line.PayoutPhone = order.Vendor.PayoutPhone
		}
		view.Total = view.Total.Add(order.Total)
		view.Orders = append(view.Orders, line)
	}
	return view, nil
}

func (s *service) authorizeVendor(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	ids, err := s.ownedBusinessIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	owns, err := s.repo.OrderHasVendorItems(ctx, order.ID, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check order ownership")
	}
	if !owns {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"order_id": order.ID.String(),
			"user_id":  userID.String(),
		}), "vendor attempted to act on another vendor's order")
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to your business")
	}
	return order, nil
}

func (s *service) ownedBusinessIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	ids, err := s.businesses.ListBusinessIDsByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "no business owned by user")
	}
	return ids, nil
}

func (s *service) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func ownsAsCustomer(actor Actor, order *models.Order) bool {
	if actor.UserID != nil && order.CustomerID != nil && *actor.UserID == *order.CustomerID {
		return true
	}
	return actor.SessionKey != "" && actor.SessionKey == order.SessionKey
}

func normalizeTransactionCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	var problems []error
	if len(code) < minTransactionCodeLength {
		problems = append(problems, pkgerrors.Newf(pkgerrors.CodeValidation, "transaction code must be at least %d characters", minTransactionCodeLength))
	}
	if len(code) > maxTransactionCodeLength {
		problems = append(problems, pkgerrors.Newf(pkgerrors.CodeValidation, "transaction code must be at most %d characters", maxTransactionCodeLength))
	}
	if strings.IndexFunc(code, func(r rune) bool {
		return (r < 'A' || r > 'Z') && (r < '0' || r > '9')
	}) >= 0 {
		problems = append(problems, pkgerrors.New(pkgerrors.CodeValidation, "transaction code must be letters and digits"))
	}
	if err := pkgerrors.Join("transaction code is invalid", problems...); err != nil {
		return "", err
	}
	return code, nil
}
