package orders

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/dukalink-backend/api/middleware"
	"github.com/angelmondragon/dukalink-backend/api/responses"
	"github.com/angelmondragon/dukalink-backend/api/validators"
	orderssvc "github.com/angelmondragon/dukalink-backend/internal/orders"
	"github.com/angelmondragon/dukalink-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dukalink-backend/pkg/errors"
	"github.com/angelmondragon/dukalink-backend/pkg/logger"
)

const maxRejectReasonLength = 500

// action produces the response payload of an order route.
type action func(r *http.Request, svc orderssvc.Service) (any, error)

func handle(svc orderssvc.Service, logg *logger.Logger, run action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}
		out, err := run(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

// CustomerPaymentConfirmation records the transaction code a customer got
// after paying a vendor directly.
func CustomerPaymentConfirmation(svc orderssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, func(r *http.Request, svc orderssvc.Service) (any, error) {
		ctx := r.Context()
		actor := orderssvc.Actor{
			UserID:     middleware.UserUUIDFromContext(ctx),
			SessionKey: middleware.SessionKeyFromContext(ctx),
		}
		if actor.SessionKey == "" {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "session required")
		}
		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			return nil, err
		}
		var req customerConfirmRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return respond(svc.CustomerConfirm(ctx, actor, orderID, req.TransactionCode))
	})
}

// VendorPayment lets the vendor confirm or reject a directly paid order.
func VendorPayment(svc orderssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, func(r *http.Request, svc orderssvc.Service) (any, error) {
		vendorUserID, err := vendorUser(r)
		if err != nil {
			return nil, err
		}
		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			return nil, err
		}
		var req vendorPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		if req.Action == "confirm" {
			return respond(svc.VendorConfirm(r.Context(), vendorUserID, orderID, req.TransactionCode))
		}
		reason := validators.SanitizeString(req.Reason, maxRejectReasonLength)
		return respond(svc.VendorReject(r.Context(), vendorUserID, orderID, reason))
	})
}

// VendorPendingPayments lists direct-payment orders awaiting the vendor's check.
func VendorPendingPayments(svc orderssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, func(r *http.Request, svc orderssvc.Service) (any, error) {
		vendorUserID, err := vendorUser(r)
		if err != nil {
			return nil, err
		}
		pending, err := svc.VendorPendingPayments(r.Context(), vendorUserID)
		if err != nil {
			return nil, err
		}
		out := make([]orderResponse, len(pending))
		for i := range pending {
			out[i] = newOrderResponse(&pending[i])
		}
		return out, nil
	})
}

func respond(order *models.Order, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return newOrderResponse(order), nil
}

func vendorUser(r *http.Request) (uuid.UUID, error) {
	if id := middleware.UserUUIDFromContext(r.Context()); id != nil {
		return *id, nil
	}
	return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
}
