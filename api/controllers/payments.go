package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/dukalink-backend/api/responses"
	"github.com/angelmondragon/dukalink-backend/api/validators"
	"github.com/angelmondragon/dukalink-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/dukalink-backend/pkg/errors"
	"github.com/angelmondragon/dukalink-backend/pkg/logger"
)

// PaymentStatusService answers push payment polls.
type PaymentStatusService interface {
	Status(ctx context.Context, checkoutRequestID string) (*payments.StatusView, error)
	Success(ctx context.Context, sessionKey string, orderID uuid.UUID) (*payments.SuccessView, error)
}

// PaymentStatus is polled by the waiting page until the push resolves.
func PaymentStatus(svc PaymentStatusService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		checkoutRequestID, err := validators.PathString(r, "checkoutRequestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Status(r.Context(), checkoutRequestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		responses.WriteSuccess(w, view)
	}
}

func PaymentSuccess(svc PaymentStatusService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		sessionKey, err := sessionFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Success(r.Context(), sessionKey, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
