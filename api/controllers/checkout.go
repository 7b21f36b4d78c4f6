package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/dukalink-backend/api/middleware"
	"github.com/angelmondragon/dukalink-backend/api/responses"
	"github.com/angelmondragon/dukalink-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/dukalink-backend/internal/checkout"
	"github.com/angelmondragon/dukalink-backend/internal/orders"
	"github.com/angelmondragon/dukalink-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/dukalink-backend/pkg/errors"
	"github.com/angelmondragon/dukalink-backend/pkg/logger"
)

// AttemptService reads and resumes checkout attempts.
type AttemptService interface {
	Attempt(ctx context.Context, sessionKey, token string) (*payments.AttemptView, error)
	Retry(ctx context.Context, sessionKey, token string) (*payments.DispatchResult, error)
}

// InstructionService lists merchant-direct payment instructions.
type InstructionService interface {
	Instructions(ctx context.Context, sessionKey, token string) (*orders.InstructionsView, error)
}

// checkoutRequest fields are validated together by the checkout service so
// the form gets every field error at once.
type checkoutRequest struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	PaymentMethod string `json:"payment_method"`
}

// Checkout turns the session cart into one order per vendor and starts the
// chosen settlement path.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		sessionKey, err := sessionFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Execute(r.Context(), checkoutsvc.Input{
			SessionKey:    sessionKey,
			UserID:        middleware.UserUUIDFromContext(r.Context()),
			Name:          payload.Name,
			Phone:         payload.Phone,
			PaymentMethod: payload.PaymentMethod,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// CheckoutAttempt shows the progress of a multi-vendor checkout.
func CheckoutAttempt(svc AttemptService, logg *logger.Logger) http.HandlerFunc {
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
		token, err := validators.PathString(r, "token")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Attempt(r.Context(), sessionKey, token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CheckoutDispatch re-sends the push prompt for the current unpaid order.
func CheckoutDispatch(svc AttemptService, logg *logger.Logger) http.HandlerFunc {
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
		token, err := validators.PathString(r, "token")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Retry(r.Context(), sessionKey, token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, result)
	}
}

func CheckoutInstructions(svc InstructionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}
		sessionKey, err := sessionFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		token, err := validators.PathString(r, "token")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Instructions(r.Context(), sessionKey, token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
