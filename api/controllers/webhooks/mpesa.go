package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/angelmondragon/dukalink-backend/api/responses"
	"github.com/angelmondragon/dukalink-backend/internal/payments"
	"github.com/angelmondragon/dukalink-backend/pkg/logger"
	"github.com/angelmondragon/dukalink-backend/pkg/mpesa"
)

const maxCallbackBytes = 1 << 20

// MpesaReconciler applies a gateway outcome to the payment it belongs to.
type MpesaReconciler interface {
	Reconcile(ctx context.Context, outcome mpesa.Outcome) (*payments.ReconcileResult, error)
}

type outcomeParser func(body []byte) (mpesa.Outcome, error)

// MpesaCallback receives STK push results. The gateway retries anything
// other than an accepted acknowledgement, so failures are logged and the
// payment timeout job picks the intent up instead.
func MpesaCallback(svc MpesaReconciler, logg *logger.Logger) http.HandlerFunc {
	return mpesaHandler("callback", mpesa.ParseCallback, svc, logg)
}

// MpesaTimeout receives queue timeout notices and fails the push.
func MpesaTimeout(svc MpesaReconciler, logg *logger.Logger) http.HandlerFunc {
	return mpesaHandler("timeout", mpesa.ParseTimeout, svc, logg)
}

func mpesaHandler(kind string, parse outcomeParser, svc MpesaReconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := logg.WithField(r.Context(), "mpesa_notice", kind)
		defer responses.WriteRaw(w, http.StatusOK, mpesa.Accepted)

		body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBytes))
		if err != nil {
			logg.Error(ctx, "mpesa notice read failed", err)
			return
		}
		outcome, err := parse(body)
		if err != nil {
			if errors.Is(err, mpesa.ErrMalformedCallback) {
				logg.Warn(logg.WithField(ctx, "body_bytes", len(body)), "mpesa notice malformed")
				return
			}
			logg.Error(ctx, "mpesa notice parse failed", err)
			return
		}
		ctx = logg.WithCheckoutRequestID(ctx, outcome.CheckoutRequestID)
		if svc == nil {
			logg.Error(ctx, "mpesa notice dropped", errors.New("reconciler unavailable"))
			return
		}

		result, err := svc.Reconcile(ctx, outcome)
		if err != nil {
			logg.Error(ctx, "mpesa notice reconcile failed", err)
			return
		}
		fields := map[string]any{"result_code": outcome.ResultCode}
		if result != nil {
			fields["outcome"] = result.Outcome
		}
		logg.Info(logg.WithFields(ctx, fields), "mpesa notice reconciled")
	}
}
