package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/angelmondragon/dukalink-backend/internal/payments"
	"github.com/angelmondragon/dukalink-backend/pkg/logger"
	"github.com/angelmondragon/dukalink-backend/pkg/mpesa"
)

type recordingReconciler struct {
	outcomes []mpesa.Outcome
	err      error
}

func (r *recordingReconciler) Reconcile(_ context.Context, outcome mpesa.Outcome) (*payments.ReconcileResult, error) {
	r.outcomes = append(r.outcomes, outcome)
	if r.err != nil {
		return nil, r.err
	}
	return &payments.ReconcileResult{Outcome: payments.ReconcileCompleted}, nil
}

func postNotice(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/mpesa/callback", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var ack mpesa.Acknowledgement
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.ResultCode != 0 || ack.ResultDesc != "Success" {
		t.Fatalf("unexpected ack %+v", ack)
	}
	return resp
}

func TestMpesaCallbackReconcilesOutcome(t *testing.T) {
	t.Parallel()

	rec := &recordingReconciler{}
	handler := MpesaCallback(rec, logger.Nop())

	postNotice(t, handler, `{"Body":{"stkCallback":{"MerchantRequestID":"m-1","CheckoutRequestID":"ws_CO_1","ResultCode":0,"ResultDesc":"ok","CallbackMetadata":{"Item":[{"Name":"MpesaReceiptNumber","Value":"QK12345"},{"Name":"Amount","Value":150}]}}}}`)

	if len(rec.outcomes) != 1 {
		t.Fatalf("expected one reconcile, got %d", len(rec.outcomes))
	}
	got := rec.outcomes[0]
	if got.CheckoutRequestID != "ws_CO_1" || got.Receipt != "QK12345" {
		t.Fatalf("unexpected outcome %+v", got)
	}
}

func TestMpesaCallbackAcknowledgesMalformedBody(t *testing.T) {
	t.Parallel()

	rec := &recordingReconciler{}
	postNotice(t, MpesaCallback(rec, logger.Nop()), `{"Body":{}}`)
	postNotice(t, MpesaCallback(rec, logger.Nop()), `not json`)

	if len(rec.outcomes) != 0 {
		t.Fatalf("malformed bodies must not reach the reconciler")
	}
}

func TestMpesaCallbackAcknowledgesReconcileFailure(t *testing.T) {
	t.Parallel()

	rec := &recordingReconciler{err: errors.New("db down")}
	postNotice(t, MpesaCallback(rec, logger.Nop()), `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_2","ResultCode":1032,"ResultDesc":"cancelled"}}}`)

	if len(rec.outcomes) != 1 {
		t.Fatalf("expected reconcile attempt")
	}
}

func TestMpesaTimeoutFailsPush(t *testing.T) {
	t.Parallel()

	rec := &recordingReconciler{}
	postNotice(t, MpesaTimeout(rec, logger.Nop()), `{"CheckoutRequestID":"ws_CO_3"}`)

	if len(rec.outcomes) != 1 {
		t.Fatalf("expected one reconcile, got %d", len(rec.outcomes))
	}
	if rec.outcomes[0].ResultCode != mpesa.ResultCodeTimedOut {
		t.Fatalf("expected timed out outcome, got %q", rec.outcomes[0].ResultCode)
	}
}

func TestMpesaCallbackWithoutReconciler(t *testing.T) {
	t.Parallel()

	postNotice(t, MpesaCallback(nil, logger.Nop()), `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_4","ResultCode":0}}}`)
}
