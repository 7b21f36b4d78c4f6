package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized},
		{code: CodeForbidden, status: http.StatusForbidden},
		{code: CodeNotFound, status: http.StatusNotFound},
		{code: CodeStateConflict, status: http.StatusConflict, detailsOK: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, retryable: true},
		{code: CodeDependency, status: http.StatusBadGateway, retryable: true, detailsOK: true},
		{code: CodePaymentFailed, status: http.StatusPaymentRequired, retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := Newf(CodeValidation, "missing %s", "phone")
	if base.Message() != "missing phone" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}
	base.WithDetails(map[string]any{"field": "phone"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeDependency, cause, "stk push")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Error() != "DEPENDENCY_ERROR: stk push: boom" {
		t.Fatalf("unexpected error string %q", wrapped.Error())
	}
}

func TestIsCodeAndRetryable(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", New(CodeDependency, "gateway down"))
	if !IsCode(err, CodeDependency) {
		t.Fatal("expected IsCode to see through fmt wrapping")
	}
	if !Retryable(err) {
		t.Fatal("dependency errors are retryable")
	}
	if Retryable(New(CodeForbidden, "not yours")) {
		t.Fatal("forbidden errors are not retryable")
	}
	if Retryable(stdErrors.New("plain")) {
		t.Fatal("untyped errors are not retryable")
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestDumpExtractsPostgresDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "payment_intents_checkout_request_id_key", TableName: "payment_intents"}
	dump := Dump(Wrap(CodeConflict, pgErr, "insert payment intent"))
	if dump.Code != CodeConflict || dump.PGCode != "23505" || dump.PGConstraint != "payment_intents_checkout_request_id_key" {
		t.Fatalf("unexpected dump %+v", dump)
	}
	if dump.PGClass != "unique_violation" {
		t.Fatalf("expected unique_violation class, got %q", dump.PGClass)
	}
	if len(dump.Chain) != 2 {
		t.Fatalf("expected two chain entries, got %v", dump.Chain)
	}

	pqDump := Dump(&pq.Error{Code: "23503", Table: "order_items"})
	if pqDump.PGCode != "23503" || pqDump.PGTable != "order_items" || pqDump.PGClass != "foreign_key_violation" {
		t.Fatalf("unexpected pq dump %+v", pqDump)
	}
}

func TestDumpSkipsRepeatedMessages(t *testing.T) {
	base := stdErrors.New("stk push rejected")
	wrapped := fmt.Errorf("%w", base)
	dump := Dump(Wrap(CodeDependency, wrapped, "dispatch vendor payment"))
	if len(dump.Chain) != 2 {
		t.Fatalf("expected repeated wrapper to be skipped, got %v", dump.Chain)
	}
	if dump.PGCode != "" || dump.PGClass != "" {
		t.Fatalf("unexpected postgres fields %+v", dump)
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("load order: %w", New(CodeNotFound, "order not found"))
	if !stdErrors.Is(err, New(CodeNotFound, "")) {
		t.Fatal("expected a bare code to match")
	}
	if stdErrors.Is(err, New(CodeNotFound, "intent not found")) {
		t.Fatal("a different message must not match")
	}
	if stdErrors.Is(err, New(CodeForbidden, "")) {
		t.Fatal("a different code must not match")
	}
}

func TestWithRetryOverridesCode(t *testing.T) {
	err := New(CodeDependency, "bad credentials").WithRetry(false)
	if Retryable(err) {
		t.Fatal("override should make the error final")
	}
	if !Retryable(New(CodeValidation, "busy").WithRetry(true)) {
		t.Fatal("override should make the error retryable")
	}
}

func TestJoinCollectsReasons(t *testing.T) {
	if Join("nothing", nil, nil) != nil {
		t.Fatal("joining nil errors should return nil")
	}

	err := Join("transaction code is invalid",
		New(CodeValidation, "too short"),
		stdErrors.New("bad characters"),
	)
	if !IsCode(err, CodeValidation) {
		t.Fatalf("expected validation code, got %v", err)
	}
	details, ok := As(err).Details().(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", As(err).Details())
	}
	reasons, _ := details["reasons"].([]string)
	if len(reasons) != 2 || reasons[0] != "too short" || reasons[1] != "bad characters" {
		t.Fatalf("unexpected reasons %v", reasons)
	}
}

func TestCodeHTTPStatus(t *testing.T) {
	if CodeRateLimit.HTTPStatus() != http.StatusTooManyRequests {
		t.Fatalf("unexpected status %d", CodeRateLimit.HTTPStatus())
	}
}
