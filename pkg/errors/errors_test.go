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
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeDuplicateRequest, status: http.StatusConflict, publicMsg: "a pending request already exists", detailsOK: true},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodePartialApproval, status: http.StatusServiceUnavailable, publicMsg: "approval not completed, retry with the same request", retryable: true, detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
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
	base := New(CodeValidation, "missing price")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing price" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	base.WithDetails(map[string]any{"field": "price"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("connection reset")
	wrapped := Wrap(CodeDependency, cause, "update entry")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if !wrapped.Retryable() {
		t.Fatalf("dependency errors should be retryable")
	}
}

func TestAsAndIsCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("approve: %w", New(CodeDuplicateRequest, "pending request exists"))
	if got := As(err); got == nil || got.Code() != CodeDuplicateRequest {
		t.Fatalf("As failed to return typed error")
	}
	if !IsCode(err, CodeDuplicateRequest) {
		t.Fatalf("expected IsCode to match duplicate request")
	}
	if IsCode(err, CodeNotFound) {
		t.Fatalf("IsCode matched the wrong code")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestLogFieldsWithoutDriverError(t *testing.T) {
	err := Wrap(CodeDependency, stdErrors.New("dial tcp: refused"), "list entries")
	fields := LogFields(err)
	if fields["error_code"] != CodeDependency {
		t.Fatalf("expected dependency code, got %v", fields["error_code"])
	}
	chain, ok := fields["error_chain"].([]string)
	if !ok || len(chain) != 2 {
		t.Fatalf("expected two chain links, got %v", fields["error_chain"])
	}
	if _, ok := fields["pg_code"]; ok {
		t.Fatalf("pg fields must be omitted without a driver error")
	}
}

func TestLogFieldsExtractsPostgresDiagnostics(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "ux_change_requests_entry_kind_pending",
		TableName:      "change_requests",
		Message:        "duplicate key value violates unique constraint",
	}
	fields := LogFields(Wrap(CodeDependency, pgErr, "insert change request"))
	if fields["pg_code"] != "23505" {
		t.Fatalf("expected pg code 23505, got %v", fields["pg_code"])
	}
	if fields["pg_constraint"] != "ux_change_requests_entry_kind_pending" {
		t.Fatalf("unexpected constraint %v", fields["pg_constraint"])
	}
	if fields["pg_table"] != "change_requests" {
		t.Fatalf("unexpected table %v", fields["pg_table"])
	}
	if _, ok := fields["pg_column"]; ok {
		t.Fatalf("empty pg_column should be omitted")
	}
}

func TestLogFieldsPQError(t *testing.T) {
	fields := LogFields(&pq.Error{Code: "40001", Message: "could not serialize access"})
	if fields["pg_code"] != "40001" {
		t.Fatalf("expected pq code, got %v", fields["pg_code"])
	}
	if len(LogFields(nil)) != 0 {
		t.Fatalf("nil error should produce no fields")
	}
}
