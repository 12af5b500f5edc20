package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStaticAPIKeyValidatorParsing(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:ana:records|ASK, k2:luis:ask")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	if validator.Len() != 2 {
		t.Fatalf("Len() = %d", validator.Len())
	}
	identity, ok := validator.Validate(context.Background(), "k1")
	if !ok {
		t.Fatal("expected key to be valid")
	}
	if identity.Operator != "ana" {
		t.Fatalf("Operator = %q", identity.Operator)
	}
	if !identity.HasRole(RoleAsk) || !identity.HasRole(RoleRecords) {
		t.Fatalf("Roles = %v", identity.Roles)
	}
	if _, ok := validator.Validate(context.Background(), "nope"); ok {
		t.Fatal("unknown key should not validate")
	}
}

func TestStaticAPIKeyValidatorRejectsBadSpec(t *testing.T) {
	for _, spec := range []string{
		"invalid",
		":ana:ask",
		"k1:ana:",
		"k1:ana:admin",
		"k1:ana:ask,k1:luis:ask",
	} {
		if _, err := NewStaticAPIKeyValidator(spec); err == nil {
			t.Fatalf("expected parse error for %q", spec)
		}
	}
}

func TestRequireRejectsMissingKey(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:ana:ask")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	handler := Require(slog.New(slog.NewJSONHandler(io.Discard, nil)), validator, RoleAsk, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestRequireChecksRole(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:ana:ask")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	handler := Require(nil, validator, RoleRecords, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodDelete, "/v1/records/1", nil)
	req.Header.Set("X-API-Key", "k1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestRequireInjectsIdentity(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:ana:ask")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	handler := Require(nil, validator, RoleAsk, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatal("expected identity in context")
		}
		if identity.Operator != "ana" {
			t.Fatalf("Operator = %q", identity.Operator)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", nil)
	req.Header.Set("Authorization", "Bearer k1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
}
