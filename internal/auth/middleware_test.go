package auth

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sqlchat/sqlchat/internal/observability"
)

func TestStaticAPIKeyValidatorParsing(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:t1:sql_operator|query_reader")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	identity, ok := validator.Validate(context.Background(), "k1")
	if !ok {
		t.Fatal("expected key to be valid")
	}
	if identity.TenantID != "t1" {
		t.Fatalf("TenantID = %q", identity.TenantID)
	}
	if !identity.HasRole("sql_operator") {
		t.Fatal("expected sql_operator role")
	}
}

func TestStaticAPIKeyValidatorRejectsBadSpec(t *testing.T) {
	_, err := NewStaticAPIKeyValidator("invalid")
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestMiddlewareRequiresKey(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:t1:query_reader")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	mw := Middleware(slog.New(slog.NewJSONHandler(io.Discard, nil)), validator)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestMiddlewareInjectsIdentity(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:t1:query_reader")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	mw := Middleware(nil, validator)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatal("expected identity in context")
		}
		if identity.TenantID != "t1" {
			t.Fatalf("TenantID = %q", identity.TenantID)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/schema", nil)
	req.Header.Set("X-API-Key", "k1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestOptionalAllowsAnonymousRequests(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:t1:query_reader")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	handler := Optional(nil, validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); ok {
			t.Fatal("anonymous request should not carry an identity")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/query", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestOptionalRejectsInvalidKey(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:t1:query_reader")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	handler := Optional(nil, validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodPost, "/query", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestOptionalInjectsIdentityFromBearer(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:t1:sql_operator|query_reader")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	handler := Optional(nil, validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok || !identity.HasRole(RoleSQLOperator) {
			t.Fatalf("identity = %#v, ok = %v", identity, ok)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/query", nil)
	req.Header.Set("Authorization", "Bearer k1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestStaticAPIKeyValidatorRejectsUnknownRole(t *testing.T) {
	_, err := NewStaticAPIKeyValidator("k1:t1:query_reader|sql_operater")
	if err == nil || !strings.Contains(err.Error(), "sql_operater") {
		t.Fatalf("error = %v", err)
	}
	if strings.Contains(err.Error(), "k1:") {
		t.Fatalf("error leaks the key: %v", err)
	}
}

func TestStaticAPIKeyValidatorRejectsDuplicateKey(t *testing.T) {
	_, err := NewStaticAPIKeyValidator("k1:t1:query_reader,k1:t2:sql_operator")
	if err == nil || !strings.Contains(err.Error(), Fingerprint("k1")) {
		t.Fatalf("error = %v", err)
	}
}

func TestStaticAPIKeyValidatorNormalizesRoles(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:t1: SQL_Operator | query_reader|sql_operator")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	identity, _ := validator.Validate(context.Background(), "k1")
	if len(identity.Roles) != 2 || identity.Roles[0] != RoleQueryReader || identity.Roles[1] != RoleSQLOperator {
		t.Fatalf("Roles = %v", identity.Roles)
	}
	if identity.KeyID != Fingerprint("k1") || len(identity.KeyID) != 8 {
		t.Fatalf("KeyID = %q", identity.KeyID)
	}
}

func TestSQLOperatorImpliesQueryReader(t *testing.T) {
	operator := Identity{Roles: []Role{RoleSQLOperator}}
	if !operator.HasRole(RoleQueryReader) || !operator.CanRunDirectSQL() {
		t.Fatalf("operator = %#v", operator)
	}
	if operator.HasRole(RoleHistoryReader) {
		t.Fatal("sql_operator must not grant history access")
	}
	reader := Identity{Roles: []Role{RoleQueryReader, RoleHistoryReader}}
	if reader.CanRunDirectSQL() || reader.HasRole(RoleSQLOperator) {
		t.Fatalf("reader = %#v", reader)
	}
}

func TestMiddlewareAnnotatesAccessLog(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:tienda:query_reader")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	handler := observability.TraceMiddleware(observability.LoggingMiddleware(logger)(
		Middleware(nil, validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})),
	))
	req := httptest.NewRequest(http.MethodGet, "/v1/schema", nil)
	req.Header.Set("X-API-Key", "k1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := logs.String()
	if !strings.Contains(out, `"tenant_id":"tienda"`) || !strings.Contains(out, `"key_id":"`+Fingerprint("k1")+`"`) {
		t.Fatalf("access log = %s", out)
	}
	if strings.Contains(out, `"k1"`) {
		t.Fatalf("access log leaks the key: %s", out)
	}
}
