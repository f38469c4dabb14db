package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/EmpoweredVote/mp-sync/internal/middleware"
	"github.com/EmpoweredVote/mp-sync/internal/utils"
)

// call wraps an inner handler that echoes the operator from context, applies
// the given headers, and returns the recorded response.
func call(t *testing.T, mw func(http.Handler) http.Handler, method string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		operator, _ := utils.GetOperatorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(operator))
	})

	req := httptest.NewRequest(method, "/members/reconcile", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mw(inner).ServeHTTP(rec, req)
	return rec
}

func TestAdminMiddleware_MissingToken(t *testing.T) {
	rec := call(t, middleware.AdminMiddleware("s3cret", ""), http.MethodPost, nil)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "missing bearer token") {
		t.Errorf("unexpected body: %q", rec.Body.String())
	}
}

func TestAdminMiddleware_WrongToken(t *testing.T) {
	rec := call(t, middleware.AdminMiddleware("s3cret", ""), http.MethodPost, map[string]string{
		"Authorization": "Bearer nope",
	})

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestAdminMiddleware_Disabled(t *testing.T) {
	rec := call(t, middleware.AdminMiddleware("", ""), http.MethodPost, map[string]string{
		"Authorization": "Bearer ",
	})

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestAdminMiddleware_ValidTokenSetsOperator(t *testing.T) {
	mw := middleware.AdminMiddleware("s3cret", "")

	rec := call(t, mw, http.MethodPost, map[string]string{
		"Authorization":           "Bearer s3cret",
		middleware.OperatorHeader: "alice",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Body.String(); got != "alice" {
		t.Errorf("expected operator alice, got %q", got)
	}

	rec = call(t, mw, http.MethodPost, map[string]string{"Authorization": "Bearer s3cret"})
	if got := rec.Body.String(); got != "admin" {
		t.Errorf("expected default operator admin, got %q", got)
	}
}

func TestAdminMiddleware_HashedToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	// The hash takes precedence over a plain token.
	mw := middleware.AdminMiddleware("stale", string(hash))

	rec := call(t, mw, http.MethodPost, map[string]string{"Authorization": "Bearer s3cret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", rec.Code, rec.Body.String())
	}

	for _, bad := range []string{"stale", "s3cret2", string(hash)} {
		rec = call(t, mw, http.MethodPost, map[string]string{"Authorization": "Bearer " + bad})
		if rec.Code != http.StatusForbidden {
			t.Errorf("token %q: expected 403, got %d", bad, rec.Code)
		}
	}
}

func TestCORSMiddleware_AllowedOrigin(t *testing.T) {
	mw := middleware.CORSMiddleware([]string{"http://localhost:5173/"})

	rec := call(t, mw, http.MethodOptions, map[string]string{"Origin": "http://localhost:5173"})

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("expected origin echoed, got %q", got)
	}
}

func TestCORSMiddleware_UnknownOrigin(t *testing.T) {
	mw := middleware.CORSMiddleware([]string{"http://localhost:5173"})

	rec := call(t, mw, http.MethodGet, map[string]string{"Origin": "https://evil.example"})

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS header, got %q", got)
	}
}
