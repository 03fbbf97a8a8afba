package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "unit-test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestMiddlewareInjectsClaims(t *testing.T) {
	mw := NewMiddleware(Config{Secret: testSecret, Issuer: "coach.identity"})

	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	token := signToken(t, jwt.MapClaims{
		"sub":       "coach-1",
		"tenant_id": "tenant-1",
		"iss":       "coach.identity",
		"scopes":    []string{ScopeReconciliationRead, ScopeReconciliationWrite},
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/conflicts?athlete_id=a", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	mw.Wrap(next).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	if seen == nil {
		t.Fatal("expected claims on request context")
	}
	if seen.Subject != "coach-1" || seen.TenantID != "tenant-1" {
		t.Fatalf("unexpected claims: %+v", seen)
	}
	if !seen.HasScope(ScopeReconciliationWrite) {
		t.Fatal("expected reconciliation:write scope")
	}
	if seen.HasScope(ScopeRulesWrite) {
		t.Fatal("rules:write scope should not be present")
	}
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	mw := NewMiddleware(Config{Secret: testSecret, Issuer: "coach.identity"})
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without a token")
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/conflicts", nil)
	rr := httptest.NewRecorder()

	mw.Wrap(next).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestMiddlewareRejectsWrongIssuer(t *testing.T) {
	mw := NewMiddleware(Config{Secret: testSecret, Issuer: "coach.identity"})
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run with a foreign issuer")
	})

	token := signToken(t, jwt.MapClaims{
		"sub":       "coach-1",
		"tenant_id": "tenant-1",
		"iss":       "someone-else",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/conflicts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	mw.Wrap(next).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestMiddlewareSkipsHealthz(t *testing.T) {
	mw := NewMiddleware(Config{Secret: testSecret, Issuer: "coach.identity"})
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	mw.Wrap(next).ServeHTTP(rr, req)

	if !called {
		t.Fatal("health checks must bypass authentication")
	}
}
