package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"roomly/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{
		Level:   "error",
		Format:  logger.JSON,
		Service: "test",
	})
}

func TestIdentity_MissingHeader(t *testing.T) {
	handler := Identity(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be reached without an identity header")
	}))

	req := httptest.NewRequest(http.MethodGet, "/booking", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestIdentity_PropagatesUserID(t *testing.T) {
	var got string
	handler := Identity(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = UserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/booking", nil)
	req.Header.Set(UserIDHeader, "alice")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got != "alice" {
		t.Errorf("expected user ID alice in context, got %q", got)
	}
}

func TestUserID_EmptyWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/booking", nil)
	if got := UserID(req.Context()); got != "" {
		t.Errorf("expected empty user ID, got %q", got)
	}
}
