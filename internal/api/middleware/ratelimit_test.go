package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type stubLimiter struct {
	allowed bool
	err     error
	scope   string
}

func (l *stubLimiter) Allow(_ context.Context, scope, _ string) (bool, time.Duration, error) {
	l.scope = scope
	return l.allowed, 1500 * time.Millisecond, l.err
}

func runRateLimit(t *testing.T, limiter Limiter) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/auth/login", nil), rec)

	called := false
	handler := RateLimit(limiter, "login", zerolog.Nop())(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec, called
}

func TestRateLimit_Blocks(t *testing.T) {
	limiter := &stubLimiter{allowed: false}
	rec, called := runRateLimit(t, limiter)
	if called {
		t.Fatalf("next must not be called")
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "2" {
		t.Fatalf("expected Retry-After 2, got %q", rec.Header().Get("Retry-After"))
	}
	if limiter.scope != "login" {
		t.Fatalf("expected scope login, got %s", limiter.scope)
	}
}

func TestRateLimit_FailsOpen(t *testing.T) {
	_, called := runRateLimit(t, &stubLimiter{err: errors.New("redis down")})
	if !called {
		t.Fatalf("limiter errors must let requests through")
	}
}

func TestRateLimit_NilLimiterPassesThrough(t *testing.T) {
	_, called := runRateLimit(t, nil)
	if !called {
		t.Fatalf("expected pass-through without limiter")
	}
}
