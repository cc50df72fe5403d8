package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/gecofarm/farm-session/internal/core/domain"
)

func TestHTTPErrorHandler(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"echo error", echo.NewHTTPError(http.StatusBadRequest, "invalid payload"), http.StatusBadRequest, "invalid payload"},
		{"validation", fmt.Errorf("sign in: %w: email and password are required", domain.ErrValidation), http.StatusBadRequest, ""},
		{"rejected login", fmt.Errorf("%w: %w", domain.ErrAuthenticationFailed, domain.ErrInvalidCredentials), http.StatusUnauthorized, "invalid credentials"},
		{"store down", fmt.Errorf("%w: %w", domain.ErrAuthenticationFailed, domain.ErrStoreUnavailable), http.StatusServiceUnavailable, "service temporarily unavailable"},
		{"no session", domain.ErrNoSession, http.StatusUnauthorized, "authentication required"},
		{"duplicate", fmt.Errorf("register: %w", domain.ErrAlreadyRegistered), http.StatusConflict, "email already registered"},
		{"missing profile", domain.ErrProfileNotFound, http.StatusNotFound, "profile not found"},
		{"auth failed", domain.ErrAuthenticationFailed, http.StatusUnauthorized, "authentication failed"},
		{"registration", fmt.Errorf("%w: %w", domain.ErrRegistrationFailed, errors.New("hash")), http.StatusInternalServerError, "registration failed"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}

	handler := NewHTTPErrorHandler(zerolog.Nop())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodPost, "/auth/login", nil), rec)

			handler(tc.err, c)

			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rec.Code)
			}
			var body errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if tc.msg != "" && body.Error != tc.msg {
				t.Fatalf("expected %q, got %q", tc.msg, body.Error)
			}
		})
	}
}

func TestHTTPErrorHandler_CommittedResponse(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	_ = c.NoContent(http.StatusNoContent)

	NewHTTPErrorHandler(zerolog.Nop())(errors.New("late"), c)

	if rec.Code != http.StatusNoContent || rec.Body.Len() != 0 {
		t.Fatalf("committed response must be left alone, got %d %q", rec.Code, rec.Body.String())
	}
}
