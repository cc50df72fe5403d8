package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func runSession(t *testing.T, tokens *SessionTokens, prepare func(req *http.Request)) (*httptest.ResponseRecorder, *stubRegistry, string) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if prepare != nil {
		prepare(req)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	registry := &stubRegistry{resolver: &stubResolver{}}
	var sid string
	mw := Session(SessionConfig{Tokens: tokens, Registry: registry})
	handler := mw(func(c echo.Context) error {
		sid, _ = c.Get(ContextSessionID).(string)
		if c.Get(ContextResolver) == nil {
			t.Fatalf("resolver not set")
		}
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec, registry, sid
}

func TestSessionTokens_RoundTrip(t *testing.T) {
	tokens := NewSessionTokens("secret", time.Hour)
	signed, exp, err := tokens.Issue("sid-1")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expected future expiry")
	}
	sid, err := tokens.Parse(signed)
	if err != nil || sid != "sid-1" {
		t.Fatalf("Parse = %q, %v", sid, err)
	}
}

func TestSessionTokens_RejectsForeignAndExpired(t *testing.T) {
	tokens := NewSessionTokens("secret", time.Hour)

	foreign, _, _ := NewSessionTokens("other", time.Hour).Issue("sid-1")
	if _, err := tokens.Parse(foreign); err == nil {
		t.Fatalf("expected error for token signed with another secret")
	}

	expired := NewSessionTokens("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, _ := expired.Issue("sid-1")
	if _, err := tokens.Parse(old); err == nil {
		t.Fatalf("expected error for expired token")
	}

	noSid, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	if _, err := tokens.Parse(noSid); err == nil {
		t.Fatalf("expected error for token without sid")
	}
}

func TestSession_NewVisitorGetsCookie(t *testing.T) {
	tokens := NewSessionTokens("secret", time.Hour)
	rec, registry, sid := runSession(t, tokens, nil)

	if sid == "" {
		t.Fatalf("expected a session id")
	}
	if len(registry.bound) != 1 || registry.bound[0] != (binding{sessionID: sid, fresh: true}) {
		t.Fatalf("expected fresh binding for %s, got %+v", sid, registry.bound)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != SessionCookieName || !cookies[0].HttpOnly {
		t.Fatalf("expected http-only session cookie, got %+v", cookies)
	}
	if got, err := tokens.Parse(cookies[0].Value); err != nil || got != sid {
		t.Fatalf("cookie does not carry the session id: %q, %v", got, err)
	}
}

func TestSession_ReusesCookieSession(t *testing.T) {
	tokens := NewSessionTokens("secret", time.Hour)
	signed, _, _ := tokens.Issue("sid-42")

	rec, registry, sid := runSession(t, tokens, func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: signed})
	})
	if sid != "sid-42" {
		t.Fatalf("expected sid-42, got %s", sid)
	}
	if len(registry.bound) != 1 || registry.bound[0].fresh {
		t.Fatalf("cookie session must bind as existing, got %+v", registry.bound)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("existing session must not be re-issued")
	}
}

func TestSession_AcceptsBearerToken(t *testing.T) {
	tokens := NewSessionTokens("secret", time.Hour)
	signed, _, _ := tokens.Issue("sid-bearer")

	_, _, sid := runSession(t, tokens, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+signed)
	})
	if sid != "sid-bearer" {
		t.Fatalf("expected sid-bearer, got %s", sid)
	}
}

func TestSession_InvalidCookieStartsNewSession(t *testing.T) {
	tokens := NewSessionTokens("secret", time.Hour)

	rec, registry, sid := runSession(t, tokens, func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "garbage"})
	})
	if sid == "" || sid == "garbage" {
		t.Fatalf("expected a fresh session id, got %q", sid)
	}
	if len(registry.bound) != 1 || !registry.bound[0].fresh {
		t.Fatalf("expected fresh binding, got %+v", registry.bound)
	}
	if len(rec.Result().Cookies()) != 1 {
		t.Fatalf("expected a new cookie")
	}
}
