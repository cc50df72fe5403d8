package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/gecofarm/farm-session/internal/core/ports"
)

// Context keys set by Session and RequireTier.
const (
	ContextSessionID = "session_id"
	ContextResolver  = "resolver"
	ContextUser      = "user"
)

// SessionCookieName is the cookie carrying the signed browser session id.
const SessionCookieName = "geco_session"

var errInvalidSessionToken = errors.New("invalid session token")

// SessionTokens signs and verifies browser session ids as HS256 JWTs.
type SessionTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionTokens(secret string, ttl time.Duration) *SessionTokens {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionTokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for sessionID and its expiry.
func (t *SessionTokens) Issue(sessionID string) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := jwt.MapClaims{
		"sid": sessionID,
		"iat": now.Unix(),
		"exp": exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse verifies token and returns the session id it carries.
func (t *SessionTokens) Parse(token string) (string, error) {
	claims := jwt.MapClaims{}
	tkn, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil || !tkn.Valid {
		return "", errInvalidSessionToken
	}
	sid, _ := claims["sid"].(string)
	if sid == "" {
		return "", errInvalidSessionToken
	}
	return sid, nil
}

// SessionConfig configures the Session middleware.
type SessionConfig struct {
	Tokens       *SessionTokens
	Registry     ports.SessionRegistry
	CookieSecure bool
}

// Session binds every request to a browser session and its resolver. The
// session id comes from a bearer token or the session cookie; requests with
// neither, or with an invalid one, start a new anonymous session.
func Session(cfg SessionConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sid, err := cfg.Tokens.Parse(requestToken(c))
			fresh := err != nil
			if fresh {
				sid = uuid.NewString()
				token, exp, err := cfg.Tokens.Issue(sid)
				if err != nil {
					return fmt.Errorf("issue session token: %w", err)
				}
				c.SetCookie(&http.Cookie{
					Name:     SessionCookieName,
					Value:    token,
					Path:     "/",
					Expires:  exp,
					HttpOnly: true,
					Secure:   cfg.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			c.Set(ContextSessionID, sid)
			c.Set(ContextResolver, cfg.Registry.Bind(c.Request().Context(), sid, fresh))
			return next(c)
		}
	}
}

func requestToken(c echo.Context) string {
	if h := c.Request().Header.Get(echo.HeaderAuthorization); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	if cookie, err := c.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}
