// Package session resolves the authenticated user behind a chat request from
// its access token, carried either in the session cookie or as a bearer
// token.
package session

import (
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/multichat/chatproxy/internal/config"
	"github.com/multichat/chatproxy/internal/logging"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

var (
	ErrNoSession    = errors.New("no session token")
	ErrInvalidToken = errors.New("invalid session token")
	ErrTokenExpired = errors.New("session token expired")
)

// Claims are the access-token claims the proxy relies on. The subject is the
// user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Resolver verifies HS256 access tokens.
type Resolver struct {
	secret     []byte
	cookieName string
	issuer     string
	devUserID  string
}

// NewResolver builds a resolver from the session configuration.
func NewResolver(cfg config.SessionConfig) *Resolver {
	cookie := cfg.CookieName
	if cookie == "" {
		cookie = "sb-access-token"
	}
	return &Resolver{
		secret:     []byte(cfg.JWTSecret),
		cookieName: cookie,
		issuer:     cfg.Issuer,
		devUserID:  strings.TrimSpace(cfg.DevUserID),
	}
}

// Resolve returns the user id of the request's session.
func (r *Resolver) Resolve(req *http.Request) (string, error) {
	raw := r.tokenFromRequest(req)
	if raw == "" {
		if r.devUserID != "" {
			return r.devUserID, nil
		}
		return "", ErrNoSession
	}
	claims, err := r.Verify(raw)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Verify parses and validates a raw access token.
func (r *Resolver) Verify(raw string) (*Claims, error) {
	if len(r.secret) == 0 {
		return nil, ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return r.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	if r.issuer != "" && !claims.VerifyIssuer(r.issuer, true) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (r *Resolver) tokenFromRequest(req *http.Request) string {
	if auth := strings.TrimSpace(req.Header.Get("Authorization")); auth != "" {
		if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
			return strings.TrimSpace(auth[7:])
		}
	}
	cookie, err := req.Cookie(r.cookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	return accessTokenFromCookie(cookie.Value)
}

// accessTokenFromCookie accepts a bare JWT as well as the JSON and
// "base64-" encoded session objects written by browser auth clients.
func accessTokenFromCookie(value string) string {
	if unescaped, err := url.QueryUnescape(value); err == nil {
		value = unescaped
	}
	value = strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(value, "base64-"); ok {
		decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(rest, "="))
		if err != nil {
			return ""
		}
		value = string(decoded)
	}
	switch {
	case strings.HasPrefix(value, "["):
		return gjson.Get(value, "0").String()
	case strings.HasPrefix(value, "{"):
		return gjson.Get(value, "access_token").String()
	default:
		return value
	}
}

// IssueToken signs an access token for userID. It is used by the admin CLI
// and tests.
func IssueToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Middleware resolves the session for every request and stores the user id
// in the gin context. It never rejects; handlers decide whether a session is
// required. get is consulted per request so configuration reloads apply.
func Middleware(get func() *Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		r := get()
		if r == nil {
			c.Next()
			return
		}
		userID, err := r.Resolve(c.Request)
		switch {
		case err == nil:
			c.Set(logging.ContextKeyUserID, userID)
		case errors.Is(err, ErrNoSession):
		default:
			log.WithField("path", c.Request.URL.Path).Debugf("session rejected: %v", err)
		}
		c.Next()
	}
}

// UserID returns the user resolved by Middleware, or "".
func UserID(c *gin.Context) string {
	return c.GetString(logging.ContextKeyUserID)
}
