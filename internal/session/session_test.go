package session

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/multichat/chatproxy/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func newResolver() *Resolver {
	return NewResolver(config.SessionConfig{JWTSecret: testSecret})
}

func TestResolver_BearerToken(t *testing.T) {
	token, err := IssueToken(testSecret, "user-1", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/chat/openai", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	userID, err := newResolver().Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestResolver_CookieFormats(t *testing.T) {
	token, err := IssueToken(testSecret, "user-2", time.Hour)
	require.NoError(t, err)

	session := `{"access_token":"` + token + `","refresh_token":"r"}`
	tests := []struct {
		name  string
		value string
	}{
		{"bare jwt", token},
		{"json array", url.QueryEscape(`["` + token + `","refresh",null]`)},
		{"json object", url.QueryEscape(session)},
		{"base64 object", "base64-" + base64.RawURLEncoding.EncodeToString([]byte(session))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/chat/google", nil)
			req.AddCookie(&http.Cookie{Name: "sb-access-token", Value: tt.value})
			userID, errResolve := newResolver().Resolve(req)
			require.NoError(t, errResolve)
			assert.Equal(t, "user-2", userID)
		})
	}
}

func TestResolver_Rejections(t *testing.T) {
	expired, err := IssueToken(testSecret, "user-1", -time.Minute)
	require.NoError(t, err)
	wrongKey, err := IssueToken("another-secret", "user-1", time.Hour)
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   error
	}{
		{"missing", "", ErrNoSession},
		{"expired", "Bearer " + expired, ErrTokenExpired},
		{"wrong key", "Bearer " + wrongKey, ErrInvalidToken},
		{"garbage", "Bearer not-a-jwt", ErrInvalidToken},
		{"no subject", "Bearer " + noSubject, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/chat/openai", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			_, errResolve := newResolver().Resolve(req)
			assert.ErrorIs(t, errResolve, tt.want)
		})
	}
}

func TestResolver_IssuerAndNoneAlg(t *testing.T) {
	r := NewResolver(config.SessionConfig{JWTSecret: testSecret, Issuer: "https://auth.example"})
	token, err := IssueToken(testSecret, "user-1", time.Hour)
	require.NoError(t, err)
	_, err = r.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken, "issuer mismatch")

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = newResolver().Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolver_DevUser(t *testing.T) {
	r := NewResolver(config.SessionConfig{DevUserID: "local-dev"})
	userID, err := r.Resolve(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, "local-dev", userID)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := newResolver()
	token, err := IssueToken(testSecret, "user-9", time.Hour)
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(Middleware(func() *Resolver { return r }))
	engine.GET("/whoami", func(c *gin.Context) { c.String(http.StatusOK, UserID(c)) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	engine.ServeHTTP(w, req)
	assert.Equal(t, "user-9", w.Body.String())

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}
