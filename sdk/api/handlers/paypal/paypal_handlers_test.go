package paypal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/multichat/chatproxy/internal/billing"
	"github.com/multichat/chatproxy/internal/config"
	"github.com/multichat/chatproxy/internal/session"
	"github.com/multichat/chatproxy/internal/store"
	"github.com/multichat/chatproxy/sdk/api/handlers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "paypal-handler-test-secret-at-least-32-bytes"

func init() {
	gin.SetMode(gin.TestMode)
}

type stubVerifier struct {
	err   error
	calls int
}

func (v *stubVerifier) Verify(context.Context, http.Header, []byte) error {
	v.calls++
	return v.err
}

func setup(t *testing.T, verifier billing.Verifier) (*gin.Engine, store.ProfileStore) {
	t.Helper()
	profiles, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "profiles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = profiles.Close() })

	cfg := &config.Config{}
	cfg.Session.JWTSecret = testSecret
	rt := handlers.NewRuntime(context.Background(), cfg, profiles)
	rt.Verifier = verifier
	h := NewPayPalAPIHandler(handlers.NewBaseAPIHandlers(rt, profiles))
	resolver := session.NewResolver(cfg.Session)

	r := gin.New()
	r.Use(session.Middleware(func() *session.Resolver { return resolver }))
	r.POST("/paypal/approve", h.Approve)
	r.POST("/paypal/check", h.Check)
	r.POST("/paypal/webhook", h.Webhook)
	return r, profiles
}

func do(t *testing.T, r *gin.Engine, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if userID != "" {
		token, err := session.IssueToken(testSecret, userID, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestApproveAndCheck(t *testing.T) {
	r, profiles := setup(t, nil)
	ctx := context.Background()
	require.NoError(t, profiles.CreateProfile(ctx, &store.Profile{ID: "p-1", UserID: "u-1", Tier: store.TierNone}))
	require.NoError(t, profiles.CreateProfile(ctx, &store.Profile{ID: "p-2", UserID: "u-2", Tier: store.TierActive}))

	w := do(t, r, "/paypal/check", "u-1", "")
	assert.JSONEq(t, `{"subscribe":0}`, w.Body.String())

	w = do(t, r, "/paypal/approve", "u-1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"subscribe":1}`, w.Body.String())

	w = do(t, r, "/paypal/approve", "u-1", "")
	assert.JSONEq(t, `{"subscribe":1}`, w.Body.String())

	w = do(t, r, "/paypal/approve", "u-2", "")
	assert.JSONEq(t, `{"subscribe":2}`, w.Body.String())

	w = do(t, r, "/paypal/check", "u-1", "")
	assert.JSONEq(t, `{"subscribe":1}`, w.Body.String())
}

func TestApprove_Failures(t *testing.T) {
	r, _ := setup(t, nil)

	w := do(t, r, "/paypal/approve", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, r, "/paypal/approve", "ghost", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "message")

	w = do(t, r, "/paypal/check", "ghost", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWebhook(t *testing.T) {
	r, profiles := setup(t, nil)
	ctx := context.Background()
	require.NoError(t, profiles.CreateProfile(ctx, &store.Profile{ID: "p-9", UserID: "u-9", Tier: store.TierPending}))

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantBody string
		wantTier store.Tier
	}{
		{"completed activates", `{"id":"WH-1","event_type":"PAYMENT.SALE.COMPLETED","resource":{"custom":"p-9"}}`, http.StatusOK, `{"success":true}`, store.TierActive},
		{"unknown event acknowledged", `{"id":"WH-2","event_type":"BILLING.PLAN.CREATED","resource":{}}`, http.StatusOK, `{"success":true}`, store.TierActive},
		{"completed without custom id", `{"id":"WH-3","event_type":"PAYMENT.SALE.COMPLETED","resource":{}}`, http.StatusOK, `{"error":{"message":"custom id does not exist"}}`, store.TierActive},
		{"unknown buyer", `{"id":"WH-4","event_type":"PAYMENT.SALE.REFUNDED","resource":{"custom":"nobody"}}`, http.StatusOK, `{"error":{"message":"failed to get buyer info"}}`, store.TierActive},
		{"refund drops tier", `{"id":"WH-5","event_type":"PAYMENT.SALE.REFUNDED","resource":{"custom":"p-9"}}`, http.StatusOK, `{"success":true}`, store.TierNone},
		{"malformed body", `{"id":`, http.StatusBadRequest, `{"error":{"message":"webhook body is not valid JSON"}}`, store.TierNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, "/paypal/webhook", "", tt.body)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
			p, err := profiles.GetProfile(ctx, "u-9")
			require.NoError(t, err)
			assert.Equal(t, tt.wantTier, p.Tier)
		})
	}
}

func TestWebhook_Verification(t *testing.T) {
	body := `{"id":"WH-1","event_type":"PAYMENT.SALE.COMPLETED","resource":{"custom":"p-1"}}`

	t.Run("rejected signature leaves tier", func(t *testing.T) {
		v := &stubVerifier{err: billing.ErrInvalidSignature}
		r, profiles := setup(t, v)
		require.NoError(t, profiles.CreateProfile(context.Background(), &store.Profile{ID: "p-1", UserID: "u-1"}))

		w := do(t, r, "/paypal/webhook", "", body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, 1, v.calls)
		p, err := profiles.GetProfile(context.Background(), "u-1")
		require.NoError(t, err)
		assert.Equal(t, store.TierNone, p.Tier)
	})

	t.Run("verification unavailable", func(t *testing.T) {
		r, _ := setup(t, &stubVerifier{err: errors.New("paypal verify: dial tcp: timeout")})
		w := do(t, r, "/paypal/webhook", "", body)
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("verified event applied", func(t *testing.T) {
		v := &stubVerifier{}
		r, profiles := setup(t, v)
		require.NoError(t, profiles.CreateProfile(context.Background(), &store.Profile{ID: "p-1", UserID: "u-1"}))

		w := do(t, r, "/paypal/webhook", "", body)
		assert.Equal(t, http.StatusOK, w.Code)
		p, err := profiles.GetProfile(context.Background(), "u-1")
		require.NoError(t, err)
		assert.Equal(t, store.TierActive, p.Tier)
	})
}
