package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/multichat/chatproxy/internal/api/middleware"
	"github.com/multichat/chatproxy/internal/config"
	"github.com/multichat/chatproxy/internal/store"
	"github.com/multichat/chatproxy/sdk/api/handlers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newTestServer(t *testing.T, cfg *config.Config, opts ...ServerOption) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if cfg.Session.JWTSecret == "" {
		cfg.Session.JWTSecret = "server-test-secret-at-least-32-bytes!"
	}
	profiles, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "profiles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = profiles.Close() })

	enabled := middleware.IsMetricsEnabled()
	t.Cleanup(func() { middleware.SetMetricsEnabled(enabled) })
	return NewServer(cfg, profiles, opts...)
}

func serve(s *Server, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	s := newTestServer(t, &config.Config{})
	rec := serve(s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", gjson.Get(rec.Body.String(), "status").String())
}

func TestServer_CORS(t *testing.T) {
	tests := []struct {
		name       string
		allow      []string
		origin     string
		wantOrigin string
		wantCreds  string
	}{
		{"any origin when unconfigured", nil, "https://app.example", "*", ""},
		{"listed origin echoed", []string{"https://app.example"}, "https://app.example", "https://app.example", "true"},
		{"unlisted origin rejected", []string{"https://app.example"}, "https://evil.example", "", ""},
		{"no origin header", []string{"https://app.example"}, "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.CORS.AllowOrigins = tt.allow
			s := newTestServer(t, cfg)

			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			rec := serve(s, http.MethodOptions, "/chat/openai", header)
			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCreds, rec.Header().Get("Access-Control-Allow-Credentials"))
		})
	}
}

func TestServer_MetricsToggle(t *testing.T) {
	disabled := false
	cfg := &config.Config{}
	cfg.Metrics.Enabled = &disabled
	s := newTestServer(t, cfg)
	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/metrics", nil).Code)

	enabled := true
	next := &config.Config{}
	next.Session = cfg.Session
	next.Metrics.Enabled = &enabled
	s.UpdateClients(next)
	rec := serve(s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# HELP")
}

func TestServer_UnknownRoute(t *testing.T) {
	s := newTestServer(t, &config.Config{})
	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodPost, "/chat/unknown-provider", nil).Code)
	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodPost, "/chat/custom/missing", nil).Code)
}

func TestServer_UpdateClientsSwapsRuntime(t *testing.T) {
	cfg := &config.Config{}
	s := newTestServer(t, cfg)

	rec := serve(s, http.MethodGet, "/chat/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, config.DefaultFreeModels, toStrings(gjson.Get(rec.Body.String(), "free").Array()))
	assert.Empty(t, gjson.Get(rec.Body.String(), "custom").Array())

	next := &config.Config{}
	next.Session = cfg.Session
	next.FreeModels = []string{"gpt-4o-mini"}
	next.OpenAICompatibility = []config.OpenAICompatibility{
		{Name: "local", BaseURL: "http://127.0.0.1:1", Models: []string{"llama-local"}},
	}
	s.UpdateClients(next)

	rec = serve(s, http.MethodGet, "/chat/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, []string{"gpt-4o-mini"}, toStrings(gjson.Get(body, "free").Array()))
	assert.Equal(t, []string{"local"}, toStrings(gjson.Get(body, "custom").Array()))
	assert.Equal(t, "/chat/custom/local", gjson.Get(body, `routing.llama-local`).String())
	assert.Same(t, next, s.getConfig())
}

func TestServer_UpdateClientsIgnoresNil(t *testing.T) {
	cfg := &config.Config{}
	s := newTestServer(t, cfg)
	s.UpdateClients(nil)
	assert.Same(t, cfg, s.getConfig())
}

func TestServer_Options(t *testing.T) {
	var configured, routed bool
	s := newTestServer(t, &config.Config{},
		WithEngineConfigurator(func(*gin.Engine) { configured = true }),
		WithMiddleware(func(c *gin.Context) {
			c.Header("X-Test", "1")
			c.Next()
		}),
		WithRouterConfigurator(func(e *gin.Engine, h *handlers.BaseAPIHandler, _ *config.Config) {
			routed = true
			e.GET("/extra", func(c *gin.Context) { c.String(http.StatusOK, "extra") })
		}),
	)
	assert.True(t, configured)
	assert.True(t, routed)

	rec := serve(s, http.MethodGet, "/extra", nil)
	assert.Equal(t, "extra", rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get("X-Test"))
}

func TestServer_H2CWrapsEngine(t *testing.T) {
	cfg := &config.Config{HTTP2Cleartext: true}
	s := newTestServer(t, cfg)
	_, isEngine := s.Handler().(*gin.Engine)
	assert.False(t, isEngine)

	plain := newTestServer(t, &config.Config{})
	_, isEngine = plain.Handler().(*gin.Engine)
	assert.True(t, isEngine)
}

func toStrings(results []gjson.Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.String())
	}
	return out
}
