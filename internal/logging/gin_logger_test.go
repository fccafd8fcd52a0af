package logging

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevLevel := log.StandardLogger().Out, log.GetLevel()
	log.SetOutput(&buf)
	log.SetLevel(log.DebugLevel)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetLevel(prevLevel)
	})
	return &buf
}

func TestGinLogrusLogger_RequestIDAndFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogs(t)

	r := gin.New()
	r.Use(GinLogrusLogger())
	r.GET("/chat", func(c *gin.Context) {
		c.Set(ContextKeyProvider, "openai")
		c.Set(ContextKeyModel, "gpt-4o")
		c.String(http.StatusForbidden, "nope")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/chat?key=secret", nil)
	req.Header.Set("X-Request-Id", "req-123")
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get("X-Request-Id"))
	out := buf.String()
	assert.Contains(t, out, "provider=openai")
	assert.Contains(t, out, "model=gpt-4o")
	assert.Contains(t, out, "level=warning")
	assert.NotContains(t, out, "secret")
}

func TestGinLogrusLogger_GeneratesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	captureLogs(t)

	r := gin.New()
	r.Use(GinLogrusLogger())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestGinLogrusLogger_Skip(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogs(t)

	r := gin.New()
	r.Use(GinLogrusLogger())
	r.GET("/metrics", func(c *gin.Context) {
		SkipGinRequestLogging(c)
		c.Status(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Empty(t, buf.String())
}

func TestGinLogrusRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	captureLogs(t)

	r := gin.New()
	r.Use(GinLogrusRecovery())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })
	r.GET("/abort", func(c *gin.Context) { panic(http.ErrAbortHandler) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/abort", nil))
	})
}
