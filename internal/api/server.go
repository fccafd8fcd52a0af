// Package api provides the HTTP server of the chat proxy: the gin engine,
// its middleware chain, route registration and hot reload of the runtime
// configuration.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/multichat/chatproxy/internal/api/middleware"
	"github.com/multichat/chatproxy/internal/config"
	"github.com/multichat/chatproxy/internal/logging"
	"github.com/multichat/chatproxy/internal/session"
	"github.com/multichat/chatproxy/internal/store"
	"github.com/multichat/chatproxy/sdk/api/handlers"
	"github.com/multichat/chatproxy/sdk/api/handlers/assistants"
	"github.com/multichat/chatproxy/sdk/api/handlers/chat"
	"github.com/multichat/chatproxy/sdk/api/handlers/paypal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

type serverOptionConfig struct {
	extraMiddleware    []gin.HandlerFunc
	engineConfigurator func(*gin.Engine)
	routerConfigurator func(*gin.Engine, *handlers.BaseAPIHandler, *config.Config)
}

// ServerOption customises HTTP server construction.
type ServerOption func(*serverOptionConfig)

// WithMiddleware appends additional Gin middleware during server construction.
func WithMiddleware(mw ...gin.HandlerFunc) ServerOption {
	return func(cfg *serverOptionConfig) {
		cfg.extraMiddleware = append(cfg.extraMiddleware, mw...)
	}
}

// WithEngineConfigurator allows callers to mutate the Gin engine prior to middleware setup.
func WithEngineConfigurator(fn func(*gin.Engine)) ServerOption {
	return func(cfg *serverOptionConfig) {
		cfg.engineConfigurator = fn
	}
}

// WithRouterConfigurator appends a callback after default routes are registered.
func WithRouterConfigurator(fn func(*gin.Engine, *handlers.BaseAPIHandler, *config.Config)) ServerOption {
	return func(cfg *serverOptionConfig) {
		cfg.routerConfigurator = fn
	}
}

// Server represents the main API server.
// It encapsulates the Gin engine, HTTP server, handlers, and configuration.
type Server struct {
	// engine is the Gin web framework engine instance.
	engine *gin.Engine

	// server is the underlying HTTP server.
	server *http.Server

	// handlers holds the shared handler state and the runtime snapshot.
	handlers *handlers.BaseAPIHandler

	// cfg holds the current configuration; readers use getConfig.
	cfg atomic.Pointer[config.Config]

	resolver atomic.Pointer[session.Resolver]

	connections *middleware.ConnectionTracker
}

// NewServer creates and initializes a new API server instance.
// It sets up the Gin engine, middleware, routes, and handlers.
func NewServer(cfg *config.Config, profiles store.ProfileStore, opts ...ServerOption) *Server {
	optionState := &serverOptionConfig{}
	for i := range opts {
		opts[i](optionState)
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if optionState.engineConfigurator != nil {
		optionState.engineConfigurator(engine)
	}

	middleware.SetMetricsEnabled(cfg.MetricsEnabled())
	middleware.RegisterMetrics()

	s := &Server{
		engine:      engine,
		handlers:    handlers.NewBaseAPIHandlers(handlers.NewRuntime(context.Background(), cfg, profiles), profiles),
		connections: middleware.ActiveConnections,
	}
	s.cfg.Store(cfg)
	s.resolver.Store(session.NewResolver(cfg.Session))

	engine.Use(logging.GinLogrusLogger())
	engine.Use(logging.GinLogrusRecovery())
	engine.Use(middleware.ConnectionTrackerMiddleware(s.connections))
	engine.Use(middleware.PrometheusMiddleware())
	for _, mw := range optionState.extraMiddleware {
		engine.Use(mw)
	}
	engine.Use(corsMiddleware(s.getConfig))
	engine.Use(session.Middleware(s.resolver.Load))
	engine.Use(decompressionMiddleware(s.getConfig))

	s.setupRoutes()
	if optionState.routerConfigurator != nil {
		optionState.routerConfigurator(engine, s.handlers, cfg)
	}

	var handler http.Handler = engine
	if cfg.HTTP2Cleartext && !cfg.TLS.Enable {
		handler = h2c.NewHandler(engine, &http2.Server{})
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 30 * time.Second,
	}
	return s
}

// setupRoutes configures the API routes for the server.
func (s *Server) setupRoutes() {
	chatHandlers := chat.NewChatAPIHandler(s.handlers)
	paypalHandlers := paypal.NewPayPalAPIHandler(s.handlers)
	assistantsHandlers := assistants.NewAssistantsAPIHandler(s.handlers)

	chatGroup := s.engine.Group("/chat")
	{
		for _, provider := range []string{
			config.ProviderOpenAI,
			config.ProviderGoogle,
			config.ProviderGroq,
			config.ProviderMistral,
			config.ProviderPerplexity,
		} {
			chatGroup.POST("/"+provider, chatHandlers.Provider(provider))
		}
		chatGroup.POST("/custom/:name", chatHandlers.Custom)
		chatGroup.POST("/image", chatHandlers.Image)
		chatGroup.GET("/models", chatHandlers.Models)
	}

	s.engine.GET("/assistants/openai", assistantsHandlers.List)

	paypalGroup := s.engine.Group("/paypal")
	{
		paypalGroup.POST("/approve", paypalHandlers.Approve)
		paypalGroup.POST("/check", paypalHandlers.Check)
		paypalGroup.POST("/webhook", paypalHandlers.Webhook)
	}

	s.engine.GET("/healthz", func(c *gin.Context) {
		logging.SkipGinRequestLogging(c)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": s.connections.Count()})
	})
	s.engine.GET("/metrics", func(c *gin.Context) {
		logging.SkipGinRequestLogging(c)
		middleware.MetricsHandler()(c)
	})
}

// Handler exposes the root handler, e.g. for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins listening for and serving HTTP or HTTPS requests.
// It's a blocking call and will only return on an unrecoverable error.
func (s *Server) Start() error {
	if s == nil || s.server == nil {
		return fmt.Errorf("failed to start HTTP server: server not initialized")
	}

	cfg := s.getConfig()
	if cfg != nil && cfg.TLS.Enable {
		cert := strings.TrimSpace(cfg.TLS.Cert)
		key := strings.TrimSpace(cfg.TLS.Key)
		if cert == "" || key == "" {
			return fmt.Errorf("failed to start HTTPS server: tls.cert or tls.key is empty")
		}
		log.Infof("API server listening on %s (TLS)", s.server.Addr)
		if errServeTLS := s.server.ListenAndServeTLS(cert, key); errServeTLS != nil && !errors.Is(errServeTLS, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTPS server: %v", errServeTLS)
		}
		return nil
	}

	log.Infof("API server listening on %s", s.server.Addr)
	if errServe := s.server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %v", errServe)
	}
	return nil
}

// Stop gracefully shuts down the API server. Streams still running when
// ctx expires are cut off.
func (s *Server) Stop(ctx context.Context) error {
	log.Debug("Stopping API server...")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %v", err)
	}
	log.Debug("API server stopped")
	return nil
}

// UpdateClients applies a reloaded configuration. Listener settings (host,
// port, TLS, h2c) need a restart; everything else takes effect for the next
// request.
func (s *Server) UpdateClients(cfg *config.Config) {
	if cfg == nil {
		return
	}
	oldCfg := s.getConfig()
	if oldCfg != nil && (oldCfg.Host != cfg.Host || oldCfg.Port != cfg.Port || oldCfg.TLS != cfg.TLS || oldCfg.HTTP2Cleartext != cfg.HTTP2Cleartext) {
		log.Warn("listener settings changed; restart the server to apply them")
	}
	if oldCfg == nil || oldCfg.LogLevel != cfg.LogLevel || oldCfg.Debug != cfg.Debug {
		level := cfg.LogLevel
		if cfg.Debug && level == "" {
			level = "debug"
		}
		logging.SetLogLevel(level)
	}
	if oldCfg == nil || oldCfg.LoggingToFile != cfg.LoggingToFile || oldCfg.LogDir != cfg.LogDir {
		if err := logging.ConfigureLogOutput(cfg.LoggingToFile, cfg.LogDir); err != nil {
			log.Errorf("failed to reconfigure log output: %v", err)
		}
	}

	middleware.SetMetricsEnabled(cfg.MetricsEnabled())
	s.resolver.Store(session.NewResolver(cfg.Session))
	s.handlers.UpdateClients(handlers.NewRuntime(context.Background(), cfg, s.handlers.Profiles))
	s.cfg.Store(cfg)

	log.Infof("configuration reloaded: %d custom backends, %d free models",
		len(cfg.OpenAICompatibility), len(cfg.FreeModelSet()))
}

func (s *Server) getConfig() *config.Config {
	if s == nil {
		return nil
	}
	return s.cfg.Load()
}

// corsMiddleware adds CORS headers for allowed browser origins. With no
// configured origins every origin is allowed without credentials.
func corsMiddleware(getCfg func() *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var allowOrigins []string
		if cfg := getCfg(); cfg != nil {
			allowOrigins = cfg.CORS.AllowOrigins
		}

		origin := strings.TrimSpace(c.GetHeader("Origin"))
		allowedOrigin := ""
		if origin != "" {
			switch {
			case len(allowOrigins) == 0:
				allowedOrigin = "*"
			case originAllowed(allowOrigins, origin):
				allowedOrigin = origin
			}
		}

		if allowedOrigin != "" {
			c.Header("Access-Control-Allow-Origin", allowedOrigin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, Content-Encoding, Accept")
			if allowedOrigin != "*" {
				c.Header("Access-Control-Allow-Credentials", "true")
				c.Header("Vary", "Origin")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func originAllowed(allowOrigins []string, origin string) bool {
	if origin == "" || len(allowOrigins) == 0 {
		return false
	}
	for _, allowed := range allowOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "" {
			continue
		}
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// decompressionMiddleware consults the live configuration so the toggle
// can be flipped by a reload.
func decompressionMiddleware(getCfg func() *config.Config) gin.HandlerFunc {
	decompress := middleware.RequestDecompressionMiddleware()
	return func(c *gin.Context) {
		if getCfg().RequestDecompressionEnabled() {
			decompress(c)
			return
		}
		c.Next()
	}
}
