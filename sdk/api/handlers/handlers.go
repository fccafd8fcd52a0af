// Package handlers provides the request pipeline shared by every chat proxy
// endpoint: body parsing, session and entitlement checks, credential
// resolution, stream relay and error normalization.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/multichat/chatproxy/internal/api/middleware"
	"github.com/multichat/chatproxy/internal/billing"
	"github.com/multichat/chatproxy/internal/config"
	"github.com/multichat/chatproxy/internal/entitlement"
	apperrors "github.com/multichat/chatproxy/internal/errors"
	"github.com/multichat/chatproxy/internal/imagestore"
	"github.com/multichat/chatproxy/internal/logging"
	"github.com/multichat/chatproxy/internal/runtime/executor"
	"github.com/multichat/chatproxy/internal/session"
	"github.com/multichat/chatproxy/internal/store"
	log "github.com/sirupsen/logrus"
)

// ErrorResponse is the JSON body of every failed chat, assistants and
// approval request.
type ErrorResponse struct {
	Message string `json:"message"`
}

// Runtime is everything a handler derives from one configuration snapshot.
// A new Runtime is built on every reload and swapped in atomically; requests
// already in flight keep the one they started with.
type Runtime struct {
	Cfg       *config.Config
	Executors *executor.Registry
	Gate      *entitlement.Gate
	// Rehoster is nil when image re-hosting is disabled.
	Rehoster *imagestore.Rehoster
	// Verifier is nil when webhook verification is disabled.
	Verifier billing.Verifier
}

// NewRuntime builds the adapters and the gate for cfg. Optional
// integrations that fail to initialize are logged and left disabled.
func NewRuntime(ctx context.Context, cfg *config.Config, profiles store.ProfileStore) *Runtime {
	if cfg == nil {
		cfg = &config.Config{}
	}
	rt := &Runtime{
		Cfg:       cfg,
		Executors: executor.NewRegistry(cfg),
		Gate:      entitlement.NewGate(profiles, cfg.FreeModelSet()),
	}
	rehoster, err := imagestore.New(cfg.ImageStore)
	if err != nil {
		log.Warnf("image re-hosting disabled: %v", err)
	} else {
		rt.Rehoster = rehoster
	}
	if v := billing.NewPayPalVerifier(ctx, cfg.PayPal); v != nil {
		rt.Verifier = v
	}
	return rt
}

// BaseAPIHandler holds the state shared by the endpoint handlers.
type BaseAPIHandler struct {
	// Profiles is the profile store; it lives for the whole process.
	Profiles store.ProfileStore

	runtime atomic.Pointer[Runtime]
}

// NewBaseAPIHandlers creates the shared handler state.
func NewBaseAPIHandlers(rt *Runtime, profiles store.ProfileStore) *BaseAPIHandler {
	h := &BaseAPIHandler{Profiles: profiles}
	h.runtime.Store(rt)
	return h
}

// UpdateClients swaps in the runtime built from a reloaded configuration.
func (h *BaseAPIHandler) UpdateClients(rt *Runtime) {
	if rt != nil {
		h.runtime.Store(rt)
	}
}

// Runtime returns the current snapshot.
func (h *BaseAPIHandler) Runtime() *Runtime {
	return h.runtime.Load()
}

// ChatSettings is the chatSettings object of a chat request.
type ChatSettings struct {
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`
	ImageSize   string   `json:"imageSize,omitempty"`
	MaxTokens   *int     `json:"maxTokens,omitempty"`
}

// ChatRequestBody is the body accepted by every /chat route.
type ChatRequestBody struct {
	ChatSettings ChatSettings      `json:"chatSettings"`
	Messages     []json.RawMessage `json:"messages"`
}

// ParseChatRequest reads the request body into the canonical request.
func ParseChatRequest(c *gin.Context) (executor.Request, error) {
	raw, err := c.GetRawData()
	if err != nil {
		return executor.Request{}, apperrors.InvalidRequest("failed to read request body", err)
	}
	var body ChatRequestBody
	if err = json.Unmarshal(raw, &body); err != nil {
		return executor.Request{}, apperrors.InvalidRequest("request body must be a JSON object with chatSettings and messages", err)
	}
	model := strings.TrimSpace(body.ChatSettings.Model)
	if model == "" {
		return executor.Request{}, apperrors.InvalidRequest("chatSettings.model is required", nil)
	}
	if body.ChatSettings.MaxTokens != nil && *body.ChatSettings.MaxTokens < 0 {
		return executor.Request{}, apperrors.InvalidRequest("chatSettings.maxTokens must not be negative", nil)
	}
	return executor.Request{
		Model:    model,
		Messages: body.Messages,
		Settings: executor.Settings{
			Temperature: body.ChatSettings.Temperature,
			ImageSize:   strings.TrimSpace(body.ChatSettings.ImageSize),
			MaxTokens:   body.ChatSettings.MaxTokens,
		},
	}, nil
}

// GetContextWithCancel derives the context for the upstream call from the
// client's request, bounded by the configured upstream timeout.
func (h *BaseAPIHandler) GetContextWithCancel(c *gin.Context, rt *Runtime) (context.Context, context.CancelFunc) {
	ctx := c.Request.Context()
	if rt != nil && rt.Cfg != nil {
		if secs := rt.Cfg.GetUpstreamTimeoutSeconds(); secs > 0 {
			return context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		}
	}
	return context.WithCancel(ctx)
}

// Authorize resolves the caller's profile and applies the entitlement
// policy for model served by the adapter identified by adapter.
func (h *BaseAPIHandler) Authorize(c *gin.Context, rt *Runtime, adapter, model string) (*store.Profile, entitlement.Decision, error) {
	profile, decision, err := rt.Gate.Check(c.Request.Context(), session.UserID(c), adapter, model)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.StatusCode() == http.StatusForbidden {
			middleware.RecordEntitlementDenial(appErr.Code)
		}
		return nil, entitlement.Decision{}, err
	}
	return profile, decision, nil
}

// Commit applies the decision's quota debit.
func (h *BaseAPIHandler) Commit(ctx context.Context, rt *Runtime, d entitlement.Decision) error {
	if err := rt.Gate.Commit(ctx, d); err != nil {
		return err
	}
	if d.Charge {
		middleware.RecordFreeQuestionDebit()
	}
	return nil
}

// CredentialFor returns the key for an adapter: the server's own key when
// configured, else the caller's profile key. An empty result makes the
// adapter fail with a missing-credential error.
func (rt *Runtime) CredentialFor(identifier string, profile *store.Profile) string {
	return ResolveCredential(rt.Executors.Credential(identifier), profile)
}

// ResolveCredential applies the server-then-profile order to cred.
func ResolveCredential(cred executor.Credential, profile *store.Profile) string {
	if key := strings.TrimSpace(cred.Server); key != "" {
		return key
	}
	return profile.APIKey(cred.ProfileKey)
}

// SetRequestLabels records provider and model for logging and metrics.
func SetRequestLabels(c *gin.Context, provider, model string) {
	c.Set(logging.ContextKeyProvider, provider)
	c.Set(logging.ContextKeyModel, model)
}

// WriteErrorResponse normalizes err for provider and writes it as
// {"message": ...} with the normalized status. It must only be called
// before any body byte was written.
func (h *BaseAPIHandler) WriteErrorResponse(c *gin.Context, provider string, err error) {
	appErr := apperrors.Normalize(provider, err)
	if appErr == nil {
		appErr = apperrors.New(http.StatusInternalServerError, apperrors.CodeUpstream, "An unexpected error occurred", nil)
	}
	status := appErr.StatusCode()
	fields := log.Fields{
		"request_id": c.GetString(logging.ContextKeyRequestID),
		"provider":   provider,
		"code":       appErr.Code,
		"status":     status,
	}
	if status >= http.StatusInternalServerError {
		log.WithFields(fields).Warnf("request failed: %v", appErr)
	} else {
		log.WithFields(fields).Debugf("request refused: %s", appErr.Message)
	}
	if appErr.Code != apperrors.CodeInvalidRequest {
		middleware.RecordProviderError(c.GetString(logging.ContextKeyProvider), appErr.Code)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Message: appErr.Message})
}
