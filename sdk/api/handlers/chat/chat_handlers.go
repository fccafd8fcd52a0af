// Package chat provides the /chat endpoints. Every route runs the same
// pipeline; only the adapter differs.
package chat

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/multichat/chatproxy/internal/registry"
	"github.com/multichat/chatproxy/internal/runtime/executor"
	"github.com/multichat/chatproxy/sdk/api/handlers"
)

// ChatAPIHandler serves the provider chat routes and the image route.
type ChatAPIHandler struct {
	*handlers.BaseAPIHandler
}

// NewChatAPIHandler wraps the shared handler state.
func NewChatAPIHandler(apiHandlers *handlers.BaseAPIHandler) *ChatAPIHandler {
	return &ChatAPIHandler{BaseAPIHandler: apiHandlers}
}

// Provider returns the handler for /chat/<provider>. The adapter is looked
// up per request so reloads take effect.
func (h *ChatAPIHandler) Provider(provider string) gin.HandlerFunc {
	return func(c *gin.Context) {
		rt := h.Runtime()
		exec, ok := rt.Executors.Chat(provider)
		if !ok {
			c.AbortWithStatusJSON(http.StatusNotFound, handlers.ErrorResponse{Message: "unknown chat provider " + provider})
			return
		}
		h.ExecuteChat(c, rt, exec)
	}
}

// Custom handles /chat/custom/:name for configured OpenAI-compatible backends.
func (h *ChatAPIHandler) Custom(c *gin.Context) {
	rt := h.Runtime()
	name := strings.ToLower(strings.TrimSpace(c.Param("name")))
	exec, ok := rt.Executors.Custom(name)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, handlers.ErrorResponse{Message: "unknown chat backend " + name})
		return
	}
	h.ExecuteChat(c, rt, exec)
}

// Image handles /chat/image.
func (h *ChatAPIHandler) Image(c *gin.Context) {
	h.ExecuteImage(c, h.Runtime())
}

// Models handles GET /chat/models, listing every routable model.
func (h *ChatAPIHandler) Models(c *gin.Context) {
	rt := h.Runtime()
	models := rt.Executors.Models().GetAvailableModels()
	c.JSON(http.StatusOK, gin.H{
		"object":  "list",
		"data":    models,
		"free":    freeModels(rt, models),
		"custom":  rt.Executors.CustomNames(),
		"routing": routeFor(models),
	})
}

func freeModels(rt *handlers.Runtime, models []*registry.ModelInfo) []string {
	out := []string{}
	for _, m := range models {
		if rt.Gate.IsFreeRequest(m.Provider, m.ID) {
			out = append(out, m.ID)
		}
	}
	return out
}

// routeFor maps each model to the path that serves it.
func routeFor(models []*registry.ModelInfo) map[string]string {
	routes := make(map[string]string, len(models))
	for _, m := range models {
		switch {
		case m.Provider == registry.ProviderImage:
			routes[m.ID] = "/chat/image"
		case strings.HasPrefix(m.Provider, executor.CustomPrefix):
			routes[m.ID] = "/chat/custom/" + strings.TrimPrefix(m.Provider, executor.CustomPrefix)
		default:
			routes[m.ID] = "/chat/" + m.Provider
		}
	}
	return routes
}
