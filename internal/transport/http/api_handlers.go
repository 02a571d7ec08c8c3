package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/lobbychat/internal/core"
	"github.com/vovakirdan/lobbychat/internal/store"
)

// APIHandlers provides HTTP handlers for REST API endpoints.
type APIHandlers struct {
	hub   *core.Hub
	store store.MessageStore
	log   *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(hub *core.Hub, st store.MessageStore, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		hub:   hub,
		store: st,
		log:   logger,
	}
}

// MessageResponse is the body of simple acknowledgements.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse reports liveness and connected clients.
type HealthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

// HistoryEntry is a stored chat message in API responses.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Health handles GET /health.
func (h *APIHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Clients: h.hub.Stats().Clients})
}

// Hello handles GET /api/hello.
func (h *APIHandlers) Hello(c *gin.Context) {
	c.JSON(http.StatusOK, MessageResponse{Message: "Hello, your API is live!"})
}

// Clear handles DELETE /api/clear.
func (h *APIHandlers) Clear(c *gin.Context) {
	if err := h.hub.Clear(c.Request.Context()); err != nil {
		h.log.Error().Err(err).Msg("failed to clear chat")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to clear chat"})
		return
	}

	h.log.Info().Str("remote_addr", c.ClientIP()).Msg("chat cleared")
	c.JSON(http.StatusOK, MessageResponse{Message: "Chat cleared"})
}

// ListMessages handles GET /api/messages?limit=N.
func (h *APIHandlers) ListMessages(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	messages, err := h.store.ListMessages(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Int("limit", limit).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, lo.Map(messages, func(m *store.Message, _ int) HistoryEntry {
		return HistoryEntry{
			ID:        m.ID,
			Sender:    m.Sender,
			Content:   m.Content,
			Timestamp: m.CreatedAt,
		}
	}))
}
