package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smquiz/quiz-backend/internal/attempt"
	"github.com/smquiz/quiz-backend/internal/database"
	"github.com/smquiz/quiz-backend/internal/response"
)

// HealthHandler serves the liveness probe.
type HealthHandler struct {
	checker  *database.Checker
	registry *attempt.Registry
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(checker *database.Checker, registry *attempt.Registry) *HealthHandler {
	return &HealthHandler{checker: checker, registry: registry}
}

// Health godoc
// GET /health
// Answers 503 when Postgres or Redis cannot be reached.
func (h *HealthHandler) Health(c *gin.Context) {
	stores := h.checker.Check(c.Request.Context())

	status, code := "ok", http.StatusOK
	if !stores.OK() {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	response.Success(c, code, gin.H{
		"status":        status,
		"stores":        stores,
		"live_attempts": h.registry.Len(),
	})
}
