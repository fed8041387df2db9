package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/smquiz/quiz-backend/internal/config"
	"github.com/smquiz/quiz-backend/internal/model"
	"github.com/smquiz/quiz-backend/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

type MonitorHandler struct {
	rdb            *redis.Client
	monitorService *service.MonitorService
	log            zerolog.Logger
}

func NewMonitorHandler(rdb *redis.Client, monitorService *service.MonitorService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// monitorStudent is one row of the monitor table.
type monitorStudent struct {
	service.LiveAttempt
	PersistedAnswers    int64 `json:"persisted_answers"`
	PersistedViolations int64 `json:"persisted_violations"`
}

type monitorStats struct {
	TotalLive       int   `json:"total_live"`
	TotalInProgress int   `json:"total_in_progress"`
	TotalSubmitted  int64 `json:"total_submitted"`
	TotalViolations int64 `json:"total_violations"`
}

// buildMonitorRows merges the attempts held in memory with persisted counts.
// Persisted counts lag the live ones by up to one worker batch.
func buildMonitorRows(live []service.LiveAttempt, progress *service.ProgressSnapshot) ([]monitorStudent, monitorStats) {
	rows := make([]monitorStudent, 0, len(live))
	stats := monitorStats{TotalLive: len(live)}
	for _, a := range live {
		row := monitorStudent{LiveAttempt: a}
		if progress != nil {
			row.PersistedAnswers = progress.AnsweredCounts[a.AttemptID]
			row.PersistedViolations = progress.ViolationCounts[a.AttemptID]
		}
		if a.Phase == model.PhaseInProgress {
			stats.TotalInProgress++
		}
		rows = append(rows, row)
	}
	if progress != nil {
		stats.TotalSubmitted = progress.TotalSubmitted
		stats.TotalViolations = progress.TotalViolations
	}
	return rows, stats
}

// MonitorSubjectSSE godoc
// GET /api/v1/admin/subjects/:id/monitor
func (h *MonitorHandler) MonitorSubjectSSE(c *gin.Context) {
	subjectID, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	subject, err := h.monitorService.Subject(c.Request.Context(), subjectID)
	if err != nil {
		failWith(c, err)
		return
	}

	reqCtx := c.Request.Context()

	// 1. SSE headers
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Status(http.StatusOK)

	// 2. Initial snapshot
	h.sendSnapshot(c, reqCtx, subject)

	// 3. Subscribe to Redis Pub/Sub
	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.SubjectMonitorChannel(subjectID))
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	h.log.Info().Str("subject_id", subjectID.String()).Msg("Admin attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("subject_id", subjectID.String()).Msg("Admin disconnected from live monitor SSE")
			return

		case msg, open := <-ch:
			if !open {
				return
			}
			// Forward raw JSON directly, no deserialization needed
			writeSSEData(c, []byte(msg.Payload))

		case <-refreshTicker.C:
			h.sendRefresh(c, reqCtx, subjectID)

		case <-keepAliveTicker.C:
			writeSSEData(c, pingPayload)
		}
	}
}

func writeSSEData(c *gin.Context, payload []byte) {
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(payload)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

func (h *MonitorHandler) progress(parent context.Context, subjectID uuid.UUID) *service.ProgressSnapshot {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()

	progress, err := h.monitorService.GetProgress(ctx, subjectID)
	if err != nil {
		h.log.Warn().Err(err).Str("subject_id", subjectID.String()).Msg("Failed to fetch monitor progress")
		return nil
	}
	return progress
}

func (h *MonitorHandler) sendSnapshot(c *gin.Context, ctx context.Context, subject *model.Subject) {
	rows, stats := buildMonitorRows(
		h.monitorService.LiveAttempts(subject.ID),
		h.progress(ctx, subject.ID),
	)

	c.SSEvent("message", gin.H{
		"type": "snapshot",
		"data": gin.H{
			"subject":  subject,
			"stats":    stats,
			"students": rows,
		},
	})
	c.Writer.Flush()
}

func (h *MonitorHandler) sendRefresh(c *gin.Context, ctx context.Context, subjectID uuid.UUID) {
	live := h.monitorService.LiveAttempts(subjectID)
	progress := h.progress(ctx, subjectID)
	if progress == nil && len(live) == 0 {
		return
	}
	rows, stats := buildMonitorRows(live, progress)

	c.SSEvent("message", gin.H{
		"type":     "refresh",
		"stats":    stats,
		"students": rows,
	})
	c.Writer.Flush()
}
