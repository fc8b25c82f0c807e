package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt-engine/internal/config"
	"github.com/stemsi/exstem-attempt-engine/internal/model"
	"github.com/stemsi/exstem-attempt-engine/internal/service"
)

const (
	keepAliveInterval = 30 * time.Second
	snapshotTimeout   = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

var pingPayload = []byte(`{"type":"ping"}`)

// MonitorHandler streams engine events for one exam to proctors via SSE.
type MonitorHandler struct {
	rdb       *redis.Client
	exams     service.ExamProvider
	counts    StatusCounter
	keepAlive time.Duration
	log       zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler. counts may be nil.
func NewMonitorHandler(rdb *redis.Client, exams service.ExamProvider, counts StatusCounter, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rdb:       rdb,
		exams:     exams,
		counts:    counts,
		keepAlive: keepAliveInterval,
		log:       log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExamSSE godoc
// GET /api/v1/admin/exams/:exam_id/monitor
// Sends one snapshot, then forwards every engine event published for the exam.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	examID, ok := parseUUIDParam(c, "exam_id")
	if !ok {
		return
	}
	reqCtx := c.Request.Context()

	def, err := h.exams.GetExamDefinition(reqCtx, examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	// Subscribe before the snapshot so no event falls between the two.
	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.ExamMonitorChannel(examID.String()))
	defer pubsub.Close()
	if _, err := pubsub.Receive(reqCtx); err != nil {
		h.log.Error().Err(err).Str("exam_id", examID.String()).Msg("Failed to subscribe to monitor channel")
		fail(c, h.log, err)
		return
	}
	ch := pubsub.Channel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Status(http.StatusOK)

	h.sendSnapshot(c, reqCtx, def)

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	h.log.Info().Str("exam_id", examID.String()).Msg("Admin attached to live monitor SSE")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Admin disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Payloads are already MonitorEvent JSON; forward as-is.
			writeSSEData(c, []byte(msg.Payload))

		case <-keepAlive.C:
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

// sendSnapshot writes the first SSE event: exam header and archived counts.
func (h *MonitorHandler) sendSnapshot(c *gin.Context, ctx context.Context, def *model.ExamDefinition) {
	archived := map[model.AttemptStatus]int64{}
	if h.counts != nil {
		fetchCtx, cancel := context.WithTimeout(ctx, snapshotTimeout)
		defer cancel()
		if counts, err := h.counts.StatusCounts(fetchCtx, def.ID); err == nil {
			archived = counts
		} else {
			h.log.Warn().Err(err).Str("exam_id", def.ID.String()).Msg("Failed to count archived attempts for snapshot")
		}
	}

	c.SSEvent("message", gin.H{
		"type": "snapshot",
		"data": gin.H{
			"exam": gin.H{
				"id":               def.ID,
				"version":          def.Version,
				"title":            def.Title,
				"duration_seconds": def.DurationSeconds,
				"total_questions":  len(def.Questions),
			},
			"archived": archived,
		},
	})
	c.Writer.Flush()
}
