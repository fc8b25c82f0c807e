package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt-engine/internal/middleware"
	"github.com/stemsi/exstem-attempt-engine/internal/model"
	"github.com/stemsi/exstem-attempt-engine/internal/response"
	"github.com/stemsi/exstem-attempt-engine/internal/service"
	"github.com/stemsi/exstem-attempt-engine/internal/validator"
	ws "github.com/stemsi/exstem-attempt-engine/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler serves the attempt stream: the same operations as the HTTP API
// over one socket.
type WSHandler struct {
	attempts  *service.AttemptService
	telemetry *middleware.RateLimiter
	log       zerolog.Logger
	upgrader  websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. telemetry is the limiter that also
// guards the HTTP telemetry route, so both paths share one budget per user.
func NewWSHandler(attempts *service.AttemptService, telemetry *middleware.RateLimiter, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attempts:  attempts,
		telemetry: telemetry,
		log:       log.With().Str("component", "ws_handler").Logger(),
		upgrader:  buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempts/:attempt_id/stream?token=
// Runs behind RequireWSAuth and RequireAttemptOwner. The first frame is the
// attempt status.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	attemptID, ok := middleware.GetAttemptID(c)
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	bucket := middleware.UserKey(claims.UserID())

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("attempt_id", attemptID.String()).Logger()
	wsLog.Info().Msg("Student connected")

	ctx := c.Request.Context()
	h.sendStatus(ctx, conn, attemptID)

	for {
		data, err := ws.ReadMessage(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			ws.WriteError(conn, string(response.ErrInvalidPayload), response.GetMessage(response.ErrInvalidPayload))
			continue
		}

		switch env.Action {
		case ws.ActionAnswer:
			h.handleAnswer(ctx, conn, attemptID, data)
		case ws.ActionFlag:
			h.handleFlag(ctx, conn, attemptID, data)
		case ws.ActionGoTo:
			h.handleGoTo(ctx, conn, attemptID, data)
		case ws.ActionTelemetry:
			h.handleTelemetry(ctx, conn, attemptID, bucket, data)
		case ws.ActionStatus:
			h.sendStatus(ctx, conn, attemptID)
		case ws.ActionSubmit:
			h.handleSubmit(ctx, conn, wsLog, attemptID)
		case ws.ActionPing:
			ws.WriteEvent(conn, ws.EventPong, nil)
		default:
			wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			ws.WriteError(conn, string(response.ErrInvalidPayload), "unknown action: "+string(env.Action))
		}
	}
}

// decode unmarshals and validates one frame, replying with an error frame
// when it does not pass.
func decode(conn *websocket.Conn, data []byte, dst any) bool {
	if err := json.Unmarshal(data, dst); err != nil {
		ws.WriteError(conn, string(response.ErrInvalidPayload), response.GetMessage(response.ErrInvalidPayload))
		return false
	}
	if fields := validator.Struct(dst); fields != nil {
		msg := response.GetMessage(response.ErrValidation)
		for field, m := range fields {
			msg = field + ": " + m
			break
		}
		ws.WriteError(conn, string(response.ErrValidation), msg)
		return false
	}
	return true
}

// writeEngineError reports an engine error using the same codes as the HTTP API.
func (h *WSHandler) writeEngineError(conn *websocket.Conn, attemptID uuid.UUID, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Stream operation failed")
	}
	ws.WriteError(conn, string(code), response.GetMessage(code))
}

func (h *WSHandler) sendStatus(ctx context.Context, conn *websocket.Conn, attemptID uuid.UUID) {
	v, err := h.attempts.Status(ctx, attemptID)
	if err != nil {
		h.writeEngineError(conn, attemptID, err)
		return
	}
	ws.WriteEvent(conn, ws.EventStatus, v)
}

func (h *WSHandler) handleAnswer(ctx context.Context, conn *websocket.Conn, attemptID uuid.UUID, data []byte) {
	var req ws.AnswerRequest
	if !decode(conn, data, &req) {
		return
	}

	_, err := h.attempts.RecordAnswer(ctx, attemptID, req.QuestionID, req.Value, req.Seq, req.TimeSpent)
	if errors.Is(err, service.ErrStaleWrite) {
		ws.WriteEvent(conn, ws.EventStale, ws.SavedResponse{QuestionID: req.QuestionID, Seq: req.Seq})
		return
	}
	if err != nil {
		h.writeEngineError(conn, attemptID, err)
		return
	}
	ws.WriteEvent(conn, ws.EventSaved, ws.SavedResponse{QuestionID: req.QuestionID, Seq: req.Seq, Accepted: true})
}

func (h *WSHandler) handleFlag(ctx context.Context, conn *websocket.Conn, attemptID uuid.UUID, data []byte) {
	var req ws.FlagRequest
	if !decode(conn, data, &req) {
		return
	}

	flagged, err := h.attempts.ToggleFlag(ctx, attemptID, req.QuestionID)
	if err != nil {
		h.writeEngineError(conn, attemptID, err)
		return
	}
	ws.WriteEvent(conn, ws.EventFlagged, ws.FlaggedResponse{QuestionID: req.QuestionID, Flagged: flagged})
}

func (h *WSHandler) handleGoTo(ctx context.Context, conn *websocket.Conn, attemptID uuid.UUID, data []byte) {
	var req ws.GoToRequest
	if !decode(conn, data, &req) {
		return
	}

	q, err := h.attempts.GoTo(ctx, attemptID, *req.Index)
	if err != nil {
		h.writeEngineError(conn, attemptID, err)
		return
	}
	ws.WriteEvent(conn, ws.EventQuestion, q)
}

func (h *WSHandler) handleTelemetry(ctx context.Context, conn *websocket.Conn, attemptID uuid.UUID, bucket string, data []byte) {
	if h.telemetry != nil && !h.telemetry.Allow(bucket) {
		ws.WriteError(conn, string(response.ErrRateLimitExceeded), response.GetMessage(response.ErrRateLimitExceeded))
		return
	}

	var req ws.TelemetryRequest
	if !decode(conn, data, &req) {
		return
	}

	ev := model.TelemetryEvent{
		Kind:    model.TelemetryKind(req.Kind),
		Payload: model.TelemetryPayload{Count: req.Count, DurationMs: req.DurationMs},
	}
	if req.ClientTs > 0 {
		ev.ClientTimestamp = time.UnixMilli(req.ClientTs).UTC()
	}

	profile, err := h.attempts.RecordTelemetry(ctx, attemptID, ev)
	if err != nil {
		h.writeEngineError(conn, attemptID, err)
		return
	}
	// Only the level is shown to the student; the score stays with proctors.
	ws.WriteEvent(conn, ws.EventRisk, gin.H{"level": profile.Level})
}

func (h *WSHandler) handleSubmit(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, attemptID uuid.UUID) {
	if _, err := h.attempts.Submit(ctx, attemptID, model.SubmitReasonUser); err != nil {
		h.writeEngineError(conn, attemptID, err)
		return
	}

	v, err := h.attempts.Status(ctx, attemptID)
	if err != nil {
		h.writeEngineError(conn, attemptID, err)
		return
	}
	out := SubmitResponse{Status: v}
	if res, err := h.attempts.Result(ctx, attemptID, false); err == nil {
		out.Result = res
	}

	wsLog.Info().Str("status", string(v.Status)).Msg("Attempt submitted over stream")
	ws.WriteEvent(conn, ws.EventGraded, out)
}
