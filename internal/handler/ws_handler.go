package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/middleware"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/proctor"
	"github.com/invigilo/invigilo-backend/internal/service"
	ws "github.com/invigilo/invigilo-backend/internal/websocket"
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

// WSHandler handles the per-attempt proctoring stream: autosave traffic,
// secure-mode transitions, and submission.
type WSHandler struct {
	rdb            *redis.Client
	attemptService *service.AttemptService
	cfg            *config.Config
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(rdb *redis.Client, attemptService *service.AttemptService, cfg *config.Config, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		rdb:            rdb,
		attemptService: attemptService,
		cfg:            cfg,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(cfg.AllowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/student/attempts/:attempt_id/stream
// Upgrades to WebSocket for autosave and proctoring for one attempt. One
// proctor monitor is created per connection and destroyed with it; its state
// never outlives the attempt.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt ID"})
		return
	}

	studentID := claims.UserID

	attempt, err := h.attemptService.GetOwned(c.Request.Context(), attemptID, studentID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "attempt not found"})
		return
	}
	if attempt.Status != model.AttemptStatusInProgress {
		c.JSON(http.StatusConflict, gin.H{"error": "attempt is not in progress"})
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("attempt_id", attemptID.String()).
		Logger()

	// The forced-finalize path runs on the monitor's timer goroutine, detached
	// from the request context: the countdown must fire even if the student
	// killed the connection.
	monitor := proctor.New(h.cfg.ProctorMaxWarnings, h.cfg.ProctorCountdown, func() {
		h.forceFinalize(conn, wsLog, attemptID)
	}, wsLog)
	defer monitor.Disarm()

	wsLog.Info().Msg("Student connected")

	for {
		var msg ws.Request
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionAutosave:
			h.handleAutosave(conn, wsLog, attemptID, studentID, &msg)
		case ws.ActionViolation:
			h.handleViolation(conn, wsLog, monitor, attemptID, studentID, &msg)
		case ws.ActionReturn:
			h.handleReturn(wsLog, monitor, attemptID, studentID)
		case ws.ActionSubmit:
			h.handleSubmit(conn, wsLog, monitor, attemptID, studentID)
			return
		case ws.ActionPing:
			conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			conn.WriteError("unknown action: " + string(msg.Action))
		}
	}
}

// handleAutosave saves a single answer to Redis and queues it for persistence.
func (h *WSHandler) handleAutosave(conn *ws.Conn, wsLog zerolog.Logger, attemptID uuid.UUID, studentID int, msg *ws.Request) {
	ctx := context.Background()

	if msg.ItemID == "" || msg.Value == "" {
		conn.WriteError("item_id and value are required")
		return
	}

	// SECURITY: Validate ItemID is a well-formed UUID to prevent Redis key injection.
	if _, err := uuid.Parse(msg.ItemID); err != nil {
		conn.WriteError("invalid item_id format")
		return
	}

	answersKey := config.CacheKey.AttemptAnswersKey(attemptID)
	if err := h.rdb.HSet(ctx, answersKey, msg.ItemID, msg.Value).Err(); err != nil {
		wsLog.Error().Err(err).Msg("Autosave Redis error")
		conn.WriteError("save failed")
		return
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"attempt_id": attemptID.String(),
		"item_id":    msg.ItemID,
		"value":      msg.Value,
	})
	h.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload)

	conn.WriteTyped(ws.SavedResponse{Event: ws.EventSaved, ItemID: msg.ItemID})
}

// handleViolation records one exited-secure-mode transition: the event is
// queued for audit persistence, then the monitor escalates. Below the ceiling
// the client gets a warning with the countdown; past it the monitor has
// already forced submission and sent the graded event.
func (h *WSHandler) handleViolation(conn *ws.Conn, wsLog zerolog.Logger, monitor *proctor.Monitor, attemptID uuid.UUID, studentID int, msg *ws.Request) {
	h.queueProctorEvent(attemptID, studentID, msg.Kind, msg.Detail)

	warnings, forced := monitor.Violation()
	wsLog.Warn().
		Str("kind", msg.Kind).
		Int("warnings", warnings).
		Bool("forced", forced).
		Msg("Proctoring violation")

	if forced {
		return
	}

	conn.WriteTyped(ws.WarningResponse{
		Event:            ws.EventWarning,
		Warnings:         warnings,
		MaxWarnings:      h.cfg.ProctorMaxWarnings,
		CountdownSeconds: h.cfg.ProctorCountdown.Seconds(),
	})
}

// handleReturn records a returned-to-secure-mode transition and cancels any
// pending countdown. The warning counter stays where it is.
func (h *WSHandler) handleReturn(wsLog zerolog.Logger, monitor *proctor.Monitor, attemptID uuid.UUID, studentID int) {
	h.queueProctorEvent(attemptID, studentID, "return", "")
	monitor.Return()
	wsLog.Debug().Msg("Student returned to secure mode")
}

// handleSubmit finalizes on the student's own initiative. The monitor is
// disarmed first so a countdown racing the submit cannot double-finalize.
func (h *WSHandler) handleSubmit(conn *ws.Conn, wsLog zerolog.Logger, monitor *proctor.Monitor, attemptID uuid.UUID, studentID int) {
	monitor.Disarm()

	result, err := h.attemptService.Finalize(context.Background(), attemptID)
	if err != nil {
		wsLog.Error().Err(err).Msg("Submit finalize failed")
		conn.WriteError("submission failed")
		return
	}

	conn.WriteTyped(ws.GradedResponse{
		Event:  ws.EventGraded,
		Status: "completed",
		Score:  result.Score,
	})
}

// forceFinalize is the monitor's trigger path: ceiling exceeded or countdown
// expired. It runs off the read loop's goroutine, so the connection wrapper's
// write lock is what keeps the graded event from interleaving.
func (h *WSHandler) forceFinalize(conn *ws.Conn, wsLog zerolog.Logger, attemptID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.FinalizeTimeout)
	defer cancel()

	result, err := h.attemptService.Finalize(ctx, attemptID)
	if err != nil {
		// ErrAlreadyCompleted here means the student's submit won the race;
		// nothing to do.
		wsLog.Warn().Err(err).Msg("Forced finalize did not complete")
		return
	}

	wsLog.Warn().Float64("score", result.Score).Msg("Attempt force-submitted by proctor monitor")

	conn.WriteTyped(ws.GradedResponse{
		Event:  ws.EventGraded,
		Status: "completed",
		Score:  result.Score,
		Forced: true,
	})
	conn.Close()
}

// queueProctorEvent buffers one secure-mode transition for the audit worker.
func (h *WSHandler) queueProctorEvent(attemptID uuid.UUID, studentID int, kind, detail string) {
	if kind == "" {
		kind = "violation"
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"attempt_id":  attemptID.String(),
		"student_id":  studentID,
		"kind":        kind,
		"detail":      detail,
		"occurred_at": time.Now().Unix(),
	})
	h.rdb.RPush(context.Background(), config.WorkerKey.PersistViolationsQueue, payload)
}
