package handler

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/ruangujian/ruangujian-backend/internal/middleware"
	"github.com/ruangujian/ruangujian-backend/internal/proctor"
	"github.com/ruangujian/ruangujian-backend/internal/service"
	"github.com/ruangujian/ruangujian-backend/internal/session"
	ws "github.com/ruangujian/ruangujian-backend/internal/websocket"
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

// StreamHandler owns the WebSocket exam stream: intents and raw proctoring
// signals in, session events out.
type StreamHandler struct {
	sessions *service.SessionService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(sessions *service.SessionService, log zerolog.Logger, allowedOrigins []string) *StreamHandler {
	return &StreamHandler{
		sessions: sessions,
		log:      log.With().Str("component", "stream_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// ExamStream godoc
// WS /ws/v1/student/exams/:exam_id/stream?token=...&platform=...
// Attaches the client to its authoritative session controller.
func (h *StreamHandler) ExamStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam ID"})
		return
	}

	platform := c.Query("platform")
	studentID := claims.UserID

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ctrl, err := h.sessions.GetOrCreate(c.Request.Context(), examID, studentID, platform)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadySubmitted):
			ws.WriteError(conn, "exam already submitted")
		case errors.Is(err, service.ErrNoActiveSession):
			ws.WriteError(conn, "no active session for this exam, join first")
		default:
			h.log.Error().Err(err).Msg("Session attach failed")
			ws.WriteError(conn, "session unavailable")
		}
		return
	}

	streamLog := h.log.With().
		Int("student_id", studentID).
		Str("exam_id", examID.String()).
		Logger()
	streamLog.Info().Msg("Student attached to exam stream")

	// The reader goroutine answers pings and errors on the same conn as the
	// event pump, so every write goes through one mutex.
	var writeMu sync.Mutex
	write := func(v interface{}) {
		writeMu.Lock()
		defer writeMu.Unlock()
		ws.WriteTyped(conn, v)
	}

	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case <-done:
				return
			case ev := <-ctrl.Events():
				write(ev)
			}
		}
	}()

	for {
		var msg ws.ClientMessage
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				streamLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				streamLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionStart:
			// A reconnect lands here too; the snapshot resynchronizes the
			// client instead of restarting anything.
			if ctrl.State() == session.StateLocked {
				ctrl.Start()
			} else {
				write(session.Event{Type: session.EventState, Snapshot: ctrl.Snapshot()})
			}

		case ws.ActionAnswer:
			if _, err := uuid.Parse(msg.QID); err != nil {
				write(ws.ErrorResponse{Event: ws.EventError, Error: "invalid q_id format"})
				continue
			}
			ctrl.SetAnswer(msg.QID, msg.Answer)
			h.sessions.Autosave(c.Request.Context(), examID, studentID, msg.QID, msg.Answer)

		case ws.ActionMark:
			ctrl.ToggleMark(msg.QID)

		case ws.ActionGoto:
			ctrl.Goto(msg.Index)

		case ws.ActionNext:
			ctrl.Next()

		case ws.ActionPrev:
			ctrl.Prev()

		case ws.ActionSignal:
			ctrl.HandleSignal(proctor.Signal(msg.Signal))

		case ws.ActionViewport:
			ctrl.UpdateViewport(msg.ViewportHeight, msg.WindowHeight)

		case ws.ActionSubmitRequest:
			ctrl.RequestSubmit()

		case ws.ActionSubmitConfirm:
			ctrl.Submit()

		case ws.ActionPing:
			write(ws.PongResponse{Event: ws.EventPong})

		default:
			streamLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			write(ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(msg.Action)})
		}
	}

	if ctrl.State() == session.StateSubmitted {
		h.sessions.Evict(examID, studentID)
	}
}
