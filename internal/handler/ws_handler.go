package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/smquiz/quiz-backend/internal/attempt"
	"github.com/smquiz/quiz-backend/internal/middleware"
	"github.com/smquiz/quiz-backend/internal/response"
	"github.com/smquiz/quiz-backend/internal/service"
	ws "github.com/smquiz/quiz-backend/internal/websocket"
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

// WSHandler streams server-run attempts.
type WSHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/student/attempts/:id/stream?token=
// Carries student input and integrity signals into the attempt session and
// session events back to the browser. The state event is sent on connect so
// a reconnecting client can resume.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	// SECURITY: only the owner may drive the attempt.
	sess, err := h.attemptService.Session(id, claims.UserID)
	if err != nil {
		failWith(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	wsLog := h.log.With().
		Int("user_id", claims.UserID).
		Str("attempt_id", id.String()).
		Logger()

	client := ws.NewClient(conn, wsLog)
	defer client.Close()
	go client.Run()
	ws.KeepAlive(conn)

	if err := sess.Attach(client); err != nil {
		client.Error(response.GetMessage(response.ErrAttemptClosed))
		return
	}
	defer sess.Detach(client)

	// A session that ends while connected closes the stream.
	go func() {
		select {
		case <-sess.Done():
			client.Close()
		case <-client.Done():
		}
	}()

	if snap, err := sess.Snapshot(); err == nil {
		client.State(snap)
	}

	wsLog.Info().Msg("Student connected")

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		if err := h.dispatch(sess, client, &msg); err != nil {
			if errors.Is(err, attempt.ErrSessionClosed) {
				client.Error(response.GetMessage(response.ErrAttemptClosed))
				return
			}
			wsLog.Error().Err(err).Str("action", string(msg.Action)).Msg("Action failed")
			client.Error(response.GetMessage(response.ErrInternal))
		}
	}
}

// dispatch applies one client message. Actions that have no effect are
// answered with a rejected event; only session failures are returned.
func (h *WSHandler) dispatch(sess *attempt.Session, client *ws.Client, msg *ws.RequestPayload) error {
	var (
		applied bool
		reason  string
		err     error
	)

	switch msg.Action {
	case ws.ActionStart:
		if !msg.Accept {
			client.Reject(msg.Action, response.GetMessage(response.ErrNotAcknowledged))
			return nil
		}
		applied, err = sess.Start(true)
		reason = "attempt already started"

	case ws.ActionSelect:
		if msg.Index == nil {
			client.Reject(msg.Action, "index is required")
			return nil
		}
		answer, decodeErr := msg.AnswerValue().Decode()
		if decodeErr != nil {
			client.Reject(msg.Action, decodeErr.Error())
			return nil
		}
		applied, err = sess.Select(*msg.Index, answer)
		reason = "answer not accepted"

	case ws.ActionNavigate:
		if msg.Index == nil {
			client.Reject(msg.Action, "index is required")
			return nil
		}
		applied, err = sess.Navigate(*msg.Index)
		reason = "question not available"

	case ws.ActionReview:
		if msg.Index == nil {
			client.Reject(msg.Action, "index is required")
			return nil
		}
		applied, err = sess.ToggleReview(*msg.Index)
		reason = "question not available"

	case ws.ActionSignal:
		sig, ok := attempt.ParseSignal(msg.Kind)
		if !ok {
			client.Reject(msg.Action, "unknown signal: "+msg.Kind)
			return nil
		}
		// Uncounted signals are normal; nothing to report.
		_, err = sess.Signal(sig)
		applied = true

	case ws.ActionBlocked:
		b, ok := attempt.ParseBlocked(msg.Kind)
		if !ok {
			client.Reject(msg.Action, "unknown blocked action: "+msg.Kind)
			return nil
		}
		err = sess.Block(b)
		applied = true

	case ws.ActionState:
		snap, snapErr := sess.Snapshot()
		if snapErr != nil {
			return snapErr
		}
		client.State(snap)
		return nil

	case ws.ActionSubmit:
		applied, err = sess.Submit()
		reason = "attempt is not in progress"

	case ws.ActionPing:
		client.Send(ws.PongResponse{Event: ws.EventPong})
		return nil

	default:
		client.Reject(msg.Action, response.GetMessage(response.ErrUnknownAction))
		return nil
	}

	if err != nil {
		return err
	}
	if !applied {
		client.Reject(msg.Action, reason)
	}
	return nil
}
