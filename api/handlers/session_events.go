package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yourusername/axolutly-go/internal/app"
	"go.uber.org/zap"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // served on localhost only
	},
}

// ClientMessage is a command sent by a websocket client
type ClientMessage struct {
	Action  string `json:"action"` // cancel, confirm, auth_complete
	Replace bool   `json:"replace,omitempty"`
}

// EventStreamHandler streams session events over websocket connections
type EventStreamHandler struct {
	sessions SessionService
	logger   *zap.Logger
}

// NewEventStreamHandler creates a new event stream handler
func NewEventStreamHandler(sessions SessionService, log *zap.Logger) *EventStreamHandler {
	return &EventStreamHandler{
		sessions: sessions,
		logger:   log,
	}
}

// HandleWebSocket handles GET /api/v1/sessions/:id/events. Each event is
// sent as one JSON text message and the connection is closed after the
// session's terminal event.
func (h *EventStreamHandler) HandleWebSocket(c *gin.Context) {
	id := c.Param("id")

	events, unsubscribe, err := h.sessions.Subscribe(id)
	if err != nil {
		if errors.Is(err, app.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer unsubscribe()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Info("WebSocket client connected",
		zap.String("id", id),
		zap.String("remote_addr", c.Request.RemoteAddr))

	// Reader: commands from the client
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			h.handleCommand(id, data)
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("Failed to marshal event", zap.Error(err))
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Warn("Failed to send event", zap.String("id", id), zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

func (h *EventStreamHandler) handleCommand(id string, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Debug("Ignoring malformed client message", zap.String("id", id), zap.Error(err))
		return
	}

	var err error
	switch msg.Action {
	case "cancel":
		err = h.sessions.Cancel(id)
	case "confirm":
		err = h.sessions.ResolveConfirmation(id, msg.Replace)
	case "auth_complete":
		err = h.sessions.NotifyAuthCompleted(id)
	default:
		h.logger.Debug("Unknown client action", zap.String("id", id), zap.String("action", msg.Action))
		return
	}
	if err != nil {
		h.logger.Warn("Client command failed",
			zap.String("id", id),
			zap.String("action", msg.Action),
			zap.Error(err))
	}
}
