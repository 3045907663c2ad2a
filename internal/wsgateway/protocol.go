package wsgateway

import (
	"errors"
	"fmt"

	"github.com/mohamedkhairy/displacement-tracker/internal/models"
	"github.com/mohamedkhairy/displacement-tracker/pkg/logger"
)

var (
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrConnectionClosed = errors.New("connection closed")
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	// client to server
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypePing        MessageType = "ping"
	MessageTypeSnapshot    MessageType = "snapshot"

	// server to client
	MessageTypePong        MessageType = "pong"
	MessageTypeSuccess     MessageType = "success"
	MessageTypeError       MessageType = "error"
	MessageTypeScoreUpdate MessageType = "score_update"
)

// ClientMessage represents a message from the client
type ClientMessage struct {
	Type    string   `json:"type"`
	Window  string   `json:"window,omitempty"`
	Windows []string `json:"windows,omitempty"`
}

// ServerMessage represents a message to the client
type ServerMessage struct {
	Type    MessageType `json:"type"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

func (m *ClientMessage) windows() ([]models.Window, error) {
	names := m.Windows
	if m.Window != "" {
		names = append([]string{m.Window}, names...)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("window or windows field required")
	}

	windows := make([]models.Window, 0, len(names))
	for _, name := range names {
		window, err := models.ParseWindow(name)
		if err != nil {
			return nil, err
		}
		windows = append(windows, window)
	}
	return windows, nil
}

// HandleClientMessage handles a message from the client. latest supplies the
// most recent report for snapshot requests and may return nil.
func (c *Connection) HandleClientMessage(msg *ClientMessage, latest func() *models.Report) error {
	switch MessageType(msg.Type) {
	case MessageTypeSubscribe:
		windows, err := msg.windows()
		if err != nil {
			return c.SendError("invalid_request", err.Error())
		}
		for _, window := range windows {
			c.Subscribe(window)
		}
		logger.Debug("Client subscribed to windows",
			logger.String("connection_id", c.ID),
			logger.String("user_id", c.UserID),
			logger.Int("count", len(windows)),
		)
		return c.SendSuccess("subscribed", map[string]interface{}{"windows": windows})

	case MessageTypeUnsubscribe:
		windows, err := msg.windows()
		if err != nil {
			return c.SendError("invalid_request", err.Error())
		}
		for _, window := range windows {
			c.Unsubscribe(window)
		}
		logger.Debug("Client unsubscribed from windows",
			logger.String("connection_id", c.ID),
			logger.String("user_id", c.UserID),
			logger.Int("count", len(windows)),
		)
		return c.SendSuccess("unsubscribed", map[string]interface{}{"windows": windows})

	case MessageTypeSnapshot:
		report := latest()
		if report == nil {
			return c.SendError("no_report", "no score report available yet")
		}
		return c.SendReport(MessageTypeSnapshot, report)

	case MessageTypePing:
		return c.SendPong()

	default:
		return c.SendError("unknown_message_type", fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

// SendSuccess sends a success message to the client
func (c *Connection) SendSuccess(action string, data interface{}) error {
	return c.enqueue(ServerMessage{
		Type: MessageTypeSuccess,
		Data: map[string]interface{}{
			"action": action,
			"data":   data,
		},
	}, 0)
}

// SendPong sends a pong message to the client
func (c *Connection) SendPong() error {
	return c.enqueue(ServerMessage{Type: MessageTypePong}, 0)
}
