package wsgateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mohamedkhairy/displacement-tracker/internal/models"
	"github.com/mohamedkhairy/displacement-tracker/pkg/logger"
)

const sendBufferSize = 64

// Connection represents a WebSocket connection with a client
type Connection struct {
	ID            string
	UserID        string
	Conn          *websocket.Conn
	Send          chan []byte
	Subscriptions map[models.Window]bool
	mu            sync.RWMutex
	ctx           context.Context
	cancel        context.CancelFunc
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	closed        bool
	lastPong      time.Time
	createdAt     time.Time
}

// NewConnection creates a new WebSocket connection
func NewConnection(id string, userID string, conn *websocket.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		ID:            id,
		UserID:        userID,
		Conn:          conn,
		Send:          make(chan []byte, sendBufferSize),
		Subscriptions: make(map[models.Window]bool),
		ctx:           ctx,
		cancel:        cancel,
		createdAt:     time.Now(),
		lastPong:      time.Now(),
	}
}

// Subscribe limits score updates to the given window. A connection without
// subscriptions receives every window.
func (c *Connection) Subscribe(window models.Window) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Subscriptions[window] = true
}

// Unsubscribe removes a window subscription
func (c *Connection) Unsubscribe(window models.Window) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Subscriptions, window)
}

// IsSubscribed checks if the connection is subscribed to a window
func (c *Connection) IsSubscribed(window models.Window) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Subscriptions[window]
}

// Receives reports whether score updates for window reach this connection
func (c *Connection) Receives(window models.Window) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.Subscriptions) == 0 || c.Subscriptions[window]
}

// FilterReport returns a copy of report carrying only the subscribed windows
func (c *Connection) FilterReport(report *models.Report) *models.Report {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.Subscriptions) == 0 {
		return report
	}

	filtered := *report
	filtered.Scores = make(map[models.Window]models.WindowScore, len(c.Subscriptions))
	for window, score := range report.Scores {
		if c.Subscriptions[window] {
			filtered.Scores[window] = score
		}
	}
	return &filtered
}

// UpdateLastPong updates the last pong time
func (c *Connection) UpdateLastPong() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPong = time.Now()
}

// GetLastPong returns the last pong time
func (c *Connection) GetLastPong() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPong
}

// Close closes the connection. Safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.sendMu.Lock()
		c.closed = true
		close(c.Send)
		c.sendMu.Unlock()
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// ReadMessage reads a message from the connection
func (c *Connection) ReadMessage() (messageType int, p []byte, err error) {
	return c.Conn.ReadMessage()
}

// SendReport queues a score report for the client
func (c *Connection) SendReport(messageType MessageType, report *models.Report) error {
	return c.enqueue(ServerMessage{Type: messageType, Data: c.FilterReport(report)}, time.Second)
}

// SendError queues an error message, dropping it if the buffer is full
func (c *Connection) SendError(code string, message string) error {
	return c.enqueue(ServerMessage{Type: MessageTypeError, Code: code, Message: message}, 0)
}

// enqueue hands a message to the write pump. Only the write pump writes to
// the socket.
func (c *Connection) enqueue(msg ServerMessage, wait time.Duration) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed {
		return ErrConnectionClosed
	}

	if wait <= 0 {
		select {
		case c.Send <- data:
		case <-c.ctx.Done():
			return c.ctx.Err()
		default:
			return ErrSendBufferFull
		}
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case c.Send <- data:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	case <-timer.C:
		logger.Warn("Dropping message, send buffer full",
			logger.String("connection_id", c.ID),
			logger.String("user_id", c.UserID),
		)
		return ErrSendBufferFull
	}
}
