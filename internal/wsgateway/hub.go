package wsgateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mohamedkhairy/displacement-tracker/internal/config"
	"github.com/mohamedkhairy/displacement-tracker/internal/models"
	"github.com/mohamedkhairy/displacement-tracker/internal/pubsub"
	"github.com/mohamedkhairy/displacement-tracker/internal/storage"
	"github.com/mohamedkhairy/displacement-tracker/pkg/logger"
)

// Hub manages WebSocket connections and broadcasts score reports
type Hub struct {
	config   config.WSGatewayConfig
	registry *ConnectionRegistry
	redis    storage.RedisClient
	reports  storage.ReportStorage
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	latest   *models.Report
	stats    HubStats
}

// HubStats holds statistics about the hub
type HubStats struct {
	ConnectionsTotal  int64                 `json:"connections_total"`
	ConnectionsActive int64                 `json:"connections_active"`
	UsersActive       int                   `json:"users_active"`
	Audience          map[models.Window]int `json:"audience"` // connections receiving each window
	ReportsReceived   int64                 `json:"reports_received"`
	ReportsBroadcast  int64                 `json:"reports_broadcast"`
	MessagesSent      int64                 `json:"messages_sent"`
	MessagesDropped   int64                 `json:"messages_dropped"`
	LastReportTime    time.Time             `json:"last_report_time"`
	LastRunID         string                `json:"last_run_id,omitempty"`
	mu                sync.RWMutex
}

// NewHub creates a new WebSocket hub. reports is optional and only used to
// prime the latest report on start.
func NewHub(config config.WSGatewayConfig, redis storage.RedisClient, reports storage.ReportStorage) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		config:   config,
		registry: NewConnectionRegistry(),
		redis:    redis,
		reports:  reports,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start starts the hub (consumes score updates and broadcasts)
func (h *Hub) Start() error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = true
	h.mu.Unlock()

	logger.Info("Starting WebSocket hub",
		logger.String("update_channel", h.config.UpdateChannel),
	)

	h.primeLatest()

	updates, err := h.redis.Subscribe(h.ctx, h.config.UpdateChannel)
	if err != nil {
		h.mu.Lock()
		h.running = false
		h.mu.Unlock()
		return err
	}

	h.wg.Add(1)
	go h.consumeUpdates(updates)

	h.wg.Add(1)
	go h.monitorConnections()

	return nil
}

// Stop stops the hub and closes every connection
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	logger.Info("Stopping WebSocket hub")
	h.cancel()
	for _, conn := range h.registry.All() {
		h.Unregister(conn)
	}
	h.wg.Wait()
	logger.Info("WebSocket hub stopped")
}

// Register registers a new connection, starts its pumps and sends the latest
// report as a snapshot
func (h *Hub) Register(conn *Connection) {
	if !h.registry.Add(conn) {
		logger.Warn("Duplicate connection ID, closing connection",
			logger.String("connection_id", conn.ID),
		)
		conn.Close()
		return
	}
	h.incrementConnectionsTotal()

	logger.Info("Connection registered",
		logger.String("connection_id", conn.ID),
		logger.String("user_id", conn.UserID),
		logger.Int("total_connections", h.registry.Count()),
	)

	h.wg.Add(2)
	go h.writePump(conn)
	go h.readPump(conn)

	if latest := h.Latest(); latest != nil {
		if err := conn.SendReport(MessageTypeSnapshot, latest); err != nil {
			logger.Debug("Failed to send snapshot",
				logger.ErrorField(err),
				logger.String("connection_id", conn.ID),
			)
		}
	}
}

// Unregister unregisters a connection
func (h *Hub) Unregister(conn *Connection) {
	if !h.registry.Remove(conn.ID) {
		return
	}
	conn.Close()

	logger.Info("Connection unregistered",
		logger.String("connection_id", conn.ID),
		logger.String("user_id", conn.UserID),
		logger.Int("total_connections", h.registry.Count()),
	)
}

// Latest returns the most recent report seen by the hub
func (h *Hub) Latest() *models.Report {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}

// ConnectionCount returns the number of active connections
func (h *Hub) ConnectionCount() int {
	return h.registry.Count()
}

func (h *Hub) primeLatest() {
	if h.reports == nil {
		return
	}
	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	defer cancel()

	reports, err := h.reports.GetReports(ctx, storage.ReportFilter{Limit: 1})
	if err != nil {
		logger.Warn("Failed to load latest report", logger.ErrorField(err))
		return
	}
	if len(reports) > 0 {
		h.setLatest(reports[0])
	}
}

func (h *Hub) setLatest(report *models.Report) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest != nil && report.GeneratedAt.Before(h.latest.GeneratedAt) {
		return false
	}
	h.latest = report
	return true
}

// consumeUpdates reads published reports and broadcasts them
func (h *Hub) consumeUpdates(updates <-chan storage.PubSubMessage) {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return

		case msg, ok := <-updates:
			if !ok {
				logger.Warn("Score update channel closed")
				return
			}

			report, err := pubsub.DecodeReport(msg.Message)
			if err != nil {
				logger.Error("Failed to decode score update",
					logger.ErrorField(err),
					logger.String("channel", msg.Channel),
				)
				continue
			}

			h.incrementReportsReceived(report.RunID)
			h.Broadcast(report)
		}
	}
}

// Broadcast sends a report to every connection. Reports older than the
// latest one seen are ignored.
func (h *Hub) Broadcast(report *models.Report) {
	if !h.setLatest(report) {
		logger.Debug("Ignoring stale report", logger.String("run_id", report.RunID))
		return
	}

	connections := h.registry.All()
	sent := 0
	dropped := 0

	for _, conn := range connections {
		if err := conn.SendReport(MessageTypeScoreUpdate, report); err != nil {
			dropped++
			logger.Debug("Failed to send report to connection",
				logger.ErrorField(err),
				logger.String("connection_id", conn.ID),
			)
			continue
		}
		sent++
	}

	h.recordBroadcast(int64(sent), int64(dropped))

	logger.Debug("Broadcast score report",
		logger.String("run_id", report.RunID),
		logger.Int("sent", sent),
		logger.Int("dropped", dropped),
		logger.Int("total_connections", len(connections)),
	)
}

// writePump pumps messages from the hub to the WebSocket connection
func (h *Hub) writePump(conn *Connection) {
	defer h.wg.Done()
	defer h.Unregister(conn)

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps messages from the WebSocket connection to the hub
func (h *Hub) readPump(conn *Connection) {
	defer h.wg.Done()
	defer h.Unregister(conn)

	conn.Conn.SetReadLimit(4096)
	conn.Conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.UpdateLastPong()
		conn.Conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket error",
					logger.ErrorField(err),
					logger.String("connection_id", conn.ID),
				)
			}
			break
		}

		var clientMsg ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			conn.SendError("invalid_message", "failed to parse message")
			continue
		}

		if err := conn.HandleClientMessage(&clientMsg, h.Latest); err != nil {
			logger.Debug("Failed to handle client message",
				logger.ErrorField(err),
				logger.String("connection_id", conn.ID),
			)
		}
	}
}

// monitorConnections removes connections that stopped answering pings
func (h *Hub) monitorConnections() {
	defer h.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()
			for _, conn := range h.registry.Stale(now.Add(-2 * h.config.ReadTimeout)) {
				logger.Info("Removing stale connection",
					logger.String("connection_id", conn.ID),
					logger.String("user_id", conn.UserID),
					logger.Duration("idle_time", now.Sub(conn.GetLastPong())),
				)
				h.Unregister(conn)
			}
		}
	}
}

// GetStats returns hub statistics
func (h *Hub) GetStats() HubStats {
	h.stats.mu.RLock()
	defer h.stats.mu.RUnlock()

	return HubStats{
		ConnectionsTotal:  h.stats.ConnectionsTotal,
		ConnectionsActive: int64(h.registry.Count()),
		UsersActive:       h.registry.Users(),
		Audience:          h.registry.Audience(),
		ReportsReceived:   h.stats.ReportsReceived,
		ReportsBroadcast:  h.stats.ReportsBroadcast,
		MessagesSent:      h.stats.MessagesSent,
		MessagesDropped:   h.stats.MessagesDropped,
		LastReportTime:    h.stats.LastReportTime,
		LastRunID:         h.stats.LastRunID,
	}
}

func (h *Hub) incrementConnectionsTotal() {
	h.stats.mu.Lock()
	defer h.stats.mu.Unlock()
	h.stats.ConnectionsTotal++
}

func (h *Hub) incrementReportsReceived(runID string) {
	h.stats.mu.Lock()
	defer h.stats.mu.Unlock()
	h.stats.ReportsReceived++
	h.stats.LastReportTime = time.Now()
	h.stats.LastRunID = runID
}

func (h *Hub) recordBroadcast(sent, dropped int64) {
	h.stats.mu.Lock()
	defer h.stats.mu.Unlock()
	h.stats.ReportsBroadcast++
	h.stats.MessagesSent += sent
	h.stats.MessagesDropped += dropped
}
