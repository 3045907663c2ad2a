package wsgateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mohamedkhairy/displacement-tracker/internal/models"
)

func reportWithAllWindows(runID string) *models.Report {
	scores := make(map[models.Window]models.WindowScore)
	for _, w := range models.AllWindows() {
		scores[w] = models.WindowScore{Window: w, Score: 50, Level: models.SignalModerate, WeightSet: "full"}
	}
	return &models.Report{RunID: runID, GeneratedAt: time.Now().UTC(), Scores: scores}
}

func readMessage(t *testing.T, conn *Connection) ServerMessage {
	t.Helper()
	select {
	case data := <-conn.Send:
		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Failed to decode message: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("Expected a queued message")
		return ServerMessage{}
	}
}

func TestConnection_SubscribeUnsubscribe(t *testing.T) {
	conn := NewConnection("conn-1", "user-1", nil)

	conn.Subscribe(models.Window1Year)
	if !conn.IsSubscribed(models.Window1Year) {
		t.Error("Expected connection to be subscribed to 1_year")
	}

	conn.Unsubscribe(models.Window1Year)
	if conn.IsSubscribed(models.Window1Year) {
		t.Error("Expected connection to be unsubscribed from 1_year")
	}
}

func TestConnection_FilterReport(t *testing.T) {
	conn := NewConnection("conn-1", "user-1", nil)
	report := reportWithAllWindows("run-1")

	// No subscriptions means every window
	if got := conn.FilterReport(report); len(got.Scores) != 3 {
		t.Errorf("Expected 3 windows, got %d", len(got.Scores))
	}

	conn.Subscribe(models.Window2Year)
	filtered := conn.FilterReport(report)
	if len(filtered.Scores) != 1 {
		t.Fatalf("Expected 1 window, got %d", len(filtered.Scores))
	}
	if _, ok := filtered.Scores[models.Window2Year]; !ok {
		t.Error("Expected 2_year window to be kept")
	}
	if len(report.Scores) != 3 {
		t.Error("Expected original report to be left untouched")
	}
}

func TestConnection_HandleClientMessage(t *testing.T) {
	latest := reportWithAllWindows("run-latest")
	none := func() *models.Report { return nil }
	some := func() *models.Report { return latest }

	tests := []struct {
		name     string
		msg      ClientMessage
		latest   func() *models.Report
		expected MessageType
		code     string
	}{
		{"subscribe single", ClientMessage{Type: "subscribe", Window: "1_year"}, none, MessageTypeSuccess, ""},
		{"subscribe many", ClientMessage{Type: "subscribe", Windows: []string{"1_year", "3_year"}}, none, MessageTypeSuccess, ""},
		{"subscribe invalid", ClientMessage{Type: "subscribe", Window: "10_year"}, none, MessageTypeError, "invalid_request"},
		{"subscribe empty", ClientMessage{Type: "subscribe"}, none, MessageTypeError, "invalid_request"},
		{"unsubscribe", ClientMessage{Type: "unsubscribe", Window: "1_year"}, none, MessageTypeSuccess, ""},
		{"ping", ClientMessage{Type: "ping"}, none, MessageTypePong, ""},
		{"snapshot without report", ClientMessage{Type: "snapshot"}, none, MessageTypeError, "no_report"},
		{"snapshot", ClientMessage{Type: "snapshot"}, some, MessageTypeSnapshot, ""},
		{"unknown", ClientMessage{Type: "dance"}, none, MessageTypeError, "unknown_message_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := NewConnection("conn-1", "user-1", nil)
			defer conn.Close()

			if err := conn.HandleClientMessage(&tt.msg, tt.latest); err != nil {
				t.Fatalf("HandleClientMessage() error = %v", err)
			}

			msg := readMessage(t, conn)
			if msg.Type != tt.expected {
				t.Errorf("Expected message type %s, got %s", tt.expected, msg.Type)
			}
			if msg.Code != tt.code {
				t.Errorf("Expected code %q, got %q", tt.code, msg.Code)
			}
		})
	}
}

func TestConnection_SubscribeLimitsReports(t *testing.T) {
	conn := NewConnection("conn-1", "user-1", nil)
	defer conn.Close()

	msg := ClientMessage{Type: "subscribe", Window: "3_year"}
	if err := conn.HandleClientMessage(&msg, nil); err != nil {
		t.Fatalf("HandleClientMessage() error = %v", err)
	}
	readMessage(t, conn)

	if err := conn.SendReport(MessageTypeScoreUpdate, reportWithAllWindows("run-1")); err != nil {
		t.Fatalf("SendReport() error = %v", err)
	}

	data := <-conn.Send
	var decoded struct {
		Type MessageType   `json:"type"`
		Data models.Report `json:"data"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to decode report: %v", err)
	}
	if decoded.Type != MessageTypeScoreUpdate {
		t.Errorf("Expected score_update, got %s", decoded.Type)
	}
	if len(decoded.Data.Scores) != 1 {
		t.Errorf("Expected only the subscribed window, got %d", len(decoded.Data.Scores))
	}
}

func TestConnection_SendAfterClose(t *testing.T) {
	conn := NewConnection("conn-1", "user-1", nil)
	conn.Close()
	conn.Close()

	if err := conn.SendError("code", "message"); err != ErrConnectionClosed {
		t.Errorf("Expected ErrConnectionClosed, got %v", err)
	}
}

func TestConnection_SendBufferFull(t *testing.T) {
	conn := NewConnection("conn-1", "user-1", nil)
	defer conn.Close()

	for i := 0; i < sendBufferSize; i++ {
		if err := conn.SendPong(); err != nil {
			t.Fatalf("SendPong() error = %v", err)
		}
	}
	if err := conn.SendPong(); err != ErrSendBufferFull {
		t.Errorf("Expected ErrSendBufferFull, got %v", err)
	}
}

func TestConnection_UpdateLastPong(t *testing.T) {
	conn := NewConnection("conn-1", "user-1", nil)
	conn.lastPong = time.Now().Add(-1 * time.Hour)

	initialPong := conn.GetLastPong()
	conn.UpdateLastPong()

	if !conn.GetLastPong().After(initialPong) {
		t.Error("Expected last pong time to be updated")
	}
}
