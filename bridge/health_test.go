package bridge

import (
	"encoding/json"
	"testing"

	"github.com/usul27/pknx/tunnel"
)

func TestHealthReporterStatus(t *testing.T) {
	tests := []struct {
		name       string
		mqttUp     bool
		state      tunnel.State
		wantStatus HealthStatus
	}{
		{"all healthy", true, tunnel.StateConnected, HealthHealthy},
		{"mqtt down", false, tunnel.StateConnected, HealthDegraded},
		{"tunnel down", true, tunnel.StateDisconnected, HealthDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := newMockPublisher()
			pub.connected = tt.mqttUp
			client := &mockClient{state: tt.state}

			h := NewHealthReporter(HealthReporterConfig{
				BridgeID:  "pknx",
				Publisher: pub,
				Client:    client,
			})

			if err := h.PublishNow(); err != nil {
				t.Fatalf("PublishNow: %v", err)
			}

			msgs := pub.messagesOn("pknx/health")
			if len(msgs) != 1 {
				t.Fatalf("health messages = %d, want 1", len(msgs))
			}
			if !msgs[0].retained {
				t.Error("health message not retained")
			}

			var msg HealthMessage
			if err := json.Unmarshal(msgs[0].payload, &msg); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if msg.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", msg.Status, tt.wantStatus)
			}
			if msg.Connection == nil || msg.Connection.State != tt.state.String() {
				t.Errorf("Connection = %+v", msg.Connection)
			}
		})
	}
}

func TestHealthReporterLWT(t *testing.T) {
	h := NewHealthReporter(HealthReporterConfig{BridgeID: "pknx"})

	if got := h.LWTTopic(); got != "pknx/health" {
		t.Errorf("LWTTopic() = %q, want pknx/health", got)
	}

	payload, err := h.LWTPayload()
	if err != nil {
		t.Fatalf("LWTPayload: %v", err)
	}
	var msg HealthMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Status != HealthOffline || msg.Reason != "unexpected_disconnect" {
		t.Errorf("LWT = %+v", msg)
	}
}
