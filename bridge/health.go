package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/usul27/pknx/tunnel"
)

// HealthReporter publishes periodic health messages for the bridge.
type HealthReporter struct {
	bridgeID    string
	topicPrefix string
	version     string
	startTime   time.Time
	interval    time.Duration
	publisher   Publisher
	client      GroupClient

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// BridgeID identifies the bridge in health messages.
	BridgeID string

	// TopicPrefix is the base MQTT topic.
	TopicPrefix string

	// Version is the reported software version.
	Version string

	// Interval is how often status is published. Default: 30 seconds.
	Interval time.Duration

	// Publisher is the MQTT client.
	Publisher Publisher

	// Client provides tunnel state and statistics.
	Client GroupClient
}

// NewHealthReporter creates a reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultHealthInterval
	}
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}

	return &HealthReporter{
		bridgeID:    cfg.BridgeID,
		topicPrefix: prefix,
		version:     cfg.Version,
		startTime:   time.Now(),
		interval:    interval,
		publisher:   cfg.Publisher,
		client:      cfg.Client,
		done:        make(chan struct{}),
	}
}

// Start begins periodic reporting.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		//nolint:errcheck // best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// LWTPayload returns the Last Will message the broker publishes when
// the bridge drops off unexpectedly.
func (h *HealthReporter) LWTPayload() ([]byte, error) {
	msg := HealthMessage{
		Bridge:    h.bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
	return json.Marshal(msg)
}

// LWTTopic returns the topic for the Last Will message.
func (h *HealthReporter) LWTTopic() string {
	return HealthTopic(h.topicPrefix)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.client == nil || h.client.State() != tunnel.StateConnected {
		return HealthDegraded, "tunnel disconnected"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	msg := HealthMessage{
		Bridge:        h.bridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Reason:        reason,
	}

	if h.client != nil {
		stats := h.client.Stats()
		msg.Connection = &ConnectionStatus{State: stats.State.String()}
		msg.Statistics = &BridgeStatistics{
			TelegramsRx: stats.TelegramsRx,
			FramesTx:    stats.FramesTx,
			FramesRx:    stats.FramesRx,
			Retransmits: stats.Retransmits,
			Reconnects:  stats.Reconnects,
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(HealthTopic(h.topicPrefix), payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()
	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
