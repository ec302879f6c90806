package bridge

import (
	"fmt"
	"time"

	"github.com/usul27/pknx/knx"
)

// DefaultTopicPrefix is the base topic for all bridge messages.
const DefaultTopicPrefix = "pknx"

// StateMessage is published whenever a group write or response is
// observed on the bus.
// Topic: pknx/state/{encoded-ga}, QoS 1, retained.
type StateMessage struct {
	// Address is the group address, e.g. "1/2/3".
	Address string `json:"address"`

	// Timestamp is when the telegram was observed (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Raw is the payload as uppercase hex, e.g. "0C33".
	Raw string `json:"raw"`

	// DPT is the datapoint type used to decode Value, empty when the
	// address has no configured type.
	DPT string `json:"dpt,omitempty"`

	// Value is the decoded payload. Present only when DPT is set and
	// decoding succeeded.
	Value any `json:"value,omitempty"`

	// Source is the sender's individual address, e.g. "1.1.4".
	Source string `json:"source"`

	// Service is "write" or "response".
	Service string `json:"service"`
}

// CommandMessage instructs the bridge to act on a group address.
// Topic: pknx/command/{encoded-ga}.
type CommandMessage struct {
	// ID correlates the command with its ack. Optional.
	ID string `json:"id,omitempty"`

	// Action is "write", "read", or "toggle".
	Action string `json:"action"`

	// DPT overrides the configured datapoint type for this command.
	DPT string `json:"dpt,omitempty"`

	// Value is the typed payload for write commands.
	Value any `json:"value,omitempty"`

	// Raw is a hex payload for write commands, used when Value is
	// absent. Takes precedence over Value.
	Raw string `json:"raw,omitempty"`

	// UseCache lets read and toggle commands be served from the group
	// value cache when a fresh entry exists.
	UseCache bool `json:"use_cache,omitempty"`
}

// AckStatus is the outcome of a command.
type AckStatus string

const (
	// AckOK indicates the command completed.
	AckOK AckStatus = "ok"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// Error codes for failed commands.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeProtocolError     = "PROTOCOL_ERROR"
	ErrCodeNotConnected      = "NOT_CONNECTED"
	ErrCodeBusTimeout        = "BUS_TIMEOUT"
)

// AckMessage answers a command.
// Topic: pknx/ack/{encoded-ga}, QoS 1.
type AckMessage struct {
	// CommandID is the ID from the original command.
	CommandID string `json:"command_id,omitempty"`

	// Address is the group address the command targeted.
	Address string `json:"address"`

	// Timestamp is when the ack was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status is "ok" or "failed".
	Status AckStatus `json:"status"`

	// Value carries the result of a read command.
	Value any `json:"value,omitempty"`

	// Raw carries the raw result of a read command as hex.
	Raw string `json:"raw,omitempty"`

	// Error holds details when Status is "failed".
	Error *AckError `json:"error,omitempty"`
}

// AckError describes a failed command.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HealthStatus is the bridge's operational status.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's status.
// Topic: pknx/health, QoS 1, retained.
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`

	// Connection describes the tunnel to the KNX gateway.
	Connection *ConnectionStatus `json:"connection,omitempty"`

	// Statistics carries tunnel counters.
	Statistics *BridgeStatistics `json:"statistics,omitempty"`

	// Reason explains degraded or offline status.
	Reason string `json:"reason,omitempty"`
}

// ConnectionStatus describes the tunneling connection.
type ConnectionStatus struct {
	// State is the tunnel state, e.g. "connected".
	State string `json:"state"`

	// Gateway is the gateway's control endpoint.
	Gateway string `json:"gateway,omitempty"`
}

// BridgeStatistics carries tunnel counters for health reporting.
type BridgeStatistics struct {
	TelegramsRx uint64 `json:"telegrams_rx"`
	FramesTx    uint64 `json:"frames_tx"`
	FramesRx    uint64 `json:"frames_rx"`
	Retransmits uint64 `json:"retransmits"`
	Reconnects  uint64 `json:"reconnects"`
}

// NewAckOK builds a successful ack for cmd.
func NewAckOK(cmd CommandMessage, ga knx.GroupAddress) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Address:   ga.String(),
		Timestamp: time.Now().UTC(),
		Status:    AckOK,
	}
}

// NewAckError builds a failed ack for cmd.
func NewAckError(cmd CommandMessage, address, code, message string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Address:   address,
		Timestamp: time.Now().UTC(),
		Status:    AckFailed,
		Error:     &AckError{Code: code, Message: message},
	}
}

// Topic helpers. Group addresses contain slashes, which collide with
// MQTT topic levels, so the GA segment is URL-encoded: "1/2/3" becomes
// "1%2F2%2F3".

// StateTopic returns the topic state messages for ga are published on.
func StateTopic(prefix string, ga knx.GroupAddress) string {
	return fmt.Sprintf("%s/state/%s", prefix, ga.URLEncode())
}

// CommandTopic returns the topic commands for ga are received on.
func CommandTopic(prefix string, ga knx.GroupAddress) string {
	return fmt.Sprintf("%s/command/%s", prefix, ga.URLEncode())
}

// AckTopic returns the topic acks for ga are published on.
func AckTopic(prefix string, ga knx.GroupAddress) string {
	return fmt.Sprintf("%s/ack/%s", prefix, ga.URLEncode())
}

// HealthTopic returns the health status topic.
func HealthTopic(prefix string) string {
	return fmt.Sprintf("%s/health", prefix)
}

// CommandSubscribeTopic returns the wildcard subscription for commands.
func CommandSubscribeTopic(prefix string) string {
	return fmt.Sprintf("%s/command/#", prefix)
}
