package tunnel

import "time"

// Default timeouts and intervals for the tunneling connection.
// All of them are protocol defaults and configurable via Config.
const (
	// defaultConnectTimeout is the maximum wait for a CONNECT_RESPONSE.
	defaultConnectTimeout = 10 * time.Second

	// defaultHeartbeatInterval is the pause between CONNECTIONSTATE
	// requests while connected.
	defaultHeartbeatInterval = 60 * time.Second

	// defaultHeartbeatTimeout is the maximum wait for a heartbeat
	// response before the connection is declared lost.
	defaultHeartbeatTimeout = 10 * time.Second

	// defaultAckTimeout is the maximum wait for a TUNNELING_ACK before
	// the one permitted retransmit.
	defaultAckTimeout = 1 * time.Second

	// defaultReadTimeout is the maximum wait for a GroupValueResponse
	// after a group read.
	defaultReadTimeout = 2 * time.Second

	// defaultDisconnectTimeout bounds the best-effort wait for a
	// DISCONNECT_RESPONSE.
	defaultDisconnectTimeout = 3 * time.Second

	// defaultSubscriberBuffer is the per-subscriber update buffer.
	defaultSubscriberBuffer = 16

	// callbackQueueSize is the buffer size for the telegram callback queue.
	callbackQueueSize = 100

	// callbackWorkerCount is the number of concurrent callback workers.
	callbackWorkerCount = 4
)

// Config holds the tunable timeouts of one tunneling connection.
// Zero values fall back to the protocol defaults.
type Config struct {
	// ConnectTimeout is the maximum wait for a CONNECT_RESPONSE.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// HeartbeatInterval is the pause between keepalive probes.
	// Default: 60 seconds.
	HeartbeatInterval time.Duration

	// HeartbeatTimeout is the maximum wait for a keepalive response.
	// A miss is fatal to the session. Default: 10 seconds.
	HeartbeatTimeout time.Duration

	// AckTimeout is the wait for a TUNNELING_ACK before the single
	// retransmit. Default: 1 second.
	AckTimeout time.Duration

	// ReadTimeout is the default wait for a GroupValueResponse after a
	// group read. Default: 2 seconds.
	ReadTimeout time.Duration

	// DisconnectTimeout bounds the best-effort teardown wait.
	// Default: 3 seconds.
	DisconnectTimeout time.Duration

	// SubscriberBuffer is the per-subscriber update buffer size.
	// Overflow drops the oldest unread update. Default: 16.
	SubscriberBuffer int
}

// withDefaults returns a copy with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if c.AckTimeout == 0 {
		c.AckTimeout = defaultAckTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.DisconnectTimeout == 0 {
		c.DisconnectTimeout = defaultDisconnectTimeout
	}
	if c.SubscriberBuffer == 0 {
		c.SubscriberBuffer = defaultSubscriberBuffer
	}
	return c
}
