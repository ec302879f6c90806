package tunnel

import "errors"

// Domain errors for the tunneling client.
//
// The taxonomy separates per-call failures (ErrReadTimeout, ErrCacheMiss,
// ErrAckStatus) from session-fatal failures (ErrAckTimeout,
// ErrConnectionLost) so callers can decide between retrying one call and
// reconnecting.
var (
	// ErrNotConnected is returned when an operation requires an
	// established tunnel but the state is not Connected.
	ErrNotConnected = errors.New("tunnel: not connected")

	// ErrAlreadyConnected is returned by Connect when a connection
	// attempt is already in progress or established.
	ErrAlreadyConnected = errors.New("tunnel: already connected")

	// ErrConnectTimeout is returned when the gateway does not answer a
	// CONNECT_REQUEST within the connect timeout.
	ErrConnectTimeout = errors.New("tunnel: connect timed out")

	// ErrConnectionRefused is returned when the gateway answers a
	// CONNECT_REQUEST with a non-zero status.
	ErrConnectionRefused = errors.New("tunnel: connection refused by gateway")

	// ErrAckTimeout is returned when a tunneling request is not
	// acknowledged after the retransmit. Fatal to the session: the
	// gateway is required to ack within the window, so a miss implies
	// link failure.
	ErrAckTimeout = errors.New("tunnel: acknowledgement timed out")

	// ErrAckStatus is returned when the gateway acknowledges a request
	// with a non-zero status. Scoped to the one call.
	ErrAckStatus = errors.New("tunnel: gateway rejected request")

	// ErrConnectionLost is surfaced to all pending calls when the
	// session dies (heartbeat failure, ack timeout, server teardown).
	ErrConnectionLost = errors.New("tunnel: connection lost")

	// ErrReadTimeout is returned when no response telegram arrives for a
	// group read within the bus timeout. Not fatal to the session.
	ErrReadTimeout = errors.New("tunnel: group read timed out")

	// ErrCacheMiss is returned when the cache has no fresh entry for a
	// group address.
	ErrCacheMiss = errors.New("tunnel: cache miss")

	// ErrNotToggleable is returned by GroupToggle when the current value
	// is not a single boolean byte.
	ErrNotToggleable = errors.New("tunnel: value is not toggleable")

	// ErrClosed is returned when using a tunnel after Close.
	ErrClosed = errors.New("tunnel: closed")
)
