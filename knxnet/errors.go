package knxnet

import "errors"

// Decode errors. The tunnel dispatcher absorbs these (dropped and
// counted); they are never fatal to a session.
var (
	// ErrMalformedHeader is returned when the 6-byte KNXnet/IP header is
	// missing, has the wrong magic, or declares a length that does not
	// match the datagram.
	ErrMalformedHeader = errors.New("knxnet: malformed header")

	// ErrUnknownServiceType is returned when the service type identifier
	// is not part of the tunneling service set.
	ErrUnknownServiceType = errors.New("knxnet: unknown service type")

	// ErrTruncatedBody is returned when a service body is shorter than
	// its layout requires.
	ErrTruncatedBody = errors.New("knxnet: truncated body")

	// ErrUnsupportedAPCI is returned when a cEMI frame carries an
	// application control field other than group read/write/response.
	ErrUnsupportedAPCI = errors.New("knxnet: unsupported APCI")
)
