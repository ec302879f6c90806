package knx

import "errors"

// Domain errors for the KNX data model.
var (
	// ErrInvalidGroupAddress is returned when a group address string
	// cannot be parsed or a component is out of range.
	ErrInvalidGroupAddress = errors.New("knx: invalid group address")

	// ErrInvalidIndividualAddress is returned when an individual address
	// string cannot be parsed.
	ErrInvalidIndividualAddress = errors.New("knx: invalid individual address")

	// ErrInvalidDPT is returned when a datapoint type identifier is invalid.
	ErrInvalidDPT = errors.New("knx: invalid datapoint type")

	// ErrEncodingFailed is returned when encoding a value to KNX format fails.
	ErrEncodingFailed = errors.New("knx: encoding failed")

	// ErrDecodingFailed is returned when decoding KNX data to a value fails.
	ErrDecodingFailed = errors.New("knx: decoding failed")

	// ErrPayloadTooLarge is returned when a telegram payload exceeds the
	// short-APDU limit. Checked before any encoding or network activity.
	ErrPayloadTooLarge = errors.New("knx: payload exceeds 14 bytes")

	// ErrEmptyPayload is returned when a write or response carries no
	// data. A zero-length APDU is indistinguishable on the wire from a
	// 1-byte 0x00 value, so empty payloads are rejected up front.
	ErrEmptyPayload = errors.New("knx: empty payload")
)
