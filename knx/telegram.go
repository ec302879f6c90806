package knx

import (
	"fmt"
	"time"
)

// APCI (Application Protocol Control Information) codes.
// These define the type of group communication.
const (
	// APCIRead is a group read request (asks device for current value).
	APCIRead byte = 0x00

	// APCIResponse is a group read response (device answers read request).
	APCIResponse byte = 0x40

	// APCIWrite is a group write (sends value to devices listening on GA).
	APCIWrite byte = 0x80
)

// MaxPayloadLen is the largest payload a short-APDU group telegram can
// carry over a tunneling connection. Longer payloads must be rejected
// before any encoding or network activity.
const MaxPayloadLen = 14

// Telegram represents a KNX group telegram.
//
// A telegram is the basic unit of communication on the KNX bus.
// It carries a command (read/write/response) and optional data
// to a destination group address. Telegrams are immutable once
// constructed.
type Telegram struct {
	// Source is the sender's individual address. Zero for telegrams
	// originated by this client; the gateway fills in the real source.
	Source IndividualAddress

	// Destination is the target group address.
	Destination GroupAddress

	// APCI indicates the telegram type (read, response, or write).
	APCI byte

	// Data contains the DPT-encoded payload (empty for reads).
	Data []byte

	// Timestamp records when the telegram was received or created.
	Timestamp time.Time
}

// IsWrite returns true if this is a group write telegram.
func (t Telegram) IsWrite() bool {
	return t.APCI == APCIWrite
}

// IsRead returns true if this is a group read request.
func (t Telegram) IsRead() bool {
	return t.APCI == APCIRead
}

// IsResponse returns true if this is a group read response.
func (t Telegram) IsResponse() bool {
	return t.APCI == APCIResponse
}

// String returns a human-readable representation of the telegram.
func (t Telegram) String() string {
	apciStr := "UNKNOWN"
	switch t.APCI {
	case APCIRead:
		apciStr = "READ"
	case APCIResponse:
		apciStr = "RESPONSE"
	case APCIWrite:
		apciStr = "WRITE"
	}

	return fmt.Sprintf("Telegram{Src:%s, GA:%s, APCI:%s, Data:%X}", t.Source, t.Destination, apciStr, t.Data)
}

// NewWriteTelegram creates a new group write telegram.
func NewWriteTelegram(dest GroupAddress, data []byte) Telegram {
	return Telegram{
		Destination: dest,
		APCI:        APCIWrite,
		Data:        data,
		Timestamp:   time.Now(),
	}
}

// NewReadTelegram creates a new group read request telegram.
func NewReadTelegram(dest GroupAddress) Telegram {
	return Telegram{
		Destination: dest,
		APCI:        APCIRead,
		Data:        nil,
		Timestamp:   time.Now(),
	}
}

// NewResponseTelegram creates a new group read response telegram.
// Clients rarely send these; devices answering a read do.
func NewResponseTelegram(dest GroupAddress, data []byte) Telegram {
	return Telegram{
		Destination: dest,
		APCI:        APCIResponse,
		Data:        data,
		Timestamp:   time.Now(),
	}
}

// ValidatePayload checks that a write or response payload is non-empty
// and within the short-APDU limit.
func ValidatePayload(data []byte) error {
	if len(data) == 0 {
		return ErrEmptyPayload
	}
	if len(data) > MaxPayloadLen {
		return fmt.Errorf("%w: got %d bytes", ErrPayloadTooLarge, len(data))
	}
	return nil
}
