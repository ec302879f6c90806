package knxnet

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/usul27/pknx/knx"
)

// cEMI message codes.
const (
	// CEMILDataReq carries a telegram from client to bus.
	CEMILDataReq byte = 0x11

	// CEMILDataInd carries a telegram observed on the bus.
	CEMILDataInd byte = 0x29

	// CEMILDataCon confirms a client-originated telegram reached the bus.
	CEMILDataCon byte = 0x2E
)

// Fixed control fields for client-originated frames: standard frame,
// no repeat, broadcast, normal priority / group address, hop count 6.
const (
	cemiCtrl1 = 0xBC
	cemiCtrl2 = 0xE0
)

// cemiMinLen is the smallest complete L_Data frame: code, additional
// info length, two control bytes, source, destination, NPDU length,
// TPCI and APCI bytes.
const cemiMinLen = 11

// smallPayloadMax is the largest value that packs into the APCI byte.
const smallPayloadMax = 0x3F

// EncodeCEMI encodes a telegram as an L_Data.req frame.
//
// Single-byte payloads up to 0x3F are packed into the low six bits of
// the second APCI byte; anything longer is appended after it. A
// zero-length write or response payload encodes to the same bytes as a
// packed 0x00 and would decode as []byte{0x00}; callers reject empty
// payloads via knx.ValidatePayload before encoding.
func EncodeCEMI(t knx.Telegram) []byte {
	small := len(t.Data) == 1 && t.Data[0] <= smallPayloadMax

	var npduLen byte
	switch {
	case len(t.Data) == 0 || small:
		npduLen = 1
	default:
		npduLen = byte(1 + len(t.Data))
	}

	buf := make([]byte, 0, cemiMinLen+len(t.Data))
	buf = append(buf, CEMILDataReq, 0x00, cemiCtrl1, cemiCtrl2)

	addr := make([]byte, 4)
	binary.BigEndian.PutUint16(addr[0:2], t.Source.ToUint16())
	binary.BigEndian.PutUint16(addr[2:4], t.Destination.ToUint16())
	buf = append(buf, addr...)

	buf = append(buf, npduLen, 0x00) // NPDU length, TPCI
	if small {
		buf = append(buf, t.APCI|(t.Data[0]&smallPayloadMax))
	} else {
		buf = append(buf, t.APCI)
		buf = append(buf, t.Data...)
	}
	return buf
}

// DecodeCEMI decodes an L_Data frame into a telegram, returning the
// message code alongside so callers can distinguish indications from
// confirmations.
func DecodeCEMI(data []byte) (knx.Telegram, byte, error) {
	if len(data) < 2 {
		return knx.Telegram{}, 0, fmt.Errorf("%w: cEMI frame too short (%d bytes)", ErrTruncatedBody, len(data))
	}

	code := data[0]
	// Skip additional info, if any.
	offset := int(data[1])
	if len(data) < cemiMinLen+offset {
		return knx.Telegram{}, 0, fmt.Errorf("%w: cEMI frame needs %d bytes, got %d", ErrTruncatedBody, cemiMinLen+offset, len(data))
	}

	src := binary.BigEndian.Uint16(data[4+offset : 6+offset])
	dst := binary.BigEndian.Uint16(data[6+offset : 8+offset])
	npduLen := int(data[8+offset])

	apdu := data[10+offset:]
	if len(apdu) != npduLen {
		return knx.Telegram{}, 0, fmt.Errorf("%w: NPDU length %d, APDU has %d bytes", ErrTruncatedBody, npduLen, len(apdu))
	}

	tpciAPCI := binary.BigEndian.Uint16(data[9+offset : 11+offset])
	apci := tpciAPCI & 0x3FF

	var service byte
	switch {
	case apci&0x080 != 0:
		service = knx.APCIWrite
	case apci == 0:
		service = knx.APCIRead
	case apci&0x040 != 0:
		service = knx.APCIResponse
	default:
		return knx.Telegram{}, 0, fmt.Errorf("%w: APCI 0x%03X", ErrUnsupportedAPCI, apci)
	}

	var payload []byte
	switch {
	case service == knx.APCIRead:
		// Reads carry no value.
	case npduLen == 1:
		payload = []byte{apdu[0] & smallPayloadMax}
	default:
		payload = make([]byte, npduLen-1)
		copy(payload, data[11+offset:])
	}

	return knx.Telegram{
		Source:      knx.IndividualAddressFromUint16(src),
		Destination: knx.GroupAddressFromUint16(dst),
		APCI:        service,
		Data:        payload,
		Timestamp:   time.Now(),
	}, code, nil
}
