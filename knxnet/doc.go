// Package knxnet implements the KNXnet/IP wire format used by the
// tunneling client: the 6-byte frame header, the tunneling service
// bodies, and the embedded cEMI bus telegram format.
//
// # Frames
//
// Every datagram starts with a fixed header:
//
//	Byte 0: header length (0x06)
//	Byte 1: protocol version (0x10)
//	Byte 2-3: service type identifier
//	Byte 4-5: total frame length
//
// All multi-byte fields are big-endian. Decode parses a complete
// datagram into one of the Service implementations; the set is closed
// over the tunneling service set (connect, connection state,
// disconnect, tunneling request/ack, search response). Unknown service
// types and malformed frames fail with sentinel errors the dispatcher
// drops and counts.
//
// # cEMI
//
// Tunneling bodies embed a bus telegram in cEMI L_Data format. Payloads
// of a single byte up to 0x3F travel packed into the APCI byte itself;
// longer payloads follow as separate octets, up to the 14-byte
// short-APDU limit.
//
// Encode functions never fail for well-formed input; payload size is
// validated by callers before encoding is attempted.
package knxnet
