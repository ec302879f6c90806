package knxnet

import (
	"encoding/binary"
	"fmt"

	"github.com/usul27/pknx/knx"
)

// Service is one decoded KNXnet/IP service body. The set of
// implementations is closed: Decode produces exactly the types below
// and rejects everything else with ErrUnknownServiceType.
type Service interface {
	ServiceType() uint16
}

// ConnectResponse answers a CONNECT_REQUEST. Status is zero on success;
// DataEndpoint is where the server wants tunneling traffic sent.
type ConnectResponse struct {
	Channel      uint8
	Status       uint8
	DataEndpoint HPAI
}

func (ConnectResponse) ServiceType() uint16 { return ServiceConnectResponse }

// ConnectionStateResponse answers a heartbeat CONNECTIONSTATE_REQUEST.
type ConnectionStateResponse struct {
	Channel uint8
	Status  uint8
}

func (ConnectionStateResponse) ServiceType() uint16 { return ServiceConnectionStateResp }

// DisconnectRequest is sent by either side to tear down a channel.
type DisconnectRequest struct {
	Channel         uint8
	ControlEndpoint HPAI
}

func (DisconnectRequest) ServiceType() uint16 { return ServiceDisconnectRequest }

// DisconnectResponse acknowledges a DISCONNECT_REQUEST.
type DisconnectResponse struct {
	Channel uint8
	Status  uint8
}

func (DisconnectResponse) ServiceType() uint16 { return ServiceDisconnectResponse }

// TunnelingRequest carries one bus telegram in either direction.
type TunnelingRequest struct {
	Channel  uint8
	Seq      uint8
	CEMICode byte
	Telegram knx.Telegram
}

func (TunnelingRequest) ServiceType() uint16 { return ServiceTunnelingRequest }

// TunnelingAck acknowledges a TUNNELING_REQUEST by sequence number.
type TunnelingAck struct {
	Channel uint8
	Seq     uint8
	Status  uint8
}

func (TunnelingAck) ServiceType() uint16 { return ServiceTunnelingAck }

// SearchResponse announces a gateway found by discovery.
type SearchResponse struct {
	Endpoint HPAI
	Name     string
}

func (SearchResponse) ServiceType() uint16 { return ServiceSearchResponse }

// Decode parses one KNXnet/IP datagram into its service body.
//
// The switch over the service type is exhaustive for the tunneling
// client service set; anything else fails with ErrUnknownServiceType so
// the dispatcher can drop it.
func Decode(data []byte) (Service, error) {
	if len(data) < headerLen {
		return nil, fmt.Errorf("%w: datagram shorter than header (%d bytes)", ErrMalformedHeader, len(data))
	}
	if data[0] != headerLen || data[1] != protocolVersion {
		return nil, fmt.Errorf("%w: bad magic %02X %02X", ErrMalformedHeader, data[0], data[1])
	}
	total := binary.BigEndian.Uint16(data[4:6])
	if int(total) != len(data) {
		return nil, fmt.Errorf("%w: declared length %d, datagram %d", ErrMalformedHeader, total, len(data))
	}

	serviceType := binary.BigEndian.Uint16(data[2:4])
	body := data[headerLen:]

	switch serviceType {
	case ServiceConnectResponse:
		return decodeConnectResponse(body)
	case ServiceConnectionStateResp:
		return decodeConnectionStateResponse(body)
	case ServiceDisconnectRequest:
		return decodeDisconnectRequest(body)
	case ServiceDisconnectResponse:
		return decodeDisconnectResponse(body)
	case ServiceTunnelingRequest:
		return decodeTunnelingRequest(body)
	case ServiceTunnelingAck:
		return decodeTunnelingAck(body)
	case ServiceSearchResponse:
		return decodeSearchResponse(body)
	default:
		return nil, fmt.Errorf("%w: 0x%04X", ErrUnknownServiceType, serviceType)
	}
}

func decodeConnectResponse(body []byte) (Service, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("%w: connect response needs 2 bytes, got %d", ErrTruncatedBody, len(body))
	}
	resp := ConnectResponse{Channel: body[0], Status: body[1]}
	// Error responses may omit the HPAI and CRD.
	if resp.Status == StatusNoError {
		if len(body) < 2+hpaiLen {
			return nil, fmt.Errorf("%w: connect response missing data endpoint", ErrTruncatedBody)
		}
		hpai, err := parseHPAI(body[2:])
		if err != nil {
			return nil, err
		}
		resp.DataEndpoint = hpai
	}
	return resp, nil
}

func decodeConnectionStateResponse(body []byte) (Service, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("%w: connectionstate response needs 2 bytes, got %d", ErrTruncatedBody, len(body))
	}
	return ConnectionStateResponse{Channel: body[0], Status: body[1]}, nil
}

func decodeDisconnectRequest(body []byte) (Service, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("%w: disconnect request needs 2 bytes, got %d", ErrTruncatedBody, len(body))
	}
	req := DisconnectRequest{Channel: body[0]}
	if len(body) >= 2+hpaiLen {
		hpai, err := parseHPAI(body[2:])
		if err != nil {
			return nil, err
		}
		req.ControlEndpoint = hpai
	}
	return req, nil
}

func decodeDisconnectResponse(body []byte) (Service, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("%w: disconnect response needs 2 bytes, got %d", ErrTruncatedBody, len(body))
	}
	return DisconnectResponse{Channel: body[0], Status: body[1]}, nil
}

func decodeTunnelingRequest(body []byte) (Service, error) {
	if len(body) < connHeaderLen {
		return nil, fmt.Errorf("%w: tunneling request needs connection header, got %d bytes", ErrTruncatedBody, len(body))
	}
	telegram, code, err := DecodeCEMI(body[connHeaderLen:])
	if err != nil {
		return nil, err
	}
	return TunnelingRequest{
		Channel:  body[1],
		Seq:      body[2],
		CEMICode: code,
		Telegram: telegram,
	}, nil
}

func decodeTunnelingAck(body []byte) (Service, error) {
	if len(body) < connHeaderLen {
		return nil, fmt.Errorf("%w: tunneling ack needs %d bytes, got %d", ErrTruncatedBody, connHeaderLen, len(body))
	}
	return TunnelingAck{Channel: body[1], Seq: body[2], Status: body[3]}, nil
}

// Device-information DIB layout inside a SEARCH_RESPONSE: the friendly
// name occupies 30 bytes starting at offset 24 of the DIB.
const (
	dibDeviceInfo     = 0x01
	dibNameOffset     = 24
	dibNameLen        = 30
	searchResponseMin = hpaiLen
)

func decodeSearchResponse(body []byte) (Service, error) {
	if len(body) < searchResponseMin {
		return nil, fmt.Errorf("%w: search response needs HPAI, got %d bytes", ErrTruncatedBody, len(body))
	}
	hpai, err := parseHPAI(body)
	if err != nil {
		return nil, err
	}
	resp := SearchResponse{Endpoint: hpai}

	// Walk optional DIBs for the friendly name.
	rest := body[hpaiLen:]
	for len(rest) >= 2 {
		dibLen := int(rest[0])
		if dibLen < 2 || dibLen > len(rest) {
			break
		}
		if rest[1] == dibDeviceInfo && dibLen >= dibNameOffset+dibNameLen {
			name := rest[dibNameOffset : dibNameOffset+dibNameLen]
			resp.Name = trimNul(name)
		}
		rest = rest[dibLen:]
	}
	return resp, nil
}

func trimNul(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// EncodeConnectRequest builds a CONNECT_REQUEST for a link-layer tunnel.
// Both HPAIs describe the client; control and data endpoints may be the
// same socket.
func EncodeConnectRequest(control, data HPAI) []byte {
	body := make([]byte, 0, 2*hpaiLen+4)
	body = append(body, control.encode()...)
	body = append(body, data.encode()...)
	// CRI: tunnel connection, link layer, reserved
	body = append(body, connHeaderLen, tunnelConnection, tunnelLinkLayer, 0x00)
	return frame(ServiceConnectRequest, body)
}

// EncodeConnectionStateRequest builds the heartbeat request.
func EncodeConnectionStateRequest(channel uint8, control HPAI) []byte {
	body := make([]byte, 0, 2+hpaiLen)
	body = append(body, channel, 0x00)
	body = append(body, control.encode()...)
	return frame(ServiceConnectionStateRequest, body)
}

// EncodeDisconnectRequest builds a client-initiated teardown request.
func EncodeDisconnectRequest(channel uint8, control HPAI) []byte {
	body := make([]byte, 0, 2+hpaiLen)
	body = append(body, channel, 0x00)
	body = append(body, control.encode()...)
	return frame(ServiceDisconnectRequest, body)
}

// EncodeDisconnectResponse acknowledges a server-initiated teardown.
func EncodeDisconnectResponse(channel, status uint8) []byte {
	return frame(ServiceDisconnectResponse, []byte{channel, status})
}

// EncodeTunnelingRequest wraps one telegram for the wire. The telegram
// payload must already satisfy knx.ValidatePayload.
func EncodeTunnelingRequest(channel, seq uint8, telegram knx.Telegram) []byte {
	cemi := EncodeCEMI(telegram)
	body := make([]byte, 0, connHeaderLen+len(cemi))
	body = append(body, connHeader(channel, seq, 0x00)...)
	body = append(body, cemi...)
	return frame(ServiceTunnelingRequest, body)
}

// EncodeTunnelingAck acknowledges a received TUNNELING_REQUEST.
func EncodeTunnelingAck(channel, seq, status uint8) []byte {
	return frame(ServiceTunnelingAck, connHeader(channel, seq, status))
}

// EncodeSearchRequest builds a discovery request carrying the endpoint
// the gateways should answer to.
func EncodeSearchRequest(control HPAI) []byte {
	return frame(ServiceSearchRequest, control.encode())
}
