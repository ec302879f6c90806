package knxnet

import (
	"encoding/binary"
	"fmt"
	"net"
)

// KNXnet/IP service type identifiers (big-endian on the wire).
const (
	ServiceSearchRequest          uint16 = 0x0201
	ServiceSearchResponse         uint16 = 0x0202
	ServiceConnectRequest         uint16 = 0x0205
	ServiceConnectResponse        uint16 = 0x0206
	ServiceConnectionStateRequest uint16 = 0x0207
	ServiceConnectionStateResp    uint16 = 0x0208
	ServiceDisconnectRequest      uint16 = 0x0209
	ServiceDisconnectResponse     uint16 = 0x020A
	ServiceTunnelingRequest       uint16 = 0x0420
	ServiceTunnelingAck           uint16 = 0x0421
)

// Frame header constants.
const (
	// headerLen is the fixed KNXnet/IP header size.
	headerLen = 6

	// protocolVersion is KNXnet/IP protocol version 1.0.
	protocolVersion = 0x10

	// hpaiLen is the size of a Host Protocol Address Information block.
	hpaiLen = 8

	// hostProtocolUDP identifies IPv4 UDP in an HPAI.
	hostProtocolUDP = 0x01

	// connHeaderLen is the tunneling connection header size.
	connHeaderLen = 4

	// tunnelConnection is the CRI connection type for tunneling.
	tunnelConnection = 0x04

	// tunnelLinkLayer is the CRI KNX layer for link-layer tunneling.
	tunnelLinkLayer = 0x02
)

// Connection status codes carried in CONNECT_RESPONSE and acks.
const (
	StatusNoError           = 0x00
	StatusConnectionType    = 0x22 // requested connection type unsupported
	StatusConnectionOption  = 0x23 // requested options unsupported
	StatusNoMoreConnections = 0x24 // all tunnel channels in use
)

// HPAI is a Host Protocol Address Information block: one IPv4 UDP
// endpoint as it appears on the wire.
type HPAI struct {
	IP   net.IP
	Port uint16
}

// HPAIFromUDPAddr builds an HPAI from a resolved UDP address.
func HPAIFromUDPAddr(addr *net.UDPAddr) HPAI {
	return HPAI{IP: addr.IP.To4(), Port: uint16(addr.Port)}
}

// UDPAddr converts the HPAI to a net.UDPAddr.
func (h HPAI) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: h.IP, Port: int(h.Port)}
}

func (h HPAI) String() string {
	return fmt.Sprintf("%s:%d", h.IP, h.Port)
}

func (h HPAI) encode() []byte {
	buf := make([]byte, hpaiLen)
	buf[0] = hpaiLen
	buf[1] = hostProtocolUDP
	if ip4 := h.IP.To4(); ip4 != nil {
		copy(buf[2:6], ip4)
	}
	binary.BigEndian.PutUint16(buf[6:8], h.Port)
	return buf
}

func parseHPAI(data []byte) (HPAI, error) {
	if len(data) < hpaiLen {
		return HPAI{}, fmt.Errorf("%w: HPAI needs %d bytes, got %d", ErrTruncatedBody, hpaiLen, len(data))
	}
	ip := make(net.IP, 4)
	copy(ip, data[2:6])
	return HPAI{IP: ip, Port: binary.BigEndian.Uint16(data[6:8])}, nil
}

// header returns the 6-byte KNXnet/IP header for a body of the given size.
func header(serviceType uint16, bodyLen int) []byte {
	buf := make([]byte, headerLen)
	buf[0] = headerLen
	buf[1] = protocolVersion
	binary.BigEndian.PutUint16(buf[2:4], serviceType)
	binary.BigEndian.PutUint16(buf[4:6], uint16(headerLen+bodyLen))
	return buf
}

// frame concatenates a header and body into one datagram.
func frame(serviceType uint16, body []byte) []byte {
	return append(header(serviceType, len(body)), body...)
}

// connHeader returns the 4-byte tunneling connection header.
func connHeader(channel, seq, status uint8) []byte {
	return []byte{connHeaderLen, channel, seq, status}
}
