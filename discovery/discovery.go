// Package discovery finds KNXnet/IP gateways via SEARCH_REQUEST
// multicast. Every gateway on the link answers with its control
// endpoint and friendly name.
package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/usul27/pknx/knxnet"
)

// DefaultMulticastAddr is the KNXnet/IP system setup multicast group.
var DefaultMulticastAddr = &net.UDPAddr{IP: net.IPv4(224, 0, 23, 12), Port: 3671}

// DefaultTimeout is how long Discover collects responses.
const DefaultTimeout = 3 * time.Second

// Gateway is one discovered KNXnet/IP endpoint.
type Gateway struct {
	// Name is the friendly name from the device information DIB,
	// empty when the gateway did not include one.
	Name string

	// Addr is the gateway's control endpoint.
	Addr *net.UDPAddr
}

func (g Gateway) String() string {
	if g.Name == "" {
		return g.Addr.String()
	}
	return fmt.Sprintf("%s (%s)", g.Name, g.Addr)
}

// Options tunes a discovery run. The zero value searches the standard
// multicast group for DefaultTimeout.
type Options struct {
	// Addr overrides the search destination, e.g. a gateway's unicast
	// address when multicast is not routed.
	Addr *net.UDPAddr

	// Timeout bounds the collection window. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Discover broadcasts a SEARCH_REQUEST and collects responses until the
// timeout or ctx expires, whichever comes first. Duplicate answers from
// the same endpoint are folded into one Gateway.
func Discover(ctx context.Context, opts Options) ([]Gateway, error) {
	dest := opts.Addr
	if dest == nil {
		dest = DefaultMulticastAddr
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("discovery: open socket: %w", err)
	}
	defer conn.Close()

	local, err := responseHPAI(conn, dest)
	if err != nil {
		return nil, err
	}

	if _, err := conn.WriteToUDP(knxnet.EncodeSearchRequest(local), dest); err != nil {
		return nil, fmt.Errorf("discovery: send search request: %w", err)
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	var gateways []Gateway
	seen := make(map[string]bool)
	buf := make([]byte, 512)

	for {
		if err := ctx.Err(); err != nil {
			return gateways, err
		}

		conn.SetReadDeadline(deadline)
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return gateways, nil
			}
			return gateways, fmt.Errorf("discovery: read: %w", err)
		}

		svc, err := knxnet.Decode(buf[:n])
		if err != nil {
			continue
		}
		resp, ok := svc.(knxnet.SearchResponse)
		if !ok {
			continue
		}

		addr := resp.Endpoint.UDPAddr()
		if seen[addr.String()] {
			continue
		}
		seen[addr.String()] = true
		gateways = append(gateways, Gateway{Name: resp.Name, Addr: addr})
	}
}

// responseHPAI derives the endpoint the gateways should answer to. A
// socket bound to the unspecified address needs a concrete outbound IP.
func responseHPAI(conn *net.UDPConn, dest *net.UDPAddr) (knxnet.HPAI, error) {
	local := conn.LocalAddr().(*net.UDPAddr)

	ip := local.IP
	if ip == nil || ip.IsUnspecified() {
		probe, err := net.Dial("udp4", dest.String())
		if err != nil {
			return knxnet.HPAI{}, fmt.Errorf("discovery: cannot determine local IP: %w", err)
		}
		ip = probe.LocalAddr().(*net.UDPAddr).IP
		probe.Close()
	}

	return knxnet.HPAI{IP: ip.To4(), Port: uint16(local.Port)}, nil
}
