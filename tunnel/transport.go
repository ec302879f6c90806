package tunnel

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// maxDatagramSize bounds one KNXnet/IP datagram. Tunneling frames are
// far smaller; the headroom covers search responses with DIBs.
const maxDatagramSize = 512

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Packet is one received datagram with its source address.
type Packet struct {
	Data []byte
	Addr net.Addr
}

// Transport wraps one already-open UDP socket. It owns the single
// receive loop; received datagrams are delivered on Recv in arrival
// order. Send is safe for concurrent callers. Socket creation and
// binding are the caller's concern.
type Transport struct {
	conn net.PacketConn
	recv chan Packet
	done *closeOnce
	wg   sync.WaitGroup

	framesTx atomic.Uint64
	framesRx atomic.Uint64
}

// NewTransport wraps conn and starts the receive loop.
func NewTransport(conn net.PacketConn) *Transport {
	t := &Transport{
		conn: conn,
		recv: make(chan Packet, 64),
		done: newCloseOnce(),
	}
	t.wg.Add(1)
	go t.readLoop()
	return t
}

// Recv returns the receive channel. It is closed when the transport stops.
func (t *Transport) Recv() <-chan Packet {
	return t.recv
}

// LocalAddr returns the socket's local address.
func (t *Transport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Send writes one datagram to the given address.
func (t *Transport) Send(data []byte, addr net.Addr) error {
	select {
	case <-t.done.Done():
		return ErrClosed
	default:
	}

	if _, err := t.conn.WriteTo(data, addr); err != nil {
		return fmt.Errorf("transport send: %w", err)
	}
	t.framesTx.Add(1)
	return nil
}

// Stop closes the transport and waits for the receive loop to exit.
// The underlying socket is closed.
func (t *Transport) Stop() {
	t.done.Close()

	// Unblock a pending read before closing.
	t.conn.SetReadDeadline(time.Now())
	t.conn.Close()
	t.wg.Wait()
}

// FramesSent returns the number of datagrams sent.
func (t *Transport) FramesSent() uint64 { return t.framesTx.Load() }

// FramesReceived returns the number of datagrams received.
func (t *Transport) FramesReceived() uint64 { return t.framesRx.Load() }

func (t *Transport) readLoop() {
	defer t.wg.Done()
	defer close(t.recv)

	buf := make([]byte, maxDatagramSize)

	for {
		select {
		case <-t.done.Done():
			return
		default:
		}

		n, addr, err := t.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-t.done.Done():
				return
			default:
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			// UDP read errors are transient; keep serving.
			continue
		}
		if n == 0 {
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		t.framesRx.Add(1)

		select {
		case t.recv <- Packet{Data: data, Addr: addr}:
		case <-t.done.Done():
			return
		}
	}
}
