package tunnel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/usul27/pknx/knxnet"
)

// pendingRequest tracks the one in-flight tunneling request.
type pendingRequest struct {
	seq  uint8
	done chan error
}

// correlator matches TUNNELING_ACKs to requests by sequence number.
//
// The protocol permits one outstanding request per connection: sendMu
// serializes callers, so a second concurrent write blocks until the
// first resolves. Sequence numbers increase by one per request and
// wrap at 256; an ack with a mismatched number is counted and ignored.
type correlator struct {
	sendMu sync.Mutex

	mu      sync.Mutex
	pending *pendingRequest
	seq     uint8

	retransmits atomic.Uint64
	mismatches  atomic.Uint64
}

func newCorrelator() *correlator {
	return &correlator{}
}

// reset clears the sequence counter for a new session. Any pending
// request must already have been failed by the caller.
func (c *correlator) reset() {
	c.mu.Lock()
	c.seq = 0
	c.pending = nil
	c.mu.Unlock()
}

// nextSeq hands out the next sequence number, wrapping at 256.
func (c *correlator) nextSeq() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq := c.seq
	c.seq++ // uint8 wraps naturally
	return seq
}

// sendAndAwaitAck transmits frame and waits for its ack. On a first
// timeout the identical frame is retransmitted once; a second timeout
// returns ErrAckTimeout, which the caller must treat as fatal to the
// session. Cancellation via ctx abandons the pending entry without
// touching the connection.
func (c *correlator) sendAndAwaitAck(
	ctx context.Context,
	seq uint8,
	frame []byte,
	send func([]byte) error,
	timeout time.Duration,
) error {
	p := &pendingRequest{seq: seq, done: make(chan error, 1)}

	c.mu.Lock()
	c.pending = p
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.pending == p {
			c.pending = nil
		}
		c.mu.Unlock()
	}()

	const attempts = 2 // initial transmission plus one retransmit
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			c.retransmits.Add(1)
		}

		if err := send(frame); err != nil {
			return err
		}

		timer := time.NewTimer(timeout)
		select {
		case err := <-p.done:
			timer.Stop()
			return err
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w: seq %d unacknowledged after retransmit", ErrAckTimeout, seq)
}

// handleAck resolves the pending request if the sequence number
// matches. Called from the dispatch loop.
func (c *correlator) handleAck(seq, status uint8) {
	c.mu.Lock()
	p := c.pending
	if p == nil || p.seq != seq {
		c.mu.Unlock()
		c.mismatches.Add(1)
		return
	}
	c.pending = nil
	c.mu.Unlock()

	if status != knxnet.StatusNoError {
		p.done <- fmt.Errorf("%w: ack status 0x%02X", ErrAckStatus, status)
		return
	}
	p.done <- nil
}

// failPending resolves the pending request with err, if any. Called
// when the session dies.
func (c *correlator) failPending(err error) {
	c.mu.Lock()
	p := c.pending
	c.pending = nil
	c.mu.Unlock()

	if p != nil {
		p.done <- err
	}
}
