package tunnel

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCorrelatorNextSeq(t *testing.T) {
	c := newCorrelator()

	for i := 0; i < 5; i++ {
		if got := c.nextSeq(); got != uint8(i) {
			t.Fatalf("nextSeq() = %d, want %d", got, i)
		}
	}

	c.reset()
	if got := c.nextSeq(); got != 0 {
		t.Fatalf("nextSeq() after reset = %d, want 0", got)
	}
}

func TestCorrelatorSeqWrapsAt256(t *testing.T) {
	c := newCorrelator()
	c.seq = 255

	if got := c.nextSeq(); got != 255 {
		t.Fatalf("nextSeq() = %d, want 255", got)
	}
	if got := c.nextSeq(); got != 0 {
		t.Fatalf("nextSeq() after 255 = %d, want 0", got)
	}
}

func TestCorrelatorAckResolvesRequest(t *testing.T) {
	c := newCorrelator()
	sent := make(chan struct{}, 2)

	go func() {
		<-sent
		c.handleAck(7, 0x00)
	}()

	err := c.sendAndAwaitAck(context.Background(), 7, []byte{0x01}, func([]byte) error {
		sent <- struct{}{}
		return nil
	}, time.Second)
	if err != nil {
		t.Fatalf("sendAndAwaitAck() = %v, want nil", err)
	}
	if got := c.retransmits.Load(); got != 0 {
		t.Fatalf("retransmits = %d, want 0", got)
	}
}

func TestCorrelatorRetransmitOnce(t *testing.T) {
	c := newCorrelator()

	var attempts int
	err := c.sendAndAwaitAck(context.Background(), 3, []byte{0x01}, func([]byte) error {
		attempts++
		if attempts == 2 {
			// Ack arrives only for the retransmission.
			go c.handleAck(3, 0x00)
		}
		return nil
	}, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("sendAndAwaitAck() = %v, want nil", err)
	}
	if attempts != 2 {
		t.Fatalf("send attempts = %d, want 2", attempts)
	}
	if got := c.retransmits.Load(); got != 1 {
		t.Fatalf("retransmits = %d, want 1", got)
	}
}

func TestCorrelatorSecondTimeoutFatal(t *testing.T) {
	c := newCorrelator()

	var attempts int
	err := c.sendAndAwaitAck(context.Background(), 9, []byte{0x01}, func([]byte) error {
		attempts++
		return nil
	}, 10*time.Millisecond)
	if !errors.Is(err, ErrAckTimeout) {
		t.Fatalf("sendAndAwaitAck() = %v, want ErrAckTimeout", err)
	}
	if attempts != 2 {
		t.Fatalf("send attempts = %d, want 2", attempts)
	}
}

func TestCorrelatorMismatchedAckIgnored(t *testing.T) {
	c := newCorrelator()
	done := make(chan error, 1)

	go func() {
		done <- c.sendAndAwaitAck(context.Background(), 5, []byte{0x01}, func([]byte) error {
			return nil
		}, 200*time.Millisecond)
	}()

	// Wrong sequence number must not resolve the pending request.
	time.Sleep(20 * time.Millisecond)
	c.handleAck(6, 0x00)

	select {
	case err := <-done:
		t.Fatalf("request resolved by mismatched ack: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	c.handleAck(5, 0x00)
	if err := <-done; err != nil {
		t.Fatalf("sendAndAwaitAck() = %v, want nil", err)
	}
	if got := c.mismatches.Load(); got != 1 {
		t.Fatalf("mismatches = %d, want 1", got)
	}
}

func TestCorrelatorAckErrorStatus(t *testing.T) {
	c := newCorrelator()

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.handleAck(0, 0x29)
	}()

	err := c.sendAndAwaitAck(context.Background(), 0, []byte{0x01}, func([]byte) error {
		return nil
	}, time.Second)
	if !errors.Is(err, ErrAckStatus) {
		t.Fatalf("sendAndAwaitAck() = %v, want ErrAckStatus", err)
	}
}

func TestCorrelatorFailPending(t *testing.T) {
	c := newCorrelator()
	done := make(chan error, 1)

	go func() {
		done <- c.sendAndAwaitAck(context.Background(), 1, []byte{0x01}, func([]byte) error {
			return nil
		}, time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	c.failPending(ErrConnectionLost)

	if err := <-done; !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("sendAndAwaitAck() = %v, want ErrConnectionLost", err)
	}
}

func TestCorrelatorContextCancel(t *testing.T) {
	c := newCorrelator()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := c.sendAndAwaitAck(ctx, 2, []byte{0x01}, func([]byte) error {
		return nil
	}, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("sendAndAwaitAck() = %v, want context.Canceled", err)
	}
}
