package timesync

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/usul27/pknx/knx"
)

type recordedWrite struct {
	ga   knx.GroupAddress
	data []byte
}

type fakeWriter struct {
	mu     sync.Mutex
	writes []recordedWrite
	failGA *knx.GroupAddress
}

var errWriteRefused = errors.New("write refused")

func (w *fakeWriter) GroupWrite(_ context.Context, ga knx.GroupAddress, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failGA != nil && *w.failGA == ga {
		return errWriteRefused
	}
	w.writes = append(w.writes, recordedWrite{ga: ga, data: append([]byte(nil), data...)})
	return nil
}

func (w *fakeWriter) recorded() []recordedWrite {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]recordedWrite(nil), w.writes...)
}

func ga(main, middle, sub uint8) *knx.GroupAddress {
	return &knx.GroupAddress{Main: main, Middle: middle, Sub: sub}
}

func TestNewRequiresWriterAndAddress(t *testing.T) {
	if _, err := New(nil, Config{TimeAddress: ga(9, 0, 1)}); err == nil {
		t.Fatal("New(nil writer) = nil, want error")
	}
	if _, err := New(&fakeWriter{}, Config{}); !errors.Is(err, ErrNoAddresses) {
		t.Fatalf("New without addresses = %v, want ErrNoAddresses", err)
	}
}

func TestSendNowWritesAllConfiguredAddresses(t *testing.T) {
	w := &fakeWriter{}
	u, err := New(w, Config{
		TimeAddress:     ga(9, 0, 1),
		DateAddress:     ga(9, 0, 2),
		DateTimeAddress: ga(9, 0, 3),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// A Friday, so the KNX day of week is 5.
	now := time.Date(2024, time.March, 15, 10, 30, 45, 0, time.UTC)
	u.now = func() time.Time { return now }

	if err := u.SendNow(context.Background()); err != nil {
		t.Fatalf("SendNow: %v", err)
	}

	writes := w.recorded()
	if len(writes) != 3 {
		t.Fatalf("got %d writes, want 3", len(writes))
	}

	wantTime := knx.EncodeDPT10(5, now)
	wantDate, err := knx.EncodeDPT11(now)
	if err != nil {
		t.Fatalf("EncodeDPT11: %v", err)
	}
	wantDateTime, err := knx.EncodeDPT19(now)
	if err != nil {
		t.Fatalf("EncodeDPT19: %v", err)
	}

	if writes[0].ga != *ga(9, 0, 1) || !bytes.Equal(writes[0].data, wantTime) {
		t.Errorf("time write = %s % X, want %s % X", writes[0].ga, writes[0].data, ga(9, 0, 1), wantTime)
	}
	if writes[1].ga != *ga(9, 0, 2) || !bytes.Equal(writes[1].data, wantDate) {
		t.Errorf("date write = %s % X, want %s % X", writes[1].ga, writes[1].data, ga(9, 0, 2), wantDate)
	}
	if writes[2].ga != *ga(9, 0, 3) || !bytes.Equal(writes[2].data, wantDateTime) {
		t.Errorf("datetime write = %s % X, want %s % X", writes[2].ga, writes[2].data, ga(9, 0, 3), wantDateTime)
	}
}

func TestSendNowSundayMapsToSeven(t *testing.T) {
	w := &fakeWriter{}
	u, err := New(w, Config{TimeAddress: ga(9, 0, 1)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	now := time.Date(2024, time.March, 17, 8, 0, 0, 0, time.UTC)
	u.now = func() time.Time { return now }

	if err := u.SendNow(context.Background()); err != nil {
		t.Fatalf("SendNow: %v", err)
	}

	writes := w.recorded()
	if len(writes) != 1 {
		t.Fatalf("got %d writes, want 1", len(writes))
	}
	if dow := writes[0].data[0] >> 5; dow != 7 {
		t.Fatalf("day of week = %d, want 7", dow)
	}
}

func TestSendNowContinuesPastFailure(t *testing.T) {
	w := &fakeWriter{failGA: ga(9, 0, 1)}
	u, err := New(w, Config{
		TimeAddress: ga(9, 0, 1),
		DateAddress: ga(9, 0, 2),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	u.now = func() time.Time { return time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC) }

	sendErr := u.SendNow(context.Background())
	if !errors.Is(sendErr, errWriteRefused) {
		t.Fatalf("SendNow = %v, want wrapped write error", sendErr)
	}

	writes := w.recorded()
	if len(writes) != 1 || writes[0].ga != *ga(9, 0, 2) {
		t.Fatalf("surviving writes = %+v, want the date write only", writes)
	}
}

func TestUpdaterLoopSendsPeriodically(t *testing.T) {
	w := &fakeWriter{}
	u, err := New(w, Config{
		Interval:    20 * time.Millisecond,
		TimeAddress: ga(9, 0, 1),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	u.Start()
	u.Start() // idempotent
	defer u.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(w.recorded()) >= 2 {
			u.Stop()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("loop produced %d writes, want at least 2", len(w.recorded()))
}
