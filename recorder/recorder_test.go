package recorder

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/usul27/pknx/knx"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	r := New(db)
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(r.Stop)
	return r
}

func TestRecorderUpsertsGroupAddress(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	ga := knx.GroupAddress{Main: 1, Middle: 2, Sub: 3}
	src := knx.IndividualAddress{Area: 1, Line: 1, Device: 4}

	r.RecordTelegram(src, ga, false)
	r.RecordTelegram(src, ga, false)
	r.RecordTelegram(src, ga, true)

	records, err := r.GroupAddresses(ctx)
	if err != nil {
		t.Fatalf("GroupAddresses: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}

	rec := records[0]
	if rec.Address != "1/2/3" {
		t.Errorf("Address = %q, want 1/2/3", rec.Address)
	}
	if rec.MessageCount != 3 {
		t.Errorf("MessageCount = %d, want 3", rec.MessageCount)
	}
	if rec.LastService != ServiceResponse {
		t.Errorf("LastService = %q, want response", rec.LastService)
	}
	if !rec.HasReadResponse {
		t.Error("HasReadResponse = false, want true")
	}
}

func TestRecorderReadResponseSticky(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	ga := knx.GroupAddress{Main: 5, Middle: 0, Sub: 1}
	src := knx.IndividualAddress{Area: 1, Line: 1, Device: 4}

	// Once an address answered a read, subsequent writes must not
	// clear the flag.
	r.RecordTelegram(src, ga, true)
	r.RecordTelegram(src, ga, false)

	records, err := r.GroupAddresses(ctx)
	if err != nil {
		t.Fatalf("GroupAddresses: %v", err)
	}
	if !records[0].HasReadResponse {
		t.Error("HasReadResponse cleared by later write")
	}
	if records[0].LastService != ServiceWrite {
		t.Errorf("LastService = %q, want write", records[0].LastService)
	}
}

func TestRecorderTracksDevices(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	ga := knx.GroupAddress{Main: 1, Middle: 2, Sub: 3}
	r.RecordTelegram(knx.IndividualAddress{Area: 1, Line: 1, Device: 4}, ga, false)
	r.RecordTelegram(knx.IndividualAddress{Area: 1, Line: 1, Device: 4}, ga, false)
	r.RecordTelegram(knx.IndividualAddress{Area: 1, Line: 1, Device: 7}, ga, false)

	devices, err := r.Devices(ctx)
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(devices))
	}

	count, err := r.DeviceCount(ctx)
	if err != nil || count != 2 {
		t.Fatalf("DeviceCount = %d, %v; want 2", count, err)
	}
}

func TestRecorderSkipsZeroSource(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	// The tunneling client sends with source 0.0.0; that is not a
	// device on the bus.
	r.RecordTelegram(knx.IndividualAddress{}, knx.GroupAddress{Main: 1, Middle: 2, Sub: 3}, false)

	count, err := r.DeviceCount(ctx)
	if err != nil || count != 0 {
		t.Fatalf("DeviceCount = %d, %v; want 0", count, err)
	}
	gaCount, err := r.GroupAddressCount(ctx)
	if err != nil || gaCount != 1 {
		t.Fatalf("GroupAddressCount = %d, %v; want 1", gaCount, err)
	}
}

func TestRecorderObserveClassifiesService(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	ga := knx.GroupAddress{Main: 6, Middle: 0, Sub: 1}
	read := knx.NewReadTelegram(ga)
	read.Source = knx.IndividualAddress{Area: 1, Line: 1, Device: 4}
	r.Observe(read)

	records, err := r.GroupAddresses(ctx)
	if err != nil {
		t.Fatalf("GroupAddresses: %v", err)
	}
	if records[0].LastService != ServiceRead {
		t.Errorf("LastService = %q, want read", records[0].LastService)
	}
	if records[0].HasReadResponse {
		t.Error("HasReadResponse = true for a read request")
	}
}

func TestRecorderStoppedDropsSilently(t *testing.T) {
	r := newTestRecorder(t)
	r.Stop()

	// Must not panic or error after Stop.
	r.RecordTelegram(knx.IndividualAddress{Area: 1, Line: 1, Device: 4},
		knx.GroupAddress{Main: 1, Middle: 2, Sub: 3}, false)
}
