// Package recorder keeps a passive inventory of the live KNX bus in
// SQLite: every observed telegram upserts its destination group address
// and source device with liveness counters. Values are never stored;
// this is an address inventory, not a history store.
package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/usul27/pknx/knx"
)

// Service names recorded per group address.
const (
	ServiceWrite    = "write"
	ServiceRead     = "read"
	ServiceResponse = "response"
)

// schema is created on Start. The recorder owns these tables.
const schema = `
CREATE TABLE IF NOT EXISTS group_addresses (
	group_address     TEXT PRIMARY KEY,
	first_seen        INTEGER NOT NULL,
	last_seen         INTEGER NOT NULL,
	message_count     INTEGER NOT NULL DEFAULT 0,
	last_service      TEXT NOT NULL DEFAULT '',
	has_read_response INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS devices (
	individual_address TEXT PRIMARY KEY,
	first_seen         INTEGER NOT NULL,
	last_seen          INTEGER NOT NULL,
	message_count      INTEGER NOT NULL DEFAULT 0
);
`

// GroupAddressRecord is one row of the group address inventory.
type GroupAddressRecord struct {
	Address         string
	FirstSeen       time.Time
	LastSeen        time.Time
	MessageCount    int64
	LastService     string
	HasReadResponse bool
}

// DeviceRecord is one row of the device inventory.
type DeviceRecord struct {
	Address      string
	FirstSeen    time.Time
	LastSeen     time.Time
	MessageCount int64
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Recorder records group addresses and source devices seen on the bus.
//
// Thread safety: all methods are safe for concurrent use. Failed
// upserts are logged and dropped; recording never blocks the telegram
// path on errors.
type Recorder struct {
	db     *sql.DB
	logger Logger

	stmtMu     sync.Mutex
	gaStmt     *sql.Stmt
	deviceStmt *sql.Stmt

	mu     sync.RWMutex
	closed bool
}

// New creates a recorder on db. Call Start before recording.
func New(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// Start creates the schema and prepares the upsert statements.
// Safe to call more than once.
func (r *Recorder) Start() error {
	r.stmtMu.Lock()
	defer r.stmtMu.Unlock()

	if r.gaStmt != nil {
		return nil
	}

	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("recorder: creating schema: %w", err)
	}

	gaStmt, err := r.db.Prepare(`
		INSERT INTO group_addresses (group_address, first_seen, last_seen, message_count, last_service, has_read_response)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(group_address) DO UPDATE SET
			last_seen = excluded.last_seen,
			message_count = message_count + 1,
			last_service = excluded.last_service,
			has_read_response = MAX(has_read_response, excluded.has_read_response)
	`)
	if err != nil {
		return fmt.Errorf("recorder: preparing group address upsert: %w", err)
	}

	deviceStmt, err := r.db.Prepare(`
		INSERT INTO devices (individual_address, first_seen, last_seen, message_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(individual_address) DO UPDATE SET
			last_seen = excluded.last_seen,
			message_count = message_count + 1
	`)
	if err != nil {
		gaStmt.Close()
		return fmt.Errorf("recorder: preparing device upsert: %w", err)
	}

	r.gaStmt = gaStmt
	r.deviceStmt = deviceStmt
	r.logInfo("recorder started")
	return nil
}

// Stop closes the prepared statements. Telegrams recorded afterwards
// are silently dropped.
func (r *Recorder) Stop() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.stmtMu.Lock()
	defer r.stmtMu.Unlock()

	if r.gaStmt != nil {
		r.gaStmt.Close()
		r.gaStmt = nil
	}
	if r.deviceStmt != nil {
		r.deviceStmt.Close()
		r.deviceStmt = nil
	}
	r.logInfo("recorder stopped")
}

// Observe records one telegram with its full service classification.
func (r *Recorder) Observe(tel knx.Telegram) {
	service := ServiceWrite
	switch {
	case tel.IsRead():
		service = ServiceRead
	case tel.IsResponse():
		service = ServiceResponse
	}
	r.record(tel.Source, tel.Destination, service)
}

// RecordTelegram records a telegram by source, destination, and
// response flag. It satisfies the bridge's Recorder interface.
func (r *Recorder) RecordTelegram(source knx.IndividualAddress, ga knx.GroupAddress, isResponse bool) {
	service := ServiceWrite
	if isResponse {
		service = ServiceResponse
	}
	r.record(source, ga, service)
}

func (r *Recorder) record(source knx.IndividualAddress, ga knx.GroupAddress, service string) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return
	}
	r.mu.RUnlock()

	r.stmtMu.Lock()
	gaStmt := r.gaStmt
	deviceStmt := r.deviceStmt
	r.stmtMu.Unlock()

	if gaStmt == nil || deviceStmt == nil {
		return
	}

	now := time.Now().Unix()

	// 0.0.0 is the placeholder source the tunneling client sends with;
	// it is not a device.
	if source != (knx.IndividualAddress{}) {
		if _, err := deviceStmt.Exec(source.String(), now, now); err != nil {
			r.logError("recording device", err)
		}
	}

	hasResponse := 0
	if service == ServiceResponse {
		hasResponse = 1
	}
	if _, err := gaStmt.Exec(ga.String(), now, now, service, hasResponse); err != nil {
		r.logError("recording group address", err)
	}
}

// GroupAddresses lists the inventory, most recently seen first.
func (r *Recorder) GroupAddresses(ctx context.Context) ([]GroupAddressRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT group_address, first_seen, last_seen, message_count, last_service, has_read_response
		FROM group_addresses
		ORDER BY last_seen DESC, group_address ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("recorder: querying group addresses: %w", err)
	}
	defer rows.Close()

	var records []GroupAddressRecord
	for rows.Next() {
		var rec GroupAddressRecord
		var firstSeen, lastSeen int64
		var hasResponse int
		if err := rows.Scan(&rec.Address, &firstSeen, &lastSeen, &rec.MessageCount, &rec.LastService, &hasResponse); err != nil {
			return nil, fmt.Errorf("recorder: scanning group address: %w", err)
		}
		rec.FirstSeen = time.Unix(firstSeen, 0)
		rec.LastSeen = time.Unix(lastSeen, 0)
		rec.HasReadResponse = hasResponse != 0
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Devices lists the device inventory, most recently seen first.
func (r *Recorder) Devices(ctx context.Context) ([]DeviceRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT individual_address, first_seen, last_seen, message_count
		FROM devices
		ORDER BY last_seen DESC, individual_address ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("recorder: querying devices: %w", err)
	}
	defer rows.Close()

	var records []DeviceRecord
	for rows.Next() {
		var rec DeviceRecord
		var firstSeen, lastSeen int64
		if err := rows.Scan(&rec.Address, &firstSeen, &lastSeen, &rec.MessageCount); err != nil {
			return nil, fmt.Errorf("recorder: scanning device: %w", err)
		}
		rec.FirstSeen = time.Unix(firstSeen, 0)
		rec.LastSeen = time.Unix(lastSeen, 0)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GroupAddressCount returns the number of recorded group addresses.
func (r *Recorder) GroupAddressCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM group_addresses`).Scan(&count)
	return count, err
}

// DeviceCount returns the number of recorded devices.
func (r *Recorder) DeviceCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices`).Scan(&count)
	return count, err
}

func (r *Recorder) logInfo(msg string, keysAndValues ...any) {
	if r.logger != nil {
		r.logger.Info(msg, keysAndValues...)
	}
}

func (r *Recorder) logError(msg string, err error) {
	if r.logger != nil {
		r.logger.Error(msg, "error", err)
	}
}
