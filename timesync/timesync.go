// Package timesync periodically writes the wall clock to configured
// group addresses so bus devices without their own RTC stay on time.
// Time of day goes out as DPT 10.001 and the date as DPT 11.001; a
// combined timestamp can be sent as DPT 19.001.
package timesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/usul27/pknx/knx"
)

// defaultInterval is used when the config leaves the interval zero.
const defaultInterval = time.Minute

// writeTimeout bounds each group write issued by the background loop.
const writeTimeout = 5 * time.Second

// ErrNoAddresses is returned by New when no target address is set.
var ErrNoAddresses = errors.New("timesync: no group address configured")

// GroupWriter is the bus access the updater needs. *tunnel.Tunnel
// satisfies it.
type GroupWriter interface {
	GroupWrite(ctx context.Context, ga knx.GroupAddress, data []byte) error
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Config selects the target addresses and the update cadence. A nil
// address means that representation is not sent; at least one must be
// set.
type Config struct {
	Interval        time.Duration
	TimeAddress     *knx.GroupAddress
	DateAddress     *knx.GroupAddress
	DateTimeAddress *knx.GroupAddress
}

// Updater drives periodic time writes on a background goroutine.
// Failed writes are logged and retried on the next tick; the loop
// never stops on its own.
type Updater struct {
	writer GroupWriter
	cfg    Config
	now    func() time.Time

	logger   Logger
	loggerMu sync.RWMutex

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
	startMu  sync.Mutex
}

// New creates an updater writing through w. It does not start sending
// until Start is called.
func New(w GroupWriter, cfg Config) (*Updater, error) {
	if w == nil {
		return nil, errors.New("timesync: nil group writer")
	}
	if cfg.TimeAddress == nil && cfg.DateAddress == nil && cfg.DateTimeAddress == nil {
		return nil, ErrNoAddresses
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	return &Updater{
		writer: w,
		cfg:    cfg,
		now:    time.Now,
		done:   make(chan struct{}),
	}, nil
}

// SetLogger sets the logger for the updater.
func (u *Updater) SetLogger(logger Logger) {
	u.loggerMu.Lock()
	u.logger = logger
	u.loggerMu.Unlock()
}

// Start launches the background loop. The first update is sent
// immediately, then every interval. Safe to call more than once.
func (u *Updater) Start() {
	u.startMu.Lock()
	defer u.startMu.Unlock()
	if u.started {
		return
	}
	u.started = true

	u.wg.Add(1)
	go u.loop()
}

// Stop terminates the background loop and waits for it to exit.
func (u *Updater) Stop() {
	u.stopOnce.Do(func() { close(u.done) })
	u.wg.Wait()
}

func (u *Updater) loop() {
	defer u.wg.Done()

	ticker := time.NewTicker(u.cfg.Interval)
	defer ticker.Stop()

	u.send()
	for {
		select {
		case <-u.done:
			return
		case <-ticker.C:
			u.send()
		}
	}
}

func (u *Updater) send() {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := u.SendNow(ctx); err != nil {
		u.logWarn("time update failed", "error", err)
	}
}

// SendNow writes the current time to every configured address. All
// targets are attempted even when one fails; the errors are joined.
func (u *Updater) SendNow(ctx context.Context) error {
	now := u.now()

	var errs []error
	if u.cfg.TimeAddress != nil {
		data := knx.EncodeDPT10(knxDayOfWeek(now), now)
		if err := u.writer.GroupWrite(ctx, *u.cfg.TimeAddress, data); err != nil {
			errs = append(errs, fmt.Errorf("time to %s: %w", u.cfg.TimeAddress, err))
		}
	}
	if u.cfg.DateAddress != nil {
		data, err := knx.EncodeDPT11(now)
		if err == nil {
			err = u.writer.GroupWrite(ctx, *u.cfg.DateAddress, data)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("date to %s: %w", u.cfg.DateAddress, err))
		}
	}
	if u.cfg.DateTimeAddress != nil {
		data, err := knx.EncodeDPT19(now)
		if err == nil {
			err = u.writer.GroupWrite(ctx, *u.cfg.DateTimeAddress, data)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("datetime to %s: %w", u.cfg.DateTimeAddress, err))
		}
	}
	return errors.Join(errs...)
}

// knxDayOfWeek converts Go's Sunday-based weekday to the KNX encoding
// where Monday is 1 and Sunday is 7.
func knxDayOfWeek(t time.Time) uint8 {
	if d := t.Weekday(); d != time.Sunday {
		return uint8(d)
	}
	return 7
}

func (u *Updater) logWarn(msg string, keysAndValues ...any) {
	u.loggerMu.RLock()
	logger := u.logger
	u.loggerMu.RUnlock()
	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
