package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/usul27/pknx/bridge"
	"github.com/usul27/pknx/internal/infrastructure/config"
	"github.com/usul27/pknx/internal/infrastructure/database"
	"github.com/usul27/pknx/internal/infrastructure/logging"
	"github.com/usul27/pknx/internal/infrastructure/mqtt"
	"github.com/usul27/pknx/knx"
	"github.com/usul27/pknx/recorder"
	"github.com/usul27/pknx/timesync"
	"github.com/usul27/pknx/tunnel"
)

// Reconnect backoff bounds for the daemon's tunnel watchdog.
const (
	reconnectInitialDelay = 1 * time.Second
	reconnectMaxDelay     = 30 * time.Second
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Run the MQTT bridge daemon",
	Long: `Connect to the gateway and the MQTT broker and run until
interrupted.

The daemon publishes bus telegrams as retained state messages, executes
write/read/toggle commands received over MQTT, reports health with a
Last Will for crash detection, and keeps a SQLite inventory of the
group addresses and devices seen on the bus. A lost tunnel is
reconnected with exponential backoff. With time_sync enabled it also
writes the wall clock to the configured group addresses on a fixed
interval.

Example:
  pknx bridge --config /etc/pknx/pknx.yaml`,
	Args: cobra.NoArgs,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
}

func runBridge(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg, false)
	log.Info("starting pknx bridge", "version", version)

	// Tunnel to the KNX gateway.
	t, err := openTunnel(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeTunnel(t, log)

	// Address inventory, optional.
	var rec *recorder.Recorder
	if cfg.Database.Enabled {
		db, dbErr := database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if dbErr != nil {
			return fmt.Errorf("opening database: %w", dbErr)
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				log.Error("closing database", "error", closeErr)
			}
		}()

		rec = recorder.New(db.DB)
		rec.SetLogger(log.With("component", "recorder"))
		if startErr := rec.Start(); startErr != nil {
			return fmt.Errorf("starting recorder: %w", startErr)
		}
		defer rec.Stop()
		log.Info("address inventory enabled", "path", cfg.Database.Path)
	}

	// MQTT broker connection, with the bridge's Last Will so consumers
	// see "offline" if the daemon dies.
	bridgeCfg := bridge.Config{
		ID:             cfg.Bridge.ID,
		TopicPrefix:    cfg.Bridge.TopicPrefix,
		HealthInterval: cfg.Bridge.GetHealthInterval(),
		CommandTimeout: cfg.Bridge.GetCommandTimeout(),
		DPT:            cfg.Bridge.DPT,
	}
	will, err := bridgeWill(cfg)
	if err != nil {
		return err
	}
	broker, err := mqtt.Connect(cfg.MQTT, will)
	if err != nil {
		return fmt.Errorf("connecting to MQTT broker: %w", err)
	}
	broker.SetLogger(log.With("component", "mqtt"))
	defer func() {
		if closeErr := broker.Close(); closeErr != nil {
			log.Error("closing MQTT connection", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
	)

	opts := bridge.Options{
		Config:    bridgeCfg,
		Publisher: broker,
		Client:    t,
		Logger:    log.With("component", "bridge"),
		Version:   version,
	}
	if rec != nil {
		opts.Recorder = rec
	}
	b, err := bridge.New(opts)
	if err != nil {
		return err
	}
	if err := b.Start(ctx); err != nil {
		return err
	}
	defer b.Stop()

	// Bus clock updates, optional.
	if cfg.TimeSync.Enabled {
		updater, tsErr := newTimeSync(cfg, t)
		if tsErr != nil {
			return tsErr
		}
		updater.SetLogger(log.With("component", "timesync"))
		updater.Start()
		defer updater.Stop()
		log.Info("time sync enabled", "interval", cfg.TimeSync.GetInterval().String())
	}

	watchTunnel(ctx, t, log)

	log.Info("shutting down")
	return nil
}

// newTimeSync builds the clock updater from the daemon config.
func newTimeSync(cfg *config.Config, t *tunnel.Tunnel) (*timesync.Updater, error) {
	tsCfg := timesync.Config{Interval: cfg.TimeSync.GetInterval()}

	parse := func(field, value string, target **knx.GroupAddress) error {
		if value == "" {
			return nil
		}
		ga, err := knx.ParseGroupAddress(value)
		if err != nil {
			return fmt.Errorf("time_sync.%s: %w", field, err)
		}
		*target = &ga
		return nil
	}
	if err := parse("time_address", cfg.TimeSync.TimeAddress, &tsCfg.TimeAddress); err != nil {
		return nil, err
	}
	if err := parse("date_address", cfg.TimeSync.DateAddress, &tsCfg.DateAddress); err != nil {
		return nil, err
	}
	if err := parse("datetime_address", cfg.TimeSync.DateTimeAddress, &tsCfg.DateTimeAddress); err != nil {
		return nil, err
	}

	updater, err := timesync.New(t, tsCfg)
	if err != nil {
		return nil, fmt.Errorf("configuring time sync: %w", err)
	}
	return updater, nil
}

// bridgeWill builds the Last Will registered with the broker.
func bridgeWill(cfg *config.Config) (*mqtt.Will, error) {
	h := bridge.NewHealthReporter(bridge.HealthReporterConfig{
		BridgeID:    cfg.Bridge.ID,
		TopicPrefix: cfg.Bridge.TopicPrefix,
	})
	payload, err := h.LWTPayload()
	if err != nil {
		return nil, fmt.Errorf("building LWT payload: %w", err)
	}
	return &mqtt.Will{Topic: h.LWTTopic(), Payload: string(payload)}, nil
}

// watchTunnel blocks until ctx is cancelled, reconnecting the tunnel
// with exponential backoff whenever the session drops.
func watchTunnel(ctx context.Context, t *tunnel.Tunnel, log *logging.Logger) {
	lost := make(chan struct{}, 1)
	t.SetOnStateChange(func(s tunnel.State) {
		if s == tunnel.StateDisconnected {
			select {
			case lost <- struct{}{}:
			default:
			}
		}
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-lost:
		}

		delay := reconnectInitialDelay
		for {
			log.Warn("tunnel lost, reconnecting", "delay", delay.String())
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			if err := t.Connect(ctx); err == nil {
				log.Info("tunnel reconnected")
				break
			} else if ctx.Err() != nil {
				return
			} else {
				log.Error("reconnect failed", "error", err)
			}

			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
		}
	}
}
