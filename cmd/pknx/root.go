package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/usul27/pknx/discovery"
	"github.com/usul27/pknx/internal/infrastructure/config"
	"github.com/usul27/pknx/internal/infrastructure/logging"
	"github.com/usul27/pknx/tunnel"
)

var (
	configPath  string
	gatewayAddr string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "pknx",
	Short: "KNXnet/IP tunneling client",
	Long: `pknx talks to a KNX installation through a KNXnet/IP gateway.

It can discover gateways on the local network, read and write group
addresses from the command line, monitor live bus traffic, and run as
a daemon that bridges the bus to MQTT.

The gateway is taken from --gateway, the config file, or multicast
discovery, in that order.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (YAML)")
	rootCmd.PersistentFlags().StringVarP(&gatewayAddr, "gateway", "g", "", "Gateway address as host or host:port")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// Execute runs the root command with a context that cancels on
// interrupt signals, so every subcommand shuts down gracefully on
// Ctrl+C or SIGTERM.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig loads the config file if one was given, or the defaults.
// Flag overrides are applied on top.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if gatewayAddr != "" {
		host, port, err := net.SplitHostPort(gatewayAddr)
		if err != nil {
			// Bare host, keep the configured port.
			cfg.Gateway.Host = gatewayAddr
		} else {
			cfg.Gateway.Host = host
			fmt.Sscanf(port, "%d", &cfg.Gateway.Port) //nolint:errcheck
		}
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	return cfg, nil
}

// newLogger builds the logger from config. CLI commands log to stderr
// so results on stdout stay machine-readable.
func newLogger(cfg *config.Config, toStderr bool) *logging.Logger {
	logCfg := cfg.Logging
	if toStderr {
		logCfg.Output = "stderr"
		logCfg.Format = "text"
	}
	return logging.New(logCfg, version)
}

// resolveGateway returns the gateway endpoint, running multicast
// discovery when none is configured.
func resolveGateway(ctx context.Context, cfg *config.Config, log *logging.Logger) (*net.UDPAddr, error) {
	if addr := cfg.GatewayAddr(); addr != "" {
		udpAddr, err := net.ResolveUDPAddr("udp4", addr)
		if err != nil {
			return nil, fmt.Errorf("resolving gateway address %q: %w", addr, err)
		}
		return udpAddr, nil
	}

	log.Info("no gateway configured, discovering")
	gateways, err := discovery.Discover(ctx, discovery.Options{})
	if err != nil {
		return nil, fmt.Errorf("discovering gateways: %w", err)
	}
	if len(gateways) == 0 {
		return nil, errors.New("no KNXnet/IP gateway found; specify one with --gateway")
	}
	log.Info("gateway discovered", "gateway", gateways[0].String())
	return gateways[0].Addr, nil
}

// tunnelConfig converts the file config into tunnel timeouts.
func tunnelConfig(cfg *config.Config) tunnel.Config {
	return tunnel.Config{
		ConnectTimeout:    cfg.Tunnel.GetConnectTimeout(),
		HeartbeatInterval: cfg.Tunnel.GetHeartbeatInterval(),
		HeartbeatTimeout:  cfg.Tunnel.GetHeartbeatTimeout(),
		AckTimeout:        cfg.Tunnel.GetAckTimeout(),
		ReadTimeout:       cfg.Tunnel.GetReadTimeout(),
		DisconnectTimeout: cfg.Tunnel.GetDisconnectTimeout(),
	}
}

// openTunnel connects a tunnel to the configured (or discovered)
// gateway. The caller owns the returned tunnel and must Close it.
func openTunnel(ctx context.Context, cfg *config.Config, log *logging.Logger) (*tunnel.Tunnel, error) {
	gateway, err := resolveGateway(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("opening UDP socket: %w", err)
	}

	t, err := tunnel.New(conn, gateway, tunnelConfig(cfg))
	if err != nil {
		conn.Close() //nolint:errcheck
		return nil, err
	}
	t.SetLogger(log.With("component", "tunnel"))

	if err := t.Connect(ctx); err != nil {
		t.Close() //nolint:errcheck
		return nil, fmt.Errorf("connecting to gateway %s: %w", gateway, err)
	}
	log.Debug("tunnel established", "gateway", gateway.String())

	return t, nil
}

// closeTunnel disconnects and closes, logging rather than failing.
func closeTunnel(t *tunnel.Tunnel, log *logging.Logger) {
	if err := t.Close(); err != nil {
		log.Warn("closing tunnel", "error", err)
	}
}
