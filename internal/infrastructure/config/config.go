package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for pknx.
// All configuration is loaded from YAML and can be overridden by
// environment variables.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Tunnel   TunnelConfig   `yaml:"tunnel"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	TimeSync TimeSyncConfig `yaml:"time_sync"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GatewayConfig identifies the KNXnet/IP gateway to tunnel through.
// An empty host means the gateway is found by multicast discovery.
type GatewayConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// TunnelConfig contains tunneling connection timeouts, in seconds.
// Zero values fall back to the protocol defaults.
type TunnelConfig struct {
	ConnectTimeout    int `yaml:"connect_timeout"`
	HeartbeatInterval int `yaml:"heartbeat_interval"`
	HeartbeatTimeout  int `yaml:"heartbeat_timeout"`
	AckTimeout        int `yaml:"ack_timeout"`
	ReadTimeout       int `yaml:"read_timeout"`
	DisconnectTimeout int `yaml:"disconnect_timeout"`
}

// DatabaseConfig contains SQLite settings for the address inventory.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// BridgeConfig contains MQTT bridge settings.
type BridgeConfig struct {
	ID             string `yaml:"id"`
	TopicPrefix    string `yaml:"topic_prefix"`
	HealthInterval int    `yaml:"health_interval"`
	CommandTimeout int    `yaml:"command_timeout"`

	// DPT maps group addresses to datapoint types, e.g. "5/0/1": "9.001".
	// Addresses without a mapping are published raw-only.
	DPT map[string]string `yaml:"dpt"`
}

// TimeSyncConfig controls the periodic bus clock updates. Interval is
// in seconds; addresses left empty are not written.
type TimeSyncConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Interval        int    `yaml:"interval"`
	TimeAddress     string `yaml:"time_address"`
	DateAddress     string `yaml:"date_address"`
	DateTimeAddress string `yaml:"datetime_address"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
//
// The loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern PKNX_SECTION_KEY, for
// example PKNX_GATEWAY_HOST or PKNX_MQTT_PASSWORD.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults. It is also the
// configuration used when no config file is given.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Port: 3671,
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/pknx.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "pknx",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Bridge: BridgeConfig{
			ID:          "pknx",
			TopicPrefix: "pknx",
		},
		TimeSync: TimeSyncConfig{
			Interval: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PKNX_GATEWAY_HOST"); v != "" {
		cfg.Gateway.Host = v
	}
	if v := os.Getenv("PKNX_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("PKNX_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("PKNX_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PKNX_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PKNX_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("PKNX_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration and reports all problems found.
func (c *Config) Validate() error {
	var errs []string

	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		errs = append(errs, "gateway.port must be between 1 and 65535")
	}
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database.enabled is true")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.TimeSync.Enabled &&
		c.TimeSync.TimeAddress == "" && c.TimeSync.DateAddress == "" && c.TimeSync.DateTimeAddress == "" {
		errs = append(errs, "time_sync requires at least one of time_address, date_address, datetime_address")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GatewayAddr returns the gateway endpoint as "host:port", or an empty
// string when no gateway host is configured.
func (c *Config) GatewayAddr() string {
	if c.Gateway.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Gateway.Host, c.Gateway.Port)
}

// seconds converts a configured value in seconds to a Duration,
// returning zero for zero so downstream defaults still apply.
func seconds(v int) time.Duration {
	return time.Duration(v) * time.Second
}

// GetConnectTimeout returns the tunnel connect timeout as a Duration.
func (c TunnelConfig) GetConnectTimeout() time.Duration { return seconds(c.ConnectTimeout) }

// GetHeartbeatInterval returns the keepalive interval as a Duration.
func (c TunnelConfig) GetHeartbeatInterval() time.Duration { return seconds(c.HeartbeatInterval) }

// GetHeartbeatTimeout returns the keepalive timeout as a Duration.
func (c TunnelConfig) GetHeartbeatTimeout() time.Duration { return seconds(c.HeartbeatTimeout) }

// GetAckTimeout returns the tunneling ack timeout as a Duration.
func (c TunnelConfig) GetAckTimeout() time.Duration { return seconds(c.AckTimeout) }

// GetReadTimeout returns the group read timeout as a Duration.
func (c TunnelConfig) GetReadTimeout() time.Duration { return seconds(c.ReadTimeout) }

// GetDisconnectTimeout returns the disconnect timeout as a Duration.
func (c TunnelConfig) GetDisconnectTimeout() time.Duration { return seconds(c.DisconnectTimeout) }

// GetHealthInterval returns the health publish interval as a Duration.
func (c BridgeConfig) GetHealthInterval() time.Duration { return seconds(c.HealthInterval) }

// GetCommandTimeout returns the per-command timeout as a Duration.
func (c BridgeConfig) GetCommandTimeout() time.Duration { return seconds(c.CommandTimeout) }

// GetInterval returns the time sync cadence as a Duration.
func (c TimeSyncConfig) GetInterval() time.Duration { return seconds(c.Interval) }
