package bridge

import (
	"fmt"
	"time"

	"github.com/usul27/pknx/knx"
)

// Default bridge settings.
const (
	defaultHealthInterval = 30 * time.Second
	defaultCommandTimeout = 5 * time.Second
)

// Config holds bridge settings. TopicPrefix and the intervals fall back
// to defaults when zero.
type Config struct {
	// ID identifies this bridge in health messages.
	ID string `yaml:"id"`

	// TopicPrefix is the base MQTT topic. Default: "pknx".
	TopicPrefix string `yaml:"topic_prefix"`

	// HealthInterval is how often health status is published.
	// Default: 30 seconds.
	HealthInterval time.Duration `yaml:"health_interval"`

	// CommandTimeout bounds each command's bus operation.
	// Default: 5 seconds.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// DPT maps group addresses to datapoint types, e.g.
	// "5/0/1": "9.001". Addresses without a mapping are published
	// raw-only.
	DPT map[string]string `yaml:"dpt"`
}

// Validate checks the config and reports the first problem found.
func (c *Config) Validate() error {
	for ga, dpt := range c.DPT {
		if _, err := knx.ParseGroupAddress(ga); err != nil {
			return fmt.Errorf("dpt map: %w", err)
		}
		if dpt == "" {
			return fmt.Errorf("dpt map: empty type for %s", ga)
		}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.ID == "" {
		c.ID = "pknx"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = DefaultTopicPrefix
	}
	if c.HealthInterval == 0 {
		c.HealthInterval = defaultHealthInterval
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = defaultCommandTimeout
	}
	return c
}
