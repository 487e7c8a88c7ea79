package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"pingmesh/discovery"
	"pingmesh/hwaddr"
	"pingmesh/peertable"
)

var log = logrus.New()

var ErrInvalidConfig = errors.New("invalid config")

// Config represents the configuration for a pingmesh node
type Config struct {
	// Default config file location
	configFile string

	// Node identity on the link
	Node struct {
		Address hwaddr.Addr `toml:"address"`
	} `toml:"node"`

	// Discovery settings are handed to the engine as-is. All periods are in milliseconds
	Discovery struct {
		Capacity   int    `toml:"capacity"`
		IntervalMs uint64 `toml:"interval_ms"`
		TimeoutMs  uint64 `toml:"timeout_ms"`
		PollMs     uint64 `toml:"poll_ms"`
	} `toml:"discovery"`

	Network struct {
		MulticastGroup string `toml:"group"`
		Interface      string `toml:"interface"`
		QueueSize      int    `toml:"queue_size"`
	} `toml:"network"`

	DataStore struct {
		JournalPath string `toml:"journal"`
		MaxEvents   uint64 `toml:"max_events"`
	} `toml:"datastore"`

	// Metrics are disabled when ListenAddress is empty
	Metrics struct {
		ListenAddress string `toml:"listen"`
		Namespace     string `toml:"namespace"`
	} `toml:"metrics"`
}

// NewEmptyConfig generates a new configuration with default settings
func NewEmptyConfig(configFile string) *Config {
	cfg := &Config{}

	cfg.configFile = configFile

	cfg.Discovery.Capacity = peertable.DefaultCapacity
	cfg.Discovery.IntervalMs = discovery.DefaultInterval
	cfg.Discovery.TimeoutMs = discovery.DefaultTimeout
	cfg.Discovery.PollMs = 5

	cfg.Network.MulticastGroup = "239.0.0.77:9777"
	cfg.Network.QueueSize = 64

	cfg.DataStore.JournalPath = "/tmp/pingmesh/journal"
	cfg.DataStore.MaxEvents = 10000

	cfg.Metrics.Namespace = "pingmesh"

	return cfg
}

func NewConfigFromFile(configFile string) (*Config, error) {
	cfg := NewEmptyConfig(configFile)
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Path() string {
	return c.configFile
}

// EngineConfig returns the discovery settings in the form the engine takes them
func (c *Config) EngineConfig() discovery.Config {
	return discovery.Config{
		Capacity: c.Discovery.Capacity,
		Interval: c.Discovery.IntervalMs,
		Timeout:  c.Discovery.TimeoutMs,
	}
}

func (c *Config) Validate() error {
	if c.Node.Address == (hwaddr.Addr{}) {
		return fmt.Errorf("%w: node address is not set", ErrInvalidConfig)
	}
	if c.Node.Address.IsBroadcast() {
		return fmt.Errorf("%w: node address %s is the broadcast address", ErrInvalidConfig, c.Node.Address)
	}
	if c.Discovery.Capacity < 0 {
		return fmt.Errorf("%w: capacity must not be negative", ErrInvalidConfig)
	}
	if c.Discovery.IntervalMs == 0 {
		return fmt.Errorf("%w: interval_ms must be positive", ErrInvalidConfig)
	}
	if c.Discovery.TimeoutMs == 0 {
		return fmt.Errorf("%w: timeout_ms must be positive", ErrInvalidConfig)
	}
	if c.Discovery.PollMs == 0 {
		return fmt.Errorf("%w: poll_ms must be positive", ErrInvalidConfig)
	}
	if c.Network.MulticastGroup == "" {
		return fmt.Errorf("%w: multicast group is not set", ErrInvalidConfig)
	}
	return nil
}

// Save saves the configuration to a file
func (c *Config) Save() error {
	log.Infof("Saving config to %s", c.configFile)

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return err
	}
	if dir := filepath.Dir(c.configFile); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(c.configFile, buf.Bytes(), 0644)
}

func (c *Config) Load() error {
	log.Infof("Loading config from %s", c.configFile)

	md, err := toml.DecodeFile(c.configFile, c)
	if err != nil {
		return err
	}
	for _, key := range md.Undecoded() {
		log.Warnf("Unknown config key %q in %s", key.String(), c.configFile)
	}

	return nil
}
