// Package config loads the ingestion core's YAML configuration: the
// capture/pacing/segmenting options spec.md §6 enumerates, plus the
// downstream consumer selection this project adds.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SourceConfig bundles the Packet Reader/Dissector/Flow Table/Pacer
// options from spec.md §6's enumerated configuration table.
type SourceConfig struct {
	Input             string `yaml:"input"`
	Cutoff            uint64 `yaml:"cutoff"`
	MaxFlows          int    `yaml:"max_flows"`
	MaxAge            uint64 `yaml:"max_age"`
	ExpireInterval    uint64 `yaml:"expire_interval"`
	PseudoRealtime    int64  `yaml:"pseudo_realtime"`
	MaxEventsPerChunk int    `yaml:"max_events_per_chunk"`
	MaxSegmentSize    int    `yaml:"max_segment_size"`
}

// GobConsumerConfig configures the at-rest gob archive consumer.
type GobConsumerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	RootPath string `yaml:"root_path"`
}

// NATSConsumerConfig configures the NATS publishing consumer.
type NATSConsumerConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// ClickHouseConsumerConfig configures the optional archive consumer.
type ClickHouseConsumerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
}

// ConsumerConfig selects and configures the downstream collaborators a
// capture run ships segments and statistics to. Any combination of the
// three may be enabled at once; internal/consumer.MultiConsumer fans out
// to all enabled consumers.
type ConsumerConfig struct {
	Gob        GobConsumerConfig        `yaml:"gob"`
	NATS       NATSConsumerConfig       `yaml:"nats"`
	ClickHouse ClickHouseConsumerConfig `yaml:"clickhouse"`
}

// StatusAPIConfig configures the read-only HTTP introspection surface.
type StatusAPIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LogConfig configures the injected logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Config is the top-level configuration for a vast-capture run.
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Consumer  ConsumerConfig  `yaml:"consumer"`
	StatusAPI StatusAPIConfig `yaml:"status_api"`
	Log       LogConfig       `yaml:"log"`
}

// Load reads and parses a YAML configuration file, filling in defaults
// for options an operator left unset.
func Load(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills in the options spec.md doesn't require an operator
// to set explicitly.
func (c *Config) applyDefaults() {
	if c.Source.MaxEventsPerChunk == 0 {
		c.Source.MaxEventsPerChunk = 1024
	}
	if c.Source.MaxSegmentSize == 0 {
		c.Source.MaxSegmentSize = 8 << 20
	}
	if c.Source.ExpireInterval == 0 {
		c.Source.ExpireInterval = 60
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.StatusAPI.Addr == "" {
		c.StatusAPI.Addr = ":8080"
	}
}
