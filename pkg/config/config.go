// Package config loads and validates FlowScope configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/flowscope/flowscope/pkg/capture"
	"github.com/flowscope/flowscope/pkg/tracker"
)

// LimitsConfig mirrors capture.Limits for file configuration.
type LimitsConfig struct {
	MaxDepth        int `yaml:"maxDepth" json:"maxDepth"`
	MaxKeys         int `yaml:"maxKeys" json:"maxKeys"`
	MaxArrayItems   int `yaml:"maxArrayItems" json:"maxArrayItems"`
	MaxStringLength int `yaml:"maxStringLength" json:"maxStringLength"`
	MaxPayloadBytes int `yaml:"maxPayloadBytes" json:"maxPayloadBytes"`
}

// SamplingConfig controls per-node payload sampling.
type SamplingConfig struct {
	Mode    string `yaml:"mode" json:"mode"`
	PerNode int    `yaml:"perNode" json:"perNode"`
}

// ServerConfig controls the HTTP/WebSocket transport.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
	// Debug enables the reset endpoint.
	Debug bool `yaml:"debug" json:"debug"`
}

// HistoryConfig controls the SQLite frame archive.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	MaxRows int    `yaml:"maxRows" json:"maxRows"`
}

// LoggingConfig controls diagnostic output.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Pretty bool   `yaml:"pretty" json:"pretty"`
}

// Config is the full FlowScope configuration. Durations are milliseconds.
type Config struct {
	MaxFrames          int            `yaml:"maxFrames" json:"maxFrames"`
	FrameTTLMs         int            `yaml:"frameTTL" json:"frameTTL"`
	InactivityMs       int            `yaml:"inactivityTimeout" json:"inactivityTimeout"`
	EvictionIntervalMs int            `yaml:"evictionInterval" json:"evictionInterval"`
	Limits             LimitsConfig   `yaml:"limits" json:"limits"`
	RelaxedLimits      LimitsConfig   `yaml:"relaxedLimits" json:"relaxedLimits"`
	Sampling           SamplingConfig `yaml:"sampling" json:"sampling"`
	OrphanOutputs      string         `yaml:"orphanOutputs" json:"orphanOutputs"`
	Server             ServerConfig   `yaml:"server" json:"server"`
	History            HistoryConfig  `yaml:"history" json:"history"`
	Logging            LoggingConfig  `yaml:"logging" json:"logging"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	def := capture.DefaultLimits()
	relaxed := capture.RelaxedLimits()
	return &Config{
		MaxFrames:          20,
		FrameTTLMs:         30000,
		InactivityMs:       5000,
		EvictionIntervalMs: 1000,
		Limits:             fromLimits(def),
		RelaxedLimits:      fromLimits(relaxed),
		Sampling: SamplingConfig{
			Mode:    string(capture.SampleModeFirstN),
			PerNode: 5,
		},
		OrphanOutputs: string(tracker.OrphanAttach),
		Server: ServerConfig{
			Addr: ":8089",
		},
		History: HistoryConfig{
			Enabled: true,
			MaxRows: 1000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file over the defaults, applies environment
// overrides, and validates the result. path may be empty for pure defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays the recognized FLOWSCOPE_* variables.
func (c *Config) applyEnv() {
	if addr := os.Getenv("FLOWSCOPE_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if level := os.Getenv("FLOWSCOPE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if path := os.Getenv("FLOWSCOPE_HISTORY_PATH"); path != "" {
		c.History.Path = path
	}
}

// Validate checks the configuration against the embedded JSON schema plus
// the cross-field rules the schema cannot express.
func (c *Config) Validate() error {
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to serialize config for validation: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("config schema validation failed: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}

	switch c.OrphanOutputs {
	case string(tracker.OrphanAttach), string(tracker.OrphanDrop):
	default:
		return fmt.Errorf("invalid config: orphanOutputs must be %q or %q",
			tracker.OrphanAttach, tracker.OrphanDrop)
	}

	switch c.Sampling.Mode {
	case string(capture.SampleModeFirstN), string(capture.SampleModeAll):
	default:
		return fmt.Errorf("invalid config: sampling.mode must be %q or %q",
			capture.SampleModeFirstN, capture.SampleModeAll)
	}

	return nil
}

// TrackerOptions converts the file configuration into manager options.
// Logger and Archiver are attached by the caller.
func (c *Config) TrackerOptions() tracker.Options {
	return tracker.Options{
		MaxFrames:         c.MaxFrames,
		FrameTTL:          time.Duration(c.FrameTTLMs) * time.Millisecond,
		InactivityTimeout: time.Duration(c.InactivityMs) * time.Millisecond,
		EvictionInterval:  time.Duration(c.EvictionIntervalMs) * time.Millisecond,
		Limits:            c.Limits.ToLimits(),
		RelaxedLimits:     c.RelaxedLimits.ToLimits(),
		SampleMode:        capture.SampleMode(c.Sampling.Mode),
		SamplesPerNode:    c.Sampling.PerNode,
		OrphanOutputs:     tracker.OrphanOutputPolicy(c.OrphanOutputs),
	}
}

// ToLimits converts to the capture package's limit type.
func (l LimitsConfig) ToLimits() capture.Limits {
	return capture.Limits{
		MaxDepth:        l.MaxDepth,
		MaxKeys:         l.MaxKeys,
		MaxArrayItems:   l.MaxArrayItems,
		MaxStringLength: l.MaxStringLength,
		MaxPayloadBytes: l.MaxPayloadBytes,
	}
}

func fromLimits(l capture.Limits) LimitsConfig {
	return LimitsConfig{
		MaxDepth:        l.MaxDepth,
		MaxKeys:         l.MaxKeys,
		MaxArrayItems:   l.MaxArrayItems,
		MaxStringLength: l.MaxStringLength,
		MaxPayloadBytes: l.MaxPayloadBytes,
	}
}
