// Package config loads the optional tuning file both CLIs accept via -c,
// following cmd/dnsproxy/config.go's configRepr/toml.DecodeFile pattern.
// Every field defaults to the exact constant spec.md prescribes; the file
// (and CLI flags layered on top of it, by the caller) only overrides.
package config

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Defaults mirror original_source/tcp_client.py and tcp_server.py's
// module-level constants.
const (
	DefaultHost            = "localhost"
	DefaultPort            = 8888
	DefaultTimeout         = 500 * time.Millisecond
	DefaultRTTDelay        = 100 * time.Millisecond
	DefaultInitialSsthresh = 64
	DefaultLossPercent     = 10.0
	DefaultReceiverIdle    = 30 * time.Second
	DefaultOutputFile      = "received.txt"
	DefaultMetricsPrefix   = "metrics"
)

// Repr is the on-disk shape of the optional TOML tuning file.
type Repr struct {
	Host            string  `toml:"host"`
	Port            int     `toml:"port"`
	TimeoutSeconds  float64 `toml:"timeout_seconds"`
	RTTDelaySeconds float64 `toml:"rtt_delay_seconds"`
	InitialSsthresh int     `toml:"initial_ssthresh"`
	LossPercent     float64 `toml:"loss_percent"`
	MetricsAddr     string  `toml:"metrics_addr"`
	MetricsPrefix   string  `toml:"metrics_prefix"`
}

// Config is the resolved, ready-to-use configuration.
type Config struct {
	Host            string
	Port            int
	Timeout         time.Duration
	RTTDelay        time.Duration
	InitialSsthresh int
	LossPercent     float64
	MetricsAddr     string
	MetricsPrefix   string
}

// Default returns the built-in defaults, with no file applied.
func Default() Config {
	return Config{
		Host:            DefaultHost,
		Port:            DefaultPort,
		Timeout:         DefaultTimeout,
		RTTDelay:        DefaultRTTDelay,
		InitialSsthresh: DefaultInitialSsthresh,
		LossPercent:     DefaultLossPercent,
		MetricsPrefix:   DefaultMetricsPrefix,
	}
}

// Load reads path as TOML and overlays any set fields onto the defaults.
// A missing or unreadable file is an error — the caller only calls Load
// when a -c flag was actually given.
func Load(path string) (Config, error) {
	cfg := Default()

	var repr Repr
	if _, err := toml.DecodeFile(path, &repr); err != nil {
		return Config{}, errors.Wrapf(err, "decoding config file %s", path)
	}

	if repr.Host != "" {
		cfg.Host = repr.Host
	}
	if repr.Port != 0 {
		cfg.Port = repr.Port
	}
	if repr.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(repr.TimeoutSeconds * float64(time.Second))
	}
	if repr.RTTDelaySeconds > 0 {
		cfg.RTTDelay = time.Duration(repr.RTTDelaySeconds * float64(time.Second))
	}
	if repr.InitialSsthresh > 0 {
		cfg.InitialSsthresh = repr.InitialSsthresh
	}
	if repr.LossPercent > 0 {
		cfg.LossPercent = repr.LossPercent
	}
	if repr.MetricsAddr != "" {
		cfg.MetricsAddr = repr.MetricsAddr
	}
	if repr.MetricsPrefix != "" {
		cfg.MetricsPrefix = repr.MetricsPrefix
	}

	return cfg, nil
}
