package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/robotalks/zeus.go/pkg/zeus/calib"
)

// Validate checks configuration correctness. It does not mutate cfg; an
// out of range clock is clamped later with a warning.
func Validate(cfg *Config) error {
	if cfg.ChipCount < 1 || cfg.ChipCount > calib.MaxChips {
		return fmt.Errorf("chips: %d not in 1-%d", cfg.ChipCount, calib.MaxChips)
	}
	for _, port := range cfg.Ports {
		if _, err := filepath.Match(port, ""); err != nil {
			return fmt.Errorf("ports: bad pattern %q: %w", port, err)
		}
	}
	for name, d := range map[string]int64{
		"read_timeout":           int64(cfg.ReadTimeout),
		"settle":                 int64(cfg.Settle),
		"hotplug_interval":       int64(cfg.HotplugInterval),
		"stats_interval":         int64(cfg.StatsInterval),
		"reopen.pause":           int64(cfg.Reopen.Pause),
		"reopen.retry_delay":     int64(cfg.Reopen.RetryDelay),
		"reopen.max_retry_delay": int64(cfg.Reopen.MaxRetryDelay),
	} {
		if d < 0 {
			return fmt.Errorf("%s: must not be negative", name)
		}
	}
	if cfg.Reopen.Attempts < 0 {
		return errors.New("reopen.attempts: must not be negative")
	}
	if cfg.MQTT != "" {
		u, err := url.Parse(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		switch u.Scheme {
		case "mqtt", "tcp", "ssl", "ws", "wss":
		default:
			return fmt.Errorf("mqtt: unknown scheme %q", u.Scheme)
		}
	}
	if cfg.Work == "" {
		return errors.New("work: must not be empty")
	}
	return nil
}

// Normalize fills in defaults for unset values. It must be called only
// after Validate.
func Normalize(cfg *Config) {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultConfig.ReadTimeout
	}
	if cfg.Settle == 0 {
		cfg.Settle = calib.DefaultSettle
	}
	if cfg.StatsInterval == 0 {
		cfg.StatsInterval = DefaultStatsInterval
	}
	if cfg.Reopen.Attempts == 0 {
		cfg.Reopen.Attempts = 1
	}
	if cfg.Reopen.MaxRetryDelay != 0 && cfg.Reopen.MaxRetryDelay < cfg.Reopen.RetryDelay {
		cfg.Reopen.MaxRetryDelay = cfg.Reopen.RetryDelay
	}
	if cfg.Results == "" {
		cfg.Results = DefaultWork
	}

	seen := make(map[string]bool, len(cfg.Ports))
	ports := cfg.Ports[:0]
	for _, port := range cfg.Ports {
		if !seen[port] {
			seen[port] = true
			ports = append(ports, port)
		}
	}
	cfg.Ports = ports
}
