// Package config provides the configuration of the zeusd daemon.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robotalks/zeus.go/pkg/zeus/calib"
	"github.com/robotalks/zeus.go/pkg/zeus/device"
	"github.com/robotalks/zeus.go/pkg/zeus/serial"
)

// Config defines the configurations of the daemon.
type Config struct {
	// File is the optional YAML file loaded over flags.
	File string `yaml:"-"`

	// Ports lists port paths or glob patterns. Empty probes every port
	// found on the system.
	Ports     []string `yaml:"ports"`
	ChipCount int      `yaml:"chips"`
	ClockMHz  int      `yaml:"clock"`
	// SkipGoldenCheck estimates the speed from the clock.
	SkipGoldenCheck bool          `yaml:"nocheck_golden"`
	Debug           bool          `yaml:"debug"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	Settle          time.Duration `yaml:"settle"`
	Reopen          Reopen        `yaml:"reopen"`

	// HotplugInterval is the rescan period for new ports, 0 disables.
	HotplugInterval time.Duration `yaml:"hotplug_interval"`

	// MQTT is the broker URL with topic prefix, e.g.
	// mqtt://localhost:1883/zeus/. Empty disables publishing.
	MQTT          string        `yaml:"mqtt"`
	StatsInterval time.Duration `yaml:"stats_interval"`

	// Work is the source of work lines, "-" for stdin.
	Work string `yaml:"work"`
	// Results is where found nonces are written, "-" for stdout.
	Results string `yaml:"results"`
}

// Reopen configures recovery from port failures.
type Reopen struct {
	Pause         time.Duration `yaml:"pause"`
	Attempts      int           `yaml:"attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay"`
}

// Policy converts to the policy a device runs with.
func (r Reopen) Policy() device.ReopenPolicy {
	return device.ReopenPolicy{
		Pause:         r.Pause,
		Attempts:      r.Attempts,
		RetryDelay:    r.RetryDelay,
		MaxRetryDelay: r.MaxRetryDelay,
	}
}

// Defaults.
const (
	DefaultStatsInterval = 10 * time.Second
	DefaultWork          = "-"
)

var defaultConfig = Config{
	ChipCount:     calib.DefaultChipCount,
	ClockMHz:      calib.DefaultClock,
	ReadTimeout:   serial.DefaultReadTimeout,
	Settle:        calib.DefaultSettle,
	StatsInterval: DefaultStatsInterval,
	Work:          DefaultWork,
	Results:       DefaultWork,
	Reopen: Reopen{
		Pause:         device.DefaultReopenPolicy.Pause,
		Attempts:      device.DefaultReopenPolicy.Attempts,
		RetryDelay:    device.DefaultReopenPolicy.RetryDelay,
		MaxRetryDelay: device.DefaultReopenPolicy.MaxRetryDelay,
	},
}

func init() {
	if err := defaultConfig.ApplyEnv(os.Getenv); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}

// ApplyEnv overrides c with ZEUS_* variables found by getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if val := getenv("ZEUS_CONFIG"); val != "" {
		c.File = val
	}
	if val := getenv("ZEUS_PORTS"); val != "" {
		c.Ports = splitList(val)
	}
	if val := getenv("ZEUS_MQTT"); val != "" {
		c.MQTT = val
	}
	for name, dst := range map[string]*int{
		"ZEUS_CHIPS": &c.ChipCount,
		"ZEUS_CLOCK": &c.ClockMHz,
	} {
		if val := getenv(name); val != "" {
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid %s=%q: %w", name, val, err)
			}
			*dst = n
		}
	}
	for name, dst := range map[string]*bool{
		"ZEUS_NOCHECK_GOLDEN": &c.SkipGoldenCheck,
		"ZEUS_DEBUG":          &c.Debug,
	} {
		if val := getenv(name); val != "" {
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("invalid %s=%q: %w", name, val, err)
			}
			*dst = b
		}
	}
	return nil
}

type listFlag struct {
	list *[]string
}

func (f listFlag) String() string {
	if f.list == nil {
		return ""
	}
	return strings.Join(*f.list, ",")
}

func (f listFlag) Set(val string) error {
	*f.list = append(*f.list, splitList(val)...)
	return nil
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.File, "config", defaultConfig.File, "YAML config file, loaded over flags.")
	flag.Var(listFlag{&defaultConfig.Ports}, "zeus-ports", "Comma separated port paths or patterns, empty for all.")
	flag.IntVar(&defaultConfig.ChipCount, "zeus-chips", defaultConfig.ChipCount, "Number of chips per chain.")
	flag.IntVar(&defaultConfig.ClockMHz, "zeus-clock", defaultConfig.ClockMHz, "Chip clock in MHz.")
	flag.BoolVar(&defaultConfig.SkipGoldenCheck, "zeus-nocheck-golden", defaultConfig.SkipGoldenCheck, "Skip the golden nonce self-test.")
	flag.BoolVar(&defaultConfig.Debug, "zeus-debug", defaultConfig.Debug, "Verbose device logs and debug stats.")
	flag.DurationVar(&defaultConfig.HotplugInterval, "hotplug", defaultConfig.HotplugInterval, "Rescan ports at this interval, 0 disables.")
	flag.StringVar(&defaultConfig.MQTT, "mqtt", defaultConfig.MQTT, "MQTT URL to publish stats, e.g. mqtt://localhost:1883/zeus/.")
	flag.DurationVar(&defaultConfig.StatsInterval, "stats-interval", defaultConfig.StatsInterval, "Stats publishing interval.")
	flag.StringVar(&defaultConfig.Work, "work", defaultConfig.Work, "Work source file, - for stdin.")
	flag.StringVar(&defaultConfig.Results, "results", defaultConfig.Results, "Nonce output file, - for stdout.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	conf.Ports = append([]string(nil), defaultConfig.Ports...)
	return &conf
}

// Load decodes the YAML file at path over c.
func (c *Config) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Resolve loads the file if any, then validates and normalizes c.
func (c *Config) Resolve() error {
	if c.File != "" {
		if err := c.Load(c.File); err != nil {
			return err
		}
	}
	if err := Validate(c); err != nil {
		return err
	}
	Normalize(c)
	return nil
}

func splitList(val string) []string {
	var list []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
