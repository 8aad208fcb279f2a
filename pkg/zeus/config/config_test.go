package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	conf := &Config{
		ChipCount:     6,
		ClockMHz:      328,
		StatsInterval: DefaultStatsInterval,
		Work:          DefaultWork,
	}
	require.NoError(t, conf.Resolve())
	assert.Equal(t, 100*time.Millisecond, conf.ReadTimeout)
	assert.Equal(t, time.Second, conf.Settle)
	assert.Equal(t, 1, conf.Reopen.Attempts)
	assert.Equal(t, "-", conf.Results)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"ZEUS_PORTS":          "/dev/ttyUSB0, /dev/ttyUSB1,,",
		"ZEUS_CHIPS":          "16",
		"ZEUS_CLOCK":          "300",
		"ZEUS_NOCHECK_GOLDEN": "true",
		"ZEUS_MQTT":           "mqtt://broker:1883/zeus/",
	}
	conf := NewConfig()
	require.NoError(t, conf.ApplyEnv(func(name string) string { return env[name] }))
	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}, conf.Ports)
	assert.Equal(t, 16, conf.ChipCount)
	assert.Equal(t, 300, conf.ClockMHz)
	assert.True(t, conf.SkipGoldenCheck)
	assert.False(t, conf.Debug)
	assert.Equal(t, "mqtt://broker:1883/zeus/", conf.MQTT)

	env = map[string]string{"ZEUS_CHIPS": "many"}
	require.Error(t, NewConfig().ApplyEnv(func(name string) string { return env[name] }))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zeus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ports:
  - /dev/ttyUSB*
  - /dev/ttyUSB*
  - /dev/ttyACM0
chips: 32
clock: 250
debug: true
hotplug_interval: 5s
mqtt: tcp://localhost:1883/rig1/
reopen:
  attempts: 3
  retry_delay: 2s
  max_retry_delay: 1s
`), 0644))

	conf := NewConfig()
	conf.File = path
	require.NoError(t, conf.Resolve())
	assert.Equal(t, []string{"/dev/ttyUSB*", "/dev/ttyACM0"}, conf.Ports)
	assert.Equal(t, 32, conf.ChipCount)
	assert.Equal(t, 250, conf.ClockMHz)
	assert.True(t, conf.Debug)
	assert.Equal(t, 5*time.Second, conf.HotplugInterval)
	assert.Equal(t, 3, conf.Reopen.Attempts)
	assert.Equal(t, 2*time.Second, conf.Reopen.MaxRetryDelay)

	policy := conf.Reopen.Policy()
	assert.Equal(t, 3, policy.Attempts)
	assert.Equal(t, 2*time.Second, policy.RetryDelay)
}

func TestLoadErrors(t *testing.T) {
	conf := NewConfig()
	require.Error(t, conf.Load(filepath.Join(t.TempDir(), "missing.yaml")))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chips: [1"), 0644))
	require.Error(t, conf.Load(path))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{ChipCount: 6, Work: "-"}
	}
	require.NoError(t, Validate(valid()))

	tests := map[string]func(*Config){
		"zero chips":      func(c *Config) { c.ChipCount = 0 },
		"too many chips":  func(c *Config) { c.ChipCount = 1025 },
		"negative stats":  func(c *Config) { c.StatsInterval = -time.Second },
		"negative pause":  func(c *Config) { c.Reopen.Pause = -1 },
		"negative tries":  func(c *Config) { c.Reopen.Attempts = -1 },
		"bad mqtt scheme": func(c *Config) { c.MQTT = "http://localhost/" },
		"empty work":      func(c *Config) { c.Work = "" },
	}
	for name, mutate := range tests {
		conf := valid()
		mutate(conf)
		assert.Error(t, Validate(conf), name)
	}
}
