package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns the built-in defaults, which must always validate.
func validConfig(t *testing.T) *Config {
	t.Helper()

	cfg, err := LoadFrom(t.TempDir(), "")
	require.NoError(t, err)

	return cfg
}

func TestConfig_Validate_Defaults(t *testing.T) {
	require.NoError(t, validConfig(t).Validate())
}

func TestConfig_Validate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "missing app name",
			mutate: func(c *Config) { c.App.Name = "" },
			want:   "app.name is required",
		},
		{
			name:   "unknown environment",
			mutate: func(c *Config) { c.App.Environment = "staging" },
			want:   "app.environment must be one of: local dev qa prod test",
		},
		{
			name:   "port out of range",
			mutate: func(c *Config) { c.Server.Port = 70000 },
			want:   "server.port must be at most 65535",
		},
		{
			name:   "log level is case sensitive",
			mutate: func(c *Config) { c.Log.Level = "DEBUG" },
			want:   "log.level must be one of",
		},
		{
			name: "log file without a path",
			mutate: func(c *Config) {
				c.Log.File.Enabled = true
				c.Log.File.Path = ""
			},
			want: "log.file.path is required when Enabled true",
		},
		{
			name: "telemetry endpoint is not a URL",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.ServiceName = "quote-manager"
				c.Telemetry.Endpoint = "otel collector"
			},
			want: "telemetry.endpoint must be a valid URL",
		},
		{
			name:   "sampling rate above one",
			mutate: func(c *Config) { c.Telemetry.SamplingRate = 1.5 },
			want:   "telemetry.samplingrate must be at most 1",
		},
		{
			name:   "remote base URL without scheme",
			mutate: func(c *Config) { c.Services.Remote.BaseURL = "jsonplaceholder.typicode.com" },
			want:   "services.remote.baseurl must be a valid URL",
		},
		{
			name:   "unknown storage driver",
			mutate: func(c *Config) { c.Storage.Driver = "postgres" },
			want:   "storage.driver must be one of: sqlite memory",
		},
		{
			name: "sqlite without a path",
			mutate: func(c *Config) {
				c.Storage.Driver = StorageDriverSQLite
				c.Storage.Path = ""
			},
			want: "storage.path is required when Driver sqlite",
		},
		{
			name:   "batch limit zero",
			mutate: func(c *Config) { c.Sync.BatchLimit = 0 },
			want:   "sync.batchlimit is required",
		},
		{
			name:   "batch limit above the feed page",
			mutate: func(c *Config) { c.Sync.BatchLimit = 101 },
			want:   "sync.batchlimit must be at most 100",
		},
		{
			name:   "sync interval below a second",
			mutate: func(c *Config) { c.Sync.Interval = 500 * time.Millisecond },
			want:   "sync.interval must be at least 1s",
		},
		{
			name:   "banner shorter than a blink",
			mutate: func(c *Config) { c.Notification.DisplayDuration = 10 * time.Millisecond },
			want:   "notification.displayduration must be at least 100ms",
		},
		{
			name:   "retry multiplier that never grows",
			mutate: func(c *Config) { c.Client.Retry.Multiplier = 1.0 },
			want:   "client.retry.multiplier must be at least 1.1",
		},
		{
			name:   "circuit breaker that never trips",
			mutate: func(c *Config) { c.Client.CircuitBreaker.MaxFailures = 0 },
			want:   "client.circuitbreaker.maxfailures is required",
		},
		{
			name: "fetch timeout as long as the interval",
			mutate: func(c *Config) {
				c.Sync.Enabled = true
				c.Sync.Interval = 30 * time.Second
				c.Sync.FetchTimeout = 30 * time.Second
			},
			want: "sync.fetch_timeout (30s) must be shorter than sync.interval (30s)",
		},
		{
			name: "retry intervals inverted",
			mutate: func(c *Config) {
				c.Client.Retry.InitialInterval = 10 * time.Second
				c.Client.Retry.MaxInterval = 5 * time.Second
			},
			want: "client.retry.initial_interval must not exceed client.retry.max_interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), "config validation failed")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_Validate_ConditionalFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name: "memory driver needs no path",
			mutate: func(c *Config) {
				c.Storage.Driver = StorageDriverMemory
				c.Storage.Path = ""
			},
		},
		{
			name: "disabled sync skips the timing check",
			mutate: func(c *Config) {
				c.Sync.Enabled = false
				c.Sync.FetchTimeout = time.Minute
			},
		},
		{
			name: "disabled telemetry needs no endpoint",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = false
				c.Telemetry.Endpoint = ""
			},
		},
		{
			name: "disabled log file needs no path",
			mutate: func(c *Config) {
				c.Log.File.Enabled = false
				c.Log.File.Path = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestConfig_Validate_ReportsEveryField(t *testing.T) {
	cfg := validConfig(t)
	cfg.App.Version = ""
	cfg.Storage.Driver = "postgres"

	err := cfg.Validate()
	require.Error(t, err)

	lines := strings.Split(err.Error(), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, err.Error(), "app.version is required")
	assert.Contains(t, err.Error(), "storage.driver must be one of")
}

func TestFormatFieldPath(t *testing.T) {
	assert.Equal(t, "sync.batchlimit", formatFieldPath("Config.Sync.BatchLimit"))
	assert.Equal(t, "client.circuitbreaker.timeout", formatFieldPath("Config.Client.CircuitBreaker.Timeout"))
	assert.Equal(t, "port", formatFieldPath("Port"))
}
