// Package config provides configuration structures for the load generator.
// The main Config struct ties together all loadgen components.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/ecommerce/loadgen/internal/session"
)

// Errors returned by the config package.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("config: invalid configuration")
	// ErrConfigNotFound is returned when the config file is not found.
	ErrConfigNotFound = errors.New("config: configuration file not found")
)

// Config is the root configuration structure for the load generator.
type Config struct {
	// Name is a descriptive name for this run.
	// Default: "ecommerce-loadgen"
	Name string `yaml:"name" json:"name"`

	// Target configures the system under test.
	Target TargetConfig `yaml:"target" json:"target"`

	// Population configures how many virtual users run and for how long.
	Population PopulationConfig `yaml:"population" json:"population"`

	// Profiles overrides the built-in user profiles, keyed by profile name
	// (light, heavy, integration, standard).
	Profiles map[string]ProfileConfig `yaml:"profiles,omitempty" json:"profiles,omitempty"`

	// Pools sets the per-user pool capacities.
	// Default: products 50, orders 10, users 20
	Pools session.Capacities `yaml:"pools,omitempty" json:"pools,omitempty"`

	// Output configures reporting.
	Output OutputConfig `yaml:"output,omitempty" json:"output,omitempty"`

	// Log configures the logger.
	Log LogConfig `yaml:"log,omitempty" json:"log,omitempty"`

	// Telemetry configures tracing and profiling of the generator itself.
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty" json:"telemetry,omitempty"`
}

// TargetConfig holds target system configuration.
type TargetConfig struct {
	// BaseURL is the gateway in front of the services (e.g., "http://localhost:8080").
	// It is replaced by the resolved host at startup, see ResolveHost.
	BaseURL string `yaml:"baseURL,omitempty" json:"baseURL,omitempty"`

	// Timeout is the request timeout. A timed out call is a failure.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// UserAgent is sent with every request.
	// Default: "Ecommerce-LoadGen/1.0"
	UserAgent string `yaml:"userAgent,omitempty" json:"userAgent,omitempty"`

	// TLSSkipVerify skips TLS certificate verification (for testing only).
	TLSSkipVerify bool `yaml:"tlsSkipVerify,omitempty" json:"tlsSkipVerify,omitempty"`

	// Headers are additional headers to include in all requests.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// MaxRPS caps the request rate across all virtual users. Zero disables the cap.
	MaxRPS float64 `yaml:"maxRPS,omitempty" json:"maxRPS,omitempty"`

	// Burst is the token bucket size used with MaxRPS.
	// Default: 1
	Burst int `yaml:"burst,omitempty" json:"burst,omitempty"`

	// MaxRetries retries transport errors and 5xx responses.
	// Default: 0 (every attempt is reported as it happened)
	MaxRetries int `yaml:"maxRetries,omitempty" json:"maxRetries,omitempty"`

	// RetryDelay is the base backoff between retries.
	// Default: 500ms
	RetryDelay time.Duration `yaml:"retryDelay,omitempty" json:"retryDelay,omitempty"`
}

// PopulationConfig configures the virtual user population.
type PopulationConfig struct {
	// Users is the total number of concurrent virtual users.
	// Default: 10
	Users int `yaml:"users" json:"users"`

	// SpawnRate is how many users are started per second.
	// Default: 1
	SpawnRate float64 `yaml:"spawnRate" json:"spawnRate"`

	// Duration is the total run time. Zero runs until interrupted.
	Duration time.Duration `yaml:"duration,omitempty" json:"duration,omitempty"`

	// Seed makes every user's random source deterministic. Zero seeds randomly.
	Seed uint64 `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// ThinkTimeConfig is a uniform pause range between actions.
type ThinkTimeConfig struct {
	Min time.Duration `yaml:"min" json:"min"`
	Max time.Duration `yaml:"max" json:"max"`
}

// ProfileConfig overrides parts of a built-in profile.
type ProfileConfig struct {
	// Share is the relative population share. Nil keeps the built-in share;
	// zero disables the profile.
	Share *int `yaml:"share,omitempty" json:"share,omitempty"`

	// ThinkTime overrides the pause range.
	ThinkTime *ThinkTimeConfig `yaml:"thinkTime,omitempty" json:"thinkTime,omitempty"`

	// Weights overrides action weights by action name.
	Weights map[string]int `yaml:"weights,omitempty" json:"weights,omitempty"`
}

// OutputConfig configures output and reporting.
type OutputConfig struct {
	// ReportInterval is how often to print progress reports.
	// Default: 10s
	ReportInterval time.Duration `yaml:"reportInterval,omitempty" json:"reportInterval,omitempty"`

	// ReportFile is where the final JSON report is written. Empty disables it.
	ReportFile string `yaml:"reportFile,omitempty" json:"reportFile,omitempty"`

	// Verbose enables per-call debug logging.
	Verbose bool `yaml:"verbose,omitempty" json:"verbose,omitempty"`

	// Prometheus configures the metrics endpoint.
	Prometheus PrometheusConfig `yaml:"prometheus,omitempty" json:"prometheus,omitempty"`
}

// PrometheusConfig configures the Prometheus exporter.
type PrometheusConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Port is the HTTP port for the metrics endpoint.
	// Default: 9090
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// Path is the URL path for the metrics endpoint.
	// Default: /metrics
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level,omitempty" json:"level,omitempty"`

	// Format is json or console.
	// Default: console
	Format string `yaml:"format,omitempty" json:"format,omitempty"`

	// Output is stdout, stderr or a file path.
	// Default: stderr
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// TelemetryConfig configures OpenTelemetry tracing and Pyroscope profiling.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// CollectorEndpoint is the OTLP gRPC endpoint.
	// Default: localhost:4317
	CollectorEndpoint string `yaml:"collectorEndpoint,omitempty" json:"collectorEndpoint,omitempty"`

	// SamplingRatio is the fraction of actions traced.
	// Default: 1.0
	SamplingRatio *float64 `yaml:"samplingRatio,omitempty" json:"samplingRatio,omitempty"`

	// ServiceName identifies the generator in traces.
	// Default: "ecommerce-loadgen"
	ServiceName string `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`

	Insecure bool `yaml:"insecure,omitempty" json:"insecure,omitempty"`

	// Profiling configures continuous profiling.
	Profiling ProfilingConfig `yaml:"profiling,omitempty" json:"profiling,omitempty"`
}

// ProfilingConfig configures Pyroscope.
type ProfilingConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	ServerAddress string `yaml:"serverAddress,omitempty" json:"serverAddress,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML bytes.
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Target.BaseURL != "" {
		u, err := url.Parse(c.Target.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: target.baseURL %q is not an absolute URL", ErrInvalidConfig, c.Target.BaseURL)
		}
	}
	if c.Target.Timeout < 0 {
		return fmt.Errorf("%w: target.timeout must not be negative", ErrInvalidConfig)
	}
	if c.Target.MaxRPS < 0 {
		return fmt.Errorf("%w: target.maxRPS must not be negative", ErrInvalidConfig)
	}
	if c.Target.MaxRetries < 0 {
		return fmt.Errorf("%w: target.maxRetries must not be negative", ErrInvalidConfig)
	}

	if c.Population.Users <= 0 {
		return fmt.Errorf("%w: population.users must be positive", ErrInvalidConfig)
	}
	if c.Population.SpawnRate <= 0 {
		return fmt.Errorf("%w: population.spawnRate must be positive", ErrInvalidConfig)
	}
	if c.Population.Duration < 0 {
		return fmt.Errorf("%w: population.duration must not be negative", ErrInvalidConfig)
	}

	for name, p := range c.Profiles {
		if p.Share != nil && *p.Share < 0 {
			return fmt.Errorf("%w: profiles.%s.share must not be negative", ErrInvalidConfig, name)
		}
		if p.ThinkTime != nil {
			if p.ThinkTime.Min < 0 || p.ThinkTime.Max < p.ThinkTime.Min {
				return fmt.Errorf("%w: profiles.%s.thinkTime must satisfy 0 <= min <= max", ErrInvalidConfig, name)
			}
		}
		for action, w := range p.Weights {
			if w < 0 {
				return fmt.Errorf("%w: profiles.%s.weights.%s must not be negative", ErrInvalidConfig, name, action)
			}
		}
	}

	if c.Pools.Products < 0 || c.Pools.Orders < 0 || c.Pools.Users < 0 {
		return fmt.Errorf("%w: pool capacities must not be negative", ErrInvalidConfig)
	}

	if r := c.Telemetry.SamplingRatio; r != nil && (*r < 0 || *r > 1) {
		return fmt.Errorf("%w: telemetry.samplingRatio must be in [0, 1]", ErrInvalidConfig)
	}
	if c.Telemetry.Profiling.Enabled && c.Telemetry.Profiling.ServerAddress == "" {
		return fmt.Errorf("%w: telemetry.profiling.serverAddress is required when profiling is enabled", ErrInvalidConfig)
	}

	return nil
}

// ApplyDefaults applies default values to unset fields.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "ecommerce-loadgen"
	}

	if c.Target.Timeout == 0 {
		c.Target.Timeout = 30 * time.Second
	}
	if c.Target.UserAgent == "" {
		c.Target.UserAgent = DefaultUserAgent
	}
	if c.Target.Burst <= 0 {
		c.Target.Burst = 1
	}
	if c.Target.RetryDelay == 0 {
		c.Target.RetryDelay = 500 * time.Millisecond
	}

	if c.Population.Users == 0 {
		c.Population.Users = 10
	}
	if c.Population.SpawnRate == 0 {
		c.Population.SpawnRate = 1
	}

	if c.Output.ReportInterval == 0 {
		c.Output.ReportInterval = 10 * time.Second
	}
	if c.Output.Prometheus.Port == 0 {
		c.Output.Prometheus.Port = 9090
	}
	if c.Output.Prometheus.Path == "" {
		c.Output.Prometheus.Path = "/metrics"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stderr"
	}

	if c.Telemetry.CollectorEndpoint == "" {
		c.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if c.Telemetry.SamplingRatio == nil {
		ratio := 1.0
		c.Telemetry.SamplingRatio = &ratio
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = c.Name
	}
}

// DefaultUserAgent is the user agent sent when none is configured.
const DefaultUserAgent = "Ecommerce-LoadGen/1.0"
