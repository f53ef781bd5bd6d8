package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Overlay   OverlayConfig   `mapstructure:"overlay"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type OverlayConfig struct {
	RenderMinSpacingMS  int `mapstructure:"render_min_spacing_ms"`
	ProjectionTimeoutMS int `mapstructure:"projection_timeout_ms"`
}

func (o OverlayConfig) RenderMinSpacing() time.Duration {
	return time.Duration(o.RenderMinSpacingMS) * time.Millisecond
}

func (o OverlayConfig) ProjectionTimeout() time.Duration {
	return time.Duration(o.ProjectionTimeoutMS) * time.Millisecond
}

type DiscoveryConfig struct {
	PollIntervalMS    int `mapstructure:"poll_interval_ms"`
	MaxAttempts       int `mapstructure:"max_attempts"`
	URLPollIntervalMS int `mapstructure:"url_poll_interval_ms"`
}

func (d DiscoveryConfig) PollInterval() time.Duration {
	return time.Duration(d.PollIntervalMS) * time.Millisecond
}

func (d DiscoveryConfig) URLPollInterval() time.Duration {
	return time.Duration(d.URLPollIntervalMS) * time.Millisecond
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	OTLPAddr    string `mapstructure:"otlp_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("overlay.render_min_spacing_ms", 50)
	v.SetDefault("overlay.projection_timeout_ms", 1000)
	v.SetDefault("discovery.poll_interval_ms", 500)
	v.SetDefault("discovery.max_attempts", 10)
	v.SetDefault("discovery.url_poll_interval_ms", 1000)
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.otlp_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: TRANSITLENS_NATS_URL -> nats.url
	v.SetEnvPrefix("TRANSITLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Overlay.RenderMinSpacingMS < 0 {
		errs = append(errs, "overlay.render_min_spacing_ms must not be negative")
	}
	if c.Overlay.ProjectionTimeoutMS <= 0 {
		errs = append(errs, "overlay.projection_timeout_ms must be positive")
	}
	if c.Discovery.PollIntervalMS <= 0 {
		errs = append(errs, "discovery.poll_interval_ms must be positive")
	}
	if c.Discovery.MaxAttempts <= 0 {
		errs = append(errs, "discovery.max_attempts must be positive")
	}
	if c.Discovery.URLPollIntervalMS <= 0 {
		errs = append(errs, "discovery.url_poll_interval_ms must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
