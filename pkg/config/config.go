// Package config loads the gateway configuration from a YAML or JSON file,
// the environment and command-line flags, in increasing priority.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ideamans/cmsgate/pkg/appserver"
	"github.com/ideamans/cmsgate/pkg/ratelimit"
	"github.com/ideamans/cmsgate/pkg/shared/kvs"
	"github.com/ideamans/cmsgate/pkg/shared/logging"
)

const (
	DefaultHost              = "0.0.0.0"
	DefaultDevPort           = 9555
	DefaultProdPort          = 9556
	DefaultUpstreamTimeout   = 15 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultConfigPath        = "cmsgate.yaml"
	DefaultRateLimitInterval = time.Minute
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig     `yaml:"server" json:"server"`
	Upstream  UpstreamConfig   `yaml:"upstream" json:"upstream"`
	App       appserver.Config `yaml:"app" json:"app"`
	RateLimit RateLimitConfig  `yaml:"rate_limit" json:"rate_limit"`
	Metrics   MetricsConfig    `yaml:"metrics" json:"metrics"`
	Logging   LoggingConfig    `yaml:"logging" json:"logging"`
}

// ServerConfig contains the public listener settings
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
	// Dev selects the bundler dev server and permissive CORS.
	Dev             bool     `yaml:"dev" json:"dev"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	MaxBodyBytes    int64    `yaml:"max_body_bytes" json:"max_body_bytes"`
	// TrustForwardedHeaders relays client-sent X-Forwarded-* and X-Real-IP
	// to the CMS. Enable only behind a proxy that sets them.
	TrustForwardedHeaders bool `yaml:"trust_forwarded_headers" json:"trust_forwarded_headers"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// UpstreamConfig describes the CMS.
type UpstreamConfig struct {
	URL       string `yaml:"url" json:"url"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	// Timeout bounds a whole API call; HeaderTimeout bounds the wait for
	// admin response headers (0 means Timeout).
	Timeout          Duration `yaml:"timeout" json:"timeout"`
	HeaderTimeout    Duration `yaml:"header_timeout" json:"header_timeout"`
	MaxResponseBytes int64    `yaml:"max_response_bytes" json:"max_response_bytes"`
}

// RateLimitConfig throttles the API path per client.
type RateLimitConfig struct {
	Rate              int        `yaml:"rate" json:"rate"`
	Interval          Duration   `yaml:"interval" json:"interval"`
	Prefixes          []string   `yaml:"prefixes" json:"prefixes"`
	Exempt            []string   `yaml:"exempt" json:"exempt"`
	TrustForwardedFor bool       `yaml:"trust_forwarded_for" json:"trust_forwarded_for"`
	Store             kvs.Config `yaml:"store" json:"store"`
}

// Limiter converts the file settings for the ratelimit package.
func (c RateLimitConfig) Limiter() ratelimit.Config {
	return ratelimit.Config{
		Rate:              c.Rate,
		Interval:          c.Interval.Duration(),
		Prefixes:          c.Prefixes,
		Exempt:            c.Exempt,
		TrustForwardedFor: c.TrustForwardedFor,
	}
}

// MetricsConfig enables the Prometheus listener. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" json:"addr"`
	Path string `yaml:"path" json:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level string             `yaml:"level" json:"level"`
	Color bool               `yaml:"color" json:"color"`
	File  *FileLoggingConfig `yaml:"file,omitempty" json:"file,omitempty"`
}

// FileLoggingConfig contains rotating log file settings
type FileLoggingConfig struct {
	Path       string `yaml:"path" json:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// Rotation converts the file settings for the logging package.
func (l LoggingConfig) Rotation() *logging.FileRotationConfig {
	if l.File == nil || l.File.Path == "" {
		return nil
	}
	return &logging.FileRotationConfig{
		Path:       l.File.Path,
		MaxSizeMB:  l.File.MaxSizeMB,
		MaxBackups: l.File.MaxBackups,
		MaxAge:     l.File.MaxAge,
		Compress:   l.File.Compress,
	}
}

// Mode returns "development" or "production".
func (c *Config) Mode() string {
	if c.Server.Dev {
		return "development"
	}
	return "production"
}

// Duration is a time.Duration written as "15s" in YAML and JSON.
type Duration time.Duration

// Duration returns d as a time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML accepts Go duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

// UnmarshalJSON accepts Go duration strings.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"15s\": %w", err)
	}
	return d.parse(s)
}

// MarshalYAML writes d as a duration string.
func (d Duration) MarshalYAML() (interface{}, error) { return d.String(), nil }

// MarshalJSON writes d as a duration string.
func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}
