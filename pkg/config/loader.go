package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	sharedconfig "github.com/ideamans/cmsgate/pkg/shared/config"
)

// Environment variables that override the file.
const (
	EnvUpstreamURL = "CMSGATE_UPSTREAM_URL"
	EnvAccessKey   = "CMSGATE_ACCESS_KEY"
	EnvDev         = "CMSGATE_DEV"
)

// Loader is an interface for loading configuration
type Loader interface {
	Load() (*Config, error)
}

// FileLoader loads configuration from a YAML or JSON file
type FileLoader struct {
	path string
}

// NewFileLoader creates a new FileLoader
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// Load reads and parses the configuration file.
// Format is detected from the extension (.yaml, .yml, .json).
// ${VAR} and ${VAR:-default} references are expanded before parsing.
func (l *FileLoader) Load() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, l.path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	data = sharedconfig.ExpandEnvBytes(data)

	var cfg Config
	ext := strings.ToLower(filepath.Ext(l.path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config file: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s (supported: .yaml, .yml, .json)", ErrUnsupportedFormat, ext)
	}
	return &cfg, nil
}

// Overrides are values given on the command line. Nil fields were not set.
type Overrides struct {
	Host *string
	Port *int
	Dev  *bool
}

// Options controls Load.
type Options struct {
	// Path is the config file. A missing file is only an error when
	// Required is set, so the gateway can run from the environment alone.
	Path     string
	Required bool
	Flags    Overrides
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// Load resolves the configuration: defaults < file < environment < flags.
// The result is validated.
func Load(opts Options) (*Config, error) {
	cfg := &Config{}
	if opts.Path != "" {
		loaded, err := NewFileLoader(opts.Path).Load()
		switch {
		case err == nil:
			cfg = loaded
		case !opts.Required && errors.Is(err, ErrConfigFileNotFound):
		default:
			return nil, err
		}
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := applyEnv(cfg, getenv); err != nil {
		return nil, err
	}
	applyOverrides(cfg, opts.Flags)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MissingEnvVars lists variables referenced by the file without a default
// that are unset, so the caller can warn about them.
func MissingEnvVars(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return sharedconfig.MissingEnvVars(string(data))
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv(EnvUpstreamURL); v != "" {
		cfg.Upstream.URL = v
	}
	if v := getenv(EnvAccessKey); v != "" {
		cfg.Upstream.AccessKey = v
	}
	if v := getenv(EnvDev); v != "" {
		dev, err := strconv.ParseBool(v)
		if err != nil {
			return &FieldError{Field: EnvDev, Reason: fmt.Sprintf("must be a boolean, got %q", v)}
		}
		cfg.Server.Dev = dev
	}
	return nil
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.Host != nil {
		cfg.Server.Host = *o.Host
	}
	if o.Port != nil {
		cfg.Server.Port = *o.Port
	}
	if o.Dev != nil {
		cfg.Server.Dev = *o.Dev
	}
}

// applyDefaults sets default values for optional fields
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultProdPort
		if cfg.Server.Dev {
			cfg.Server.Port = DefaultDevPort
		}
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = Duration(DefaultUpstreamTimeout)
	}
	if cfg.Upstream.HeaderTimeout == 0 {
		cfg.Upstream.HeaderTimeout = cfg.Upstream.Timeout
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.RateLimit.Interval == 0 {
		cfg.RateLimit.Interval = Duration(DefaultRateLimitInterval)
	}
	if cfg.RateLimit.Store.Namespace == "" {
		cfg.RateLimit.Store.Namespace = "ratelimit"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
