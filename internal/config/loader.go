package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/impbridge/impbridge/internal/store"
)

// Loader handles configuration loading and parsing.
type Loader struct {
	envPattern *regexp.Regexp
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPattern: regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`),
	}
}

// Load reads and parses a configuration file.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return l.Parse(data)
}

// Parse parses configuration from YAML bytes, expanding ${VAR}
// references against the environment first.
func (l *Loader) Parse(data []byte) (*Config, error) {
	expanded := l.expandEnvVars(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := l.validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} with environment variable values.
// Unset variables keep the literal text.
func (l *Loader) expandEnvVars(input string) string {
	return l.envPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate checks configuration for errors.
func (l *Loader) validate(cfg *Config) error {
	switch cfg.Database.Kind {
	case store.KindNone:
	case store.KindFile, store.KindMySQL, store.KindPostgres:
		if cfg.Database.Connection == "" {
			return fmt.Errorf("database.connection is required")
		}
	default:
		return fmt.Errorf("invalid database kind: %s", cfg.Database.Kind)
	}
	if cfg.Database.Refresh < 0 {
		return fmt.Errorf("database.refresh must be >= 0")
	}

	if cfg.ResponseTimeout <= 0 {
		return fmt.Errorf("response_timeout must be > 0")
	}
	if cfg.DispatchLimit < 0 {
		return fmt.Errorf("dispatch_limit must be >= 0")
	}

	if cfg.RemoteTerminated.Address == "" {
		return fmt.Errorf("remote_terminated.address is required")
	}
	if cfg.RemoteOriginated.Address == "" {
		return fmt.Errorf("remote_originated.address is required")
	}
	if cfg.RemoteTerminated.Address == cfg.RemoteOriginated.Address {
		return fmt.Errorf("the two listeners must not share an address")
	}

	for name, lst := range map[string]Listener{
		"remote_terminated": cfg.RemoteTerminated,
		"remote_originated": cfg.RemoteOriginated,
	} {
		if lst.TLS.Enabled() {
			if lst.TLS.CertFile == "" {
				return fmt.Errorf("%s: TLS enabled but cert_file not provided", name)
			}
			if lst.TLS.KeyFile == "" {
				return fmt.Errorf("%s: TLS enabled but key_file not provided", name)
			}
		}
	}

	// The inbound leg faces the public network and must not serve
	// plaintext unless explicitly marked insecure.
	if !cfg.RemoteOriginated.TLS.Enabled() && !cfg.RemoteOriginated.Insecure {
		return fmt.Errorf("remote_originated: TLS is required (set insecure: true to override)")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Path == "" {
		return fmt.Errorf("metrics.path is required when metrics are enabled")
	}
	return nil
}
