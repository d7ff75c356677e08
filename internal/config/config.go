// Package config defines the bridge configuration file format and its
// loader. Files are YAML with ${VAR} environment expansion.
package config

import (
	"time"

	"github.com/impbridge/impbridge/internal/logging"
	"github.com/impbridge/impbridge/internal/store"
)

// Config is the root configuration.
type Config struct {
	Database Database `yaml:"database"`

	// ResponseTimeout bounds how long a handler may spend answering,
	// including the blocking fan-out. It also caps the shutdown drain.
	ResponseTimeout time.Duration `yaml:"response_timeout"`

	// WaitOnForward makes PostMessage block until every client answered
	// and report the aggregate outcome; off, delivery is asynchronous.
	WaitOnForward bool `yaml:"wait_on_forward"`

	// DispatchLimit bounds concurrent background forwards per direction.
	DispatchLimit int `yaml:"dispatch_limit"`

	RemoteTerminated Listener `yaml:"remote_terminated"`
	RemoteOriginated Listener `yaml:"remote_originated"`

	Logging logging.Config `yaml:"logging"`
	Metrics Metrics        `yaml:"metrics"`
}

// Database selects and configures the profile store.
type Database struct {
	// Kind is file, mysql or postgres.
	Kind store.Kind `yaml:"kind"`
	// Connection is a directory path for the file store, a DSN otherwise.
	Connection string `yaml:"connection"`
	// Refresh is the interval between profile reloads; 0 disables the
	// timer (profiles still reload on SIGHUP and file changes).
	Refresh time.Duration `yaml:"refresh"`
}

// Listener configures one HTTP listener.
type Listener struct {
	Address string `yaml:"address"`
	TLS     TLS    `yaml:"tls"`
	// Insecure allows serving the remote-originated leg without TLS.
	// Meant for tests and closed networks only.
	Insecure bool `yaml:"insecure"`
}

// TLS holds the certificate pair for a listener.
type TLS struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Enabled reports whether a certificate pair is configured.
func (t TLS) Enabled() bool {
	return t.CertFile != "" || t.KeyFile != ""
}

// Metrics configures the Prometheus endpoint on the remote-terminated
// listener.
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns the built-in defaults. The loader overlays the
// file on top of these.
func DefaultConfig() *Config {
	return &Config{
		Database: Database{
			Kind:    store.KindFile,
			Refresh: 60 * time.Second,
		},
		ResponseTimeout: 30 * time.Second,
		WaitOnForward:   true,
		RemoteTerminated: Listener{
			Address: ":8080",
		},
		RemoteOriginated: Listener{
			Address: ":8443",
		},
		Logging: logging.Config{
			Level:  "info",
			Output: "stdout",
		},
		Metrics: Metrics{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
