// Package config loads the qp12 configuration from a YAML file and QP12_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/remiblancher/qp12/pkg/provider"
)

// Engine names.
const (
	EngineNative  = "native"
	EngineOpenSSL = "openssl"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "QP12_"

// Config is the qp12 configuration.
type Config struct {
	// Engine selects the PKCS#12 engine: "native" or "openssl".
	Engine string `yaml:"engine"`

	// Providers are loaded in order for every operation.
	Providers []string `yaml:"providers"`

	// DisabledProviders fail to load. Only the native engine honours it;
	// the openssl engine probes the real providers.
	DisabledProviders []string `yaml:"disabled_providers"`

	OpenSSL OpenSSLConfig `yaml:"openssl"`
	Audit   AuditConfig   `yaml:"audit"`
	Log     LogConfig     `yaml:"log"`
	Server  ServerConfig  `yaml:"server"`
}

// OpenSSLConfig configures the openssl engine.
type OpenSSLConfig struct {
	Binary       string `yaml:"binary"`
	ProviderPath string `yaml:"provider_path"`
	Iterations   int    `yaml:"iterations"`
	TempDir      string `yaml:"temp_dir"`
}

// AuditConfig configures the audit trail. An empty path disables it.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// LogConfig configures technical logging.
type LogConfig struct {
	Level string `yaml:"level"`

	// Format is "text" or "json". Empty picks text for commands and json
	// for the server.
	Format string `yaml:"format"`
}

// ServerConfig configures "qp12 serve".
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	TLSCert         string        `yaml:"tls_cert"`
	TLSKey          string        `yaml:"tls_key"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	RateLimit       float64       `yaml:"rate_limit"`
	RateBurst       int           `yaml:"rate_burst"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Engine:    EngineNative,
		Providers: []string{provider.Legacy, provider.Default},
		OpenSSL: OpenSSLConfig{
			Binary:     "openssl",
			Iterations: 2048,
		},
		Log: LogConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Port:            8443,
			MaxBodyBytes:    1 << 20,
			RateLimit:       10,
			RateBurst:       20,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from QP12_* variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = splitList(v)
		}
	}
	integer := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("ENGINE", &c.Engine)
	list("PROVIDERS", &c.Providers)
	list("DISABLED_PROVIDERS", &c.DisabledProviders)
	str("OPENSSL_BINARY", &c.OpenSSL.Binary)
	str("OPENSSL_PROVIDER_PATH", &c.OpenSSL.ProviderPath)
	str("OPENSSL_TEMP_DIR", &c.OpenSSL.TempDir)
	str("AUDIT_LOG", &c.Audit.Path)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("HOST", &c.Server.Host)

	return errors.Join(
		integer("OPENSSL_ITERATIONS", &c.OpenSSL.Iterations),
		integer("PORT", &c.Server.Port),
	)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Engine {
	case EngineNative, EngineOpenSSL:
	default:
		return fmt.Errorf("unsupported engine: %q (use %q or %q)", c.Engine, EngineNative, EngineOpenSSL)
	}

	if len(c.Providers) == 0 {
		return errors.New("providers must not be empty")
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, name := range c.Providers {
		if !provider.Known(name) {
			return fmt.Errorf("unknown provider: %q", name)
		}
		if seen[name] {
			return fmt.Errorf("duplicate provider: %q", name)
		}
		seen[name] = true
	}

	if c.OpenSSL.Iterations <= 0 {
		return fmt.Errorf("openssl.iterations must be positive, got %d", c.OpenSSL.Iterations)
	}
	if c.Engine == EngineOpenSSL && c.OpenSSL.Binary == "" {
		return errors.New("openssl.binary is required with the openssl engine")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unsupported log.level: %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unsupported log.format: %q", c.Log.Format)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return errors.New("server.rate_limit and server.rate_burst must not be negative")
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return errors.New("server.tls_cert and server.tls_key must be set together")
	}
	return nil
}

// Address returns the server listen address.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
