// Package server provides HTTP server configuration and lifecycle management.
package server

import (
	"fmt"
	"time"
)

// Config holds the server configuration.
type Config struct {
	// Host is the address to bind to (default: "").
	Host string

	// Port is the HTTP port.
	Port int

	// TLS configuration (optional)
	TLSCert string
	TLSKey  string

	// MaxBodyBytes limits request bodies; zero means no limit.
	MaxBodyBytes int64

	// RateLimit caps API requests per second across all clients; zero
	// disables it.
	RateLimit float64
	RateBurst int

	// Timeouts
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:            8443,
		MaxBodyBytes:    1 << 20,
		RateLimit:       10,
		RateBurst:       20,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Address returns the listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TLS reports whether both TLS files are set.
func (c *Config) TLS() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}
