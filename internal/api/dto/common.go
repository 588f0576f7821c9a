// Package dto provides Data Transfer Objects for the REST API.
package dto

import (
	"encoding/base64"
	"fmt"
)

// APIError represents a standardized error response.
type APIError struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// Details provides additional context about the error.
	Details map[string]string `json:"details,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	// Status is "ok" or "degraded".
	Status string `json:"status"`

	// Version is the server version.
	Version string `json:"version"`

	// Engine is the PKCS#12 engine in use.
	Engine string `json:"engine"`
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	// Ready indicates if the server is ready to accept requests.
	Ready bool `json:"ready"`

	// Checks lists individual readiness checks, one per provider.
	Checks map[string]bool `json:"checks,omitempty"`
}

// DecodeContainer decodes a base64 container field.
func DecodeContainer(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("container is required")
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("container is not valid base64: %w", err)
	}
	return data, nil
}

// EncodeContainer encodes a container for a response.
func EncodeContainer(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
