// Package audit records PKCS#12 operations in a tamper-evident log.
//
// Audit logs are separate from technical logs. They hold one JSON event
// per line, each chained to the previous one by a SHA-256 hash.
//
// Rules:
//   - Audit failure = Operation failure
//   - Never log secrets (private keys, passphrases, container bytes)
//   - All timestamps in UTC
package audit

import (
	"encoding/json"
	"errors"
	"os"
	"time"
)

// EventType represents the category of audit event.
type EventType string

const (
	// Container events
	EventPKCS12Built         EventType = "PKCS12_BUILT"
	EventPKCS12Repassphrased EventType = "PKCS12_REPASSPHRASED"
	EventPKCS12Inspected     EventType = "PKCS12_INSPECTED"

	// Provider events
	EventProviderLoadFailed EventType = "PROVIDER_LOAD_FAILED"

	// Security events
	EventAuthFailed EventType = "AUTH_FAILED"
)

// Result represents the outcome of an audited operation.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Actor represents who performed the action.
type Actor struct {
	Type string `json:"type"`           // "user", "service"
	ID   string `json:"id"`             // username or remote address
	Host string `json:"host,omitempty"` // hostname where action occurred
}

// Object represents the container acted upon.
type Object struct {
	Type         string `json:"type"`                    // "pkcs12", "provider"
	Subject      string `json:"subject,omitempty"`       // end-entity certificate subject DN
	Serial       string `json:"serial,omitempty"`        // end-entity certificate serial
	FriendlyName string `json:"friendly_name,omitempty"` // friendly name bag attribute
}

// Context provides additional details about the operation.
type Context struct {
	Engine    string   `json:"engine,omitempty"`    // "native", "openssl"
	Providers []string `json:"providers,omitempty"` // providers loaded for the operation
	Algorithm string   `json:"algorithm,omitempty"` // private key algorithm
	CACount   int      `json:"ca_count,omitempty"`  // number of CA certificates
	Reason    string   `json:"reason,omitempty"`    // failure reason
}

// Event represents a single audit log entry.
type Event struct {
	EventType EventType `json:"event_type"`
	Timestamp string    `json:"timestamp"` // RFC3339 UTC
	Actor     Actor     `json:"actor"`
	Object    Object    `json:"object"`
	Context   Context   `json:"context,omitempty"`
	Result    Result    `json:"result"`
	HashPrev  string    `json:"hash_prev"`
	Hash      string    `json:"hash"`
}

// NewEvent creates an event stamped with the current time and local user.
func NewEvent(eventType EventType, result Result) *Event {
	hostname, _ := os.Hostname()

	return &Event{
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Actor: Actor{
			Type: "user",
			ID:   currentUser(),
			Host: hostname,
		},
		Result: result,
	}
}

func currentUser() string {
	for _, env := range []string{"USER", "USERNAME"} {
		if u := os.Getenv(env); u != "" {
			return u
		}
	}
	return "unknown"
}

// WithObject sets the object field.
func (e *Event) WithObject(obj Object) *Event {
	e.Object = obj
	return e
}

// WithContext sets the context field.
func (e *Event) WithContext(ctx Context) *Event {
	e.Context = ctx
	return e
}

// WithActor overrides the default actor.
func (e *Event) WithActor(actor Actor) *Event {
	e.Actor = actor
	return e
}

// Validate checks that required fields are present.
func (e *Event) Validate() error {
	switch {
	case e.EventType == "":
		return errors.New("event_type is required")
	case e.Timestamp == "":
		return errors.New("timestamp is required")
	case e.Actor.Type == "" || e.Actor.ID == "":
		return errors.New("actor type and id are required")
	case e.Result == "":
		return errors.New("result is required")
	}
	return nil
}

// CanonicalJSON returns the event without its own hash, the input of the
// chain hash.
func (e *Event) CanonicalJSON() ([]byte, error) {
	type canonical struct {
		EventType EventType `json:"event_type"`
		Timestamp string    `json:"timestamp"`
		Actor     Actor     `json:"actor"`
		Object    Object    `json:"object"`
		Context   Context   `json:"context,omitempty"`
		Result    Result    `json:"result"`
		HashPrev  string    `json:"hash_prev"`
	}
	return json.Marshal(canonical{
		EventType: e.EventType,
		Timestamp: e.Timestamp,
		Actor:     e.Actor,
		Object:    e.Object,
		Context:   e.Context,
		Result:    e.Result,
		HashPrev:  e.HashPrev,
	})
}

// JSON returns the full event as JSON.
func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}
