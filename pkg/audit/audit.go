package audit

import (
	"context"
	"fmt"
	"sync"
)

var (
	// globalWriter is the default audit writer.
	globalWriter Writer = NopWriter{}
	globalMu     sync.RWMutex

	// enabled tracks whether audit logging is active.
	enabled bool
)

// Init installs w as the global audit writer. A nil writer disables
// audit logging.
func Init(w Writer) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if w == nil {
		globalWriter = NopWriter{}
		enabled = false
		return nil
	}

	globalWriter = w
	enabled = true
	return nil
}

// InitFile installs a FileWriter on path. An empty path disables audit
// logging.
func InitFile(path string) error {
	if path == "" {
		return Init(nil)
	}

	w, err := NewFileWriter(path)
	if err != nil {
		return err
	}
	return Init(w)
}

// Close closes the global audit writer.
func Close() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	err := globalWriter.Close()
	globalWriter = NopWriter{}
	enabled = false
	return err
}

// Enabled returns whether audit logging is active.
func Enabled() bool {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return enabled
}

// Log writes an audit event to the global writer.
//
// IMPORTANT: if this returns an error the calling operation must fail.
func Log(event *Event) error {
	globalMu.RLock()
	w := globalWriter
	globalMu.RUnlock()

	return w.Write(event)
}

// MustLog writes an audit event and wraps any failure for the caller to
// return:
//
//	if err := audit.MustLog(event); err != nil {
//	    return nil, err
//	}
func MustLog(event *Event) error {
	if err := Log(event); err != nil {
		return fmt.Errorf("audit log failed: %w", err)
	}
	return nil
}

type actorKey struct{}

// WithActor returns a context whose events are attributed to actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// newEventFor creates an event and applies the actor carried by ctx.
func newEventFor(ctx context.Context, eventType EventType, result Result) *Event {
	e := NewEvent(eventType, result)
	if a, ok := ctx.Value(actorKey{}).(Actor); ok {
		if a.Host == "" {
			a.Host = e.Actor.Host
		}
		e.WithActor(a)
	}
	return e
}

func resultOf(success bool) Result {
	if success {
		return ResultSuccess
	}
	return ResultFailure
}

// Container describes the container an event refers to.
type Container struct {
	Subject      string
	Serial       string
	FriendlyName string
	Algorithm    string
	CACount      int
}

func (c Container) object() Object {
	return Object{
		Type:         "pkcs12",
		Subject:      c.Subject,
		Serial:       c.Serial,
		FriendlyName: c.FriendlyName,
	}
}

// LogPKCS12Built logs a container build.
func LogPKCS12Built(ctx context.Context, engine string, providers []string, c Container, success bool, reason string) error {
	event := newEventFor(ctx, EventPKCS12Built, resultOf(success)).
		WithObject(c.object()).
		WithContext(Context{
			Engine:    engine,
			Providers: providers,
			Algorithm: c.Algorithm,
			CACount:   c.CACount,
			Reason:    reason,
		})

	return MustLog(event)
}

// LogPKCS12Repassphrased logs a container re-encoded under a new passphrase.
func LogPKCS12Repassphrased(ctx context.Context, engine string, providers []string, c Container, success bool, reason string) error {
	event := newEventFor(ctx, EventPKCS12Repassphrased, resultOf(success)).
		WithObject(c.object()).
		WithContext(Context{
			Engine:    engine,
			Providers: providers,
			Algorithm: c.Algorithm,
			CACount:   c.CACount,
			Reason:    reason,
		})

	return MustLog(event)
}

// LogPKCS12Inspected logs a container inspection.
func LogPKCS12Inspected(ctx context.Context, engine string, providers []string, c Container) error {
	event := newEventFor(ctx, EventPKCS12Inspected, ResultSuccess).
		WithObject(c.object()).
		WithContext(Context{
			Engine:    engine,
			Providers: providers,
			Algorithm: c.Algorithm,
			CACount:   c.CACount,
		})

	return MustLog(event)
}

// LogProviderLoadFailed logs a failure to load the providers of an operation.
func LogProviderLoadFailed(ctx context.Context, engine string, providers []string, reason string) error {
	event := newEventFor(ctx, EventProviderLoadFailed, ResultFailure).
		WithObject(Object{Type: "provider"}).
		WithContext(Context{
			Engine:    engine,
			Providers: providers,
			Reason:    reason,
		})

	return MustLog(event)
}

// LogAuthFailed logs a container that could not be opened, typically
// because of a wrong passphrase.
func LogAuthFailed(ctx context.Context, engine, reason string) error {
	event := newEventFor(ctx, EventAuthFailed, ResultFailure).
		WithObject(Object{Type: "pkcs12"}).
		WithContext(Context{
			Engine: engine,
			Reason: reason,
		})

	return MustLog(event)
}
