package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// recordingLoader wraps Builtin and records load/unload order.
type recordingLoader struct {
	*Builtin
	mu        sync.Mutex
	loaded    []string
	unloaded  []string
	unloadErr error
}

func newRecordingLoader(disabled ...string) *recordingLoader {
	return &recordingLoader{Builtin: NewBuiltin(disabled...)}
}

func (l *recordingLoader) Load(ctx context.Context, name string) (Provider, error) {
	p, err := l.Builtin.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.loaded = append(l.loaded, name)
	l.mu.Unlock()
	return p, nil
}

func (l *recordingLoader) Unload(p Provider) error {
	l.mu.Lock()
	l.unloaded = append(l.unloaded, p.Name())
	l.mu.Unlock()
	return l.unloadErr
}

// =============================================================================
// Catalog / Builtin Tests
// =============================================================================

func TestU_Catalog_KnownProviders(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		alg      Algorithm
		want     bool
	}{
		{"[Unit] Catalog: legacy has RC2-40", Legacy, AlgRC240CBC, true},
		{"[Unit] Catalog: legacy lacks 3DES", Legacy, AlgDESEDE3CBC, false},
		{"[Unit] Catalog: default has 3DES", Default, AlgDESEDE3CBC, true},
		{"[Unit] Catalog: default has PKCS12KDF", Default, AlgPKCS12KDF, true},
		{"[Unit] Catalog: default lacks RC2-40", Default, AlgRC240CBC, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := false
			for _, a := range Catalog(tt.provider) {
				if a == tt.alg {
					got = true
				}
			}
			if got != tt.want {
				t.Errorf("Catalog(%s) contains %s = %v, want %v", tt.provider, tt.alg, got, tt.want)
			}
		})
	}
}

func TestU_Catalog_Unknown(t *testing.T) {
	if Catalog("fips") != nil {
		t.Error("Catalog(fips) should be nil")
	}
	if Known("fips") {
		t.Error("Known(fips) should be false")
	}
	if !Known(Legacy) {
		t.Error("Known(legacy) should be true")
	}
}

func TestU_Catalog_ReturnsCopy(t *testing.T) {
	algs := Catalog(Legacy)
	algs[0] = "TAMPERED"
	if Catalog(Legacy)[0] == "TAMPERED" {
		t.Error("Catalog() must not expose internal state")
	}
}

func TestU_Builtin_Load(t *testing.T) {
	b := NewBuiltin()

	p, err := b.Load(context.Background(), Legacy)
	if err != nil {
		t.Fatalf("Load(legacy) error = %v", err)
	}
	if p.Name() != Legacy {
		t.Errorf("Name() = %s, want %s", p.Name(), Legacy)
	}
	if !p.Supports(AlgRC240CBC) {
		t.Error("legacy provider should support RC2-40-CBC")
	}
}

func TestU_Builtin_LoadUnknown(t *testing.T) {
	_, err := NewBuiltin().Load(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(nonexistent) error = %v, want ErrNotFound", err)
	}
}

func TestU_Builtin_DisableEnable(t *testing.T) {
	b := NewBuiltin(Legacy)

	if _, err := b.Load(context.Background(), Legacy); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Load(disabled legacy) error = %v, want ErrUnavailable", err)
	}

	b.Enable(Legacy)
	if _, err := b.Load(context.Background(), Legacy); err != nil {
		t.Fatalf("Load(enabled legacy) error = %v", err)
	}

	b.Disable(Default)
	if _, err := b.Load(context.Background(), Default); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Load(disabled default) error = %v, want ErrUnavailable", err)
	}
}

func TestU_Builtin_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewBuiltin().Load(ctx, Legacy); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

// =============================================================================
// Registry / Guard Tests
// =============================================================================

func TestU_Registry_AcquireRelease(t *testing.T) {
	loader := newRecordingLoader()
	reg := NewRegistry(loader, nil)

	guard, err := reg.Acquire(context.Background(), Legacy, Default)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if got := reg.Outstanding(); got != 2 {
		t.Errorf("Outstanding() = %d, want 2", got)
	}

	names := guard.Names()
	if len(names) != 2 || names[0] != Legacy || names[1] != Default {
		t.Errorf("Names() = %v, want [legacy default]", names)
	}

	if err := guard.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if got := reg.Outstanding(); got != 0 {
		t.Errorf("Outstanding() after Release = %d, want 0", got)
	}

	// Unloaded in reverse order
	if len(loader.unloaded) != 2 || loader.unloaded[0] != Default || loader.unloaded[1] != Legacy {
		t.Errorf("unload order = %v, want [default legacy]", loader.unloaded)
	}
}

func TestU_Registry_AcquirePartialFailureRollsBack(t *testing.T) {
	loader := newRecordingLoader(Default)
	reg := NewRegistry(loader, nil)

	guard, err := reg.Acquire(context.Background(), Legacy, Default)
	if err == nil {
		t.Fatal("Acquire() should fail when default is unavailable")
	}
	if guard != nil {
		t.Error("Acquire() should return a nil guard on failure")
	}
	if !errors.Is(err, ErrLoad) || !errors.Is(err, ErrUnavailable) {
		t.Errorf("Acquire() error = %v, want ErrLoad wrapping ErrUnavailable", err)
	}

	if got := reg.Outstanding(); got != 0 {
		t.Errorf("Outstanding() = %d, want 0 (legacy must be unloaded)", got)
	}
	if len(loader.unloaded) != 1 || loader.unloaded[0] != Legacy {
		t.Errorf("unloaded = %v, want [legacy]", loader.unloaded)
	}
}

func TestU_Registry_AcquireFirstFailure(t *testing.T) {
	loader := newRecordingLoader(Legacy)
	reg := NewRegistry(loader, nil)

	if _, err := reg.Acquire(context.Background(), Legacy, Default); err == nil {
		t.Fatal("Acquire() should fail when legacy is unavailable")
	}
	if len(loader.loaded) != 0 {
		t.Errorf("loaded = %v, default must not be loaded after legacy fails", loader.loaded)
	}
	if got := reg.Outstanding(); got != 0 {
		t.Errorf("Outstanding() = %d, want 0", got)
	}
}

func TestU_Guard_ReleaseIdempotent(t *testing.T) {
	loader := newRecordingLoader()
	reg := NewRegistry(loader, nil)

	guard, err := reg.Acquire(context.Background(), Legacy, Default)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := guard.Release(); err != nil {
			t.Fatalf("Release() #%d error = %v", i, err)
		}
	}
	if len(loader.unloaded) != 2 {
		t.Errorf("unload calls = %d, want 2", len(loader.unloaded))
	}
}

func TestU_Guard_NilSafe(t *testing.T) {
	var g *Guard
	if err := g.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}
	if g.Names() != nil {
		t.Error("nil Names() should be nil")
	}
	if g.Supports(AlgSHA1) {
		t.Error("nil Supports() should be false")
	}
}

func TestU_Guard_Require(t *testing.T) {
	reg := NewRegistry(NewBuiltin(), nil)

	guard, err := reg.Acquire(context.Background(), Default)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer func() { _ = guard.Release() }()

	if err := guard.Require(AlgDESEDE3CBC, AlgHMAC, AlgSHA1); err != nil {
		t.Errorf("Require(default algs) error = %v", err)
	}
	if err := guard.Require(AlgSHA1, AlgRC240CBC); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Require(RC2-40) error = %v, want ErrUnsupported", err)
	}
}

func TestU_Guard_ReleaseReportsUnloadError(t *testing.T) {
	loader := newRecordingLoader()
	loader.unloadErr = errors.New("busy")
	reg := NewRegistry(loader, nil)

	guard, err := reg.Acquire(context.Background(), Legacy, Default)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if err := guard.Release(); err == nil {
		t.Error("Release() should report unload errors")
	}
	// Handles are forgotten even when the loader complains
	if got := reg.Outstanding(); got != 0 {
		t.Errorf("Outstanding() = %d, want 0", got)
	}
}

func TestU_Handle_UnloadNil(t *testing.T) {
	var h *Handle
	if err := h.Unload(); err != nil {
		t.Errorf("nil Unload() error = %v", err)
	}
}

func TestU_Registry_ConcurrentGuards(t *testing.T) {
	reg := NewRegistry(NewBuiltin(), nil)

	var wg sync.WaitGroup
	errCh := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, err := reg.Acquire(context.Background(), Legacy, Default)
			if err != nil {
				errCh <- err
				return
			}
			if err := g.Require(AlgRC240CBC, AlgDESEDE3CBC); err != nil {
				errCh <- err
			}
			if err := g.Release(); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent guard error: %v", err)
	}
	if got := reg.Outstanding(); got != 0 {
		t.Errorf("Outstanding() = %d, want 0", got)
	}
}
