// Package bind exposes the key toolkit to embedding hosts as a table of
// named operations over a shared key ring. Hosts call Initialize once at
// startup, then resolve operations by name through the Default surface;
// the CLI and the REST API both consume the same table.
//
// Initialization is exactly-once and sticky: the first call performs the
// ordered bootstrap (key-type registration, operation table, default
// ring) and every later call observes the first outcome. Operations
// invoked before a successful Initialize fail with
// sshkey.ErrInitialization.
package bind

import (
	"context"
	"fmt"
	"sync"

	"github.com/keyfob-io/keyfob/pkg/keyring"
	"github.com/keyfob-io/keyfob/pkg/sshkey"
)

// gate memoizes a one-shot arming outcome. The zero value is ready to
// use; run executes arm at most once and every caller, concurrent or
// later, sees the same result.
type gate struct {
	once sync.Once
	mu   sync.RWMutex
	s    *Surface
	err  error
}

func (g *gate) run(arm func() (*Surface, error)) error {
	g.once.Do(func() {
		s, err := arm()
		g.mu.Lock()
		g.s, g.err = s, err
		g.mu.Unlock()
	})
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.err
}

func (g *gate) surface() (*Surface, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.err != nil {
		return nil, g.err
	}
	if g.s == nil {
		return nil, fmt.Errorf("%w: bind.Initialize has not been called",
			sshkey.ErrInitialization)
	}
	return g.s, nil
}

// arm performs the ordered bootstrap: key-type registration first, then
// the operation table over a fresh default ring. Failure at any step is
// final; the gate replays it to every subsequent call.
func arm() (*Surface, error) {
	if err := sshkey.EnsureInitialized(); err != nil {
		return nil, err
	}
	return NewSurface(keyring.New()), nil
}

var defaultGate gate

// Initialize arms the default surface. The first call does the work;
// repeated and concurrent calls return the memoized outcome. Hosts must
// call it once at startup, before resolving operations.
func Initialize() error {
	return defaultGate.run(arm)
}

// Default returns the process-wide surface. It fails with
// sshkey.ErrInitialization until Initialize has succeeded.
func Default() (*Surface, error) {
	return defaultGate.surface()
}

// Call resolves name on the default surface and invokes it. It is the
// one-line path for hosts that do not hold a Surface of their own.
func Call(ctx context.Context, name string, args Args) (any, error) {
	s, err := Default()
	if err != nil {
		return nil, err
	}
	return s.Call(ctx, name, args)
}
