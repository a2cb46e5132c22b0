package sshkey

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
)

var (
	initOnce sync.Once
	initErr  error

	// entropy is the randomness source probed at bootstrap and used by
	// generation and signing. Overridden only in tests.
	entropy io.Reader = rand.Reader
)

// EnsureInitialized runs the one-time layer bootstrap: it validates and
// indexes the algorithm table, then probes the entropy source. Safe to
// call from any number of goroutines; the bootstrap executes exactly once
// and the result is sticky. Every exported operation of this package calls
// it, so explicit invocation is only needed by hosts that want to fail
// early.
//
// A non-nil result wraps ErrInitialization and is fatal to the layer:
// no operation will proceed past it.
func EnsureInitialized() error {
	initOnce.Do(func() {
		if err := initialize(entropy); err != nil {
			initErr = fmt.Errorf("%w: %v", ErrInitialization, err)
		}
	})
	return initErr
}

// initialize performs the bootstrap steps in dependency order:
// key-type registration, then runtime arming (entropy probe).
func initialize(entropy io.Reader) error {
	idx := make(map[string]Algorithm, len(algorithms))
	for alg, info := range algorithms {
		if info.WireName == "" || len(info.SigFormats) == 0 {
			return fmt.Errorf("algorithm %s: incomplete metadata", alg)
		}
		if dup, ok := idx[info.WireName]; ok {
			return fmt.Errorf("algorithm %s: wire name %q already bound to %s", alg, info.WireName, dup)
		}
		idx[info.WireName] = alg
	}
	wireToAlgorithm = idx

	var probe [1]byte
	if _, err := io.ReadFull(entropy, probe[:]); err != nil {
		return fmt.Errorf("entropy source unavailable: %v", err)
	}
	return nil
}
