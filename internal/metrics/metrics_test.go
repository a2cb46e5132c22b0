package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/keyfob-io/keyfob/pkg/keyring"
	"github.com/keyfob-io/keyfob/pkg/sshkey"
)

func testMaterial(t *testing.T) *sshkey.KeyMaterial {
	t.Helper()
	m, err := sshkey.Generate(sshkey.AlgEd25519)
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	return m
}

// =============================================================================
// [Unit] Ring Collector Tests
// =============================================================================

func TestU_Metrics_RingCollectors_TrackStats(t *testing.T) {
	ring := keyring.New()
	collectors := NewRingCollectors(ring.Stats)
	if len(collectors) != 5 {
		t.Fatalf("NewRingCollectors() returned %d collectors, want 5", len(collectors))
	}

	live, acquired, released, finalized, borrows := collectors[0], collectors[1], collectors[2], collectors[3], collectors[4]

	h1 := ring.Acquire(testMaterial(t))
	h2 := ring.Acquire(testMaterial(t))

	if got := testutil.ToFloat64(live); got != 2 {
		t.Errorf("live handles = %v, want 2", got)
	}
	if got := testutil.ToFloat64(acquired); got != 2 {
		t.Errorf("acquired total = %v, want 2", got)
	}

	if err := ring.Borrow(h1, func(*sshkey.KeyMaterial) error { return nil }); err != nil {
		t.Fatalf("Borrow() failed: %v", err)
	}
	if got := testutil.ToFloat64(borrows); got != 1 {
		t.Errorf("borrows total = %v, want 1", got)
	}

	if err := ring.Release(h2); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}
	if got := testutil.ToFloat64(live); got != 1 {
		t.Errorf("live handles after release = %v, want 1", got)
	}
	if got := testutil.ToFloat64(released); got != 1 {
		t.Errorf("released total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(finalized); got != 0 {
		t.Errorf("finalized total = %v, want 0", got)
	}
}

// =============================================================================
// [Unit] Register Tests
// =============================================================================

func TestU_Metrics_Register_Repeatable(t *testing.T) {
	ring := keyring.New()
	reg := prometheus.NewRegistry()

	if err := Register(reg, ring.Stats); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	// A second registration of the same names must not fail.
	if err := Register(reg, ring.Stats); err != nil {
		t.Fatalf("repeat Register() failed: %v", err)
	}
}

func TestU_Metrics_Register_GathersRingFamilies(t *testing.T) {
	ring := keyring.New()
	reg := prometheus.NewRegistry()
	if err := Register(reg, ring.Stats); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	ring.Acquire(testMaterial(t))

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}

	got := map[string]bool{}
	for _, mf := range families {
		got[mf.GetName()] = true
	}
	for _, want := range []string{
		"keyfob_ring_live_handles",
		"keyfob_ring_acquired_total",
		"keyfob_ring_released_total",
		"keyfob_ring_finalized_total",
		"keyfob_ring_borrows_total",
	} {
		if !got[want] {
			t.Errorf("Gather() missing family %s (got %v)", want, got)
		}
	}
}

func TestU_Metrics_Register_NilStatsSkipsRing(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg, nil); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == "keyfob_ring_live_handles" {
			t.Error("ring collectors registered despite nil stats func")
		}
	}
}

// =============================================================================
// [Unit] Host Counter Tests
// =============================================================================

func TestU_Metrics_APIRequestsTotal(t *testing.T) {
	counter := APIRequestsTotal.WithLabelValues("sign", "200")
	before := testutil.ToFloat64(counter)

	counter.Inc()
	counter.Inc()

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("api requests delta = %v, want 2", got)
	}
}

func TestU_Metrics_SignOperationsTotal(t *testing.T) {
	before := testutil.ToFloat64(SignOperationsTotal)
	SignOperationsTotal.Inc()

	if got := testutil.ToFloat64(SignOperationsTotal) - before; got != 1 {
		t.Errorf("sign operations delta = %v, want 1", got)
	}
}
