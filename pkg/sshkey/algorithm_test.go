package sshkey

import (
	"errors"
	"testing"
)

// =============================================================================
// [Unit] Algorithm Capability Tests
// =============================================================================

func TestU_Algorithm_Capabilities(t *testing.T) {
	tests := []struct {
		name         string
		alg          Algorithm
		wantValid    bool
		wantWire     string
		wantGenerate bool
		wantExport   bool
	}{
		{"[Unit] Capabilities: RSA", AlgRSA, true, "ssh-rsa", true, true},
		{"[Unit] Capabilities: DSA", AlgDSA, true, "ssh-dss", false, false},
		{"[Unit] Capabilities: ECDSA P-256", AlgECDSAP256, true, "ecdsa-sha2-nistp256", true, true},
		{"[Unit] Capabilities: ECDSA P-384", AlgECDSAP384, true, "ecdsa-sha2-nistp384", true, true},
		{"[Unit] Capabilities: ECDSA P-521", AlgECDSAP521, true, "ecdsa-sha2-nistp521", true, true},
		{"[Unit] Capabilities: Ed25519", AlgEd25519, true, "ssh-ed25519", true, true},
		{"[Unit] Capabilities: Invalid Algorithm", "invalid", false, "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.alg.IsValid(); got != tt.wantValid {
				t.Errorf("IsValid() = %v, want %v", got, tt.wantValid)
			}
			if got := tt.alg.WireName(); got != tt.wantWire {
				t.Errorf("WireName() = %q, want %q", got, tt.wantWire)
			}
			if got := tt.alg.SupportsGenerate(); got != tt.wantGenerate {
				t.Errorf("SupportsGenerate() = %v, want %v", got, tt.wantGenerate)
			}
			if got := tt.alg.SupportsExport(); got != tt.wantExport {
				t.Errorf("SupportsExport() = %v, want %v", got, tt.wantExport)
			}
		})
	}
}

func TestU_Algorithm_SignatureFormats(t *testing.T) {
	tests := []struct {
		name       string
		alg        Algorithm
		format     string
		wantAccept bool
	}{
		{"[Unit] SigFormat: RSA accepts rsa-sha2-256", AlgRSA, "rsa-sha2-256", true},
		{"[Unit] SigFormat: RSA accepts rsa-sha2-512", AlgRSA, "rsa-sha2-512", true},
		{"[Unit] SigFormat: RSA accepts legacy ssh-rsa", AlgRSA, "ssh-rsa", true},
		{"[Unit] SigFormat: RSA rejects ed25519", AlgRSA, "ssh-ed25519", false},
		{"[Unit] SigFormat: Ed25519 accepts its own", AlgEd25519, "ssh-ed25519", true},
		{"[Unit] SigFormat: Ed25519 rejects rsa", AlgEd25519, "rsa-sha2-256", false},
		{"[Unit] SigFormat: P-256 rejects P-384", AlgECDSAP256, "ecdsa-sha2-nistp384", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.alg.AcceptsSignatureFormat(tt.format); got != tt.wantAccept {
				t.Errorf("AcceptsSignatureFormat(%q) = %v, want %v", tt.format, got, tt.wantAccept)
			}
		})
	}
}

func TestU_ParseAlgorithm(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Algorithm
		wantErr bool
	}{
		{"[Unit] Parse: rsa", "rsa", AlgRSA, false},
		{"[Unit] Parse: ed25519", "ed25519", AlgEd25519, false},
		{"[Unit] Parse: ecdsa-p384", "ecdsa-p384", AlgECDSAP384, false},
		{"[Unit] Parse: invalid", "ed448", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAlgorithm(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseAlgorithm() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && !errors.Is(err, ErrUnsupportedAlgorithm) {
				t.Errorf("ParseAlgorithm() error = %v, want ErrUnsupportedAlgorithm", err)
			}
			if got != tt.want {
				t.Errorf("ParseAlgorithm() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestU_AlgorithmFromWire(t *testing.T) {
	tests := []struct {
		name    string
		wire    string
		want    Algorithm
		wantErr bool
	}{
		{"[Unit] Wire: ssh-ed25519", "ssh-ed25519", AlgEd25519, false},
		{"[Unit] Wire: ssh-rsa", "ssh-rsa", AlgRSA, false},
		{"[Unit] Wire: ssh-dss", "ssh-dss", AlgDSA, false},
		{"[Unit] Wire: nistp521", "ecdsa-sha2-nistp521", AlgECDSAP521, false},
		{"[Unit] Wire: certificate variant rejected", "ssh-ed25519-cert-v01@openssh.com", "", true},
		{"[Unit] Wire: security key rejected", "sk-ssh-ed25519@openssh.com", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AlgorithmFromWire(tt.wire)
			if (err != nil) != tt.wantErr {
				t.Errorf("AlgorithmFromWire() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && !errors.Is(err, ErrUnsupportedAlgorithm) {
				t.Errorf("AlgorithmFromWire() error = %v, want ErrUnsupportedAlgorithm", err)
			}
			if got != tt.want {
				t.Errorf("AlgorithmFromWire() = %v, want %v", got, tt.want)
			}
		})
	}
}

// =============================================================================
// [Unit] Role Tests
// =============================================================================

func TestU_Role_Capabilities(t *testing.T) {
	tests := []struct {
		name       string
		role       Role
		wantSign   bool
		wantVerify bool
	}{
		{"[Unit] Role: public", RolePublic, false, true},
		{"[Unit] Role: private", RolePrivate, true, true},
		{"[Unit] Role: pair", RolePair, true, true},
		{"[Unit] Role: invalid", Role("half"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.role.CanSign(); got != tt.wantSign {
				t.Errorf("CanSign() = %v, want %v", got, tt.wantSign)
			}
			if got := tt.role.CanVerify(); got != tt.wantVerify {
				t.Errorf("CanVerify() = %v, want %v", got, tt.wantVerify)
			}
		})
	}
}

func TestU_Role_Satisfies(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		expected Role
		want     bool
	}{
		{"[Unit] Satisfies: pair meets private", RolePair, RolePrivate, true},
		{"[Unit] Satisfies: private meets pair", RolePrivate, RolePair, true},
		{"[Unit] Satisfies: public meets public", RolePublic, RolePublic, true},
		{"[Unit] Satisfies: public does not meet private", RolePublic, RolePrivate, false},
		{"[Unit] Satisfies: pair does not meet public", RolePair, RolePublic, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.role.Satisfies(tt.expected); got != tt.want {
				t.Errorf("Satisfies(%s) = %v, want %v", tt.expected, got, tt.want)
			}
		})
	}
}

// =============================================================================
// [Unit] Bootstrap Tests
// =============================================================================

func TestU_EnsureInitialized_Idempotent(t *testing.T) {
	if err := EnsureInitialized(); err != nil {
		t.Fatalf("EnsureInitialized() error = %v", err)
	}
	if err := EnsureInitialized(); err != nil {
		t.Errorf("second EnsureInitialized() error = %v", err)
	}
}

func TestU_EnsureInitialized_Concurrent(t *testing.T) {
	const n = 32
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() { errs <- EnsureInitialized() }()
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Errorf("concurrent EnsureInitialized() error = %v", err)
		}
	}
}

func TestU_Initialize_EntropyFailure(t *testing.T) {
	// Drive the bootstrap steps directly: the package-level gate is
	// process-wide and already armed by other tests.
	if err := initialize(failingReader{}); err == nil {
		t.Fatal("initialize() with failing entropy should error")
	}
	if err := initialize(entropy); err != nil {
		t.Fatalf("initialize() with real entropy error = %v", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}
