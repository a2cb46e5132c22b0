// Package sshkey represents SSH key material and the operations defined
// over it: parsing and serializing the standard encodings, deriving public
// halves, fingerprinting, signing and verification. Cryptographic
// primitives are delegated to golang.org/x/crypto/ssh and the standard
// library; this package owns the typing, the role model and the error
// contract.
package sshkey

import (
	"fmt"

	"golang.org/x/crypto/ssh"
)

// Algorithm identifies an SSH public-key algorithm.
type Algorithm string

// Supported key algorithms.
const (
	AlgRSA       Algorithm = "rsa"
	AlgDSA       Algorithm = "dsa"
	AlgECDSAP256 Algorithm = "ecdsa-p256"
	AlgECDSAP384 Algorithm = "ecdsa-p384"
	AlgECDSAP521 Algorithm = "ecdsa-p521"
	AlgEd25519   Algorithm = "ed25519"
)

// algorithmInfo holds metadata about a key algorithm.
type algorithmInfo struct {
	WireName    string   // key format name on the wire (RFC 4253 / RFC 5656)
	SigFormats  []string // acceptable signature format names, preferred first
	DefaultBits int      // default key size for generation (0 = fixed size)
	MinBits     int      // minimum accepted size for generation
	Generate    bool     // key generation supported
	Export      bool     // private-key serialization supported
	Description string
}

// algorithms maps Algorithm to its metadata.
var algorithms = map[Algorithm]algorithmInfo{
	AlgRSA: {
		WireName:    ssh.KeyAlgoRSA,
		SigFormats:  []string{ssh.KeyAlgoRSASHA256, ssh.KeyAlgoRSASHA512, ssh.KeyAlgoRSA},
		DefaultBits: 3072,
		MinBits:     2048,
		Generate:    true,
		Export:      true,
		Description: "RSA",
	},
	AlgDSA: {
		WireName:    ssh.KeyAlgoDSA,
		SigFormats:  []string{ssh.KeyAlgoDSA},
		DefaultBits: 1024,
		Generate:    false, // removed from OpenSSH; kept read-only
		Export:      false, // no PKCS#8 or OpenSSH private encoding in Go
		Description: "DSA (legacy, read-only)",
	},
	AlgECDSAP256: {
		WireName:    ssh.KeyAlgoECDSA256,
		SigFormats:  []string{ssh.KeyAlgoECDSA256},
		Generate:    true,
		Export:      true,
		Description: "ECDSA over NIST P-256",
	},
	AlgECDSAP384: {
		WireName:    ssh.KeyAlgoECDSA384,
		SigFormats:  []string{ssh.KeyAlgoECDSA384},
		Generate:    true,
		Export:      true,
		Description: "ECDSA over NIST P-384",
	},
	AlgECDSAP521: {
		WireName:    ssh.KeyAlgoECDSA521,
		SigFormats:  []string{ssh.KeyAlgoECDSA521},
		Generate:    true,
		Export:      true,
		Description: "ECDSA over NIST P-521",
	},
	AlgEd25519: {
		WireName:    ssh.KeyAlgoED25519,
		SigFormats:  []string{ssh.KeyAlgoED25519},
		Generate:    true,
		Export:      true,
		Description: "Ed25519",
	},
}

// wireToAlgorithm indexes algorithms by wire name. Built by EnsureInitialized.
var wireToAlgorithm map[string]Algorithm

// IsValid reports whether the algorithm is in the supported set.
func (a Algorithm) IsValid() bool {
	_, ok := algorithms[a]
	return ok
}

// WireName returns the key format name used on the SSH wire
// (e.g. "ssh-ed25519"). Empty for unknown algorithms.
func (a Algorithm) WireName() string {
	if info, ok := algorithms[a]; ok {
		return info.WireName
	}
	return ""
}

// SignatureFormats returns the signature format names a key of this
// algorithm may produce or accept, preferred format first.
func (a Algorithm) SignatureFormats() []string {
	if info, ok := algorithms[a]; ok {
		out := make([]string, len(info.SigFormats))
		copy(out, info.SigFormats)
		return out
	}
	return nil
}

// AcceptsSignatureFormat reports whether sigFormat is a valid signature
// format name for keys of this algorithm.
func (a Algorithm) AcceptsSignatureFormat(sigFormat string) bool {
	for _, f := range a.SignatureFormats() {
		if f == sigFormat {
			return true
		}
	}
	return false
}

// DefaultBits returns the default key size for generation.
// Zero means the algorithm has a fixed size.
func (a Algorithm) DefaultBits() int {
	if info, ok := algorithms[a]; ok {
		return info.DefaultBits
	}
	return 0
}

// SupportsGenerate returns true if new keys of this algorithm can be
// generated.
func (a Algorithm) SupportsGenerate() bool {
	if info, ok := algorithms[a]; ok {
		return info.Generate
	}
	return false
}

// SupportsExport returns true if private keys of this algorithm can be
// serialized to a private-key encoding.
func (a Algorithm) SupportsExport() bool {
	if info, ok := algorithms[a]; ok {
		return info.Export
	}
	return false
}

// Description names the algorithm for display (key info, REST list).
func (a Algorithm) Description() string {
	if info, ok := algorithms[a]; ok {
		return info.Description
	}
	return "unrecognized algorithm"
}

// String returns the CLI identifier (e.g. "ecdsa-p256").
func (a Algorithm) String() string {
	return string(a)
}

// ParseAlgorithm parses a string into an Algorithm.
// Returns ErrUnsupportedAlgorithm if the name is not recognized.
func ParseAlgorithm(s string) (Algorithm, error) {
	alg := Algorithm(s)
	if !alg.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, s)
	}
	return alg, nil
}

// AlgorithmFromWire maps a wire key format name (e.g. "ecdsa-sha2-nistp256")
// to its Algorithm. Returns ErrUnsupportedAlgorithm for unknown names,
// including certificate and security-key variants.
func AlgorithmFromWire(wireName string) (Algorithm, error) {
	if err := EnsureInitialized(); err != nil {
		return "", err
	}
	if alg, ok := wireToAlgorithm[wireName]; ok {
		return alg, nil
	}
	return "", fmt.Errorf("%w: wire format %q", ErrUnsupportedAlgorithm, wireName)
}

// AllAlgorithms returns all supported algorithms in stable order.
func AllAlgorithms() []Algorithm {
	return []Algorithm{AlgRSA, AlgDSA, AlgECDSAP256, AlgECDSAP384, AlgECDSAP521, AlgEd25519}
}

// GenerateAlgorithms returns the algorithms supported for key generation.
func GenerateAlgorithms() []Algorithm {
	var result []Algorithm
	for _, alg := range AllAlgorithms() {
		if alg.SupportsGenerate() {
			result = append(result, alg)
		}
	}
	return result
}
