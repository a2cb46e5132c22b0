package sshkey

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"
	"io"
)

// GenerateOptions controls key generation.
type GenerateOptions struct {
	// Bits selects the RSA modulus size. Zero means the algorithm default.
	// Fixed-size algorithms reject a non-zero value.
	Bits int

	// Comment is attached to the generated material.
	Comment string

	// Rand overrides the randomness source. Nil means crypto/rand.
	Rand io.Reader
}

// Generate creates a new key pair with default parameters.
func Generate(alg Algorithm) (*KeyMaterial, error) {
	return GenerateWithOptions(alg, GenerateOptions{})
}

// GenerateWithOptions creates a new key pair. Algorithms outside the
// generation set (DSA) fail with ErrUnsupportedAlgorithm.
func GenerateWithOptions(alg Algorithm, opts GenerateOptions) (*KeyMaterial, error) {
	if err := EnsureInitialized(); err != nil {
		return nil, err
	}
	if !alg.IsValid() {
		return nil, opError("generate", alg, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg))
	}
	if !alg.SupportsGenerate() {
		return nil, opError("generate", alg,
			fmt.Errorf("%w: %s key generation is not supported", ErrUnsupportedAlgorithm, alg))
	}

	random := opts.Rand
	if random == nil {
		random = entropy
	}

	var priv interface{}
	var err error
	switch alg {
	case AlgRSA:
		bits := opts.Bits
		if bits == 0 {
			bits = alg.DefaultBits()
		}
		if min := algorithms[alg].MinBits; bits < min {
			return nil, opError("generate", alg, fmt.Errorf("RSA key size %d below minimum %d", bits, min))
		}
		priv, err = rsa.GenerateKey(random, bits)

	case AlgECDSAP256:
		if opts.Bits != 0 {
			return nil, opError("generate", alg, fmt.Errorf("%s has a fixed key size", alg))
		}
		priv, err = ecdsa.GenerateKey(elliptic.P256(), random)

	case AlgECDSAP384:
		if opts.Bits != 0 {
			return nil, opError("generate", alg, fmt.Errorf("%s has a fixed key size", alg))
		}
		priv, err = ecdsa.GenerateKey(elliptic.P384(), random)

	case AlgECDSAP521:
		if opts.Bits != 0 {
			return nil, opError("generate", alg, fmt.Errorf("%s has a fixed key size", alg))
		}
		priv, err = ecdsa.GenerateKey(elliptic.P521(), random)

	case AlgEd25519:
		if opts.Bits != 0 {
			return nil, opError("generate", alg, fmt.Errorf("%s has a fixed key size", alg))
		}
		_, priv, err = ed25519.GenerateKey(random)

	default:
		return nil, opError("generate", alg, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg))
	}
	if err != nil {
		return nil, opError("generate", alg, fmt.Errorf("key generation failed: %w", err))
	}

	return FromPrivateKey(priv, opts.Comment)
}
