package sshkey

import (
	"errors"
	"fmt"
)

// KeyError represents a key operation error with structured context.
// It supports errors.Is() and errors.As() for error handling.
type KeyError struct {
	Op        string    // Operation: "parse", "serialize", "derive", "generate", "fingerprint", "sign", "verify"
	Algorithm Algorithm // Key algorithm (if known)
	Err       error     // Underlying error
}

// Error implements the error interface.
func (e *KeyError) Error() string {
	if e.Algorithm != "" {
		return fmt.Sprintf("sshkey %s [%s]: %v", e.Op, e.Algorithm, e.Err)
	}
	return fmt.Sprintf("sshkey %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *KeyError) Unwrap() error { return e.Err }

// opError wraps err with operation context.
func opError(op string, alg Algorithm, err error) *KeyError {
	return &KeyError{Op: op, Algorithm: alg, Err: err}
}

// Sentinel errors for key operations.
// Use errors.Is() to check for these errors through the error chain.
var (
	// ErrMalformedKey indicates the input bytes could not be decoded as a key.
	ErrMalformedKey = errors.New("malformed key")

	// ErrUnsupportedAlgorithm indicates a valid encoding carrying an
	// algorithm outside the supported set, or an operation the algorithm
	// does not permit (e.g. DSA generation).
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")

	// ErrRoleMismatch indicates the decoded key role conflicts with the
	// role the caller expected.
	ErrRoleMismatch = errors.New("key role mismatch")

	// ErrNotPrivateKey indicates an operation requiring private material
	// was invoked on public-only material.
	ErrNotPrivateKey = errors.New("not a private key")

	// ErrNotPublicKey indicates an operation requiring public material was
	// invoked on material that carries none.
	ErrNotPublicKey = errors.New("not a public key")

	// ErrKeyNotExportable indicates private material backed by an opaque
	// signer (agent, HSM) that cannot be serialized.
	ErrKeyNotExportable = errors.New("private key not exportable")

	// ErrPassphraseRequired indicates an encrypted private key for which
	// no passphrase, or the wrong passphrase, was supplied.
	ErrPassphraseRequired = errors.New("passphrase required")

	// ErrSigningFailed indicates the signing layer rejected the operation.
	ErrSigningFailed = errors.New("signing failed")

	// ErrVerification indicates malformed verification input (wrong
	// signature encoding or algorithm mismatch). A signature that simply
	// does not match is a false result, not this error.
	ErrVerification = errors.New("verification error")

	// ErrInitialization indicates the one-time layer bootstrap failed.
	// The layer is unusable for the remainder of the process.
	ErrInitialization = errors.New("initialization failed")
)
