package sshkey

import (
	"bytes"
	"crypto"
	"crypto/dsa" //nolint:staticcheck // legacy ssh-dss keys are still read
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// Role describes which halves of a key pair a KeyMaterial carries.
type Role string

const (
	// RolePublic is public-half-only material.
	RolePublic Role = "public"

	// RolePrivate is private material. Every supported private encoding
	// embeds or derives the public half, so in practice decoded private
	// material carries RolePair; RolePrivate is accepted wherever RolePair
	// is.
	RolePrivate Role = "private"

	// RolePair is private material together with its public half.
	RolePair Role = "pair"
)

// IsValid returns true if the role is recognized.
func (r Role) IsValid() bool {
	switch r {
	case RolePublic, RolePrivate, RolePair:
		return true
	}
	return false
}

// CanSign returns true for roles that carry private material.
func (r Role) CanSign() bool {
	return r == RolePrivate || r == RolePair
}

// CanVerify returns true for roles that carry a public half.
// All supported roles do.
func (r Role) CanVerify() bool {
	return r.IsValid()
}

// Satisfies reports whether material of role r meets an expectation of
// role expected. RolePrivate and RolePair satisfy each other.
func (r Role) Satisfies(expected Role) bool {
	if r == expected {
		return true
	}
	return r.CanSign() && expected.CanSign()
}

// String returns the role as a string.
func (r Role) String() string {
	return string(r)
}

// ParseRole parses a string into a Role.
func ParseRole(s string) (Role, error) {
	role := Role(s)
	if !role.IsValid() {
		return "", fmt.Errorf("unknown key role: %q", s)
	}
	return role, nil
}

// KeyMaterial is the immutable in-memory representation of a single key:
// its algorithm, role, optional comment, public half, and (for
// private-capable material) the signing backend. Transformations such as
// WithComment and DerivePublic return new instances; a constructed
// KeyMaterial is never mutated and is safe to share across goroutines.
type KeyMaterial struct {
	algorithm Algorithm
	role      Role
	comment   string
	pub       ssh.PublicKey
	signer    ssh.Signer        // non-nil iff role.CanSign()
	priv      crypto.PrivateKey // non-nil only for exportable software keys
}

// FromPublicKey wraps an ssh.PublicKey as public-only KeyMaterial.
// The key is re-parsed from its wire blob so that all material carries the
// canonical x/crypto representation regardless of source.
func FromPublicKey(pub ssh.PublicKey, comment string) (*KeyMaterial, error) {
	if err := EnsureInitialized(); err != nil {
		return nil, err
	}
	if pub == nil {
		return nil, opError("wrap", "", fmt.Errorf("%w: nil public key", ErrNotPublicKey))
	}
	canonical, err := ssh.ParsePublicKey(pub.Marshal())
	if err != nil {
		return nil, opError("wrap", "", fmt.Errorf("%w: %v", ErrMalformedKey, err))
	}
	alg, err := AlgorithmFromWire(canonical.Type())
	if err != nil {
		return nil, opError("wrap", "", err)
	}
	return &KeyMaterial{
		algorithm: alg,
		role:      RolePublic,
		comment:   comment,
		pub:       canonical,
	}, nil
}

// FromPrivateKey wraps a parsed software private key (one of *rsa.PrivateKey,
// *dsa.PrivateKey, *ecdsa.PrivateKey, ed25519.PrivateKey) as pair-role
// KeyMaterial. The material is exportable.
func FromPrivateKey(priv crypto.PrivateKey, comment string) (*KeyMaterial, error) {
	if err := EnsureInitialized(); err != nil {
		return nil, err
	}
	if priv == nil {
		return nil, opError("wrap", "", fmt.Errorf("%w: nil private key", ErrNotPrivateKey))
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, opError("wrap", "", fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, err))
	}
	m, err := fromSigner(signer, comment)
	if err != nil {
		return nil, err
	}
	m.priv = priv
	return m, nil
}

// FromSigner wraps an opaque ssh.Signer (agent- or token-backed) as
// pair-role KeyMaterial. The material can sign but is not exportable:
// serializing it to a private format fails with ErrKeyNotExportable.
func FromSigner(signer ssh.Signer, comment string) (*KeyMaterial, error) {
	if err := EnsureInitialized(); err != nil {
		return nil, err
	}
	if signer == nil {
		return nil, opError("wrap", "", fmt.Errorf("%w: nil signer", ErrNotPrivateKey))
	}
	return fromSigner(signer, comment)
}

func fromSigner(signer ssh.Signer, comment string) (*KeyMaterial, error) {
	canonical, err := ssh.ParsePublicKey(signer.PublicKey().Marshal())
	if err != nil {
		return nil, opError("wrap", "", fmt.Errorf("%w: %v", ErrMalformedKey, err))
	}
	alg, err := AlgorithmFromWire(canonical.Type())
	if err != nil {
		return nil, opError("wrap", "", err)
	}
	return &KeyMaterial{
		algorithm: alg,
		role:      RolePair,
		comment:   comment,
		pub:       canonical,
		signer:    signer,
	}, nil
}

// Algorithm returns the key algorithm.
func (m *KeyMaterial) Algorithm() Algorithm {
	return m.algorithm
}

// Role returns the key role.
func (m *KeyMaterial) Role() Role {
	return m.role
}

// Comment returns the key comment, if any.
func (m *KeyMaterial) Comment() string {
	return m.comment
}

// WithComment returns a copy of the material carrying the given comment.
func (m *KeyMaterial) WithComment(comment string) *KeyMaterial {
	out := *m
	out.comment = comment
	return &out
}

// PublicKey returns the public half. Never nil for valid material.
func (m *KeyMaterial) PublicKey() ssh.PublicKey {
	return m.pub
}

// Signer returns the signing backend, or nil for public-only material.
func (m *KeyMaterial) Signer() ssh.Signer {
	return m.signer
}

// IsPrivate returns true if the material can sign.
func (m *KeyMaterial) IsPrivate() bool {
	return m.role.CanSign() && m.signer != nil
}

// IsPublic returns true for public-only material.
func (m *KeyMaterial) IsPublic() bool {
	return m.role == RolePublic
}

// IsExportable returns true if the private half can be serialized.
// False for public-only material and for agent- or token-backed signers.
func (m *KeyMaterial) IsExportable() bool {
	return m.priv != nil && m.algorithm.SupportsExport()
}

// Equal reports whether two materials represent the same key: identical
// public wire blobs and equivalent roles. Comments are metadata and do not
// participate in identity.
func (m *KeyMaterial) Equal(other *KeyMaterial) bool {
	if m == nil || other == nil {
		return m == other
	}
	if !m.role.Satisfies(other.role) {
		return false
	}
	return bytes.Equal(m.pub.Marshal(), other.pub.Marshal())
}

// Bits returns the key size in bits: the RSA modulus size, the ECDSA curve
// size, the DSA prime size, or 256 for Ed25519. Zero if the size cannot be
// determined.
func (m *KeyMaterial) Bits() int {
	cryptoPub, ok := m.pub.(ssh.CryptoPublicKey)
	if !ok {
		return 0
	}
	switch pub := cryptoPub.CryptoPublicKey().(type) {
	case *rsa.PublicKey:
		return pub.N.BitLen()
	case *ecdsa.PublicKey:
		return pub.Curve.Params().BitSize
	case *dsa.PublicKey:
		return pub.P.BitLen()
	case ed25519.PublicKey:
		return ed25519.PublicKeySize * 8
	}
	return 0
}
