package sshkey

import (
	"crypto/md5"  //nolint:gosec // fingerprint display, not integrity
	"crypto/sha1" //nolint:gosec // fingerprint display, not integrity
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// HashAlgorithm identifies a fingerprint digest.
type HashAlgorithm string

// Supported fingerprint digests.
const (
	HashMD5    HashAlgorithm = "md5"
	HashSHA1   HashAlgorithm = "sha1"
	HashSHA256 HashAlgorithm = "sha256"
)

// IsValid returns true if the hash algorithm is recognized.
func (h HashAlgorithm) IsValid() bool {
	switch h {
	case HashMD5, HashSHA1, HashSHA256:
		return true
	}
	return false
}

// String returns the hash algorithm name.
func (h HashAlgorithm) String() string {
	return string(h)
}

// ParseHashAlgorithm parses a string into a HashAlgorithm.
func ParseHashAlgorithm(s string) (HashAlgorithm, error) {
	h := HashAlgorithm(strings.ToLower(s))
	if !h.IsValid() {
		return "", fmt.Errorf("%w: hash %q", ErrUnsupportedAlgorithm, s)
	}
	return h, nil
}

// AllHashAlgorithms returns the supported digests in stable order.
func AllHashAlgorithms() []HashAlgorithm {
	return []HashAlgorithm{HashMD5, HashSHA1, HashSHA256}
}

// Fingerprint is a digest over a public key's wire blob, tagged with the
// hash that produced it. Derived on demand, never stored.
type Fingerprint struct {
	Hash HashAlgorithm
	Sum  []byte
}

// ComputeFingerprint digests the public half of the material. Private and
// pair material is fingerprinted by its public derivative, matching what
// every SSH tool displays. Deterministic for identical key bytes.
func ComputeFingerprint(m *KeyMaterial, hash HashAlgorithm) (*Fingerprint, error) {
	if err := EnsureInitialized(); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("nil key material")
	}
	if !hash.IsValid() {
		return nil, opError("fingerprint", m.algorithm,
			fmt.Errorf("%w: hash %q", ErrUnsupportedAlgorithm, hash))
	}
	if m.pub == nil {
		return nil, opError("fingerprint", m.algorithm,
			fmt.Errorf("%w: material carries no public half", ErrNotPublicKey))
	}

	blob := m.pub.Marshal()
	var sum []byte
	switch hash {
	case HashMD5:
		s := md5.Sum(blob) //nolint:gosec
		sum = s[:]
	case HashSHA1:
		s := sha1.Sum(blob) //nolint:gosec
		sum = s[:]
	case HashSHA256:
		s := sha256.Sum256(blob)
		sum = s[:]
	}
	return &Fingerprint{Hash: hash, Sum: sum}, nil
}

// String renders the fingerprint the way OpenSSH does: base64 for SHA
// digests, colon-separated hex for MD5, each prefixed with the hash name.
func (f *Fingerprint) String() string {
	switch f.Hash {
	case HashMD5:
		return "MD5:" + colonHex(f.Sum)
	case HashSHA1:
		return "SHA1:" + base64.RawStdEncoding.EncodeToString(f.Sum)
	case HashSHA256:
		return "SHA256:" + base64.RawStdEncoding.EncodeToString(f.Sum)
	}
	return colonHex(f.Sum)
}

// Hex renders the raw digest as colon-separated hex, the classic
// ssh-keygen -E md5 style, regardless of hash.
func (f *Fingerprint) Hex() string {
	return colonHex(f.Sum)
}

func colonHex(sum []byte) string {
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = hex.EncodeToString([]byte{b})
	}
	return strings.Join(parts, ":")
}
