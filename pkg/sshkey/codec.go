package sshkey

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

// ParseOptions controls Parse behavior.
type ParseOptions struct {
	// ExpectedRole, if set, makes parsing fail with ErrRoleMismatch when
	// the decoded role does not satisfy it.
	ExpectedRole Role

	// Passphrase decrypts passphrase-protected private keys.
	Passphrase []byte
}

// Parse decodes key bytes in any supported encoding into KeyMaterial.
// The encoding is detected from the bytes themselves (see DetectFormat).
// Undecodable input fails with ErrMalformedKey; well-formed input carrying
// an unsupported algorithm fails with ErrUnsupportedAlgorithm; encrypted
// private keys without a passphrase fail with ErrPassphraseRequired.
func Parse(data []byte) (*KeyMaterial, error) {
	return ParseWithOptions(data, ParseOptions{})
}

// ParseWithOptions decodes key bytes with explicit expectations.
func ParseWithOptions(data []byte, opts ParseOptions) (*KeyMaterial, error) {
	if err := EnsureInitialized(); err != nil {
		return nil, err
	}
	if opts.ExpectedRole != "" && !opts.ExpectedRole.IsValid() {
		return nil, opError("parse", "", fmt.Errorf("unknown expected role: %q", opts.ExpectedRole))
	}

	format, err := DetectFormat(data)
	if err != nil {
		return nil, opError("parse", "", err)
	}

	var m *KeyMaterial
	switch format {
	case FormatOpenSSH:
		m, err = parseOpenSSH(data, opts.Passphrase)
	case FormatPKCS8, FormatPKCS1, FormatSEC1, FormatDSAPEM:
		m, err = parsePEMPrivate(data, format, opts.Passphrase)
	case FormatPKIX:
		m, err = parsePKIX(data)
	case FormatAuthorizedKey:
		m, err = parseAuthorizedKey(data)
	case FormatWire:
		m, err = parseWire(data)
	default:
		err = opError("parse", "", fmt.Errorf("%w: no decoder for format %s", ErrMalformedKey, format))
	}
	if err != nil {
		return nil, err
	}

	if opts.ExpectedRole != "" && !m.role.Satisfies(opts.ExpectedRole) {
		return nil, opError("parse", m.algorithm,
			fmt.Errorf("%w: decoded role %s, expected %s", ErrRoleMismatch, m.role, opts.ExpectedRole))
	}
	return m, nil
}

// parseOpenSSH decodes an OPENSSH PRIVATE KEY block.
func parseOpenSSH(data, passphrase []byte) (*KeyMaterial, error) {
	var raw interface{}
	var err error
	if len(passphrase) > 0 {
		raw, err = ssh.ParseRawPrivateKeyWithPassphrase(data, passphrase)
	} else {
		raw, err = ssh.ParseRawPrivateKey(data)
	}
	if err != nil {
		return nil, opError("parse", "", classifyPrivateKeyError(err))
	}
	return FromPrivateKey(normalizePrivate(raw), "")
}

// parsePEMPrivate decodes the DER-based private PEM encodings, handling
// legacy PEM-level encryption the way OpenSSL produced it.
func parsePEMPrivate(data []byte, format Format, passphrase []byte) (*KeyMaterial, error) {
	block, _ := pem.Decode(bytes.TrimSpace(data))
	if block == nil {
		return nil, opError("parse", "", fmt.Errorf("%w: invalid PEM", ErrMalformedKey))
	}

	keyBytes := block.Bytes
	if x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck // legacy keys still use PEM encryption
		if len(passphrase) == 0 {
			return nil, opError("parse", "", fmt.Errorf("%w: key is encrypted", ErrPassphraseRequired))
		}
		var err error
		keyBytes, err = x509.DecryptPEMBlock(block, passphrase) //nolint:staticcheck
		if err != nil {
			return nil, opError("parse", "", fmt.Errorf("%w: %v", ErrPassphraseRequired, err))
		}
	}

	var priv crypto.PrivateKey
	var err error
	switch format {
	case FormatPKCS8:
		priv, err = x509.ParsePKCS8PrivateKey(keyBytes)
	case FormatPKCS1:
		priv, err = x509.ParsePKCS1PrivateKey(keyBytes)
	case FormatSEC1:
		priv, err = x509.ParseECPrivateKey(keyBytes)
	case FormatDSAPEM:
		priv, err = ssh.ParseDSAPrivateKey(keyBytes)
	default:
		return nil, opError("parse", "", fmt.Errorf("%w: no decoder for format %s", ErrMalformedKey, format))
	}
	if err != nil {
		return nil, opError("parse", "", fmt.Errorf("%w: %v", ErrMalformedKey, err))
	}
	return FromPrivateKey(normalizePrivate(priv), "")
}

// parsePKIX decodes a PUBLIC KEY block.
func parsePKIX(data []byte) (*KeyMaterial, error) {
	block, _ := pem.Decode(bytes.TrimSpace(data))
	if block == nil {
		return nil, opError("parse", "", fmt.Errorf("%w: invalid PEM", ErrMalformedKey))
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, opError("parse", "", fmt.Errorf("%w: %v", ErrMalformedKey, err))
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, opError("parse", "", fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, err))
	}
	return FromPublicKey(sshPub, "")
}

// parseAuthorizedKey decodes a one-line authorized_keys entry, keeping the
// trailing comment.
func parseAuthorizedKey(data []byte) (*KeyMaterial, error) {
	pub, comment, _, _, err := ssh.ParseAuthorizedKey(data)
	if err != nil {
		return nil, opError("parse", "", fmt.Errorf("%w: %v", ErrMalformedKey, err))
	}
	return FromPublicKey(pub, comment)
}

// parseWire decodes a raw RFC 4253 public-key blob. The raw bytes are tried
// first so that key material ending in whitespace-valued bytes survives;
// trimming only happens as a fallback for blobs read from files with a
// trailing newline.
func parseWire(data []byte) (*KeyMaterial, error) {
	pub, err := ssh.ParsePublicKey(data)
	if err != nil {
		pub, err = ssh.ParsePublicKey(bytes.TrimSpace(data))
	}
	if err != nil {
		return nil, opError("parse", "", fmt.Errorf("%w: %v", ErrMalformedKey, err))
	}
	return FromPublicKey(pub, "")
}

// classifyPrivateKeyError maps x/crypto private-key decode failures onto
// the error taxonomy.
func classifyPrivateKeyError(err error) error {
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		return fmt.Errorf("%w: key is encrypted", ErrPassphraseRequired)
	}
	if errors.Is(err, x509.IncorrectPasswordError) ||
		strings.Contains(err.Error(), "incorrect passphrase") {
		return fmt.Errorf("%w: %v", ErrPassphraseRequired, err)
	}
	return fmt.Errorf("%w: %v", ErrMalformedKey, err)
}

// normalizePrivate collapses the pointer forms x/crypto returns so that
// material always carries the canonical key types.
func normalizePrivate(priv crypto.PrivateKey) crypto.PrivateKey {
	if p, ok := priv.(*ed25519.PrivateKey); ok {
		return *p
	}
	return priv
}

// Serialize encodes material into the target format.
//
// Private formats require exportable private material: public-only input
// fails with ErrNotPrivateKey, opaque-backed (agent/token) input with
// ErrKeyNotExportable, and algorithms without a private encoding (DSA)
// with ErrUnsupportedAlgorithm.
//
// The DER-based encodings are canonical, so serializing parsed material
// reproduces the original bytes. The openssh encoding embeds random check
// bytes and is only stable at the material level, not byte-for-byte.
func Serialize(m *KeyMaterial, format Format) ([]byte, error) {
	return SerializeWithPassphrase(m, format, nil)
}

// SerializeWithPassphrase encodes material with passphrase protection.
// Only the openssh format supports encryption.
func SerializeWithPassphrase(m *KeyMaterial, format Format, passphrase []byte) ([]byte, error) {
	if err := EnsureInitialized(); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("nil key material")
	}
	if !format.IsValid() {
		return nil, opError("serialize", m.algorithm, fmt.Errorf("unknown key format: %q", format))
	}
	if len(passphrase) > 0 && format != FormatOpenSSH {
		return nil, opError("serialize", m.algorithm,
			fmt.Errorf("passphrase protection requires the %s format", FormatOpenSSH))
	}

	if format.IsPrivate() {
		if !m.IsPrivate() {
			return nil, opError("serialize", m.algorithm,
				fmt.Errorf("%w: material is public-only", ErrNotPrivateKey))
		}
		if !m.algorithm.SupportsExport() {
			return nil, opError("serialize", m.algorithm,
				fmt.Errorf("%w: %s private keys cannot be serialized", ErrUnsupportedAlgorithm, m.algorithm))
		}
		if m.priv == nil {
			return nil, opError("serialize", m.algorithm,
				fmt.Errorf("%w: key is backed by an external signer", ErrKeyNotExportable))
		}
	}

	switch format {
	case FormatOpenSSH:
		var block *pem.Block
		var err error
		if len(passphrase) > 0 {
			block, err = ssh.MarshalPrivateKeyWithPassphrase(m.priv, m.comment, passphrase)
		} else {
			block, err = ssh.MarshalPrivateKey(m.priv, m.comment)
		}
		if err != nil {
			return nil, opError("serialize", m.algorithm, err)
		}
		return pem.EncodeToMemory(block), nil

	case FormatPKCS8:
		der, err := x509.MarshalPKCS8PrivateKey(m.priv)
		if err != nil {
			return nil, opError("serialize", m.algorithm, fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, err))
		}
		return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil

	case FormatPKCS1:
		rsaKey, ok := m.priv.(*rsa.PrivateKey)
		if !ok {
			return nil, opError("serialize", m.algorithm,
				fmt.Errorf("%w: %s requires an RSA key", ErrUnsupportedAlgorithm, FormatPKCS1))
		}
		der := x509.MarshalPKCS1PrivateKey(rsaKey)
		return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}), nil

	case FormatSEC1:
		ecKey, ok := m.priv.(*ecdsa.PrivateKey)
		if !ok {
			return nil, opError("serialize", m.algorithm,
				fmt.Errorf("%w: %s requires an ECDSA key", ErrUnsupportedAlgorithm, FormatSEC1))
		}
		der, err := x509.MarshalECPrivateKey(ecKey)
		if err != nil {
			return nil, opError("serialize", m.algorithm, fmt.Errorf("%w: %v", ErrMalformedKey, err))
		}
		return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil

	case FormatDSAPEM:
		return nil, opError("serialize", m.algorithm,
			fmt.Errorf("%w: %s is a read-only format", ErrUnsupportedAlgorithm, FormatDSAPEM))

	case FormatAuthorizedKey:
		line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(m.pub)))
		if m.comment != "" {
			line += " " + m.comment
		}
		return []byte(line + "\n"), nil

	case FormatPKIX:
		cryptoPub, ok := m.pub.(ssh.CryptoPublicKey)
		if !ok {
			return nil, opError("serialize", m.algorithm,
				fmt.Errorf("%w: key has no DER form", ErrUnsupportedAlgorithm))
		}
		der, err := x509.MarshalPKIXPublicKey(cryptoPub.CryptoPublicKey())
		if err != nil {
			return nil, opError("serialize", m.algorithm, fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, err))
		}
		return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil

	case FormatWire:
		return m.pub.Marshal(), nil
	}

	return nil, opError("serialize", m.algorithm, fmt.Errorf("unknown key format: %q", format))
}

// DerivePublic returns public-only material for a private or pair key.
// Pure: the input is unchanged and the comment carries over.
func DerivePublic(m *KeyMaterial) (*KeyMaterial, error) {
	if err := EnsureInitialized(); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("nil key material")
	}
	if !m.role.CanSign() {
		return nil, opError("derive", m.algorithm,
			fmt.Errorf("%w: material is already public-only", ErrNotPrivateKey))
	}
	return &KeyMaterial{
		algorithm: m.algorithm,
		role:      RolePublic,
		comment:   m.comment,
		pub:       m.pub,
	}, nil
}

// ParseFile reads and decodes a key file. The passphrase may be nil for
// unencrypted keys.
func ParseFile(path string, passphrase []byte) (*KeyMaterial, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return ParseWithOptions(data, ParseOptions{Passphrase: passphrase})
}

// WriteFile serializes material into a file. Private formats are written
// with mode 0600, public formats with 0644.
func WriteFile(path string, m *KeyMaterial, format Format) error {
	return WriteFileWithPassphrase(path, m, format, nil)
}

// WriteFileWithPassphrase serializes material into a file with passphrase
// protection (openssh format only).
func WriteFileWithPassphrase(path string, m *KeyMaterial, format Format, passphrase []byte) error {
	data, err := SerializeWithPassphrase(m, format, passphrase)
	if err != nil {
		return err
	}

	perm := os.FileMode(0644)
	if format.IsPrivate() {
		perm = 0600
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create key file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}
