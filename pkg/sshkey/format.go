package sshkey

import (
	"bytes"
	"encoding/pem"
	"fmt"
)

// Format identifies a key encoding handled by the codec.
type Format string

// Supported key encodings.
const (
	// FormatOpenSSH is the OPENSSH PRIVATE KEY PEM encoding, optionally
	// passphrase-protected.
	FormatOpenSSH Format = "openssh"

	// FormatPKCS8 is the PKCS#8 PRIVATE KEY PEM encoding.
	FormatPKCS8 Format = "pkcs8"

	// FormatPKCS1 is the RSA PRIVATE KEY PEM encoding (RSA only).
	FormatPKCS1 Format = "pkcs1"

	// FormatSEC1 is the EC PRIVATE KEY PEM encoding (ECDSA only).
	FormatSEC1 Format = "sec1"

	// FormatDSAPEM is the OpenSSL DSA PRIVATE KEY PEM encoding.
	// Parse only; DSA private keys cannot be re-serialized.
	FormatDSAPEM Format = "dsa-pem"

	// FormatAuthorizedKey is the one-line authorized_keys public encoding,
	// with optional trailing comment.
	FormatAuthorizedKey Format = "authorized-key"

	// FormatPKIX is the PUBLIC KEY PEM encoding.
	FormatPKIX Format = "pkix"

	// FormatWire is the raw binary SSH public-key wire blob (RFC 4253 §6.6).
	FormatWire Format = "wire"
)

// formatInfo holds metadata about an encoding.
type formatInfo struct {
	Private     bool   // encodes private material
	PEMType     string // PEM block type, empty for non-PEM encodings
	Description string
}

var formats = map[Format]formatInfo{
	FormatOpenSSH:       {Private: true, PEMType: "OPENSSH PRIVATE KEY", Description: "OpenSSH private key"},
	FormatPKCS8:         {Private: true, PEMType: "PRIVATE KEY", Description: "PKCS#8 private key"},
	FormatPKCS1:         {Private: true, PEMType: "RSA PRIVATE KEY", Description: "PKCS#1 RSA private key"},
	FormatSEC1:          {Private: true, PEMType: "EC PRIVATE KEY", Description: "SEC1 EC private key"},
	FormatDSAPEM:        {Private: true, PEMType: "DSA PRIVATE KEY", Description: "OpenSSL DSA private key (read-only)"},
	FormatAuthorizedKey: {Private: false, Description: "authorized_keys line"},
	FormatPKIX:          {Private: false, PEMType: "PUBLIC KEY", Description: "PKIX public key"},
	FormatWire:          {Private: false, Description: "SSH wire blob"},
}

// pemTypeToFormat indexes PEM block types back to formats.
var pemTypeToFormat = map[string]Format{
	"OPENSSH PRIVATE KEY": FormatOpenSSH,
	"PRIVATE KEY":         FormatPKCS8,
	"RSA PRIVATE KEY":     FormatPKCS1,
	"EC PRIVATE KEY":      FormatSEC1,
	"DSA PRIVATE KEY":     FormatDSAPEM,
	"PUBLIC KEY":          FormatPKIX,
}

// IsValid returns true if the format is recognized.
func (f Format) IsValid() bool {
	_, ok := formats[f]
	return ok
}

// IsPrivate returns true for formats that encode private material.
func (f Format) IsPrivate() bool {
	if info, ok := formats[f]; ok {
		return info.Private
	}
	return false
}

// PEMType returns the PEM block type for PEM-based formats, or "".
func (f Format) PEMType() string {
	if info, ok := formats[f]; ok {
		return info.PEMType
	}
	return ""
}

// Description returns a human-readable description of the format.
func (f Format) Description() string {
	if info, ok := formats[f]; ok {
		return info.Description
	}
	return "Unknown format"
}

// String returns the format identifier as a string.
func (f Format) String() string {
	return string(f)
}

// ParseFormat parses a string into a Format.
func ParseFormat(s string) (Format, error) {
	format := Format(s)
	if !format.IsValid() {
		return "", fmt.Errorf("unknown key format: %q", s)
	}
	return format, nil
}

// AllFormats returns all supported formats in stable order.
func AllFormats() []Format {
	return []Format{
		FormatOpenSSH, FormatPKCS8, FormatPKCS1, FormatSEC1, FormatDSAPEM,
		FormatAuthorizedKey, FormatPKIX, FormatWire,
	}
}

// DetectFormat inspects encoded key bytes and reports the encoding.
// PEM input is classified by block type, a leading key-type token marks an
// authorized_keys line, and a length-prefixed type string marks a binary
// wire blob. Returns ErrMalformedKey when nothing matches, or
// ErrUnsupportedAlgorithm for a well-formed PEM block of an unknown type.
func DetectFormat(data []byte) (Format, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return "", fmt.Errorf("%w: empty input", ErrMalformedKey)
	}

	if bytes.HasPrefix(trimmed, []byte("-----BEGIN ")) {
		block, _ := pem.Decode(trimmed)
		if block == nil {
			return "", fmt.Errorf("%w: invalid PEM", ErrMalformedKey)
		}
		if f, ok := pemTypeToFormat[block.Type]; ok {
			return f, nil
		}
		return "", fmt.Errorf("%w: PEM type %q", ErrUnsupportedAlgorithm, block.Type)
	}

	if wireNameFromLine(trimmed) != "" {
		return FormatAuthorizedKey, nil
	}

	if looksLikeWireBlob(trimmed) {
		return FormatWire, nil
	}

	return "", fmt.Errorf("%w: unrecognized key encoding", ErrMalformedKey)
}

// wireNameFromLine returns the leading key-type token of an
// authorized_keys-style line, or "" if the line does not start with one.
func wireNameFromLine(line []byte) string {
	fields := bytes.Fields(line)
	if len(fields) < 2 {
		return ""
	}
	token := string(fields[0])
	for _, alg := range AllAlgorithms() {
		if alg.WireName() == token {
			return token
		}
	}
	return ""
}

// looksLikeWireBlob reports whether data starts with a length-prefixed
// key-type string, the layout of an RFC 4253 public-key blob.
func looksLikeWireBlob(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	n := int(uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3]))
	if n < 4 || n > 64 || len(data) < 4+n {
		return false
	}
	name := string(data[4 : 4+n])
	for _, alg := range AllAlgorithms() {
		if alg.WireName() == name {
			return true
		}
	}
	return false
}
