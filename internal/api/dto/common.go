// Package dto defines the request and response bodies of the REST API.
package dto

import (
	"encoding/base64"
	"fmt"
)

// BinaryData carries key or message bytes together with their encoding.
// Key files, PEM blocks, and authorized_keys lines travel as "text";
// SSH wire blobs and arbitrary message bytes travel as "base64".
type BinaryData struct {
	Data     string `json:"data"`
	Encoding string `json:"encoding,omitempty"` // "text" (default) or "base64"
}

// Decode returns the raw bytes the client sent.
func (b *BinaryData) Decode() ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("missing binary payload")
	}
	switch b.Encoding {
	case "text", "":
		return []byte(b.Data), nil
	case "base64":
		return base64.StdEncoding.DecodeString(b.Data)
	default:
		return nil, fmt.Errorf("unknown encoding %q", b.Encoding)
	}
}

// NewText wraps text content (PEM, authorized_keys lines, armored
// signatures).
func NewText(data []byte) BinaryData {
	return BinaryData{Data: string(data)}
}

// NewBase64 wraps binary content.
func NewBase64(data []byte) BinaryData {
	return BinaryData{
		Data:     base64.StdEncoding.EncodeToString(data),
		Encoding: "base64",
	}
}

// APIError is the error body every failing endpoint returns.
type APIError struct {
	Code    string            `json:"code"`    // machine-readable, stable
	Message string            `json:"message"` // human-readable cause
	Details map[string]string `json:"details,omitempty"`
}

// HealthResponse answers /healthz.
type HealthResponse struct {
	Status  string `json:"status"` // "ok" or "degraded"
	Version string `json:"version"`
}

// ReadyResponse answers /readyz.
type ReadyResponse struct {
	Ready  bool            `json:"ready"`
	Checks map[string]bool `json:"checks,omitempty"`
}
