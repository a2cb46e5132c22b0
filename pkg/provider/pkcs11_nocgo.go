//go:build !cgo

package provider

import (
	"context"
	"fmt"

	"github.com/keyfob-io/keyfob/pkg/sshkey"
)

var errNoCGO = fmt.Errorf("pkcs11 support requires cgo (build with CGO_ENABLED=1)")

// PKCS11Provider is unavailable without cgo.
type PKCS11Provider struct{}

var _ Provider = (*PKCS11Provider)(nil)

// NewPKCS11Provider creates a new PKCS11Provider.
func NewPKCS11Provider() *PKCS11Provider {
	return &PKCS11Provider{}
}

// Load always fails: the PKCS#11 bindings need cgo.
func (p *PKCS11Provider) Load(_ context.Context, _ Config) (*sshkey.KeyMaterial, error) {
	return nil, errNoCGO
}

// ClosePools is a no-op without cgo.
func ClosePools() {}
