package provider

import (
	"context"
	"fmt"

	"github.com/keyfob-io/keyfob/pkg/sshkey"
)

// SoftwareProvider loads keys from files on disk.
type SoftwareProvider struct{}

var _ Provider = (*SoftwareProvider)(nil)

// NewSoftwareProvider creates a new SoftwareProvider.
func NewSoftwareProvider() *SoftwareProvider {
	return &SoftwareProvider{}
}

// Load reads the configured key file. Encrypted files use the resolved
// passphrase; a missing passphrase surfaces as ErrPassphraseRequired
// from the codec.
func (p *SoftwareProvider) Load(_ context.Context, cfg Config) (*sshkey.KeyMaterial, error) {
	if cfg.Type != TypeSoftware && cfg.Type != "" {
		return nil, fmt.Errorf("software provider cannot load %q keys", cfg.Type)
	}
	if cfg.Software.KeyPath == "" {
		return nil, fmt.Errorf("software.key_path is required")
	}

	passphrase := ResolvePassphrase(cfg.Software.Passphrase)
	m, err := sshkey.ParseFile(cfg.Software.KeyPath, passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to load key from %s: %w", cfg.Software.KeyPath, err)
	}
	return m, nil
}
