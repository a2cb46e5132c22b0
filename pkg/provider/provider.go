// Package provider loads key material from external sources: key files
// on disk, a running ssh-agent, or a PKCS#11 token. Providers return
// sshkey.KeyMaterial; agent and token keys come back signing-capable but
// non-exportable.
package provider

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/keyfob-io/keyfob/pkg/sshkey"
)

// Type identifies a key source backend.
type Type string

const (
	// TypeSoftware reads key files from disk.
	TypeSoftware Type = "software"

	// TypeAgent selects a key held by a running ssh-agent.
	TypeAgent Type = "agent"

	// TypePKCS11 uses a key on a PKCS#11 token.
	TypePKCS11 Type = "pkcs11"
)

// Config selects and parameterizes a key source. It is the schema of
// provider.yaml; secrets never appear in it directly — passphrases may
// use the env:VAR indirection and token PINs are named by pin_env.
type Config struct {
	Type     Type           `yaml:"type" json:"type"`
	Software SoftwareConfig `yaml:"software,omitempty" json:"software,omitempty"`
	Agent    AgentConfig    `yaml:"agent,omitempty" json:"agent,omitempty"`
	PKCS11   PKCS11Config   `yaml:"pkcs11,omitempty" json:"pkcs11,omitempty"`
}

// SoftwareConfig locates a key file on disk.
type SoftwareConfig struct {
	// KeyPath is the private or public key file to load.
	KeyPath string `yaml:"key_path" json:"key_path"`

	// Passphrase decrypts an encrypted key. Literal values work but
	// "env:VAR_NAME" is the intended form; the value is never serialized.
	Passphrase string `yaml:"passphrase,omitempty" json:"-"`
}

// AgentConfig selects one key from a running ssh-agent.
type AgentConfig struct {
	// Socket is the agent socket path. Empty means $SSH_AUTH_SOCK.
	Socket string `yaml:"socket,omitempty" json:"socket,omitempty"`

	// Fingerprint selects the key by its SHA256:... fingerprint.
	Fingerprint string `yaml:"fingerprint,omitempty" json:"fingerprint,omitempty"`

	// Comment selects the key by its exact comment.
	Comment string `yaml:"comment,omitempty" json:"comment,omitempty"`
}

// PKCS11Config locates a key on a PKCS#11 token.
type PKCS11Config struct {
	// Library is the path to the PKCS#11 module (.so/.dylib/.dll).
	Library string `yaml:"library" json:"library"`

	// TokenLabel identifies the token by label (recommended).
	TokenLabel string `yaml:"token_label,omitempty" json:"token_label,omitempty"`

	// TokenSerial identifies the token by serial number (more precise).
	TokenSerial string `yaml:"token_serial,omitempty" json:"token_serial,omitempty"`

	// Slot identifies the token by slot ID (less portable).
	Slot *uint `yaml:"slot,omitempty" json:"slot,omitempty"`

	// PinEnv names the environment variable holding the user PIN.
	PinEnv string `yaml:"pin_env" json:"pin_env"`

	// KeyLabel is the CKA_LABEL of the key.
	KeyLabel string `yaml:"key_label,omitempty" json:"key_label,omitempty"`

	// KeyID is the CKA_ID of the key (hex encoded).
	KeyID string `yaml:"key_id,omitempty" json:"key_id,omitempty"`
}

// Provider loads key material from one kind of source.
type Provider interface {
	// Load resolves the configured key and returns it as material. File
	// keys come back exportable; agent and token keys sign through their
	// backend and refuse private serialization.
	Load(ctx context.Context, cfg Config) (*sshkey.KeyMaterial, error)
}

// New returns the provider for the configured type. An empty type
// defaults to software.
func New(cfg Config) Provider {
	switch cfg.Type {
	case TypeAgent:
		return &AgentProvider{}
	case TypePKCS11:
		return &PKCS11Provider{}
	default:
		return &SoftwareProvider{}
	}
}

// LoadConfig reads and validates a provider.yaml file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse provider config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid provider config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration names a usable source.
func (c *Config) Validate() error {
	switch c.Type {
	case TypeSoftware, "":
		if c.Software.KeyPath == "" {
			return fmt.Errorf("software.key_path is required")
		}

	case TypeAgent:
		if c.Agent.Fingerprint == "" && c.Agent.Comment == "" {
			return fmt.Errorf("at least one of agent.fingerprint or agent.comment is required")
		}

	case TypePKCS11:
		if c.PKCS11.Library == "" {
			return fmt.Errorf("pkcs11.library is required")
		}
		if c.PKCS11.TokenLabel == "" && c.PKCS11.TokenSerial == "" && c.PKCS11.Slot == nil {
			return fmt.Errorf("at least one of pkcs11.token_label, pkcs11.token_serial, or pkcs11.slot is required")
		}
		if c.PKCS11.PinEnv == "" {
			return fmt.Errorf("pkcs11.pin_env is required (PIN must be provided via environment variable)")
		}
		if c.PKCS11.KeyLabel == "" && c.PKCS11.KeyID == "" {
			return fmt.Errorf("at least one of pkcs11.key_label or pkcs11.key_id is required")
		}

	default:
		return fmt.Errorf("unsupported provider type: %s", c.Type)
	}
	return nil
}

// GetPIN retrieves the token PIN from the configured environment
// variable.
func (c *PKCS11Config) GetPIN() (string, error) {
	pin := os.Getenv(c.PinEnv)
	if pin == "" {
		return "", fmt.Errorf("environment variable %s is not set or empty", c.PinEnv)
	}
	return pin, nil
}

// ResolvePassphrase resolves a passphrase that may be "env:VAR_NAME".
// Empty input resolves to nil.
func ResolvePassphrase(passphrase string) []byte {
	if passphrase == "" {
		return nil
	}
	if strings.HasPrefix(passphrase, "env:") {
		return []byte(os.Getenv(passphrase[4:]))
	}
	return []byte(passphrase)
}
