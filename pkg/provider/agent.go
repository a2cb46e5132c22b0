package provider

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/keyfob-io/keyfob/internal/audit"
	"github.com/keyfob-io/keyfob/pkg/sshkey"
)

// AgentProvider selects keys held by a running ssh-agent. Returned
// material signs through the agent connection and is not exportable;
// the connection stays open for the life of the material.
type AgentProvider struct{}

var _ Provider = (*AgentProvider)(nil)

// NewAgentProvider creates a new AgentProvider.
func NewAgentProvider() *AgentProvider {
	return &AgentProvider{}
}

// AgentConnection couples an agent client with its socket connection so
// callers can close both together.
type AgentConnection struct {
	agent.ExtendedAgent
	conn net.Conn
}

// Close closes the underlying socket.
func (c *AgentConnection) Close() error {
	return c.conn.Close()
}

// DialAgent connects to the ssh-agent at the given socket path. An
// empty path falls back to $SSH_AUTH_SOCK.
func DialAgent(ctx context.Context, socket string) (*AgentConnection, error) {
	socket = resolveSocket(socket)
	if socket == "" {
		return nil, fmt.Errorf("no ssh-agent socket: SSH_AUTH_SOCK is not set")
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socket)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ssh-agent at %s: %w", socket, err)
	}

	return &AgentConnection{ExtendedAgent: agent.NewClient(conn), conn: conn}, nil
}

func resolveSocket(socket string) string {
	if socket != "" {
		return socket
	}
	return os.Getenv("SSH_AUTH_SOCK")
}

// Load connects to the agent and selects one key by SHA256 fingerprint
// or exact comment. The material keeps the connection open so it can
// sign; releasing it does not disturb the key held by the agent.
func (p *AgentProvider) Load(ctx context.Context, cfg Config) (*sshkey.KeyMaterial, error) {
	if cfg.Type != TypeAgent {
		return nil, fmt.Errorf("agent provider cannot load %q keys", cfg.Type)
	}
	if cfg.Agent.Fingerprint == "" && cfg.Agent.Comment == "" {
		return nil, fmt.Errorf("at least one of agent.fingerprint or agent.comment is required")
	}

	socket := resolveSocket(cfg.Agent.Socket)
	conn, err := DialAgent(ctx, socket)
	if err != nil {
		return nil, err
	}

	keys, err := conn.List()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to list agent keys: %w", err)
	}

	var picked *agent.Key
	for _, k := range keys {
		if cfg.Agent.Fingerprint != "" && ssh.FingerprintSHA256(k) != cfg.Agent.Fingerprint {
			continue
		}
		if cfg.Agent.Comment != "" && k.Comment != cfg.Agent.Comment {
			continue
		}
		picked = k
		break
	}
	if picked == nil {
		conn.Close()
		return nil, fmt.Errorf("no agent key matches fingerprint=%q comment=%q among %d keys",
			cfg.Agent.Fingerprint, cfg.Agent.Comment, len(keys))
	}

	signer, err := signerForKey(conn, picked)
	if err != nil {
		conn.Close()
		return nil, err
	}

	m, err := sshkey.FromSigner(signer, picked.Comment)
	if err != nil {
		conn.Close()
		return nil, err
	}

	// Audit: agent consulted and a key selected
	if err := audit.LogAgentAccessed(socket, len(keys), true); err != nil {
		conn.Close()
		return nil, err
	}
	return m, nil
}

// ListKeys enumerates the agent's keys as public-only material. Keys of
// types the toolkit does not support (certificates, security keys) are
// skipped.
func (p *AgentProvider) ListKeys(ctx context.Context, socket string) ([]*sshkey.KeyMaterial, error) {
	socket = resolveSocket(socket)
	conn, err := DialAgent(ctx, socket)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	keys, err := conn.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list agent keys: %w", err)
	}

	out := make([]*sshkey.KeyMaterial, 0, len(keys))
	for _, k := range keys {
		m, err := sshkey.FromPublicKey(k, k.Comment)
		if err != nil {
			continue
		}
		out = append(out, m)
	}

	// Audit: agent enumerated
	if err := audit.LogAgentAccessed(socket, len(keys), true); err != nil {
		return nil, err
	}
	return out, nil
}

// signerForKey finds the agent-backed signer whose public key matches.
func signerForKey(conn *AgentConnection, key *agent.Key) (ssh.Signer, error) {
	signers, err := conn.Signers()
	if err != nil {
		return nil, fmt.Errorf("failed to get agent signers: %w", err)
	}
	blob := key.Marshal()
	for _, s := range signers {
		if bytes.Equal(s.PublicKey().Marshal(), blob) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("agent lost the key while selecting it")
}
