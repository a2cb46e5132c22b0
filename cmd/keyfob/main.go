// Command keyfob manages SSH keys: import, generate, fingerprint, sign,
// and verify, with ssh-agent and PKCS#11 token backends and an optional
// REST service.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/keyfob-io/keyfob/internal/audit"
	"github.com/keyfob-io/keyfob/pkg/bind"
	"github.com/keyfob-io/keyfob/pkg/provider"
)

// Overridden at release time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// auditLogPath backs the persistent --audit-log flag.
var auditLogPath string

func main() {
	setupSignalHandler()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		_ = audit.Close() // PersistentPostRunE is skipped on error
		provider.ClosePools()
		os.Exit(1)
	}

	// Token session pools must be drained before the process exits.
	provider.ClosePools()
}

// exitSignals receives SIGINT/SIGTERM for the exit handler.
var exitSignals chan os.Signal

// setupSignalHandler closes PKCS#11 session pools before exiting on
// SIGINT/SIGTERM. Killing the process with live token sessions can
// SIGSEGV inside the vendor module.
func setupSignalHandler() {
	exitSignals = make(chan os.Signal, 1)
	signal.Notify(exitSignals, os.Interrupt, syscall.SIGTERM)
	go func() {
		if _, ok := <-exitSignals; !ok {
			return
		}
		provider.ClosePools()
		os.Exit(0)
	}()
}

// disarmExitHandler hands signal ownership to a long-running command.
// The serve command shuts down gracefully on its own; exiting from here
// would cut connections mid-flight.
func disarmExitHandler() {
	if exitSignals == nil {
		return
	}
	signal.Stop(exitSignals)
	close(exitSignals)
	exitSignals = nil
}

var rootCmd = &cobra.Command{
	Use:   "keyfob",
	Short: "keyfob - SSH key management and signing toolkit",
	Long: `keyfob manages SSH keys across files, agents, and PKCS#11 tokens.

Keys are parsed into an in-process registry and addressed by numeric
handles; private material is wiped when a handle is released. Signing
produces raw SSH signatures or armored SSHSIG blocks compatible with
ssh-keygen -Y.

Supported algorithms:
  ed25519      - Ed25519 (default)
  ecdsa-p256   - ECDSA with P-256 curve
  ecdsa-p384   - ECDSA with P-384 curve
  ecdsa-p521   - ECDSA with P-521 curve
  rsa          - RSA (2048-4096 bit, rsa-sha2 signatures)
  dsa          - legacy DSA (read/verify only)

Examples:
  # Generate a key pair
  keyfob key generate -a ed25519 -o id_ed25519

  # Show a key's fingerprint
  keyfob key fingerprint -i id_ed25519.pub

  # Sign a file (SSHSIG, like ssh-keygen -Y sign)
  keyfob sign -i id_ed25519 -n file release.tar.gz

  # Verify the signature
  keyfob verify -s release.tar.gz.sig -I id_ed25519.pub release.tar.gz

  # Serve the REST API
  keyfob serve --addr :8080 --audit-log /var/log/keyfob/audit.jsonl`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The flag wins; the environment is the fallback.
		if auditLogPath == "" {
			auditLogPath = os.Getenv("KEYFOB_AUDIT_LOG")
		}
		if auditLogPath != "" {
			if err := audit.InitFile(auditLogPath); err != nil {
				return fmt.Errorf("cannot open audit log: %w", err)
			}
		}

		// Arm the key layer before any command body runs
		return bind.Initialize()
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return audit.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&auditLogPath, "audit-log", "",
		"Audit log path (KEYFOB_AUDIT_LOG is the fallback)")

	rootCmd.AddCommand(keyCmd) // keyfob key ...
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(auditCmd)
}
