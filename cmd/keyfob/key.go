package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keyfob-io/keyfob/pkg/bind"
	"github.com/keyfob-io/keyfob/pkg/provider"
	"github.com/keyfob-io/keyfob/pkg/sshkey"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Create, inspect, and convert SSH keys",
	Long:  `Commands for generating, inspecting, and converting SSH keys.`,
}

var keyGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate an SSH key pair",
	Long: `Generate a new SSH key pair.

The private key is written in OpenSSH format to the output file; the
public key is written next to it with a .pub suffix, as one
authorized_keys line.

Supported algorithms:
  ed25519      - Ed25519 (default)
  ecdsa-p256   - ECDSA with P-256 curve
  ecdsa-p384   - ECDSA with P-384 curve
  ecdsa-p521   - ECDSA with P-521 curve
  rsa          - RSA (--bits selects the modulus, default 3072)

Examples:
  # Generate an Ed25519 key
  keyfob key generate -a ed25519 -o id_ed25519 -C "deploy@ci"

  # Generate a 4096-bit RSA key, encrypted
  keyfob key generate -a rsa -b 4096 -o id_rsa --encrypt

  # Non-interactive encryption
  KEY_PASS=secret keyfob key generate -o id_ed25519 --passphrase-env KEY_PASS`,
	RunE: runKeyGenerate,
}

var keyPublicCmd = &cobra.Command{
	Use:   "public",
	Short: "Emit the public half of a key",
	Long: `Emit the public half of a key in the requested format.

Formats:
  authorized-key - one authorized_keys line (default)
  pkix           - PEM "PUBLIC KEY" block (for TLS/JOSE tooling)
  wire           - raw RFC 4253 public key blob (binary)

The input may be a private key (public half is derived) or an existing
public key (format conversion).

Examples:
  keyfob key public -i id_ed25519 >> ~/.ssh/authorized_keys
  keyfob key public -i id_ed25519.pub -f pkix -o key.pem`,
	RunE: runKeyPublic,
}

var keyFingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Show a key's fingerprint",
	Long: `Show a key's fingerprint in OpenSSH rendering.

Hashes:
  sha256 - SHA256:<base64> (default, what OpenSSH prints)
  md5    - MD5:<colon-separated hex> (legacy)
  sha1   - SHA1:<base64>

Examples:
  keyfob key fingerprint -i id_ed25519.pub
  keyfob key fingerprint -i id_rsa -H md5`,
	RunE: runKeyFingerprint,
}

var keyInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Display information about a key",
	Long: `Display information about a key file.

Shows algorithm, role, size, comment, fingerprints, and whether the
private half can be re-exported.

Examples:
  keyfob key info -i id_ed25519
  keyfob key info -i encrypted.key --passphrase-env KEY_PASS`,
	RunE: runKeyInfo,
}

var keyConvertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert a key between formats",
	Long: `Convert a key between serialization formats.

Private formats: openssh, pkcs8, pkcs1 (RSA), sec1 (ECDSA).
Public formats:  authorized-key, pkix, wire.

Encryption is supported for openssh output only (--encrypt or
--new-passphrase-env). Converting to any other private format strips
passphrase protection.

Examples:
  # OpenSSH to PKCS#8 (for openssl and TLS stacks)
  keyfob key convert -i id_ecdsa -f pkcs8 -o key.pem

  # Add a passphrase
  keyfob key convert -i id_ed25519 -f openssh --encrypt -o id_ed25519

  # Decrypt (prompted for the old passphrase)
  keyfob key convert -i encrypted.key -f openssh -o plain.key`,
	RunE: runKeyConvert,
}

var keyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List keys in a directory or ssh-agent",
	Long: `List keys in a directory or in a running ssh-agent.

Directory mode scans for parseable key files and prints one line per
key. Encrypted private keys are reported without being decrypted.

Agent mode lists the agent's identities like ssh-add -l.

Examples:
  keyfob key list --dir ~/.ssh
  keyfob key list --agent
  keyfob key list --agent --socket /tmp/agent.sock`,
	RunE: runKeyList,
}

var (
	keyGenerateAlgorithm     string
	keyGenerateBits          int
	keyGenerateComment       string
	keyGenerateOut           string
	keyGenerateEncrypt       bool
	keyGeneratePassphraseEnv string

	keyPublicIn            string
	keyPublicFormat        string
	keyPublicOut           string
	keyPublicPassphraseEnv string

	keyFingerprintIn            string
	keyFingerprintHash          string
	keyFingerprintPassphraseEnv string

	keyInfoIn            string
	keyInfoPassphraseEnv string

	keyConvertIn               string
	keyConvertFormat           string
	keyConvertOut              string
	keyConvertPassphraseEnv    string
	keyConvertEncrypt          bool
	keyConvertNewPassphraseEnv string

	keyListAgent  bool
	keyListSocket string
	keyListDir    string
)

func init() {
	keyCmd.AddCommand(keyGenerateCmd)
	keyCmd.AddCommand(keyPublicCmd)
	keyCmd.AddCommand(keyFingerprintCmd)
	keyCmd.AddCommand(keyInfoCmd)
	keyCmd.AddCommand(keyConvertCmd)
	keyCmd.AddCommand(keyListCmd)

	// generate flags
	flags := keyGenerateCmd.Flags()
	flags.StringVarP(&keyGenerateAlgorithm, "algorithm", "a", "ed25519", "Key algorithm")
	flags.IntVarP(&keyGenerateBits, "bits", "b", 0, "RSA modulus size (RSA only)")
	flags.StringVarP(&keyGenerateComment, "comment", "C", "", "Key comment")
	flags.StringVarP(&keyGenerateOut, "out", "o", "", "Output file for the private key (required)")
	flags.BoolVar(&keyGenerateEncrypt, "encrypt", false, "Encrypt the private key (prompts for a passphrase)")
	flags.StringVar(&keyGeneratePassphraseEnv, "passphrase-env", "", "Environment variable holding the passphrase")
	_ = keyGenerateCmd.MarkFlagRequired("out")

	// public flags
	keyPublicCmd.Flags().StringVarP(&keyPublicIn, "in", "i", "", "Input key file (required)")
	keyPublicCmd.Flags().StringVarP(&keyPublicFormat, "format", "f", "authorized-key", "Output format: authorized-key, pkix, wire")
	keyPublicCmd.Flags().StringVarP(&keyPublicOut, "out", "o", "", "Output file (default stdout)")
	keyPublicCmd.Flags().StringVar(&keyPublicPassphraseEnv, "passphrase-env", "", "Environment variable holding the input passphrase")
	_ = keyPublicCmd.MarkFlagRequired("in")

	// fingerprint flags
	keyFingerprintCmd.Flags().StringVarP(&keyFingerprintIn, "in", "i", "", "Input key file (required)")
	keyFingerprintCmd.Flags().StringVarP(&keyFingerprintHash, "hash", "H", "sha256", "Fingerprint hash: sha256, md5, sha1")
	keyFingerprintCmd.Flags().StringVar(&keyFingerprintPassphraseEnv, "passphrase-env", "", "Environment variable holding the input passphrase")
	_ = keyFingerprintCmd.MarkFlagRequired("in")

	// info flags
	keyInfoCmd.Flags().StringVarP(&keyInfoIn, "in", "i", "", "Input key file (required)")
	keyInfoCmd.Flags().StringVar(&keyInfoPassphraseEnv, "passphrase-env", "", "Environment variable holding the input passphrase")
	_ = keyInfoCmd.MarkFlagRequired("in")

	// convert flags
	keyConvertCmd.Flags().StringVarP(&keyConvertIn, "in", "i", "", "Input key file (required)")
	keyConvertCmd.Flags().StringVarP(&keyConvertFormat, "format", "f", "", "Target format (required)")
	keyConvertCmd.Flags().StringVarP(&keyConvertOut, "out", "o", "", "Output file (default stdout)")
	keyConvertCmd.Flags().StringVar(&keyConvertPassphraseEnv, "passphrase-env", "", "Environment variable holding the input passphrase")
	keyConvertCmd.Flags().BoolVar(&keyConvertEncrypt, "encrypt", false, "Encrypt the output (openssh format only)")
	keyConvertCmd.Flags().StringVar(&keyConvertNewPassphraseEnv, "new-passphrase-env", "", "Environment variable holding the output passphrase")
	_ = keyConvertCmd.MarkFlagRequired("in")
	_ = keyConvertCmd.MarkFlagRequired("format")

	// list flags
	keyListCmd.Flags().BoolVar(&keyListAgent, "agent", false, "List keys held by the ssh-agent")
	keyListCmd.Flags().StringVar(&keyListSocket, "socket", "", "Agent socket (default $SSH_AUTH_SOCK)")
	keyListCmd.Flags().StringVar(&keyListDir, "dir", "", "Directory to scan for key files (default .)")
}

// ringKeyFile parses a key file through the surface and returns its
// handle info. Encrypted keys trigger the passphrase flow: environment
// override first, terminal prompt second.
func ringKeyFile(ctx context.Context, path, passphraseEnv string) (*bind.KeyInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	result, err := bind.Call(ctx, "parse", bind.Args{Data: data, Source: "file"})
	if err == nil {
		return result.(*bind.KeyInfo), nil
	}
	if !errors.Is(err, sshkey.ErrPassphraseRequired) {
		return nil, err
	}

	passphrase, perr := resolvePassphrase(passphraseEnv,
		fmt.Sprintf("Enter passphrase for %s: ", path))
	if perr != nil {
		return nil, perr
	}
	result, err = bind.Call(ctx, "parse", bind.Args{Data: data, Passphrase: passphrase, Source: "file"})
	if err != nil {
		return nil, err
	}
	return result.(*bind.KeyInfo), nil
}

// releaseHandle drops a ring entry once a command is done with it.
func releaseHandle(ctx context.Context, handle uint64) {
	_, _ = bind.Call(ctx, "release", bind.Args{Handle: handle})
}

// writeOutput writes data to a file, or to stdout when path is empty.
func writeOutput(path string, data []byte, perm os.FileMode) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// displayComment renders a key comment the way ssh-keygen does.
func displayComment(comment string) string {
	if comment == "" {
		return "no comment"
	}
	return comment
}

func runKeyGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var passphrase []byte
	if keyGeneratePassphraseEnv != "" {
		var err error
		passphrase, err = resolvePassphrase(keyGeneratePassphraseEnv, "")
		if err != nil {
			return err
		}
	} else if keyGenerateEncrypt {
		var err error
		passphrase, err = promptNewPassphrase()
		if err != nil {
			return err
		}
	}

	fmt.Printf("Generating %s key pair...\n", keyGenerateAlgorithm)

	result, err := bind.Call(ctx, "generate", bind.Args{
		Algorithm: keyGenerateAlgorithm,
		Bits:      keyGenerateBits,
		Comment:   keyGenerateComment,
	})
	if err != nil {
		return err
	}
	info := result.(*bind.KeyInfo)
	defer releaseHandle(ctx, info.Handle)

	priv, err := bind.Call(ctx, "serialize", bind.Args{
		Handle:     info.Handle,
		Format:     string(sshkey.FormatOpenSSH),
		Passphrase: passphrase,
	})
	if err != nil {
		return err
	}
	pub, err := bind.Call(ctx, "serialize", bind.Args{
		Handle: info.Handle,
		Format: string(sshkey.FormatAuthorizedKey),
	})
	if err != nil {
		return err
	}

	if err := os.WriteFile(keyGenerateOut, priv.([]byte), 0600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	pubPath := keyGenerateOut + ".pub"
	if err := os.WriteFile(pubPath, pub.([]byte), 0644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}

	fmt.Printf("Private key saved to: %s\n", keyGenerateOut)
	fmt.Printf("Public key saved to:  %s\n", pubPath)
	fmt.Printf("Fingerprint: %s\n", info.Fingerprint)
	if len(passphrase) == 0 {
		fmt.Println("Note: private key is stored unencrypted (use --encrypt).")
	}

	return nil
}

func runKeyPublic(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	format, err := sshkey.ParseFormat(keyPublicFormat)
	if err != nil {
		return err
	}
	if format.IsPrivate() {
		return fmt.Errorf("%s is a private key format; use 'keyfob key convert'", format)
	}

	info, err := ringKeyFile(ctx, keyPublicIn, keyPublicPassphraseEnv)
	if err != nil {
		return err
	}
	defer releaseHandle(ctx, info.Handle)

	result, err := bind.Call(ctx, "serialize", bind.Args{
		Handle: info.Handle,
		Format: string(format),
	})
	if err != nil {
		return err
	}

	if err := writeOutput(keyPublicOut, result.([]byte), 0644); err != nil {
		return err
	}
	if keyPublicOut != "" {
		fmt.Printf("Public key saved to: %s\n", keyPublicOut)
	}
	return nil
}

func runKeyFingerprint(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	info, err := ringKeyFile(ctx, keyFingerprintIn, keyFingerprintPassphraseEnv)
	if err != nil {
		return err
	}
	defer releaseHandle(ctx, info.Handle)

	result, err := bind.Call(ctx, "fingerprint", bind.Args{
		Handle: info.Handle,
		Hash:   keyFingerprintHash,
	})
	if err != nil {
		return err
	}
	fp := result.(*sshkey.Fingerprint)

	fmt.Printf("%d %s %s (%s)\n",
		info.Bits, fp, displayComment(info.Comment), strings.ToUpper(info.Algorithm))
	return nil
}

func runKeyInfo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	info, err := ringKeyFile(ctx, keyInfoIn, keyInfoPassphraseEnv)
	if err != nil {
		return err
	}
	defer releaseHandle(ctx, info.Handle)

	md5Result, err := bind.Call(ctx, "fingerprint", bind.Args{
		Handle: info.Handle,
		Hash:   string(sshkey.HashMD5),
	})
	if err != nil {
		return err
	}

	fmt.Printf("File:        %s\n", keyInfoIn)
	fmt.Printf("Algorithm:   %s\n", info.Algorithm)
	fmt.Printf("Role:        %s\n", info.Role)
	fmt.Printf("Bits:        %d\n", info.Bits)
	fmt.Printf("Comment:     %s\n", displayComment(info.Comment))
	fmt.Printf("SHA256:      %s\n", info.Fingerprint)
	fmt.Printf("MD5:         %s\n", md5Result.(*sshkey.Fingerprint))

	if info.Role != string(sshkey.RolePublic) {
		// Exportability distinguishes file keys from agent/token-backed ones.
		_, err := bind.Call(ctx, "serialize", bind.Args{
			Handle: info.Handle,
			Format: string(sshkey.FormatOpenSSH),
		})
		fmt.Printf("Exportable:  %t\n", err == nil)
	}
	return nil
}

func runKeyConvert(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	format, err := sshkey.ParseFormat(keyConvertFormat)
	if err != nil {
		return err
	}

	var newPassphrase []byte
	if keyConvertNewPassphraseEnv != "" {
		newPassphrase, err = resolvePassphrase(keyConvertNewPassphraseEnv, "")
		if err != nil {
			return err
		}
	} else if keyConvertEncrypt {
		newPassphrase, err = promptNewPassphrase()
		if err != nil {
			return err
		}
	}
	if len(newPassphrase) > 0 && format != sshkey.FormatOpenSSH {
		return fmt.Errorf("encrypted output requires the openssh format")
	}

	info, err := ringKeyFile(ctx, keyConvertIn, keyConvertPassphraseEnv)
	if err != nil {
		return err
	}
	defer releaseHandle(ctx, info.Handle)

	result, err := bind.Call(ctx, "serialize", bind.Args{
		Handle:     info.Handle,
		Format:     string(format),
		Passphrase: newPassphrase,
	})
	if err != nil {
		return err
	}

	perm := os.FileMode(0644)
	if format.IsPrivate() {
		perm = 0600
	}
	if err := writeOutput(keyConvertOut, result.([]byte), perm); err != nil {
		return err
	}
	if keyConvertOut != "" {
		fmt.Printf("Key saved to: %s\n", keyConvertOut)
	}
	return nil
}

func runKeyList(cmd *cobra.Command, args []string) error {
	if keyListAgent && keyListDir != "" {
		return fmt.Errorf("--agent and --dir are mutually exclusive")
	}
	if keyListAgent {
		return runKeyListAgent(cmd.Context())
	}
	dir := keyListDir
	if dir == "" {
		dir = "."
	}
	return runKeyListDir(dir)
}

func runKeyListAgent(ctx context.Context) error {
	p := provider.NewAgentProvider()
	keys, err := p.ListKeys(ctx, keyListSocket)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		fmt.Println("The agent has no identities.")
		return nil
	}
	for _, m := range keys {
		fp, err := sshkey.ComputeFingerprint(m, sshkey.HashSHA256)
		if err != nil {
			return err
		}
		fmt.Printf("%d %s %s (%s)\n",
			m.Bits(), fp, displayComment(m.Comment()), strings.ToUpper(string(m.Algorithm())))
	}
	return nil
}

func runKeyListDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scan directory: %w", err)
	}

	found := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		// Inspection only: parse without ringing the keys.
		m, err := sshkey.Parse(data)
		if err != nil {
			if errors.Is(err, sshkey.ErrPassphraseRequired) {
				fmt.Printf("%-28s (encrypted private key)\n", entry.Name())
				found++
			}
			continue
		}
		fp, err := sshkey.ComputeFingerprint(m, sshkey.HashSHA256)
		if err != nil {
			continue
		}
		fmt.Printf("%-28s %-12s %-8s %s\n", entry.Name(), m.Algorithm(), m.Role(), fp)
		found++
	}

	if found == 0 {
		fmt.Printf("No key files found in %s\n", dir)
	}
	return nil
}
