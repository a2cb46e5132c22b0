package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/keyfob-io/keyfob/pkg/bind"
)

var signCmd = &cobra.Command{
	Use:   "sign [file]",
	Short: "Sign a file or stdin (SSHSIG)",
	Long: `Sign a file with an SSH key, producing an armored SSHSIG block
compatible with ssh-keygen -Y sign.

The namespace binds the signature to a purpose; a signature made for
"file" will not verify as "email". Reads stdin when no file is given
or the file is "-".

Output goes to <file>.sig, or to stdout when signing stdin.

Examples:
  # Sign a release artifact
  keyfob sign -i id_ed25519 release.tar.gz

  # Sign stdin into an explicit output
  echo "hello" | keyfob sign -i id_ed25519 -o hello.sig

  # Sign with an encrypted key, non-interactively
  KEY_PASS=secret keyfob sign -i id_rsa --passphrase-env KEY_PASS data.bin`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSign,
}

var (
	signKey           string
	signNamespace     string
	signOut           string
	signPassphraseEnv string
)

func init() {
	signCmd.Flags().StringVarP(&signKey, "in", "i", "", "Private key file (required)")
	signCmd.Flags().StringVarP(&signNamespace, "namespace", "n", "file", "Signature namespace")
	signCmd.Flags().StringVarP(&signOut, "out", "o", "", "Output file (default <file>.sig, or stdout for stdin)")
	signCmd.Flags().StringVar(&signPassphraseEnv, "passphrase-env", "", "Environment variable holding the key passphrase")
	_ = signCmd.MarkFlagRequired("in")
}

// readMessage reads the payload: a named file, or stdin for "-"/no arg.
func readMessage(args []string) ([]byte, string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, "", nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return data, args[0], nil
}

func runSign(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	message, inputFile, err := readMessage(args)
	if err != nil {
		return err
	}

	info, err := ringKeyFile(ctx, signKey, signPassphraseEnv)
	if err != nil {
		return err
	}
	defer releaseHandle(ctx, info.Handle)

	result, err := bind.Call(ctx, "sign", bind.Args{
		Handle:    info.Handle,
		Message:   message,
		Namespace: signNamespace,
	})
	if err != nil {
		return err
	}
	armored := result.([]byte)

	out := signOut
	if out == "" && inputFile != "" {
		out = inputFile + ".sig"
	}
	if err := writeOutput(out, armored, 0644); err != nil {
		return err
	}
	if out != "" {
		fmt.Printf("Signature written to: %s\n", out)
		fmt.Printf("Signed with: %s (%s)\n", info.Fingerprint, info.Algorithm)
	}
	return nil
}
