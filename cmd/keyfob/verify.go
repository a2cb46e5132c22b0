package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keyfob-io/keyfob/pkg/bind"
	"github.com/keyfob-io/keyfob/pkg/sshkey"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [file]",
	Short: "Verify an SSHSIG signature",
	Long: `Verify an armored SSHSIG signature over a file or stdin.

The signature embeds the signing public key; verification checks the
signature AND that the embedded key matches the expected signer given
with -I. The namespace must match the one used at signing time.

Exits non-zero when the signature is invalid, bound to a different
namespace, or made by a different key.

Examples:
  # Verify a release artifact
  keyfob verify -s release.tar.gz.sig -I id_ed25519.pub release.tar.gz

  # Verify stdin
  echo "hello" | keyfob verify -s hello.sig -I signer.pub`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

var (
	verifySignature string
	verifySigner    string
	verifyNamespace string
)

func init() {
	verifyCmd.Flags().StringVarP(&verifySignature, "signature", "s", "", "Signature file (required)")
	verifyCmd.Flags().StringVarP(&verifySigner, "signer", "I", "", "Expected signer public key file (required)")
	verifyCmd.Flags().StringVarP(&verifyNamespace, "namespace", "n", "file", "Expected signature namespace")
	_ = verifyCmd.MarkFlagRequired("signature")
	_ = verifyCmd.MarkFlagRequired("signer")
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	message, _, err := readMessage(args)
	if err != nil {
		return err
	}
	armored, err := os.ReadFile(verifySignature)
	if err != nil {
		return fmt.Errorf("failed to read signature: %w", err)
	}

	// The expected signer, by fingerprint.
	signer, err := sshkey.ParseFile(verifySigner, nil)
	if err != nil {
		return fmt.Errorf("failed to parse signer key: %w", err)
	}
	signerFP, err := sshkey.ComputeFingerprint(signer, sshkey.HashSHA256)
	if err != nil {
		return err
	}

	result, err := bind.Call(ctx, "verify", bind.Args{
		Message:   message,
		Armored:   armored,
		Namespace: verifyNamespace,
	})
	if err != nil {
		return err
	}
	res := result.(*bind.VerifyResult)

	if !res.Valid {
		return fmt.Errorf("bad signature (namespace %q)", verifyNamespace)
	}
	if res.Fingerprint != signerFP.String() {
		return fmt.Errorf("signature is valid but made by a different key: got %s, expected %s",
			res.Fingerprint, signerFP)
	}

	fmt.Printf("Good signature from %s (%s), namespace %q\n",
		res.Fingerprint, res.Algorithm, verifyNamespace)
	return nil
}
