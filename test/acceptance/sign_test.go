//go:build acceptance

package acceptance

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// =============================================================================
// Signing Tests (TestA_Sign_*, TestA_Verify_*)
// =============================================================================

func TestA_SignVerify_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	keyPath := generateKeyPair(t, dir, "id_ed25519", "--comment", "release@ci")
	dataPath := writeTestFile(t, dir, "artifact.txt", "release artifact v1.2.3\n")

	output := runKeyfob(t, "sign", "-i", keyPath, dataPath)
	assertOutputContains(t, output, "Signature written to:")
	assertFileExists(t, dataPath+".sig")
	assertOutputContains(t, string(readFile(t, dataPath+".sig")), "BEGIN SSH SIGNATURE")

	output = runKeyfob(t, "verify", "-s", dataPath+".sig", "-I", keyPath+".pub", dataPath)
	assertOutputContains(t, output, "Good signature from SHA256:")
	assertOutputContains(t, output, `namespace "file"`)
}

func TestA_Sign_Stdin(t *testing.T) {
	dir := t.TempDir()
	keyPath := generateKeyPair(t, dir, "id_ed25519")
	message := []byte("signed from a pipe\n")

	// Signing stdin writes the armored block to stdout.
	armored := runKeyfobStdin(t, message, "sign", "-i", keyPath)
	assertOutputContains(t, armored, "BEGIN SSH SIGNATURE")

	sigPath := writeTestFile(t, dir, "stdin.sig", armored)

	// Verifying from stdin too.
	output := runKeyfobStdin(t, message, "verify", "-s", sigPath, "-I", keyPath+".pub")
	assertOutputContains(t, output, "Good signature")
}

func TestA_Sign_ExplicitDashReadsStdin(t *testing.T) {
	dir := t.TempDir()
	keyPath := generateKeyPair(t, dir, "id_ed25519")
	sigPath := filepath.Join(dir, "out.sig")

	runKeyfobStdin(t, []byte("payload"), "sign", "-i", keyPath, "-o", sigPath, "-")
	assertFileExists(t, sigPath)
}

func TestA_Verify_TamperedFile(t *testing.T) {
	dir := t.TempDir()
	keyPath := generateKeyPair(t, dir, "id_ed25519")
	dataPath := writeTestFile(t, dir, "artifact.txt", "original\n")

	runKeyfob(t, "sign", "-i", keyPath, dataPath)
	writeTestFile(t, dir, "artifact.txt", "tampered\n")

	output := runKeyfobExpectError(t, "verify",
		"-s", dataPath+".sig", "-I", keyPath+".pub", dataPath)
	assertOutputContains(t, output, "bad signature")
}

func TestA_Verify_WrongNamespace(t *testing.T) {
	dir := t.TempDir()
	keyPath := generateKeyPair(t, dir, "id_ed25519")
	dataPath := writeTestFile(t, dir, "artifact.txt", "contents\n")

	runKeyfob(t, "sign", "-i", keyPath, "-n", "release", dataPath)

	output := runKeyfobExpectError(t, "verify",
		"-s", dataPath+".sig", "-I", keyPath+".pub", "-n", "file", dataPath)
	assertOutputContains(t, output, "bad signature")
}

func TestA_Verify_WrongSigner(t *testing.T) {
	dir := t.TempDir()
	signerPath := generateKeyPair(t, dir, "id_signer")
	otherPath := generateKeyPair(t, dir, "id_other")
	dataPath := writeTestFile(t, dir, "artifact.txt", "contents\n")

	runKeyfob(t, "sign", "-i", signerPath, dataPath)

	output := runKeyfobExpectError(t, "verify",
		"-s", dataPath+".sig", "-I", otherPath+".pub", dataPath)
	assertOutputContains(t, output, "different key")
}

// =============================================================================
// ssh-keygen Interop Tests (TestA_Interop_*)
// =============================================================================

// skipWithoutSSHKeygen skips interop tests on hosts without OpenSSH.
func skipWithoutSSHKeygen(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ssh-keygen"); err != nil {
		t.Skip("ssh-keygen not available")
	}
}

func TestA_Interop_SSHKeygenVerifiesOurSignature(t *testing.T) {
	skipWithoutSSHKeygen(t)

	dir := t.TempDir()
	keyPath := generateKeyPair(t, dir, "id_ed25519", "--comment", "ci@test")
	dataPath := writeTestFile(t, dir, "artifact.txt", "interop payload\n")

	runKeyfob(t, "sign", "-i", keyPath, dataPath)

	// allowed_signers: "principal keytype base64 comment"
	pubLine := string(readFile(t, keyPath+".pub"))
	allowedPath := writeTestFile(t, dir, "allowed_signers", "ci@test "+pubLine)

	cmd := exec.Command("ssh-keygen", "-Y", "verify",
		"-f", allowedPath, "-I", "ci@test", "-n", "file", "-s", dataPath+".sig")
	data, err := os.Open(dataPath)
	if err != nil {
		t.Fatal(err)
	}
	defer data.Close()
	cmd.Stdin = data

	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("ssh-keygen rejected our signature: %v\n%s", err, out)
	}
	if !strings.Contains(string(out), "Good") {
		t.Errorf("ssh-keygen output = %s", out)
	}
}

func TestA_Interop_WeVerifySSHKeygenSignature(t *testing.T) {
	skipWithoutSSHKeygen(t)

	dir := t.TempDir()
	keyPath := generateKeyPair(t, dir, "id_ed25519")
	dataPath := writeTestFile(t, dir, "artifact.txt", "interop payload\n")

	cmd := exec.Command("ssh-keygen", "-Y", "sign", "-f", keyPath, "-n", "file", dataPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("ssh-keygen sign failed: %v\n%s", err, out)
	}

	output := runKeyfob(t, "verify", "-s", dataPath+".sig", "-I", keyPath+".pub", dataPath)
	assertOutputContains(t, output, "Good signature")
}
