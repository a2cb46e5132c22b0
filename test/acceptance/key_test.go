//go:build acceptance

package acceptance

import (
	"path/filepath"
	"strings"
	"testing"
)

// =============================================================================
// Key Lifecycle Tests (TestA_Key_*)
// =============================================================================

func TestA_Key_Generate_Default(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "id_ed25519")

	output := runKeyfob(t, "key", "generate", "--out", keyPath, "--comment", "deploy@ci")

	assertFileExists(t, keyPath)
	assertFileExists(t, keyPath+".pub")
	assertOutputContains(t, output, "Fingerprint: SHA256:")

	pub := string(readFile(t, keyPath+".pub"))
	if !strings.HasPrefix(pub, "ssh-ed25519 ") {
		t.Errorf("public key line = %q, want ssh-ed25519 prefix", pub)
	}
	assertOutputContains(t, pub, "deploy@ci")
}

func TestA_Key_Generate_Algorithms(t *testing.T) {
	tests := []struct {
		algorithm string
		extra     []string
		pubPrefix string
	}{
		{"ecdsa-p256", nil, "ecdsa-sha2-nistp256 "},
		{"ecdsa-p384", nil, "ecdsa-sha2-nistp384 "},
		{"ecdsa-p521", nil, "ecdsa-sha2-nistp521 "},
		{"rsa", []string{"--bits", "2048"}, "ssh-rsa "},
	}

	for _, tt := range tests {
		t.Run(tt.algorithm, func(t *testing.T) {
			dir := t.TempDir()
			keyPath := generateKeyPair(t, dir, "id_"+tt.algorithm,
				append([]string{"--algorithm", tt.algorithm}, tt.extra...)...)

			pub := string(readFile(t, keyPath+".pub"))
			if !strings.HasPrefix(pub, tt.pubPrefix) {
				t.Errorf("public key line = %q, want %q prefix", pub, tt.pubPrefix)
			}
		})
	}
}

func TestA_Key_Generate_UnsupportedAlgorithm(t *testing.T) {
	dir := t.TempDir()

	output := runKeyfobExpectError(t, "key", "generate",
		"--algorithm", "x25519", "--out", filepath.Join(dir, "nope"))
	assertOutputContains(t, output, "unsupported")
}

func TestA_Key_Generate_Encrypted(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "id_enc")

	runKeyfobEnv(t, []string{"KEYFOB_PASS=correct horse"},
		"key", "generate", "--out", keyPath, "--passphrase-env", "KEYFOB_PASS")

	// Without the passphrase the key is unreadable; stdin is not a tty,
	// so the command fails instead of prompting.
	runKeyfobExpectError(t, "key", "info", "--in", keyPath)

	output := runKeyfobEnv(t, []string{"KEYFOB_PASS=correct horse"},
		"key", "info", "--in", keyPath, "--passphrase-env", "KEYFOB_PASS")
	assertOutputContains(t, output, "ed25519")
}

func TestA_Key_Public(t *testing.T) {
	dir := t.TempDir()
	keyPath := generateKeyPair(t, dir, "id_ed25519")
	outPath := filepath.Join(dir, "exported.pub")

	runKeyfob(t, "key", "public", "--in", keyPath, "--out", outPath)
	pub := string(readFile(t, outPath))
	if !strings.HasPrefix(pub, "ssh-ed25519 ") {
		t.Errorf("exported public key = %q", pub)
	}

	// PKIX PEM export
	pemPath := filepath.Join(dir, "exported.pem")
	runKeyfob(t, "key", "public", "--in", keyPath, "--format", "pkix", "--out", pemPath)
	assertOutputContains(t, string(readFile(t, pemPath)), "BEGIN PUBLIC KEY")
}

func TestA_Key_Fingerprint(t *testing.T) {
	dir := t.TempDir()
	keyPath := generateKeyPair(t, dir, "id_ed25519", "--comment", "deploy@ci")

	output := runKeyfob(t, "key", "fingerprint", "--in", keyPath)
	assertOutputContains(t, output, "SHA256:")
	assertOutputContains(t, output, "deploy@ci")
	assertOutputContains(t, output, "ED25519")

	// Private key and public half fingerprint identically.
	pubOutput := runKeyfob(t, "key", "fingerprint", "--in", keyPath+".pub")
	if output != pubOutput {
		t.Errorf("fingerprint mismatch:\nprivate: %s\npublic:  %s", output, pubOutput)
	}

	md5Output := runKeyfob(t, "key", "fingerprint", "--in", keyPath, "--hash", "md5")
	assertOutputContains(t, md5Output, "MD5:")
}

func TestA_Key_Info(t *testing.T) {
	dir := t.TempDir()
	keyPath := generateKeyPair(t, dir, "id_ed25519", "--comment", "deploy@ci")

	output := runKeyfob(t, "key", "info", "--in", keyPath)
	assertOutputContains(t, output, "Algorithm:")
	assertOutputContains(t, output, "ed25519")
	assertOutputContains(t, output, "pair")
	assertOutputContains(t, output, "deploy@ci")
	assertOutputContains(t, output, "SHA256:")
}

func TestA_Key_Convert_PKCS8(t *testing.T) {
	dir := t.TempDir()
	keyPath := generateKeyPair(t, dir, "id_ecdsa", "--algorithm", "ecdsa-p256")
	outPath := filepath.Join(dir, "key.p8")

	runKeyfob(t, "key", "convert", "--in", keyPath, "--format", "pkcs8", "--out", outPath)
	assertOutputContains(t, string(readFile(t, outPath)), "BEGIN PRIVATE KEY")

	// The converted key fingerprints identically to the original.
	orig := runKeyfob(t, "key", "fingerprint", "--in", keyPath)
	conv := runKeyfob(t, "key", "fingerprint", "--in", outPath)
	fpOrig := strings.Fields(orig)[1]
	fpConv := strings.Fields(conv)[1]
	if fpOrig != fpConv {
		t.Errorf("fingerprint changed across convert: %s != %s", fpOrig, fpConv)
	}
}

func TestA_Key_List_Dir(t *testing.T) {
	dir := t.TempDir()
	generateKeyPair(t, dir, "id_ed25519")
	generateKeyPair(t, dir, "id_ecdsa", "--algorithm", "ecdsa-p256")

	output := runKeyfob(t, "key", "list", "--dir", dir)
	assertOutputContains(t, output, "id_ed25519")
	assertOutputContains(t, output, "id_ecdsa")
	assertOutputContains(t, output, "SHA256:")
}
