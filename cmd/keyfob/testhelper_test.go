package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/keyfob-io/keyfob/pkg/sshkey"
)

// executeCommand runs root with args in-process and captures the
// combined cobra output. fmt.Printf output from RunE bodies goes to the
// real stdout and is NOT captured; tests assert on files and errors.
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	err = root.Execute()
	return buf.String(), err
}

// testContext carries the temp dir the command under test reads and
// writes.
type testContext struct {
	t       *testing.T
	tempDir string
}

// newTestContext creates a new test context with a temp directory and
// clean command state. Package-level flag vars persist between Execute
// calls, so every test starts from defaults.
func newTestContext(t *testing.T) *testContext {
	t.Helper()
	resetRootFlags()
	resetKeyFlags()
	resetSignVerifyFlags()
	resetServeFlags()
	resetAuditFlags()
	return &testContext{t: t, tempDir: t.TempDir()}
}

func resetRootFlags() {
	auditLogPath = ""
}

func resetKeyFlags() {
	keyGenerateAlgorithm = "ed25519"
	keyGenerateBits = 0
	keyGenerateComment = ""
	keyGenerateOut = ""
	keyGenerateEncrypt = false
	keyGeneratePassphraseEnv = ""

	keyPublicIn = ""
	keyPublicFormat = "authorized-key"
	keyPublicOut = ""
	keyPublicPassphraseEnv = ""

	keyFingerprintIn = ""
	keyFingerprintHash = "sha256"
	keyFingerprintPassphraseEnv = ""

	keyInfoIn = ""
	keyInfoPassphraseEnv = ""

	keyConvertIn = ""
	keyConvertFormat = ""
	keyConvertOut = ""
	keyConvertPassphraseEnv = ""
	keyConvertEncrypt = false
	keyConvertNewPassphraseEnv = ""

	keyListAgent = false
	keyListSocket = ""
	keyListDir = ""
}

func resetSignVerifyFlags() {
	signKey = ""
	signNamespace = "file"
	signOut = ""
	signPassphraseEnv = ""

	verifySignature = ""
	verifySigner = ""
	verifyNamespace = "file"
}

func resetServeFlags() {
	serveAddr = ":8080"
	serveProvider = ""
	serveTLSCert = ""
	serveTLSKey = ""
}

func resetAuditFlags() {
	auditLog = ""
	auditTailCount = 10
	auditTailJSON = false
}

// path names a file inside the test's temp directory.
func (tc *testContext) path(name string) string {
	return filepath.Join(tc.tempDir, name)
}

// writeFile seeds the temp directory with a fixture file.
func (tc *testContext) writeFile(name, content string) string {
	tc.t.Helper()
	path := tc.path(name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		tc.t.Fatalf("cannot write fixture %s: %v", name, err)
	}
	return path
}

// generateKeyPair runs the generate command and returns the private key path.
func (tc *testContext) generateKeyPair(name string, extraArgs ...string) string {
	tc.t.Helper()
	keyPath := tc.path(name)
	args := append([]string{"key", "generate", "-o", keyPath}, extraArgs...)
	if _, err := executeCommand(rootCmd, args...); err != nil {
		tc.t.Fatalf("key generate failed: %v", err)
	}
	return keyPath
}

// parseKeyFile parses a written key file directly, for assertions.
func (tc *testContext) parseKeyFile(path string, passphrase []byte) *sshkey.KeyMaterial {
	tc.t.Helper()
	m, err := sshkey.ParseFile(path, passphrase)
	if err != nil {
		tc.t.Fatalf("failed to parse %s: %v", path, err)
	}
	return m
}

func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func assertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// assertFileContains fails unless the file contains the substring.
func assertFileContains(t *testing.T, path, want string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	if !strings.Contains(string(data), want) {
		t.Errorf("file %s does not contain %q", path, want)
	}
}
