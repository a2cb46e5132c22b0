//go:build acceptance

// Package acceptance drives the compiled keyfob binary end to end
// (TestA_*). Build the binary first, then:
//
//	go test -tags=acceptance ./test/acceptance/...
package acceptance

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// keyfobBinary locates the binary under test. KEYFOB_BINARY overrides
// the default ../../bin/keyfob (relative to this package).
var keyfobBinary string

func init() {
	keyfobBinary = os.Getenv("KEYFOB_BINARY")
	if keyfobBinary == "" {
		keyfobBinary = "../../bin/keyfob"
	}
}

// execKeyfob is the common runner: optional stdin, optional extra
// environment, captured stdout/stderr.
func execKeyfob(stdin []byte, env []string, args ...string) (stdout, stderr string, err error) {
	cmd := exec.Command(keyfobBinary, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err = cmd.Run()
	return outBuf.String(), errBuf.String(), err
}

// runKeyfob runs the CLI and fails the test on a non-zero exit.
func runKeyfob(t *testing.T, args ...string) string {
	t.Helper()
	stdout, stderr, err := execKeyfob(nil, nil, args...)
	if err != nil {
		t.Fatalf("keyfob %s: %v\nstderr: %s\nstdout: %s",
			strings.Join(args, " "), err, stderr, stdout)
	}
	return stdout
}

// runKeyfobExpectError runs the CLI, requires a non-zero exit, and
// hands back stdout+stderr for message assertions.
func runKeyfobExpectError(t *testing.T, args ...string) string {
	t.Helper()
	stdout, stderr, err := execKeyfob(nil, nil, args...)
	if err == nil {
		t.Fatalf("keyfob %s succeeded, expected failure\nstdout: %s",
			strings.Join(args, " "), stdout)
	}
	return stdout + stderr
}

// runKeyfobStdin feeds stdin to the CLI (keys and messages arrive on
// pipes in several flows) and returns stdout.
func runKeyfobStdin(t *testing.T, stdin []byte, args ...string) string {
	t.Helper()
	stdout, stderr, err := execKeyfob(stdin, nil, args...)
	if err != nil {
		t.Fatalf("keyfob %s: %v\nstderr: %s\nstdout: %s",
			strings.Join(args, " "), err, stderr, stdout)
	}
	return stdout
}

// runKeyfobEnv runs the CLI with extra "K=V" environment entries, used
// for KEYFOB_AUDIT_LOG and passphrase indirection.
func runKeyfobEnv(t *testing.T, env []string, args ...string) string {
	t.Helper()
	stdout, stderr, err := execKeyfob(nil, env, args...)
	if err != nil {
		t.Fatalf("keyfob %s: %v\nstderr: %s\nstdout: %s",
			strings.Join(args, " "), err, stderr, stdout)
	}
	return stdout
}

// runKeyfobBackground keeps the CLI running until ctx is cancelled,
// for serve tests. Output is discarded; callers poll the port.
func runKeyfobBackground(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, keyfobBinary, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	return cmd.Run()
}

// generateKeyPair makes a fresh key pair under dir and returns the
// private key path. The .pub half must land next to it.
func generateKeyPair(t *testing.T, dir, name string, extra ...string) string {
	t.Helper()
	keyPath := filepath.Join(dir, name)
	args := append([]string{"key", "generate", "--out", keyPath}, extra...)
	runKeyfob(t, args...)
	assertFileExists(t, keyPath)
	assertFileExists(t, keyPath+".pub")
	return keyPath
}

func assertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatalf("missing expected file %s", path)
	}
}

func assertOutputContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Errorf("output lacks %q:\n%s", want, output)
	}
}

// writeTestFile drops a fixture with the given content into dir.
func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("cannot write fixture: %v", err)
	}
	return path
}

// readFile slurps path or fails the test.
func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("cannot read %s: %v", path, err)
	}
	return data
}
