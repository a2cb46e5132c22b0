package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/keyfob-io/keyfob/pkg/sshkey"
)

// =============================================================================
// key generate
// =============================================================================

func TestF_Key_Generate_WritesKeyPair(t *testing.T) {
	tc := newTestContext(t)

	keyPath := tc.path("id_ed25519")
	_, err := executeCommand(rootCmd, "key", "generate",
		"-a", "ed25519", "-o", keyPath, "-C", "deploy@ci")
	assertNoError(t, err)

	m := tc.parseKeyFile(keyPath, nil)
	if m.Algorithm() != sshkey.AlgEd25519 {
		t.Errorf("algorithm = %s", m.Algorithm())
	}
	if m.Role() != sshkey.RolePair {
		t.Errorf("role = %s", m.Role())
	}
	if m.Comment() != "deploy@ci" {
		t.Errorf("comment = %q", m.Comment())
	}

	pub := tc.parseKeyFile(keyPath+".pub", nil)
	if pub.Role() != sshkey.RolePublic {
		t.Errorf("pub role = %s", pub.Role())
	}
	if !bytes.Equal(pub.PublicKey().Marshal(), m.PublicKey().Marshal()) {
		t.Error("public file does not match the private key's public half")
	}
}

func TestF_Key_Generate_PublicMatchesPrivate(t *testing.T) {
	tc := newTestContext(t)

	keyPath := tc.generateKeyPair("id_ecdsa", "-a", "ecdsa-p256")
	priv := tc.parseKeyFile(keyPath, nil)
	pub := tc.parseKeyFile(keyPath+".pub", nil)

	privFP, err := sshkey.ComputeFingerprint(priv, sshkey.HashSHA256)
	assertNoError(t, err)
	pubFP, err := sshkey.ComputeFingerprint(pub, sshkey.HashSHA256)
	assertNoError(t, err)
	if privFP.String() != pubFP.String() {
		t.Errorf("fingerprints differ: %s vs %s", privFP, pubFP)
	}
}

func TestF_Key_Generate_Encrypted(t *testing.T) {
	tc := newTestContext(t)
	t.Setenv("KEYFOB_TEST_PASS", "hunter2")

	keyPath := tc.path("id_ed25519")
	_, err := executeCommand(rootCmd, "key", "generate",
		"-o", keyPath, "--passphrase-env", "KEYFOB_TEST_PASS")
	assertNoError(t, err)

	// Without the passphrase the file must refuse to parse.
	_, err = sshkey.ParseFile(keyPath, nil)
	if !errors.Is(err, sshkey.ErrPassphraseRequired) {
		t.Fatalf("expected ErrPassphraseRequired, got %v", err)
	}
	tc.parseKeyFile(keyPath, []byte("hunter2"))
}

func TestF_Key_Generate_RSABits(t *testing.T) {
	tc := newTestContext(t)

	keyPath := tc.generateKeyPair("id_rsa", "-a", "rsa", "-b", "2048")
	m := tc.parseKeyFile(keyPath, nil)
	if m.Algorithm() != sshkey.AlgRSA {
		t.Errorf("algorithm = %s", m.Algorithm())
	}
	if m.Bits() != 2048 {
		t.Errorf("bits = %d", m.Bits())
	}
}

func TestF_Key_Generate_Refusals(t *testing.T) {
	tc := newTestContext(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown algorithm", []string{"-a", "x25519", "-o", tc.path("k1")}},
		{"dsa not generatable", []string{"-a", "dsa", "-o", tc.path("k2")}},
		{"bits on fixed-size", []string{"-a", "ed25519", "-b", "4096", "-o", tc.path("k3")}},
		{"passphrase env unset", []string{"-o", tc.path("k4"), "--passphrase-env", "KEYFOB_NO_SUCH_VAR"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetKeyFlags()
			_, err := executeCommand(rootCmd, append([]string{"key", "generate"}, tt.args...)...)
			assertError(t, err)
		})
	}
}

// =============================================================================
// key public
// =============================================================================

func TestF_Key_Public(t *testing.T) {
	tc := newTestContext(t)
	keyPath := tc.generateKeyPair("id_ed25519")

	t.Run("authorized-key", func(t *testing.T) {
		resetKeyFlags()
		out := tc.path("out.pub")
		_, err := executeCommand(rootCmd, "key", "public", "-i", keyPath, "-o", out)
		assertNoError(t, err)
		assertFileContains(t, out, "ssh-ed25519 ")
	})

	t.Run("pkix", func(t *testing.T) {
		resetKeyFlags()
		out := tc.path("out.pem")
		_, err := executeCommand(rootCmd, "key", "public", "-i", keyPath, "-f", "pkix", "-o", out)
		assertNoError(t, err)
		assertFileContains(t, out, "BEGIN PUBLIC KEY")
	})

	t.Run("wire round-trips", func(t *testing.T) {
		resetKeyFlags()
		out := tc.path("out.wire")
		_, err := executeCommand(rootCmd, "key", "public", "-i", keyPath, "-f", "wire", "-o", out)
		assertNoError(t, err)
		tc.parseKeyFile(out, nil)
	})

	t.Run("from public input", func(t *testing.T) {
		resetKeyFlags()
		out := tc.path("converted.pem")
		_, err := executeCommand(rootCmd, "key", "public", "-i", keyPath+".pub", "-f", "pkix", "-o", out)
		assertNoError(t, err)
		assertFileContains(t, out, "BEGIN PUBLIC KEY")
	})

	t.Run("private format refused", func(t *testing.T) {
		resetKeyFlags()
		_, err := executeCommand(rootCmd, "key", "public", "-i", keyPath, "-f", "openssh")
		assertError(t, err)
	})

	t.Run("unknown format", func(t *testing.T) {
		resetKeyFlags()
		_, err := executeCommand(rootCmd, "key", "public", "-i", keyPath, "-f", "jwk")
		assertError(t, err)
	})
}

// =============================================================================
// key fingerprint / info
// =============================================================================

func TestF_Key_Fingerprint(t *testing.T) {
	tc := newTestContext(t)
	keyPath := tc.generateKeyPair("id_ed25519")

	for _, hash := range []string{"sha256", "md5", "sha1"} {
		t.Run(hash, func(t *testing.T) {
			resetKeyFlags()
			_, err := executeCommand(rootCmd, "key", "fingerprint", "-i", keyPath+".pub", "-H", hash)
			assertNoError(t, err)
		})
	}

	t.Run("unknown hash", func(t *testing.T) {
		resetKeyFlags()
		_, err := executeCommand(rootCmd, "key", "fingerprint", "-i", keyPath, "-H", "crc32")
		assertError(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		resetKeyFlags()
		_, err := executeCommand(rootCmd, "key", "fingerprint", "-i", tc.path("nope"))
		assertError(t, err)
	})
}

func TestF_Key_Info(t *testing.T) {
	tc := newTestContext(t)
	keyPath := tc.generateKeyPair("id_ed25519", "-C", "info@test")

	_, err := executeCommand(rootCmd, "key", "info", "-i", keyPath)
	assertNoError(t, err)

	resetKeyFlags()
	_, err = executeCommand(rootCmd, "key", "info", "-i", keyPath+".pub")
	assertNoError(t, err)

	t.Run("encrypted without passphrase in non-tty", func(t *testing.T) {
		resetKeyFlags()
		t.Setenv("KEYFOB_TEST_PASS", "secret")
		encPath := tc.path("enc_key")
		_, err := executeCommand(rootCmd, "key", "generate",
			"-o", encPath, "--passphrase-env", "KEYFOB_TEST_PASS")
		assertNoError(t, err)

		resetKeyFlags()
		// No env, no TTY: the passphrase flow must fail, not hang.
		_, err = executeCommand(rootCmd, "key", "info", "-i", encPath)
		assertError(t, err)

		resetKeyFlags()
		_, err = executeCommand(rootCmd, "key", "info", "-i", encPath,
			"--passphrase-env", "KEYFOB_TEST_PASS")
		assertNoError(t, err)
	})
}

// =============================================================================
// key convert
// =============================================================================

func TestF_Key_Convert(t *testing.T) {
	tc := newTestContext(t)
	keyPath := tc.generateKeyPair("id_ecdsa", "-a", "ecdsa-p256")
	origFP := fingerprintOf(t, tc, keyPath, nil)

	t.Run("openssh to pkcs8", func(t *testing.T) {
		resetKeyFlags()
		out := tc.path("key.p8")
		_, err := executeCommand(rootCmd, "key", "convert", "-i", keyPath, "-f", "pkcs8", "-o", out)
		assertNoError(t, err)
		assertFileContains(t, out, "BEGIN PRIVATE KEY")
		if got := fingerprintOf(t, tc, out, nil); got != origFP {
			t.Errorf("fingerprint changed: %s -> %s", origFP, got)
		}
	})

	t.Run("openssh to sec1", func(t *testing.T) {
		resetKeyFlags()
		out := tc.path("key.sec1")
		_, err := executeCommand(rootCmd, "key", "convert", "-i", keyPath, "-f", "sec1", "-o", out)
		assertNoError(t, err)
		assertFileContains(t, out, "BEGIN EC PRIVATE KEY")
	})

	t.Run("add passphrase", func(t *testing.T) {
		resetKeyFlags()
		t.Setenv("KEYFOB_NEW_PASS", "sekrit")
		out := tc.path("key.enc")
		_, err := executeCommand(rootCmd, "key", "convert", "-i", keyPath, "-f", "openssh",
			"-o", out, "--new-passphrase-env", "KEYFOB_NEW_PASS")
		assertNoError(t, err)

		if _, err := sshkey.ParseFile(out, nil); !errors.Is(err, sshkey.ErrPassphraseRequired) {
			t.Fatalf("expected ErrPassphraseRequired, got %v", err)
		}
		if got := fingerprintOf(t, tc, out, []byte("sekrit")); got != origFP {
			t.Errorf("fingerprint changed: %s -> %s", origFP, got)
		}
	})

	t.Run("remove passphrase", func(t *testing.T) {
		resetKeyFlags()
		t.Setenv("KEYFOB_NEW_PASS", "sekrit")
		enc := tc.path("key2.enc")
		_, err := executeCommand(rootCmd, "key", "convert", "-i", keyPath, "-f", "openssh",
			"-o", enc, "--new-passphrase-env", "KEYFOB_NEW_PASS")
		assertNoError(t, err)

		resetKeyFlags()
		plain := tc.path("key2.plain")
		_, err = executeCommand(rootCmd, "key", "convert", "-i", enc, "-f", "openssh",
			"-o", plain, "--passphrase-env", "KEYFOB_NEW_PASS")
		assertNoError(t, err)
		tc.parseKeyFile(plain, nil)
	})

	t.Run("encrypted output needs openssh", func(t *testing.T) {
		resetKeyFlags()
		t.Setenv("KEYFOB_NEW_PASS", "sekrit")
		_, err := executeCommand(rootCmd, "key", "convert", "-i", keyPath, "-f", "pkcs8",
			"-o", tc.path("nope"), "--new-passphrase-env", "KEYFOB_NEW_PASS")
		assertError(t, err)
	})

	t.Run("pkcs1 on ecdsa refused", func(t *testing.T) {
		resetKeyFlags()
		_, err := executeCommand(rootCmd, "key", "convert", "-i", keyPath, "-f", "pkcs1",
			"-o", tc.path("nope2"))
		assertError(t, err)
	})
}

// =============================================================================
// key list
// =============================================================================

func TestF_Key_List_Dir(t *testing.T) {
	tc := newTestContext(t)
	tc.generateKeyPair("id_ed25519")
	tc.writeFile("notes.txt", "not a key")

	resetKeyFlags()
	_, err := executeCommand(rootCmd, "key", "list", "--dir", tc.tempDir)
	assertNoError(t, err)
}

func TestF_Key_List_EmptyDir(t *testing.T) {
	tc := newTestContext(t)

	_, err := executeCommand(rootCmd, "key", "list", "--dir", tc.tempDir)
	assertNoError(t, err)
}

func TestF_Key_List_FlagsExclusive(t *testing.T) {
	tc := newTestContext(t)

	_, err := executeCommand(rootCmd, "key", "list", "--agent", "--dir", tc.tempDir)
	assertError(t, err)
}

// fingerprintOf parses a key file and returns its SHA256 fingerprint.
func fingerprintOf(t *testing.T, tc *testContext, path string, passphrase []byte) string {
	t.Helper()
	m := tc.parseKeyFile(path, passphrase)
	fp, err := sshkey.ComputeFingerprint(m, sshkey.HashSHA256)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	return fp.String()
}
