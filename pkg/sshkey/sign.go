package sshkey

import (
	"fmt"

	"golang.org/x/crypto/ssh"
)

// Signature is signature bytes plus the wire format name that produced
// them (e.g. "rsa-sha2-256", "ssh-ed25519"). Validity is checked by
// Verify, never cached.
type Signature struct {
	Format string
	Blob   []byte
}

// SignatureFromSSH converts an ssh.Signature.
func SignatureFromSSH(sig *ssh.Signature) *Signature {
	if sig == nil {
		return nil
	}
	return &Signature{Format: sig.Format, Blob: sig.Blob}
}

// SSH converts back to the x/crypto representation.
func (s *Signature) SSH() *ssh.Signature {
	return &ssh.Signature{Format: s.Format, Blob: s.Blob}
}

// Sign signs the message with the material's private half. Public-only
// material fails with ErrNotPrivateKey; a backend refusal (agent gone,
// token error) fails with ErrSigningFailed.
//
// RSA keys sign with rsa-sha2-256 when the backend supports algorithm
// selection, matching current OpenSSH behavior; the format actually used
// is recorded in the returned Signature.
func Sign(m *KeyMaterial, message []byte) (*Signature, error) {
	if err := EnsureInitialized(); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("nil key material")
	}
	if !m.IsPrivate() {
		return nil, opError("sign", m.algorithm,
			fmt.Errorf("%w: material carries no private half", ErrNotPrivateKey))
	}

	preferred := m.algorithm.SignatureFormats()[0]
	var sig *ssh.Signature
	var err error
	if as, ok := m.signer.(ssh.AlgorithmSigner); ok && preferred != m.pub.Type() {
		sig, err = as.SignWithAlgorithm(entropy, message, preferred)
	} else {
		sig, err = m.signer.Sign(entropy, message)
	}
	if err != nil {
		return nil, opError("sign", m.algorithm, fmt.Errorf("%w: %v", ErrSigningFailed, err))
	}
	return SignatureFromSSH(sig), nil
}

// Verify checks the signature over the message against the material's
// public half.
//
// A signature that does not match is a normal (false, nil) result, never
// an error; this includes corrupted signature blobs. Only structurally
// invalid input is an error: a nil or empty signature, or a signature
// format name that keys of this algorithm cannot produce, fail with
// ErrVerification.
func Verify(m *KeyMaterial, message []byte, sig *Signature) (bool, error) {
	if err := EnsureInitialized(); err != nil {
		return false, err
	}
	if m == nil {
		return false, fmt.Errorf("nil key material")
	}
	if sig == nil || len(sig.Blob) == 0 || sig.Format == "" {
		return false, opError("verify", m.algorithm,
			fmt.Errorf("%w: empty signature", ErrVerification))
	}
	if !m.algorithm.AcceptsSignatureFormat(sig.Format) {
		return false, opError("verify", m.algorithm,
			fmt.Errorf("%w: signature format %q does not match a %s key", ErrVerification, sig.Format, m.algorithm))
	}

	if err := m.pub.Verify(message, sig.SSH()); err != nil {
		return false, nil
	}
	return true, nil
}
