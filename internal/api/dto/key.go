package dto

// KeyParseRequest imports a key from its encoded bytes.
type KeyParseRequest struct {
	// Key is the encoded key material: OpenSSH or PEM private key,
	// authorized_keys line, PKIX PEM, or a base64 SSH wire blob.
	Key BinaryData `json:"key"`

	// Passphrase decrypts an encrypted private key. It is used once
	// and never stored or echoed back.
	Passphrase string `json:"passphrase,omitempty"`

	// Role, when set, rejects keys that do not satisfy it
	// ("public", "private", "pair").
	Role string `json:"role,omitempty"`
}

// KeyGenerateRequest generates a fresh key pair.
type KeyGenerateRequest struct {
	// Algorithm is the key algorithm: "rsa", "ecdsa-p256",
	// "ecdsa-p384", "ecdsa-p521", or "ed25519".
	Algorithm string `json:"algorithm"`

	// Bits is the RSA modulus size. Fixed-size algorithms reject it.
	Bits int `json:"bits,omitempty"`

	// Comment annotates the key.
	Comment string `json:"comment,omitempty"`
}

// KeyResponse describes one ringed key.
type KeyResponse struct {
	// Handle is the numeric handle for subsequent operations.
	Handle uint64 `json:"handle"`

	// Algorithm is the CLI algorithm identifier.
	Algorithm string `json:"algorithm"`

	// Role is "public", "private", or "pair".
	Role string `json:"role"`

	// Comment is the key comment, if any.
	Comment string `json:"comment,omitempty"`

	// Fingerprint is the SHA256 fingerprint.
	Fingerprint string `json:"fingerprint"`

	// Bits is the key size.
	Bits int `json:"bits"`
}

// KeyListResponse lists the ring contents.
type KeyListResponse struct {
	Keys  []KeyResponse `json:"keys"`
	Count int           `json:"count"`
}

// PublicKeyResponse carries a serialized public key.
type PublicKeyResponse struct {
	// PublicKey is the serialized public half.
	PublicKey BinaryData `json:"public_key"`

	// Format is the serialization format used.
	Format string `json:"format"`
}

// FingerprintResponse carries a key fingerprint.
type FingerprintResponse struct {
	// Fingerprint in OpenSSH rendering (e.g. "SHA256:...").
	Fingerprint string `json:"fingerprint"`

	// Hash is the hash algorithm used.
	Hash string `json:"hash"`
}
