package dto

// SignRequest signs a message with a ringed key.
type SignRequest struct {
	// Message is the data to sign.
	Message BinaryData `json:"message"`

	// Namespace, when set, produces an armored SSHSIG signature bound
	// to that namespace. Empty produces a raw SSH signature.
	Namespace string `json:"namespace,omitempty"`
}

// SignatureData is a raw SSH signature in transit.
type SignatureData struct {
	// Format is the SSH signature format name (e.g. "ssh-ed25519",
	// "rsa-sha2-256").
	Format string `json:"format"`

	// Blob is the base64-encoded signature blob.
	Blob string `json:"blob"`
}

// SignResponse carries the produced signature: Signature for raw mode,
// Armored for namespace mode.
type SignResponse struct {
	// Signature is the raw SSH signature (no namespace).
	Signature *SignatureData `json:"signature,omitempty"`

	// Armored is the SSHSIG armored block (namespace set).
	Armored string `json:"armored,omitempty"`

	// Namespace echoes the namespace the signature is bound to.
	Namespace string `json:"namespace,omitempty"`
}

// VerifyRequest checks a signature over a message. The key comes from
// one of three places: a ringed handle, inline public key bytes, or the
// key embedded in an armored SSHSIG block.
type VerifyRequest struct {
	// Message is the signed data.
	Message BinaryData `json:"message"`

	// Handle selects a ringed key.
	Handle uint64 `json:"handle,omitempty"`

	// Key is an inline public key (authorized_keys line, PKIX PEM, or
	// base64 wire blob).
	Key *BinaryData `json:"key,omitempty"`

	// Signature is a raw SSH signature.
	Signature *SignatureData `json:"signature,omitempty"`

	// Armored is an SSHSIG armored block; its embedded key verifies
	// the message when no handle or inline key is given.
	Armored string `json:"armored,omitempty"`

	// Namespace the armored signature must be bound to.
	Namespace string `json:"namespace,omitempty"`
}

// VerifyResponse reports the verification outcome. A mismatched
// signature is Valid=false with HTTP 200; only malformed input errors.
type VerifyResponse struct {
	// Valid is true when the signature checks out.
	Valid bool `json:"valid"`

	// Algorithm of the verifying key.
	Algorithm string `json:"algorithm,omitempty"`

	// Fingerprint of the verifying key.
	Fingerprint string `json:"fingerprint,omitempty"`

	// Comment of the verifying key.
	Comment string `json:"comment,omitempty"`
}

// StatsResponse reports ring accounting.
type StatsResponse struct {
	Live      uint64 `json:"live"`
	Acquired  uint64 `json:"acquired"`
	Released  uint64 `json:"released"`
	Finalized uint64 `json:"finalized"`
	Borrows   uint64 `json:"borrows"`
}
