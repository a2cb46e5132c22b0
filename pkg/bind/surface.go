package bind

import (
	"context"
	"fmt"
	"sort"

	"github.com/keyfob-io/keyfob/internal/audit"
	"github.com/keyfob-io/keyfob/pkg/keyring"
	"github.com/keyfob-io/keyfob/pkg/sshkey"
)

// Args carries the parameters of a surface operation. Each operation
// documents the fields it reads; everything else is ignored.
type Args struct {
	// Data holds encoded key bytes for parse and for handle-less verify.
	Data []byte
	// Passphrase decrypts encrypted input (parse) or protects openssh
	// output (serialize). Never logged.
	Passphrase []byte
	// Material imports an already-built key (acquire). The ring takes
	// ownership: releasing the handle wipes the private half.
	Material *sshkey.KeyMaterial
	// Source names where imported material came from, e.g. "file",
	// "agent", "pkcs11". Defaults to "inline".
	Source string

	Role      string
	Algorithm string
	Bits      int
	Comment   string
	Format    string
	Hash      string

	// Handle addresses a ring entry for handle-oriented operations.
	Handle uint64

	// Message is the payload for sign and verify. Namespace selects the
	// armored SSHSIG flavor; when empty, sign and verify work on raw
	// wire signatures.
	Message   []byte
	Namespace string
	Signature *sshkey.Signature
	Armored   []byte
}

// OpFunc is one named operation of the surface.
type OpFunc func(ctx context.Context, args Args) (any, error)

// KeyInfo describes one ring entry. It never carries key bytes; the key
// appears only as its SHA-256 fingerprint.
type KeyInfo struct {
	Handle      uint64 `json:"handle"`
	Algorithm   string `json:"algorithm"`
	Role        string `json:"role"`
	Comment     string `json:"comment,omitempty"`
	Fingerprint string `json:"fingerprint"`
	Bits        int    `json:"bits"`
}

// VerifyResult reports a verification outcome together with the key that
// checked it. Valid is false for a well-formed but mismatched signature;
// malformed input fails the operation instead.
type VerifyResult struct {
	Valid       bool   `json:"valid"`
	Algorithm   string `json:"algorithm,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Comment     string `json:"comment,omitempty"`
}

// Surface is the named-operation table hosts call through. All
// operations are safe for concurrent use; handle-oriented ones
// coordinate with release through the ring.
type Surface struct {
	ring  *keyring.Ring
	ops   map[string]OpFunc
	names []string
}

// NewSurface builds a surface over the given ring. A nil ring gets a
// fresh private one.
func NewSurface(ring *keyring.Ring) *Surface {
	if ring == nil {
		ring = keyring.New()
	}
	s := &Surface{ring: ring}
	s.ops = map[string]OpFunc{
		"parse":         s.opParse,
		"serialize":     s.opSerialize,
		"derive-public": s.opDerivePublic,
		"generate":      s.opGenerate,
		"fingerprint":   s.opFingerprint,
		"sign":          s.opSign,
		"verify":        s.opVerify,
		"acquire":       s.opAcquire,
		"release":       s.opRelease,
		"list":          s.opList,
		"stats":         s.opStats,
	}
	s.names = make([]string, 0, len(s.ops))
	for name := range s.ops {
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)
	return s
}

// Ring exposes the underlying ring for hosts that need borrow-level
// access (the CLI's streaming paths).
func (s *Surface) Ring() *keyring.Ring { return s.ring }

// Op returns the named operation.
func (s *Surface) Op(name string) (OpFunc, error) {
	op, ok := s.ops[name]
	if !ok {
		return nil, fmt.Errorf("unknown operation %q", name)
	}
	return op, nil
}

// Names returns the operation names in sorted order.
func (s *Surface) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Call resolves and invokes the named operation.
func (s *Surface) Call(ctx context.Context, name string, args Args) (any, error) {
	op, err := s.Op(name)
	if err != nil {
		return nil, err
	}
	return op(ctx, args)
}

// ============================================================================
// Operations
// ============================================================================

// opParse decodes Data (any supported encoding, Passphrase for encrypted
// openssh input, Role as an expectation) and adopts the result into the
// ring. Result: *KeyInfo.
func (s *Surface) opParse(ctx context.Context, args Args) (any, error) {
	opts := sshkey.ParseOptions{Passphrase: args.Passphrase}
	if args.Role != "" {
		role, err := sshkey.ParseRole(args.Role)
		if err != nil {
			return nil, err
		}
		opts.ExpectedRole = role
	}
	m, err := sshkey.ParseWithOptions(args.Data, opts)
	if err != nil {
		return nil, err
	}
	return s.adopt(m, args.Source)
}

// opAcquire adopts caller-built Material into the ring. Result: *KeyInfo.
func (s *Surface) opAcquire(ctx context.Context, args Args) (any, error) {
	if args.Material == nil {
		return nil, fmt.Errorf("nil key material")
	}
	return s.adopt(args.Material, args.Source)
}

// opGenerate creates a fresh key pair (Algorithm, optional Bits and
// Comment) and adopts it. Result: *KeyInfo.
func (s *Surface) opGenerate(ctx context.Context, args Args) (any, error) {
	alg, err := sshkey.ParseAlgorithm(args.Algorithm)
	if err != nil {
		return nil, err
	}
	m, err := sshkey.GenerateWithOptions(alg, sshkey.GenerateOptions{
		Bits:    args.Bits,
		Comment: args.Comment,
	})
	if err != nil {
		return nil, err
	}

	h := s.ring.Acquire(m)
	info, err := describe(h.ID(), m)
	if err != nil {
		s.ring.Release(h)
		return nil, err
	}
	// Audit: key generated and ringed
	if err := audit.LogKeyGenerated(info.Algorithm, info.Fingerprint, info.Comment, true); err != nil {
		s.ring.Release(h)
		return nil, err
	}
	return info, nil
}

// opSerialize encodes the handle's material in Format. Passphrase
// protects openssh output. Result: []byte.
func (s *Surface) opSerialize(ctx context.Context, args Args) (any, error) {
	format, err := sshkey.ParseFormat(args.Format)
	if err != nil {
		return nil, err
	}
	h, err := s.ring.Find(args.Handle)
	if err != nil {
		return nil, err
	}
	var out []byte
	err = s.ring.Borrow(h, func(m *sshkey.KeyMaterial) error {
		var serr error
		out, serr = sshkey.SerializeWithPassphrase(m, format, args.Passphrase)
		return serr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// opDerivePublic splits the public half off the handle's material and
// adopts it as a new entry. Result: *KeyInfo for the public handle.
func (s *Surface) opDerivePublic(ctx context.Context, args Args) (any, error) {
	h, err := s.ring.Find(args.Handle)
	if err != nil {
		return nil, err
	}
	var pub *sshkey.KeyMaterial
	err = s.ring.Borrow(h, func(m *sshkey.KeyMaterial) error {
		var derr error
		pub, derr = sshkey.DerivePublic(m)
		return derr
	})
	if err != nil {
		return nil, err
	}

	nh := s.ring.Acquire(pub)
	info, err := describe(nh.ID(), pub)
	if err != nil {
		s.ring.Release(nh)
		return nil, err
	}
	// Audit: public half split off
	if err := audit.LogPublicDerived(info.Algorithm, info.Fingerprint, "", true); err != nil {
		s.ring.Release(nh)
		return nil, err
	}
	return info, nil
}

// opFingerprint digests the handle's public key. Hash defaults to
// sha256. Result: *sshkey.Fingerprint.
func (s *Surface) opFingerprint(ctx context.Context, args Args) (any, error) {
	hash := sshkey.HashSHA256
	if args.Hash != "" {
		var err error
		hash, err = sshkey.ParseHashAlgorithm(args.Hash)
		if err != nil {
			return nil, err
		}
	}
	h, err := s.ring.Find(args.Handle)
	if err != nil {
		return nil, err
	}
	m, err := s.ring.Get(h)
	if err != nil {
		return nil, err
	}
	return sshkey.ComputeFingerprint(m, hash)
}

// opSign signs Message with the handle's private half. With Namespace
// set the result is an armored SSHSIG block ([]byte); otherwise a raw
// *sshkey.Signature. The borrow keeps release from wiping the key
// mid-signature.
func (s *Surface) opSign(ctx context.Context, args Args) (any, error) {
	h, err := s.ring.Find(args.Handle)
	if err != nil {
		return nil, err
	}
	var (
		result any
		info   *KeyInfo
	)
	err = s.ring.Borrow(h, func(m *sshkey.KeyMaterial) error {
		var serr error
		if info, serr = describe(h.ID(), m); serr != nil {
			return serr
		}
		if args.Namespace != "" {
			result, serr = sshkey.SignArmored(m, args.Namespace, args.Message)
			return serr
		}
		var sig *sshkey.Signature
		sig, serr = sshkey.Sign(m, args.Message)
		result = sig
		return serr
	})
	if err != nil {
		return nil, err
	}
	// Audit: data signed under the handle's key
	if err := audit.LogDataSigned(info.Algorithm, info.Fingerprint, args.Namespace, true); err != nil {
		return nil, err
	}
	return result, nil
}

// opVerify checks Message against a signature. Armored selects SSHSIG
// verification (the signer key travels inside the blob); otherwise
// Signature is checked against the key named by Handle or carried in
// Data. Result: *VerifyResult; a mismatch is a valid=false result, not
// an error.
func (s *Surface) opVerify(ctx context.Context, args Args) (any, error) {
	if len(args.Armored) > 0 {
		return s.verifyArmored(args)
	}
	return s.verifyRaw(args)
}

func (s *Surface) verifyArmored(args Args) (any, error) {
	signer, valid, err := sshkey.VerifyArmored(args.Message, args.Armored, args.Namespace)
	if err != nil {
		return nil, err
	}
	res := &VerifyResult{Valid: valid}
	if signer != nil {
		fp, err := sha256Fingerprint(signer)
		if err != nil {
			return nil, err
		}
		res.Algorithm = string(signer.Algorithm())
		res.Fingerprint = fp
		res.Comment = signer.Comment()
	}
	// Audit: signature checked
	if err := audit.LogSignatureVerified(res.Algorithm, res.Fingerprint, valid, true); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Surface) verifyRaw(args Args) (any, error) {
	var m *sshkey.KeyMaterial
	switch {
	case args.Handle != 0:
		h, err := s.ring.Find(args.Handle)
		if err != nil {
			return nil, err
		}
		if m, err = s.ring.Get(h); err != nil {
			return nil, err
		}
	case len(args.Data) > 0:
		var err error
		if m, err = sshkey.Parse(args.Data); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: verify needs a handle, key bytes, or an armored signature",
			sshkey.ErrVerification)
	}

	valid, err := sshkey.Verify(m, args.Message, args.Signature)
	if err != nil {
		return nil, err
	}
	fp, err := sha256Fingerprint(m)
	if err != nil {
		return nil, err
	}
	res := &VerifyResult{
		Valid:       valid,
		Algorithm:   string(m.Algorithm()),
		Fingerprint: fp,
		Comment:     m.Comment(),
	}
	// Audit: signature checked
	if err := audit.LogSignatureVerified(res.Algorithm, res.Fingerprint, valid, true); err != nil {
		return nil, err
	}
	return res, nil
}

// opRelease retires the handle. Unknown and already-released handles are
// a no-op: release is idempotent. Result: nil.
func (s *Surface) opRelease(ctx context.Context, args Args) (any, error) {
	h, err := s.ring.Find(args.Handle)
	if err != nil {
		return nil, nil
	}
	m, err := s.ring.Get(h)
	if err != nil {
		return nil, nil
	}
	fp, err := sha256Fingerprint(m)
	if err != nil {
		return nil, err
	}
	if err := s.ring.Release(h); err != nil {
		return nil, err
	}
	// Audit: handle retired
	if err := audit.LogKeyReleased(args.Handle, fp); err != nil {
		return nil, err
	}
	return nil, nil
}

// opList enumerates live entries in handle order. Result: []KeyInfo.
func (s *Surface) opList(ctx context.Context, args Args) (any, error) {
	infos := make([]KeyInfo, 0, s.ring.Len())
	var walkErr error
	s.ring.Range(func(id uint64, m *sshkey.KeyMaterial) bool {
		info, err := describe(id, m)
		if err != nil {
			walkErr = err
			return false
		}
		infos = append(infos, *info)
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return infos, nil
}

// opStats snapshots the ring counters. Result: keyring.Stats.
func (s *Surface) opStats(ctx context.Context, args Args) (any, error) {
	return s.ring.Stats(), nil
}

// ============================================================================
// Helpers
// ============================================================================

// adopt rings material and audits the import. On any failure the handle
// is released again so a failed import leaves nothing live.
func (s *Surface) adopt(m *sshkey.KeyMaterial, source string) (*KeyInfo, error) {
	if source == "" {
		source = "inline"
	}
	h := s.ring.Acquire(m)
	info, err := describe(h.ID(), m)
	if err != nil {
		s.ring.Release(h)
		return nil, err
	}
	// Audit: key material entered the ring
	if err := audit.LogKeyImported(source, info.Algorithm, info.Fingerprint, info.Handle, true); err != nil {
		s.ring.Release(h)
		return nil, err
	}
	return info, nil
}

func describe(id uint64, m *sshkey.KeyMaterial) (*KeyInfo, error) {
	fp, err := sha256Fingerprint(m)
	if err != nil {
		return nil, err
	}
	return &KeyInfo{
		Handle:      id,
		Algorithm:   string(m.Algorithm()),
		Role:        string(m.Role()),
		Comment:     m.Comment(),
		Fingerprint: fp,
		Bits:        m.Bits(),
	}, nil
}

func sha256Fingerprint(m *sshkey.KeyMaterial) (string, error) {
	fp, err := sshkey.ComputeFingerprint(m, sshkey.HashSHA256)
	if err != nil {
		return "", err
	}
	return fp.String(), nil
}
