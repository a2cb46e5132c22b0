//go:build cgo

package provider

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/asn1"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"sync"

	"github.com/miekg/pkcs11"
	"golang.org/x/crypto/ssh"

	"github.com/keyfob-io/keyfob/pkg/sshkey"
)

// PKCS11Provider loads RSA and ECDSA keys held on a PKCS#11 token. The
// private key never leaves the token: signatures run through C_Sign and
// the material refuses private serialization.
type PKCS11Provider struct{}

var _ Provider = (*PKCS11Provider)(nil)

// NewPKCS11Provider creates a new PKCS11Provider.
func NewPKCS11Provider() *PKCS11Provider {
	return &PKCS11Provider{}
}

// Load opens the module, finds the key by CKA_LABEL or CKA_ID, extracts
// its public half, and returns material that signs on the token. The
// key label becomes the comment.
func (p *PKCS11Provider) Load(_ context.Context, cfg Config) (*sshkey.KeyMaterial, error) {
	if cfg.Type != TypePKCS11 {
		return nil, fmt.Errorf("pkcs11 provider cannot load %q keys", cfg.Type)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pin, err := cfg.PKCS11.GetPIN()
	if err != nil {
		return nil, err
	}

	slotID, err := resolveSlot(cfg.PKCS11)
	if err != nil {
		return nil, fmt.Errorf("slot lookup failed: %w", err)
	}

	pool, err := getSessionPool(cfg.PKCS11.Library, slotID, pin)
	if err != nil {
		return nil, fmt.Errorf("session pool: %w", err)
	}

	session, release, err := pool.Acquire()
	if err != nil {
		return nil, fmt.Errorf("token session: %w", err)
	}
	defer release()

	keyHandle, err := lookupPrivateKey(pool.Context(), session, cfg.PKCS11)
	if err != nil {
		return nil, fmt.Errorf("private key lookup failed: %w", err)
	}

	pub, err := readPublicKey(pool.Context(), session, keyHandle)
	if err != nil {
		return nil, fmt.Errorf("public half unavailable: %w", err)
	}

	signer, err := ssh.NewSignerFromSigner(&tokenSigner{
		pool:      pool,
		keyHandle: keyHandle,
		pub:       pub,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to wrap token signer: %w", err)
	}

	return sshkey.FromSigner(signer, cfg.PKCS11.KeyLabel)
}

// ============================================================================
// Session pool
// ============================================================================

// sessionPool manages sessions for one module and slot. Sessions are
// acquired per operation and returned after; login happens once per
// token. Pools are singletons per (module, slot).
type sessionPool struct {
	mu        sync.Mutex
	ctx       *pkcs11.Ctx
	module    string
	slotID    uint
	pin       string
	available []pkcs11.SessionHandle
	inUse     map[pkcs11.SessionHandle]bool
	loginDone bool
	closed    bool
}

var (
	pools   = make(map[string]*sessionPool)
	poolsMu sync.Mutex
)

func poolKey(module string, slotID uint) string {
	return fmt.Sprintf("%s:%d", module, slotID)
}

func getSessionPool(module string, slotID uint, pin string) (*sessionPool, error) {
	poolsMu.Lock()
	defer poolsMu.Unlock()

	key := poolKey(module, slotID)
	if pool, ok := pools[key]; ok {
		pool.mu.Lock()
		closed := pool.closed
		pool.mu.Unlock()
		if !closed {
			return pool, nil
		}
		delete(pools, key)
	}

	ctx := pkcs11.New(module)
	if ctx == nil {
		return nil, fmt.Errorf("cannot load PKCS#11 module %s", module)
	}
	if err := ctx.Initialize(); err != nil {
		if e, ok := err.(pkcs11.Error); !ok || e != pkcs11.CKR_CRYPTOKI_ALREADY_INITIALIZED {
			ctx.Destroy()
			return nil, fmt.Errorf("C_Initialize failed: %w", err)
		}
	}

	pool := &sessionPool{
		ctx:    ctx,
		module: module,
		slotID: slotID,
		pin:    pin,
		inUse:  make(map[pkcs11.SessionHandle]bool),
	}
	pools[key] = pool
	return pool, nil
}

func (p *sessionPool) Context() *pkcs11.Ctx { return p.ctx }

// Acquire reserves a session, opening a new one when none is free. The
// returned release function must be called when the operation is done.
func (p *sessionPool) Acquire() (pkcs11.SessionHandle, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, nil, fmt.Errorf("pool already shut down")
	}

	var session pkcs11.SessionHandle
	if n := len(p.available); n > 0 {
		session = p.available[n-1]
		p.available = p.available[:n-1]
	} else {
		var err error
		session, err = p.ctx.OpenSession(p.slotID, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
		if err != nil {
			return 0, nil, fmt.Errorf("C_OpenSession failed: %w", err)
		}
		// Login is per-token, not per-session.
		if p.pin != "" && !p.loginDone {
			if err := p.ctx.Login(session, pkcs11.CKU_USER, p.pin); err != nil {
				if e, ok := err.(pkcs11.Error); !ok || e != pkcs11.CKR_USER_ALREADY_LOGGED_IN {
					_ = p.ctx.CloseSession(session)
					return 0, nil, fmt.Errorf("C_Login failed: %w", err)
				}
			}
			p.loginDone = true
		}
	}

	p.inUse[session] = true
	release := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.inUse, session)
		if p.closed {
			_ = p.ctx.CloseSession(session)
			return
		}
		p.available = append(p.available, session)
	}
	return session, release, nil
}

// Close logs out, closes every session, and finalizes the module.
func (p *sessionPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if p.loginDone && (len(p.available) > 0 || len(p.inUse) > 0) {
		var any pkcs11.SessionHandle
		if len(p.available) > 0 {
			any = p.available[0]
		} else {
			for s := range p.inUse {
				any = s
				break
			}
		}
		if err := p.ctx.Logout(any); err != nil {
			if e, ok := err.(pkcs11.Error); !ok || e != pkcs11.CKR_USER_NOT_LOGGED_IN {
				errs = append(errs, fmt.Errorf("C_Logout: %w", err))
			}
		}
	}
	for _, session := range p.available {
		if err := p.ctx.CloseSession(session); err != nil {
			errs = append(errs, fmt.Errorf("close session: %w", err))
		}
	}
	for session := range p.inUse {
		if err := p.ctx.CloseSession(session); err != nil {
			errs = append(errs, fmt.Errorf("close borrowed session: %w", err))
		}
	}
	if err := p.ctx.Finalize(); err != nil {
		if e, ok := err.(pkcs11.Error); !ok || e != pkcs11.CKR_CRYPTOKI_NOT_INITIALIZED {
			errs = append(errs, fmt.Errorf("C_Finalize: %w", err))
		}
	}
	p.ctx.Destroy()

	poolsMu.Lock()
	delete(pools, poolKey(p.module, p.slotID))
	poolsMu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("pool shutdown: %v", errs)
	}
	return nil
}

// ClosePools closes every open session pool. Call at program exit.
func ClosePools() {
	poolsMu.Lock()
	open := make([]*sessionPool, 0, len(pools))
	for _, pool := range pools {
		open = append(open, pool)
	}
	poolsMu.Unlock()

	for _, pool := range open {
		_ = pool.Close()
	}
}

// ============================================================================
// Slot and key lookup
// ============================================================================

// resolveSlot resolves the slot, querying the module with a temporary
// context when the config does not pin one.
func resolveSlot(cfg PKCS11Config) (uint, error) {
	if cfg.Slot != nil {
		return *cfg.Slot, nil
	}

	ctx := pkcs11.New(cfg.Library)
	if ctx == nil {
		return 0, fmt.Errorf("cannot load PKCS#11 module %s", cfg.Library)
	}
	defer ctx.Destroy()

	if err := ctx.Initialize(); err != nil {
		if e, ok := err.(pkcs11.Error); !ok || e != pkcs11.CKR_CRYPTOKI_ALREADY_INITIALIZED {
			return 0, fmt.Errorf("module initialization failed: %w", err)
		}
	}
	// No Finalize here: C_Finalize is process-global and would break
	// other users of the module.

	slots, err := ctx.GetSlotList(true)
	if err != nil {
		return 0, fmt.Errorf("slot enumeration failed: %w", err)
	}
	if len(slots) == 0 {
		return 0, fmt.Errorf("module reports no tokens")
	}

	for _, slot := range slots {
		info, err := ctx.GetTokenInfo(slot)
		if err != nil {
			continue
		}
		if cfg.TokenLabel != "" && info.Label == cfg.TokenLabel {
			return slot, nil
		}
		if cfg.TokenSerial != "" && info.SerialNumber == cfg.TokenSerial {
			return slot, nil
		}
	}

	if cfg.TokenLabel != "" {
		return 0, fmt.Errorf("no token labelled %q", cfg.TokenLabel)
	}
	if cfg.TokenSerial != "" {
		return 0, fmt.Errorf("no token with serial %q", cfg.TokenSerial)
	}
	return slots[0], nil
}

func lookupPrivateKey(ctx *pkcs11.Ctx, session pkcs11.SessionHandle, cfg PKCS11Config) (pkcs11.ObjectHandle, error) {
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
	}
	if cfg.KeyLabel != "" {
		template = append(template, pkcs11.NewAttribute(pkcs11.CKA_LABEL, cfg.KeyLabel))
	}
	if cfg.KeyID != "" {
		id, err := hex.DecodeString(cfg.KeyID)
		if err != nil {
			return 0, fmt.Errorf("key_id is not hex: %w", err)
		}
		template = append(template, pkcs11.NewAttribute(pkcs11.CKA_ID, id))
	}

	if err := ctx.FindObjectsInit(session, template); err != nil {
		return 0, fmt.Errorf("object search init failed: %w", err)
	}
	defer func() { _ = ctx.FindObjectsFinal(session) }()

	objs, _, err := ctx.FindObjects(session, 2)
	if err != nil {
		return 0, fmt.Errorf("object search failed: %w", err)
	}
	if len(objs) == 0 {
		return 0, fmt.Errorf("token holds no matching private key")
	}
	if len(objs) > 1 {
		return 0, fmt.Errorf("multiple keys found, specify both key_label and key_id")
	}
	return objs[0], nil
}

// matchingPublicKey finds the public key object sharing the
// private key's CKA_ID and CKA_LABEL.
func matchingPublicKey(ctx *pkcs11.Ctx, session pkcs11.SessionHandle, priv pkcs11.ObjectHandle) (pkcs11.ObjectHandle, error) {
	attrs, err := ctx.GetAttributeValue(session, priv, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_ID, nil),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, nil),
	})
	if err != nil {
		return 0, fmt.Errorf("CKA_ID/CKA_LABEL read failed: %w", err)
	}

	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PUBLIC_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_ID, attrs[0].Value),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, attrs[1].Value),
	}
	if err := ctx.FindObjectsInit(session, template); err != nil {
		return 0, fmt.Errorf("public key search init failed: %w", err)
	}
	defer func() { _ = ctx.FindObjectsFinal(session) }()

	objs, _, err := ctx.FindObjects(session, 1)
	if err != nil {
		return 0, fmt.Errorf("public key search failed: %w", err)
	}
	if len(objs) == 0 {
		return 0, fmt.Errorf("no public key object matches the private key")
	}
	return objs[0], nil
}

// ============================================================================
// Public key extraction
// ============================================================================

func readPublicKey(ctx *pkcs11.Ctx, session pkcs11.SessionHandle, keyHandle pkcs11.ObjectHandle) (crypto.PublicKey, error) {
	attrs, err := ctx.GetAttributeValue(session, keyHandle, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, nil),
	})
	if err != nil {
		return nil, fmt.Errorf("CKA_KEY_TYPE read failed: %w", err)
	}

	switch keyType := ulongFromBytes(attrs[0].Value); keyType {
	case pkcs11.CKK_EC:
		return readECPublicKey(ctx, session, keyHandle)
	case pkcs11.CKK_RSA:
		return readRSAPublicKey(ctx, session, keyHandle)
	default:
		return nil, fmt.Errorf("unsupported token key type 0x%X (only RSA and ECDSA keys are supported)", keyType)
	}
}

func readECPublicKey(ctx *pkcs11.Ctx, session pkcs11.SessionHandle, keyHandle pkcs11.ObjectHandle) (crypto.PublicKey, error) {
	attrs, err := ctx.GetAttributeValue(session, keyHandle, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_EC_PARAMS, nil),
	})
	if err != nil {
		return nil, fmt.Errorf("CKA_EC_PARAMS read failed: %w", err)
	}
	curve, err := curveFromECParams(attrs[0].Value)
	if err != nil {
		return nil, err
	}

	// Some tokens expose CKA_EC_POINT on the private key; otherwise read
	// it off the matching public key object.
	var point []byte
	privAttrs, err := ctx.GetAttributeValue(session, keyHandle, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_EC_POINT, nil),
	})
	if err == nil && len(privAttrs[0].Value) > 0 {
		point = privAttrs[0].Value
	} else {
		pubHandle, err := matchingPublicKey(ctx, session, keyHandle)
		if err != nil {
			return nil, err
		}
		pubAttrs, err := ctx.GetAttributeValue(session, pubHandle, []*pkcs11.Attribute{
			pkcs11.NewAttribute(pkcs11.CKA_EC_POINT, nil),
		})
		if err != nil {
			return nil, fmt.Errorf("CKA_EC_POINT read failed: %w", err)
		}
		point = pubAttrs[0].Value
	}

	point = unwrapOctetString(point)

	//nolint:staticcheck // elliptic.Unmarshal is deprecated for ECDH but we need ECDSA
	x, y := elliptic.Unmarshal(curve, point)
	if x == nil {
		return nil, fmt.Errorf("EC point does not decode on the token curve")
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// unwrapOctetString strips the DER OCTET STRING wrapper that most
// tokens put around the uncompressed EC point.
func unwrapOctetString(point []byte) []byte {
	if len(point) <= 2 || point[0] != 0x04 {
		return point
	}
	length := int(point[1])
	switch {
	case length < 128:
		if len(point) >= 2+length && point[2] == 0x04 {
			return point[2 : 2+length]
		}
	case length == 0x81 && len(point) > 3:
		actual := int(point[2])
		if len(point) >= 3+actual && point[3] == 0x04 {
			return point[3 : 3+actual]
		}
	}
	return point
}

func readRSAPublicKey(ctx *pkcs11.Ctx, session pkcs11.SessionHandle, keyHandle pkcs11.ObjectHandle) (crypto.PublicKey, error) {
	pubHandle, err := matchingPublicKey(ctx, session, keyHandle)
	if err != nil {
		return nil, err
	}

	attrs, err := ctx.GetAttributeValue(session, pubHandle, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_MODULUS, nil),
		pkcs11.NewAttribute(pkcs11.CKA_PUBLIC_EXPONENT, nil),
	})
	if err != nil {
		return nil, fmt.Errorf("RSA modulus/exponent read failed: %w", err)
	}

	n := new(big.Int).SetBytes(attrs[0].Value)
	// The exponent is a big integer attribute, not CK_ULONG.
	e := int(new(big.Int).SetBytes(attrs[1].Value).Int64())
	return &rsa.PublicKey{N: n, E: e}, nil
}

func curveFromECParams(params []byte) (elliptic.Curve, error) {
	var oid asn1.ObjectIdentifier
	if _, err := asn1.Unmarshal(params, &oid); err != nil {
		return nil, fmt.Errorf("EC params OID: %w", err)
	}
	switch {
	case oid.Equal(asn1.ObjectIdentifier{1, 2, 840, 10045, 3, 1, 7}):
		return elliptic.P256(), nil
	case oid.Equal(asn1.ObjectIdentifier{1, 3, 132, 0, 34}):
		return elliptic.P384(), nil
	case oid.Equal(asn1.ObjectIdentifier{1, 3, 132, 0, 35}):
		return elliptic.P521(), nil
	default:
		return nil, fmt.Errorf("unsupported token curve %v", oid)
	}
}

// ulongFromBytes converts a CK_ULONG value stored in native byte order.
// Not for "big integer" attributes; those use big.Int.SetBytes.
func ulongFromBytes(b []byte) uint {
	var result uint
	for i := len(b) - 1; i >= 0; i-- {
		result = result<<8 | uint(b[i])
	}
	return result
}

// ============================================================================
// Token-backed crypto.Signer
// ============================================================================

// tokenSigner signs through the token. Each signature acquires its own
// session, so concurrent signs are safe.
type tokenSigner struct {
	pool      *sessionPool
	keyHandle pkcs11.ObjectHandle
	pub       crypto.PublicKey
}

var _ crypto.Signer = (*tokenSigner)(nil)

func (s *tokenSigner) Public() crypto.PublicKey { return s.pub }

func (s *tokenSigner) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	session, release, err := s.pool.Acquire()
	if err != nil {
		return nil, fmt.Errorf("token session: %w", err)
	}
	defer release()

	var mech *pkcs11.Mechanism
	dataToSign := digest
	switch s.pub.(type) {
	case *ecdsa.PublicKey:
		mech = pkcs11.NewMechanism(pkcs11.CKM_ECDSA, nil)
	case *rsa.PublicKey:
		// CKM_RSA_PKCS needs the PKCS#1 v1.5 DigestInfo prefix.
		mech = pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS, nil)
		dataToSign = wrapDigestInfo(digest, opts.HashFunc())
	default:
		return nil, fmt.Errorf("token key type cannot sign SSH data")
	}

	ctx := s.pool.Context()
	if err := ctx.SignInit(session, []*pkcs11.Mechanism{mech}, s.keyHandle); err != nil {
		return nil, fmt.Errorf("C_SignInit failed: %w", err)
	}
	sig, err := ctx.Sign(session, dataToSign)
	if err != nil {
		return nil, fmt.Errorf("C_Sign failed: %w", err)
	}

	// Tokens return raw r||s for ECDSA; crypto.Signer callers expect DER.
	if _, ok := s.pub.(*ecdsa.PublicKey); ok {
		sig, err = encodeECDSASignature(sig)
		if err != nil {
			return nil, err
		}
	}
	return sig, nil
}

// DigestInfo prefixes for PKCS#1 v1.5 signatures (RFC 8017).
var digestInfoPrefix = map[crypto.Hash][]byte{
	crypto.SHA1:   {0x30, 0x21, 0x30, 0x09, 0x06, 0x05, 0x2b, 0x0e, 0x03, 0x02, 0x1a, 0x05, 0x00, 0x04, 0x14},
	crypto.SHA256: {0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20},
	crypto.SHA384: {0x30, 0x41, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x02, 0x05, 0x00, 0x04, 0x30},
	crypto.SHA512: {0x30, 0x51, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x03, 0x05, 0x00, 0x04, 0x40},
}

func wrapDigestInfo(digest []byte, hash crypto.Hash) []byte {
	prefix, ok := digestInfoPrefix[hash]
	if !ok {
		return digest
	}
	out := make([]byte, len(prefix)+len(digest))
	copy(out, prefix)
	copy(out[len(prefix):], digest)
	return out
}

func encodeECDSASignature(rawSig []byte) ([]byte, error) {
	if len(rawSig)%2 != 0 {
		return nil, fmt.Errorf("invalid ECDSA signature length %d", len(rawSig))
	}
	n := len(rawSig) / 2
	r := new(big.Int).SetBytes(rawSig[:n])
	s := new(big.Int).SetBytes(rawSig[n:])
	return asn1.Marshal(struct {
		R, S *big.Int
	}{r, s})
}
