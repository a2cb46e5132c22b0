package sshkey

import (
	"crypto/dsa" //nolint:staticcheck
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/subtle"
	"math/big"
	"runtime"
)

// Destroy zeroizes the private half of the material and detaches its
// signing backend. The public half stays valid, so fingerprinting and
// verification keep working; signing fails afterwards.
//
// This is the registry's end-of-life hook for released handles. Wiping is
// best effort: Go may have copied key words during arithmetic, and
// opaque-backed material has nothing local to wipe.
func (m *KeyMaterial) Destroy() {
	switch priv := m.priv.(type) {
	case ed25519.PrivateKey:
		zeroBytes(priv)
	case *rsa.PrivateKey:
		zeroBig(priv.D)
		for _, p := range priv.Primes {
			zeroBig(p)
		}
		zeroBig(priv.Precomputed.Dp)
		zeroBig(priv.Precomputed.Dq)
		zeroBig(priv.Precomputed.Qinv)
	case *ecdsa.PrivateKey:
		zeroBig(priv.D)
	case *dsa.PrivateKey:
		zeroBig(priv.X)
	}
	m.priv = nil
	m.signer = nil
}

// zeroBytes overwrites b with zeros in constant time.
func zeroBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
	runtime.KeepAlive(b)
}

// zeroBig overwrites the word slice backing x.
func zeroBig(x *big.Int) {
	if x == nil {
		return
	}
	words := x.Bits()
	for i := range words {
		words[i] = 0
	}
	x.SetInt64(0)
}
