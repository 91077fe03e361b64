// Package crypto wraps the primitive operations named in the messaging
// core's contract: ECDH P-256, HKDF-SHA256, HMAC-SHA256, AES-256-GCM and
// JWK codecs. Every other package builds on these thin wrappers instead
// of reaching for crypto/* directly, the same split the teacher keeps
// between internal/crypto and internal/protocol/*.
package crypto

import (
	"crypto/ecdh"
	"crypto/rand"
)

// GenerateP256 produces a fresh random ECDH P-256 key pair.
func GenerateP256() (*ecdh.PrivateKey, error) {
	return ecdh.P256().GenerateKey(rand.Reader)
}

// P256FromBytes constructs a P-256 private key from a raw 32-byte scalar.
// It fails if the scalar is zero or not reduced modulo the curve order;
// callers that need a scalar for every possible seed must retry with
// protocol/keyderive's rejection sampling.
func P256FromBytes(scalar []byte) (*ecdh.PrivateKey, error) {
	return ecdh.P256().NewPrivateKey(scalar)
}

// ECDH performs a Diffie-Hellman derivation and returns the raw shared
// secret. It fails if peerPub is not on the curve or is the identity
// point, satisfying the "fails on invalid peer key" contract.
func ECDH(priv *ecdh.PrivateKey, peerPub *ecdh.PublicKey) ([]byte, error) {
	return priv.ECDH(peerPub)
}
