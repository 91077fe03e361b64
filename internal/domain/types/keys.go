// Package types holds the pure data shapes of the messaging core: keys,
// ratchet state and wire-adjacent value objects. Nothing in this package
// performs I/O or crypto; that lives in internal/crypto and
// internal/protocol/*, which operate on these types.
package types

import "crypto/ecdh"

// MasterSeed is 32 bytes derived by SHA-256 over a wallet signature. It is
// cached locally keyed by wallet address and never leaves the process
// except through the seed store's hex persistence.
type MasterSeed [32]byte

// Slice returns the seed bytes. Callers must not retain the slice past the
// lifetime of the seed they intend to zero.
func (m MasterSeed) Slice() []byte { return m[:] }

// RootKey is the 256-bit key that seeds a Double Ratchet's DH-ratchet
// chain.
type RootKey [32]byte

func (k RootKey) Slice() []byte { return k[:] }

// ChainKey represents one position on a symmetric KDF chain.
type ChainKey [32]byte

func (k ChainKey) Slice() []byte { return k[:] }

// IsZero reports whether the chain key has never been set.
func (k ChainKey) IsZero() bool { return k == ChainKey{} }

// MessageKey is derived once from a ChainKey and consumed by exactly one
// AEAD operation.
type MessageKey [32]byte

func (k MessageKey) Slice() []byte { return k[:] }

// RoomKeyPair is the ECDH P-256 identity derived deterministically for one
// (wallet, room) pair. The private half never leaves the process.
type RoomKeyPair struct {
	Private *ecdh.PrivateKey
	Public  *ecdh.PublicKey
}

// PeerPublicKey is a peer's ECDH P-256 public key, indexed by lowercase
// address once validated on import.
type PeerPublicKey struct {
	Address string
	Key     *ecdh.PublicKey
}

// TransferKey is a fresh AES-256 key generated per media transfer.
type TransferKey [32]byte

func (k TransferKey) Slice() []byte { return k[:] }
