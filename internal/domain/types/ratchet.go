package types

import "crypto/ecdh"

// DoubleRatchetHeader travels alongside every Double Ratchet ciphertext and
// is folded into the AEAD's associated data.
type DoubleRatchetHeader struct {
	SenderDHPublic      *ecdh.PublicKey
	PreviousChainLength uint32
	ChainIndex          uint32
}

// SkippedKeyID identifies one entry in a skipped-key store: a DH public
// key fingerprint paired with the chain index it was skipped for.
type SkippedKeyID struct {
	DHFingerprint [32]byte
	Index         uint32
}
