// Package keyderive turns a wallet signature into a deterministic
// per-room P-256 identity, the "hard part" flagged in the design notes:
// a curve library that can build a private key from raw derived bits via
// modular reduction, achieved here with an HKDF-expand-with-counter
// rejection sampling loop against crypto/ecdh's P256 implementation.
package keyderive

import (
	"crypto/ecdh"
	"fmt"

	rcrypto "ratchetroom/internal/crypto"
	"ratchetroom/internal/domain"
	"ratchetroom/internal/domain/types"
)

const (
	roomKeySalt   = "e2e-room-key"
	ecdhSalt      = "e2e-ecdh"
	ecdhInfo      = "ecdh-p256-key"
	scalarInfo    = "rejection_sample_p256"
	maxSampleTrys = 256
)

// DeriveMasterSeed hashes a wallet signature into the 32-byte seed cached
// per wallet address. Re-signing the same fixed message with the same
// wallet always yields the same seed.
func DeriveMasterSeed(walletSignature []byte) types.MasterSeed {
	return types.MasterSeed(rcrypto.SHA256(walletSignature))
}

// DeriveRoomKeyPair deterministically re-derives the ECDH P-256 identity
// for a (wallet, room) pair from its MasterSeed and channel hash. Two
// calls with the same inputs always produce byte-identical public keys.
func DeriveRoomKeyPair(seed types.MasterSeed, channelHash [32]byte) (*types.RoomKeyPair, error) {
	roomSeed, err := rcrypto.HKDF(seed.Slice(), []byte(roomKeySalt), channelHash[:], 32)
	if err != nil {
		return nil, fmt.Errorf("derive room seed: %w", err)
	}

	ecdhSeed, err := rcrypto.HKDF(roomSeed, []byte(ecdhSalt), []byte(ecdhInfo), 32)
	if err != nil {
		return nil, fmt.Errorf("derive ecdh seed: %w", err)
	}

	priv, err := rejectionSampleP256(ecdhSeed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFatalInit, err)
	}

	return &types.RoomKeyPair{Private: priv, Public: priv.PublicKey()}, nil
}

// rejectionSampleP256 treats seed as an HKDF pseudorandom key and expands
// it repeatedly, varying only a counter appended to info, until the
// candidate scalar lands in [1, n-1] for the P-256 curve order n.
// crypto/ecdh's P256().NewPrivateKey validates that range but performs no
// modular reduction itself, so the retry loop is what makes derivation
// deterministic instead of "regenerate a random key when the backend
// can't import a raw scalar", the failure mode called out for the
// original implementation.
func rejectionSampleP256(seed []byte) (*ecdh.PrivateKey, error) {
	for counter := 0; counter < maxSampleTrys; counter++ {
		info := append([]byte(scalarInfo), byte(counter))
		candidate, err := rcrypto.HKDFExpand(seed, info, 32)
		if err != nil {
			return nil, err
		}
		priv, err := rcrypto.P256FromBytes(candidate)
		if err == nil {
			return priv, nil
		}
	}
	return nil, fmt.Errorf("no valid p256 scalar found in %d attempts", maxSampleTrys)
}
