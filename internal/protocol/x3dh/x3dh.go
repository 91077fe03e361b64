// Package x3dh implements the P-256 three-DH handshake of §4.4: each side
// derives the same root key from its own identity/ephemeral private keys
// and the peer's identity/ephemeral public keys, with mirrored DH roles.
package x3dh

import (
	"crypto/ecdh"
	"fmt"

	rcrypto "ratchetroom/internal/crypto"
	"ratchetroom/internal/domain/types"
)

const (
	salt = "x3dh"
	info = "root-key"
)

// InitMessage is what the initiator sends to open a handshake.
type InitMessage struct {
	IdentityPublic  *ecdh.PublicKey
	EphemeralPublic *ecdh.PublicKey
	FromAddress     string
}

// ResponseMessage is what the responder sends back.
type ResponseMessage struct {
	IdentityPublic  *ecdh.PublicKey
	EphemeralPublic *ecdh.PublicKey
	FromAddress     string
}

// InitiatorRootKey computes the root key from the initiator's side:
//
//	DH1 = ECDH(ephemeral_initiator, identity_responder)
//	DH2 = ECDH(identity_initiator, ephemeral_responder)
//	DH3 = ECDH(ephemeral_initiator, ephemeral_responder)
func InitiatorRootKey(myIdentity, myEphemeral *ecdh.PrivateKey, peerIdentity, peerEphemeral *ecdh.PublicKey) (types.RootKey, error) {
	dh1, err := rcrypto.ECDH(myEphemeral, peerIdentity)
	if err != nil {
		return types.RootKey{}, fmt.Errorf("dh1: %w", err)
	}
	dh2, err := rcrypto.ECDH(myIdentity, peerEphemeral)
	if err != nil {
		return types.RootKey{}, fmt.Errorf("dh2: %w", err)
	}
	dh3, err := rcrypto.ECDH(myEphemeral, peerEphemeral)
	if err != nil {
		return types.RootKey{}, fmt.Errorf("dh3: %w", err)
	}
	return deriveRootKey(dh1, dh2, dh3)
}

// ResponderRootKey computes the same root key from the responder's side,
// with DH1/DH2 mirrored relative to the initiator's identity/ephemeral
// roles: DH1 = ECDH(identity_responder, ephemeral_initiator), DH2 =
// ECDH(ephemeral_responder, identity_initiator), DH3 unchanged.
func ResponderRootKey(myIdentity, myEphemeral *ecdh.PrivateKey, peerIdentity, peerEphemeral *ecdh.PublicKey) (types.RootKey, error) {
	dh1, err := rcrypto.ECDH(myIdentity, peerEphemeral)
	if err != nil {
		return types.RootKey{}, fmt.Errorf("dh1: %w", err)
	}
	dh2, err := rcrypto.ECDH(myEphemeral, peerIdentity)
	if err != nil {
		return types.RootKey{}, fmt.Errorf("dh2: %w", err)
	}
	dh3, err := rcrypto.ECDH(myEphemeral, peerEphemeral)
	if err != nil {
		return types.RootKey{}, fmt.Errorf("dh3: %w", err)
	}
	return deriveRootKey(dh1, dh2, dh3)
}

func deriveRootKey(dh1, dh2, dh3 []byte) (types.RootKey, error) {
	concat := make([]byte, 0, len(dh1)+len(dh2)+len(dh3))
	concat = append(concat, dh1...)
	concat = append(concat, dh2...)
	concat = append(concat, dh3...)

	raw, err := rcrypto.HKDF(concat, []byte(salt), []byte(info), 32)
	if err != nil {
		return types.RootKey{}, fmt.Errorf("hkdf root key: %w", err)
	}
	var rk types.RootKey
	copy(rk[:], raw)
	return rk, nil
}
