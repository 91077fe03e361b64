// Package senderkey implements the group-chat ratchet: one symmetric
// chain per sender, distributed to the group under per-peer ECDH-sealed
// envelopes so a departing member can be rekeyed away from cheaply.
package senderkey

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	rcrypto "ratchetroom/internal/crypto"
	"ratchetroom/internal/domain"
	"ratchetroom/internal/domain/interfaces"
	"ratchetroom/internal/domain/types"
	"ratchetroom/internal/protocol/symchain"
	"ratchetroom/internal/util/memzero"
)

const (
	sharedSecretSalt = "e2e-shared"
	sharedSecretInfo = "aes-256-gcm"
)

// Message is a group ciphertext ready for the wire.
type Message struct {
	SenderAddress string
	ChainIndex    uint32
	Ciphertext    []byte
	IV            []byte
}

// EncryptedEnvelope is a sender-key chain-key sealed for one recipient.
type EncryptedEnvelope struct {
	FromAddress       string
	ForPublicKey      *ecdh.PublicKey
	EncryptedChainKey []byte
	IV                []byte
}

type skippedEntry struct {
	mk types.MessageKey
	at time.Time
}

// SendState is the local sender-key chain this peer owns and advances
// when it sends group messages.
type SendState struct {
	mu            sync.Mutex
	senderAddress string
	chainKey      types.ChainKey
	chainIndex    uint32
}

// NewSendState generates a fresh random 32-byte chain key, per
// createSenderKey(senderAddress) in §4.6.
func NewSendState(senderAddress string) (*SendState, error) {
	var ck types.ChainKey
	if _, err := rand.Read(ck[:]); err != nil {
		return nil, fmt.Errorf("generate sender key: %w", err)
	}
	return &SendState{senderAddress: senderAddress, chainKey: ck}, nil
}

// ChainKey returns the current raw chain key bytes for distribution.
// Callers must treat the returned slice as sensitive and not retain it
// past sealing it into an envelope.
func (s *SendState) ChainKey() types.ChainKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chainKey
}

// ChainIndex returns the current send position, for wiring into a fresh
// distribution envelope's metadata if a caller wants it.
func (s *SendState) ChainIndex() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chainIndex
}

// Encrypt advances the chain by one step and seals plaintext.
func (s *SendState) Encrypt(plaintext []byte) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nextCK, mk := symchain.Step(s.chainKey)
	aad := groupAAD(s.senderAddress, s.chainIndex)

	ct, iv, err := rcrypto.AEADEncrypt(mk.Slice(), plaintext, aad)
	memzero.Zero(mk[:])
	if err != nil {
		return Message{}, fmt.Errorf("seal: %w", err)
	}

	msg := Message{SenderAddress: s.senderAddress, ChainIndex: s.chainIndex, Ciphertext: ct, IV: iv}
	s.chainKey = nextCK
	s.chainIndex++
	return msg, nil
}

// RecvState tracks one remote sender's chain as observed by this peer.
type RecvState struct {
	mu            sync.Mutex
	senderAddress string
	chainKey      types.ChainKey
	chainIndex    uint32
	skipped       map[uint32]skippedEntry
	maxSkip       uint32
	clock         interfaces.Clock
}

// NewRecvState seeds a receiving chain from a chain key obtained through
// sender-key distribution.
func NewRecvState(senderAddress string, chainKey types.ChainKey, maxSkip uint32, clock interfaces.Clock) *RecvState {
	if clock == nil {
		clock = interfaces.SystemClock{}
	}
	return &RecvState{
		senderAddress: senderAddress,
		chainKey:      chainKey,
		skipped:       make(map[uint32]skippedEntry),
		maxSkip:       maxSkip,
		clock:         clock,
	}
}

// Decrypt implements §4.6's three-way branch on chainIndex versus the
// chain's current position.
func (r *RecvState) Decrypt(msg Message) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	aad := groupAAD(msg.SenderAddress, msg.ChainIndex)

	switch {
	case msg.ChainIndex < r.chainIndex:
		entry, ok := r.skipped[msg.ChainIndex]
		if !ok {
			return nil, domain.ErrStaleMessage
		}
		delete(r.skipped, msg.ChainIndex)
		plaintext, err := rcrypto.AEADDecrypt(entry.mk.Slice(), msg.Ciphertext, msg.IV, aad)
		memzero.Zero(entry.mk[:])
		if err != nil {
			return nil, domain.ErrAuthenticationFailure
		}
		return plaintext, nil

	case msg.ChainIndex == r.chainIndex:
		nextCK, mk := symchain.Step(r.chainKey)
		plaintext, err := rcrypto.AEADDecrypt(mk.Slice(), msg.Ciphertext, msg.IV, aad)
		if err != nil {
			memzero.Zero(mk[:])
			return nil, domain.ErrAuthenticationFailure
		}
		memzero.Zero(mk[:])
		r.chainKey = nextCK
		r.chainIndex++
		return plaintext, nil

	default:
		finalCK, mk, err := symchain.RatchetToIndex(r.chainKey, r.chainIndex, msg.ChainIndex, r.maxSkip, func(index uint32, skippedMK types.MessageKey) {
			r.skipped[index] = skippedEntry{mk: skippedMK, at: r.clock.Now()}
		})
		if err != nil {
			return nil, err
		}
		plaintext, err := rcrypto.AEADDecrypt(mk.Slice(), msg.Ciphertext, msg.IV, aad)
		memzero.Zero(mk[:])
		if err != nil {
			return nil, domain.ErrAuthenticationFailure
		}
		r.chainKey = finalCK
		r.chainIndex = msg.ChainIndex + 1
		return plaintext, nil
	}
}

// Seal produces an ECDH-sealed distribution envelope carrying chainKey
// for one recipient, per §4.7.
func Seal(fromAddress string, myPriv *ecdh.PrivateKey, peerPub *ecdh.PublicKey, peerAddressLower string, chainKey types.ChainKey) (EncryptedEnvelope, error) {
	secret, err := sharedSecret(myPriv, peerPub)
	if err != nil {
		return EncryptedEnvelope{}, err
	}
	defer memzero.Zero(secret)

	aad := distributionAAD(fromAddress, peerAddressLower)
	ct, iv, err := rcrypto.AEADEncrypt(secret, chainKey.Slice(), aad)
	if err != nil {
		return EncryptedEnvelope{}, fmt.Errorf("seal sender key: %w", err)
	}
	return EncryptedEnvelope{
		FromAddress:       fromAddress,
		ForPublicKey:      myPriv.PublicKey(),
		EncryptedChainKey: ct,
		IV:                iv,
	}, nil
}

// Open recovers a distributed chain key. A failed AEAD returns
// ErrInvalidSenderKey and the caller must ignore the peer, per §4.7.
func Open(myAddressLower string, myPriv *ecdh.PrivateKey, fromPub *ecdh.PublicKey, fromAddress string, env EncryptedEnvelope) (types.ChainKey, error) {
	secret, err := sharedSecret(myPriv, fromPub)
	if err != nil {
		return types.ChainKey{}, err
	}
	defer memzero.Zero(secret)

	aad := distributionAAD(fromAddress, myAddressLower)
	raw, err := rcrypto.AEADDecrypt(secret, env.EncryptedChainKey, env.IV, aad)
	if err != nil {
		return types.ChainKey{}, domain.ErrInvalidSenderKey
	}
	var ck types.ChainKey
	copy(ck[:], raw)
	return ck, nil
}

func sharedSecret(priv *ecdh.PrivateKey, pub *ecdh.PublicKey) ([]byte, error) {
	dh, err := rcrypto.ECDH(priv, pub)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}
	defer memzero.Zero(dh)
	return rcrypto.HKDF(dh, []byte(sharedSecretSalt), []byte(sharedSecretInfo), 32)
}

func groupAAD(senderAddress string, chainIndex uint32) []byte {
	buf := make([]byte, 0, len(senderAddress)+4)
	buf = append(buf, []byte(senderAddress)...)
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], chainIndex)
	return append(buf, idx[:]...)
}

func distributionAAD(fromAddress, peerAddressLower string) []byte {
	buf := append([]byte(fromAddress), 0x00)
	return append(buf, []byte(peerAddressLower)...)
}
