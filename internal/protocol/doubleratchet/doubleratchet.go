// Package doubleratchet implements the per-peer Double Ratchet session:
// a DH ratchet layered over the symmetric ratchet, with bounded skipped-
// key storage. State is an owned actor guarded by its own mutex rather
// than a "get/await/set" reactive store, per the store-as-mutable-atomics
// redesign note.
package doubleratchet

import (
	"bytes"
	"crypto/ecdh"
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
	rootSalt  = "dr-root"
	rootInfo  = "root-key"
	chainSalt = "dr-chain"
	chainInfo = "chain-key"
)

// Message is a Double Ratchet ciphertext frame ready for the wire, minus
// JSON shaping (internal/wire owns that).
type Message struct {
	SenderDHPublic      *ecdh.PublicKey
	PreviousChainLength uint32
	ChainIndex          uint32
	Ciphertext          []byte
	IV                  []byte
}

type skippedEntry struct {
	mk types.MessageKey
	at time.Time
}

type skippedID struct {
	fp    [32]byte
	index uint32
}

// State is one peer's Double Ratchet session. Every exported method
// takes the internal mutex; concurrent Encrypt/Decrypt calls on the same
// State are serialized, matching the concurrency contract in §4.5.
type State struct {
	mu sync.Mutex

	dhPriv      *ecdh.PrivateKey
	dhPub       *ecdh.PublicKey
	remoteDH    *ecdh.PublicKey // nil until the first inbound message
	rootKey     types.RootKey
	sendingCK   types.ChainKey
	sendingIdx  uint32
	prevSendLen uint32
	receivingCK types.ChainKey
	receivingIdx uint32

	skipped     map[skippedID]skippedEntry
	skipOrder   []skippedID
	maxSkip     uint32
	maxSkipTot  int
	skipTTL     time.Duration
	clock       interfaces.Clock

	poisoned bool
}

// Options tunes bounds that would otherwise be package-level constants,
// so tests can exercise small caps without waiting on real config values.
type Options struct {
	MaxSkip         uint32
	MaxSkippedTotal int
	SkipTTL         time.Duration
	Clock           interfaces.Clock
}

func (o Options) withDefaults() Options {
	if o.MaxSkip == 0 {
		o.MaxSkip = 100
	}
	if o.MaxSkippedTotal == 0 {
		o.MaxSkippedTotal = 1000
	}
	if o.SkipTTL == 0 {
		o.SkipTTL = 10 * time.Minute
	}
	if o.Clock == nil {
		o.Clock = interfaces.SystemClock{}
	}
	return o
}

// NewResponder initializes a session for the side that did not perform
// the first DH-ratchet step: rootKey comes straight from X3DH and the
// sending chain stays unset until the first inbound message triggers a
// DH ratchet.
func NewResponder(rootKey types.RootKey, myDH *ecdh.PrivateKey, opts Options) *State {
	opts = opts.withDefaults()
	return &State{
		dhPriv:  myDH,
		dhPub:   myDH.PublicKey(),
		rootKey: rootKey,
		skipped: make(map[skippedID]skippedEntry),
		maxSkip: opts.MaxSkip, maxSkipTot: opts.MaxSkippedTotal,
		skipTTL: opts.SkipTTL, clock: opts.Clock,
	}
}

// NewInitiator performs the first DH-ratchet step against the
// responder's ephemeral public key, producing the initial sending chain.
func NewInitiator(rootKey types.RootKey, myDH *ecdh.PrivateKey, theirDH *ecdh.PublicKey, opts Options) (*State, error) {
	opts = opts.withDefaults()
	newRoot, chainKey, err := dhRatchetStep(rootKey, myDH, theirDH)
	if err != nil {
		return nil, fmt.Errorf("initial dh ratchet: %w", err)
	}
	return &State{
		dhPriv: myDH, dhPub: myDH.PublicKey(),
		remoteDH: theirDH,
		rootKey:  newRoot,
		sendingCK: chainKey,
		skipped:   make(map[skippedID]skippedEntry),
		maxSkip:   opts.MaxSkip, maxSkipTot: opts.MaxSkippedTotal,
		skipTTL: opts.SkipTTL, clock: opts.Clock,
	}, nil
}

// Encrypt advances the sending chain by one step and seals plaintext.
// senderAddress is folded into the AAD alongside the header fields.
func (s *State) Encrypt(senderAddress string, plaintext []byte) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned {
		return Message{}, domain.ErrChainPoisoned
	}
	if s.sendingCK.IsZero() {
		return Message{}, domain.ErrRatchetNotReady
	}

	nextCK, mk := symchain.Step(s.sendingCK)
	header := types.DoubleRatchetHeader{
		SenderDHPublic:      s.dhPub,
		PreviousChainLength: s.prevSendLen,
		ChainIndex:          s.sendingIdx,
	}
	aad := ratchetAAD(senderAddress, header)

	ct, iv, err := rcrypto.AEADEncrypt(mk.Slice(), plaintext, aad)
	memzero.Zero(mk[:])
	if err != nil {
		return Message{}, fmt.Errorf("seal: %w", err)
	}

	s.sendingCK = nextCK
	s.sendingIdx++

	return Message{
		SenderDHPublic:      header.SenderDHPublic,
		PreviousChainLength: header.PreviousChainLength,
		ChainIndex:          header.ChainIndex,
		Ciphertext:          ct,
		IV:                  iv,
	}, nil
}

// Decrypt opens an inbound message, performing a DH ratchet step first
// if the sender's DH public key is new. AuthenticationFailure never
// advances receivingChainKey/receivingIndex; the frame is simply dropped.
func (s *State) Decrypt(senderAddress string, msg Message) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned {
		return nil, domain.ErrChainPoisoned
	}

	header := types.DoubleRatchetHeader{
		SenderDHPublic:      msg.SenderDHPublic,
		PreviousChainLength: msg.PreviousChainLength,
		ChainIndex:          msg.ChainIndex,
	}
	aad := ratchetAAD(senderAddress, header)
	fp := rcrypto.Fingerprint(msg.SenderDHPublic)

	if entry, ok := s.skipped[skippedID{fp: fp, index: msg.ChainIndex}]; ok {
		delete(s.skipped, skippedID{fp: fp, index: msg.ChainIndex})
		plaintext, err := rcrypto.AEADDecrypt(entry.mk.Slice(), msg.Ciphertext, msg.IV, aad)
		memzero.Zero(entry.mk[:])
		if err != nil {
			return nil, domain.ErrAuthenticationFailure
		}
		return plaintext, nil
	}

	s.evictExpiredSkipped()

	isNewDH := s.remoteDH == nil || !bytes.Equal(s.remoteDH.Bytes(), msg.SenderDHPublic.Bytes())
	if isNewDH {
		if err := s.ratchetOnNewDH(header); err != nil {
			if err == domain.ErrSkipOverflow {
				s.poisoned = true
			}
			return nil, err
		}
	}

	finalCK, mk, err := symchain.RatchetToIndex(s.receivingCK, s.receivingIdx, msg.ChainIndex, s.maxSkip, func(index uint32, skippedMK types.MessageKey) {
		s.rememberSkipped(fp, index, skippedMK)
	})
	if err != nil {
		if err == domain.ErrSkipOverflow {
			s.poisoned = true
		}
		return nil, err
	}

	plaintext, err := rcrypto.AEADDecrypt(mk.Slice(), msg.Ciphertext, msg.IV, aad)
	memzero.Zero(mk[:])
	if err != nil {
		return nil, domain.ErrAuthenticationFailure
	}

	s.receivingCK = finalCK
	s.receivingIdx = msg.ChainIndex + 1
	return plaintext, nil
}

// ratchetOnNewDH performs the DH-ratchet steps described in §4.5.2: skip
// the old receiving chain up to the sender's declared previous length,
// derive a fresh receiving chain from the new peer key, then generate a
// fresh local DH pair and derive the next sending chain from it.
func (s *State) ratchetOnNewDH(header types.DoubleRatchetHeader) error {
	if !s.receivingCK.IsZero() && s.remoteDH != nil && header.PreviousChainLength > s.receivingIdx {
		oldFP := rcrypto.Fingerprint(s.remoteDH)
		// RatchetToIndex's trailing step (the key at exactly
		// PreviousChainLength) is discarded: the old chain was never
		// used to send a message at that index, it just marks where
		// the sender switched away from it.
		_, _, err := symchain.RatchetToIndex(s.receivingCK, s.receivingIdx, header.PreviousChainLength, s.maxSkip, func(index uint32, mk types.MessageKey) {
			s.rememberSkipped(oldFP, index, mk)
		})
		if err != nil {
			return err
		}
	}

	newRoot, newReceivingCK, err := dhRatchetStep(s.rootKey, s.dhPriv, header.SenderDHPublic)
	if err != nil {
		return fmt.Errorf("receiving dh ratchet: %w", err)
	}

	newDHPriv, err := rcrypto.GenerateP256()
	if err != nil {
		return fmt.Errorf("generate new dh pair: %w", err)
	}
	newRoot2, newSendingCK, err := dhRatchetStep(newRoot, newDHPriv, header.SenderDHPublic)
	if err != nil {
		return fmt.Errorf("sending dh ratchet: %w", err)
	}

	s.prevSendLen = s.sendingIdx
	s.sendingIdx = 0
	s.sendingCK = newSendingCK
	s.dhPriv = newDHPriv
	s.dhPub = newDHPriv.PublicKey()
	s.rootKey = newRoot2
	s.remoteDH = header.SenderDHPublic
	s.receivingCK = newReceivingCK
	s.receivingIdx = 0
	return nil
}

func (s *State) rememberSkipped(fp [32]byte, index uint32, mk types.MessageKey) {
	if mk == (types.MessageKey{}) {
		return
	}
	id := skippedID{fp: fp, index: index}
	if _, exists := s.skipped[id]; !exists {
		s.skipOrder = append(s.skipOrder, id)
	}
	s.skipped[id] = skippedEntry{mk: mk, at: s.clock.Now()}

	for len(s.skipped) > s.maxSkipTot {
		oldest := s.skipOrder[0]
		s.skipOrder = s.skipOrder[1:]
		delete(s.skipped, oldest)
	}
}

func (s *State) evictExpiredSkipped() {
	now := s.clock.Now()
	kept := s.skipOrder[:0]
	for _, id := range s.skipOrder {
		entry, ok := s.skipped[id]
		if !ok {
			continue
		}
		if now.Sub(entry.at) > s.skipTTL {
			delete(s.skipped, id)
			continue
		}
		kept = append(kept, id)
	}
	s.skipOrder = kept
}

// SkippedCount reports how many skipped keys are currently held, for
// tests asserting the global cap.
func (s *State) SkippedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.skipped)
}

func dhRatchetStep(root types.RootKey, myPriv *ecdh.PrivateKey, theirPub *ecdh.PublicKey) (types.RootKey, types.ChainKey, error) {
	dh, err := rcrypto.ECDH(myPriv, theirPub)
	if err != nil {
		return types.RootKey{}, types.ChainKey{}, err
	}
	defer memzero.Zero(dh)

	input := make([]byte, 0, 64)
	input = append(input, root.Slice()...)
	input = append(input, dh...)

	newRootRaw, err := rcrypto.HKDF(input, []byte(rootSalt), []byte(rootInfo), 32)
	if err != nil {
		return types.RootKey{}, types.ChainKey{}, err
	}
	chainRaw, err := rcrypto.HKDF(input, []byte(chainSalt), []byte(chainInfo), 32)
	if err != nil {
		return types.RootKey{}, types.ChainKey{}, err
	}

	var newRoot types.RootKey
	var chain types.ChainKey
	copy(newRoot[:], newRootRaw)
	copy(chain[:], chainRaw)
	return newRoot, chain, nil
}

// ratchetAAD canonically serializes the identity fields bound to every
// Double Ratchet AEAD operation: sender address, sender DH public key,
// previous chain length and chain index.
func ratchetAAD(senderAddress string, h types.DoubleRatchetHeader) []byte {
	buf := make([]byte, 0, len(senderAddress)+65+8)
	buf = append(buf, []byte(senderAddress)...)
	buf = append(buf, h.SenderDHPublic.Bytes()...)
	var lenBuf [8]byte
	binary.BigEndian.PutUint32(lenBuf[0:4], h.PreviousChainLength)
	binary.BigEndian.PutUint32(lenBuf[4:8], h.ChainIndex)
	buf = append(buf, lenBuf[:]...)
	return buf
}
