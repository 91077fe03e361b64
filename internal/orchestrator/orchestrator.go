// Package orchestrator drives the per-room protocol state machine: it
// watches peer presence, runs the X3DH/Sender-Key handshakes, applies
// the lexicographic tiebreak that prevents dual-initiation races, and
// dispatches encrypt/decrypt calls to the right session. Every state
// transition happens under Room's own mutex, an owned actor rather than
// a reactive get/await/set store, per the redesign note in §9.
package orchestrator

import (
	"crypto/ecdh"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	rcrypto "ratchetroom/internal/crypto"

	"ratchetroom/internal/config"
	"ratchetroom/internal/domain"
	"ratchetroom/internal/domain/interfaces"
	"ratchetroom/internal/domain/types"
	"ratchetroom/internal/protocol/doubleratchet"
	"ratchetroom/internal/protocol/keyderive"
	"ratchetroom/internal/protocol/senderkey"
	"ratchetroom/internal/protocol/x3dh"
)

// EncryptionMode selects between 1:1 Double Ratchet sessions and group
// Sender Key ratchets.
type EncryptionMode string

const (
	ModeDirect EncryptionMode = "direct"
	ModeGroup  EncryptionMode = "group"
)

// EncryptionStatus is the room's single-valued lifecycle state.
type EncryptionStatus string

const (
	StatusIdle        EncryptionStatus = "idle"
	StatusDeriving    EncryptionStatus = "deriving"
	StatusHandshaking EncryptionStatus = "handshaking"
	StatusReady       EncryptionStatus = "ready"
	StatusError       EncryptionStatus = "error"
)

// Events lets the orchestrator push notifications to a UI-facing layer
// instead of forcing it to poll Room state, grounded in
// snaart-phantom_core's CoreEventHandler callback shape.
type Events interface {
	OnStatusChanged(status EncryptionStatus)
	OnMessage(fromAddress string, plaintext []byte)
	OnPeerError(fromAddress string, err error)
}

// NopEvents implements Events with no-ops, for callers that only want
// the request/response API.
type NopEvents struct{}

func (NopEvents) OnStatusChanged(EncryptionStatus) {}
func (NopEvents) OnMessage(string, []byte)         {}
func (NopEvents) OnPeerError(string, error)        {}

// Room is one chat room's protocol state machine.
type Room struct {
	mu sync.Mutex

	myAddress string
	mode      EncryptionMode
	status    EncryptionStatus
	lastErr   error

	roomKeyPair *types.RoomKeyPair
	channelHash [32]byte

	peerPublicKeys map[string]types.PeerPublicKey
	ratchets       map[string]*doubleratchet.State
	pendingEph     map[string]*ecdh.PrivateKey
	directPeer     string

	mySenderKey    *senderkey.SendState
	peerSenderKeys map[string]*senderkey.RecvState

	pendingInits map[string]*x3dh.InitMessage

	clock  interfaces.Clock
	events Events

	handshakeTimer *time.Timer
}

// NewRoom constructs an idle room. Call DeriveRoomKeyPair to begin.
func NewRoom(myAddress string, mode EncryptionMode, events Events, clock interfaces.Clock) *Room {
	if events == nil {
		events = NopEvents{}
	}
	if clock == nil {
		clock = interfaces.SystemClock{}
	}
	return &Room{
		myAddress:      strings.ToLower(myAddress),
		mode:           mode,
		status:         StatusIdle,
		peerPublicKeys: make(map[string]types.PeerPublicKey),
		ratchets:       make(map[string]*doubleratchet.State),
		pendingEph:     make(map[string]*ecdh.PrivateKey),
		peerSenderKeys: make(map[string]*senderkey.RecvState),
		pendingInits:   make(map[string]*x3dh.InitMessage),
		clock:          clock,
		events:         events,
	}
}

func (r *Room) setStatus(s EncryptionStatus) {
	if r.status == s {
		return
	}
	r.status = s
	r.events.OnStatusChanged(s)
}

// Status returns the room's current lifecycle state.
func (r *Room) Status() EncryptionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// MyPublicKey returns this room's derived identity public key, once
// DeriveRoomKeyPair has succeeded.
func (r *Room) MyPublicKey() (*ecdh.PublicKey, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.roomKeyPair == nil {
		return nil, false
	}
	return r.roomKeyPair.Public, true
}

// DeriveRoomKeyPair runs idle -> deriving -> handshaking, deterministically
// deriving this room's ECDH identity and arming the 200ms empty-room
// fallback to ready.
func (r *Room) DeriveRoomKeyPair(seed types.MasterSeed, channelHash [32]byte) error {
	r.mu.Lock()
	if r.status != StatusIdle {
		r.mu.Unlock()
		return fmt.Errorf("derive room key pair: room is not idle")
	}
	r.setStatus(StatusDeriving)
	r.mu.Unlock()

	pair, err := keyderive.DeriveRoomKeyPair(seed, channelHash)
	if err != nil {
		r.mu.Lock()
		r.lastErr = err
		r.setStatus(StatusError)
		r.mu.Unlock()
		return err
	}

	r.mu.Lock()
	r.roomKeyPair = pair
	r.channelHash = channelHash
	r.setStatus(StatusHandshaking)
	r.armHandshakeFallback()
	r.mu.Unlock()
	return nil
}

func (r *Room) armHandshakeFallback() {
	r.handshakeTimer = time.AfterFunc(config.HandshakeFallback, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.status == StatusHandshaking && len(r.peerPublicKeys) == 0 {
			r.setStatus(StatusReady)
		}
	})
}

// PeerPublicKeyObserved implements the handshaking -> peerPublicKeyObserved
// transition: the tiebreak rule for direct mode, sender-key bootstrap for
// group mode.
func (r *Room) PeerPublicKeyObserved(peerAddress string, peerPub *ecdh.PublicKey) (*x3dh.InitMessage, error) {
	addr := strings.ToLower(peerAddress)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.roomKeyPair == nil {
		return nil, domain.ErrFatalInit
	}
	r.peerPublicKeys[addr] = types.PeerPublicKey{Address: addr, Key: peerPub}

	if r.mode == ModeDirect {
		if r.directPeer == "" {
			r.directPeer = addr
		}
		if r.myAddress < addr {
			ephPriv, err := generateEphemeral()
			if err != nil {
				return nil, err
			}
			r.pendingEph[addr] = ephPriv
			return &x3dh.InitMessage{
				IdentityPublic:  r.roomKeyPair.Public,
				EphemeralPublic: ephPriv.PublicKey(),
				FromAddress:     r.myAddress,
			}, nil
		}
		// addr < r.myAddress: wait for their X3DHInit.
		return nil, nil
	}

	// Group mode: ensure we have a sender key, then the caller is
	// responsible for distributing it (DistributeSenderKey) since that
	// requires the peer's public key, which we already have here.
	if r.mySenderKey == nil {
		sk, err := senderkey.NewSendState(r.myAddress)
		if err != nil {
			return nil, err
		}
		r.mySenderKey = sk
	}
	return nil, nil
}

// HandleX3DHInit runs the responder side of §4.4/§4.8: derive the root
// key, initialize the Double Ratchet with no first DH step, and produce
// the response to send back.
func (r *Room) HandleX3DHInit(init x3dh.InitMessage) (*x3dh.ResponseMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.roomKeyPair == nil {
		return nil, domain.ErrFatalInit
	}

	myEphPriv, err := generateEphemeral()
	if err != nil {
		return nil, err
	}

	rootKey, err := x3dh.ResponderRootKey(r.roomKeyPair.Private, myEphPriv, init.IdentityPublic, init.EphemeralPublic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPeerKey, err)
	}

	addr := strings.ToLower(init.FromAddress)
	r.ratchets[addr] = doubleratchet.NewResponder(rootKey, myEphPriv, doubleratchet.Options{
		MaxSkip: config.MaxSkip, MaxSkippedTotal: config.MaxSkippedTotal,
		SkipTTL: config.SkipTTL, Clock: r.clock,
	})
	if r.mode == ModeDirect && r.directPeer == "" {
		r.directPeer = addr
	}
	r.setStatus(StatusReady)

	return &x3dh.ResponseMessage{
		IdentityPublic:  r.roomKeyPair.Public,
		EphemeralPublic: myEphPriv.PublicKey(),
		FromAddress:     r.myAddress,
	}, nil
}

// HandleX3DHResponse completes the initiator side: recompute the root
// key with mirrored DH roles and perform the first DH-ratchet step.
func (r *Room) HandleX3DHResponse(resp x3dh.ResponseMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	addr := strings.ToLower(resp.FromAddress)
	myEphPriv, ok := r.pendingEph[addr]
	if !ok {
		return domain.ErrUnexpectedHandshake
	}
	delete(r.pendingEph, addr)
	delete(r.pendingInits, addr)

	rootKey, err := x3dh.InitiatorRootKey(r.roomKeyPair.Private, myEphPriv, resp.IdentityPublic, resp.EphemeralPublic)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPeerKey, err)
	}

	state, err := doubleratchet.NewInitiator(rootKey, myEphPriv, resp.EphemeralPublic, doubleratchet.Options{
		MaxSkip: config.MaxSkip, MaxSkippedTotal: config.MaxSkippedTotal,
		SkipTTL: config.SkipTTL, Clock: r.clock,
	})
	if err != nil {
		return err
	}
	r.ratchets[addr] = state
	if r.mode == ModeDirect && r.directPeer == "" {
		r.directPeer = addr
	}
	r.setStatus(StatusReady)
	return nil
}

// DistributeSenderKey seals the current sender chain key for one peer.
func (r *Room) DistributeSenderKey(peerAddress string) (senderkey.EncryptedEnvelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	addr := strings.ToLower(peerAddress)
	peer, ok := r.peerPublicKeys[addr]
	if !ok {
		return senderkey.EncryptedEnvelope{}, domain.ErrInvalidPeerKey
	}
	if r.mySenderKey == nil {
		sk, err := senderkey.NewSendState(r.myAddress)
		if err != nil {
			return senderkey.EncryptedEnvelope{}, err
		}
		r.mySenderKey = sk
	}
	return senderkey.Seal(r.myAddress, r.roomKeyPair.Private, peer.Key, addr, r.mySenderKey.ChainKey())
}

// ReceiveSenderKeyEnvelope opens a distributed chain key and seeds a
// receiving state for that sender.
func (r *Room) ReceiveSenderKeyEnvelope(fromAddress string, env senderkey.EncryptedEnvelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	addr := strings.ToLower(fromAddress)
	chainKey, err := senderkey.Open(r.myAddress, r.roomKeyPair.Private, env.ForPublicKey, addr, env)
	if err != nil {
		return err
	}
	r.peerSenderKeys[addr] = senderkey.NewRecvState(addr, chainKey, config.MaxSkip, r.clock)
	r.setStatus(StatusReady)
	return nil
}

// RekeyOnMemberLeave generates a fresh sender chain key, drops the
// departing member's state, and returns the peers that must receive the
// new key.
func (r *Room) RekeyOnMemberLeave(departing string) (remainingPeers []string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	addr := strings.ToLower(departing)
	delete(r.peerPublicKeys, addr)
	delete(r.peerSenderKeys, addr)

	sk, err := senderkey.NewSendState(r.myAddress)
	if err != nil {
		return nil, err
	}
	r.mySenderKey = sk

	remaining := make([]string, 0, len(r.peerPublicKeys))
	for peerAddr := range r.peerPublicKeys {
		remaining = append(remaining, peerAddr)
	}
	return remaining, nil
}

// EncryptMessage dispatches to the Double Ratchet in direct mode, or to
// the local sender key in group mode.
func (r *Room) EncryptMessage(plaintext []byte) (any, error) {
	r.mu.Lock()
	mode := r.mode
	var (
		ratchet *doubleratchet.State
		sender  = r.myAddress
	)
	if mode == ModeDirect {
		ratchet = r.ratchets[r.directPeer]
	}
	senderKey := r.mySenderKey
	r.mu.Unlock()

	switch mode {
	case ModeDirect:
		if ratchet == nil {
			return nil, domain.ErrRatchetNotReady
		}
		msg, err := ratchet.Encrypt(sender, plaintext)
		if err == nil {
			r.markReadyOnFirstSuccess()
		}
		return msg, err
	default:
		if senderKey == nil {
			return nil, domain.ErrRatchetNotReady
		}
		msg, err := senderKey.Encrypt(plaintext)
		if err == nil {
			r.markReadyOnFirstSuccess()
		}
		return msg, err
	}
}

// DecryptDirect dispatches an inbound Double Ratchet message. A
// SkipOverflow (or already-ChainPoisoned) result is fatal for the
// affected chain per §7: it tears the ratchet down and re-arms a fresh
// X3DH handshake with the peer rather than leaving the session wedged.
func (r *Room) DecryptDirect(fromAddress string, msg doubleratchet.Message) ([]byte, error) {
	addr := strings.ToLower(fromAddress)
	r.mu.Lock()
	ratchet, ok := r.ratchets[addr]
	r.mu.Unlock()
	if !ok {
		return nil, domain.ErrUnexpectedHandshake
	}
	plaintext, err := ratchet.Decrypt(fromAddress, msg)
	if err != nil {
		r.events.OnPeerError(fromAddress, err)
		if errors.Is(err, domain.ErrSkipOverflow) || errors.Is(err, domain.ErrChainPoisoned) {
			if _, freshErr := r.RequestFreshHandshake(fromAddress); freshErr != nil {
				r.events.OnPeerError(fromAddress, freshErr)
			}
		}
		return nil, err
	}
	r.markReadyOnFirstSuccess()
	r.events.OnMessage(fromAddress, plaintext)
	return plaintext, nil
}

// RequestFreshHandshake tears down whatever direct session exists for
// peerAddress and restarts X3DH from scratch, honoring the same
// lexicographic tiebreak as the original handshake. If this side is the
// initiator it returns the InitMessage to send and also queues it for
// TakePendingHandshake; otherwise it returns nil and waits for the
// peer's InitMessage, exactly like the first handshake did.
func (r *Room) RequestFreshHandshake(peerAddress string) (*x3dh.InitMessage, error) {
	addr := strings.ToLower(peerAddress)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.roomKeyPair == nil {
		return nil, domain.ErrFatalInit
	}
	delete(r.ratchets, addr)
	delete(r.pendingEph, addr)
	delete(r.pendingInits, addr)
	r.setStatus(StatusHandshaking)

	if r.myAddress >= addr {
		return nil, nil
	}
	ephPriv, err := generateEphemeral()
	if err != nil {
		return nil, err
	}
	r.pendingEph[addr] = ephPriv
	init := &x3dh.InitMessage{
		IdentityPublic:  r.roomKeyPair.Public,
		EphemeralPublic: ephPriv.PublicKey(),
		FromAddress:     r.myAddress,
	}
	r.pendingInits[addr] = init
	return init, nil
}

// TakePendingHandshake returns and clears an InitMessage queued by a
// self-healing RequestFreshHandshake, so a transport loop watching this
// room can send it out after a poisoned decrypt. The second return is
// false if nothing is pending.
func (r *Room) TakePendingHandshake(peerAddress string) (*x3dh.InitMessage, bool) {
	addr := strings.ToLower(peerAddress)

	r.mu.Lock()
	defer r.mu.Unlock()

	init, ok := r.pendingInits[addr]
	if ok {
		delete(r.pendingInits, addr)
	}
	return init, ok
}

// DecryptGroup dispatches an inbound Sender Key message.
func (r *Room) DecryptGroup(fromAddress string, msg senderkey.Message) ([]byte, error) {
	addr := strings.ToLower(fromAddress)
	r.mu.Lock()
	recv, ok := r.peerSenderKeys[addr]
	r.mu.Unlock()
	if !ok {
		return nil, domain.ErrUnknownSender
	}
	plaintext, err := recv.Decrypt(msg)
	if err != nil {
		r.events.OnPeerError(fromAddress, err)
		return nil, err
	}
	r.markReadyOnFirstSuccess()
	r.events.OnMessage(fromAddress, plaintext)
	return plaintext, nil
}

func (r *Room) markReadyOnFirstSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == StatusHandshaking {
		r.setStatus(StatusReady)
	}
}

// RoomSnapshot is enough state to resume a direct-mode session in a new
// process. The room identity itself is never persisted here: it is
// re-derived from the cached MasterSeed and channel hash every time, the
// same as the first run. Only the Double Ratchet's evolving chain state
// has nowhere else to live between runs.
type RoomSnapshot struct {
	MyAddress     string
	ChannelHash   [32]byte
	PeerAddress   string
	PeerPublicKey []byte
	Ratchet       doubleratchet.Snapshot
}

// SnapshotDirect captures the direct-mode session with peerAddress, for
// persistence between process invocations. The second return is false if
// no ratchet session exists for that peer yet.
func (r *Room) SnapshotDirect(peerAddress string) (RoomSnapshot, bool) {
	addr := strings.ToLower(peerAddress)

	r.mu.Lock()
	defer r.mu.Unlock()

	ratchet, ok := r.ratchets[addr]
	if !ok {
		return RoomSnapshot{}, false
	}
	snap := RoomSnapshot{
		MyAddress:   r.myAddress,
		ChannelHash: r.channelHash,
		PeerAddress: addr,
		Ratchet:     ratchet.Snapshot(),
	}
	if peer, ok := r.peerPublicKeys[addr]; ok {
		snap.PeerPublicKey = peer.Key.Bytes()
	}
	return snap, true
}

// RestoreDirect rebuilds a direct-mode Room around a session persisted by
// SnapshotDirect, so a session established by one process (e.g. join) can
// be resumed by another (e.g. send or recv) without re-running X3DH.
func RestoreDirect(seed types.MasterSeed, snap RoomSnapshot, events Events, clock interfaces.Clock) (*Room, error) {
	if clock == nil {
		clock = interfaces.SystemClock{}
	}
	roomKeyPair, err := keyderive.DeriveRoomKeyPair(seed, snap.ChannelHash)
	if err != nil {
		return nil, fmt.Errorf("re-derive room key pair: %w", err)
	}
	ratchet, err := doubleratchet.Restore(snap.Ratchet, clock)
	if err != nil {
		return nil, fmt.Errorf("restore ratchet: %w", err)
	}

	r := NewRoom(snap.MyAddress, ModeDirect, events, clock)
	r.roomKeyPair = roomKeyPair
	r.channelHash = snap.ChannelHash
	r.directPeer = snap.PeerAddress
	r.ratchets[snap.PeerAddress] = ratchet
	if len(snap.PeerPublicKey) > 0 {
		peerPub, err := ecdh.P256().NewPublicKey(snap.PeerPublicKey)
		if err != nil {
			return nil, fmt.Errorf("restore peer public key: %w", err)
		}
		r.peerPublicKeys[snap.PeerAddress] = types.PeerPublicKey{Address: snap.PeerAddress, Key: peerPub}
	}
	r.status = StatusReady
	return r, nil
}

func generateEphemeral() (*ecdh.PrivateKey, error) {
	priv, err := rcrypto.GenerateP256()
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral: %w", err)
	}
	return priv, nil
}
