package doubleratchet

import (
	"crypto/ecdh"
	"fmt"
	"time"

	"ratchetroom/internal/domain/interfaces"
	"ratchetroom/internal/domain/types"
)

// Snapshot is a serializable copy of everything a Double Ratchet session
// needs to resume in a new process: the DH ratchet's current key pair and
// peer key, both chain keys and indices, and the bounds it was
// constructed with. The skipped-key buffer is deliberately left out —
// restoring it exactly would mean persisting live message keys to disk,
// so a message skipped just before a process exits is treated the same
// as any other frame the transport never delivered.
type Snapshot struct {
	DHPrivate          []byte
	DHPublic           []byte
	RemoteDH           []byte
	RootKey            []byte
	SendingChainKey    []byte
	SendingIndex       uint32
	PreviousSendLength uint32
	ReceivingChainKey  []byte
	ReceivingIndex     uint32
	MaxSkip            uint32
	MaxSkippedTotal    int
	SkipTTLSeconds     int64
}

// Snapshot captures s's current state. The caller owns the result; it is
// a plain copy, not a live view.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		DHPrivate:          s.dhPriv.Bytes(),
		DHPublic:           s.dhPub.Bytes(),
		RootKey:            append([]byte(nil), s.rootKey.Slice()...),
		SendingChainKey:    append([]byte(nil), s.sendingCK.Slice()...),
		SendingIndex:       s.sendingIdx,
		PreviousSendLength: s.prevSendLen,
		ReceivingChainKey:  append([]byte(nil), s.receivingCK.Slice()...),
		ReceivingIndex:     s.receivingIdx,
		MaxSkip:            s.maxSkip,
		MaxSkippedTotal:    s.maxSkipTot,
		SkipTTLSeconds:     int64(s.skipTTL / time.Second),
	}
	if s.remoteDH != nil {
		snap.RemoteDH = s.remoteDH.Bytes()
	}
	return snap
}

// Restore rebuilds a State from a Snapshot produced by an earlier call to
// Snapshot. clock defaults to interfaces.SystemClock{} when nil.
func Restore(snap Snapshot, clock interfaces.Clock) (*State, error) {
	dhPriv, err := ecdh.P256().NewPrivateKey(snap.DHPrivate)
	if err != nil {
		return nil, fmt.Errorf("restore dh private key: %w", err)
	}
	var remoteDH *ecdh.PublicKey
	if len(snap.RemoteDH) > 0 {
		remoteDH, err = ecdh.P256().NewPublicKey(snap.RemoteDH)
		if err != nil {
			return nil, fmt.Errorf("restore remote dh public key: %w", err)
		}
	}
	if clock == nil {
		clock = interfaces.SystemClock{}
	}

	var rootKey types.RootKey
	var sendingCK, receivingCK types.ChainKey
	copy(rootKey[:], snap.RootKey)
	copy(sendingCK[:], snap.SendingChainKey)
	copy(receivingCK[:], snap.ReceivingChainKey)

	return &State{
		dhPriv:       dhPriv,
		dhPub:        dhPriv.PublicKey(),
		remoteDH:     remoteDH,
		rootKey:      rootKey,
		sendingCK:    sendingCK,
		sendingIdx:   snap.SendingIndex,
		prevSendLen:  snap.PreviousSendLength,
		receivingCK:  receivingCK,
		receivingIdx: snap.ReceivingIndex,
		skipped:      make(map[skippedID]skippedEntry),
		maxSkip:      snap.MaxSkip,
		maxSkipTot:   snap.MaxSkippedTotal,
		skipTTL:      time.Duration(snap.SkipTTLSeconds) * time.Second,
		clock:        clock,
	}, nil
}
