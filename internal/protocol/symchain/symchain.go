// Package symchain implements the one-way KDF chain shared by the Double
// Ratchet and the Sender Key ratchet: chain-key in, (next chain-key,
// message-key) out.
package symchain

import (
	rcrypto "ratchetroom/internal/crypto"
	"ratchetroom/internal/domain"
	"ratchetroom/internal/domain/types"
	"ratchetroom/internal/util/memzero"
)

const (
	markerChain byte = 0x01
	markerMsg   byte = 0x02
)

// Step advances a chain key by one position, returning the next chain
// key and the message key derived at the current position. Step's own
// local copy of ck is zeroed before it returns; the caller is still
// responsible for overwriting its stored chain key with next.
func Step(ck types.ChainKey) (next types.ChainKey, mk types.MessageKey) {
	nextBytes := rcrypto.HMACSHA256(ck.Slice(), markerChain)
	mkBytes := rcrypto.HMACSHA256(ck.Slice(), markerMsg)
	copy(next[:], nextBytes)
	copy(mk[:], mkBytes)
	memzero.Zero(ck[:])
	return next, mk
}

// RatchetToIndex advances ck from cur to target, recording every message
// key strictly between them as a skipped key via record, and returns the
// chain key and message key at target. It fails with ErrSkipOverflow if
// the gap exceeds maxSkip.
func RatchetToIndex(ck types.ChainKey, cur, target uint32, maxSkip uint32, record func(index uint32, mk types.MessageKey)) (types.ChainKey, types.MessageKey, error) {
	if target < cur {
		var zero types.MessageKey
		return ck, zero, domain.ErrStaleMessage
	}
	if target-cur > maxSkip {
		var zero types.MessageKey
		return ck, zero, domain.ErrSkipOverflow
	}

	cur32 := cur
	for i := cur32; i < target; i++ {
		var mk types.MessageKey
		ck, mk = Step(ck)
		record(i, mk)
	}
	finalCK, finalMK := Step(ck)
	return finalCK, finalMK, nil
}
