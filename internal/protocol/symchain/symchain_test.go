package symchain_test

import (
	"crypto/rand"
	"testing"

	"ratchetroom/internal/domain"
	"ratchetroom/internal/domain/types"
	"ratchetroom/internal/protocol/symchain"
)

func randomChainKey(t *testing.T) types.ChainKey {
	t.Helper()
	var ck types.ChainKey
	if _, err := rand.Read(ck[:]); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return ck
}

func TestStep_AdvancesAndYieldsDistinctKeys(t *testing.T) {
	ck := randomChainKey(t)
	next, mk := symchain.Step(ck)
	if next.IsZero() || mk == (types.MessageKey{}) {
		t.Fatal("Step produced a zero chain or message key")
	}
	next2, mk2 := symchain.Step(next)
	if next2 == next || mk2 == mk {
		t.Fatal("consecutive Step calls produced repeated keys")
	}
}

func TestRatchetToIndex_RecordsSkippedKeysInOrder(t *testing.T) {
	ck := randomChainKey(t)
	var recorded []uint32
	finalCK, finalMK, err := symchain.RatchetToIndex(ck, 0, 5, 100, func(index uint32, mk types.MessageKey) {
		recorded = append(recorded, index)
		if mk == (types.MessageKey{}) {
			t.Fatalf("skipped key at index %d is zero", index)
		}
	})
	if err != nil {
		t.Fatalf("RatchetToIndex: %v", err)
	}
	if finalCK.IsZero() || finalMK == (types.MessageKey{}) {
		t.Fatal("RatchetToIndex returned a zero final key")
	}
	wantIndices := []uint32{0, 1, 2, 3, 4}
	if len(recorded) != len(wantIndices) {
		t.Fatalf("recorded %d skipped keys, want %d", len(recorded), len(wantIndices))
	}
	for i, idx := range recorded {
		if idx != wantIndices[i] {
			t.Fatalf("recorded[%d] = %d, want %d", i, idx, wantIndices[i])
		}
	}
}

func TestRatchetToIndex_OverflowRejected(t *testing.T) {
	ck := randomChainKey(t)
	_, _, err := symchain.RatchetToIndex(ck, 0, 200, 100, func(uint32, types.MessageKey) {})
	if err != domain.ErrSkipOverflow {
		t.Fatalf("got err %v, want ErrSkipOverflow", err)
	}
}

func TestRatchetToIndex_StaleTargetRejected(t *testing.T) {
	ck := randomChainKey(t)
	_, _, err := symchain.RatchetToIndex(ck, 10, 3, 100, func(uint32, types.MessageKey) {})
	if err != domain.ErrStaleMessage {
		t.Fatalf("got err %v, want ErrStaleMessage", err)
	}
}
