package keyderive_test

import (
	"bytes"
	"testing"

	"ratchetroom/internal/protocol/keyderive"
)

func TestDeriveMasterSeed_Deterministic(t *testing.T) {
	sig := []byte("wallet signature over fixed message")
	a := keyderive.DeriveMasterSeed(sig)
	b := keyderive.DeriveMasterSeed(sig)
	if a != b {
		t.Fatalf("DeriveMasterSeed not deterministic: %x != %x", a, b)
	}

	other := keyderive.DeriveMasterSeed([]byte("a different signature"))
	if a == other {
		t.Fatal("different signatures produced the same master seed")
	}
}

func TestDeriveRoomKeyPair_DeterministicAndDistinctPerChannel(t *testing.T) {
	seed := keyderive.DeriveMasterSeed([]byte("wallet signature"))
	var lobbyHash, generalHash [32]byte
	copy(lobbyHash[:], bytes.Repeat([]byte{0x01}, 32))
	copy(generalHash[:], bytes.Repeat([]byte{0x02}, 32))

	pairA, err := keyderive.DeriveRoomKeyPair(seed, lobbyHash)
	if err != nil {
		t.Fatalf("DeriveRoomKeyPair: %v", err)
	}
	pairB, err := keyderive.DeriveRoomKeyPair(seed, lobbyHash)
	if err != nil {
		t.Fatalf("DeriveRoomKeyPair (repeat): %v", err)
	}
	if !pairA.Public.Equal(pairB.Public) {
		t.Fatal("re-deriving the same (seed, channel) produced a different public key")
	}

	pairC, err := keyderive.DeriveRoomKeyPair(seed, generalHash)
	if err != nil {
		t.Fatalf("DeriveRoomKeyPair (other channel): %v", err)
	}
	if pairA.Public.Equal(pairC.Public) {
		t.Fatal("different channel hashes produced the same room identity")
	}
}
