package orchestrator_test

import (
	"crypto/rand"
	"testing"
	"time"

	rcrypto "ratchetroom/internal/crypto"
	"ratchetroom/internal/domain"
	"ratchetroom/internal/domain/types"
	"ratchetroom/internal/orchestrator"
	"ratchetroom/internal/protocol/doubleratchet"
)

func randomSeed(t *testing.T) types.MasterSeed {
	t.Helper()
	var seed types.MasterSeed
	if _, err := rand.Read(seed[:]); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return seed
}

func deriveOrFail(t *testing.T, room *orchestrator.Room) {
	t.Helper()
	var channelHash [32]byte
	if err := room.DeriveRoomKeyPair(randomSeed(t), channelHash); err != nil {
		t.Fatalf("DeriveRoomKeyPair: %v", err)
	}
}

func TestOrchestrator_TiebreakSelectsLowerAddressAsInitiator(t *testing.T) {
	alice := orchestrator.NewRoom("0xaaaa", orchestrator.ModeDirect, nil, nil)
	bob := orchestrator.NewRoom("0xbbbb", orchestrator.ModeDirect, nil, nil)
	deriveOrFail(t, alice)
	deriveOrFail(t, bob)

	alicePub, _ := alice.MyPublicKey()
	bobPub, _ := bob.MyPublicKey()

	initFromAlice, err := alice.PeerPublicKeyObserved("0xbbbb", bobPub)
	if err != nil {
		t.Fatalf("alice PeerPublicKeyObserved: %v", err)
	}
	if initFromAlice == nil {
		t.Fatal("lower address 0xaaaa did not initiate")
	}

	initFromBob, err := bob.PeerPublicKeyObserved("0xaaaa", alicePub)
	if err != nil {
		t.Fatalf("bob PeerPublicKeyObserved: %v", err)
	}
	if initFromBob != nil {
		t.Fatal("higher address 0xbbbb initiated instead of waiting")
	}
}

func TestOrchestrator_DirectHandshakeAndMessage(t *testing.T) {
	alice := orchestrator.NewRoom("0xaaaa", orchestrator.ModeDirect, nil, nil)
	bob := orchestrator.NewRoom("0xbbbb", orchestrator.ModeDirect, nil, nil)
	deriveOrFail(t, alice)
	deriveOrFail(t, bob)

	alicePub, _ := alice.MyPublicKey()
	bobPub, _ := bob.MyPublicKey()

	initMsg, err := alice.PeerPublicKeyObserved("0xbbbb", bobPub)
	if err != nil || initMsg == nil {
		t.Fatalf("alice PeerPublicKeyObserved: msg=%v err=%v", initMsg, err)
	}
	if _, err := bob.PeerPublicKeyObserved("0xaaaa", alicePub); err != nil {
		t.Fatalf("bob PeerPublicKeyObserved: %v", err)
	}

	respMsg, err := bob.HandleX3DHInit(*initMsg)
	if err != nil {
		t.Fatalf("HandleX3DHInit: %v", err)
	}
	if err := alice.HandleX3DHResponse(*respMsg); err != nil {
		t.Fatalf("HandleX3DHResponse: %v", err)
	}

	if got := alice.Status(); got != orchestrator.StatusReady {
		t.Fatalf("alice status = %s, want ready", got)
	}
	if got := bob.Status(); got != orchestrator.StatusReady {
		t.Fatalf("bob status = %s, want ready", got)
	}

	sealed, err := alice.EncryptMessage([]byte("hi bob"))
	if err != nil {
		t.Fatalf("EncryptMessage: %v", err)
	}
	msg, ok := sealed.(doubleratchet.Message)
	if !ok {
		t.Fatalf("EncryptMessage returned %T, want doubleratchet.Message", sealed)
	}

	plaintext, err := bob.DecryptDirect("0xaaaa", msg)
	if err != nil {
		t.Fatalf("DecryptDirect: %v", err)
	}
	if string(plaintext) != "hi bob" {
		t.Fatalf("got %q, want %q", plaintext, "hi bob")
	}
}

func TestOrchestrator_EmptyRoomFallsBackToReady(t *testing.T) {
	alice := orchestrator.NewRoom("0xaaaa", orchestrator.ModeDirect, nil, nil)
	deriveOrFail(t, alice)

	time.Sleep(300 * time.Millisecond)
	if got := alice.Status(); got != orchestrator.StatusReady {
		t.Fatalf("status = %s, want ready after handshake fallback", got)
	}
}

func TestOrchestrator_SkipOverflowTriggersFreshHandshakeAndRecovers(t *testing.T) {
	alice := orchestrator.NewRoom("0xaaaa", orchestrator.ModeDirect, nil, nil)
	bob := orchestrator.NewRoom("0xbbbb", orchestrator.ModeDirect, nil, nil)
	deriveOrFail(t, alice)
	deriveOrFail(t, bob)

	alicePub, _ := alice.MyPublicKey()
	bobPub, _ := bob.MyPublicKey()

	initMsg, err := alice.PeerPublicKeyObserved("0xbbbb", bobPub)
	if err != nil || initMsg == nil {
		t.Fatalf("alice PeerPublicKeyObserved: msg=%v err=%v", initMsg, err)
	}
	if _, err := bob.PeerPublicKeyObserved("0xaaaa", alicePub); err != nil {
		t.Fatalf("bob PeerPublicKeyObserved: %v", err)
	}
	respMsg, err := bob.HandleX3DHInit(*initMsg)
	if err != nil {
		t.Fatalf("HandleX3DHInit: %v", err)
	}
	if err := alice.HandleX3DHResponse(*respMsg); err != nil {
		t.Fatalf("HandleX3DHResponse: %v", err)
	}

	// Run alice's sending chain past MaxSkip without bob ever decrypting,
	// so bob's next decrypt attempt is fatal for that chain.
	var last doubleratchet.Message
	for i := 0; i < 150; i++ {
		sealedAny, err := alice.EncryptMessage([]byte{byte(i)})
		if err != nil {
			t.Fatalf("EncryptMessage %d: %v", i, err)
		}
		last = sealedAny.(doubleratchet.Message)
	}

	if _, err := bob.DecryptDirect("0xaaaa", last); err != domain.ErrSkipOverflow {
		t.Fatalf("got err %v, want ErrSkipOverflow", err)
	}
	if got := bob.Status(); got != orchestrator.StatusHandshaking {
		t.Fatalf("bob status = %s, want handshaking after self-heal", got)
	}
	if _, ok := bob.TakePendingHandshake("0xaaaa"); ok {
		t.Fatal("bob queued an InitMessage despite being the higher address")
	}

	// Alice separately notices the break and re-requests a handshake;
	// since her address is lower she becomes the initiator again.
	freshInit, err := alice.RequestFreshHandshake("0xbbbb")
	if err != nil || freshInit == nil {
		t.Fatalf("RequestFreshHandshake: msg=%v err=%v", freshInit, err)
	}

	freshResp, err := bob.HandleX3DHInit(*freshInit)
	if err != nil {
		t.Fatalf("HandleX3DHInit after self-heal: %v", err)
	}
	if err := alice.HandleX3DHResponse(*freshResp); err != nil {
		t.Fatalf("HandleX3DHResponse after self-heal: %v", err)
	}

	sealed, err := alice.EncryptMessage([]byte("back online"))
	if err != nil {
		t.Fatalf("EncryptMessage after self-heal: %v", err)
	}
	plaintext, err := bob.DecryptDirect("0xaaaa", sealed.(doubleratchet.Message))
	if err != nil {
		t.Fatalf("DecryptDirect after self-heal: %v", err)
	}
	if string(plaintext) != "back online" {
		t.Fatalf("got %q, want %q", plaintext, "back online")
	}
}

func TestOrchestrator_GroupRekeyOnLeaveDropsDepartingMember(t *testing.T) {
	alice := orchestrator.NewRoom("0xalice", orchestrator.ModeGroup, nil, nil)
	deriveOrFail(t, alice)

	bobPriv, err := rcrypto.GenerateP256()
	if err != nil {
		t.Fatalf("GenerateP256 (bob): %v", err)
	}
	carolPriv, err := rcrypto.GenerateP256()
	if err != nil {
		t.Fatalf("GenerateP256 (carol): %v", err)
	}
	if _, err := alice.PeerPublicKeyObserved("0xbob", bobPriv.PublicKey()); err != nil {
		t.Fatalf("observe bob: %v", err)
	}
	if _, err := alice.PeerPublicKeyObserved("0xcarol", carolPriv.PublicKey()); err != nil {
		t.Fatalf("observe carol: %v", err)
	}

	if _, err := alice.DistributeSenderKey("0xbob"); err != nil {
		t.Fatalf("DistributeSenderKey: %v", err)
	}

	remaining, err := alice.RekeyOnMemberLeave("0xcarol")
	if err != nil {
		t.Fatalf("RekeyOnMemberLeave: %v", err)
	}
	for _, addr := range remaining {
		if addr == "0xcarol" {
			t.Fatal("departing member still listed as remaining")
		}
	}
	if len(remaining) != 1 || remaining[0] != "0xbob" {
		t.Fatalf("remaining = %v, want [0xbob]", remaining)
	}
}
