package doubleratchet_test

import (
	"testing"

	rcrypto "ratchetroom/internal/crypto"
	"ratchetroom/internal/domain"
	"ratchetroom/internal/domain/types"
	"ratchetroom/internal/protocol/doubleratchet"
)

func rootKey(t *testing.T, b byte) types.RootKey {
	t.Helper()
	var rk types.RootKey
	for i := range rk {
		rk[i] = b
	}
	return rk
}

func newPair(t *testing.T, rk types.RootKey) (*doubleratchet.State, *doubleratchet.State) {
	t.Helper()
	bobPriv, err := rcrypto.GenerateP256()
	if err != nil {
		t.Fatalf("GenerateP256 (bob): %v", err)
	}
	responder := doubleratchet.NewResponder(rk, bobPriv, doubleratchet.Options{})

	alicePriv, err := rcrypto.GenerateP256()
	if err != nil {
		t.Fatalf("GenerateP256 (alice): %v", err)
	}
	initiator, err := doubleratchet.NewInitiator(rk, alicePriv, bobPriv.PublicKey(), doubleratchet.Options{})
	if err != nil {
		t.Fatalf("NewInitiator: %v", err)
	}
	return initiator, responder
}

func TestDoubleRatchet_HandshakeRoundTrip(t *testing.T) {
	initiator, responder := newPair(t, rootKey(t, 0x11))

	msg, err := initiator.Encrypt("alice", []byte("hello bob"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	plaintext, err := responder.Decrypt("alice", msg)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(plaintext) != "hello bob" {
		t.Fatalf("got %q, want %q", plaintext, "hello bob")
	}
}

func TestDoubleRatchet_OutOfOrderDelivery(t *testing.T) {
	initiator, responder := newPair(t, rootKey(t, 0x22))

	var messages []doubleratchet.Message
	for i := 0; i < 3; i++ {
		msg, err := initiator.Encrypt("alice", []byte{byte(i)})
		if err != nil {
			t.Fatalf("Encrypt %d: %v", i, err)
		}
		messages = append(messages, msg)
	}

	// Deliver message 2 first, forcing keys 0 and 1 to be skipped.
	pt2, err := responder.Decrypt("alice", messages[2])
	if err != nil {
		t.Fatalf("Decrypt out-of-order message: %v", err)
	}
	if pt2[0] != 2 {
		t.Fatalf("decrypted %v, want [2]", pt2)
	}

	pt0, err := responder.Decrypt("alice", messages[0])
	if err != nil {
		t.Fatalf("Decrypt skipped message 0: %v", err)
	}
	if pt0[0] != 0 {
		t.Fatalf("decrypted %v, want [0]", pt0)
	}

	pt1, err := responder.Decrypt("alice", messages[1])
	if err != nil {
		t.Fatalf("Decrypt skipped message 1: %v", err)
	}
	if pt1[0] != 1 {
		t.Fatalf("decrypted %v, want [1]", pt1)
	}
}

func TestDoubleRatchet_BidirectionalDHRatchet(t *testing.T) {
	initiator, responder := newPair(t, rootKey(t, 0x33))

	msg, err := initiator.Encrypt("alice", []byte("first"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := responder.Decrypt("alice", msg); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}

	// Bob replies, triggering a DH ratchet since alice has never sent
	// from bob's DH key before.
	reply, err := responder.Encrypt("bob", []byte("second"))
	if err != nil {
		t.Fatalf("responder Encrypt: %v", err)
	}
	plaintext, err := initiator.Decrypt("bob", reply)
	if err != nil {
		t.Fatalf("initiator Decrypt: %v", err)
	}
	if string(plaintext) != "second" {
		t.Fatalf("got %q, want %q", plaintext, "second")
	}

	// Alice replies again, ratcheting forward once more.
	msg2, err := initiator.Encrypt("alice", []byte("third"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	plaintext2, err := responder.Decrypt("alice", msg2)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(plaintext2) != "third" {
		t.Fatalf("got %q, want %q", plaintext2, "third")
	}
}

func TestDoubleRatchet_TamperedCiphertextFailsWithoutAdvancing(t *testing.T) {
	initiator, responder := newPair(t, rootKey(t, 0x44))

	msg, err := initiator.Encrypt("alice", []byte("hello"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	tampered := msg
	tampered.Ciphertext = append([]byte(nil), msg.Ciphertext...)
	tampered.Ciphertext[0] ^= 0xff

	if _, err := responder.Decrypt("alice", tampered); err != domain.ErrAuthenticationFailure {
		t.Fatalf("got err %v, want ErrAuthenticationFailure", err)
	}

	// The untampered message at the same index must still decrypt: the
	// failed attempt must not have advanced the receiving chain.
	plaintext, err := responder.Decrypt("alice", msg)
	if err != nil {
		t.Fatalf("Decrypt after failed tamper attempt: %v", err)
	}
	if string(plaintext) != "hello" {
		t.Fatalf("got %q, want %q", plaintext, "hello")
	}
}

func TestDoubleRatchet_SkipOverflowPoisonsChain(t *testing.T) {
	initiator, responder := newPair(t, rootKey(t, 0x55))

	var last doubleratchet.Message
	for i := 0; i < 150; i++ {
		msg, err := initiator.Encrypt("alice", []byte{byte(i)})
		if err != nil {
			t.Fatalf("Encrypt %d: %v", i, err)
		}
		last = msg
	}

	if _, err := responder.Decrypt("alice", last); err != domain.ErrSkipOverflow {
		t.Fatalf("got err %v, want ErrSkipOverflow", err)
	}
	if _, err := responder.Decrypt("alice", last); err != domain.ErrChainPoisoned {
		t.Fatalf("got err %v, want ErrChainPoisoned on a poisoned chain", err)
	}
}

func TestDoubleRatchet_SnapshotRestoreRoundTrip(t *testing.T) {
	initiator, responder := newPair(t, rootKey(t, 0x66))

	msg1, err := initiator.Encrypt("alice", []byte("before restart"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := responder.Decrypt("alice", msg1); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}

	snap := initiator.Snapshot()
	restored, err := doubleratchet.Restore(snap, nil)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	// The restored side must still be able to send, and its DH ratchet
	// step must land the responder on the same new root as if the
	// original process had never restarted.
	msg2, err := restored.Encrypt("alice", []byte("after restart"))
	if err != nil {
		t.Fatalf("Encrypt after restore: %v", err)
	}
	plaintext, err := responder.Decrypt("alice", msg2)
	if err != nil {
		t.Fatalf("Decrypt after restore: %v", err)
	}
	if string(plaintext) != "after restart" {
		t.Fatalf("got %q, want %q", plaintext, "after restart")
	}

	// The responder's reply must decrypt against the restored state too.
	msg3, err := responder.Encrypt("bob", []byte("reply"))
	if err != nil {
		t.Fatalf("Encrypt reply: %v", err)
	}
	plaintext, err = restored.Decrypt("bob", msg3)
	if err != nil {
		t.Fatalf("Decrypt reply on restored state: %v", err)
	}
	if string(plaintext) != "reply" {
		t.Fatalf("got %q, want %q", plaintext, "reply")
	}
}
