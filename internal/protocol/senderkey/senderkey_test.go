package senderkey_test

import (
	"testing"

	rcrypto "ratchetroom/internal/crypto"
	"ratchetroom/internal/domain"
	"ratchetroom/internal/protocol/senderkey"
)

func TestSenderKey_DistributionAndDecrypt(t *testing.T) {
	alicePriv, err := rcrypto.GenerateP256()
	if err != nil {
		t.Fatalf("GenerateP256 (alice): %v", err)
	}
	bobPriv, err := rcrypto.GenerateP256()
	if err != nil {
		t.Fatalf("GenerateP256 (bob): %v", err)
	}

	send, err := senderkey.NewSendState("0xalice")
	if err != nil {
		t.Fatalf("NewSendState: %v", err)
	}

	env, err := senderkey.Seal("0xalice", alicePriv, bobPriv.PublicKey(), "0xbob", send.ChainKey())
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	chainKey, err := senderkey.Open("0xbob", bobPriv, alicePriv.PublicKey(), "0xalice", env)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	recv := senderkey.NewRecvState("0xalice", chainKey, 100, nil)

	msg, err := send.Encrypt([]byte("group hello"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	plaintext, err := recv.Decrypt(msg)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(plaintext) != "group hello" {
		t.Fatalf("got %q, want %q", plaintext, "group hello")
	}
}

func TestSenderKey_OutOfOrderAndStale(t *testing.T) {
	send, err := senderkey.NewSendState("0xalice")
	if err != nil {
		t.Fatalf("NewSendState: %v", err)
	}
	recv := senderkey.NewRecvState("0xalice", send.ChainKey(), 100, nil)

	var messages []senderkey.Message
	for i := 0; i < 3; i++ {
		msg, err := send.Encrypt([]byte{byte(i)})
		if err != nil {
			t.Fatalf("Encrypt %d: %v", i, err)
		}
		messages = append(messages, msg)
	}

	if _, err := recv.Decrypt(messages[2]); err != nil {
		t.Fatalf("Decrypt ahead: %v", err)
	}
	if _, err := recv.Decrypt(messages[0]); err != nil {
		t.Fatalf("Decrypt skipped 0: %v", err)
	}

	// Index 0 has already been consumed once; replaying it is stale.
	if _, err := recv.Decrypt(messages[0]); err != domain.ErrStaleMessage {
		t.Fatalf("got err %v, want ErrStaleMessage", err)
	}
}

func TestSenderKey_OpenRejectsWrongRecipient(t *testing.T) {
	alicePriv, err := rcrypto.GenerateP256()
	if err != nil {
		t.Fatalf("GenerateP256 (alice): %v", err)
	}
	bobPriv, err := rcrypto.GenerateP256()
	if err != nil {
		t.Fatalf("GenerateP256 (bob): %v", err)
	}
	carolPriv, err := rcrypto.GenerateP256()
	if err != nil {
		t.Fatalf("GenerateP256 (carol): %v", err)
	}

	send, err := senderkey.NewSendState("0xalice")
	if err != nil {
		t.Fatalf("NewSendState: %v", err)
	}
	env, err := senderkey.Seal("0xalice", alicePriv, bobPriv.PublicKey(), "0xbob", send.ChainKey())
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if _, err := senderkey.Open("0xcarol", carolPriv, alicePriv.PublicKey(), "0xalice", env); err != domain.ErrInvalidSenderKey {
		t.Fatalf("got err %v, want ErrInvalidSenderKey", err)
	}
}
