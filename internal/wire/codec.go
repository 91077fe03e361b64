package wire

import (
	"crypto/ecdh"
	"fmt"

	rcrypto "ratchetroom/internal/crypto"
	"ratchetroom/internal/protocol/doubleratchet"
	"ratchetroom/internal/protocol/media"
	"ratchetroom/internal/protocol/senderkey"
)

// EncodeDoubleRatchetMsg renders a Double Ratchet message as its wire
// frame, base64-encoding ciphertext/iv and JWK-encoding the sender's
// current DH public key.
func EncodeDoubleRatchetMsg(sender string, msg doubleratchet.Message) DoubleRatchetMsg {
	return DoubleRatchetMsg{
		Type:                TypeChat,
		Sender:              sender,
		SenderDHPublicKey:   rcrypto.ExportJWK(msg.SenderDHPublic),
		PreviousChainLength: msg.PreviousChainLength,
		ChainIndex:          msg.ChainIndex,
		Ciphertext:          rcrypto.B64(msg.Ciphertext),
		IV:                  rcrypto.B64(msg.IV),
	}
}

// DecodeDoubleRatchetMsg reverses EncodeDoubleRatchetMsg, validating the
// embedded JWK the same way any inbound peer key is validated.
func DecodeDoubleRatchetMsg(f DoubleRatchetMsg) (doubleratchet.Message, error) {
	pub, err := rcrypto.ImportJWK(f.SenderDHPublicKey)
	if err != nil {
		return doubleratchet.Message{}, err
	}
	ct, err := rcrypto.B64Decode(f.Ciphertext)
	if err != nil {
		return doubleratchet.Message{}, err
	}
	iv, err := rcrypto.B64Decode(f.IV)
	if err != nil {
		return doubleratchet.Message{}, err
	}
	return doubleratchet.Message{
		SenderDHPublic:      pub,
		PreviousChainLength: f.PreviousChainLength,
		ChainIndex:          f.ChainIndex,
		Ciphertext:          ct,
		IV:                  iv,
	}, nil
}

// EncodeEncryptionPubkey renders a standalone key-publish frame: one
// peer announcing its current identity key to another, independent of
// any room-membership event.
func EncodeEncryptionPubkey(sender string, pub *ecdh.PublicKey) EncryptionPubkey {
	return EncryptionPubkey{
		Type:      TypeEncryptionPubkey,
		Sender:    sender,
		PublicKey: rcrypto.ExportJWK(pub),
	}
}

func DecodeEncryptionPubkey(f EncryptionPubkey) (string, *ecdh.PublicKey, error) {
	pub, err := rcrypto.ImportJWK(f.PublicKey)
	if err != nil {
		return "", nil, err
	}
	return f.Sender, pub, nil
}

// EncodeUserJoined renders a newcomer's room-arrival announcement,
// carrying its key so the frame doubles as a presence broadcast.
func EncodeUserJoined(address string, pub *ecdh.PublicKey) UserJoined {
	jwk := rcrypto.ExportJWK(pub)
	return UserJoined{Type: TypeUserJoined, Address: address, PublicKey: &jwk}
}

func DecodeUserJoined(f UserJoined) (string, *ecdh.PublicKey, error) {
	if f.PublicKey == nil {
		return f.Address, nil, fmt.Errorf("user_joined from %q carries no publicKey", f.Address)
	}
	pub, err := rcrypto.ImportJWK(*f.PublicKey)
	if err != nil {
		return "", nil, err
	}
	return f.Address, pub, nil
}

// EncodeIAmHere renders an existing member's reply to a UserJoined,
// answering with its own key.
func EncodeIAmHere(address string, pub *ecdh.PublicKey) IAmHere {
	jwk := rcrypto.ExportJWK(pub)
	return IAmHere{Type: TypeIAmHere, Address: address, PublicKey: &jwk}
}

func DecodeIAmHere(f IAmHere) (string, *ecdh.PublicKey, error) {
	if f.PublicKey == nil {
		return f.Address, nil, fmt.Errorf("i_am_here from %q carries no publicKey", f.Address)
	}
	pub, err := rcrypto.ImportJWK(*f.PublicKey)
	if err != nil {
		return "", nil, err
	}
	return f.Address, pub, nil
}

func EncodeUserLeft(address string) UserLeft {
	return UserLeft{Type: TypeUserLeft, Address: address}
}

func DecodeUserLeft(f UserLeft) string {
	return f.Address
}

func EncodeGroupMsg(msg senderkey.Message) GroupMsg {
	return GroupMsg{
		Type:          TypeChat,
		SenderAddress: msg.SenderAddress,
		ChainIndex:    msg.ChainIndex,
		Ciphertext:    rcrypto.B64(msg.Ciphertext),
		IV:            rcrypto.B64(msg.IV),
	}
}

func DecodeGroupMsg(f GroupMsg) (senderkey.Message, error) {
	ct, err := rcrypto.B64Decode(f.Ciphertext)
	if err != nil {
		return senderkey.Message{}, err
	}
	iv, err := rcrypto.B64Decode(f.IV)
	if err != nil {
		return senderkey.Message{}, err
	}
	return senderkey.Message{
		SenderAddress: f.SenderAddress,
		ChainIndex:    f.ChainIndex,
		Ciphertext:    ct,
		IV:            iv,
	}, nil
}

func EncodeSenderKeyEnvelope(env senderkey.EncryptedEnvelope) SenderKeyEnvelope {
	return SenderKeyEnvelope{
		Type:              TypeSenderKey,
		FromAddress:       env.FromAddress,
		ForPublicKey:      rcrypto.ExportJWK(env.ForPublicKey),
		EncryptedChainKey: rcrypto.B64(env.EncryptedChainKey),
		IV:                rcrypto.B64(env.IV),
	}
}

func DecodeSenderKeyEnvelope(f SenderKeyEnvelope) (senderkey.EncryptedEnvelope, error) {
	pub, err := rcrypto.ImportJWK(f.ForPublicKey)
	if err != nil {
		return senderkey.EncryptedEnvelope{}, err
	}
	ct, err := rcrypto.B64Decode(f.EncryptedChainKey)
	if err != nil {
		return senderkey.EncryptedEnvelope{}, err
	}
	iv, err := rcrypto.B64Decode(f.IV)
	if err != nil {
		return senderkey.EncryptedEnvelope{}, err
	}
	return senderkey.EncryptedEnvelope{
		FromAddress:       f.FromAddress,
		ForPublicKey:      pub,
		EncryptedChainKey: ct,
		IV:                iv,
	}, nil
}

func EncodeTransferStart(meta media.Meta) TransferStart {
	return TransferStart{
		Type:        TypeTransferStart,
		TransferID:  meta.TransferID,
		FileName:    meta.FileName,
		FileSize:    meta.FileSize,
		MimeType:    meta.MimeType,
		TotalChunks: meta.TotalChunks,
		MediaType:   string(meta.MediaType),
		TransferKey: rcrypto.B64(meta.TransferKey.Slice()),
	}
}

func DecodeTransferStart(f TransferStart) (media.Meta, error) {
	keyBytes, err := rcrypto.B64Decode(f.TransferKey)
	if err != nil {
		return media.Meta{}, err
	}
	if len(keyBytes) != 32 {
		return media.Meta{}, fmt.Errorf("transfer key: got %d bytes, want 32", len(keyBytes))
	}
	var key [32]byte
	copy(key[:], keyBytes)
	return media.Meta{
		TransferID:  f.TransferID,
		FileName:    f.FileName,
		FileSize:    f.FileSize,
		MimeType:    f.MimeType,
		TotalChunks: f.TotalChunks,
		MediaType:   media.MediaType(f.MediaType),
		TransferKey: key,
	}, nil
}

func EncodeTransferChunk(sender string, c media.Chunk) TransferChunk {
	return TransferChunk{
		Type:       TypeTransferChunk,
		TransferID: c.TransferID,
		ChunkIndex: c.ChunkIndex,
		Ciphertext: rcrypto.B64(c.Ciphertext),
		IV:         rcrypto.B64(c.IV),
		Sender:     sender,
	}
}

func DecodeTransferChunk(f TransferChunk) (media.Chunk, error) {
	ct, err := rcrypto.B64Decode(f.Ciphertext)
	if err != nil {
		return media.Chunk{}, err
	}
	iv, err := rcrypto.B64Decode(f.IV)
	if err != nil {
		return media.Chunk{}, err
	}
	return media.Chunk{TransferID: f.TransferID, ChunkIndex: f.ChunkIndex, Ciphertext: ct, IV: iv}, nil
}
