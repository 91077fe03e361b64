// Package wire defines the JSON frame shapes that cross the relay,
// exactly as specified in §6. Every field name matches the wire
// contract; protocol packages never marshal JSON themselves.
package wire

import "ratchetroom/internal/domain/types"

const (
	TypeEncryptionPubkey = "encryption_pubkey"
	TypeUserJoined       = "user_joined"
	TypeIAmHere          = "i_am_here"
	TypeUserLeft         = "user_left"
	TypeX3DHInit         = "x3dh_init"
	TypeX3DHResponse     = "x3dh_response"
	TypeSenderKey        = "sender_key"
	TypeChat             = "chat"
	TypeTransferStart    = "file_transfer_start"
	TypeTransferChunk    = "file_transfer_chunk"
	TypeTransferComplete = "file_transfer_complete"
)

type EncryptionPubkey struct {
	Type      string    `json:"type"`
	Sender    string    `json:"sender"`
	PublicKey types.JWK `json:"publicKey"`
}

type UserJoined struct {
	Type      string     `json:"type"`
	Address   string     `json:"address"`
	PublicKey *types.JWK `json:"publicKey,omitempty"`
}

type IAmHere struct {
	Type      string     `json:"type"`
	Address   string     `json:"address"`
	PublicKey *types.JWK `json:"publicKey,omitempty"`
}

type UserLeft struct {
	Type    string `json:"type"`
	Address string `json:"address"`
}

type X3DHInit struct {
	Type               string    `json:"type"`
	FromAddress        string    `json:"fromAddress"`
	IdentityPublicKey  types.JWK `json:"identityPublicKey"`
	EphemeralPublicKey types.JWK `json:"ephemeralPublicKey"`
}

type X3DHResponse struct {
	Type               string    `json:"type"`
	FromAddress        string    `json:"fromAddress"`
	IdentityPublicKey  types.JWK `json:"identityPublicKey"`
	EphemeralPublicKey types.JWK `json:"ephemeralPublicKey"`
}

type SenderKeyEnvelope struct {
	Type              string    `json:"type"`
	FromAddress       string    `json:"fromAddress"`
	ForPublicKey      types.JWK `json:"forPublicKey"`
	EncryptedChainKey string    `json:"encryptedChainKey"`
	IV                string    `json:"iv"`
}

// DoubleRatchetMsg is the direct (1:1) chat wire frame.
type DoubleRatchetMsg struct {
	Type                string    `json:"type"`
	Sender              string    `json:"sender"`
	SenderDHPublicKey   types.JWK `json:"senderDhPublicKey"`
	PreviousChainLength uint32    `json:"previousChainLength"`
	ChainIndex          uint32    `json:"chainIndex"`
	Ciphertext          string    `json:"ciphertext"`
	IV                  string    `json:"iv"`
}

// GroupMsg is the group (sender-key) chat wire frame. It shares the
// "chat" type tag with DoubleRatchetMsg; the orchestrator disambiguates
// by encryptionMode rather than by wire shape, matching §6.
type GroupMsg struct {
	Type          string `json:"type"`
	SenderAddress string `json:"senderAddress"`
	ChainIndex    uint32 `json:"chainIndex"`
	Ciphertext    string `json:"ciphertext"`
	IV            string `json:"iv"`
}

type TransferStart struct {
	Type        string `json:"type"`
	TransferID  string `json:"transferId"`
	FileName    string `json:"fileName"`
	FileSize    uint64 `json:"fileSize"`
	MimeType    string `json:"mimeType"`
	TotalChunks uint32 `json:"totalChunks"`
	MediaType   string `json:"mediaType"`
	TransferKey string `json:"transferKey"`
	Thumbnail   string `json:"thumbnail,omitempty"`
}

type TransferChunk struct {
	Type       string `json:"type"`
	TransferID string `json:"transferId"`
	ChunkIndex uint32 `json:"chunkIndex"`
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	Sender     string `json:"sender"`
}

type TransferComplete struct {
	Type       string `json:"type"`
	TransferID string `json:"transferId"`
	Sender     string `json:"sender"`
}

// Envelope is used only to peek at a frame's "type" tag before deciding
// which concrete struct to unmarshal into, mirroring how the teacher's
// relay client sniffs a response shape before decoding it fully.
type Envelope struct {
	Type string `json:"type"`
}
