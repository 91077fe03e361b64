// Package media implements chunked file transfer over an AEAD keyed per
// transfer: split at the sender, reassemble at the receiver, both bound
// by the size and idle-timeout limits in internal/config.
package media

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	rcrypto "ratchetroom/internal/crypto"
	"ratchetroom/internal/domain"
	"ratchetroom/internal/domain/interfaces"
	"ratchetroom/internal/domain/types"
	"ratchetroom/internal/util/memzero"
)

// MediaType is the transfer's declared kind, bounding its size cap.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// Meta describes a transfer's shape, carried inside TransferStart.
type Meta struct {
	TransferID  string
	FileName    string
	FileSize    uint64
	MimeType    string
	TotalChunks uint32
	MediaType   MediaType
	TransferKey types.TransferKey
}

// Chunk is one encrypted piece of a transfer, as it travels the wire.
type Chunk struct {
	TransferID string
	ChunkIndex uint32
	Ciphertext []byte
	IV         []byte
}

// Status is a transfer's lifecycle state at the receiver.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
	StatusTimedOut   Status = "timed_out"
)

func maxSizeFor(mt MediaType) (uint64, error) {
	switch mt {
	case MediaImage:
		return 10 * 1024 * 1024, nil
	case MediaVideo:
		return 100 * 1024 * 1024, nil
	default:
		return 0, domain.ErrUnsupportedMedia
	}
}

// PrepareOutgoing validates a file against size/type limits, generates a
// fresh TransferKey and TransferId, and splits it into 16 KiB chunks,
// each independently AEAD-encrypted with AAD = (TransferId, chunkIndex).
func PrepareOutgoing(fileName, mimeType string, mediaType MediaType, data []byte, chunkSize int) (Meta, []Chunk, error) {
	limit, err := maxSizeFor(mediaType)
	if err != nil {
		return Meta{}, nil, err
	}
	if uint64(len(data)) > limit {
		return Meta{}, nil, domain.ErrTransferTooLarge
	}

	var key types.TransferKey
	if _, err := rand.Read(key[:]); err != nil {
		return Meta{}, nil, fmt.Errorf("generate transfer key: %w", err)
	}

	transferID := uuid.NewString()
	totalChunks := (len(data) + chunkSize - 1) / chunkSize
	if totalChunks == 0 {
		totalChunks = 1
	}

	chunks := make([]Chunk, 0, totalChunks)
	for i := 0; i < totalChunks; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		aad := chunkAAD(transferID, uint32(i))
		ct, iv, err := rcrypto.AEADEncrypt(key.Slice(), data[start:end], aad)
		if err != nil {
			return Meta{}, nil, fmt.Errorf("encrypt chunk %d: %w", i, err)
		}
		chunks = append(chunks, Chunk{TransferID: transferID, ChunkIndex: uint32(i), Ciphertext: ct, IV: iv})
	}

	meta := Meta{
		TransferID:  transferID,
		FileName:    fileName,
		FileSize:    uint64(len(data)),
		MimeType:    mimeType,
		TotalChunks: uint32(totalChunks),
		MediaType:   mediaType,
		TransferKey: key,
	}
	return meta, chunks, nil
}

// Incoming accumulates and reassembles a transfer at the receiving end.
// It is safe for concurrent chunk delivery; the transport may reorder
// frames freely.
type Incoming struct {
	mu sync.Mutex

	meta      Meta
	chunks    map[uint32][]byte
	completed bool
	status    Status
	lastSeen  time.Time
	clock     interfaces.Clock
}

// NewIncoming starts tracking a transfer announced by TransferStart.
func NewIncoming(meta Meta, clock interfaces.Clock) *Incoming {
	if clock == nil {
		clock = interfaces.SystemClock{}
	}
	return &Incoming{
		meta:     meta,
		chunks:   make(map[uint32][]byte),
		status:   StatusInProgress,
		lastSeen: clock.Now(),
		clock:    clock,
	}
}

// AddChunk decrypts and stores one chunk. If completion was already
// signaled and this was the last outstanding chunk, it finalizes.
func (in *Incoming) AddChunk(chunk Chunk) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.status != StatusInProgress {
		return nil
	}

	aad := chunkAAD(chunk.TransferID, chunk.ChunkIndex)
	plaintext, err := rcrypto.AEADDecrypt(in.meta.TransferKey.Slice(), chunk.Ciphertext, chunk.IV, aad)
	if err != nil {
		return domain.ErrAuthenticationFailure
	}
	in.chunks[chunk.ChunkIndex] = plaintext
	in.lastSeen = in.clock.Now()

	if in.completed && uint32(len(in.chunks)) == in.meta.TotalChunks {
		in.status = StatusComplete
	}
	return nil
}

// SignalComplete marks that TransferComplete arrived; finalization still
// waits for every chunk to be present.
func (in *Incoming) SignalComplete() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.completed = true
	if uint32(len(in.chunks)) == in.meta.TotalChunks {
		in.status = StatusComplete
	}
}

// Reassemble concatenates chunks in order once the transfer is complete.
func (in *Incoming) Reassemble() ([]byte, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.status != StatusComplete {
		in.status = StatusError
		return nil, fmt.Errorf("reassemble: transfer not complete")
	}

	out := make([]byte, 0, in.meta.FileSize)
	for i := uint32(0); i < in.meta.TotalChunks; i++ {
		part, ok := in.chunks[i]
		if !ok {
			in.status = StatusError
			return nil, fmt.Errorf("reassemble: missing chunk %d", i)
		}
		out = append(out, part...)
	}
	return out, nil
}

// CheckTimeout aborts and zeroes any accumulated plaintext if no chunk
// has arrived within idleLimit.
func (in *Incoming) CheckTimeout(idleLimit time.Duration) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.status != StatusInProgress {
		return nil
	}
	if in.clock.Now().Sub(in.lastSeen) <= idleLimit {
		return nil
	}
	for idx, part := range in.chunks {
		memzero.Zero(part)
		delete(in.chunks, idx)
	}
	in.status = StatusTimedOut
	return domain.ErrTransferTimeout
}

// Status reports the transfer's current lifecycle state.
func (in *Incoming) Status() Status {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.status
}

func chunkAAD(transferID string, chunkIndex uint32) []byte {
	buf := append([]byte(transferID), 0x00)
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], chunkIndex)
	return append(buf, idx[:]...)
}
