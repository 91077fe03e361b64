package media_test

import (
	"bytes"
	"crypto/rand"
	"testing"
	"time"

	"ratchetroom/internal/domain"
	"ratchetroom/internal/protocol/media"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestMedia_RoundTrip(t *testing.T) {
	payload := make([]byte, 40000)
	if _, err := rand.Read(payload); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	meta, chunks, err := media.PrepareOutgoing("photo.png", "image/png", media.MediaImage, payload, 16384)
	if err != nil {
		t.Fatalf("PrepareOutgoing: %v", err)
	}
	if int(meta.TotalChunks) != len(chunks) {
		t.Fatalf("meta says %d chunks, got %d", meta.TotalChunks, len(chunks))
	}

	in := media.NewIncoming(meta, nil)
	for _, c := range chunks {
		if err := in.AddChunk(c); err != nil {
			t.Fatalf("AddChunk %d: %v", c.ChunkIndex, err)
		}
	}
	in.SignalComplete()

	out, err := in.Reassemble()
	if err != nil {
		t.Fatalf("Reassemble: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatal("reassembled payload does not match original")
	}
	if in.Status() != media.StatusComplete {
		t.Fatalf("status = %s, want complete", in.Status())
	}
}

func TestMedia_OversizeImageRejected(t *testing.T) {
	payload := make([]byte, 11*1024*1024)
	_, _, err := media.PrepareOutgoing("huge.png", "image/png", media.MediaImage, payload, 16384)
	if err != domain.ErrTransferTooLarge {
		t.Fatalf("got err %v, want ErrTransferTooLarge", err)
	}
}

func TestMedia_UnsupportedMediaTypeRejected(t *testing.T) {
	_, _, err := media.PrepareOutgoing("clip.mp4", "video/mp4", media.MediaType("audio"), []byte("x"), 16384)
	if err != domain.ErrUnsupportedMedia {
		t.Fatalf("got err %v, want ErrUnsupportedMedia", err)
	}
}

func TestMedia_IdleTimeoutZeroesPlaintext(t *testing.T) {
	payload := make([]byte, 100)
	if _, err := rand.Read(payload); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	meta, chunks, err := media.PrepareOutgoing("small.png", "image/png", media.MediaImage, payload, 16384)
	if err != nil {
		t.Fatalf("PrepareOutgoing: %v", err)
	}

	clock := &fakeClock{now: time.Now()}
	in := media.NewIncoming(meta, clock)
	if err := in.AddChunk(chunks[0]); err != nil {
		t.Fatalf("AddChunk: %v", err)
	}

	clock.now = clock.now.Add(2 * time.Minute)
	if err := in.CheckTimeout(60 * time.Second); err != domain.ErrTransferTimeout {
		t.Fatalf("got err %v, want ErrTransferTimeout", err)
	}
	if in.Status() != media.StatusTimedOut {
		t.Fatalf("status = %s, want timed_out", in.Status())
	}
}
