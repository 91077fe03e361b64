// Package interfaces names the external collaborators the messaging core
// depends on but does not implement, following the teacher's pattern of
// giving every boundary (domain.RelayClient, domain.IdentityStore) a named
// Go interface even when the concrete implementation lives elsewhere.
package interfaces

import (
	"context"
	"time"
)

// WalletSigner produces the deterministic signature the core hashes into
// a MasterSeed. Wallet signing itself is out of scope for this module;
// only the byte-shape of its result matters here.
type WalletSigner interface {
	// Sign returns a deterministic signature over message for the given
	// wallet address. The same (address, message) pair must always
	// yield the same signature.
	Sign(ctx context.Context, address string, message []byte) ([]byte, error)
}

// Transport carries opaque JSON frames between the local peer and one
// remote address over a reliable, ordered, per-peer duplex channel.
// Delivery order across different peers is not guaranteed.
type Transport interface {
	Send(ctx context.Context, toAddress string, frame []byte) error
	// Recv blocks until a frame arrives from any peer.
	Recv(ctx context.Context) (fromAddress string, frame []byte, err error)
}

// SeedStore persists the one thing the core allows onto disk: the
// wallet-derived MasterSeed, hex-encoded and keyed by wallet address.
type SeedStore interface {
	LoadSeed(ctx context.Context, address string) (seed [32]byte, ok bool, err error)
	SaveSeed(ctx context.Context, address string, seed [32]byte) error
}

// Clock abstracts wall time so skipped-key TTL eviction can be driven
// deterministically in tests instead of reaching for time.Now directly.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
