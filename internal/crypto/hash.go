package crypto

import "crypto/sha256"

// sha256Sum is a small helper so callers needing a fixed-size digest
// don't each re-import crypto/sha256 for a one-liner.
func sha256Sum(b []byte) [32]byte { return sha256.Sum256(b) }

// SHA256 hashes b, used for channel-hash and master-seed derivation.
func SHA256(b []byte) [32]byte { return sha256Sum(b) }
