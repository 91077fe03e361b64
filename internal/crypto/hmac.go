package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
)

// HMACSHA256 computes the single-byte-input key derivation used by the
// symmetric ratchet: HMAC-SHA256(key, []byte{marker}).
func HMACSHA256(key []byte, marker byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte{marker})
	return h.Sum(nil)
}
