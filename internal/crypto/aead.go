package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"ratchetroom/internal/domain"
)

// IVSize is the AEAD's random IV length: 96 bits.
const IVSize = 12

// AEADEncrypt seals plaintext under a 32-byte AES-256 key with a fresh
// random 12-byte IV and the given associated data. The 128-bit tag is
// appended to the returned ciphertext, matching the wire layout in §6.
func AEADEncrypt(key, plaintext, aad []byte) (ciphertext, iv []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	iv = make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, err
	}
	ciphertext = gcm.Seal(nil, iv, plaintext, aad)
	return ciphertext, iv, nil
}

// AEADDecrypt opens ciphertext under key, iv and aad. Any tag mismatch,
// wrong key, or malformed input surfaces as domain.ErrAuthenticationFailure
// so callers never have to distinguish "which crypto/cipher error was
// this" from the AEAD's authentication contract.
func AEADDecrypt(key, ciphertext, iv, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != gcm.NonceSize() {
		return nil, domain.ErrAuthenticationFailure
	}
	plaintext, err := gcm.Open(nil, iv, ciphertext, aad)
	if err != nil {
		return nil, domain.ErrAuthenticationFailure
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
