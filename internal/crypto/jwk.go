package crypto

import (
	"crypto/ecdh"

	"ratchetroom/internal/domain"
	"ratchetroom/internal/domain/types"
)

const (
	jwkKty = "EC"
	jwkCrv = "P-256"

	// p256CoordSize is the byte length of each of a P-256 point's X and
	// Y coordinates.
	p256CoordSize = 32
)

// ExportJWK encodes a P-256 public key as the wire JWK shape from §6.
func ExportJWK(pub *ecdh.PublicKey) types.JWK {
	raw := pub.Bytes() // uncompressed SEC1: 0x04 || X || Y
	x := raw[1 : 1+p256CoordSize]
	y := raw[1+p256CoordSize : 1+2*p256CoordSize]
	return types.JWK{
		Kty: jwkKty,
		Crv: jwkCrv,
		X:   B64URL(x),
		Y:   B64URL(y),
	}
}

// ImportJWK validates and decodes a peer's public key. It rejects any JWK
// carrying a private scalar (field D), any curve other than P-256, and
// any point not on the curve or at the identity, matching the primitive
// contract in §4.1.
func ImportJWK(j types.JWK) (*ecdh.PublicKey, error) {
	if j.D != "" {
		return nil, domain.ErrInvalidPeerKey
	}
	if j.Kty != jwkKty || j.Crv != jwkCrv {
		return nil, domain.ErrInvalidPeerKey
	}
	x, err := B64URLDecode(j.X)
	if err != nil || len(x) != p256CoordSize {
		return nil, domain.ErrInvalidPeerKey
	}
	y, err := B64URLDecode(j.Y)
	if err != nil || len(y) != p256CoordSize {
		return nil, domain.ErrInvalidPeerKey
	}
	raw := make([]byte, 0, 1+2*p256CoordSize)
	raw = append(raw, 0x04)
	raw = append(raw, x...)
	raw = append(raw, y...)

	pub, err := ecdh.P256().NewPublicKey(raw)
	if err != nil {
		return nil, domain.ErrInvalidPeerKey
	}
	return pub, nil
}

// Fingerprint returns a stable 32-byte identifier for a public key,
// used to key the Double Ratchet's skipped-key store by DH public key
// rather than by the (much larger) raw point bytes.
func Fingerprint(pub *ecdh.PublicKey) [32]byte {
	sum := sha256Sum(pub.Bytes())
	return sum
}
