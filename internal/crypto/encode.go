package crypto

import "encoding/base64"

// B64 encodes standard (padded) base64, used for wire fields such as
// ciphertext and iv.
func B64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// B64Decode decodes standard base64.
func B64Decode(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }

// B64URL encodes unpadded base64url, used by JWK's x/y coordinates.
func B64URL(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

// B64URLDecode decodes unpadded base64url.
func B64URLDecode(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(s) }
