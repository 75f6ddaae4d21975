package gateway

import "encoding/hex"

// decodeSignature parses a hex-encoded signature connection parameter.
// Hex matches the challenge value's own encoding (internal/auth
// mints challenges via hex.EncodeToString), keeping both sides of the
// handshake on one wire encoding.
func decodeSignature(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
