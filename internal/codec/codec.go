// Package codec provides the canonical encoding and content hashing used
// throughout relaycore to make payload integrity checks independent of
// process, language, and map iteration order.
package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Canonicalize serializes payload to its canonical form: JSON with object
// keys sorted, no HTML escaping, and no indentation. encoding/json already
// sorts map keys when marshaling map[string]any, which is the guarantee
// canonical encoding requires.
func Canonicalize(payload any) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, err
	}
	// json.Encoder.Encode appends a trailing newline; strip it so the
	// hash is stable regardless of how the bytes are later re-wrapped.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// HashPayload canonicalizes payload and returns the hex-encoded SHA-256
// digest of the canonical bytes.
func HashPayload(payload any) (string, error) {
	canon, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	return HashBytes(canon), nil
}

// HashBytes returns the hex-encoded SHA-256 digest of raw bytes.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Decode unmarshals canonical JSON bytes into a map[string]any payload.
func Decode(b []byte) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
