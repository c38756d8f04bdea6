package spec

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/goccy/go-json"
)

// Fingerprint returns a hex-encoded SHA-256 digest over the canonical JSON
// encoding of the resolved document. Hashing the ISM rather than the raw
// bytes means formatting-only edits to the source never count as a change.
// Map keys serialize in sorted order, so the digest is stable across runs.
func Fingerprint(doc *Document) (string, error) {
	if doc == nil {
		return "", fmt.Errorf("fingerprint: nil document")
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("fingerprint: encode: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
