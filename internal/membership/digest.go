// internal/membership/digest.go
package membership

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// digester derives the stored form of a national id. The raw number is
// never persisted; a keyed BLAKE2b-256 digest makes it unique and lookups
// possible without it.
type digester struct {
	key []byte
}

func newDigester(pepper string) (digester, error) {
	if len(pepper) > blake2b.Size {
		return digester{}, fmt.Errorf("national id pepper is longer than %d bytes", blake2b.Size)
	}
	return digester{key: []byte(pepper)}, nil
}

func (d digester) digest(nationalID string) (string, error) {
	h, err := blake2b.New256(d.key)
	if err != nil {
		return "", fmt.Errorf("failed to create digest: %w", err)
	}
	h.Write([]byte(nationalID))
	return hex.EncodeToString(h.Sum(nil)), nil
}

func suffix(nationalID string) string {
	if len(nationalID) <= 4 {
		return nationalID
	}
	return nationalID[len(nationalID)-4:]
}
