package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Digest domains. The version suffix leaves room to change the encoding.
const (
	DomainTrace    = "pollsim/trace/v1"
	DomainSnapshot = "pollsim/snapshot/v1"
)

// Digest returns the hex SHA-256 of domain, a zero byte, and the canonical
// encoding of v. The separator keeps domain and payload from running into
// each other.
func Digest(domain string, v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", domain, err)
	}
	return DigestBytes(domain, data), nil
}

// DigestBytes is Digest over already-encoded data.
func DigestBytes(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
