package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainSnapshot versions the snapshot digest so the algorithm can change
// without colliding with old digests.
const DomainSnapshot = "ceremony/snapshot/v1"

// Digest hashes the canonical encoding of v under a domain prefix.
// Format: hex(SHA256(domain + 0x00 + canonical(v))).
func Digest(domain string, v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	return hashWithDomain(domain, data), nil
}

func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
