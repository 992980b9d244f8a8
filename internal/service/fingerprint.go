package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// HashFingerprint digests a device fingerprint into a hex SHA-256 string.
// Keys are sorted first so the digest does not depend on map iteration order.
// Keys and values are length-prefixed so no two distinct maps encode the same.
func HashFingerprint(fingerprint map[string]string) string {
	keys := make([]string, 0, len(fingerprint))
	for k := range fingerprint {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		v := fingerprint[k]
		fmt.Fprintf(h, "%d:%s=%d:%s\n", len(k), k, len(v), v)
	}
	return hex.EncodeToString(h.Sum(nil))
}
