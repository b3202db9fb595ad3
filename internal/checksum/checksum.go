package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// KeyLength is the number of hex characters kept by SnapshotKey.
const KeyLength = 16

// SHA256Bytes computes the SHA256 hash of a byte slice and returns it as "sha256:hexstring"
func SHA256Bytes(data []byte) string {
	return "sha256:" + SHA256Hex(data)
}

// SHA256Hex returns the bare lowercase hex SHA256 digest of data
func SHA256Hex(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// SnapshotKey derives a short, stable storage key from an arbitrary string.
// The key is the first KeyLength hex chars of SHA256(s).
func SnapshotKey(s string) string {
	return SHA256Hex([]byte(s))[:KeyLength]
}
