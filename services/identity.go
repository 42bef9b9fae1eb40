package services

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// BlobIdentity is the prepared storage identity for an upload: a globally
// unique storage name and the content checksum of the bytes.
type BlobIdentity struct {
	StorageName string
	ChecksumHex string
}

// Identify computes the content checksum and generates a unique storage
// name for the given bytes. The checksum is a SHA-256 digest in lowercase
// hex; it is a content-integrity digest used for verification on retrieval,
// not a security signature and not a deduplication key. The storage name
// combines a random UUID with a sanitized form of the original filename so
// uniqueness needs no coordination round-trip.
func Identify(data []byte, originalName string) BlobIdentity {
	sum := sha256.Sum256(data)
	return BlobIdentity{
		StorageName: uuid.NewString() + "-" + SanitizeName(originalName),
		ChecksumHex: hex.EncodeToString(sum[:]),
	}
}

// SanitizeName replaces every character outside [a-zA-Z0-9.-] with an
// underscore so the result is safe as a storage key segment.
func SanitizeName(name string) string {
	if name == "" {
		return "unnamed"
	}
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// VerifyChecksum recomputes the digest over data and compares it to the
// expected lowercase hex digest.
func VerifyChecksum(data []byte, expectedHex string) bool {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) == expectedHex
}
