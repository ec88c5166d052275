package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainItem prefixes every item fingerprint. The version suffix allows a
// future change of canonical form to invalidate old cache entries at once.
const DomainItem = "schemasync/item/v1"

// FingerprintLen is the length of a hex-encoded fingerprint.
const FingerprintLen = sha256.Size * 2

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint hashes the canonical form of an item document.
// The caller is responsible for normalizing field order before calling;
// see schema.ItemDefinition.Document.
func Fingerprint(doc IRObject) (string, error) {
	canonical, err := MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(DomainItem, canonical), nil
}

// MustFingerprint is like Fingerprint but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFingerprint(doc IRObject) string {
	fp, err := Fingerprint(doc)
	if err != nil {
		panic(err)
	}
	return fp
}
