package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainSource   = "enginesim/source/v1"
	DomainTopology = "enginesim/topology/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SourceHash identifies a topology script by its NFC-normalized text, so
// the same script saved by different editors hashes identically.
func SourceHash(source string) string {
	return hashWithDomain(DomainSource, norm.NFC.Bytes([]byte(source)))
}

// Hash identifies a compiled topology. Struct field order is fixed, so the
// JSON encoding is stable for a given value.
func (t *Topology) Hash() (string, error) {
	if t == nil {
		return "", fmt.Errorf("Topology.Hash: nil topology")
	}
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("Topology.Hash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTopology, data), nil
}

// MustHash is like Hash but panics on error.
// Use only in tests or when the topology is known to be valid.
func (t *Topology) MustHash() string {
	h, err := t.Hash()
	if err != nil {
		panic(err)
	}
	return h
}

// NormalizeName NFC-normalizes a user supplied identifier.
func NormalizeName(s string) string {
	return norm.NFC.String(s)
}
