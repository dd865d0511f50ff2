package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for digests. The version suffix allows the algorithm to
// change without old artifacts verifying against new ones.
const (
	DomainCheckpoint = "statehub/checkpoint/v1"
	DomainState      = "statehub/state/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator removes any ambiguity at the domain/data boundary.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CheckpointDigest returns the integrity digest stored alongside a
// checkpoint artifact's payload.
func CheckpointDigest(payload []byte) string {
	return hashWithDomain(DomainCheckpoint, payload)
}

// StateDigest hashes a debug view of a Store. Two Stores with equal state
// produce equal digests regardless of map iteration order.
func StateDigest(state Object) (string, error) {
	data, err := MarshalCanonical(state)
	if err != nil {
		return "", fmt.Errorf("state digest: %w", err)
	}
	return hashWithDomain(DomainState, data), nil
}
