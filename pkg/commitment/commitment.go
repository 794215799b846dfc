// Copyright 2025 Certen Protocol
//
// Canonical Commitment Package
// Provides the shared SHA-256(a ∥ b ∥ ...) primitive used to derive the
// attestation pipeline's public-input commitments.

package commitment

import "crypto/sha256"

// HashConcat returns SHA256 of concatenated byte slices.
func HashConcat(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}
