// Package witness implements the data-model padding rules and derived
// public-value hashing shared by the MPC-TLS layer and the SNARK circuit:
// the exact byte layouts invariant 4 of the spec requires both sides to
// agree on.
package witness

import (
	"github.com/proofheir/attestor/pkg/attestationerr"
	"github.com/proofheir/attestor/pkg/commitment"
)

const (
	NUIPLen     = 15
	SaltLen     = 32
	DomainLen   = 40
	StatusLen   = 22
	BlinderLen  = 16
	AddressLen  = 20
	HashLen     = 32

	// RowCount is the total number of 32-byte witness rows (invariant 4):
	// recipient + server_hash + id_commitment + status_commitment +
	// nuip_padded + salt + domain_padded + status_padded + blinder.
	RowCount = AddressLen + HashLen + HashLen + HashLen + NUIPLen + SaltLen + DomainLen + StatusLen + BlinderLen // 241
)

// PadNUIP zero-pads an ASCII decimal NUIP string to NUIPLen bytes.
func PadNUIP(nuip string) ([NUIPLen]byte, error) {
	var out [NUIPLen]byte
	if len(nuip) > NUIPLen {
		return out, attestationerr.New(attestationerr.InvalidInput, "nuip exceeds 15 bytes")
	}
	for _, c := range nuip {
		if c < '0' || c > '9' {
			return out, attestationerr.New(attestationerr.InvalidInput, "nuip must be ASCII decimal")
		}
	}
	copy(out[:], nuip)
	return out, nil
}

// PadDomain space-pads an ASCII DNS hostname to DomainLen bytes.
func PadDomain(domain string) ([DomainLen]byte, error) {
	var out [DomainLen]byte
	if len(domain) > DomainLen {
		return out, attestationerr.New(attestationerr.InvalidInput, "domain exceeds 40 bytes")
	}
	for i := range out {
		out[i] = 0x20
	}
	copy(out[:], domain)
	return out, nil
}

// PadStatus zero-pads the (already unquoted) status string bytes to
// StatusLen bytes.
func PadStatus(status []byte) ([StatusLen]byte, error) {
	var out [StatusLen]byte
	if len(status) > StatusLen {
		return out, attestationerr.New(attestationerr.InvalidInput, "status value exceeds 22 bytes")
	}
	copy(out[:], status)
	return out, nil
}

// DerivedPublics holds the three SHA-256-derived public-input groups.
type DerivedPublics struct {
	ServerHash       [HashLen]byte
	IDCommitment     [HashLen]byte
	StatusCommitment [HashLen]byte
}

// DeriveServerHash computes server_hash = SHA-256(domain_padded_40).
func DeriveServerHash(domainPadded [DomainLen]byte) [HashLen]byte {
	var out [HashLen]byte
	copy(out[:], commitment.HashConcat(domainPadded[:]))
	return out
}

// DeriveIDCommitment computes id_commitment = SHA-256(nuip_padded_15 ∥ salt).
func DeriveIDCommitment(nuipPadded [NUIPLen]byte, salt [SaltLen]byte) [HashLen]byte {
	var out [HashLen]byte
	copy(out[:], commitment.HashConcat(nuipPadded[:], salt[:]))
	return out
}

// DeriveStatusCommitment computes status_commitment = SHA-256(status_padded_22 ∥ blinder).
//
// See DESIGN.md: this implementation commits over the zero-padded fixed
// buffer (not the raw variable-length span) in every place that hashes the
// status value, resolving the spec's open quote-handling question in a way
// compatible with the circuit's fixed-arity SHA-256 gadget.
func DeriveStatusCommitment(statusPadded [StatusLen]byte, blinder [BlinderLen]byte) [HashLen]byte {
	var out [HashLen]byte
	copy(out[:], commitment.HashConcat(statusPadded[:], blinder[:]))
	return out
}

// Row is the assembled 241-row witness in the invariant-4 order:
// recipient(20) ∥ server_hash(32) ∥ id_commitment(32) ∥ status_commitment(32)
// ∥ nuip_padded(15) ∥ salt(32) ∥ domain_padded(40) ∥ status_padded(22) ∥ blinder(16).
type Row struct {
	Recipient        [AddressLen]byte
	ServerHash       [HashLen]byte
	IDCommitment     [HashLen]byte
	StatusCommitment [HashLen]byte
	NUIPPadded       [NUIPLen]byte
	Salt             [SaltLen]byte
	DomainPadded     [DomainLen]byte
	StatusPadded     [StatusLen]byte
	Blinder          [BlinderLen]byte
}

// Bytes flattens the row into the 241 ordered bytes, one witness element
// per byte, matching invariant 4 exactly.
func (r Row) Bytes() []byte {
	out := make([]byte, 0, RowCount)
	out = append(out, r.Recipient[:]...)
	out = append(out, r.ServerHash[:]...)
	out = append(out, r.IDCommitment[:]...)
	out = append(out, r.StatusCommitment[:]...)
	out = append(out, r.NUIPPadded[:]...)
	out = append(out, r.Salt[:]...)
	out = append(out, r.DomainPadded[:]...)
	out = append(out, r.StatusPadded[:]...)
	out = append(out, r.Blinder[:]...)
	return out
}
