// Package codec implements the on-chain public-input serialization: the
// fixed 116-element field-array layout the verifier contract expects, and
// the inverse extraction from a concatenated proof blob.
package codec

import (
	"github.com/proofheir/attestor/pkg/attestationerr"
)

const (
	// FieldWidth is the byte width of one serialized field element.
	FieldWidth = 32

	recipientLen  = 20
	hashLen       = 32
	numGroups     = 4 // recipient, server_hash, id_commitment, status_commitment
	// NumFields is the fixed number of field elements the codec always
	// produces: one per input byte across all four groups.
	NumFields = recipientLen + hashLen + hashLen + hashLen // 116

	// splitThreshold is the heuristic slack the distilled spec uses to
	// decide whether a blob is "public inputs prepended to proof bytes".
	splitThreshold = 10_000

	statusCommitmentStart = (recipientLen + hashLen + hashLen) * FieldWidth // 2688
	statusCommitmentEnd   = statusCommitmentStart + hashLen*FieldWidth      // 3712
)

// PublicInputs is the four public-input groups in on-chain order.
type PublicInputs struct {
	Recipient         [20]byte
	ServerHash        [32]byte
	IDCommitment      [32]byte
	StatusCommitment  [32]byte
}

// Encode serializes the four public-input groups into exactly NumFields
// 32-byte field elements, one per input byte, each 31 zero bytes followed by
// the data byte.
func Encode(pub PublicInputs) [][FieldWidth]byte {
	out := make([][FieldWidth]byte, 0, NumFields)
	for _, b := range pub.Recipient {
		out = append(out, byteToField(b))
	}
	for _, b := range pub.ServerHash {
		out = append(out, byteToField(b))
	}
	for _, b := range pub.IDCommitment {
		out = append(out, byteToField(b))
	}
	for _, b := range pub.StatusCommitment {
		out = append(out, byteToField(b))
	}
	return out
}

func byteToField(b byte) [FieldWidth]byte {
	var f [FieldWidth]byte
	f[FieldWidth-1] = b
	return f
}

// Flatten concatenates the field elements into a single byte slice, the
// layout ExtractStatusCommitment reads and raw proof calldata appends.
func Flatten(fields [][FieldWidth]byte) []byte {
	out := make([]byte, 0, len(fields)*FieldWidth)
	for _, f := range fields {
		out = append(out, f[:]...)
	}
	return out
}

// Split implements the distilled spec's documented (and explicitly fragile)
// fallback heuristic for backends that prepend the serialized public inputs
// to the proof bytes: if the blob is long enough and 32-byte aligned, the
// first NumFields*FieldWidth bytes are treated as the public-input region
// and the remainder as the core proof. Otherwise the whole blob is returned
// as the core proof with no public-input region.
func Split(proofBlob []byte) (publicInputsRegion, coreProof []byte) {
	minLen := NumFields*FieldWidth + splitThreshold
	if len(proofBlob) > minLen && len(proofBlob)%FieldWidth == 0 {
		return proofBlob[:NumFields*FieldWidth], proofBlob[NumFields*FieldWidth:]
	}
	return nil, proofBlob
}

// ExtractStatusCommitment reads the status-commitment field-element region
// out of a concatenated public-inputs region (bytes [2688, 3712)), taking
// the last byte of each 32-byte chunk.
func ExtractStatusCommitment(publicInputsRegion []byte) ([32]byte, error) {
	var out [32]byte
	if len(publicInputsRegion) < statusCommitmentEnd {
		return out, attestationerr.New(attestationerr.ProofVerificationError, "public-input region too short to contain status commitment")
	}
	region := publicInputsRegion[statusCommitmentStart:statusCommitmentEnd]
	for i := 0; i < hashLen; i++ {
		out[i] = region[i*FieldWidth+FieldWidth-1]
	}
	return out, nil
}
