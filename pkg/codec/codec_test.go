package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func samplePublicInputs() PublicInputs {
	var pub PublicInputs
	for i := range pub.Recipient {
		pub.Recipient[i] = byte(0xA0 + i)
	}
	for i := range pub.ServerHash {
		pub.ServerHash[i] = byte(i)
	}
	for i := range pub.IDCommitment {
		pub.IDCommitment[i] = byte(0xF0 - i)
	}
	for i := range pub.StatusCommitment {
		pub.StatusCommitment[i] = byte(0x55 + i)
	}
	return pub
}

func TestEncodeProducesExactly116ZeroPaddedFields(t *testing.T) {
	fields := Encode(samplePublicInputs())
	require.Len(t, fields, NumFields)
	for _, f := range fields {
		for i := 0; i < FieldWidth-1; i++ {
			require.Zerof(t, f[i], "byte %d of field element must be zero", i)
		}
	}
}

func TestExtractStatusCommitmentRoundTrips(t *testing.T) {
	pub := samplePublicInputs()
	flat := Flatten(Encode(pub))

	got, err := ExtractStatusCommitment(flat)
	require.NoError(t, err)
	require.Equal(t, pub.StatusCommitment, got)
}

func TestExtractStatusCommitmentFailsOnShortRegion(t *testing.T) {
	_, err := ExtractStatusCommitment(make([]byte, 100))
	require.Error(t, err)
}

func TestSplitFallsBackWhenBlobTooShort(t *testing.T) {
	blob := make([]byte, 64)
	region, core := Split(blob)
	require.Nil(t, region)
	require.Equal(t, blob, core)
}

func TestSplitRecognizesPrependedPublicInputs(t *testing.T) {
	pub := samplePublicInputs()
	publicRegion := Flatten(Encode(pub))
	coreProof := make([]byte, 11_008) // comfortably over the threshold, 32-byte aligned
	blob := append(append([]byte{}, publicRegion...), coreProof...)

	gotRegion, gotCore := Split(blob)
	require.Equal(t, publicRegion, gotRegion)
	require.Equal(t, coreProof, gotCore)

	extracted, err := ExtractStatusCommitment(gotRegion)
	require.NoError(t, err)
	require.Equal(t, pub.StatusCommitment, extracted)
}
