package witness

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPadNUIPZeroPads(t *testing.T) {
	padded, err := PadNUIP("454545454")
	require.NoError(t, err)
	require.Equal(t, "454545454", string(padded[:9]))
	for _, b := range padded[9:] {
		require.Zero(t, b)
	}
}

func TestPadNUIPRejectsNonDecimal(t *testing.T) {
	_, err := PadNUIP("45A5")
	require.Error(t, err)
}

func TestPadDomainSpacePads(t *testing.T) {
	padded, err := PadDomain("registro.gov.co")
	require.NoError(t, err)
	require.Equal(t, "registro.gov.co", string(padded[:15]))
	for _, b := range padded[15:] {
		require.Equal(t, byte(0x20), b)
	}
}

func TestDeriveServerHashMatchesDirectSHA256(t *testing.T) {
	domainPadded, err := PadDomain("example.com")
	require.NoError(t, err)

	got := DeriveServerHash(domainPadded)
	want := sha256.Sum256(domainPadded[:])
	require.Equal(t, want, got)
}

func TestDeriveIDCommitmentMatchesDirectSHA256(t *testing.T) {
	nuipPadded, err := PadNUIP("454545454")
	require.NoError(t, err)
	var salt [SaltLen]byte
	for i := range salt {
		salt[i] = 0x11
	}

	got := DeriveIDCommitment(nuipPadded, salt)
	want := sha256.Sum256(append(append([]byte{}, nuipPadded[:]...), salt[:]...))
	require.Equal(t, want, got)
}

func TestRowBytesHasExactly241Bytes(t *testing.T) {
	var row Row
	require.Len(t, row.Bytes(), RowCount)
	require.Equal(t, 241, RowCount)
}
