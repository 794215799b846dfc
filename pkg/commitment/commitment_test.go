package commitment

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashConcatMatchesDirectSHA256(t *testing.T) {
	a := []byte("foo")
	b := []byte("bar")

	got := HashConcat(a, b)

	h := sha256.New()
	h.Write(a)
	h.Write(b)
	want := h.Sum(nil)

	require.Equal(t, want, got)
}

func TestHashConcatIsBlindToPartBoundaries(t *testing.T) {
	// The hash only sees the flattened byte stream, so a boundary shift that
	// leaves the flattened bytes unchanged produces the same digest.
	same1 := HashConcat([]byte("foo"), []byte("bar"))
	same2 := HashConcat([]byte("fo"), []byte("obar"))
	require.Equal(t, same1, same2)

	different := HashConcat([]byte("foo"), []byte("baz"))
	require.NotEqual(t, same1, different)
}

func TestHashConcatEmptyInputMatchesEmptySHA256(t *testing.T) {
	got := HashConcat()
	want := sha256.Sum256(nil)
	require.Equal(t, want[:], got)
}
