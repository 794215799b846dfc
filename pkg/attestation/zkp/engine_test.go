package zkp

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/proofheir/attestor/pkg/witness"
)

func sampleRow(t *testing.T) witness.Row {
	t.Helper()

	nuipPadded, err := witness.PadNUIP("454545454")
	require.NoError(t, err)
	domainPadded, err := witness.PadDomain("registraduria.gov.co")
	require.NoError(t, err)
	statusPadded, err := witness.PadStatus([]byte("fallecido"))
	require.NoError(t, err)

	var salt [witness.SaltLen]byte
	var blinder [witness.BlinderLen]byte
	var recipient [witness.AddressLen]byte
	for i := range salt {
		salt[i] = byte(i)
	}
	for i := range blinder {
		blinder[i] = byte(0xAA)
	}
	for i := range recipient {
		recipient[i] = byte(0x11 * (i%16 + 1))
	}

	return witness.Row{
		Recipient:        recipient,
		ServerHash:       witness.DeriveServerHash(domainPadded),
		IDCommitment:     witness.DeriveIDCommitment(nuipPadded, salt),
		StatusCommitment: witness.DeriveStatusCommitment(statusPadded, blinder),
		NUIPPadded:       nuipPadded,
		Salt:             salt,
		DomainPadded:     domainPadded,
		StatusPadded:     statusPadded,
		Blinder:          blinder,
	}
}

func TestEngineProveAndVerifyRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("groth16 setup is slow; skipped under -short")
	}

	row := sampleRow(t)

	engine := NewEngine()
	require.NoError(t, engine.Initialize())

	proof, err := engine.GenerateProof(row)
	require.NoError(t, err)
	require.Equal(t, row.Recipient, proof.Recipient)

	ok, err := engine.VerifyProofLocally(proof)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEngineRejectsUseBeforeInitialize(t *testing.T) {
	engine := NewEngine()
	_, err := engine.GenerateProof(sampleRow(t))
	require.Error(t, err)
}

func TestProofSolidityCalldataRawLength(t *testing.T) {
	proof := &Proof{
		ProofA: [2]*big.Int{big.NewInt(1), big.NewInt(2)},
		ProofB: [2][2]*big.Int{{big.NewInt(3), big.NewInt(4)}, {big.NewInt(5), big.NewInt(6)}},
		ProofC: [2]*big.Int{big.NewInt(7), big.NewInt(8)},
	}

	raw := proof.ToSolidityCalldataRaw()
	// 8 proof words + 116 public-input words, 32 bytes each.
	require.Len(t, raw, (8+116)*32)
}

func TestProofHashIsDeterministic(t *testing.T) {
	proof := &Proof{
		ProofA: [2]*big.Int{big.NewInt(1), big.NewInt(2)},
		ProofB: [2][2]*big.Int{{big.NewInt(3), big.NewInt(4)}, {big.NewInt(5), big.NewInt(6)}},
		ProofC: [2]*big.Int{big.NewInt(7), big.NewInt(8)},
	}

	h1 := proof.ProofHash()
	h2 := proof.ProofHash()
	require.Equal(t, h1, h2)
}
