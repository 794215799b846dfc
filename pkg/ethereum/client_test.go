package ethereum

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigureVerifierContractRejectsInvalidAddress(t *testing.T) {
	c := &Client{}
	err := c.ConfigureVerifierContract("not-an-address", "deadbeef", 0)
	require.Error(t, err)
}

func TestConfigureVerifierContractDefaultsGasLimit(t *testing.T) {
	c := &Client{}
	err := c.ConfigureVerifierContract("0x00000000000000000000000000000000000000aa", "deadbeef", 0)
	require.NoError(t, err)
	require.Equal(t, uint64(500_000), c.verifierGasLimit)
}

func TestConfigureVerifierContractHonorsExplicitGasLimit(t *testing.T) {
	c := &Client{}
	err := c.ConfigureVerifierContract("0x00000000000000000000000000000000000000aa", "deadbeef", 750_000)
	require.NoError(t, err)
	require.Equal(t, uint64(750_000), c.verifierGasLimit)
}

func TestProveDeathAndRegisterHeirRejectsUnconfiguredContract(t *testing.T) {
	c := &Client{}
	_, err := c.ProveDeathAndRegisterHeir(context.Background(), [20]byte{}, nil, make([][32]byte, 116))
	require.Error(t, err)
}

func TestProveDeathAndRegisterHeirRejectsWrongPublicInputCount(t *testing.T) {
	c := &Client{}
	require.NoError(t, c.ConfigureVerifierContract("0x00000000000000000000000000000000000000aa", "deadbeef", 0))

	_, err := c.ProveDeathAndRegisterHeir(context.Background(), [20]byte{}, nil, make([][32]byte, 42))
	require.Error(t, err)
}

func TestGeneratePrivateKeyRoundTripsThroughHexAndPublicAddress(t *testing.T) {
	priv, err := GeneratePrivateKey()
	require.NoError(t, err)

	hexKey := PrivateKeyToHex(priv)
	addr, err := GetPublicAddress(strings.TrimPrefix(hexKey, "0x"))
	require.NoError(t, err)
	require.NotEqual(t, addr.Hex(), "0x0000000000000000000000000000000000000000")
}
