package attestation

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/proofheir/attestor/pkg/attestationerr"
	"github.com/proofheir/attestor/pkg/codec"
	"github.com/proofheir/attestor/pkg/mpctls"
)

func registryStub(t *testing.T, vigencia string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"nuip":454545454,"vigencia":"%s"}`, vigencia)
	}))
}

func TestNewEngineAppliesDefaultProofDeadline(t *testing.T) {
	server := registryStub(t, "Fallecido", http.StatusOK)
	defer server.Close()

	e, err := NewEngine(Config{RegistryURL: server.URL})
	require.NoError(t, err)
	require.Equal(t, defaultProofDeadline, e.proofDeadline)
}

func TestNewEngineHonorsCustomProofDeadline(t *testing.T) {
	server := registryStub(t, "Fallecido", http.StatusOK)
	defer server.Close()

	e, err := NewEngine(Config{RegistryURL: server.URL, ProofDeadline: 5 * time.Second})
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, e.proofDeadline)
}

func TestGenerateDeathProofShortCircuitsWhenSubjectIsAlive(t *testing.T) {
	server := registryStub(t, subjectAliveValue, http.StatusOK)
	defer server.Close()

	e, err := NewEngine(Config{RegistryURL: server.URL})
	require.NoError(t, err)

	_, err = e.GenerateDeathProof(context.Background(), Request{NUIP: "454545454"})
	require.Error(t, err)
	require.Equal(t, attestationerr.SubjectAlive, attestationerr.KindOf(err))
}

func TestPreflightCheckPropagatesExternalServiceErrorOnNon200(t *testing.T) {
	server := registryStub(t, "Fallecido", http.StatusInternalServerError)
	defer server.Close()

	e, err := NewEngine(Config{RegistryURL: server.URL})
	require.NoError(t, err)

	err = e.preflightCheck(context.Background(), "454545454")
	require.Error(t, err)
	require.Equal(t, attestationerr.ExternalServiceError, attestationerr.KindOf(err))
}

func TestPreflightCheckPassesWhenSubjectIsDeceased(t *testing.T) {
	server := registryStub(t, "Fallecido", http.StatusOK)
	defer server.Close()

	e, err := NewEngine(Config{RegistryURL: server.URL})
	require.NoError(t, err)

	require.NoError(t, e.preflightCheck(context.Background(), "454545454"))
}

func TestAssembleBundleProducesHexEncodedFields(t *testing.T) {
	e, err := NewEngine(Config{RegistryURL: "https://example.org/check"})
	require.NoError(t, err)

	transcript := &mpctls.AuthenticatedTranscript{
		Bundle: mpctls.ZKProofBundle{
			ProofBytes: []byte{0xde, 0xad, 0xbe, 0xef},
			Public: codec.PublicInputs{
				Recipient: [20]byte{0x01},
			},
		},
	}

	bundle, err := e.assembleBundle(transcript)
	require.NoError(t, err)
	require.Equal(t, "0xdeadbeef", bundle.ProofHex)
	require.Len(t, bundle.PublicInputsHex, codec.NumFields)
	require.Equal(t, "0x0000000000000000000000000000000000000000000000000000000000000001", bundle.PublicInputsHex[0])
	require.False(t, bundle.OnChainSubmitted)
}

func TestGenerateDeathProofFailsFastOnUnreachableRegistry(t *testing.T) {
	e, err := NewEngine(Config{RegistryURL: "https://127.0.0.1:1", ProofDeadline: 2 * time.Second})
	require.NoError(t, err)

	_, err = e.GenerateDeathProof(context.Background(), Request{NUIP: "454545454"})
	require.Error(t, err)
	require.Equal(t, attestationerr.ExternalServiceError, attestationerr.KindOf(err))
}
