package mpctls

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/proofheir/attestor/pkg/attestation/zkp"
	"github.com/proofheir/attestor/pkg/witness"
)

// registryStub serves a minimal civil-registry-shaped JSON response.
func registryStub(vigencia string) *httptest.Server {
	return httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"nuip":454545454,"vigencia":"%s"}`, vigencia)
	}))
}

// TestProveAndVerifyEndToEnd runs the full prover/verifier session against a
// stub registry server and a shared Groth16 engine (both sides trust the
// same verifying key, mirroring a deployment where the verifying key comes
// from one published trusted setup rather than being renegotiated
// per-session).
func TestProveAndVerifyEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("groth16 setup is slow; skipped under -short")
	}

	server := registryStub("Fallecido")
	defer server.Close()
	testRootCAs = server.Client().Transport.(*http.Transport).TLSClientConfig.RootCAs
	defer func() { testRootCAs = nil }()

	engine := zkp.NewEngine()
	require.NoError(t, engine.Initialize())

	proverChans, verifierChans := NewChannelPair()

	var heir [witness.AddressLen]byte
	var salt [witness.SaltLen]byte
	for i := range heir {
		heir[i] = byte(0x20 + i)
	}
	for i := range salt {
		salt[i] = byte(i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)

	var proveErr, verifyErr error
	var transcript *AuthenticatedTranscript

	go func() {
		defer wg.Done()
		_, proveErr = Prove(ctx, proverChans, engine, server.Listener.Addr().String(), server.URL, heir, "454545454", salt)
	}()
	go func() {
		defer wg.Done()
		transcript, verifyErr = Verify(ctx, verifierChans, engine)
	}()
	wg.Wait()

	require.NoError(t, proveErr)
	require.NoError(t, verifyErr)
	require.NotNil(t, transcript)
	require.Equal(t, "BundleValidated", transcript.State)
	require.Equal(t, heir, transcript.Bundle.Public.Recipient)
}

func TestNegotiateLimitsSucceedsBetweenMatchedPeers(t *testing.T) {
	proverChans, verifierChans := NewChannelPair()

	var wg sync.WaitGroup
	wg.Add(2)

	var errA, errB error
	go func() {
		defer wg.Done()
		errA = negotiateLimits(context.Background(), newJSONChannel(proverChans.Main))
	}()
	go func() {
		defer wg.Done()
		errB = negotiateLimits(context.Background(), newJSONChannel(verifierChans.Main))
	}()
	wg.Wait()

	require.NoError(t, errA)
	require.NoError(t, errB)
}
