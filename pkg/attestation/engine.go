// Package attestation is the top-level bridge: it runs the pre-flight
// check, opens the MPC-TLS session, drives the prover and verifier
// concurrently, and assembles the final proof bundle for the HTTP
// front-end (and, optionally, submits it on-chain).
package attestation

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/proofheir/attestor/pkg/attestation/zkp"
	"github.com/proofheir/attestor/pkg/attestationerr"
	"github.com/proofheir/attestor/pkg/codec"
	"github.com/proofheir/attestor/pkg/ethereum"
	"github.com/proofheir/attestor/pkg/mpctls"
	"github.com/proofheir/attestor/pkg/witness"
)

// subjectAliveValue is the registry's vigencia value for a living subject;
// seeing it short-circuits the whole session (§4.F).
const subjectAliveValue = "Vigente (Vivo)"

const defaultProofDeadline = 60 * time.Second

// Request is the inbound request to generate a death attestation proof.
type Request struct {
	Recipient       [witness.AddressLen]byte // beneficiary address, bound into the proof
	NUIP            string
	Salt            [witness.SaltLen]byte
	TestatorAddress [witness.AddressLen]byte // passed as the testator argument of proveDeathAndRegisterHeir on the configured verifier contract
}

// Bundle is the outward-facing result of a successful attestation: a hex
// proof and its 116 hex public-input field elements, ready for the HTTP
// response or on-chain calldata.
type Bundle struct {
	ProofHex         string
	PublicInputsHex  [codec.NumFields]string
	OnChainTxHash    string
	OnChainSubmitted bool
}

// Engine owns the process-wide, read-only state: the compiled circuit and
// keys, the registry endpoint, and (optionally) a blockchain client for the
// final submission step.
type Engine struct {
	zkpEngine     *zkp.Engine
	httpClient    *http.Client
	ethClient     *ethereum.Client
	registryURL   string
	serverAddr    string
	proofDeadline time.Duration
}

// Config configures Engine construction.
type Config struct {
	ZKPEngine     *zkp.Engine
	EthClient     *ethereum.Client // nil disables on-chain submission
	RegistryURL   string
	ProofDeadline time.Duration
}

// NewEngine builds the top-level attestation bridge. The ZKP engine must
// already be initialized (compiled circuit + trusted setup run once at
// process startup, per §5).
func NewEngine(cfg Config) (*Engine, error) {
	parsed, err := url.Parse(cfg.RegistryURL)
	if err != nil {
		return nil, attestationerr.Wrap(attestationerr.InvalidInput, "parse registry URL", err)
	}
	host := parsed.Hostname()
	port := parsed.Port()
	if port == "" {
		port = "443"
	}

	deadline := cfg.ProofDeadline
	if deadline <= 0 {
		deadline = defaultProofDeadline
	}

	return &Engine{
		zkpEngine:     cfg.ZKPEngine,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		ethClient:     cfg.EthClient,
		registryURL:   cfg.RegistryURL,
		serverAddr:    net.JoinHostPort(host, port),
		proofDeadline: deadline,
	}, nil
}

// GenerateDeathProof runs the pre-flight check, then the full MPC-TLS/SNARK
// pipeline, and returns the assembled bundle.
func (e *Engine) GenerateDeathProof(ctx context.Context, req Request) (*Bundle, error) {
	if err := e.preflightCheck(ctx, req.NUIP); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.proofDeadline)
	defer cancel()

	proverChans, verifierChans := mpctls.NewChannelPair()

	var wg sync.WaitGroup
	wg.Add(2)

	var transcript *mpctls.AuthenticatedTranscript
	errs := make(chan error, 2)

	go func() {
		defer wg.Done()
		if _, err := mpctls.Prove(ctx, proverChans, e.zkpEngine, e.serverAddr, e.registryURL, req.Recipient, req.NUIP, req.Salt); err != nil {
			errs <- err
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		t, err := mpctls.Verify(ctx, verifierChans, e.zkpEngine)
		if err != nil {
			errs <- err
			cancel()
			return
		}
		transcript = t
	}()

	wg.Wait()
	close(errs)
	for err := range errs {
		return nil, err
	}
	if transcript == nil {
		return nil, attestationerr.New(attestationerr.Internal, "attestation session produced no transcript")
	}

	bundle, err := e.assembleBundle(transcript)
	if err != nil {
		return nil, err
	}

	if e.ethClient != nil {
		if err := e.submitOnChain(ctx, req.TestatorAddress, transcript, bundle); err != nil {
			return nil, err
		}
	}

	return bundle, nil
}

// preflightCheck issues an ordinary HTTPS POST (no MPC-TLS) to short-circuit
// requests for subjects the registry already reports alive. It is an
// optimization, not a security boundary — the MPC-TLS path is authoritative.
func (e *Engine) preflightCheck(ctx context.Context, nuip string) error {
	nuipNum, err := strconv.ParseUint(nuip, 10, 64)
	if err != nil {
		return attestationerr.Wrap(attestationerr.InvalidInput, "nuip must be numeric", err)
	}
	body, err := json.Marshal(map[string]interface{}{
		"nuip": nuipNum,
		"ip":   mpctls.RegistryClientIP,
	})
	if err != nil {
		return attestationerr.Wrap(attestationerr.Internal, "marshal preflight body", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.registryURL, bytes.NewReader(body))
	if err != nil {
		return attestationerr.Wrap(attestationerr.Internal, "build preflight request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return attestationerr.Wrap(attestationerr.ExternalServiceError, "preflight request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return attestationerr.New(attestationerr.ExternalServiceError, fmt.Sprintf("preflight registry returned status %d", resp.StatusCode))
	}

	var parsed struct {
		Vigencia string `json:"vigencia"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return attestationerr.Wrap(attestationerr.ExternalServiceError, "decode preflight response", err)
	}
	if parsed.Vigencia == subjectAliveValue {
		return attestationerr.New(attestationerr.SubjectAlive, "registry reports subject is alive")
	}
	return nil
}

func (e *Engine) assembleBundle(transcript *mpctls.AuthenticatedTranscript) (*Bundle, error) {
	fields := codec.Encode(transcript.Bundle.Public)
	if len(fields) != codec.NumFields {
		return nil, attestationerr.New(attestationerr.Internal, "public input codec produced unexpected field count")
	}

	var bundle Bundle
	bundle.ProofHex = "0x" + hex.EncodeToString(transcript.Bundle.ProofBytes)
	for i, f := range fields {
		bundle.PublicInputsHex[i] = "0x" + hex.EncodeToString(f[:])
	}
	return &bundle, nil
}

func (e *Engine) submitOnChain(ctx context.Context, testator [witness.AddressLen]byte, transcript *mpctls.AuthenticatedTranscript, bundle *Bundle) error {
	fields := codec.Encode(transcript.Bundle.Public)
	txHash, err := e.ethClient.ProveDeathAndRegisterHeir(ctx, testator, transcript.Bundle.ProofBytes, fields)
	if err != nil {
		return attestationerr.Wrap(attestationerr.OnChainRejected, "submit proof on-chain", err)
	}
	bundle.OnChainSubmitted = true
	bundle.OnChainTxHash = txHash
	return nil
}
