// Package mpctls implements the two-party TLS session that produces an
// attested, selectively-disclosed transcript of the civil-registry HTTPS
// call: the prover dials the registry and talks real TLS to it, while the
// verifier only ever sees what the prover reveals plus a commitment to the
// vigencia status value; the rest of the received bytes are neither revealed
// nor committed.
//
// No MPC-TLS library exists anywhere in the retrieval pack this was built
// from. This package models the protocol structurally instead of as a
// literal joint garbled-circuit computation: a real crypto/tls client runs
// on the prover side, and the prover/verifier exchange protocol messages
// (limits, reveal plan, proof bundle) over a pair of net.Pipe-backed
// channels. See DESIGN.md's "MPC-TLS: real two-party protocol vs. structural
// model" for the reasoning.
package mpctls

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/proofheir/attestor/pkg/attestation/zkp"
	"github.com/proofheir/attestor/pkg/attestationerr"
	"github.com/proofheir/attestor/pkg/codec"
	"github.com/proofheir/attestor/pkg/transcript"
	"github.com/proofheir/attestor/pkg/witness"
)

// RegistryClientIP is a fixed placeholder the civil registry's API requires
// in the request body; it is not the caller's real address. The preflight
// check in pkg/attestation reuses this constant so the two requests never
// drift apart.
const RegistryClientIP = "143.137.96.53"

const (
	maxSentBytes = 4096
	maxRecvBytes = 16384
)

// protocolLimits is negotiated by both parties before anything else
// happens: a mismatch means the two sides were built against incompatible
// protocol versions.
type protocolLimits struct {
	MaxSent int `json:"max_sent"`
	MaxRecv int `json:"max_recv"`
}

// Commitment is one disclosed cryptographic commitment over a transcript
// direction the verifier did not get the plaintext bytes for.
type Commitment struct {
	Direction string   `json:"direction"` // "Sent" or "Received"
	Algorithm string   `json:"algorithm"` // "SHA-256"
	Hash      [32]byte `json:"hash"`
}

// RevealPlan is what the prover discloses to the verifier at the end of a
// session: the full sent transcript (the request is public, nothing to
// hide), the length of the received transcript, and one commitment to the
// zero-padded vigencia value. The other undisclosed received bytes are not
// committed.
type RevealPlan struct {
	ServerName     string       `json:"server_name"`
	SentTranscript []byte       `json:"sent_transcript"`
	RecvLength     int          `json:"recv_length"`
	Commitments    []Commitment `json:"commitments"`
}

// ZKProofBundle is what the prover hands the verifier over the side
// channel: the produced proof in both its structured form (for the
// verifier's own Groth16.Verify call) and its Solidity-calldata form (for
// on-chain submission), the verifying key it was generated against, and a
// redundant copy of the public inputs so the verifier can cross-check the
// status commitment without re-deriving it from a witness it never sees.
type ZKProofBundle struct {
	VKBytes    []byte             `json:"vk_bytes"`
	Proof      zkp.Proof          `json:"proof"`
	ProofBytes []byte             `json:"proof_bytes"`
	Public     codec.PublicInputs `json:"public_inputs"`
}

// AuthenticatedTranscript is the verifier's output: enough to either submit
// the proof on-chain or reject the session.
type AuthenticatedTranscript struct {
	ServerName string
	Commitment Commitment
	Bundle     ZKProofBundle
	State      string
}

// Channels is the pair of duplex byte pipes the prover and verifier talk
// over: Main carries protocol negotiation and the reveal plan, Side carries
// the proof bundle, kept separate so a verifier that only watches Main
// never sees proof material before the reveal plan is final.
type Channels struct {
	Main net.Conn
	Side net.Conn
}

// NewChannelPair builds the two matched halves of a session: one set of
// Channels for the prover, one for the verifier, connected by net.Pipe.
func NewChannelPair() (prover *Channels, verifier *Channels) {
	mainP, mainV := net.Pipe()
	sideP, sideV := net.Pipe()
	return &Channels{Main: mainP, Side: sideP}, &Channels{Main: mainV, Side: sideV}
}

// jsonChannel is a persistent JSON encoder/decoder pair over one net.Conn,
// used for both the limits negotiation and later messages on the same
// channel.
type jsonChannel struct {
	enc *json.Encoder
	dec *json.Decoder
}

func newJSONChannel(conn net.Conn) *jsonChannel {
	return &jsonChannel{enc: json.NewEncoder(conn), dec: json.NewDecoder(conn)}
}

func (c *jsonChannel) send(ctx context.Context, v interface{}) error {
	done := make(chan error, 1)
	go func() { done <- c.enc.Encode(v) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (c *jsonChannel) recv(ctx context.Context, v interface{}) error {
	done := make(chan error, 1)
	go func() { done <- c.dec.Decode(v) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

var (
	rootPoolOnce sync.Once
	rootPool     *x509.CertPool
	rootPoolErr  error
)

// testRootCAs lets _test.go files in this package point Prove at a test
// server's self-signed CA instead of the real system store.
var testRootCAs *x509.CertPool

// systemRoots loads the native root-certificate store once per process.
func systemRoots() (*x509.CertPool, error) {
	if testRootCAs != nil {
		return testRootCAs, nil
	}
	rootPoolOnce.Do(func() {
		rootPool, rootPoolErr = x509.SystemCertPool()
	})
	return rootPool, rootPoolErr
}

// negotiateLimits exchanges protocolLimits with the peer. The send and the
// recv must run concurrently: net.Pipe has no internal buffering, so a
// Write only returns once the peer's Read consumes it. Both sides call
// negotiateLimits at the same time, so doing send-then-recv here would have
// each side's write wait on a read the peer never reaches until its own
// write returns first — a symmetric deadlock.
func negotiateLimits(ctx context.Context, ch *jsonChannel) error {
	own := protocolLimits{MaxSent: maxSentBytes, MaxRecv: maxRecvBytes}

	sendDone := make(chan error, 1)
	go func() { sendDone <- ch.send(ctx, own) }()

	var peer protocolLimits
	recvErr := ch.recv(ctx, &peer)
	sendErr := <-sendDone

	if sendErr != nil {
		return attestationerr.Wrap(attestationerr.ExternalServiceError, "send protocol limits", sendErr)
	}
	if recvErr != nil {
		return attestationerr.Wrap(attestationerr.ExternalServiceError, "receive protocol limits", recvErr)
	}
	if peer != own {
		return attestationerr.New(attestationerr.ExternalServiceError, "protocol limit mismatch with peer")
	}
	return nil
}

// Prove runs the prover side of an attestation session: it dials the civil
// registry over real TLS, requests the record for nuip, commits to the
// disclosed status without revealing the raw bytes to the verifier, derives
// the public values, and produces a Groth16 proof via engine.
func Prove(
	ctx context.Context,
	chans *Channels,
	engine *zkp.Engine,
	serverAddr string,
	registryURL string,
	heir [witness.AddressLen]byte,
	nuip string,
	salt [witness.SaltLen]byte,
) (*ZKProofBundle, error) {
	// Phase 1: setup.
	parsed, err := url.Parse(registryURL)
	if err != nil {
		return nil, attestationerr.Wrap(attestationerr.InvalidInput, "parse registry URL", err)
	}
	if parsed.Scheme != "https" {
		return nil, attestationerr.New(attestationerr.InvalidInput, "registry URL must use https")
	}
	host := parsed.Hostname()

	roots, err := systemRoots()
	if err != nil {
		return nil, attestationerr.Wrap(attestationerr.ExternalServiceError, "load system root store", err)
	}

	mainChan := newJSONChannel(chans.Main)
	if err := negotiateLimits(ctx, mainChan); err != nil {
		return nil, err
	}

	// Phase 2: handshake.
	dialer := &net.Dialer{}
	tcpConn, err := dialer.DialContext(ctx, "tcp", serverAddr)
	if err != nil {
		return nil, attestationerr.Wrap(attestationerr.ExternalServiceError, "dial registry", err)
	}
	tlsConn := tls.Client(tcpConn, &tls.Config{RootCAs: roots, ServerName: host})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		tcpConn.Close()
		return nil, attestationerr.Wrap(attestationerr.ExternalServiceError, "tls handshake", err)
	}
	defer tlsConn.Close()

	// Phase 3: request.
	nuipNum, err := strconv.ParseUint(nuip, 10, 64)
	if err != nil {
		return nil, attestationerr.Wrap(attestationerr.InvalidInput, "nuip must be numeric", err)
	}
	body, err := json.Marshal(map[string]interface{}{
		"nuip": nuipNum,
		"ip":   RegistryClientIP,
	})
	if err != nil {
		return nil, attestationerr.Wrap(attestationerr.Internal, "marshal request body", err)
	}

	path := parsed.Path
	if path == "" {
		path = "/"
	}
	var sentBuf bytes.Buffer
	fmt.Fprintf(&sentBuf, "POST %s HTTP/1.1\r\nHost: %s\r\nContent-Type: application/json\r\nContent-Length: %d\r\nConnection: close\r\n\r\n", path, host, len(body))
	sentBuf.Write(body)
	if len(sentBuf.Bytes()) > maxSentBytes {
		return nil, attestationerr.New(attestationerr.ExternalServiceError, "request exceeds negotiated sent-transcript limit")
	}
	if _, err := tlsConn.Write(sentBuf.Bytes()); err != nil {
		return nil, attestationerr.Wrap(attestationerr.ExternalServiceError, "write request", err)
	}

	var recvBuf bytes.Buffer
	reader := bufio.NewReader(&teeConn{conn: tlsConn, tee: &recvBuf})
	resp, err := http.ReadResponse(reader, nil)
	if err != nil {
		return nil, attestationerr.Wrap(attestationerr.ExternalServiceError, "read registry response", err)
	}
	// Fully drain the body: every byte read from resp.Body flows through
	// teeConn into recvBuf, which is what the transcript span locator
	// operates on below.
	if _, err := io.ReadAll(resp.Body); err != nil {
		resp.Body.Close()
		return nil, attestationerr.Wrap(attestationerr.ExternalServiceError, "read registry response body", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, attestationerr.New(attestationerr.ExternalServiceError, fmt.Sprintf("registry returned status %d", resp.StatusCode))
	}

	if recvBuf.Len() > maxRecvBytes {
		return nil, attestationerr.New(attestationerr.ExternalServiceError, "response exceeds negotiated recv-transcript limit")
	}

	// Phase 4: reveal plan — locate and commit to the vigencia span without
	// disclosing the surrounding bytes.
	recvBytes := recvBuf.Bytes()
	start, end, err := transcript.LocateVigencia(recvBytes)
	if err != nil {
		return nil, err
	}
	statusPadded, err := witness.PadStatus(recvBytes[start:end])
	if err != nil {
		return nil, attestationerr.Wrap(attestationerr.CommitmentError, "pad status value", err)
	}

	var blinder [witness.BlinderLen]byte
	if _, err := rand.Read(blinder[:]); err != nil {
		return nil, attestationerr.Wrap(attestationerr.Internal, "generate blinder", err)
	}
	committedHash := witness.DeriveStatusCommitment(statusPadded, blinder)

	plan := RevealPlan{
		ServerName:     host,
		SentTranscript: sentBuf.Bytes(),
		RecvLength:     len(recvBytes),
		Commitments: []Commitment{{
			Direction: "Received",
			Algorithm: "SHA-256",
			Hash:      committedHash,
		}},
	}

	// Phase 5: finalize — hand the plan to the verifier over the main
	// channel.
	if err := mainChan.send(ctx, plan); err != nil {
		return nil, attestationerr.Wrap(attestationerr.CommitmentError, "send reveal plan", err)
	}

	// Phase 6: local cross-check.
	check := sha256.Sum256(append(append([]byte{}, statusPadded[:]...), blinder[:]...))
	if check != committedHash {
		return nil, attestationerr.New(attestationerr.CommitmentError, "status commitment does not match local recomputation")
	}

	// Phase 7: derive publics.
	domainPadded, err := witness.PadDomain(host)
	if err != nil {
		return nil, attestationerr.Wrap(attestationerr.ProofGenerationError, "pad domain", err)
	}
	nuipPadded, err := witness.PadNUIP(nuip)
	if err != nil {
		return nil, attestationerr.Wrap(attestationerr.InvalidInput, "pad nuip", err)
	}
	serverHash := witness.DeriveServerHash(domainPadded)
	idCommitment := witness.DeriveIDCommitment(nuipPadded, salt)

	// Phase 8: witness assembly and prove.
	row := witness.Row{
		Recipient:        heir,
		ServerHash:       serverHash,
		IDCommitment:     idCommitment,
		StatusCommitment: committedHash,
		NUIPPadded:       nuipPadded,
		Salt:             salt,
		DomainPadded:     domainPadded,
		StatusPadded:     statusPadded,
		Blinder:          blinder,
	}
	proof, err := engine.GenerateProof(row)
	if err != nil {
		return nil, err
	}
	vkBytes, err := engine.ExportVerifyingKeyBytes()
	if err != nil {
		return nil, attestationerr.Wrap(attestationerr.ProofGenerationError, "export verifying key", err)
	}

	bundle := ZKProofBundle{
		VKBytes:    vkBytes,
		Proof:      *proof,
		ProofBytes: proof.ToSolidityCalldataRaw(),
		Public: codec.PublicInputs{
			Recipient:        heir,
			ServerHash:       serverHash,
			IDCommitment:     idCommitment,
			StatusCommitment: committedHash,
		},
	}

	// Phase 9: side-channel.
	sideChan := newJSONChannel(chans.Side)
	if err := sideChan.send(ctx, bundle); err != nil {
		return nil, attestationerr.Wrap(attestationerr.ProofGenerationError, "send proof bundle", err)
	}
	chans.Side.Close()

	return &bundle, nil
}

// teeConn wraps a net.Conn, copying every byte read into tee. Used instead
// of io.TeeReader directly so http.ReadResponse's bufio.Reader still sees a
// plain io.Reader.
type teeConn struct {
	conn net.Conn
	tee  *bytes.Buffer
}

func (t *teeConn) Read(p []byte) (int, error) {
	n, err := t.conn.Read(p)
	if n > 0 {
		t.tee.Write(p[:n])
	}
	return n, err
}

// Verify runs the verifier side of an attestation session. It never sees
// the registry's raw response bytes, only the prover's reveal plan and
// proof bundle, and independently checks that the two are consistent with
// each other and with the circuit's own verifying key before accepting the
// session.
func Verify(ctx context.Context, chans *Channels, engine *zkp.Engine) (*AuthenticatedTranscript, error) {
	mainChan := newJSONChannel(chans.Main)
	if err := negotiateLimits(ctx, mainChan); err != nil {
		return nil, err
	}

	var plan RevealPlan
	if err := mainChan.recv(ctx, &plan); err != nil {
		return nil, attestationerr.Wrap(attestationerr.CommitmentError, "receive reveal plan", err)
	}

	var received *Commitment
	for i := range plan.Commitments {
		c := plan.Commitments[i]
		if c.Direction == "Received" && c.Algorithm == "SHA-256" {
			if received != nil {
				return nil, attestationerr.New(attestationerr.CommitmentError, "more than one received-direction commitment")
			}
			received = &plan.Commitments[i]
		}
	}
	if received == nil {
		return nil, attestationerr.New(attestationerr.CommitmentError, "no SHA-256 received-direction commitment present")
	}

	sideChan := newJSONChannel(chans.Side)
	var bundle ZKProofBundle
	if err := sideChan.recv(ctx, &bundle); err != nil {
		return nil, attestationerr.Wrap(attestationerr.CommitmentError, "receive proof bundle", err)
	}
	if len(bundle.ProofBytes) == 0 {
		return nil, attestationerr.New(attestationerr.CommitmentError, "empty proof bundle")
	}

	expectedVK, err := engine.ExportVerifyingKeyBytes()
	if err != nil {
		return nil, attestationerr.Wrap(attestationerr.ProofVerificationError, "export local verifying key", err)
	}
	if !bytes.Equal(expectedVK, bundle.VKBytes) {
		return nil, attestationerr.New(attestationerr.ProofVerificationError, "bundle verifying key does not match local circuit")
	}

	flat := codec.Flatten(codec.Encode(bundle.Public))
	extracted, err := codec.ExtractStatusCommitment(flat)
	if err != nil {
		return nil, err
	}
	if extracted != received.Hash {
		return nil, attestationerr.New(attestationerr.CommitmentError, "status commitment in bundle does not match reveal plan")
	}

	bundle.Proof.Recipient = bundle.Public.Recipient
	bundle.Proof.ServerHash = bundle.Public.ServerHash
	bundle.Proof.IDCommitment = bundle.Public.IDCommitment
	bundle.Proof.StatusCommitment = bundle.Public.StatusCommitment

	ok, err := engine.VerifyProofLocally(&bundle.Proof)
	if err != nil {
		return nil, attestationerr.Wrap(attestationerr.ProofVerificationError, "verify proof", err)
	}
	if !ok {
		return nil, attestationerr.New(attestationerr.ProofVerificationError, "proof failed Groth16 verification")
	}

	return &AuthenticatedTranscript{
		ServerName: plan.ServerName,
		Commitment: *received,
		Bundle:     bundle,
		State:      "BundleValidated",
	}, nil
}
