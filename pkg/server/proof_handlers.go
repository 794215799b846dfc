// Package server implements the HTTP front-end: health/metrics probes and
// the proof-generation endpoint, adapted from the teacher's handler idiom
// (method-check, writeJSON/writeError helpers, one handler struct per
// concern) onto the death-attestation pipeline.
package server

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/proofheir/attestor/pkg/attestation"
	"github.com/proofheir/attestor/pkg/attestationerr"
	"github.com/proofheir/attestor/pkg/witness"
)

// ProofHandlers serves the proof-generation endpoint.
type ProofHandlers struct {
	engine  *attestation.Engine
	metrics *Metrics // nil disables metrics recording
	logger  zerolog.Logger
}

// NewProofHandlers creates the proof-generation handler. metrics may be nil;
// pass zerolog.Nop() for logger in tests that don't care about log output.
func NewProofHandlers(engine *attestation.Engine, metrics *Metrics, logger zerolog.Logger) *ProofHandlers {
	return &ProofHandlers{engine: engine, metrics: metrics, logger: logger}
}

// generateProofRequest is the wire shape of POST /api/generate-proof:
// recipient, salt and testator_address are hex strings, with or without a
// 0x prefix; nuip is an ASCII decimal string.
type generateProofRequest struct {
	Recipient       string `json:"recipient"`
	NUIP            string `json:"nuip"`
	Salt            string `json:"salt"`
	TestatorAddress string `json:"testator_address"`
}

type generateProofResponse struct {
	Proof        string    `json:"proof"`
	PublicInputs [116]string `json:"public_inputs"`
}

// HandleGenerateProof handles POST /api/generate-proof.
func (h *ProofHandlers) HandleGenerateProof(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, attestationerr.New(attestationerr.InvalidInput, "only POST is allowed"))
		return
	}

	requestID := uuid.New().String()

	var body generateProofRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, attestationerr.Wrap(attestationerr.InvalidInput, "decode request body", err))
		return
	}

	req, err := parseGenerateProofRequest(body)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.Info().Str("request_id", requestID).Str("nuip", body.NUIP).Msg("generate-proof")

	start := time.Now()
	bundle, err := h.engine.GenerateDeathProof(r.Context(), req)
	if h.metrics != nil {
		h.metrics.ObserveDuration(time.Since(start).Seconds())
	}
	if err != nil {
		h.logger.Error().Str("request_id", requestID).Err(err).Msg("generate-proof failed")
		if h.metrics != nil {
			h.metrics.ObserveOutcome(string(attestationerr.KindOf(err)))
		}
		h.writeError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveOutcome("success")
	}

	resp := generateProofResponse{
		Proof:        bundle.ProofHex,
		PublicInputs: bundle.PublicInputsHex,
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func parseGenerateProofRequest(body generateProofRequest) (attestation.Request, error) {
	var req attestation.Request

	recipient, err := decodeFixedHex(body.Recipient, witness.AddressLen)
	if err != nil {
		return req, attestationerr.Wrap(attestationerr.InvalidInput, "recipient", err)
	}
	copy(req.Recipient[:], recipient)

	testator, err := decodeFixedHex(body.TestatorAddress, witness.AddressLen)
	if err != nil {
		return req, attestationerr.Wrap(attestationerr.InvalidInput, "testator_address", err)
	}
	copy(req.TestatorAddress[:], testator)

	salt, err := decodeFixedHex(body.Salt, witness.SaltLen)
	if err != nil {
		return req, attestationerr.Wrap(attestationerr.InvalidInput, "salt", err)
	}
	copy(req.Salt[:], salt)

	if body.NUIP == "" {
		return req, attestationerr.New(attestationerr.InvalidInput, "nuip is required")
	}
	for _, c := range body.NUIP {
		if c < '0' || c > '9' {
			return req, attestationerr.New(attestationerr.InvalidInput, "nuip must be ASCII decimal")
		}
	}
	req.NUIP = body.NUIP

	return req, nil
}

func decodeFixedHex(s string, n int) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != n {
		return nil, attestationerr.New(attestationerr.InvalidInput, "unexpected byte length")
	}
	return b, nil
}

func (h *ProofHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Msg("error encoding response")
	}
}

func (h *ProofHandlers) writeError(w http.ResponseWriter, err error) {
	kind := attestationerr.KindOf(err)
	h.writeJSON(w, attestationerr.HTTPStatus(kind), map[string]interface{}{
		"error": map[string]string{
			"code":    string(kind),
			"message": err.Error(),
		},
	})
}
