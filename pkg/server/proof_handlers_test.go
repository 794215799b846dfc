package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/proofheir/attestor/pkg/attestation"
)

func TestHandleGenerateProofRejectsNonPost(t *testing.T) {
	handlers := NewProofHandlers(nil, nil, zerolog.Nop())

	methods := []string{http.MethodGet, http.MethodPut, http.MethodDelete}
	for _, method := range methods {
		req := httptest.NewRequest(method, "/api/generate-proof", nil)
		rr := httptest.NewRecorder()

		handlers.HandleGenerateProof(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("method %s: expected %d, got %d", method, http.StatusBadRequest, rr.Code)
		}
	}
}

func TestHandleGenerateProofRejectsMalformedBody(t *testing.T) {
	handlers := NewProofHandlers(nil, nil, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/generate-proof", strings.NewReader("not json"))
	rr := httptest.NewRecorder()

	handlers.HandleGenerateProof(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestHandleGenerateProofRejectsWrongLengthRecipient(t *testing.T) {
	handlers := NewProofHandlers(nil, nil, zerolog.Nop())

	body := generateProofRequest{
		Recipient:       "0xabab", // too short
		NUIP:            "454545454",
		Salt:            strings.Repeat("11", 32),
		TestatorAddress: strings.Repeat("ab", 20),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/generate-proof", bytes.NewReader(payload))
	rr := httptest.NewRecorder()

	handlers.HandleGenerateProof(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected %d, got %d: %s", http.StatusBadRequest, rr.Code, rr.Body.String())
	}
}

func TestHandleGenerateProofRejectsNonDecimalNUIP(t *testing.T) {
	handlers := NewProofHandlers(nil, nil, zerolog.Nop())

	body := generateProofRequest{
		Recipient:       strings.Repeat("ab", 20),
		NUIP:            "not-a-number",
		Salt:            strings.Repeat("11", 32),
		TestatorAddress: strings.Repeat("ab", 20),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/generate-proof", bytes.NewReader(payload))
	rr := httptest.NewRecorder()

	handlers.HandleGenerateProof(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected %d, got %d: %s", http.StatusBadRequest, rr.Code, rr.Body.String())
	}
}

func TestHandleGenerateProofPropagatesEngineErrorKind(t *testing.T) {
	engine, err := attestation.NewEngine(attestation.Config{RegistryURL: "https://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	handlers := NewProofHandlers(engine, NewMetrics(), zerolog.Nop())

	body := generateProofRequest{
		Recipient:       strings.Repeat("ab", 20),
		NUIP:            "454545454",
		Salt:            strings.Repeat("11", 32),
		TestatorAddress: strings.Repeat("ab", 20),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/generate-proof", bytes.NewReader(payload))
	rr := httptest.NewRecorder()

	handlers.HandleGenerateProof(rr, req)

	// Registry is unreachable, so the pre-flight POST fails and the handler
	// should map it to 502 per the error-kind table.
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected %d, got %d: %s", http.StatusBadGateway, rr.Code, rr.Body.String())
	}
}

func TestHandleHealthReturnsOK(t *testing.T) {
	h := NewHealthHandlers()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	h.HandleHealth(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rr.Code)
	}

	var parsed map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if parsed["status"] != "ok" {
		t.Errorf("expected status=ok, got %q", parsed["status"])
	}
}

func TestHandleHealthRejectsNonGet(t *testing.T) {
	h := NewHealthHandlers()

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rr := httptest.NewRecorder()

	h.HandleHealth(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected %d, got %d", http.StatusMethodNotAllowed, rr.Code)
	}
}

func TestMetricsHandlerServesPrometheusFormat(t *testing.T) {
	m := NewMetrics()
	m.ObserveOutcome("success")
	m.ObserveDuration(1.5)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	m.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "attestor_proof_requests_total") {
		t.Errorf("expected metrics body to contain attestor_proof_requests_total, got:\n%s", rr.Body.String())
	}
}
