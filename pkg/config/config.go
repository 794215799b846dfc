package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the attestation service.
type Config struct {
	// Civil registry endpoint the prover connects to over MPC-TLS.
	CivilRegistryDomain string // bare hostname; required by Validate, not read elsewhere (TLS ServerName comes from CivilRegistryURL's host)
	CivilRegistryURL    string // full HTTPS URL the pre-flight check and the prover both POST to

	// HTTP front-end.
	AllowedOrigin string
	BindAddress   string // PORT takes precedence over BIND_ADDRESS, matching the original service
	MetricsAddr   string // empty means serve /metrics on BindAddress

	// Optional on-chain submission. RPC_URL, VerifierPrivateKey and
	// VerifierContractAddr must all be set to enable it; otherwise
	// GenerateDeathProof returns the bundle without a transaction hash.
	RPCURL               string
	ChainID              int64
	VerifierPrivateKey   string
	VerifierContractAddr string
	VerifierGasLimit     uint64

	// Proof pipeline.
	ProofDeadline time.Duration

	// Ambient.
	LogLevel string
}

// Load reads configuration from environment variables. Required values have
// no defaults; call Validate() to confirm they were actually set.
func Load() (*Config, error) {
	bindAddr := getEnv("PORT", "")
	if bindAddr != "" {
		bindAddr = "0.0.0.0:" + bindAddr
	} else {
		bindAddr = getEnv("BIND_ADDRESS", "0.0.0.0:8080")
	}

	cfg := &Config{
		CivilRegistryDomain: getEnv("CIVIL_REGISTRY_DOMAIN", ""),
		CivilRegistryURL:    getEnv("CIVIL_REGISTRY_URL", ""),

		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "*"),
		BindAddress:   bindAddr,
		MetricsAddr:   getEnv("METRICS_ADDR", ""),

		RPCURL:               getEnv("RPC_URL", ""),
		ChainID:              getEnvInt64("CHAIN_ID", 11155111),
		VerifierPrivateKey:   getEnv("VERIFIER_PRIVATE_KEY", ""),
		VerifierContractAddr: getEnv("VERIFIER_CONTRACT_ADDRESS", ""),
		VerifierGasLimit:     uint64(getEnvInt("VERIFIER_GAS_LIMIT", 500_000)),

		ProofDeadline: getEnvDuration("PROOF_DEADLINE", 60*time.Second),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// Validate checks that the configuration required to serve requests is
// present. On-chain submission fields are optional as a group: either all
// three are set, or none are.
func (c *Config) Validate() error {
	var errs []string

	if c.CivilRegistryURL == "" {
		errs = append(errs, "CIVIL_REGISTRY_URL is required but not set")
	}
	if c.CivilRegistryDomain == "" {
		errs = append(errs, "CIVIL_REGISTRY_DOMAIN is required but not set")
	}
	if c.CivilRegistryURL != "" && !strings.HasPrefix(c.CivilRegistryURL, "https://") {
		errs = append(errs, "CIVIL_REGISTRY_URL must use https://")
	}

	onChainFieldsSet := c.RPCURL != "" || c.VerifierPrivateKey != "" || c.VerifierContractAddr != ""
	if onChainFieldsSet && !c.OnChainSubmissionEnabled() {
		errs = append(errs, "RPC_URL, VERIFIER_PRIVATE_KEY and VERIFIER_CONTRACT_ADDRESS must be set together or not at all")
	}

	if c.ProofDeadline <= 0 {
		errs = append(errs, "PROOF_DEADLINE must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// OnChainSubmissionEnabled reports whether enough configuration was provided
// to wire an Ethereum client for the final submission step.
func (c *Config) OnChainSubmissionEnabled() bool {
	return c.RPCURL != "" && c.VerifierPrivateKey != "" && c.VerifierContractAddr != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
