// Command attestord serves the death-attestation HTTP API: it compiles the
// SNARK circuit once at startup, then serves /health, /metrics, and
// POST /api/generate-proof until it receives SIGINT/SIGTERM.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/proofheir/attestor/pkg/attestation"
	"github.com/proofheir/attestor/pkg/attestation/zkp"
	"github.com/proofheir/attestor/pkg/config"
	"github.com/proofheir/attestor/pkg/ethereum"
	"github.com/proofheir/attestor/pkg/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	log.Info().Msg("compiling circuit and running Groth16 trusted setup")
	zkpEngine := zkp.NewEngine()
	if err := zkpEngine.Initialize(); err != nil {
		log.Fatal().Err(err).Msg("initialize zkp engine")
	}
	log.Info().Msg("circuit ready")

	var ethClient *ethereum.Client
	if cfg.OnChainSubmissionEnabled() {
		ethClient, err = ethereum.NewClient(cfg.RPCURL, cfg.ChainID)
		if err != nil {
			log.Fatal().Err(err).Msg("connect to ethereum RPC")
		}
		if err := ethClient.ConfigureVerifierContract(cfg.VerifierContractAddr, cfg.VerifierPrivateKey, cfg.VerifierGasLimit); err != nil {
			log.Fatal().Err(err).Msg("configure verifier contract")
		}

		healthCtx, healthCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := ethClient.Health(healthCtx); err != nil {
			log.Warn().Err(err).Msg("ethereum RPC endpoint unreachable at startup")
		}
		healthCancel()

		log.Info().
			Str("rpc_url", cfg.RPCURL).
			Str("chain_id", ethClient.GetChainID().String()).
			Msg("on-chain submission enabled")
	} else {
		log.Info().Msg("on-chain submission disabled (RPC_URL/VERIFIER_PRIVATE_KEY/VERIFIER_CONTRACT_ADDRESS not fully set)")
	}

	engine, err := attestation.NewEngine(attestation.Config{
		ZKPEngine:     zkpEngine,
		EthClient:     ethClient,
		RegistryURL:   cfg.CivilRegistryURL,
		ProofDeadline: cfg.ProofDeadline,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("build attestation engine")
	}

	metrics := server.NewMetrics()
	proofHandlers := server.NewProofHandlers(engine, metrics, log.Logger)
	healthHandlers := server.NewHealthHandlers()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandlers.HandleHealth)
	mux.HandleFunc("/api/generate-proof", corsMiddleware(cfg.AllowedOrigin, proofHandlers.HandleGenerateProof))

	if cfg.MetricsAddr == "" {
		mux.Handle("/metrics", metrics.Handler())
	}

	httpServer := &http.Server{
		Addr:    cfg.BindAddress,
		Handler: mux,
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
		go func() {
			log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("metrics server")
			}
		}()
	}

	go func() {
		log.Info().Str("addr", cfg.BindAddress).Msg("attestord listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("metrics server shutdown")
		}
	}

	log.Info().Msg("attestord stopped")
}

// corsMiddleware echoes Access-Control-Allow-Origin, mirroring the original
// service's single-origin CORS convention (no preflight credentials support).
func corsMiddleware(allowedOrigin string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}
