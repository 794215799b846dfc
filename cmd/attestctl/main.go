// Command attestctl is a standalone harness for the death-attestation
// pipeline: it can run the full MPC-TLS/SNARK pipeline against a civil
// registry without a running attestord, and it can redact a captured
// transcript for safe display.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/proofheir/attestor/pkg/attestation"
	"github.com/proofheir/attestor/pkg/attestation/zkp"
	"github.com/proofheir/attestor/pkg/ethereum"
	"github.com/proofheir/attestor/pkg/witness"
)

func main() {
	app := &cli.App{
		Name:  "attestctl",
		Usage: "generate and inspect death attestation proofs",
		Commands: []*cli.Command{
			generateProofCommand(),
			redactTranscriptCommand(),
			generateKeyCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "attestctl:", err)
		os.Exit(1)
	}
}

func generateProofCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate-proof",
		Usage: "run the MPC-TLS/SNARK pipeline against a civil registry and print the resulting bundle",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "recipient",
				Value: "abababababababababababababababababababab",
				Usage: "beneficiary address, 40 hex characters",
			},
			&cli.StringFlag{
				Name:  "nuip",
				Value: "454545454",
				Usage: "national ID number of the person being attested",
			},
			&cli.StringFlag{
				Name:  "salt",
				Value: strings.Repeat("11", 32),
				Usage: "id-commitment salt, 64 hex characters",
			},
			&cli.StringFlag{
				Name:  "testator-address",
				Value: "abababababababababababababababababababab",
				Usage: "testator address bound into the request (passed to proveDeathAndRegisterHeir when on-chain submission is enabled)",
			},
			&cli.StringFlag{
				Name:  "registry-url",
				Value: "https://web-production-05160.up.railway.app/VigenciaCedula/consulta",
				Usage: "civil registry HTTPS endpoint",
			},
			&cli.DurationFlag{
				Name:  "deadline",
				Value: 60 * time.Second,
				Usage: "overall proof-generation timeout",
			},
		},
		Action: func(c *cli.Context) error {
			recipient, err := decodeFixedHexArg(c.String("recipient"), witness.AddressLen)
			if err != nil {
				return fmt.Errorf("recipient: %w", err)
			}
			testator, err := decodeFixedHexArg(c.String("testator-address"), witness.AddressLen)
			if err != nil {
				return fmt.Errorf("testator-address: %w", err)
			}
			salt, err := decodeFixedHexArg(c.String("salt"), witness.SaltLen)
			if err != nil {
				return fmt.Errorf("salt: %w", err)
			}

			fmt.Fprintln(os.Stderr, "compiling circuit and running Groth16 trusted setup...")
			zkpEngine := zkp.NewEngine()
			if err := zkpEngine.Initialize(); err != nil {
				return fmt.Errorf("initialize zkp engine: %w", err)
			}

			engine, err := attestation.NewEngine(attestation.Config{
				ZKPEngine:     zkpEngine,
				RegistryURL:   c.String("registry-url"),
				ProofDeadline: c.Duration("deadline"),
			})
			if err != nil {
				return fmt.Errorf("build attestation engine: %w", err)
			}

			var req attestation.Request
			copy(req.Recipient[:], recipient)
			copy(req.TestatorAddress[:], testator)
			copy(req.Salt[:], salt)
			req.NUIP = c.String("nuip")

			fmt.Fprintln(os.Stderr, "running pre-flight check and MPC-TLS session...")
			bundle, err := engine.GenerateDeathProof(context.Background(), req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(bundle)
		},
	}
}

func redactTranscriptCommand() *cli.Command {
	return &cli.Command{
		Name:      "redact-transcript",
		Usage:     "render a captured transcript with non-printable bytes redacted",
		ArgsUsage: "[hex-encoded-bytes]",
		Action: func(c *cli.Context) error {
			var raw []byte
			if arg := c.Args().First(); arg != "" {
				decoded, err := hex.DecodeString(strings.TrimPrefix(arg, "0x"))
				if err != nil {
					return fmt.Errorf("decode transcript argument: %w", err)
				}
				raw = decoded
			} else {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("read transcript from stdin: %w", err)
				}
				raw = data
			}

			fmt.Println(redactTranscript(raw))
			return nil
		},
	}
}

func generateKeyCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate-key",
		Usage: "generate a relayer private key for VERIFIER_PRIVATE_KEY and print its address",
		Action: func(c *cli.Context) error {
			priv, err := ethereum.GeneratePrivateKey()
			if err != nil {
				return fmt.Errorf("generate private key: %w", err)
			}
			addr, err := ethereum.GetPublicAddress(strings.TrimPrefix(ethereum.PrivateKeyToHex(priv), "0x"))
			if err != nil {
				return fmt.Errorf("derive public address: %w", err)
			}

			fmt.Printf("VERIFIER_PRIVATE_KEY=%s\n", ethereum.PrivateKeyToHex(priv))
			fmt.Printf("address=%s\n", addr.Hex())
			return nil
		},
	}
}

// redactTranscript renders bytes as UTF-8, replacing NUL bytes with '*' —
// the same display convention the original prover used to show what had
// and had not been revealed.
func redactTranscript(raw []byte) string {
	return strings.ReplaceAll(string(raw), "\x00", "*")
}

func decodeFixedHexArg(s string, n int) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != n {
		return nil, fmt.Errorf("expected %d bytes, got %d", n, len(b))
	}
	return b, nil
}
