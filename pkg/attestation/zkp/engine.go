package zkp

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	groth16_bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/proofheir/attestor/pkg/attestationerr"
	"github.com/proofheir/attestor/pkg/codec"
	"github.com/proofheir/attestor/pkg/witness"
)

// Engine owns the compiled circuit and Groth16 keys, and turns a witness
// row into a proof (or verifies one locally before it is submitted
// on-chain). Adapted from the teacher's BLSZKProver: same
// compile-once/prove-many shape, new circuit and witness layout.
type Engine struct {
	mu sync.RWMutex

	cs constraint.ConstraintSystem
	pk groth16.ProvingKey
	vk groth16.VerifyingKey

	initialized bool
}

// Proof is a generated Groth16 proof plus the public values it attests to,
// ready for local re-verification or on-chain submission.
type Proof struct {
	ProofA [2]*big.Int    `json:"proofA"`
	ProofB [2][2]*big.Int `json:"proofB"`
	ProofC [2]*big.Int    `json:"proofC"`

	Recipient        [witness.AddressLen]byte `json:"recipient"`
	ServerHash       [witness.HashLen]byte    `json:"serverHash"`
	IDCommitment     [witness.HashLen]byte    `json:"idCommitment"`
	StatusCommitment [witness.HashLen]byte    `json:"statusCommitment"`
}

func NewEngine() *Engine {
	return &Engine{}
}

// Initialize compiles DeathAttestationCircuit and runs the Groth16 trusted
// setup. One-time, can take several seconds.
func (e *Engine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return nil
	}

	var circuit DeathAttestationCircuit
	cs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit)
	if err != nil {
		return fmt.Errorf("compile circuit: %w", err)
	}
	e.cs = cs

	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return fmt.Errorf("groth16 setup: %w", err)
	}
	e.pk = pk
	e.vk = vk

	e.initialized = true
	return nil
}

// InitializeFromKeys loads a previously generated constraint system and
// proving/verification keys from disk, skipping the trusted setup.
func (e *Engine) InitializeFromKeys(csPath, pkPath, vkPath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return nil
	}

	csFile, err := os.Open(csPath)
	if err != nil {
		return fmt.Errorf("open constraint system: %w", err)
	}
	defer csFile.Close()
	e.cs = groth16.NewCS(ecc.BN254)
	if _, err := e.cs.ReadFrom(csFile); err != nil {
		return fmt.Errorf("read constraint system: %w", err)
	}

	pkFile, err := os.Open(pkPath)
	if err != nil {
		return fmt.Errorf("open proving key: %w", err)
	}
	defer pkFile.Close()
	e.pk = groth16.NewProvingKey(ecc.BN254)
	if _, err := e.pk.ReadFrom(pkFile); err != nil {
		return fmt.Errorf("read proving key: %w", err)
	}

	vkFile, err := os.Open(vkPath)
	if err != nil {
		return fmt.Errorf("open verification key: %w", err)
	}
	defer vkFile.Close()
	e.vk = groth16.NewVerifyingKey(ecc.BN254)
	if _, err := e.vk.ReadFrom(vkFile); err != nil {
		return fmt.Errorf("read verification key: %w", err)
	}

	e.initialized = true
	return nil
}

// SaveKeys persists the constraint system and keys for InitializeFromKeys.
func (e *Engine) SaveKeys(csPath, pkPath, vkPath string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.initialized {
		return errors.New("engine not initialized")
	}

	csFile, err := os.Create(csPath)
	if err != nil {
		return fmt.Errorf("create constraint system file: %w", err)
	}
	defer csFile.Close()
	if _, err := e.cs.WriteTo(csFile); err != nil {
		return fmt.Errorf("write constraint system: %w", err)
	}

	pkFile, err := os.Create(pkPath)
	if err != nil {
		return fmt.Errorf("create proving key file: %w", err)
	}
	defer pkFile.Close()
	if _, err := e.pk.WriteTo(pkFile); err != nil {
		return fmt.Errorf("write proving key: %w", err)
	}

	vkFile, err := os.Create(vkPath)
	if err != nil {
		return fmt.Errorf("create verification key file: %w", err)
	}
	defer vkFile.Close()
	if _, err := e.vk.WriteTo(vkFile); err != nil {
		return fmt.Errorf("write verification key: %w", err)
	}

	return nil
}

// GenerateProof proves row's witness against the circuit.
func (e *Engine) GenerateProof(row witness.Row) (*Proof, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.initialized {
		return nil, attestationerr.New(attestationerr.Internal, "zkp engine not initialized")
	}

	assignment := fullAssignment(row)

	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, attestationerr.Wrap(attestationerr.ProofGenerationError, "build witness", err)
	}

	proof, err := groth16.Prove(e.cs, e.pk, w)
	if err != nil {
		return nil, attestationerr.Wrap(attestationerr.ProofGenerationError, "groth16 prove", err)
	}

	zkProof, err := extractProofComponents(proof)
	if err != nil {
		return nil, attestationerr.Wrap(attestationerr.ProofGenerationError, "extract proof components", err)
	}

	zkProof.Recipient = row.Recipient
	zkProof.ServerHash = row.ServerHash
	zkProof.IDCommitment = row.IDCommitment
	zkProof.StatusCommitment = row.StatusCommitment

	return zkProof, nil
}

// VerifyProofLocally re-verifies a proof against the public inputs it
// carries, without touching the private witness. Used before submission so
// a bad proof never reaches the chain.
func (e *Engine) VerifyProofLocally(proof *Proof) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.initialized {
		return false, attestationerr.New(attestationerr.Internal, "zkp engine not initialized")
	}

	assignment := publicOnlyAssignment(proof)

	publicWitness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, attestationerr.Wrap(attestationerr.ProofVerificationError, "build public witness", err)
	}

	groth16Proof, err := reconstructProof(proof)
	if err != nil {
		return false, attestationerr.Wrap(attestationerr.ProofVerificationError, "reconstruct proof", err)
	}

	if err := groth16.Verify(groth16Proof, e.vk, publicWitness); err != nil {
		return false, nil
	}
	return true, nil
}

// fullAssignment builds the circuit assignment including private witness
// rows, for proving.
func fullAssignment(row witness.Row) *DeathAttestationCircuit {
	c := &DeathAttestationCircuit{}
	u8ArrayFromBytes(c.Recipient[:], row.Recipient[:])
	u8ArrayFromBytes(c.ServerHash[:], row.ServerHash[:])
	u8ArrayFromBytes(c.IDCommitment[:], row.IDCommitment[:])
	u8ArrayFromBytes(c.StatusCommitment[:], row.StatusCommitment[:])
	u8ArrayFromBytes(c.NUIPPadded[:], row.NUIPPadded[:])
	u8ArrayFromBytes(c.Salt[:], row.Salt[:])
	u8ArrayFromBytes(c.DomainPadded[:], row.DomainPadded[:])
	u8ArrayFromBytes(c.StatusPadded[:], row.StatusPadded[:])
	u8ArrayFromBytes(c.Blinder[:], row.Blinder[:])
	return c
}

// publicOnlyAssignment builds an assignment with only the public fields
// populated, for local re-verification.
func publicOnlyAssignment(proof *Proof) *DeathAttestationCircuit {
	c := &DeathAttestationCircuit{}
	u8ArrayFromBytes(c.Recipient[:], proof.Recipient[:])
	u8ArrayFromBytes(c.ServerHash[:], proof.ServerHash[:])
	u8ArrayFromBytes(c.IDCommitment[:], proof.IDCommitment[:])
	u8ArrayFromBytes(c.StatusCommitment[:], proof.StatusCommitment[:])
	return c
}

// ExportVerifyingKeyBytes serializes the verification key using gnark's own
// wire format, for byte-equality comparisons against a bundle's VK bytes.
// The comparison only matches between engines holding the same setup output
// (one shared engine, or keys loaded via InitializeFromKeys); two separate
// Initialize calls run two separate trusted setups and yield different keys.
func (e *Engine) ExportVerifyingKeyBytes() ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.initialized {
		return nil, attestationerr.New(attestationerr.Internal, "zkp engine not initialized")
	}

	var buf bytes.Buffer
	if _, err := e.vk.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("serialize verification key: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportVerificationKey exports the verification key in a Solidity-friendly
// shape (the same four curve-point groups every Groth16-on-BN254 verifier
// contract expects).
func (e *Engine) ExportVerificationKey() (*VerificationKeyExport, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.initialized {
		return nil, attestationerr.New(attestationerr.Internal, "zkp engine not initialized")
	}

	vkBN254, ok := e.vk.(*groth16_bn254.VerifyingKey)
	if !ok {
		return nil, errors.New("verification key is not BN254 type")
	}

	alpha1X, alpha1Y := new(big.Int), new(big.Int)
	vkBN254.G1.Alpha.X.BigInt(alpha1X)
	vkBN254.G1.Alpha.Y.BigInt(alpha1Y)

	beta2X0, beta2X1, beta2Y0, beta2Y1 := new(big.Int), new(big.Int), new(big.Int), new(big.Int)
	vkBN254.G2.Beta.X.A0.BigInt(beta2X0)
	vkBN254.G2.Beta.X.A1.BigInt(beta2X1)
	vkBN254.G2.Beta.Y.A0.BigInt(beta2Y0)
	vkBN254.G2.Beta.Y.A1.BigInt(beta2Y1)

	gamma2X0, gamma2X1, gamma2Y0, gamma2Y1 := new(big.Int), new(big.Int), new(big.Int), new(big.Int)
	vkBN254.G2.Gamma.X.A0.BigInt(gamma2X0)
	vkBN254.G2.Gamma.X.A1.BigInt(gamma2X1)
	vkBN254.G2.Gamma.Y.A0.BigInt(gamma2Y0)
	vkBN254.G2.Gamma.Y.A1.BigInt(gamma2Y1)

	delta2X0, delta2X1, delta2Y0, delta2Y1 := new(big.Int), new(big.Int), new(big.Int), new(big.Int)
	vkBN254.G2.Delta.X.A0.BigInt(delta2X0)
	vkBN254.G2.Delta.X.A1.BigInt(delta2X1)
	vkBN254.G2.Delta.Y.A0.BigInt(delta2Y0)
	vkBN254.G2.Delta.Y.A1.BigInt(delta2Y1)

	icPoints := make([][2]*big.Int, len(vkBN254.G1.K))
	for i, icPoint := range vkBN254.G1.K {
		icX, icY := new(big.Int), new(big.Int)
		icPoint.X.BigInt(icX)
		icPoint.Y.BigInt(icY)
		icPoints[i] = [2]*big.Int{icX, icY}
	}

	return &VerificationKeyExport{
		Alpha1: [2]*big.Int{alpha1X, alpha1Y},
		Beta2:  [2][2]*big.Int{{beta2X0, beta2X1}, {beta2Y0, beta2Y1}},
		Gamma2: [2][2]*big.Int{{gamma2X0, gamma2X1}, {gamma2Y0, gamma2Y1}},
		Delta2: [2][2]*big.Int{{delta2X0, delta2X1}, {delta2Y0, delta2Y1}},
		IC:     icPoints,
	}, nil
}

// VerificationKeyExport is the Solidity-compatible serialization of a
// Groth16 verification key.
type VerificationKeyExport struct {
	Alpha1 [2]*big.Int    `json:"alpha1"`
	Beta2  [2][2]*big.Int `json:"beta2"`
	Gamma2 [2][2]*big.Int `json:"gamma2"`
	Delta2 [2][2]*big.Int `json:"delta2"`
	IC     [][2]*big.Int  `json:"ic"`
}

// proofABI packs a Proof into calldata for an on-chain verifier contract
// taking the 116-element public-input array alongside the Groth16 points.
var proofABI = mustParseABI(`[{
	"name": "encodeProof",
	"type": "function",
	"inputs": [
		{"name": "proofA", "type": "uint256[2]"},
		{"name": "proofB", "type": "uint256[2][2]"},
		{"name": "proofC", "type": "uint256[2]"},
		{"name": "publicInputs", "type": "uint256[116]"}
	]
}]`)

func mustParseABI(abiJSON string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		panic(fmt.Sprintf("parse ABI: %v", err))
	}
	return parsed
}

// ToSolidityCalldata ABI-encodes the proof and its 116-element public-input
// array for an on-chain verifier call.
func (proof *Proof) ToSolidityCalldata() ([]byte, error) {
	pub := codec.PublicInputs{
		Recipient:        proof.Recipient,
		ServerHash:       proof.ServerHash,
		IDCommitment:     proof.IDCommitment,
		StatusCommitment: proof.StatusCommitment,
	}
	fields := codec.Encode(pub)

	publicInputs := [116]*big.Int{}
	for i, f := range fields {
		publicInputs[i] = new(big.Int).SetBytes(f[:])
	}

	proofA := [2]*big.Int{zeroIfNil(proof.ProofA[0]), zeroIfNil(proof.ProofA[1])}
	proofB := [2][2]*big.Int{
		{zeroIfNil(proof.ProofB[0][0]), zeroIfNil(proof.ProofB[0][1])},
		{zeroIfNil(proof.ProofB[1][0]), zeroIfNil(proof.ProofB[1][1])},
	}
	proofC := [2]*big.Int{zeroIfNil(proof.ProofC[0]), zeroIfNil(proof.ProofC[1])}

	encoded, err := proofABI.Pack("encodeProof", proofA, proofB, proofC, publicInputs)
	if err != nil {
		return nil, fmt.Errorf("abi pack proof: %w", err)
	}
	if len(encoded) < 4 {
		return nil, errors.New("encoded data too short")
	}
	return encoded[4:], nil
}

// ToSolidityCalldataRaw packs the proof as raw concatenated 32-byte words:
// A, B, C, then the 116 public-input field elements.
func (proof *Proof) ToSolidityCalldataRaw() []byte {
	pub := codec.PublicInputs{
		Recipient:        proof.Recipient,
		ServerHash:       proof.ServerHash,
		IDCommitment:     proof.IDCommitment,
		StatusCommitment: proof.StatusCommitment,
	}
	fields := codec.Encode(pub)

	encoded := make([]byte, 0, 8*32+len(fields)*32)
	encoded = append(encoded, padBigInt(proof.ProofA[0])...)
	encoded = append(encoded, padBigInt(proof.ProofA[1])...)
	encoded = append(encoded, padBigInt(proof.ProofB[0][0])...)
	encoded = append(encoded, padBigInt(proof.ProofB[0][1])...)
	encoded = append(encoded, padBigInt(proof.ProofB[1][0])...)
	encoded = append(encoded, padBigInt(proof.ProofB[1][1])...)
	encoded = append(encoded, padBigInt(proof.ProofC[0])...)
	encoded = append(encoded, padBigInt(proof.ProofC[1])...)
	encoded = append(encoded, codec.Flatten(fields)...)
	return encoded
}

// ProofHash returns a deduplication/caching key for the proof.
func (proof *Proof) ProofHash() [32]byte {
	h := sha256.New()
	h.Write(padBigInt(proof.ProofA[0]))
	h.Write(padBigInt(proof.ProofA[1]))
	h.Write(padBigInt(proof.ProofC[0]))
	h.Write(padBigInt(proof.ProofC[1]))
	h.Write(proof.ServerHash[:])
	h.Write(proof.IDCommitment[:])
	h.Write(proof.StatusCommitment[:])

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ToHex returns the proof's raw calldata as a hex string for debugging.
func (proof *Proof) ToHex() string {
	return hex.EncodeToString(proof.ToSolidityCalldataRaw())
}

func zeroIfNil(n *big.Int) *big.Int {
	if n == nil {
		return big.NewInt(0)
	}
	return n
}

func extractProofComponents(proof groth16.Proof) (*Proof, error) {
	proofBN254, ok := proof.(*groth16_bn254.Proof)
	if !ok {
		return nil, errors.New("proof is not BN254 type")
	}

	proofAX, proofAY := new(big.Int), new(big.Int)
	proofBN254.Ar.X.BigInt(proofAX)
	proofBN254.Ar.Y.BigInt(proofAY)

	proofBX0, proofBX1, proofBY0, proofBY1 := new(big.Int), new(big.Int), new(big.Int), new(big.Int)
	proofBN254.Bs.X.A0.BigInt(proofBX0)
	proofBN254.Bs.X.A1.BigInt(proofBX1)
	proofBN254.Bs.Y.A0.BigInt(proofBY0)
	proofBN254.Bs.Y.A1.BigInt(proofBY1)

	proofCX, proofCY := new(big.Int), new(big.Int)
	proofBN254.Krs.X.BigInt(proofCX)
	proofBN254.Krs.Y.BigInt(proofCY)

	return &Proof{
		ProofA: [2]*big.Int{proofAX, proofAY},
		ProofB: [2][2]*big.Int{{proofBX0, proofBX1}, {proofBY0, proofBY1}},
		ProofC: [2]*big.Int{proofCX, proofCY},
	}, nil
}

func reconstructProof(zkProof *Proof) (groth16.Proof, error) {
	proof := &groth16_bn254.Proof{}
	proof.Ar.X.SetBigInt(zkProof.ProofA[0])
	proof.Ar.Y.SetBigInt(zkProof.ProofA[1])
	proof.Bs.X.A0.SetBigInt(zkProof.ProofB[0][0])
	proof.Bs.X.A1.SetBigInt(zkProof.ProofB[0][1])
	proof.Bs.Y.A0.SetBigInt(zkProof.ProofB[1][0])
	proof.Bs.Y.A1.SetBigInt(zkProof.ProofB[1][1])
	proof.Krs.X.SetBigInt(zkProof.ProofC[0])
	proof.Krs.Y.SetBigInt(zkProof.ProofC[1])
	return proof, nil
}

func padBigInt(n *big.Int) []byte {
	if n == nil {
		return make([]byte, 32)
	}
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	result := make([]byte, 32)
	copy(result[32-len(b):], b)
	return result
}
