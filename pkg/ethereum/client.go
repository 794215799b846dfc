package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client represents an Ethereum client
type Client struct {
	client  *ethclient.Client
	chainID *big.Int
	url     string

	verifierContract common.Address
	verifierKey      string
	verifierGasLimit uint64
}

// NewClient creates a new Ethereum client
func NewClient(url string, chainID int64) (*Client, error) {
	client, err := ethclient.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum: %w", err)
	}

	return &Client{
		client:  client,
		chainID: big.NewInt(chainID),
		url:     url,
	}, nil
}

// ConfigureVerifierContract wires the on-chain verifier contract and signer
// that ProveDeathAndRegisterHeir submits to. The verifier key signs with the
// relayer's own funds; the proof content, not the sender, is what the
// contract checks.
func (c *Client) ConfigureVerifierContract(contractAddress, privateKeyHex string, gasLimit uint64) error {
	if !common.IsHexAddress(contractAddress) {
		return fmt.Errorf("invalid verifier contract address %q", contractAddress)
	}
	if gasLimit == 0 {
		gasLimit = 500_000
	}
	c.verifierContract = common.HexToAddress(contractAddress)
	c.verifierKey = privateKeyHex
	c.verifierGasLimit = gasLimit
	return nil
}

// GetPublicAddress gets the public address from a private key
func GetPublicAddress(privateKeyHex string) (common.Address, error) {
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to parse private key: %w", err)
	}

	publicKey := privateKey.Public()
	publicKeyECDSA, ok := publicKey.(*ecdsa.PublicKey)
	if !ok {
		return common.Address{}, fmt.Errorf("failed to cast public key to ECDSA")
	}

	address := crypto.PubkeyToAddress(*publicKeyECDSA)
	return address, nil
}

// GeneratePrivateKey generates a new private key
func GeneratePrivateKey() (*ecdsa.PrivateKey, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	return privateKey, nil
}

// PrivateKeyToHex converts a private key to hex string
func PrivateKeyToHex(privateKey *ecdsa.PrivateKey) string {
	privateKeyBytes := crypto.FromECDSA(privateKey)
	return fmt.Sprintf("0x%x", privateKeyBytes)
}

// WaitForTransaction waits for a transaction to be mined
func (c *Client) WaitForTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.client, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for transaction: %w", err)
	}
	return receipt, nil
}

// GetChainID returns the chain ID the client was configured with, logged at
// startup. It is not compared against the RPC endpoint's own chain ID.
func (c *Client) GetChainID() *big.Int {
	return c.chainID
}

// Health checks that the configured RPC endpoint is reachable. Called once
// at startup so a misconfigured RPC_URL surfaces as a log line before the
// first proof is ever submitted on-chain, rather than as an opaque failure
// mid-request.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("ethereum health check failed: %w", err)
	}
	return nil
}

// ContractCallResult represents the result of a contract call
type ContractCallResult struct {
	TransactionHash string    `json:"transaction_hash"`
	BlockNumber     uint64    `json:"block_number"`
	BlockHash       string    `json:"block_hash"`
	GasUsed         uint64    `json:"gas_used"`
	GasCost         *big.Int  `json:"gas_cost"`
	Success         bool      `json:"success"`
	Timestamp       time.Time `json:"timestamp"`
	ReturnData      []byte    `json:"return_data,omitempty"`
}

// SendContractTransactionWithRetry sends a contract transaction with retry logic for gas price escalation
func (c *Client) SendContractTransactionWithRetry(ctx context.Context, contractAddr common.Address, abiString string, privateKeyHex string, methodName string, gasLimit uint64, maxRetries int, params ...interface{}) (*ContractCallResult, error) {
	// Parse the contract ABI
	contractABI, err := abi.JSON(strings.NewReader(abiString))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	// Pack the method call
	callData, err := contractABI.Pack(methodName, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack method call: %w", err)
	}

	// Parse private key
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	// Get public address
	publicKeyECDSA := privateKey.Public().(*ecdsa.PublicKey)
	fromAddress := crypto.PubkeyToAddress(*publicKeyECDSA)

	// Retry loop with gas price escalation
	for attempt := 0; attempt < maxRetries; attempt++ {
		// Get fresh nonce and gas price for each attempt
		nonce, err := c.client.PendingNonceAt(ctx, fromAddress)
		if err != nil {
			return nil, fmt.Errorf("failed to get nonce: %w", err)
		}

		// Get base gas price and escalate on retries
		baseGasPrice, err := c.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get gas price: %w", err)
		}

		// Enforce minimum 5 Gwei to ensure transactions get included
		minGasPrice := big.NewInt(5 * 1e9)
		if baseGasPrice.Cmp(minGasPrice) < 0 {
			baseGasPrice = minGasPrice
		}

		// Escalate gas price by 20% for each retry
		gasPrice := new(big.Int).Set(baseGasPrice)
		if attempt > 0 {
			multiplier := big.NewInt(int64(100 + (20 * attempt))) // 120%, 140%, etc.
			gasPrice = gasPrice.Mul(gasPrice, multiplier)
			gasPrice = gasPrice.Div(gasPrice, big.NewInt(100))
		}

		// Create transaction
		tx := types.NewTransaction(
			nonce,
			contractAddr,
			big.NewInt(0), // value
			gasLimit,
			gasPrice,
			callData,
		)

		// Sign transaction
		signedTx, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), privateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to sign transaction: %w", err)
		}

		// Send transaction
		err = c.client.SendTransaction(ctx, signedTx)
		if err != nil {
			errStr := err.Error()
			// Check if this is a retryable error
			if strings.Contains(errStr, "replacement transaction underpriced") ||
			   strings.Contains(errStr, "nonce too low") ||
			   strings.Contains(errStr, "already known") {
				if attempt < maxRetries-1 {
					time.Sleep(2 * time.Second)
					continue
				}
			}
			return nil, fmt.Errorf("failed to send transaction after %d attempts: %w", attempt+1, err)
		}

		// Success! Wait for receipt
		receipt, err := c.WaitForTransaction(ctx, signedTx)
		if err != nil {
			return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
		}

		result := &ContractCallResult{
			TransactionHash: signedTx.Hash().Hex(),
			BlockNumber:     receipt.BlockNumber.Uint64(),
			BlockHash:       receipt.BlockHash.Hex(),
			GasUsed:         receipt.GasUsed,
			GasCost:         new(big.Int).Mul(gasPrice, big.NewInt(int64(receipt.GasUsed))),
			Success:         receipt.Status == types.ReceiptStatusSuccessful,
			Timestamp:       time.Now(),
		}

		return result, nil
	}

	return nil, fmt.Errorf("failed to send transaction after %d attempts", maxRetries)
}

// verifierContractABI is the on-chain surface this package drives: a single
// entry point that checks the Groth16 proof against the 116-element public
// input array and, on success, registers the beneficiary as heir.
const verifierContractABI = `[{
	"name": "proveDeathAndRegisterHeir",
	"type": "function",
	"inputs": [
		{"name": "testator", "type": "address"},
		{"name": "proof", "type": "bytes"},
		{"name": "publicInputs", "type": "uint256[116]"}
	],
	"outputs": []
}]`

// ProveDeathAndRegisterHeir submits the attestation proof and its 116
// public-input field elements to the configured verifier contract. The
// contract call reverts (and this returns an error) if the proof fails
// verification; a successful return carries the mined transaction hash.
func (c *Client) ProveDeathAndRegisterHeir(ctx context.Context, testator [20]byte, proof []byte, publicInputs [][32]byte) (string, error) {
	if c.verifierContract == (common.Address{}) {
		return "", fmt.Errorf("verifier contract not configured")
	}
	if len(publicInputs) != 116 {
		return "", fmt.Errorf("expected 116 public input field elements, got %d", len(publicInputs))
	}

	var fields [116]*big.Int
	for i, f := range publicInputs {
		fields[i] = new(big.Int).SetBytes(f[:])
	}

	result, err := c.SendContractTransactionWithRetry(
		ctx,
		c.verifierContract,
		verifierContractABI,
		c.verifierKey,
		"proveDeathAndRegisterHeir",
		c.verifierGasLimit,
		3,
		common.Address(testator),
		proof,
		fields,
	)
	if err != nil {
		return "", err
	}
	if !result.Success {
		return "", fmt.Errorf("transaction %s reverted", result.TransactionHash)
	}
	return result.TransactionHash, nil
}

