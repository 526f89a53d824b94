package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"privatesend-backend/internal/metrics"

	"github.com/sirupsen/logrus"
)

// SubmitFunc receives the prepared relayer body for path and returns the
// signature the prover should report. The prover never talks to the relayer
// itself; whoever supplies SubmitFunc decides what happens to the body.
type SubmitFunc func(ctx context.Context, path string, body json.RawMessage) (string, error)

// SignFunc signs a base64 unsigned transaction and returns it base64 encoded
type SignFunc func(ctx context.Context, unsignedTransaction string) (string, error)

// ProverClient proving service client. It builds deposit transactions and
// withdraw proofs over the sender's shielded UTXOs.
type ProverClient struct {
	BaseURL string
	Client  *http.Client
	logger  *logrus.Logger
}

// NewProverClient Create a new prover client
func NewProverClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *ProverClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	logger.WithFields(logrus.Fields{
		"base_url": baseURL,
		"timeout":  timeout,
	}).Info("🔧 [Prover] Create client")
	return &ProverClient{
		BaseURL: baseURL,
		Client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// EncryptionKeyProof binds the UTXO encryption key to a signer.
// The key is derived from a signature over a fixed message, never from a raw secret key.
type EncryptionKeyProof struct {
	PublicKey string `json:"public_key"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// WithdrawProofRequest withdraw proof request
type WithdrawProofRequest struct {
	TokenType     string             `json:"token_type"`
	MintAddress   string             `json:"mint_address,omitempty"`
	Amount        uint64             `json:"amount"`
	Recipient     string             `json:"recipient"`
	Owner         string             `json:"owner"` // shielded account whose UTXOs are spent
	EncryptionKey EncryptionKeyProof `json:"encryption_key"`
}

// WithdrawProofResponse withdraw proof response. Params is the exact relayer
// body; RelayPath is where the prover expects it to be posted.
type WithdrawProofResponse struct {
	RequestID      string          `json:"request_id"`
	Success        bool            `json:"success"`
	RelayPath      string          `json:"relay_path"`
	Params         json.RawMessage `json:"params"`
	ErrorMessage   *string         `json:"error_message"`
	GenerationTime *string         `json:"generation_time"`
}

// DepositProofRequest deposit build request
type DepositProofRequest struct {
	TokenType     string             `json:"token_type"`
	MintAddress   string             `json:"mint_address,omitempty"`
	Amount        uint64             `json:"amount"`
	Owner         string             `json:"owner"`
	EncryptionKey EncryptionKeyProof `json:"encryption_key"`
}

// DepositProofResponse unsigned deposit transaction, base64
type DepositProofResponse struct {
	RequestID    string  `json:"request_id"`
	Success      bool    `json:"success"`
	Transaction  string  `json:"transaction"`
	ErrorMessage *string `json:"error_message"`
}

// Withdraw asks the prover for a withdraw proof and hands the resulting relayer
// body to submit. The returned signature is whatever submit returned.
func (c *ProverClient) Withdraw(ctx context.Context, req *WithdrawProofRequest, submit SubmitFunc) (string, error) {
	if submit == nil {
		return "", fmt.Errorf("submit callback is required")
	}

	var result WithdrawProofResponse
	if err := c.post(ctx, "/api/proof/withdraw", "withdraw", req, &result); err != nil {
		return "", err
	}
	if !result.Success {
		return "", fmt.Errorf("prover rejected withdraw: %s", errorMessage(result.ErrorMessage))
	}
	if len(result.Params) == 0 {
		return "", fmt.Errorf("prover returned empty withdraw params")
	}

	c.logger.WithFields(logrus.Fields{
		"prover_request_id": result.RequestID,
		"relay_path":        result.RelayPath,
	}).Info("✅ [Prover] Withdraw proof generated")

	return submit(ctx, result.RelayPath, result.Params)
}

// Deposit asks the prover for an unsigned deposit transaction and returns it
// signed by sign. Nothing is relayed.
func (c *ProverClient) Deposit(ctx context.Context, req *DepositProofRequest, sign SignFunc) (string, error) {
	if sign == nil {
		return "", fmt.Errorf("sign callback is required")
	}

	var result DepositProofResponse
	if err := c.post(ctx, "/api/proof/deposit", "deposit", req, &result); err != nil {
		return "", err
	}
	if !result.Success {
		return "", fmt.Errorf("prover rejected deposit: %s", errorMessage(result.ErrorMessage))
	}
	if result.Transaction == "" {
		return "", fmt.Errorf("prover returned empty deposit transaction")
	}

	signed, err := sign(ctx, result.Transaction)
	if err != nil {
		return "", fmt.Errorf("failed to sign deposit transaction: %w", err)
	}
	return signed, nil
}

func (c *ProverClient) post(ctx context.Context, path, operation string, payload, out interface{}) error {
	start := time.Now()
	status := 0
	defer func() {
		metrics.ProverRequestDuration.WithLabelValues(operation, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	}()

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.WithFields(logrus.Fields{
			"operation": operation,
			"status":    resp.StatusCode,
			"body":      string(body),
		}).Error("❌ [Prover] Request failed")
		return fmt.Errorf("prover service returned error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func errorMessage(msg *string) string {
	if msg == nil || *msg == "" {
		return "unknown error"
	}
	return *msg
}
