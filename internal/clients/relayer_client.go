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
	"privatesend-backend/internal/models"

	"github.com/sirupsen/logrus"
)

// Relayer paths, relative to the relayer base URL
const (
	RelayPathDeposit     = "/deposit"
	RelayPathDepositSPL  = "/depositspl"
	RelayPathWithdraw    = "/withdraw"
	RelayPathWithdrawSPL = "/withdrawspl"
)

// RelayError the relayer refused the submission or could not be reached.
// Message is what callers show to users.
type RelayError struct {
	Path       string
	StatusCode int
	Message    string
	Err        error
}

func (e *RelayError) Error() string {
	return e.Message
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

// RelayResponse relayer reply
type RelayResponse struct {
	Signature string `json:"signature"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// DepositRelayRequest body of /deposit
type DepositRelayRequest struct {
	SignedTransaction string `json:"signedTransaction"`
	SenderAddress     string `json:"senderAddress"`
}

// DepositSPLRelayRequest body of /depositspl
type DepositSPLRelayRequest struct {
	MintAddress       string `json:"mintAddress"`
	PublicKey         string `json:"publicKey"`
	SignedTransaction string `json:"signedTransaction"`
}

// RelayerClient client for the indexer/relayer.
// Every call moves funds on-chain and is never retried here.
type RelayerClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewRelayerClient creates a relayer client
func NewRelayerClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *RelayerClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &RelayerClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// RelayDeposit submits a signed SOL deposit transaction
func (c *RelayerClient) RelayDeposit(ctx context.Context, signedTransaction, senderAddress string) (string, error) {
	c.logger.Info("📤 [Relayer] Relaying SOL deposit to indexer...")
	signature, err := c.postDeposit(ctx, RelayPathDeposit, "Deposit relay failed", DepositRelayRequest{
		SignedTransaction: signedTransaction,
		SenderAddress:     senderAddress,
	})
	if err != nil {
		return "", err
	}
	c.logger.WithField("signature", signature).Info("✅ [Relayer] Deposit submitted")
	return signature, nil
}

// RelayDepositSPL submits a signed SPL (USDC) deposit transaction
func (c *RelayerClient) RelayDepositSPL(ctx context.Context, signedTransaction, senderAddress, mintAddress string) (string, error) {
	c.logger.Info("📤 [Relayer] Relaying USDC deposit to indexer...")
	signature, err := c.postDeposit(ctx, RelayPathDepositSPL, "Deposit SPL relay failed", DepositSPLRelayRequest{
		MintAddress:       mintAddress,
		PublicKey:         senderAddress,
		SignedTransaction: signedTransaction,
	})
	if err != nil {
		return "", err
	}
	c.logger.WithField("signature", signature).Info("✅ [Relayer] USDC deposit submitted")
	return signature, nil
}

// RelayWithdraw submits prepared SOL withdraw params
func (c *RelayerClient) RelayWithdraw(ctx context.Context, params *models.WithdrawParams) (string, error) {
	c.logger.Info("📤 [Relayer] Submitting SOL withdraw to indexer...")
	signature, err := c.postWithdraw(ctx, RelayPathWithdraw, "Withdraw submission failed", params)
	if err != nil {
		return "", err
	}
	c.logger.WithField("signature", signature).Info("✅ [Relayer] Withdraw submitted")
	return signature, nil
}

// RelayWithdrawSPL submits prepared SPL withdraw params
func (c *RelayerClient) RelayWithdrawSPL(ctx context.Context, params *models.WithdrawParams) (string, error) {
	c.logger.Info("📤 [Relayer] Submitting USDC withdraw to indexer...")
	signature, err := c.postWithdraw(ctx, RelayPathWithdrawSPL, "Withdraw SPL submission failed", params)
	if err != nil {
		return "", err
	}
	c.logger.WithField("signature", signature).Info("✅ [Relayer] USDC withdraw submitted")
	return signature, nil
}

// postDeposit deposit paths report the raw body text on failure
func (c *RelayerClient) postDeposit(ctx context.Context, path, failure string, payload interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	status, respBody, err := c.post(ctx, path, body)
	if err != nil {
		return "", &RelayError{Path: path, Message: fmt.Sprintf("%s: %v", failure, err), Err: err}
	}
	if status < 200 || status > 299 {
		c.logger.WithFields(logrus.Fields{
			"path":   path,
			"status": status,
			"body":   string(respBody),
		}).Error("❌ [Relayer] Deposit rejected")
		return "", &RelayError{Path: path, StatusCode: status, Message: fmt.Sprintf("%s: %s", failure, string(respBody))}
	}
	return c.decodeSignature(path, status, failure, respBody)
}

// postWithdraw withdraw paths report the relayer's error field on failure
func (c *RelayerClient) postWithdraw(ctx context.Context, path, failure string, params *models.WithdrawParams) (string, error) {
	if params == nil || len(params.Body) == 0 {
		return "", &RelayError{Path: path, Message: failure + ": empty withdraw params"}
	}

	status, respBody, err := c.post(ctx, path, params.Body)
	if err != nil {
		return "", &RelayError{Path: path, Message: fmt.Sprintf("%s: %v", failure, err), Err: err}
	}
	if status < 200 || status > 299 {
		c.logger.WithFields(logrus.Fields{
			"path":   path,
			"status": status,
			"body":   string(respBody),
		}).Error("❌ [Relayer] Withdraw rejected")
		message := failure
		var errorData RelayResponse
		if json.Unmarshal(respBody, &errorData) == nil && errorData.Error != "" {
			message = errorData.Error
		}
		return "", &RelayError{Path: path, StatusCode: status, Message: message}
	}
	return c.decodeSignature(path, status, failure, respBody)
}

func (c *RelayerClient) decodeSignature(path string, status int, failure string, respBody []byte) (string, error) {
	var result RelayResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", &RelayError{Path: path, StatusCode: status, Message: fmt.Sprintf("%s: invalid relayer response: %v", failure, err), Err: err}
	}
	if result.Error != "" {
		return "", &RelayError{Path: path, StatusCode: status, Message: result.Error}
	}
	if result.Signature == "" {
		return "", &RelayError{Path: path, StatusCode: status, Message: failure + ": relayer returned no signature"}
	}
	if !result.Success {
		return "", &RelayError{Path: path, StatusCode: status, Message: failure + ": relayer reported success=false"}
	}
	return result.Signature, nil
}

func (c *RelayerClient) post(ctx context.Context, path string, body []byte) (int, []byte, error) {
	start := time.Now()
	status := 0
	defer func() {
		metrics.RelayRequestDuration.WithLabelValues(path, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return status, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return status, respBody, nil
}
