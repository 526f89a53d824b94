// Package privatesendapi is a Go client for the private-send API.
package privatesendapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
)

const actionSubmitDepositAndWithdraw = "submit-deposit-and-withdraw"

// Client private-send API client
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient timeout should cover the server's whole pipeline budget
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Result of a completed private send
type Result struct {
	RequestID         string `json:"requestId"`
	DepositSignature  string `json:"depositSignature"`
	WithdrawSignature string `json:"withdrawSignature"`
}

// APIError non-success reply. DepositSignature is set when the deposit went
// through and only the withdrawal failed.
type APIError struct {
	StatusCode       int
	Message          string
	RequestID        string
	Stage            string
	DepositSignature string
}

func (e *APIError) Error() string {
	if e.DepositSignature != "" {
		return fmt.Sprintf("private send failed at %s after deposit %s: %s", e.Stage, e.DepositSignature, e.Message)
	}
	return fmt.Sprintf("private send failed (HTTP %d): %s", e.StatusCode, e.Message)
}

// DepositAccepted reports whether funds reached the shielded pool
func (e *APIError) DepositAccepted() bool {
	return e.DepositSignature != ""
}

type submitRequest struct {
	Action                   string `json:"action"`
	TokenType                string `json:"tokenType"`
	Amount                   uint64 `json:"amount"`
	RecipientAddress         string `json:"recipientAddress"`
	PublicKey                string `json:"publicKey"`
	SignedDepositTransaction string `json:"signedDepositTransaction"`
	RequestID                string `json:"requestId,omitempty"`
}

type reply struct {
	Success           bool   `json:"success"`
	Error             string `json:"error"`
	RequestID         string `json:"requestId"`
	Stage             string `json:"stage"`
	DepositSignature  string `json:"depositSignature"`
	WithdrawSignature string `json:"withdrawSignature"`
}

// SubmitOption tweaks a submission
type SubmitOption func(*submitRequest)

// WithRequestID lets the caller watch /ws/private-send/<id> before submitting
func WithRequestID(id string) SubmitOption {
	return func(r *submitRequest) {
		r.RequestID = id
	}
}

// SubmitDepositAndWithdraw sends a signed deposit and waits for the whole
// private send. amount is in base units (lamports for SOL).
func (c *Client) SubmitDepositAndWithdraw(ctx context.Context, tokenType string, amount uint64, recipient, publicKey, signedDeposit string, opts ...SubmitOption) (*Result, error) {
	body := submitRequest{
		Action:                   actionSubmitDepositAndWithdraw,
		TokenType:                tokenType,
		Amount:                   amount,
		RecipientAddress:         recipient,
		PublicKey:                publicKey,
		SignedDepositTransaction: signedDeposit,
	}
	for _, opt := range opts {
		opt(&body)
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/private-send", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var out reply
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    "unexpected response: " + strings.TrimSpace(string(respBody)),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !out.Success {
		message := out.Error
		if message == "" {
			message = "Failed to submit private send (status " + strconv.Itoa(resp.StatusCode) + ")"
		}
		return nil, &APIError{
			StatusCode:       resp.StatusCode,
			Message:          message,
			RequestID:        out.RequestID,
			Stage:            out.Stage,
			DepositSignature: out.DepositSignature,
		}
	}

	return &Result{
		RequestID:         out.RequestID,
		DepositSignature:  out.DepositSignature,
		WithdrawSignature: out.WithdrawSignature,
	}, nil
}

// SerializeTransaction signed transaction -> base64 wire format
func SerializeTransaction(tx *solana.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
