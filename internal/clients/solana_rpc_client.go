package clients

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"
)

// ErrInvalidSignature the string is not a base58 transaction signature
var ErrInvalidSignature = errors.New("invalid signature")

// SignatureState what the cluster knows about a transaction signature
type SignatureState struct {
	Found        bool
	Slot         uint64
	Confirmation rpc.ConfirmationStatusType
	Err          interface{} // non-nil when the transaction landed but failed
}

// Reached reports whether the signature is at least at the given commitment
func (s SignatureState) Reached(commitment rpc.ConfirmationStatusType) bool {
	if !s.Found {
		return false
	}
	switch commitment {
	case rpc.ConfirmationStatusFinalized:
		return s.Confirmation == rpc.ConfirmationStatusFinalized
	case rpc.ConfirmationStatusConfirmed:
		return s.Confirmation == rpc.ConfirmationStatusConfirmed || s.Confirmation == rpc.ConfirmationStatusFinalized
	default:
		return true
	}
}

// SolanaRPCClient read-only Solana JSON-RPC access
type SolanaRPCClient struct {
	endpoint string
	client   *rpc.Client
	logger   *logrus.Logger
}

// NewSolanaRPCClient creates a client for endpoint
func NewSolanaRPCClient(endpoint string, logger *logrus.Logger) *SolanaRPCClient {
	if logger == nil {
		logger = logrus.New()
	}
	return &SolanaRPCClient{
		endpoint: endpoint,
		client:   rpc.New(endpoint),
		logger:   logger,
	}
}

// SignatureStatus looks the signature up, including transaction history
func (c *SolanaRPCClient) SignatureStatus(ctx context.Context, signature string) (SignatureState, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return SignatureState{}, fmt.Errorf("%w %q: %v", ErrInvalidSignature, signature, err)
	}

	out, err := c.client.GetSignatureStatuses(ctx, true, sig)
	if errors.Is(err, rpc.ErrNotFound) {
		return SignatureState{}, nil
	}
	if err != nil {
		return SignatureState{}, fmt.Errorf("getSignatureStatuses failed: %w", err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return SignatureState{}, nil
	}

	status := out.Value[0]
	return SignatureState{
		Found:        true,
		Slot:         status.Slot,
		Confirmation: status.ConfirmationStatus,
		Err:          status.Err,
	}, nil
}

// Health returns the node's health string ("ok" when healthy)
func (c *SolanaRPCClient) Health(ctx context.Context) (string, error) {
	return c.client.GetHealth(ctx)
}

// Endpoint configured RPC URL
func (c *SolanaRPCClient) Endpoint() string {
	return c.endpoint
}
