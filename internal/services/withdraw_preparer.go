package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"privatesend-backend/internal/clients"
	"privatesend-backend/internal/models"

	"github.com/sirupsen/logrus"
)

// capturedSignature returned to the prover in place of a relayer signature
const capturedSignature = "captured"

var errAlreadyCaptured = errors.New("withdraw params already captured")

// WithdrawProver builds a withdraw proof and hands the relayer body to submit
type WithdrawProver interface {
	Withdraw(ctx context.Context, req *clients.WithdrawProofRequest, submit clients.SubmitFunc) (string, error)
}

// WithdrawPreparer obtains relayer-ready withdraw params without relaying them
type WithdrawPreparer struct {
	prover   WithdrawProver
	usdcMint string
	logger   *logrus.Logger
}

// NewWithdrawPreparer creates a preparer
func NewWithdrawPreparer(prover WithdrawProver, usdcMint string, logger *logrus.Logger) *WithdrawPreparer {
	return &WithdrawPreparer{
		prover:   prover,
		usdcMint: usdcMint,
		logger:   logger,
	}
}

// withdrawCapture holds the body of one preparation. One per call, never shared.
type withdrawCapture struct {
	mu   sync.Mutex
	path string
	body json.RawMessage
	done bool
}

func (c *withdrawCapture) submit(_ context.Context, path string, body json.RawMessage) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return "", errAlreadyCaptured
	}
	c.path = path
	c.body = append(json.RawMessage(nil), body...)
	c.done = true
	return capturedSignature, nil
}

// capturedFields the parts of the relayer body that are checked against the request
type capturedFields struct {
	Recipient   string `json:"recipient"`
	MintAddress string `json:"mintAddress"`
}

// PrepareWithdraw runs the prover's withdraw flow with a capture callback and
// returns what it would have sent to the relayer.
func (p *WithdrawPreparer) PrepareWithdraw(ctx context.Context, signerCtx SignerContext, token models.TokenType, amount uint64, recipient string) (*models.WithdrawParams, error) {
	if signerCtx.Signer == nil {
		return nil, &PreparationError{Reason: "no signer"}
	}

	encryptionKey, err := DeriveEncryptionKeyProof(signerCtx.Signer)
	if err != nil {
		return nil, &PreparationError{Reason: "encryption key derivation failed", Err: err}
	}

	expectedPath := clients.RelayPathWithdraw
	mint := ""
	if token.IsSPL() {
		expectedPath = clients.RelayPathWithdrawSPL
		mint = p.usdcMint
	}

	req := &clients.WithdrawProofRequest{
		TokenType:     string(token),
		MintAddress:   mint,
		Amount:        amount,
		Recipient:     recipient,
		Owner:         signerCtx.Owner.String(),
		EncryptionKey: encryptionKey,
	}

	capture := &withdrawCapture{}
	_, proverErr := p.prover.Withdraw(ctx, req, capture.submit)

	capture.mu.Lock()
	defer capture.mu.Unlock()

	if !capture.done {
		if proverErr != nil {
			return nil, &PreparationError{Reason: "prover withdraw failed", Err: proverErr}
		}
		return nil, &PreparationError{Reason: "prover never produced withdraw params"}
	}
	// Whatever the prover does after handing over the body does not matter
	if proverErr != nil {
		p.logger.WithError(proverErr).Debug("[Preparer] Prover errored after params were captured")
	}
	if capture.path != expectedPath {
		return nil, &PreparationError{Reason: fmt.Sprintf("captured params target %q, expected %q", capture.path, expectedPath)}
	}

	var fields capturedFields
	if err := json.Unmarshal(capture.body, &fields); err != nil {
		return nil, &PreparationError{Reason: "captured params are not a JSON object", Err: err}
	}
	if fields.Recipient != recipient {
		return nil, &PreparationError{Reason: fmt.Sprintf("captured recipient %q does not match %q", fields.Recipient, recipient)}
	}
	if token.IsSPL() && fields.MintAddress != "" && fields.MintAddress != mint {
		return nil, &PreparationError{Reason: fmt.Sprintf("captured mint %q does not match %q", fields.MintAddress, mint)}
	}

	p.logger.WithFields(logrus.Fields{
		"token":     token,
		"amount":    token.FormatAmount(amount),
		"recipient": recipient,
	}).Info("✓ [Preparer] Withdraw params prepared")

	return &models.WithdrawParams{
		Recipient:   recipient,
		Amount:      amount,
		MintAddress: mint,
		Body:        capture.body,
	}, nil
}
