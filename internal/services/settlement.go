package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"privatesend-backend/internal/clients"
	"privatesend-backend/internal/config"
	"privatesend-backend/internal/metrics"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"
)

// SettlementWaiter blocks until a relayed deposit can be spent by a withdraw
type SettlementWaiter interface {
	WaitForSettlement(ctx context.Context, depositSignature string) error
}

// SignatureStatusReader reads the cluster's view of a signature
type SignatureStatusReader interface {
	SignatureStatus(ctx context.Context, signature string) (clients.SignatureState, error)
}

// NewSettlementWaiter picks the waiter for the configured mode
func NewSettlementWaiter(cfg config.SettlementConfig, commitment string, reader SignatureStatusReader, logger *logrus.Logger) SettlementWaiter {
	if cfg.Mode == config.SettlementModeFixed || reader == nil {
		return &FixedDelayWaiter{Delay: time.Duration(cfg.FixedDelayMs) * time.Millisecond}
	}
	return &ConfirmationPoller{
		reader:       reader,
		commitment:   rpc.ConfirmationStatusType(commitment),
		interval:     time.Duration(cfg.PollInterval) * time.Millisecond,
		timeout:      time.Duration(cfg.Timeout) * time.Second,
		indexerGrace: time.Duration(cfg.IndexerGrace) * time.Millisecond,
		logger:       logger,
	}
}

// FixedDelayWaiter sleeps a fixed duration and assumes the deposit settled
type FixedDelayWaiter struct {
	Delay time.Duration
}

func (w *FixedDelayWaiter) WaitForSettlement(ctx context.Context, depositSignature string) error {
	start := time.Now()
	err := sleepContext(ctx, w.Delay)
	result := "settled"
	if err != nil {
		result = "canceled"
		err = &SettlementError{Signature: depositSignature, Reason: "wait canceled", Err: err}
	}
	metrics.SettlementWaitDuration.WithLabelValues(config.SettlementModeFixed, result).Observe(time.Since(start).Seconds())
	return err
}

// ConfirmationPoller polls getSignatureStatuses until the deposit reaches
// the commitment, then waits indexerGrace for the relayer's indexer.
type ConfirmationPoller struct {
	reader       SignatureStatusReader
	commitment   rpc.ConfirmationStatusType
	interval     time.Duration
	timeout      time.Duration
	indexerGrace time.Duration
	logger       *logrus.Logger
}

// NewConfirmationPoller creates a poller
func NewConfirmationPoller(reader SignatureStatusReader, commitment rpc.ConfirmationStatusType, interval, timeout, indexerGrace time.Duration, logger *logrus.Logger) *ConfirmationPoller {
	return &ConfirmationPoller{
		reader:       reader,
		commitment:   commitment,
		interval:     interval,
		timeout:      timeout,
		indexerGrace: indexerGrace,
		logger:       logger,
	}
}

func (p *ConfirmationPoller) WaitForSettlement(ctx context.Context, depositSignature string) error {
	start := time.Now()
	result := "settled"
	defer func() {
		metrics.SettlementWaitDuration.WithLabelValues(config.SettlementModePoll, result).Observe(time.Since(start).Seconds())
	}()

	pollCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	log := p.logger.WithField("deposit_signature", depositSignature)
	for attempt := 1; ; attempt++ {
		state, err := p.reader.SignatureStatus(pollCtx, depositSignature)
		switch {
		case errors.Is(err, clients.ErrInvalidSignature):
			result = "failed"
			return &SettlementError{Signature: depositSignature, Reason: "relayer returned an unusable signature", Err: err}
		case err != nil:
			// RPC hiccups are retried until the deadline
			log.WithError(err).Warnf("⚠️ [Settlement] Status lookup failed (attempt %d)", attempt)
		case state.Found && state.Err != nil:
			result = "failed"
			return &SettlementError{Signature: depositSignature, Reason: fmt.Sprintf("transaction failed on-chain: %v", state.Err)}
		case state.Reached(p.commitment):
			log.WithFields(logrus.Fields{
				"slot":         state.Slot,
				"confirmation": state.Confirmation,
				"attempts":     attempt,
			}).Info("✅ [Settlement] Deposit confirmed")
			if err := sleepContext(ctx, p.indexerGrace); err != nil {
				result = "timeout"
				return &SettlementError{Signature: depositSignature, Reason: "indexer grace interrupted", Err: err}
			}
			return nil
		}

		select {
		case <-pollCtx.Done():
			result = "timeout"
			return &SettlementError{Signature: depositSignature, Reason: fmt.Sprintf("not %s within %s", p.commitment, p.timeout), Err: pollCtx.Err()}
		case <-ticker.C:
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
