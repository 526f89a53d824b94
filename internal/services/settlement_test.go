package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"privatesend-backend/internal/clients"
	"privatesend-backend/internal/config"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"
)

type statusReaderFunc func(ctx context.Context, signature string) (clients.SignatureState, error)

func (f statusReaderFunc) SignatureStatus(ctx context.Context, signature string) (clients.SignatureState, error) {
	return f(ctx, signature)
}

func TestConfirmationPollerReturnsOnConfirmation(t *testing.T) {
	var calls int32
	reader := statusReaderFunc(func(ctx context.Context, signature string) (clients.SignatureState, error) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			return clients.SignatureState{}, nil
		case 2:
			return clients.SignatureState{}, errors.New("rpc 503")
		case 3:
			return clients.SignatureState{Found: true, Confirmation: rpc.ConfirmationStatusProcessed}, nil
		default:
			return clients.SignatureState{Found: true, Confirmation: rpc.ConfirmationStatusConfirmed}, nil
		}
	})
	poller := NewConfirmationPoller(reader, rpc.ConfirmationStatusConfirmed, 5*time.Millisecond, time.Second, 0, testLogger())

	require.NoError(t, poller.WaitForSettlement(context.Background(), "D1"))
	require.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestConfirmationPollerStopsOnInvalidSignature(t *testing.T) {
	var calls int32
	reader := statusReaderFunc(func(ctx context.Context, signature string) (clients.SignatureState, error) {
		atomic.AddInt32(&calls, 1)
		return clients.SignatureState{}, fmt.Errorf("%w %q", clients.ErrInvalidSignature, signature)
	})
	poller := NewConfirmationPoller(reader, rpc.ConfirmationStatusConfirmed, 5*time.Millisecond, 10*time.Second, 0, testLogger())

	start := time.Now()
	err := poller.WaitForSettlement(context.Background(), "not-base58")
	require.Less(t, time.Since(start), time.Second)

	var settleErr *SettlementError
	require.ErrorAs(t, err, &settleErr)
	require.ErrorIs(t, err, clients.ErrInvalidSignature)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestConfirmationPollerTimesOut(t *testing.T) {
	reader := statusReaderFunc(func(ctx context.Context, signature string) (clients.SignatureState, error) {
		return clients.SignatureState{Found: true, Confirmation: rpc.ConfirmationStatusProcessed}, nil
	})
	poller := NewConfirmationPoller(reader, rpc.ConfirmationStatusConfirmed, 5*time.Millisecond, 30*time.Millisecond, 0, testLogger())

	err := poller.WaitForSettlement(context.Background(), "D1")
	var settleErr *SettlementError
	require.ErrorAs(t, err, &settleErr)
	require.Equal(t, "D1", settleErr.Signature)
}

func TestConfirmationPollerOnChainFailure(t *testing.T) {
	reader := statusReaderFunc(func(ctx context.Context, signature string) (clients.SignatureState, error) {
		return clients.SignatureState{Found: true, Confirmation: rpc.ConfirmationStatusConfirmed, Err: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}}, nil
	})
	poller := NewConfirmationPoller(reader, rpc.ConfirmationStatusConfirmed, 5*time.Millisecond, time.Second, 0, testLogger())

	err := poller.WaitForSettlement(context.Background(), "D1")
	require.ErrorContains(t, err, "failed on-chain")
}

func TestConfirmationPollerHonorsCancellation(t *testing.T) {
	reader := statusReaderFunc(func(ctx context.Context, signature string) (clients.SignatureState, error) {
		return clients.SignatureState{}, nil
	})
	poller := NewConfirmationPoller(reader, rpc.ConfirmationStatusConfirmed, 5*time.Millisecond, time.Minute, 0, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.Error(t, poller.WaitForSettlement(ctx, "D1"))
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestConfirmationPollerWaitsIndexerGrace(t *testing.T) {
	reader := statusReaderFunc(func(ctx context.Context, signature string) (clients.SignatureState, error) {
		return clients.SignatureState{Found: true, Confirmation: rpc.ConfirmationStatusFinalized}, nil
	})
	poller := NewConfirmationPoller(reader, rpc.ConfirmationStatusConfirmed, 5*time.Millisecond, time.Second, 40*time.Millisecond, testLogger())

	start := time.Now()
	require.NoError(t, poller.WaitForSettlement(context.Background(), "D1"))
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestFixedDelayWaiter(t *testing.T) {
	waiter := &FixedDelayWaiter{Delay: 20 * time.Millisecond}

	start := time.Now()
	require.NoError(t, waiter.WaitForSettlement(context.Background(), "D1"))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, (&FixedDelayWaiter{Delay: time.Minute}).WaitForSettlement(ctx, "D1"))
}

func TestNewSettlementWaiterModes(t *testing.T) {
	reader := statusReaderFunc(func(ctx context.Context, signature string) (clients.SignatureState, error) {
		return clients.SignatureState{}, nil
	})
	cfg := config.SettlementConfig{Mode: config.SettlementModeFixed, FixedDelayMs: 2000, PollInterval: 500, Timeout: 30}

	fixed, ok := NewSettlementWaiter(cfg, "confirmed", reader, testLogger()).(*FixedDelayWaiter)
	require.True(t, ok)
	require.Equal(t, 2*time.Second, fixed.Delay)

	cfg.Mode = config.SettlementModePoll
	poller, ok := NewSettlementWaiter(cfg, "finalized", reader, testLogger()).(*ConfirmationPoller)
	require.True(t, ok)
	require.Equal(t, rpc.ConfirmationStatusFinalized, poller.commitment)
	require.Equal(t, 500*time.Millisecond, poller.interval)
}
