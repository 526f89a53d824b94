package services

import (
	"context"
	"testing"

	"privatesend-backend/internal/models"
	"privatesend-backend/internal/repository"

	"github.com/stretchr/testify/require"
)

func TestStageObserversFanOutInOrder(t *testing.T) {
	var seen []string
	record := func(name string) StageObserver {
		return StageObserverFunc(func(_ context.Context, event *models.StageEvent) {
			seen = append(seen, name+":"+string(event.Stage))
		})
	}

	observers := StageObservers{record("ledger"), nil, record("push")}
	observers.OnStage(context.Background(), &models.StageEvent{RequestID: "req-1", Stage: models.StageSettling})

	require.Equal(t, []string{"ledger:settling", "push:settling"}, seen)
}

func TestLedgerObserverUpdatesClaimedRecord(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryPrivateSendRepository()
	req := newRequest(models.TokenSOL)
	require.NoError(t, repo.Create(ctx, req.Record()))

	ledger := NewLedgerObserver(repo, testLogger())
	ledger.OnStage(ctx, &models.StageEvent{RequestID: req.RequestID, Stage: models.StageValidating, Outcome: models.OutcomePending})
	ledger.OnStage(ctx, &models.StageEvent{
		RequestID:        req.RequestID,
		Stage:            models.StageSettling,
		Outcome:          models.OutcomePending,
		DepositSignature: "D1",
	})

	stored, err := repo.GetByID(ctx, req.RequestID)
	require.NoError(t, err)
	require.Equal(t, models.StageSettling, stored.Stage)
	require.Equal(t, "D1", stored.DepositSignature)
	require.Equal(t, req.Sender.String(), stored.SenderAddress)
}

func TestLedgerObserverNeverCreatesRecords(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryPrivateSendRepository()

	ledger := NewLedgerObserver(repo, testLogger())
	ledger.OnStage(ctx, &models.StageEvent{RequestID: "unclaimed", Stage: models.StageValidating, Outcome: models.OutcomePending})

	_, err := repo.GetByID(ctx, "unclaimed")
	require.ErrorIs(t, err, repository.ErrNotFound)
}
