package services

import (
	"context"

	"privatesend-backend/internal/metrics"
	"privatesend-backend/internal/models"
	"privatesend-backend/internal/repository"

	"github.com/sirupsen/logrus"
)

// StageObserver is told about every stage transition. It must not block for long
// and cannot fail the pipeline.
type StageObserver interface {
	OnStage(ctx context.Context, event *models.StageEvent)
}

// StageObserverFunc adapts a function to StageObserver
type StageObserverFunc func(ctx context.Context, event *models.StageEvent)

func (f StageObserverFunc) OnStage(ctx context.Context, event *models.StageEvent) {
	f(ctx, event)
}

// StageObservers fans an event out in order
type StageObservers []StageObserver

func (o StageObservers) OnStage(ctx context.Context, event *models.StageEvent) {
	for _, observer := range o {
		if observer != nil {
			observer.OnStage(ctx, event)
		}
	}
}

// LedgerObserver moves the send's ledger row along. The row itself is created
// when the request id is claimed, before Execute.
type LedgerObserver struct {
	repo   repository.PrivateSendRepository
	logger *logrus.Logger
}

// NewLedgerObserver creates a LedgerObserver
func NewLedgerObserver(repo repository.PrivateSendRepository, logger *logrus.Logger) *LedgerObserver {
	return &LedgerObserver{repo: repo, logger: logger}
}

func (l *LedgerObserver) OnStage(ctx context.Context, event *models.StageEvent) {
	// The final write must land even when the request deadline has passed
	ctx = context.WithoutCancel(ctx)

	if err := l.repo.ApplyEvent(ctx, event); err != nil {
		l.logger.WithFields(logrus.Fields{
			"request_id": event.RequestID,
			"stage":      event.Stage,
		}).WithError(err).Error("❌ [Ledger] Failed to record stage")
	}
}

// EventPublisher publishes stage events to a broker
type EventPublisher interface {
	PublishSendEvent(event *models.StageEvent) error
}

// PublishObserver forwards stage events to an EventPublisher
type PublishObserver struct {
	publisher EventPublisher
	logger    *logrus.Logger
}

// NewPublishObserver creates a PublishObserver
func NewPublishObserver(publisher EventPublisher, logger *logrus.Logger) *PublishObserver {
	return &PublishObserver{publisher: publisher, logger: logger}
}

func (p *PublishObserver) OnStage(_ context.Context, event *models.StageEvent) {
	if err := p.publisher.PublishSendEvent(event); err != nil {
		p.logger.WithField("request_id", event.RequestID).WithError(err).Warn("⚠️ [NATS] Stage event not published")
	}
}

// MetricsObserver counts stage transitions
type MetricsObserver struct{}

func (MetricsObserver) OnStage(_ context.Context, event *models.StageEvent) {
	metrics.StageTransitions.WithLabelValues(string(event.Stage)).Inc()
}
