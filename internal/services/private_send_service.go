package services

import (
	"context"
	"time"

	"privatesend-backend/internal/metrics"
	"privatesend-backend/internal/models"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

// Relayer the four relayer operations the pipeline uses
type Relayer interface {
	RelayDeposit(ctx context.Context, signedTransaction, senderAddress string) (string, error)
	RelayDepositSPL(ctx context.Context, signedTransaction, senderAddress, mintAddress string) (string, error)
	RelayWithdraw(ctx context.Context, params *models.WithdrawParams) (string, error)
	RelayWithdrawSPL(ctx context.Context, params *models.WithdrawParams) (string, error)
}

// Preparer obtains withdraw params for a settled deposit
type Preparer interface {
	PrepareWithdraw(ctx context.Context, signerCtx SignerContext, token models.TokenType, amount uint64, recipient string) (*models.WithdrawParams, error)
}

// SignerFactory returns a fresh signer for each withdraw preparation
type SignerFactory func() (MessageSigner, error)

// PrivateSendRequest validated input of one pipeline run
type PrivateSendRequest struct {
	RequestID                string
	TokenType                models.TokenType
	Amount                   uint64
	Sender                   solana.PublicKey
	RecipientAddress         string
	SignedDepositTransaction string
	DepositFingerprint       string
}

// Record the ledger row that claims the request id before the pipeline starts
func (r *PrivateSendRequest) Record() *models.PrivateSendRecord {
	now := time.Now().UTC()
	return &models.PrivateSendRecord{
		ID:                 r.RequestID,
		TokenType:          r.TokenType,
		Amount:             r.Amount,
		SenderAddress:      r.Sender.String(),
		RecipientAddress:   r.RecipientAddress,
		DepositFingerprint: r.DepositFingerprint,
		Stage:              models.StageValidating,
		Outcome:            models.OutcomePending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// PrivateSendService runs deposit, settlement, withdraw preparation and withdraw
// submission in order. Nothing is retried.
type PrivateSendService struct {
	relayer    Relayer
	settlement SettlementWaiter
	preparer   Preparer
	newSigner  SignerFactory
	observer   StageObserver
	usdcMint   string
	logger     *logrus.Logger
}

// NewPrivateSendService creates the orchestrator. observer may be nil.
func NewPrivateSendService(
	relayer Relayer,
	settlement SettlementWaiter,
	preparer Preparer,
	newSigner SignerFactory,
	observer StageObserver,
	usdcMint string,
	logger *logrus.Logger,
) *PrivateSendService {
	if newSigner == nil {
		newSigner = NewEphemeralSigner
	}
	if observer == nil {
		observer = StageObservers{}
	}
	return &PrivateSendService{
		relayer:    relayer,
		settlement: settlement,
		preparer:   preparer,
		newSigner:  newSigner,
		observer:   observer,
		usdcMint:   usdcMint,
		logger:     logger,
	}
}

// sendRun state of a single Execute call
type sendRun struct {
	service          *PrivateSendService
	ctx              context.Context
	req              *PrivateSendRequest
	log              *logrus.Entry
	stage            models.Stage
	depositSignature string
	started          time.Time
}

func (r *sendRun) enter(stage models.Stage) {
	r.stage = stage
	r.emit(stage, models.OutcomePending, "", nil)
}

func (r *sendRun) emit(stage models.Stage, outcome models.Outcome, withdrawSignature string, cause error) {
	event := &models.StageEvent{
		RequestID:         r.req.RequestID,
		TokenType:         r.req.TokenType,
		Amount:            r.req.Amount,
		SenderAddress:     r.req.Sender.String(),
		RecipientAddress:  r.req.RecipientAddress,
		Fingerprint:       r.req.DepositFingerprint,
		Stage:             stage,
		Outcome:           outcome,
		DepositSignature:  r.depositSignature,
		WithdrawSignature: withdrawSignature,
		Timestamp:         time.Now().UTC(),
	}
	if cause != nil {
		event.FailedStage = r.stage
		event.Error = cause.Error()
	}
	r.service.observer.OnStage(r.ctx, event)
}

func (r *sendRun) finish(result *models.PrivateSendResult) *models.PrivateSendResult {
	if result.Outcome == models.OutcomeCompleted {
		r.emit(models.StageCompleted, result.Outcome, result.WithdrawSignature, nil)
		r.log.WithFields(logrus.Fields{
			"deposit_signature":  result.DepositSignature,
			"withdraw_signature": result.WithdrawSignature,
		}).Info("🎉 [PrivateSend] Private send completed")
	} else {
		r.emit(models.StageFailed, result.Outcome, "", result.Err)
		entry := r.log.WithFields(logrus.Fields{
			"stage":   result.Stage,
			"outcome": result.Outcome,
		}).WithError(result.Err)
		if result.Outcome == models.OutcomeDepositOnly {
			entry.WithField("deposit_signature", result.DepositSignature).
				Error("❌ [PrivateSend] Deposit accepted but withdrawal did not complete")
		} else {
			entry.Error("❌ [PrivateSend] Private send failed")
		}
	}

	token := string(r.req.TokenType)
	metrics.PrivateSendsTotal.WithLabelValues(token, string(result.Outcome)).Inc()
	metrics.PrivateSendDuration.WithLabelValues(token, string(result.Outcome)).Observe(time.Since(r.started).Seconds())
	return result
}

// Execute runs the pipeline. Once the deposit is accepted every failure is
// reported as DepositOnly with the deposit signature.
func (s *PrivateSendService) Execute(ctx context.Context, req *PrivateSendRequest) *models.PrivateSendResult {
	run := &sendRun{
		service: s,
		ctx:     ctx,
		req:     req,
		started: time.Now(),
		log: s.logger.WithFields(logrus.Fields{
			"request_id": req.RequestID,
			"token":      req.TokenType,
		}),
	}
	run.enter(models.StageValidating)

	run.log.WithFields(logrus.Fields{
		"amount":    req.TokenType.FormatAmount(req.Amount),
		"sender":    req.Sender.String(),
		"recipient": req.RecipientAddress,
	}).Info("🚀 [PrivateSend] Starting private send")

	// [1/4] deposit
	run.enter(models.StageDepositSubmitting)
	run.log.Info("[PrivateSend] [1/4] Relaying deposit...")
	var err error
	if req.TokenType.IsSPL() {
		run.depositSignature, err = s.relayer.RelayDepositSPL(ctx, req.SignedDepositTransaction, req.Sender.String(), s.usdcMint)
	} else {
		run.depositSignature, err = s.relayer.RelayDeposit(ctx, req.SignedDepositTransaction, req.Sender.String())
	}
	if err != nil {
		return run.finish(models.Failed(req.RequestID, run.stage, err))
	}

	// [2/4] settlement
	run.enter(models.StageSettling)
	run.log.WithField("deposit_signature", run.depositSignature).Info("[PrivateSend] [2/4] Waiting for deposit to settle...")
	if err := s.settlement.WaitForSettlement(ctx, run.depositSignature); err != nil {
		return run.finish(models.DepositOnly(req.RequestID, run.stage, run.depositSignature, err))
	}

	// [3/4] withdraw preparation
	run.enter(models.StageWithdrawPreparing)
	run.log.Info("[PrivateSend] [3/4] Preparing withdrawal...")
	signer, err := s.newSigner()
	if err != nil {
		return run.finish(models.DepositOnly(req.RequestID, run.stage, run.depositSignature, &PreparationError{Reason: "signer unavailable", Err: err}))
	}
	params, err := s.preparer.PrepareWithdraw(ctx, SignerContext{Owner: req.Sender, Signer: signer}, req.TokenType, req.Amount, req.RecipientAddress)
	if err != nil {
		return run.finish(models.DepositOnly(req.RequestID, run.stage, run.depositSignature, err))
	}

	// [4/4] withdraw submission
	run.enter(models.StageWithdrawSubmitting)
	run.log.Info("[PrivateSend] [4/4] Submitting withdrawal...")
	var withdrawSignature string
	if req.TokenType.IsSPL() {
		withdrawSignature, err = s.relayer.RelayWithdrawSPL(ctx, params)
	} else {
		withdrawSignature, err = s.relayer.RelayWithdraw(ctx, params)
	}
	if err != nil {
		return run.finish(models.DepositOnly(req.RequestID, run.stage, run.depositSignature, err))
	}

	return run.finish(models.Completed(req.RequestID, run.depositSignature, withdrawSignature))
}

