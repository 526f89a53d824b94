package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"privatesend-backend/internal/clients"
	"privatesend-backend/internal/metrics"
	"privatesend-backend/internal/models"
	"privatesend-backend/internal/repository"
	"privatesend-backend/internal/services"
	"privatesend-backend/internal/types"
	"privatesend-backend/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PrivateSender runs one private send to completion
type PrivateSender interface {
	Execute(ctx context.Context, req *services.PrivateSendRequest) *models.PrivateSendResult
}

// StageWatcher streams stage events of one request over a websocket
type StageWatcher interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request, requestID string, snapshot interface{})
}

// PrivateSendHandler private-send API
type PrivateSendHandler struct {
	sender  PrivateSender
	repo    repository.PrivateSendRepository
	guard   *services.DuplicateGuard
	limiter *services.SenderRateLimiter
	watcher StageWatcher
	timeout time.Duration
	logger  *logrus.Logger
}

// NewPrivateSendHandler guard, limiter and watcher are optional
func NewPrivateSendHandler(
	sender PrivateSender,
	repo repository.PrivateSendRepository,
	guard *services.DuplicateGuard,
	limiter *services.SenderRateLimiter,
	watcher StageWatcher,
	timeout time.Duration,
	logger *logrus.Logger,
) *PrivateSendHandler {
	return &PrivateSendHandler{
		sender:  sender,
		repo:    repo,
		guard:   guard,
		limiter: limiter,
		watcher: watcher,
		timeout: timeout,
		logger:  logger,
	}
}

func (h *PrivateSendHandler) reject(c *gin.Context, status int, reason string, body types.ErrorResponse) {
	metrics.PrivateSendRejected.WithLabelValues(reason).Inc()
	body.Success = false
	c.JSON(status, body)
}

func (h *PrivateSendHandler) badRequest(c *gin.Context, reason, message string) {
	h.reject(c, http.StatusBadRequest, reason, types.ErrorResponse{Error: message})
}

// validate turns the body into a pipeline request. The order of the checks
// decides which message the client sees first.
func (h *PrivateSendHandler) validate(body *types.PrivateSendRequest) (*services.PrivateSendRequest, error) {
	if body.Action != types.ActionSubmitDepositAndWithdraw {
		return nil, services.NewValidationError("invalid_action", "Invalid action. Must be: "+types.ActionSubmitDepositAndWithdraw)
	}

	amount := body.Amount.String()
	if body.TokenType == "" || amount == "" || amount == "0" || body.RecipientAddress == "" ||
		body.PublicKey == "" || body.SignedDepositTransaction == "" {
		return nil, services.NewValidationError("missing_fields", "Missing required fields")
	}

	sender, err := utils.ParseAddress(body.PublicKey)
	if err != nil {
		return nil, services.NewValidationError("invalid_public_key", "Invalid public key")
	}
	if !utils.IsValidAddress(body.RecipientAddress) {
		return nil, services.NewValidationError("invalid_recipient", "Invalid recipient address")
	}

	token := models.TokenType(body.TokenType)
	if !token.Valid() {
		return nil, services.NewValidationError("invalid_token", "Invalid token type")
	}

	baseUnits, err := strconv.ParseUint(amount, 10, 64)
	if err != nil || baseUnits == 0 {
		return nil, services.NewValidationError("invalid_amount", "Invalid amount")
	}

	requestID := body.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	} else if _, err := uuid.Parse(requestID); err != nil {
		return nil, services.NewValidationError("invalid_request_id", "Invalid request id")
	}

	tx, err := utils.DecodeTransaction(body.SignedDepositTransaction)
	if err != nil || !utils.IsRequiredSigner(tx, sender) {
		h.logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"sender":     body.PublicKey,
		}).WithError(err).Warn("⚠️ [PrivateSend] Signed deposit rejected")
		return nil, services.NewValidationError("invalid_deposit_transaction", "Invalid signed deposit transaction")
	}

	return &services.PrivateSendRequest{
		RequestID:                requestID,
		TokenType:                token,
		Amount:                   baseUnits,
		Sender:                   sender,
		RecipientAddress:         body.RecipientAddress,
		SignedDepositTransaction: body.SignedDepositTransaction,
		DepositFingerprint:       utils.TransactionFingerprint(body.SignedDepositTransaction),
	}, nil
}

// SubmitDepositAndWithdraw POST /api/private-send
func (h *PrivateSendHandler) SubmitDepositAndWithdraw(c *gin.Context) {
	var body types.PrivateSendRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid_body", "Invalid request body")
		return
	}

	req, err := h.validate(&body)
	if err != nil {
		var validationErr *services.ValidationError
		if errors.As(err, &validationErr) {
			h.badRequest(c, validationErr.Reason, validationErr.Message)
			return
		}
		h.badRequest(c, "invalid_request", err.Error())
		return
	}

	if h.limiter != nil && !h.limiter.Allow(req.Sender.String()) {
		h.logger.WithField("sender", req.Sender.String()).Warn("⚠️ [PrivateSend] Sender rate limited")
		h.reject(c, http.StatusTooManyRequests, "rate_limited", types.ErrorResponse{Error: "Too many requests"})
		return
	}

	if h.guard != nil {
		if owner, ok := h.guard.Acquire(req.DepositFingerprint, req.RequestID); !ok {
			h.logger.WithFields(logrus.Fields{
				"request_id":  req.RequestID,
				"owner":       owner,
				"fingerprint": req.DepositFingerprint,
			}).Warn("⚠️ [PrivateSend] Duplicate deposit submission")
			h.reject(c, http.StatusConflict, "duplicate", types.ErrorResponse{
				Error:     "Duplicate deposit submission",
				RequestID: owner,
			})
			return
		}
	}

	// Creating the ledger row claims the request id; only one submission can win it
	if err := h.repo.Create(c.Request.Context(), req.Record()); err != nil {
		if h.guard != nil {
			h.guard.Release(req.DepositFingerprint, req.RequestID)
		}
		if errors.Is(err, repository.ErrDuplicateID) {
			h.reject(c, http.StatusConflict, "request_id_reused", types.ErrorResponse{
				Error:     "Request id already used",
				RequestID: req.RequestID,
			})
			return
		}
		h.logger.WithField("request_id", req.RequestID).WithError(err).Error("❌ [PrivateSend] Failed to claim request id")
		h.reject(c, http.StatusInternalServerError, "ledger_unavailable", types.ErrorResponse{
			Error:     "Internal server error",
			RequestID: req.RequestID,
		})
		return
	}

	// The deposit cannot be recalled, so a disconnecting client does not stop the run
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.timeout)
	defer cancel()

	result := h.sender.Execute(ctx, req)
	if result.Outcome == models.OutcomeCompleted {
		c.JSON(http.StatusOK, types.PrivateSendResponse{
			Success:           true,
			RequestID:         result.RequestID,
			DepositSignature:  result.DepositSignature,
			WithdrawSignature: result.WithdrawSignature,
		})
		return
	}

	c.JSON(http.StatusInternalServerError, types.ErrorResponse{
		Success:          false,
		Error:            clientErrorMessage(result.Err),
		RequestID:        result.RequestID,
		Stage:            string(result.Stage),
		DepositSignature: result.DepositSignature,
	})
}

// clientErrorMessage relayer messages pass through verbatim, preparation
// details stay in the logs.
func clientErrorMessage(err error) string {
	var relayErr *clients.RelayError
	var prepErr *services.PreparationError
	switch {
	case err == nil:
		return "Internal server error"
	case errors.As(err, &relayErr):
		return relayErr.Error()
	case errors.As(err, &prepErr):
		return "Failed to prepare withdraw parameters"
	case err.Error() == "":
		return "Internal server error"
	default:
		return err.Error()
	}
}

// GetPrivateSend GET /api/private-send/:id
func (h *PrivateSendHandler) GetPrivateSend(c *gin.Context) {
	record, err := h.repo.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "Private send not found",
		})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("❌ [PrivateSend] Failed to load record")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    record,
	})
}

// WatchPrivateSend GET /ws/private-send/:id
// A client that picked its own requestId can connect before submitting.
func (h *PrivateSendHandler) WatchPrivateSend(c *gin.Context) {
	if h.watcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   "Stage push is disabled",
		})
		return
	}

	requestID := c.Param("id")
	if _, err := uuid.Parse(requestID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request id",
		})
		return
	}

	var snapshot interface{}
	if record, err := h.repo.GetByID(c.Request.Context(), requestID); err == nil {
		snapshot = record
	}
	h.watcher.HandleWebSocket(c.Writer, c.Request, requestID, snapshot)
}

// ListPrivateSends GET /api/admin/private-sends
func (h *PrivateSendHandler) ListPrivateSends(c *gin.Context) {
	filter := repository.ListFilter{
		Outcome:       models.Outcome(c.Query("outcome")),
		SenderAddress: c.Query("sender"),
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	filter = filter.Normalized()

	switch filter.Outcome {
	case "", models.OutcomePending, models.OutcomeCompleted, models.OutcomeDepositOnly, models.OutcomeFailed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid outcome",
		})
		return
	}

	records, total, err := h.repo.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("❌ [Admin] Failed to list private sends")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Internal server error",
		})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"admin":   c.GetString("admin_username"),
		"outcome": filter.Outcome,
		"total":   total,
	}).Info("📋 [Admin] Private sends listed")

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    records,
		"pagination": gin.H{
			"page":      filter.Page,
			"page_size": filter.PageSize,
			"total":     total,
		},
	})
}
