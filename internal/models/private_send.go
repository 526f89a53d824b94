package models

import (
	"encoding/json"
	"time"

	"privatesend-backend/internal/utils"
)

// TokenType asset moved through the shielded pool
type TokenType string

const (
	TokenSOL  TokenType = "SOL"
	TokenUSDC TokenType = "USDC"
)

// Valid reports whether the token is supported
func (t TokenType) Valid() bool {
	return t == TokenSOL || t == TokenUSDC
}

// Decimals base-unit precision of the token
func (t TokenType) Decimals() int32 {
	if t == TokenUSDC {
		return utils.USDCDecimals
	}
	return utils.SOLDecimals
}

// IsSPL reports whether the token moves through the SPL relayer paths
func (t TokenType) IsSPL() bool {
	return t == TokenUSDC
}

// FormatAmount base units -> human string for logs and messages
func (t TokenType) FormatAmount(baseUnits uint64) string {
	return utils.ToHumanAmount(baseUnits, t.Decimals())
}

// Stage pipeline position of a private send
type Stage string

const (
	StageValidating         Stage = "validating"
	StageDepositSubmitting  Stage = "deposit_submitting"
	StageSettling           Stage = "settling"
	StageWithdrawPreparing  Stage = "withdraw_preparing"
	StageWithdrawSubmitting Stage = "withdraw_submitting"
	StageCompleted          Stage = "completed"
	StageFailed             Stage = "failed"
)

// Terminal reports whether no further transition follows
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Outcome how far a private send got
type Outcome string

const (
	OutcomePending     Outcome = "pending"
	OutcomeCompleted   Outcome = "completed"
	OutcomeDepositOnly Outcome = "deposit_only" // funds are in the pool, withdrawal did not happen
	OutcomeFailed      Outcome = "failed"       // nothing was submitted
)

// WithdrawParams relayer-ready withdraw bundle as produced by the prover.
// Body is forwarded to the relayer verbatim.
type WithdrawParams struct {
	Recipient   string          `json:"recipient"`
	Amount      uint64          `json:"amount"`
	MintAddress string          `json:"mintAddress,omitempty"`
	Body        json.RawMessage `json:"body"`
}

// PrivateSendResult tagged result of one pipeline run.
// Completed: both signatures. DepositOnly: DepositSignature and Err. Failed: Err only.
type PrivateSendResult struct {
	RequestID         string
	Outcome           Outcome
	Stage             Stage // last stage entered; the failing one for DepositOnly/Failed
	DepositSignature  string
	WithdrawSignature string
	Err               error
}

// Completed both legs settled
func Completed(requestID, depositSig, withdrawSig string) *PrivateSendResult {
	return &PrivateSendResult{
		RequestID:         requestID,
		Outcome:           OutcomeCompleted,
		Stage:             StageCompleted,
		DepositSignature:  depositSig,
		WithdrawSignature: withdrawSig,
	}
}

// DepositOnly deposit accepted, a later step failed
func DepositOnly(requestID string, stage Stage, depositSig string, cause error) *PrivateSendResult {
	return &PrivateSendResult{
		RequestID:        requestID,
		Outcome:          OutcomeDepositOnly,
		Stage:            stage,
		DepositSignature: depositSig,
		Err:              cause,
	}
}

// Failed nothing irreversible happened
func Failed(requestID string, stage Stage, cause error) *PrivateSendResult {
	return &PrivateSendResult{
		RequestID: requestID,
		Outcome:   OutcomeFailed,
		Stage:     stage,
		Err:       cause,
	}
}

// PrivateSendRecord audit row for one private send. Never read back to resume a send.
type PrivateSendRecord struct {
	ID                 string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TokenType          TokenType  `json:"token_type" gorm:"type:varchar(8);not null"`
	Amount             uint64     `json:"amount" gorm:"not null"`
	SenderAddress      string     `json:"sender_address" gorm:"type:varchar(44);index;not null"`
	RecipientAddress   string     `json:"recipient_address" gorm:"type:varchar(44);not null"`
	DepositFingerprint string     `json:"deposit_fingerprint" gorm:"type:varchar(16);index"`
	DepositSignature   string     `json:"deposit_signature,omitempty" gorm:"type:varchar(88)"`
	WithdrawSignature  string     `json:"withdraw_signature,omitempty" gorm:"type:varchar(88)"`
	Stage              Stage      `json:"stage" gorm:"type:varchar(32);not null"`
	FailedStage        Stage      `json:"failed_stage,omitempty" gorm:"type:varchar(32)"`
	Outcome            Outcome    `json:"outcome" gorm:"type:varchar(16);index;not null;default:pending"`
	LastError          string     `json:"last_error,omitempty" gorm:"type:text"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// TableName gorm table
func (PrivateSendRecord) TableName() string {
	return "private_sends"
}

// StageEvent one stage transition, fanned out to the ledger, NATS, websocket and metrics
type StageEvent struct {
	RequestID         string    `json:"request_id"`
	TokenType         TokenType `json:"token_type"`
	Amount            uint64    `json:"amount"`
	SenderAddress     string    `json:"sender_address"`
	RecipientAddress  string    `json:"recipient_address"`
	Fingerprint       string    `json:"deposit_fingerprint,omitempty"`
	Stage             Stage     `json:"stage"`
	FailedStage       Stage     `json:"failed_stage,omitempty"` // set on the failed event
	Outcome           Outcome   `json:"outcome"`
	DepositSignature  string    `json:"deposit_signature,omitempty"`
	WithdrawSignature string    `json:"withdraw_signature,omitempty"`
	Error             string    `json:"error,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}
