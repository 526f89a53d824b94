// Package types request and response bodies of the public API
package types

import "encoding/json"

// ActionSubmitDepositAndWithdraw only action accepted by POST /api/private-send
const ActionSubmitDepositAndWithdraw = "submit-deposit-and-withdraw"

// PrivateSendRequest body of POST /api/private-send.
// Amount accepts a JSON number or a numeric string, in base units.
type PrivateSendRequest struct {
	Action                   string      `json:"action"`
	TokenType                string      `json:"tokenType"`
	Amount                   json.Number `json:"amount"`
	RecipientAddress         string      `json:"recipientAddress"`
	PublicKey                string      `json:"publicKey"`
	SignedDepositTransaction string      `json:"signedDepositTransaction"`
	RequestID                string      `json:"requestId,omitempty"` // optional client-chosen UUID
}

// PrivateSendResponse success body
type PrivateSendResponse struct {
	Success           bool   `json:"success"`
	RequestID         string `json:"requestId"`
	DepositSignature  string `json:"depositSignature"`
	WithdrawSignature string `json:"withdrawSignature"`
}

// ErrorResponse failure body. DepositSignature is set whenever the deposit was accepted.
type ErrorResponse struct {
	Success          bool   `json:"success"`
	Error            string `json:"error"`
	RequestID        string `json:"requestId,omitempty"`
	Stage            string `json:"stage,omitempty"`
	DepositSignature string `json:"depositSignature,omitempty"`
}
