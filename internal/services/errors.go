package services

import "fmt"

// ValidationError request rejected before anything was relayed.
// Message is shown to the client, Reason labels the rejection metric.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError
func NewValidationError(reason, message string) *ValidationError {
	return &ValidationError{Reason: reason, Message: message}
}

// PreparationError withdraw params could not be obtained from the prover
type PreparationError struct {
	Reason string
	Err    error
}

func (e *PreparationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("withdraw preparation failed: %s: %v", e.Reason, e.Err)
	}
	return "withdraw preparation failed: " + e.Reason
}

func (e *PreparationError) Unwrap() error {
	return e.Err
}

// SettlementError the deposit did not settle in time or failed on-chain
type SettlementError struct {
	Signature string
	Reason    string
	Err       error
}

func (e *SettlementError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("deposit %s did not settle: %s: %v", e.Signature, e.Reason, e.Err)
	}
	return fmt.Sprintf("deposit %s did not settle: %s", e.Signature, e.Reason)
}

func (e *SettlementError) Unwrap() error {
	return e.Err
}
