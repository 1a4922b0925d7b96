package services

import "errors"

// Sentinel errors of the payment flow. Controllers map these onto HTTP
// status codes; everything here is errors.Is-matchable through wrapping.
var (
	ErrBookingNotFound      = errors.New("booking not found")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrNotAuthorized        = errors.New("not authorized")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidDateRange     = errors.New("invalid date range")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrAmountMismatch       = errors.New("payment amount does not match booking amount")
	ErrBookingNotPayable    = errors.New("booking is not open for payment")

	// ErrInvalidSignature and ErrVerificationFailed are definitive negatives:
	// the attempt is dead and the ledger entry may go FAILED.
	ErrInvalidSignature   = errors.New("invalid gateway signature")
	ErrVerificationFailed = errors.New("transaction verification failed")

	// ErrCardDeclined is a definitive decline from the card network. The
	// network's reason is in the wrapped message.
	ErrCardDeclined = errors.New("card declined")

	// ErrGatewayUnavailable is transient: the gateway could not be reached,
	// nothing may move to a terminal state and verification can be retried.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrAlreadyProcessed marks an idempotent replay: the payment already
	// reached COMPLETED and no side effects were applied again.
	ErrAlreadyProcessed = errors.New("payment already processed")
)
