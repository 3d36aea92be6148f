package x402

import (
	"errors"
	"fmt"
)

// Standard x402 error definitions

var (
	// ErrMalformedHeader indicates that the X-PAYMENT header is malformed.
	ErrMalformedHeader = errors.New("x402: malformed payment header")

	// ErrUnsupportedVersion indicates an unsupported x402 protocol version.
	ErrUnsupportedVersion = errors.New("x402: unsupported protocol version")

	// ErrUnsupportedScheme indicates an unsupported payment scheme.
	ErrUnsupportedScheme = errors.New("x402: unsupported payment scheme")

	// ErrInvalidNetwork indicates a network outside the supported AVM set.
	ErrInvalidNetwork = errors.New("x402: invalid or unsupported network")

	// ErrInvalidAmount indicates an amount that cannot be expressed in atomic units.
	ErrInvalidAmount = errors.New("x402: invalid amount")

	// ErrInvalidPrice indicates a price outside the accepted range or format.
	ErrInvalidPrice = errors.New("x402: invalid price")

	// ErrInvalidRequirements indicates requirements that fail validation.
	ErrInvalidRequirements = errors.New("x402: invalid payment requirements")

	// ErrInvalidAddress indicates a string that is not an Algorand address.
	ErrInvalidAddress = errors.New("x402: invalid address")

	// ErrInvalidMnemonic indicates a facilitator mnemonic that cannot be decoded.
	ErrInvalidMnemonic = errors.New("x402: invalid mnemonic phrase")

	// ErrNoMatchingRoute indicates the request path is not payment-gated.
	ErrNoMatchingRoute = errors.New("x402: no matching route")

	// ErrInvalidRoute indicates a route key or pattern that cannot be compiled.
	ErrInvalidRoute = errors.New("x402: invalid route pattern")

	// ErrNoMatchingRequirements indicates no requirement shares the payload's scheme and network.
	ErrNoMatchingRequirements = errors.New("x402: no matching payment requirements")

	// ErrFacilitatorUnavailable indicates the facilitator service is unavailable.
	ErrFacilitatorUnavailable = errors.New("x402: facilitator service unavailable")

	// ErrNodeUnavailable indicates no algod node is configured for a network.
	ErrNodeUnavailable = errors.New("x402: no node configured for network")

	// ErrVerificationFailed indicates payment verification failed.
	ErrVerificationFailed = errors.New("x402: payment verification failed")

	// ErrSettlementFailed indicates on-chain settlement failed.
	ErrSettlementFailed = errors.New("x402: payment settlement failed")

	// ErrLinkNotFound indicates a payment link that does not exist.
	ErrLinkNotFound = errors.New("x402: link not found")

	// ErrContentNotFound indicates gated content missing from the content provider.
	ErrContentNotFound = errors.New("x402: content not found")
)

// ErrorReason is the flat result enum carried in verify and settle responses.
// Reasons are data, never Go errors.
type ErrorReason string

const (
	ReasonInvalidTransactionCount    ErrorReason = "invalid_transaction_count"
	ReasonInvalidPaymentIndex        ErrorReason = "invalid_payment_index"
	ReasonInvalidPayment             ErrorReason = "invalid_payment"
	ReasonInvalidFeePoolTransaction  ErrorReason = "invalid_fee_pool_transaction"
	ReasonInvalidSimulation          ErrorReason = "invalid_simulation"
	ReasonInvalidTransactionGroup    ErrorReason = "invalid_transaction_group"
	ReasonUnexpectedVerifyError      ErrorReason = "unexpected_verify_error"
	ReasonUnexpectedSettleError      ErrorReason = "unexpected_settle_error"
	ReasonInvalidPayload             ErrorReason = "invalid_payload"
	ReasonInvalidNetwork             ErrorReason = "invalid_network"
	ReasonInvalidScheme              ErrorReason = "invalid_scheme"
	ReasonInvalidX402Version         ErrorReason = "invalid_x402_version"
	ReasonInvalidPaymentRequirements ErrorReason = "invalid_payment_requirements"
	ReasonUnsupportedScheme          ErrorReason = "unsupported_scheme"
)

// ErrorReasons lists every reason a facilitator may report.
var ErrorReasons = []ErrorReason{
	ReasonInvalidTransactionCount,
	ReasonInvalidPaymentIndex,
	ReasonInvalidPayment,
	ReasonInvalidFeePoolTransaction,
	ReasonInvalidSimulation,
	ReasonInvalidTransactionGroup,
	ReasonUnexpectedVerifyError,
	ReasonUnexpectedSettleError,
	ReasonInvalidPayload,
	ReasonInvalidNetwork,
	ReasonInvalidScheme,
	ReasonInvalidX402Version,
	ReasonInvalidPaymentRequirements,
	ReasonUnsupportedScheme,
}

// Valid reports whether r is a known reason.
func (r ErrorReason) Valid() bool {
	for _, known := range ErrorReasons {
		if r == known {
			return true
		}
	}
	return false
}

func (r ErrorReason) String() string {
	return string(r)
}

// ErrorCode classifies a PaymentError.
type ErrorCode string

const (
	ErrCodeInvalidPrice        ErrorCode = "INVALID_PRICE"
	ErrCodeInvalidRequirements ErrorCode = "INVALID_REQUIREMENTS"
	ErrCodeInvalidPayload      ErrorCode = "INVALID_PAYLOAD"
	ErrCodeInvalidRoute        ErrorCode = "INVALID_ROUTE"
	ErrCodeNetworkError        ErrorCode = "NETWORK_ERROR"
)

// PaymentError is a typed validation failure that callers translate into a
// 4xx response instead of a fault.
type PaymentError struct {
	Code    ErrorCode
	Message string
	Err     error
	Details map[string]any

	// Reason is the protocol reason this failure maps to, when there is one.
	Reason ErrorReason
}

// NewPaymentError creates a PaymentError with an initialized Details map.
func NewPaymentError(code ErrorCode, message string, err error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]any),
	}
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// WithDetails sets a detail key and returns the same error for chaining.
func (e *PaymentError) WithDetails(key string, value any) *PaymentError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithReason attaches the protocol reason this failure maps to.
func (e *PaymentError) WithReason(reason ErrorReason) *PaymentError {
	e.Reason = reason
	return e
}

// ReasonOf returns the ErrorReason carried by err, or fallback when err does
// not wrap a PaymentError with a reason.
func ReasonOf(err error, fallback ErrorReason) ErrorReason {
	var pe *PaymentError
	if errors.As(err, &pe) && pe.Reason != "" {
		return pe.Reason
	}
	return fallback
}
