// Package validation checks x402 wire values with go-playground/validator,
// extended with AVM-specific tags:
//
//   - avmnetwork: a supported Algorand network identifier
//   - algoaddr: a checksummed Algorand address
//   - atomic: a non-negative integer encoded as a decimal string
package validation

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/go-playground/validator/v10"

	"github.com/algox402/x402-go"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// Validator returns the shared validator with the AVM tags registered.
func Validator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("avmnetwork", func(fl validator.FieldLevel) bool {
			_, err := x402.ValidateNetwork(fl.Field().String())
			return err == nil
		})
		_ = validate.RegisterValidation("algoaddr", func(fl validator.FieldLevel) bool {
			return IsAddress(fl.Field().String())
		})
		_ = validate.RegisterValidation("atomic", func(fl validator.FieldLevel) bool {
			return isAtomic(fl.Field().String())
		})
	})
	return validate
}

// Struct validates v against its `validate` tags and flattens the failures
// into one readable error.
func Struct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
}

// IsAddress reports whether s is a checksummed Algorand address.
func IsAddress(s string) bool {
	_, err := types.DecodeAddress(s)
	return err == nil
}

func isAtomic(s string) bool {
	if s == "" {
		return false
	}
	n, ok := new(big.Int).SetString(s, 10)
	return ok && n.Sign() >= 0 && n.String() == s
}

// ValidateAmount validates that an amount string is a valid positive integer.
// Returns an error if the amount is empty, malformed, or not greater than zero.
func ValidateAmount(amount string) error {
	if amount == "" {
		return fmt.Errorf("amount cannot be empty")
	}

	amt, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return fmt.Errorf("invalid amount format: %s", amount)
	}

	if amt.Sign() <= 0 {
		return fmt.Errorf("amount must be greater than 0, got: %s", amount)
	}

	return nil
}

// ValidateAddress validates an address on the given network.
func ValidateAddress(address string, network string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	networkType, err := x402.ValidateNetwork(network)
	if err != nil {
		return fmt.Errorf("cannot validate address: %w", err)
	}

	switch networkType {
	case x402.NetworkTypeAVM:
		if _, err := types.DecodeAddress(address); err != nil {
			return fmt.Errorf("invalid Algorand address %s: %w", address, x402.ErrInvalidAddress)
		}
		return nil
	default:
		return fmt.Errorf("unsupported network type for address validation: %d", networkType)
	}
}

// ValidatePaymentRequirement performs comprehensive validation of a payment requirement.
func ValidatePaymentRequirement(req x402.PaymentRequirement) error {
	if err := ValidateAmount(req.MaxAmountRequired); err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}
	if err := Struct(req); err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}
	if fp := req.FeePayer(); fp != "" && !IsAddress(fp) {
		return fmt.Errorf("invalid requirement: feePayer %w", x402.ErrInvalidAddress)
	}
	return nil
}

// ValidatePaymentPayload validates a decoded payment payload, including the
// payment index bound.
func ValidatePaymentPayload(payment x402.PaymentPayload) error {
	if payment.X402Version != x402.X402Version {
		return fmt.Errorf("unsupported x402 version: %d", payment.X402Version)
	}
	if err := Struct(payment); err != nil {
		return err
	}
	if idx := payment.Payload.PaymentIndex; idx >= len(payment.Payload.PaymentGroup) {
		return fmt.Errorf("paymentIndex %d out of range for group of %d", idx, len(payment.Payload.PaymentGroup))
	}
	return nil
}
