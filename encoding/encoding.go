// Package encoding provides utilities for encoding and decoding x402 payment data.
// It handles base64 and JSON marshaling for payment payloads, settlements, and
// requirements, and validates inbound X-PAYMENT headers.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/algox402/x402-go"
)

// EncodePayment converts a PaymentPayload to base64-encoded JSON string.
// This is used for HTTP X-PAYMENT headers and other transport encoding needs.
//
// Returns an error if JSON marshaling fails.
func EncodePayment(payment x402.PaymentPayload) (string, error) {
	return encode("payment", payment)
}

// DecodePayment converts a base64-encoded JSON string to PaymentPayload
// without validating it. Use DecodePaymentHeader for untrusted input.
func DecodePayment(encoded string) (x402.PaymentPayload, error) {
	var payment x402.PaymentPayload
	err := decode("payment", encoded, &payment)
	return payment, err
}

// EncodeSettlement converts a SettlementResponse to base64-encoded JSON string.
// This is used for HTTP X-PAYMENT-RESPONSE headers.
func EncodeSettlement(settlement x402.SettlementResponse) (string, error) {
	return encode("settlement", settlement)
}

// DecodeSettlement converts a base64-encoded JSON string to SettlementResponse.
func DecodeSettlement(encoded string) (x402.SettlementResponse, error) {
	var settlement x402.SettlementResponse
	err := decode("settlement", encoded, &settlement)
	return settlement, err
}

// EncodeRequirements converts PaymentRequirementsResponse to base64-encoded JSON.
func EncodeRequirements(requirements x402.PaymentRequirementsResponse) (string, error) {
	return encode("requirements", requirements)
}

// DecodeRequirements converts base64-encoded JSON to PaymentRequirementsResponse.
func DecodeRequirements(encoded string) (x402.PaymentRequirementsResponse, error) {
	var requirements x402.PaymentRequirementsResponse
	err := decode("requirements", encoded, &requirements)
	return requirements, err
}

func encode(kind string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func decode(kind, encoded string, v any) error {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("failed to decode base64: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", kind, err)
	}
	return nil
}
