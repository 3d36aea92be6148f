// Package facilitator defines the contract between a payment gate and the
// service that verifies and settles Algorand payment groups.
package facilitator

import (
	"context"

	"github.com/algox402/x402-go"
)

// Interface is implemented by the in-process facilitator, the remote HTTP
// client and anything else able to check and broadcast payment groups.
//
// Protocol failures are reported in the result (IsValid false, Success false
// with a reason); a non-nil error means the facilitator itself could not be
// reached or failed unexpectedly.
type Interface interface {
	// Verify checks a payment group without broadcasting it.
	Verify(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*VerifyResponse, error)

	// Settle broadcasts the group and waits for confirmation.
	Settle(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*x402.SettlementResponse, error)

	// Supported lists the scheme/network pairs the facilitator accepts.
	Supported(ctx context.Context) (*SupportedResponse, error)
}

// VerifyResponse contains the payment verification result from the facilitator.
type VerifyResponse struct {
	IsValid       bool             `json:"isValid"`
	InvalidReason x402.ErrorReason `json:"invalidReason,omitempty"`
	Payer         string           `json:"payer,omitempty"`
}

// Invalid builds a failed VerifyResponse.
func Invalid(reason x402.ErrorReason) *VerifyResponse {
	return &VerifyResponse{InvalidReason: reason}
}

// SupportedKind describes one accepted scheme/network pair.
type SupportedKind struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     string                 `json:"network"`
	Extra       *x402.RequirementExtra `json:"extra,omitempty"`
}

// SupportedResponse lists all payment types supported by the facilitator.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

// FeePayers maps each network to the fee payer address the facilitator
// advertises for it, skipping networks it does not co-sign for.
func (s *SupportedResponse) FeePayers() map[string]string {
	out := make(map[string]string)
	if s == nil {
		return out
	}
	for _, k := range s.Kinds {
		if k.Scheme != x402.SchemeExact || k.Extra == nil || k.Extra.FeePayer == "" {
			continue
		}
		out[k.Network] = k.Extra.FeePayer
	}
	return out
}

// Request is the JSON body of the /verify and /settle endpoints.
type Request struct {
	X402Version         int                     `json:"x402Version"`
	PaymentPayload      x402.PaymentPayload     `json:"paymentPayload"`
	PaymentRequirements x402.PaymentRequirement `json:"paymentRequirements"`
}
