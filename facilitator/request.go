package facilitator

import (
	"fmt"

	"github.com/algox402/x402-go"
	"github.com/algox402/x402-go/validation"
)

// Check reports why req cannot be handed to a facilitator, or "" when it is
// well formed. The returned error describes the failure for logging.
func (req Request) Check() (x402.ErrorReason, error) {
	if req.X402Version != 0 && req.X402Version != x402.X402Version {
		return x402.ReasonInvalidX402Version, fmt.Errorf("unsupported x402Version %d", req.X402Version)
	}
	if err := validation.ValidatePaymentRequirement(req.PaymentRequirements); err != nil {
		return x402.ReasonInvalidPaymentRequirements, err
	}
	if _, err := x402.ValidateNetwork(req.PaymentPayload.Network); err != nil {
		return x402.ReasonInvalidNetwork, err
	}
	if err := validation.ValidatePaymentPayload(req.PaymentPayload); err != nil {
		if req.PaymentPayload.X402Version != x402.X402Version {
			return x402.ReasonInvalidX402Version, err
		}
		return x402.ReasonInvalidPayload, err
	}
	return "", nil
}
