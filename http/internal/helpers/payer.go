package helpers

import (
	"log/slog"

	"github.com/algox402/x402-go"
	"github.com/algox402/x402-go/avm"
)

// GetPayer returns the sender of the payment transaction and the group id it
// belongs to. Both are empty when the payment entry cannot be decoded.
func GetPayer(payment x402.PaymentPayload) (payer, groupID string) {
	payer, groupID, err := avm.PaymentDetails(payment.Payload.PaymentGroup, payment.Payload.PaymentIndex)
	if err != nil {
		slog.Default().Error("failed to recover payer", "network", payment.Network, "error", err)
		return "", ""
	}
	return payer, groupID
}
