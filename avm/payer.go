package avm

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/algorand/go-algorand-sdk/v2/types"

	"github.com/algox402/x402-go"
)

// CheckPayment reports whether txn is an asset transfer of exactly the
// required amount of the required asset to the required recipient.
func CheckPayment(txn types.Transaction, req x402.PaymentRequirement) error {
	if txn.Type != types.AssetTransferTx {
		return fmt.Errorf("payment transaction has type %q, want %q", txn.Type, types.AssetTransferTx)
	}
	if got := strconv.FormatUint(txn.AssetAmount, 10); got != req.MaxAmountRequired {
		return fmt.Errorf("payment amount %s, want %s", got, req.MaxAmountRequired)
	}
	if got := txn.AssetReceiver.String(); got != req.PayTo {
		return fmt.Errorf("payment receiver %s, want %s", got, req.PayTo)
	}
	if got := strconv.FormatUint(uint64(txn.XferAsset), 10); got != req.Asset {
		return fmt.Errorf("payment asset %s, want %s", got, req.Asset)
	}
	if !txn.AssetSender.IsZero() {
		return fmt.Errorf("payment is a clawback from %s", txn.AssetSender)
	}
	return nil
}

// PayerOf returns the sender of the group entry at index, the account that
// made the payment.
func PayerOf(group []string, index int) (string, error) {
	if index < 0 || index >= len(group) {
		return "", fmt.Errorf("payment index %d out of range", index)
	}
	e, err := DecodeBase64Entry(group[index])
	if err != nil {
		return "", err
	}
	return e.Txn.Sender.String(), nil
}

// PaymentDetails returns the payer and the base64 group id of the payment
// transaction at index. A transaction outside any group has an empty group id.
func PaymentDetails(group []string, index int) (payer, groupID string, err error) {
	if index < 0 || index >= len(group) {
		return "", "", fmt.Errorf("payment index %d out of range", index)
	}
	e, err := DecodeBase64Entry(group[index])
	if err != nil {
		return "", "", err
	}
	return e.Txn.Sender.String(), FormatGroupID(e.Txn.Group), nil
}

// FormatGroupID renders a group id the way explorers show it. The zero
// digest renders as "".
func FormatGroupID(d types.Digest) string {
	if d == (types.Digest{}) {
		return ""
	}
	return base64.StdEncoding.EncodeToString(d[:])
}
