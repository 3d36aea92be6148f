// Package avmtest provides payment-group builders and an in-memory Node for
// tests of packages that verify or settle AVM payments.
package avmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/types"

	"github.com/algox402/x402-go"
	"github.com/algox402/x402-go/avm"
)

// TestnetAsset is the default testnet USDC asset id.
const TestnetAsset = 10458941

// GroupSpec describes a payment group to build.
type GroupSpec struct {
	Payer  crypto.Account
	PayTo  types.Address
	Asset  uint64
	Amount uint64

	// FeePayer, when set, adds an unsigned zero-amount self-payment from it at
	// index 0 that covers the group's fees.
	FeePayer *crypto.Account

	// Mutate runs on the transactions before the group id is assigned.
	Mutate func(txns []types.Transaction)

	// LeavePaymentUnsigned encodes the payment as a bare transaction.
	LeavePaymentUnsigned bool
}

// Group is a built payment group.
type Group struct {
	Payload x402.AVMPayload
	Txns    []types.Transaction
}

// Header returns a transaction header valid on testnet.
func Header(sender types.Address, fee uint64) types.Header {
	return types.Header{
		Sender:      sender,
		Fee:         types.MicroAlgos(fee),
		FirstValid:  1000,
		LastValid:   2000,
		GenesisID:   "testnet-v1.0",
		GenesisHash: types.Digest{1, 2, 3},
	}
}

// BuildGroup builds and signs the payment group gs describes.
func BuildGroup(gs GroupSpec) (Group, error) {
	paymentFee := uint64(1000)
	var txns []types.Transaction
	if gs.FeePayer != nil {
		paymentFee = 0
		txns = append(txns, types.Transaction{
			Type:   types.PaymentTx,
			Header: Header(gs.FeePayer.Address, 2000),
			PaymentTxnFields: types.PaymentTxnFields{
				Receiver: gs.FeePayer.Address,
			},
		})
	}
	paymentIndex := len(txns)
	txns = append(txns, types.Transaction{
		Type:   types.AssetTransferTx,
		Header: Header(gs.Payer.Address, paymentFee),
		AssetTransferTxnFields: types.AssetTransferTxnFields{
			XferAsset:     types.AssetIndex(gs.Asset),
			AssetAmount:   gs.Amount,
			AssetReceiver: gs.PayTo,
		},
	})

	if gs.Mutate != nil {
		gs.Mutate(txns)
	}
	if err := avm.AssignGroup(txns); err != nil {
		return Group{}, err
	}

	entries := make([]string, len(txns))
	for i, txn := range txns {
		if txn.Sender == gs.Payer.Address && !(i == paymentIndex && gs.LeavePaymentUnsigned) {
			_, stx, err := crypto.SignTransaction(gs.Payer.PrivateKey, txn)
			if err != nil {
				return Group{}, err
			}
			entries[i] = avm.EncodeSigned(stx)
			continue
		}
		entries[i] = avm.EncodeUnsigned(txn)
	}

	return Group{
		Payload: x402.AVMPayload{PaymentIndex: paymentIndex, PaymentGroup: entries},
		Txns:    txns,
	}, nil
}

// MustBuildGroup is BuildGroup that panics on error.
func MustBuildGroup(gs GroupSpec) Group {
	g, err := BuildGroup(gs)
	if err != nil {
		panic(fmt.Sprintf("avmtest: build group: %v", err))
	}
	return g
}

// Node is an in-memory avm.Node.
type Node struct {
	mu sync.Mutex

	SimResult avm.SimulationResult
	SimErr    error
	SubmitErr error
	WaitErr   error
	TxID      string
	Round     uint64

	// Block, when set, is waited on by WaitForConfirmation.
	Block chan struct{}

	Simulated [][][]byte
	Submitted [][][]byte
}

var _ avm.Node = (*Node)(nil)

func (n *Node) Simulate(ctx context.Context, signed [][]byte) (avm.SimulationResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Simulated = append(n.Simulated, signed)
	return n.SimResult, n.SimErr
}

func (n *Node) Submit(ctx context.Context, signed [][]byte) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.SubmitErr != nil {
		return "", n.SubmitErr
	}
	n.Submitted = append(n.Submitted, signed)
	if n.TxID != "" {
		return n.TxID, nil
	}
	return "TXID", nil
}

func (n *Node) WaitForConfirmation(ctx context.Context, txid string, rounds uint64) (uint64, error) {
	if n.Block != nil {
		select {
		case <-n.Block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.WaitErr != nil {
		return 0, n.WaitErr
	}
	if n.Round == 0 {
		return 1001, nil
	}
	return n.Round, nil
}

// SubmitCount returns how many groups were submitted.
func (n *Node) SubmitCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Submitted)
}

// SimulateCount returns how many groups were simulated.
func (n *Node) SimulateCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Simulated)
}
