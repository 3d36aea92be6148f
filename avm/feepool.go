package avm

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/types"
)

// DefaultMaxFeePerTxn caps what a fee-pool transaction may spend per group
// member, in microAlgos.
const DefaultMaxFeePerTxn = 1000

var (
	// ErrInvalidFeePool is returned when a transaction sent by the fee payer
	// is anything other than a zero-amount self-payment.
	ErrInvalidFeePool = errors.New("avm: invalid fee pool transaction")

	// ErrUnsigned is returned when an entry that nobody co-signs has no signature.
	ErrUnsigned = errors.New("avm: transaction is not signed")
)

// FeePayer is the facilitator account covering group fees.
type FeePayer struct {
	Account crypto.Account

	// MaxFeePerTxn bounds the fee-pool fee per group member. Zero means
	// DefaultMaxFeePerTxn.
	MaxFeePerTxn uint64
}

// Address returns the fee payer's address.
func (f FeePayer) Address() types.Address {
	return f.Account.Address
}

func (f FeePayer) maxFee(groupSize int) uint64 {
	per := f.MaxFeePerTxn
	if per == 0 {
		per = DefaultMaxFeePerTxn
	}
	return per * uint64(groupSize)
}

// FeePoolIndices returns the positions of the transactions sent by the fee
// payer. Each must be a zero-amount payment to itself with no close-out, no
// rekey and a fee within the cap; otherwise ErrInvalidFeePool is returned.
func (f FeePayer) FeePoolIndices(entries []Entry) ([]int, error) {
	addr := f.Address()
	limit := f.maxFee(len(entries))

	var indices []int
	for i, e := range entries {
		txn := e.Txn
		if txn.Sender != addr {
			continue
		}
		switch {
		case txn.Type != types.PaymentTx:
			return nil, fmt.Errorf("%w: transaction %d has type %q", ErrInvalidFeePool, i, txn.Type)
		case txn.Amount != 0:
			return nil, fmt.Errorf("%w: transaction %d moves %d microAlgos", ErrInvalidFeePool, i, txn.Amount)
		case txn.Receiver != addr:
			return nil, fmt.Errorf("%w: transaction %d pays another account", ErrInvalidFeePool, i)
		case !txn.CloseRemainderTo.IsZero():
			return nil, fmt.Errorf("%w: transaction %d closes the account", ErrInvalidFeePool, i)
		case !txn.RekeyTo.IsZero():
			return nil, fmt.Errorf("%w: transaction %d rekeys the account", ErrInvalidFeePool, i)
		case uint64(txn.Fee) > limit:
			return nil, fmt.Errorf("%w: transaction %d fee %d exceeds %d", ErrInvalidFeePool, i, txn.Fee, limit)
		}
		indices = append(indices, i)
	}
	return indices, nil
}

// CoSign validates the fee-pool transactions and returns the final signed
// group: fee-pool entries signed with the fee payer's key, every other entry
// passed through as submitted.
func (f FeePayer) CoSign(entries []Entry) ([][]byte, error) {
	indices, err := f.FeePoolIndices(entries)
	if err != nil {
		return nil, err
	}
	return finalize(entries, indices, f.Account.PrivateKey)
}

// Finalize returns the group as submitted, requiring every entry to be signed.
func Finalize(entries []Entry) ([][]byte, error) {
	return finalize(entries, nil, nil)
}

func finalize(entries []Entry, sign []int, sk ed25519.PrivateKey) ([][]byte, error) {
	cosign := make(map[int]bool, len(sign))
	for _, i := range sign {
		cosign[i] = true
	}

	out := make([][]byte, len(entries))
	for i, e := range entries {
		if cosign[i] {
			_, stx, err := crypto.SignTransaction(sk, e.Txn)
			if err != nil {
				return nil, fmt.Errorf("sign fee pool transaction %d: %w", i, err)
			}
			out[i] = stx
			continue
		}
		if !e.HasSignature() {
			return nil, fmt.Errorf("%w: transaction %d", ErrUnsigned, i)
		}
		out[i] = e.Raw
	}
	return out, nil
}

// Concat joins signed transactions into the body algod expects for a group.
func Concat(signed [][]byte) []byte {
	n := 0
	for _, b := range signed {
		n += len(b)
	}
	out := make([]byte, 0, n)
	for _, b := range signed {
		out = append(out, b...)
	}
	return out
}
