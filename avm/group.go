package avm

import (
	"errors"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/types"
)

// MaxGroupSize is the largest transaction group the network accepts.
const MaxGroupSize = 16

// ErrGroupMismatch is returned when group members do not share the group id
// computed over the whole group.
var ErrGroupMismatch = errors.New("avm: transaction group id mismatch")

// CheckGroup verifies that a multi-transaction group is bound together by a
// single group id equal to the one computed over its members in order. A
// single transaction needs no group id.
func CheckGroup(entries []Entry) error {
	if len(entries) > MaxGroupSize {
		return fmt.Errorf("%w: %d transactions exceeds %d", ErrGroupMismatch, len(entries), MaxGroupSize)
	}
	if len(entries) < 2 {
		return nil
	}

	declared := entries[0].Txn.Group
	if declared == (types.Digest{}) {
		return fmt.Errorf("%w: first transaction has no group id", ErrGroupMismatch)
	}

	bare := make([]types.Transaction, len(entries))
	for i, e := range entries {
		if e.Txn.Group != declared {
			return fmt.Errorf("%w: transaction %d", ErrGroupMismatch, i)
		}
		bare[i] = e.Txn
		bare[i].Group = types.Digest{}
	}

	computed, err := crypto.ComputeGroupID(bare)
	if err != nil {
		return fmt.Errorf("compute group id: %w", err)
	}
	if computed != declared {
		return fmt.Errorf("%w: declared id does not cover the group", ErrGroupMismatch)
	}
	return nil
}

// AssignGroup computes the group id for txns and stores it on each member.
func AssignGroup(txns []types.Transaction) error {
	if len(txns) < 2 {
		return nil
	}
	gid, err := crypto.ComputeGroupID(txns)
	if err != nil {
		return err
	}
	for i := range txns {
		txns[i].Group = gid
	}
	return nil
}
