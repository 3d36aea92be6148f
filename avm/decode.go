// Package avm holds the Algorand transaction-group plumbing used by the
// facilitator: decoding payment group entries, checking group integrity,
// inspecting and co-signing fee-pool transactions, and talking to algod.
package avm

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/types"
)

// Encoding identifies which msgpack shape a group entry was decoded from.
type Encoding int

const (
	// Unsigned entries are bare transactions, typically left for the
	// facilitator to sign.
	Unsigned Encoding = iota
	// Signed entries are signed-transaction envelopes.
	Signed
)

func (e Encoding) String() string {
	if e == Signed {
		return "signed"
	}
	return "unsigned"
}

// ErrUndecodable is returned for entries that are neither a signed nor an
// unsigned transaction.
var ErrUndecodable = errors.New("avm: entry is not a transaction")

// Entry is one decoded member of a payment group.
type Entry struct {
	Encoding Encoding
	Txn      types.Transaction

	// Stx is the signed envelope when Encoding is Signed.
	Stx types.SignedTxn

	// Raw is the msgpack the entry was decoded from.
	Raw []byte
}

// HasSignature reports whether the entry carries any authorization.
func (e Entry) HasSignature() bool {
	if e.Encoding != Signed {
		return false
	}
	return e.Stx.Sig != (types.Signature{}) || len(e.Stx.Msig.Subsigs) > 0 || len(e.Stx.Lsig.Logic) > 0
}

// DecodeEntry decodes msgpack bytes as a signed transaction and, when that
// shape does not fit, as an unsigned one. The msgpack decoder rejects unknown
// fields, so the two shapes cannot be confused.
func DecodeEntry(raw []byte) (Entry, error) {
	var stx types.SignedTxn
	if err := msgpack.Decode(raw, &stx); err == nil && stx.Txn.Type != "" {
		return Entry{Encoding: Signed, Txn: stx.Txn, Stx: stx, Raw: raw}, nil
	}

	var txn types.Transaction
	if err := msgpack.Decode(raw, &txn); err == nil && txn.Type != "" {
		return Entry{Encoding: Unsigned, Txn: txn, Raw: raw}, nil
	}
	return Entry{}, ErrUndecodable
}

// DecodeBase64Entry decodes a base64 group entry.
func DecodeBase64Entry(s string) (Entry, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return DecodeEntry(raw)
}

// DecodeGroup decodes every entry of a payment group. Entries that cannot be
// decoded are left out, so callers compare the result length against the
// declared group size.
func DecodeGroup(group []string) []Entry {
	entries := make([]Entry, 0, len(group))
	for _, s := range group {
		e, err := DecodeBase64Entry(s)
		if err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

// EncodeUnsigned encodes a transaction as an unsigned group entry.
func EncodeUnsigned(txn types.Transaction) string {
	return base64.StdEncoding.EncodeToString(msgpack.Encode(txn))
}

// EncodeSigned encodes signed transaction bytes as a group entry.
func EncodeSigned(stx []byte) string {
	return base64.StdEncoding.EncodeToString(stx)
}
