// Package facilitatortest provides an in-memory facilitator.Interface.
package facilitatortest

import (
	"context"
	"sync"

	"github.com/algox402/x402-go"
	"github.com/algox402/x402-go/facilitator"
)

// Fake returns canned responses and records every call.
type Fake struct {
	mu sync.Mutex

	VerifyResp    *facilitator.VerifyResponse
	VerifyErr     error
	SettleResp    *x402.SettlementResponse
	SettleErr     error
	SupportedResp *facilitator.SupportedResponse
	SupportedErr  error

	// Block, when set, is waited on by Settle.
	Block chan struct{}

	// Settled receives a value after every Settle call when non-nil.
	Settled chan *x402.SettlementResponse

	verifyCalls []x402.PaymentPayload
	settleCalls []x402.PaymentPayload
}

var _ facilitator.Interface = (*Fake)(nil)

// Valid returns a Fake that accepts and settles everything.
func Valid(payer, txid string) *Fake {
	return &Fake{
		VerifyResp: &facilitator.VerifyResponse{IsValid: true, Payer: payer},
		SettleResp: &x402.SettlementResponse{Success: true, Transaction: txid, Payer: payer},
	}
}

func (f *Fake) Verify(ctx context.Context, payment x402.PaymentPayload, req x402.PaymentRequirement) (*facilitator.VerifyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls = append(f.verifyCalls, payment)
	if f.VerifyErr != nil {
		return nil, f.VerifyErr
	}
	if f.VerifyResp == nil {
		return &facilitator.VerifyResponse{IsValid: true}, nil
	}
	resp := *f.VerifyResp
	return &resp, nil
}

func (f *Fake) Settle(ctx context.Context, payment x402.PaymentPayload, req x402.PaymentRequirement) (*x402.SettlementResponse, error) {
	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	f.settleCalls = append(f.settleCalls, payment)
	var resp *x402.SettlementResponse
	err := f.SettleErr
	if err == nil {
		resp = &x402.SettlementResponse{Success: true, Transaction: "TXID"}
		if f.SettleResp != nil {
			copied := *f.SettleResp
			resp = &copied
		}
		resp.Network = payment.Network
	}
	notify := f.Settled
	f.mu.Unlock()

	if notify != nil {
		notify <- resp
	}
	return resp, err
}

func (f *Fake) Supported(ctx context.Context) (*facilitator.SupportedResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SupportedErr != nil {
		return nil, f.SupportedErr
	}
	if f.SupportedResp != nil {
		return f.SupportedResp, nil
	}
	return &facilitator.SupportedResponse{}, nil
}

// VerifyCount returns the number of Verify calls.
func (f *Fake) VerifyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.verifyCalls)
}

// SettleCount returns the number of Settle calls.
func (f *Fake) SettleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.settleCalls)
}
