// Package local implements facilitator.Interface in-process: payment groups
// are checked, co-signed with the facilitator account when it pays fees,
// simulated and broadcast through algod.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/crypto"

	"github.com/algox402/x402-go"
	"github.com/algox402/x402-go/avm"
	"github.com/algox402/x402-go/facilitator"
	"github.com/algox402/x402-go/metrics"
	"github.com/algox402/x402-go/retry"
)

// Config configures a Facilitator. The account is passed in explicitly and
// only ever used to sign fee-pool transactions.
type Config struct {
	// Account is the facilitator's signing account.
	Account crypto.Account

	// FeePayer makes the facilitator co-sign zero-amount self-payments that
	// cover the group's fees, and advertise itself as extra.feePayer.
	FeePayer bool

	// Nodes maps each supported network to its algod node.
	Nodes map[string]avm.Node

	// MaxFeePoolFee caps a fee-pool transaction's fee per group member, in
	// microAlgos. Zero means avm.DefaultMaxFeePerTxn.
	MaxFeePoolFee uint64

	// ConfirmationRounds bounds how long Settle waits. Zero means
	// avm.DefaultConfirmationRounds.
	ConfirmationRounds uint64

	// Retry applies to simulation calls. Zero value means retry.DefaultConfig.
	Retry retry.Config

	Metrics metrics.Recorder
	Logger  *slog.Logger
}

// Facilitator verifies and settles Algorand payment groups.
type Facilitator struct {
	cfg      Config
	feePayer avm.FeePayer
	rounds   uint64
	metrics  metrics.Recorder
	logger   *slog.Logger
}

var _ facilitator.Interface = (*Facilitator)(nil)

// New validates cfg and returns a Facilitator.
func New(cfg Config) (*Facilitator, error) {
	if len(cfg.Nodes) == 0 {
		return nil, errors.New("local facilitator: at least one network node is required")
	}
	for network := range cfg.Nodes {
		if _, err := x402.ValidateNetwork(network); err != nil {
			return nil, fmt.Errorf("local facilitator: %w", err)
		}
	}
	if cfg.FeePayer && (cfg.Account.Address.IsZero() || len(cfg.Account.PrivateKey) == 0) {
		return nil, errors.New("local facilitator: fee paying requires a signing account")
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig
	}

	rounds := cfg.ConfirmationRounds
	if rounds == 0 {
		rounds = avm.DefaultConfirmationRounds
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Facilitator{
		cfg:      cfg,
		feePayer: avm.FeePayer{Account: cfg.Account, MaxFeePerTxn: cfg.MaxFeePoolFee},
		rounds:   rounds,
		metrics:  metrics.OrNoop(cfg.Metrics),
		logger:   logger,
	}, nil
}

// Address returns the facilitator account address.
func (f *Facilitator) Address() string {
	return f.cfg.Account.Address.String()
}

// Supported advertises the exact scheme on every network with a node.
func (f *Facilitator) Supported(ctx context.Context) (*facilitator.SupportedResponse, error) {
	networks := make([]string, 0, len(f.cfg.Nodes))
	for network := range f.cfg.Nodes {
		networks = append(networks, network)
	}
	sort.Strings(networks)

	resp := &facilitator.SupportedResponse{Kinds: make([]facilitator.SupportedKind, 0, len(networks))}
	for _, network := range networks {
		kind := facilitator.SupportedKind{
			X402Version: x402.X402Version,
			Scheme:      x402.SchemeExact,
			Network:     network,
		}
		if f.cfg.FeePayer {
			kind.Extra = &x402.RequirementExtra{FeePayer: f.Address()}
		}
		resp.Kinds = append(resp.Kinds, kind)
	}
	return resp, nil
}

// prepared is a group that passed every local check and is ready for algod.
type prepared struct {
	node   avm.Node
	signed [][]byte
	payer  string
}

// failure is a protocol rejection plus the detail that is logged for it.
type failure struct {
	reason x402.ErrorReason
	err    error
}

func reject(reason x402.ErrorReason, err error) *failure {
	return &failure{reason: reason, err: err}
}

// prepare runs the checks shared by Verify and Settle and produces the final
// signed group.
func (f *Facilitator) prepare(payment x402.PaymentPayload, req x402.PaymentRequirement, unexpected x402.ErrorReason) (*prepared, *failure) {
	if payment.Scheme != x402.SchemeExact || req.Scheme != x402.SchemeExact {
		return nil, reject(x402.ReasonInvalidScheme, fmt.Errorf("scheme %q", payment.Scheme))
	}
	if payment.Network != req.Network {
		return nil, reject(x402.ReasonInvalidNetwork, fmt.Errorf("payload network %q, requirement network %q", payment.Network, req.Network))
	}
	node, ok := f.cfg.Nodes[payment.Network]
	if !ok {
		return nil, reject(x402.ReasonInvalidNetwork, fmt.Errorf("no node for %q", payment.Network))
	}

	group := payment.Payload.PaymentGroup
	entries := avm.DecodeGroup(group)
	if len(group) == 0 || len(entries) != len(group) || len(group) > avm.MaxGroupSize {
		return nil, reject(x402.ReasonInvalidTransactionCount,
			fmt.Errorf("decoded %d of %d transactions", len(entries), len(group)))
	}

	index := payment.Payload.PaymentIndex
	if index < 0 || index >= len(entries) {
		return nil, reject(x402.ReasonInvalidPaymentIndex, fmt.Errorf("index %d, group size %d", index, len(entries)))
	}

	// Fee-pool violations are reported whatever the state of the payment.
	if f.cfg.FeePayer {
		if _, err := f.feePayer.FeePoolIndices(entries); err != nil {
			return nil, reject(x402.ReasonInvalidFeePoolTransaction, err)
		}
	}

	paymentTxn := entries[index].Txn
	if err := avm.CheckPayment(paymentTxn, req); err != nil {
		return nil, reject(x402.ReasonInvalidPayment, err)
	}
	if err := avm.CheckGroup(entries); err != nil {
		return nil, reject(x402.ReasonInvalidTransactionGroup, err)
	}

	p := &prepared{node: node, payer: paymentTxn.Sender.String()}
	var err error
	if f.cfg.FeePayer {
		p.signed, err = f.feePayer.CoSign(entries)
	} else {
		p.signed, err = avm.Finalize(entries)
	}
	if err != nil {
		if errors.Is(err, avm.ErrInvalidFeePool) {
			return nil, reject(x402.ReasonInvalidFeePoolTransaction, err)
		}
		return nil, reject(unexpected, err)
	}
	return p, nil
}

// Verify checks the payment group and simulates it. Protocol failures and
// unexpected problems alike are reported in the response; the error return
// is always nil. When fee paying, every response names the facilitator as
// payer; otherwise payer is empty. The requester is recovered from the
// payment transaction by whoever needs it.
func (f *Facilitator) Verify(ctx context.Context, payment x402.PaymentPayload, req x402.PaymentRequirement) (resp *facilitator.VerifyResponse, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("verify panicked", "network", payment.Network, "panic", r)
			resp, err = f.invalid(x402.ReasonUnexpectedVerifyError), nil
		}
		f.metrics.ObserveLatency(metrics.OpVerify, time.Since(start), metrics.Labels(payment.Network, ""))
	}()

	p, fail := f.prepare(payment, req, x402.ReasonUnexpectedVerifyError)
	if fail != nil {
		f.logger.Info("payment rejected", "network", payment.Network, "reason", fail.reason, "error", fail.err)
		return f.invalid(fail.reason), nil
	}

	sim, simErr := retry.WithRetry(ctx, f.cfg.Retry, retry.Transient, func() (avm.SimulationResult, error) {
		return p.node.Simulate(ctx, p.signed)
	})
	if simErr != nil {
		f.logger.Error("simulation unavailable", "network", payment.Network, "error", simErr)
		return f.invalid(x402.ReasonUnexpectedVerifyError), nil
	}
	if sim.Failed() {
		f.logger.Info("simulation failed", "network", payment.Network, "failed_at", sim.FailedAt, "message", sim.FailureMessage)
		return f.invalid(x402.ReasonInvalidSimulation), nil
	}

	return &facilitator.VerifyResponse{IsValid: true, Payer: f.verifyPayer()}, nil
}

func (f *Facilitator) invalid(reason x402.ErrorReason) *facilitator.VerifyResponse {
	resp := facilitator.Invalid(reason)
	resp.Payer = f.verifyPayer()
	return resp
}

// verifyPayer is the payer reported by Verify.
func (f *Facilitator) verifyPayer() string {
	if f.cfg.FeePayer {
		return f.Address()
	}
	return ""
}

// Settle repeats the local checks, broadcasts the group and waits a bounded
// number of rounds for confirmation. It does not deduplicate: settling a
// group twice submits it twice and lets the network reject the repeat.
func (f *Facilitator) Settle(ctx context.Context, payment x402.PaymentPayload, req x402.PaymentRequirement) (resp *x402.SettlementResponse, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("settle panicked", "network", payment.Network, "panic", r)
			resp, err = &x402.SettlementResponse{ErrorReason: x402.ReasonUnexpectedSettleError, Network: payment.Network}, nil
		}
		f.metrics.ObserveLatency(metrics.OpSettle, time.Since(start), metrics.Labels(payment.Network, ""))
	}()

	failed := func(reason x402.ErrorReason, txid string) *x402.SettlementResponse {
		return &x402.SettlementResponse{ErrorReason: reason, Network: payment.Network, Transaction: txid}
	}

	p, fail := f.prepare(payment, req, x402.ReasonUnexpectedSettleError)
	if fail != nil {
		f.logger.Warn("settlement rejected", "network", payment.Network, "reason", fail.reason, "error", fail.err)
		return failed(fail.reason, ""), nil
	}

	txid, submitErr := p.node.Submit(ctx, p.signed)
	if submitErr != nil {
		f.logger.Error("submit failed", "network", payment.Network, "payer", p.payer, "error", submitErr)
		return failed(x402.ReasonUnexpectedSettleError, ""), nil
	}

	round, waitErr := p.node.WaitForConfirmation(ctx, txid, f.rounds)
	if waitErr != nil {
		f.logger.Error("confirmation failed", "network", payment.Network, "transaction", txid, "error", waitErr)
		return failed(x402.ReasonUnexpectedSettleError, txid), nil
	}

	f.logger.Info("payment settled", "network", payment.Network, "transaction", txid, "round", round, "payer", p.payer)
	return &x402.SettlementResponse{
		Success:     true,
		Transaction: txid,
		Network:     payment.Network,
		Payer:       p.payer,
	}, nil
}
