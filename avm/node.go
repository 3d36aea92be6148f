package avm

import (
	"context"
	"fmt"
	"strings"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/algod"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/transaction"
	"github.com/algorand/go-algorand-sdk/v2/types"

	"github.com/algox402/x402-go"
)

// DefaultConfirmationRounds is how many rounds settlement waits for a group
// to be confirmed.
const DefaultConfirmationRounds = 3

// Node is the subset of algod the facilitator needs.
type Node interface {
	// Simulate dry-runs a fully signed group.
	Simulate(ctx context.Context, signed [][]byte) (SimulationResult, error)

	// Submit broadcasts a fully signed group and returns the first transaction id.
	Submit(ctx context.Context, signed [][]byte) (string, error)

	// WaitForConfirmation blocks until txid is confirmed or rounds pass.
	WaitForConfirmation(ctx context.Context, txid string, rounds uint64) (uint64, error)
}

// SimulationResult summarizes a dry run.
type SimulationResult struct {
	// FailedAt is the path to the failing transaction, empty on success.
	FailedAt []uint64

	// FailureMessage is algod's explanation of the failure.
	FailureMessage string
}

// Failed reports whether any transaction in the group failed.
func (r SimulationResult) Failed() bool {
	return len(r.FailedAt) > 0 || r.FailureMessage != ""
}

// NodeConfig points at an algod endpoint for one network.
type NodeConfig struct {
	Network string
	Address string
	Token   string
}

// PublicToken is accepted by the public algonode endpoints.
var PublicToken = strings.Repeat("a", 64)

// DefaultNodeConfigs returns public algod endpoints for every supported network.
func DefaultNodeConfigs() []NodeConfig {
	return []NodeConfig{
		{Network: x402.NetworkAlgorand, Address: x402.AlgorandMainnet.AlgodURL, Token: PublicToken},
		{Network: x402.NetworkAlgorandTestnet, Address: x402.AlgorandTestnet.AlgodURL, Token: PublicToken},
	}
}

// AlgodNode implements Node over the algod REST API.
type AlgodNode struct {
	network string
	client  *algod.Client
}

// NewAlgodNode creates a Node for cfg.
func NewAlgodNode(cfg NodeConfig) (*AlgodNode, error) {
	if _, err := x402.ValidateNetwork(cfg.Network); err != nil {
		return nil, err
	}
	token := cfg.Token
	if token == "" {
		token = PublicToken
	}
	client, err := algod.MakeClient(cfg.Address, token)
	if err != nil {
		return nil, fmt.Errorf("algod client for %s: %w", cfg.Network, err)
	}
	return &AlgodNode{network: cfg.Network, client: client}, nil
}

// NewNodes builds one AlgodNode per config, keyed by network.
func NewNodes(cfgs []NodeConfig) (map[string]Node, error) {
	nodes := make(map[string]Node, len(cfgs))
	for _, cfg := range cfgs {
		n, err := NewAlgodNode(cfg)
		if err != nil {
			return nil, err
		}
		nodes[cfg.Network] = n
	}
	return nodes, nil
}

// Network returns the network the node serves.
func (n *AlgodNode) Network() string {
	return n.network
}

func (n *AlgodNode) Simulate(ctx context.Context, signed [][]byte) (SimulationResult, error) {
	stxns := make([]types.SignedTxn, len(signed))
	for i, raw := range signed {
		if err := msgpack.Decode(raw, &stxns[i]); err != nil {
			return SimulationResult{}, fmt.Errorf("decode signed transaction %d: %w", i, err)
		}
	}

	resp, err := n.client.SimulateTransaction(models.SimulateRequest{
		TxnGroups: []models.SimulateRequestTransactionGroup{{Txns: stxns}},
	}).Do(ctx)
	if err != nil {
		return SimulationResult{}, fmt.Errorf("simulate on %s: %w", n.network, err)
	}

	for _, g := range resp.TxnGroups {
		if len(g.FailedAt) > 0 || g.FailureMessage != "" {
			return SimulationResult{FailedAt: g.FailedAt, FailureMessage: g.FailureMessage}, nil
		}
	}
	return SimulationResult{}, nil
}

func (n *AlgodNode) Submit(ctx context.Context, signed [][]byte) (string, error) {
	txid, err := n.client.SendRawTransaction(Concat(signed)).Do(ctx)
	if err != nil {
		return "", fmt.Errorf("send on %s: %w", n.network, err)
	}
	return txid, nil
}

func (n *AlgodNode) WaitForConfirmation(ctx context.Context, txid string, rounds uint64) (uint64, error) {
	info, err := transaction.WaitForConfirmation(n.client, txid, rounds, ctx)
	if err != nil {
		return 0, fmt.Errorf("wait for %s on %s: %w", txid, n.network, err)
	}
	return info.ConfirmedRound, nil
}
