// Package x402 implements the x402 payment challenge-response protocol for
// Algorand (AVM) networks: route matching, price resolution, payment
// requirements and the shared wire types used by the encoding, facilitator
// and http packages.
package x402

import (
	"fmt"
	"strconv"
)

// NetworkType represents the blockchain virtual machine type.
type NetworkType int

const (
	// NetworkTypeUnknown represents an unrecognized network.
	NetworkTypeUnknown NetworkType = iota
	// NetworkTypeAVM represents Algorand Virtual Machine chains.
	NetworkTypeAVM
)

// Network identifiers.
const (
	NetworkAlgorand        = "algorand"
	NetworkAlgorandTestnet = "algorand-testnet"
)

// Asset identifies an Algorand Standard Asset and its precision.
type Asset struct {
	ID       uint64
	Decimals int32
}

// String returns the ASA id in the decimal form used on the wire.
func (a Asset) String() string {
	return strconv.FormatUint(a.ID, 10)
}

// ChainConfig contains chain-specific configuration for the default asset.
type ChainConfig struct {
	// NetworkID is the x402 protocol network identifier.
	NetworkID string

	// USDC is the network's default payment asset.
	USDC Asset

	// Testnet marks non-production networks. The paywall shows a testnet banner.
	Testnet bool

	// AlgodURL is the public algod endpoint used when none is configured.
	AlgodURL string
}

var (
	// AlgorandMainnet is the configuration for Algorand mainnet.
	AlgorandMainnet = ChainConfig{
		NetworkID: NetworkAlgorand,
		USDC:      Asset{ID: 31566704, Decimals: 6},
		AlgodURL:  "https://mainnet-api.algonode.cloud",
	}

	// AlgorandTestnet is the configuration for Algorand testnet.
	AlgorandTestnet = ChainConfig{
		NetworkID: NetworkAlgorandTestnet,
		USDC:      Asset{ID: 10458941, Decimals: 6},
		Testnet:   true,
		AlgodURL:  "https://testnet-api.algonode.cloud",
	}
)

var chains = map[string]ChainConfig{
	NetworkAlgorand:        AlgorandMainnet,
	NetworkAlgorandTestnet: AlgorandTestnet,
}

// SupportedNetworks lists the network identifiers in a stable order.
var SupportedNetworks = []string{NetworkAlgorand, NetworkAlgorandTestnet}

// Chain returns the configuration for a network identifier.
func Chain(networkID string) (ChainConfig, error) {
	c, ok := chains[networkID]
	if !ok {
		return ChainConfig{}, fmt.Errorf("%w: %q", ErrInvalidNetwork, networkID)
	}
	return c, nil
}

// DefaultAsset returns the default payment asset for a network.
func DefaultAsset(networkID string) (Asset, error) {
	c, err := Chain(networkID)
	if err != nil {
		return Asset{}, err
	}
	return c.USDC, nil
}

// IsTestnet reports whether networkID names a test network.
func IsTestnet(networkID string) bool {
	c, ok := chains[networkID]
	return ok && c.Testnet
}

// ValidateNetwork validates a network identifier and returns its type.
//
// Supported networks:
//   - AVM: algorand, algorand-testnet
func ValidateNetwork(networkID string) (NetworkType, error) {
	if networkID == "" {
		return NetworkTypeUnknown, fmt.Errorf("%w: networkID cannot be empty", ErrInvalidNetwork)
	}
	if _, ok := chains[networkID]; !ok {
		return NetworkTypeUnknown, fmt.Errorf("%w: %q", ErrInvalidNetwork, networkID)
	}
	return NetworkTypeAVM, nil
}

// USDCRequirementConfig is the configuration for creating a USDC PaymentRequirement.
type USDCRequirementConfig struct {
	// Chain is the chain configuration with USDC details (required).
	Chain ChainConfig

	// Amount is the human-readable USDC amount (e.g., "1.5" = 1.5 USDC).
	Amount string

	// RecipientAddress is the payment recipient address (required).
	RecipientAddress string

	// Resource is the URL of the protected resource.
	Resource string

	// MaxTimeoutSeconds is the maximum payment timeout (optional, defaults to 60).
	MaxTimeoutSeconds int

	// MimeType is the response MIME type (optional).
	MimeType string

	// FeePayer is the facilitator address covering fees (optional).
	FeePayer string
}

// NewUSDCPaymentRequirement creates an exact-scheme PaymentRequirement paying
// USDC on the given chain. The amount is truncated to the asset's precision.
//
// Returns an error if validation fails. Error format: "parameterName: reason"
func NewUSDCPaymentRequirement(config USDCRequirementConfig) (PaymentRequirement, error) {
	if config.RecipientAddress == "" {
		return PaymentRequirement{}, fmt.Errorf("recipientAddress: cannot be empty")
	}

	atomic, err := AmountToBigInt(config.Amount, config.Chain.USDC.Decimals)
	if err != nil {
		return PaymentRequirement{}, fmt.Errorf("amount: invalid format")
	}

	maxTimeout := config.MaxTimeoutSeconds
	if maxTimeout == 0 {
		maxTimeout = DefaultMaxTimeoutSeconds
	}

	req := PaymentRequirement{
		Scheme:            SchemeExact,
		Network:           config.Chain.NetworkID,
		MaxAmountRequired: atomic.String(),
		Asset:             config.Chain.USDC.String(),
		PayTo:             config.RecipientAddress,
		Resource:          config.Resource,
		MimeType:          config.MimeType,
		MaxTimeoutSeconds: maxTimeout,
	}
	if config.FeePayer != "" {
		req.Extra = &RequirementExtra{FeePayer: config.FeePayer}
	}
	return req, nil
}
