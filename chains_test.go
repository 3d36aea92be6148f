package x402

import (
	"errors"
	"strings"
	"testing"
)

func TestChainConfigConstants(t *testing.T) {
	tests := []struct {
		name    string
		config  ChainConfig
		assetID uint64
		testnet bool
	}{
		{"AlgorandMainnet", AlgorandMainnet, 31566704, false},
		{"AlgorandTestnet", AlgorandTestnet, 10458941, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.config.USDC.ID != tt.assetID {
				t.Errorf("USDC.ID = %d, want %d", tt.config.USDC.ID, tt.assetID)
			}
			if tt.config.USDC.Decimals != 6 {
				t.Errorf("USDC.Decimals = %d, want 6", tt.config.USDC.Decimals)
			}
			if tt.config.Testnet != tt.testnet {
				t.Errorf("Testnet = %v, want %v", tt.config.Testnet, tt.testnet)
			}
			if !strings.HasPrefix(tt.config.AlgodURL, "https://") {
				t.Errorf("AlgodURL = %q, want https endpoint", tt.config.AlgodURL)
			}
		})
	}
}

func TestValidateNetwork(t *testing.T) {
	tests := []struct {
		network string
		want    NetworkType
		wantErr bool
	}{
		{"algorand", NetworkTypeAVM, false},
		{"algorand-testnet", NetworkTypeAVM, false},
		{"", NetworkTypeUnknown, true},
		{"base", NetworkTypeUnknown, true},
		{"Algorand", NetworkTypeUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.network, func(t *testing.T) {
			got, err := ValidateNetwork(tt.network)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateNetwork() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ValidateNetwork() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultAsset(t *testing.T) {
	asset, err := DefaultAsset(NetworkAlgorandTestnet)
	if err != nil {
		t.Fatalf("DefaultAsset() error = %v", err)
	}
	if asset.String() != "10458941" {
		t.Errorf("asset = %s, want 10458941", asset)
	}

	if _, err := DefaultAsset("solana"); !errors.Is(err, ErrInvalidNetwork) {
		t.Errorf("DefaultAsset(solana) error = %v, want ErrInvalidNetwork", err)
	}

	if !IsTestnet(NetworkAlgorandTestnet) || IsTestnet(NetworkAlgorand) || IsTestnet("unknown") {
		t.Error("IsTestnet mismatch")
	}
}

func TestNewUSDCPaymentRequirement(t *testing.T) {
	const payTo = "HZ57J3K46JIJXILONBBZOHX6BKPXEM2VVXNRFSUED6DKFD5ZD24PMJ3MVA"

	tests := []struct {
		name       string
		config     USDCRequirementConfig
		wantAmount string
		wantAsset  string
		wantErr    string
	}{
		{
			name:       "mainnet one and a half",
			config:     USDCRequirementConfig{Chain: AlgorandMainnet, Amount: "1.5", RecipientAddress: payTo},
			wantAmount: "1500000",
			wantAsset:  "31566704",
		},
		{
			name:       "testnet truncates below precision",
			config:     USDCRequirementConfig{Chain: AlgorandTestnet, Amount: "0.0000019", RecipientAddress: payTo},
			wantAmount: "1",
			wantAsset:  "10458941",
		},
		{
			name:    "missing recipient",
			config:  USDCRequirementConfig{Chain: AlgorandMainnet, Amount: "1"},
			wantErr: "recipientAddress",
		},
		{
			name:    "bad amount",
			config:  USDCRequirementConfig{Chain: AlgorandMainnet, Amount: "one", RecipientAddress: payTo},
			wantErr: "amount",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewUSDCPaymentRequirement(tt.config)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.MaxAmountRequired != tt.wantAmount {
				t.Errorf("MaxAmountRequired = %s, want %s", req.MaxAmountRequired, tt.wantAmount)
			}
			if req.Asset != tt.wantAsset {
				t.Errorf("Asset = %s, want %s", req.Asset, tt.wantAsset)
			}
			if req.Scheme != SchemeExact {
				t.Errorf("Scheme = %s, want exact", req.Scheme)
			}
			if req.MaxTimeoutSeconds != DefaultMaxTimeoutSeconds {
				t.Errorf("MaxTimeoutSeconds = %d, want %d", req.MaxTimeoutSeconds, DefaultMaxTimeoutSeconds)
			}
		})
	}
}
