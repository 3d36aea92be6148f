package x402

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestResolvePrice(t *testing.T) {
	tests := []struct {
		name      string
		price     Price
		network   string
		want      string
		wantAsset uint64
		wantErr   bool
	}{
		{"dollar string", Money("$3.10"), NetworkAlgorand, "3100000", 31566704, false},
		{"plain string", Money("0.001"), NetworkAlgorandTestnet, "1000", 10458941, false},
		{"thousands separator stripped", Money("$1,000"), NetworkAlgorand, "1000000000", 31566704, false},
		{"number", Dollars(0.10), NetworkAlgorand, "100000", 31566704, false},
		{"minimum", Money("0.0001"), NetworkAlgorand, "100", 31566704, false},
		{"maximum", Money("999999999"), NetworkAlgorand, "999999999000000", 31566704, false},
		{"below minimum", Money("0.00009"), NetworkAlgorand, "", 0, true},
		{"above maximum", Dollars(1e9), NetworkAlgorand, "", 0, true},
		{"negative", Money("-1"), NetworkAlgorand, "", 0, true},
		{"not a number", Money("free"), NetworkAlgorand, "", 0, true},
		{"unknown network", Money("$1"), "base", "", 0, true},
		{"nil price", nil, NetworkAlgorand, "", 0, true},
		{"NaN", Dollars(math.NaN()), NetworkAlgorand, "", 0, true},
		{"positive infinity", Dollars(math.Inf(1)), NetworkAlgorand, "", 0, true},
		{"negative infinity", Dollars(math.Inf(-1)), NetworkAlgorand, "", 0, true},
		{
			name:      "token amount",
			price:     TokenAmount{Amount: decimal.RequireFromString("2.5"), Asset: Asset{ID: 123, Decimals: 2}},
			network:   NetworkAlgorand,
			want:      "250",
			wantAsset: 123,
		},
		{
			name:      "token amount truncates",
			price:     TokenAmount{Amount: decimal.RequireFromString("0.129"), Asset: Asset{ID: 7, Decimals: 2}},
			network:   NetworkAlgorandTestnet,
			want:      "12",
			wantAsset: 7,
		},
		{
			name:    "negative token amount",
			price:   TokenAmount{Amount: decimal.RequireFromString("-1"), Asset: Asset{ID: 7}},
			network: NetworkAlgorand,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolvePrice(tt.price, tt.network)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ResolvePrice() = %+v, want error", got)
				}
				var pe *PaymentError
				if !errors.As(err, &pe) || pe.Code != ErrCodeInvalidPrice {
					t.Errorf("error = %v, want *PaymentError with ErrCodeInvalidPrice", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolvePrice() error = %v", err)
			}
			if got.MaxAmountRequired != tt.want {
				t.Errorf("MaxAmountRequired = %s, want %s", got.MaxAmountRequired, tt.want)
			}
			if got.Asset.ID != tt.wantAsset {
				t.Errorf("Asset.ID = %d, want %d", got.Asset.ID, tt.wantAsset)
			}
		})
	}
}

func TestResolvePrice_ErrorReasons(t *testing.T) {
	_, err := ResolvePrice(Money("$1"), "solana")
	if got := ReasonOf(err, ""); got != ReasonInvalidNetwork {
		t.Errorf("reason = %q, want %q", got, ReasonInvalidNetwork)
	}
	if !errors.Is(err, ErrInvalidNetwork) {
		t.Errorf("error = %v, want wrapping ErrInvalidNetwork", err)
	}

	_, err = ResolvePrice(Money("abc"), NetworkAlgorand)
	if !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("error = %v, want wrapping ErrInvalidPrice", err)
	}
}
