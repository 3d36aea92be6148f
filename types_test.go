package x402

import (
	"encoding/json"
	"math/big"
	"testing"
)

func TestRequirementExtra_JSON(t *testing.T) {
	t.Run("fee payer and extension fields are flattened", func(t *testing.T) {
		extra := RequirementExtra{
			FeePayer:   "FACILITATOR",
			Additional: map[string]any{"memo": "invoice-7"},
		}
		data, err := json.Marshal(extra)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if raw["feePayer"] != "FACILITATOR" || raw["memo"] != "invoice-7" {
			t.Errorf("flattened extra = %v", raw)
		}
	})

	t.Run("unknown keys stay opaque", func(t *testing.T) {
		var extra RequirementExtra
		if err := json.Unmarshal([]byte(`{"feePayer":"ABC","name":"USDC","version":2}`), &extra); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if extra.FeePayer != "ABC" {
			t.Errorf("FeePayer = %q, want ABC", extra.FeePayer)
		}
		if extra.Additional["name"] != "USDC" || extra.Additional["version"] != float64(2) {
			t.Errorf("Additional = %v", extra.Additional)
		}
	})

	t.Run("requirement without extra omits it", func(t *testing.T) {
		data, err := json.Marshal(PaymentRequirement{Scheme: SchemeExact})
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		var raw map[string]any
		_ = json.Unmarshal(data, &raw)
		if _, ok := raw["extra"]; ok {
			t.Error("extra should be omitted when nil")
		}
		if _, ok := raw["outputSchema"]; ok {
			t.Error("outputSchema should be omitted when nil")
		}
	})
}

func TestOutputSchema_JSON(t *testing.T) {
	in := `{"input":{"type":"http","method":"GET"},"output":{"url":{"type":"string"}},"discoverable":true}`

	var schema OutputSchema
	if err := json.Unmarshal([]byte(in), &schema); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if schema.Input == nil || schema.Input.Method != "GET" || schema.Input.Type != InputSchemaTypeHTTP {
		t.Fatalf("Input = %+v", schema.Input)
	}
	if schema.Output["url"].Type != "string" {
		t.Errorf("Output = %+v", schema.Output)
	}
	if schema.Additional["discoverable"] != true {
		t.Errorf("Additional = %v", schema.Additional)
	}

	out, err := json.Marshal(schema)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back["discoverable"] != true {
		t.Errorf("extension field lost: %s", out)
	}
	input, _ := back["input"].(map[string]any)
	if input["method"] != "GET" {
		t.Errorf("input lost: %s", out)
	}
}

func TestPaymentPayload_JSONShape(t *testing.T) {
	payload := PaymentPayload{
		X402Version: 1,
		Scheme:      SchemeExact,
		Network:     NetworkAlgorandTestnet,
		Payload:     AVMPayload{PaymentIndex: 1, PaymentGroup: []string{"AA==", "AQ=="}},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"x402Version":1,"scheme":"exact","network":"algorand-testnet","payload":{"paymentIndex":1,"paymentGroup":["AA==","AQ=="]}}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

func TestAmountConversion(t *testing.T) {
	tests := []struct {
		amount   string
		decimals int32
		want     string
		wantErr  bool
	}{
		{"1.5", 6, "1500000", false},
		{"3.10", 6, "3100000", false},
		{"0.0000015", 6, "1", false},
		{"42", 0, "42", false},
		{"-1", 6, "", true},
		{"abc", 6, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			got, err := AmountToBigInt(tt.amount, tt.decimals)
			if (err != nil) != tt.wantErr {
				t.Fatalf("AmountToBigInt() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got.String() != tt.want {
				t.Errorf("AmountToBigInt() = %s, want %s", got, tt.want)
			}
		})
	}

	if got := BigIntToAmount(big.NewInt(1500000), 6); got != "1.5" {
		t.Errorf("BigIntToAmount() = %s, want 1.5", got)
	}
	if got := BigIntToAmount(nil, 6); got != "0" {
		t.Errorf("BigIntToAmount(nil) = %s, want 0", got)
	}
}
