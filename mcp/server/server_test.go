package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	mcpproto "github.com/mark3labs/mcp-go/mcp"

	"github.com/algox402/x402-go"
	"github.com/algox402/x402-go/avm/avmtest"
	"github.com/algox402/x402-go/encoding"
	"github.com/algox402/x402-go/facilitator"
	"github.com/algox402/x402-go/facilitator/facilitatortest"
	"github.com/algox402/x402-go/mcp"
)

var (
	quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	payer       = crypto.GenerateAccount()
	payTo       = crypto.GenerateAccount()
)

func newServer(t *testing.T, fac facilitator.Interface) *FacilitatorServer {
	t.Helper()
	s, err := NewFacilitatorServer("x402-facilitator", "test", Config{Facilitator: fac, Logger: quietLogger})
	if err != nil {
		t.Fatalf("NewFacilitatorServer() error = %v", err)
	}
	return s
}

func testRequirement() x402.PaymentRequirement {
	return x402.PaymentRequirement{
		Scheme:            x402.SchemeExact,
		Network:           x402.NetworkAlgorandTestnet,
		MaxAmountRequired: "10000",
		Resource:          "https://example.com/premium",
		PayTo:             payTo.Address.String(),
		MaxTimeoutSeconds: 60,
		Asset:             "10458941",
	}
}

func testPayment() x402.PaymentPayload {
	group := avmtest.MustBuildGroup(avmtest.GroupSpec{
		Payer:  payer,
		PayTo:  payTo.Address,
		Asset:  avmtest.TestnetAsset,
		Amount: 10000,
	})
	return x402.PaymentPayload{
		X402Version: x402.X402Version,
		Scheme:      x402.SchemeExact,
		Network:     x402.NetworkAlgorandTestnet,
		Payload:     group.Payload,
	}
}

// asArgument round-trips v through JSON the way an MCP client delivers it.
func asArgument(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func callRequest(name string, args map[string]any) mcpproto.CallToolRequest {
	req := mcpproto.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcpproto.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	switch c := res.Content[0].(type) {
	case mcpproto.TextContent:
		return c.Text
	case *mcpproto.TextContent:
		return c.Text
	}
	t.Fatalf("content is %T, want text", res.Content[0])
	return ""
}

func TestNewFacilitatorServer_RequiresFacilitator(t *testing.T) {
	if _, err := NewFacilitatorServer("x", "1", Config{}); err == nil {
		t.Error("expected error without a facilitator")
	}
}

func TestTools_Registered(t *testing.T) {
	s := newServer(t, facilitatortest.Valid("P", "T"))

	tests := []struct {
		readOnly bool
		want     []string
	}{
		{false, []string{mcp.ToolSupported, mcp.ToolVerify, mcp.ToolSettle}},
		{true, []string{mcp.ToolSupported, mcp.ToolVerify}},
	}
	for _, tt := range tests {
		tools := s.tools(tt.readOnly)
		if len(tools) != len(tt.want) {
			t.Fatalf("readOnly=%v: %d tools, want %d", tt.readOnly, len(tools), len(tt.want))
		}
		for i, name := range tt.want {
			if tools[i].Tool.Name != name {
				t.Errorf("tool %d = %q, want %q", i, tools[i].Tool.Name, name)
			}
		}
	}
	if s.Handler() == nil {
		t.Error("Handler() returned nil")
	}
}

func TestHandleSupported(t *testing.T) {
	fac := facilitatortest.Valid("P", "T")
	fac.SupportedResp = &facilitator.SupportedResponse{Kinds: []facilitator.SupportedKind{{
		X402Version: 1, Scheme: x402.SchemeExact, Network: x402.NetworkAlgorandTestnet,
	}}}
	s := newServer(t, fac)

	res, err := s.handleSupported(context.Background(), callRequest(mcp.ToolSupported, nil))
	if err != nil {
		t.Fatalf("handleSupported() error = %v", err)
	}
	var got facilitator.SupportedResponse
	if err := json.Unmarshal([]byte(resultText(t, res)), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Kinds) != 1 || got.Kinds[0].Network != x402.NetworkAlgorandTestnet {
		t.Errorf("kinds = %+v", got.Kinds)
	}
}

func TestHandleVerify(t *testing.T) {
	header, err := encoding.EncodePayment(testPayment())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		args       map[string]any
		wantValid  bool
		wantReason x402.ErrorReason
		wantError  bool
		wantCalls  int
	}{
		{
			name: "decoded payload",
			args: map[string]any{
				mcp.ArgPaymentPayload:      asArgument(t, testPayment()),
				mcp.ArgPaymentRequirements: asArgument(t, testRequirement()),
			},
			wantValid: true,
			wantCalls: 1,
		},
		{
			name: "header",
			args: map[string]any{
				mcp.ArgPaymentHeader:       header,
				mcp.ArgPaymentRequirements: asArgument(t, testRequirement()),
			},
			wantValid: true,
			wantCalls: 1,
		},
		{
			name: "undecodable header",
			args: map[string]any{
				mcp.ArgPaymentHeader:       "%%%%",
				mcp.ArgPaymentRequirements: asArgument(t, testRequirement()),
			},
			wantReason: x402.ReasonInvalidPayload,
		},
		{
			name: "bad requirement",
			args: map[string]any{
				mcp.ArgPaymentPayload:      asArgument(t, testPayment()),
				mcp.ArgPaymentRequirements: map[string]any{"scheme": "exact"},
			},
			wantReason: x402.ReasonInvalidPaymentRequirements,
		},
		{
			name:      "missing payment",
			args:      map[string]any{mcp.ArgPaymentRequirements: asArgument(t, testRequirement())},
			wantError: true,
		},
		{
			name:      "missing requirement",
			args:      map[string]any{mcp.ArgPaymentPayload: asArgument(t, testPayment())},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fac := facilitatortest.Valid("PAYER", "TX")
			s := newServer(t, fac)

			res, err := s.handleVerify(context.Background(), callRequest(mcp.ToolVerify, tt.args))
			if err != nil {
				t.Fatalf("handleVerify() error = %v", err)
			}
			if res.IsError != tt.wantError {
				t.Fatalf("IsError = %v, want %v (%s)", res.IsError, tt.wantError, resultText(t, res))
			}
			if !tt.wantError {
				var got facilitator.VerifyResponse
				if err := json.Unmarshal([]byte(resultText(t, res)), &got); err != nil {
					t.Fatal(err)
				}
				if got.IsValid != tt.wantValid || got.InvalidReason != tt.wantReason {
					t.Errorf("verify = %+v", got)
				}
			}
			if fac.VerifyCount() != tt.wantCalls {
				t.Errorf("verify calls = %d, want %d", fac.VerifyCount(), tt.wantCalls)
			}
		})
	}
}

func TestHandleSettle(t *testing.T) {
	args := map[string]any{
		mcp.ArgPaymentPayload:      asArgument(t, testPayment()),
		mcp.ArgPaymentRequirements: asArgument(t, testRequirement()),
	}

	t.Run("settled", func(t *testing.T) {
		s := newServer(t, facilitatortest.Valid("PAYER", "TXMCP"))
		res, err := s.handleSettle(context.Background(), callRequest(mcp.ToolSettle, args))
		if err != nil {
			t.Fatal(err)
		}
		var got x402.SettlementResponse
		if err := json.Unmarshal([]byte(resultText(t, res)), &got); err != nil {
			t.Fatal(err)
		}
		if !got.Success || got.Transaction != "TXMCP" {
			t.Errorf("settle = %+v", got)
		}
	})

	t.Run("facilitator fault", func(t *testing.T) {
		s := newServer(t, &facilitatortest.Fake{SettleErr: errors.New("node down")})
		res, err := s.handleSettle(context.Background(), callRequest(mcp.ToolSettle, args))
		if err != nil {
			t.Fatal(err)
		}
		if !res.IsError {
			t.Error("expected an error result")
		}
	})
}
