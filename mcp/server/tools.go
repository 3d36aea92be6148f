package server

import (
	"context"
	"encoding/json"
	"fmt"

	mcpproto "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/algox402/x402-go"
	"github.com/algox402/x402-go/encoding"
	"github.com/algox402/x402-go/facilitator"
	"github.com/algox402/x402-go/mcp"
)

func (s *FacilitatorServer) tools(readOnly bool) []mcpserver.ServerTool {
	payment := []mcpproto.ToolOption{
		mcpproto.WithObject(mcp.ArgPaymentPayload,
			mcpproto.Description("Decoded x402 payment payload; alternative to paymentHeader"),
		),
		mcpproto.WithString(mcp.ArgPaymentHeader,
			mcpproto.Description("Base64 X-PAYMENT header value; alternative to paymentPayload"),
		),
		mcpproto.WithObject(mcp.ArgPaymentRequirements,
			mcpproto.Required(),
			mcpproto.Description("The payment requirement the payment was made against"),
		),
	}

	tools := []mcpserver.ServerTool{
		{
			Tool: mcpproto.NewTool(mcp.ToolSupported,
				mcpproto.WithDescription("List the scheme and network pairs this facilitator accepts, with its fee payer address"),
			),
			Handler: s.handleSupported,
		},
		{
			Tool: mcpproto.NewTool(mcp.ToolVerify,
				append([]mcpproto.ToolOption{mcpproto.WithDescription("Check an Algorand payment group against a requirement without broadcasting it")}, payment...)...,
			),
			Handler: s.handleVerify,
		},
	}
	if !readOnly {
		tools = append(tools, mcpserver.ServerTool{
			Tool: mcpproto.NewTool(mcp.ToolSettle,
				append([]mcpproto.ToolOption{mcpproto.WithDescription("Verify, co-sign and broadcast an Algorand payment group and wait for confirmation")}, payment...)...,
			),
			Handler: s.handleSettle,
		})
	}
	return tools
}

func (s *FacilitatorServer) handleSupported(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeouts.VerifyTimeout)
	defer cancel()

	resp, err := s.fac.Supported(ctx)
	if err != nil {
		s.logger.Error("supported failed", "error", err)
		return mcpproto.NewToolResultError("supported kinds unavailable"), nil
	}
	return jsonResult(resp)
}

func (s *FacilitatorServer) handleVerify(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
	freq, reason, err := decodeArguments(req.GetArguments())
	if err != nil {
		return mcpproto.NewToolResultError(err.Error()), nil
	}
	if reason != "" {
		s.logger.Warn("rejecting malformed verify call", "reason", reason)
		return jsonResult(facilitator.Invalid(reason))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeouts.VerifyTimeout)
	defer cancel()
	resp, err := s.fac.Verify(ctx, freq.PaymentPayload, freq.PaymentRequirements)
	if err != nil {
		s.logger.Error("verify failed", "network", freq.PaymentPayload.Network, "error", err)
		return mcpproto.NewToolResultError("verification failed"), nil
	}
	return jsonResult(resp)
}

func (s *FacilitatorServer) handleSettle(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
	freq, reason, err := decodeArguments(req.GetArguments())
	if err != nil {
		return mcpproto.NewToolResultError(err.Error()), nil
	}
	if reason != "" {
		s.logger.Warn("rejecting malformed settle call", "reason", reason)
		return jsonResult(x402.SettlementResponse{ErrorReason: reason, Network: freq.PaymentPayload.Network})
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeouts.SettleTimeout)
	defer cancel()
	resp, err := s.fac.Settle(ctx, freq.PaymentPayload, freq.PaymentRequirements)
	if err != nil {
		s.logger.Error("settle failed", "network", freq.PaymentPayload.Network, "error", err)
		return mcpproto.NewToolResultError("settlement failed"), nil
	}
	if resp.Success {
		s.logger.Info("payment settled", "transaction", resp.Transaction, "payer", resp.Payer)
	}
	return jsonResult(resp)
}

// decodeArguments builds a facilitator request from tool arguments. A
// non-empty reason means the payment itself is unusable and is reported as
// a protocol result; an error means the call was malformed.
func decodeArguments(args map[string]any) (facilitator.Request, x402.ErrorReason, error) {
	freq := facilitator.Request{X402Version: x402.X402Version}

	raw, ok := args[mcp.ArgPaymentRequirements]
	if !ok || raw == nil {
		return freq, "", mcp.Missing(mcp.ArgPaymentRequirements)
	}
	if err := remarshal(raw, &freq.PaymentRequirements); err != nil {
		return freq, "", mcp.Invalid(mcp.ArgPaymentRequirements, err)
	}

	if header, ok := args[mcp.ArgPaymentHeader].(string); ok && header != "" {
		payment, err := encoding.DecodePaymentHeader(header)
		if err != nil {
			return freq, x402.ReasonOf(err, x402.ReasonInvalidPayload), nil
		}
		freq.PaymentPayload = payment
	} else if raw, ok := args[mcp.ArgPaymentPayload]; ok && raw != nil {
		if err := remarshal(raw, &freq.PaymentPayload); err != nil {
			return freq, "", mcp.Invalid(mcp.ArgPaymentPayload, err)
		}
	} else {
		return freq, "", mcp.Missing(mcp.ArgPaymentPayload)
	}

	reason, _ := freq.Check()
	return freq, reason, nil
}

// remarshal converts a decoded JSON argument into v.
func remarshal(in any, v any) error {
	if s, ok := in.(string); ok {
		return json.Unmarshal([]byte(s), v)
	}
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func jsonResult(v any) (*mcpproto.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcpproto.NewToolResultText(string(data)), nil
}
