// Package mcp exposes x402 facilitator operations to Model Context Protocol
// clients. The server package registers them as tools on an MCP server.
package mcp

// Tool names.
const (
	ToolSupported = "x402_supported"
	ToolVerify    = "x402_verify"
	ToolSettle    = "x402_settle"
)

// Tool argument names. A payment is passed either decoded as
// ArgPaymentPayload or exactly as sent in the X-PAYMENT header as
// ArgPaymentHeader.
const (
	ArgPaymentPayload      = "paymentPayload"
	ArgPaymentHeader       = "paymentHeader"
	ArgPaymentRequirements = "paymentRequirements"
)
