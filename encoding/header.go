package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/algox402/x402-go"
)

// paymentPayloadSchema is the wire shape of an exact-scheme AVM payload.
// Version and scheme values are checked separately so they map to their own
// error reasons.
const paymentPayloadSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["x402Version", "scheme", "network", "payload"],
  "properties": {
    "x402Version": {"type": "integer"},
    "scheme": {"type": "string", "minLength": 1},
    "network": {"type": "string"},
    "payload": {
      "type": "object",
      "required": ["paymentIndex", "paymentGroup"],
      "properties": {
        "paymentIndex": {"type": "integer", "minimum": 0},
        "paymentGroup": {
          "type": "array",
          "minItems": 1,
          "maxItems": 16,
          "items": {"type": "string", "minLength": 1, "pattern": "^[A-Za-z0-9+/]+={0,2}$"}
        }
      }
    }
  }
}`

var loadPayloadSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(paymentPayloadSchema))
})

// DecodePaymentHeader decodes and validates an X-PAYMENT header value.
// Failures are returned as *x402.PaymentError carrying the matching reason:
// invalid_payload for encoding or shape errors, invalid_network for networks
// outside the supported set, invalid_x402_version and invalid_scheme.
func DecodePaymentHeader(header string) (x402.PaymentPayload, error) {
	var payment x402.PaymentPayload

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header))
	if err != nil {
		return payment, payloadError("payment header is not valid base64", x402.ReasonInvalidPayload, err)
	}

	var probe struct {
		Network string `json:"network"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return payment, payloadError("payment header is not valid JSON", x402.ReasonInvalidPayload, err)
	}
	if !slices.Contains(x402.SupportedNetworks, probe.Network) {
		return payment, payloadError("invalid network", x402.ReasonInvalidNetwork, x402.ErrInvalidNetwork).
			WithDetails("network", probe.Network)
	}

	schema, err := loadPayloadSchema()
	if err != nil {
		return payment, fmt.Errorf("compile payload schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return payment, payloadError("payment header is not valid JSON", x402.ReasonInvalidPayload, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return payment, payloadError("payment payload has an invalid shape", x402.ReasonInvalidPayload, x402.ErrMalformedHeader).
			WithDetails("errors", msgs)
	}

	if err := json.Unmarshal(raw, &payment); err != nil {
		return payment, payloadError("payment payload has an invalid shape", x402.ReasonInvalidPayload, err)
	}
	if payment.X402Version != x402.X402Version {
		return payment, payloadError("unsupported x402 version", x402.ReasonInvalidX402Version, x402.ErrUnsupportedVersion).
			WithDetails("x402Version", payment.X402Version)
	}
	if payment.Scheme != x402.SchemeExact {
		return payment, payloadError("unsupported payment scheme", x402.ReasonInvalidScheme, x402.ErrUnsupportedScheme).
			WithDetails("scheme", payment.Scheme)
	}
	if n := len(payment.Payload.PaymentGroup); payment.Payload.PaymentIndex >= n {
		return payment, payloadError("paymentIndex out of range", x402.ReasonInvalidPayload, x402.ErrMalformedHeader).
			WithDetails("paymentIndex", payment.Payload.PaymentIndex).
			WithDetails("groupSize", n)
	}
	return payment, nil
}

func payloadError(msg string, reason x402.ErrorReason, err error) *x402.PaymentError {
	return x402.NewPaymentError(x402.ErrCodeInvalidPayload, msg, err).WithReason(reason)
}

// MatchRequirements returns the first requirement whose scheme and network
// equal the payment's.
func MatchRequirements(requirements []x402.PaymentRequirement, payment x402.PaymentPayload) (x402.PaymentRequirement, bool) {
	for _, r := range requirements {
		if r.Scheme == payment.Scheme && r.Network == payment.Network {
			return r, true
		}
	}
	return x402.PaymentRequirement{}, false
}
