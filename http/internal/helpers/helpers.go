// Package helpers provides shared helper functions for the x402 HTTP gate and
// its stdlib, Gin, PocketBase and Chi adapters.
package helpers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/algox402/x402-go"
	"github.com/algox402/x402-go/encoding"
)

// PaymentHeader is the request header carrying the encoded payment payload.
const PaymentHeader = "X-PAYMENT"

// PaymentResponseHeader is the response header carrying the encoded settlement.
const PaymentResponseHeader = "X-PAYMENT-RESPONSE"

// ParsePaymentHeaderFromRequest decodes and validates the X-PAYMENT header.
//
// Returns x402.ErrMalformedHeader if the header is missing. Other failures are
// *x402.PaymentError values carrying the protocol reason.
func ParsePaymentHeaderFromRequest(r *http.Request) (x402.PaymentPayload, error) {
	headerValue := r.Header.Get(PaymentHeader)
	if headerValue == "" {
		return x402.PaymentPayload{}, x402.ErrMalformedHeader
	}
	return encoding.DecodePaymentHeader(headerValue)
}

// FindMatchingRequirement returns the requirement whose scheme and network
// match the payment, or x402.ErrNoMatchingRequirements.
func FindMatchingRequirement(payment x402.PaymentPayload, requirements []x402.PaymentRequirement) (x402.PaymentRequirement, error) {
	req, ok := encoding.MatchRequirements(requirements, payment)
	if !ok {
		return x402.PaymentRequirement{}, x402.ErrNoMatchingRequirements
	}
	return req, nil
}

// SendPaymentRequired writes a 402 response with the JSON challenge body.
func SendPaymentRequired(w http.ResponseWriter, response x402.PaymentRequirementsResponse) {
	if response.X402Version == 0 {
		response.X402Version = x402.X402Version
	}
	SendJSON(w, http.StatusPaymentRequired, response)
}

// SendJSON writes v as a JSON response with the given status.
func SendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encoding failure can only truncate the body.
	_ = json.NewEncoder(w).Encode(v)
}

// SendError writes {"error": message} with the given status.
func SendError(w http.ResponseWriter, status int, message string) {
	SendJSON(w, status, map[string]string{"error": message})
}

// AddPaymentResponseHeader adds the X-PAYMENT-RESPONSE header with the
// base64-encoded settlement.
func AddPaymentResponseHeader(w http.ResponseWriter, settlement *x402.SettlementResponse) error {
	encoded, err := encoding.EncodeSettlement(*settlement)
	if err != nil {
		return err
	}
	w.Header().Set(PaymentResponseHeader, encoded)
	return nil
}

// IsBrowser reports whether the request comes from an interactive browser:
// it accepts HTML and identifies as a Mozilla-compatible user agent.
func IsBrowser(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html") &&
		strings.Contains(r.Header.Get("User-Agent"), "Mozilla")
}

// ResourceURL returns the absolute URL of the requested path, without query.
func ResourceURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	} else if proto := r.Header.Get("X-Forwarded-Proto"); proto == "https" || proto == "http" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.Path
}
