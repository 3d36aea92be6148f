package http

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/algox402/x402-go"
)

//go:embed paywall.html
var defaultPaywallHTML string

// paywallConfig is exposed to the page as window.x402.
type paywallConfig struct {
	PaymentRequirements []x402.PaymentRequirement `json:"paymentRequirements"`
	CurrentURL          string                    `json:"currentUrl"`
	Testnet             bool                      `json:"testnet"`
}

// renderPaywall injects the challenge into page as a window.x402 script
// block placed before </head>. An empty page uses the built-in paywall.
func renderPaywall(page string, requirements []x402.PaymentRequirement, currentURL string, testnet bool) ([]byte, error) {
	if page == "" {
		page = defaultPaywallHTML
	}
	if requirements == nil {
		requirements = []x402.PaymentRequirement{}
	}

	// encoding/json escapes <, > and & so the payload cannot close the
	// script element.
	data, err := json.Marshal(paywallConfig{
		PaymentRequirements: requirements,
		CurrentURL:          currentURL,
		Testnet:             testnet,
	})
	if err != nil {
		return nil, fmt.Errorf("encode paywall config: %w", err)
	}
	script := "<script>window.x402 = " + string(data) + ";</script>"

	if i := strings.Index(strings.ToLower(page), "</head>"); i >= 0 {
		return []byte(page[:i] + script + "\n" + page[i:]), nil
	}
	return []byte(script + "\n" + page), nil
}
