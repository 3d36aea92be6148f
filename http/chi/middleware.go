// Package chi provides Chi-compatible middleware for x402 payment gating.
// Chi routers take stdlib handlers, so this package only wires the shared
// route gate and exposes chi's URL parameters to the pay link handler.
package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	httpx402 "github.com/algox402/x402-go/http"
)

// LinkIDParam is the URL parameter MountPayLinks routes link ids through.
const LinkIDParam = "linkId"

// NewChiX402Middleware creates a new x402 payment middleware for Chi.
//
// Example usage:
//
//	mw, err := NewChiX402Middleware(&httpx402.Config{
//	    FacilitatorURL: "https://facilitator.example.com",
//	    PayTo:          "ALGO...",
//	    Routes: x402.Routes{
//	        "GET /premium/*": {Price: x402.Money("$0.01"), Network: x402.NetworkAlgorandTestnet},
//	    },
//	})
//	r := chi.NewRouter()
//	r.Use(mw)
//	r.Get("/premium/data", func(w http.ResponseWriter, r *http.Request) {
//	    payment, _ := httpx402.PaymentFromContext(r.Context())
//	    w.Write([]byte("Access granted! Payer: " + payment.Payer))
//	})
func NewChiX402Middleware(config *httpx402.Config) (func(http.Handler) http.Handler, error) {
	return httpx402.NewX402Middleware(config)
}

// LinkID reads the link id chi matched for MountPayLinks.
func LinkID(r *http.Request) string {
	return chi.URLParam(r, LinkIDParam)
}

// MountPayLinks serves pay links at <prefix>/{linkId}. cfg.LinkID is set to
// read chi's URL parameter.
func MountPayLinks(r chi.Router, prefix string, cfg httpx402.PayLinkConfig) error {
	cfg.LinkID = LinkID
	h, err := httpx402.NewPayLinkHandler(cfg)
	if err != nil {
		return err
	}
	r.Method(http.MethodGet, prefix+"/{"+LinkIDParam+"}", h)
	return nil
}
