// Package pocketbase provides PocketBase-compatible middleware for x402
// payment gating. PocketBase request events wrap stdlib requests, so the
// middleware runs the rest of the event chain as the gate's protected
// handler.
package pocketbase

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"

	httpx402 "github.com/algox402/x402-go/http"
)

// PaymentKey is the request event store key holding the verified
// *httpx402.Payment.
const PaymentKey = "x402_payment"

// NewPocketBaseX402Middleware creates a new x402 payment middleware for
// PocketBase. Bind it to a route or group with BindFunc.
//
// Example usage:
//
//	mw, err := NewPocketBaseX402Middleware(&httpx402.Config{
//	    FacilitatorURL: "https://facilitator.example.com",
//	    PayTo:          "ALGO...",
//	    Routes: x402.Routes{
//	        "GET /api/premium/*": {Price: x402.Money("$0.01")},
//	    },
//	})
//	se.Router.GET("/api/premium/data", func(e *core.RequestEvent) error {
//	    payment := e.Get(PaymentKey).(*httpx402.Payment)
//	    return e.JSON(http.StatusOK, map[string]any{"payer": payment.Payer})
//	}).BindFunc(mw)
func NewPocketBaseX402Middleware(config *httpx402.Config) (func(*core.RequestEvent) error, error) {
	rg, err := httpx402.NewRouteGate(config)
	if err != nil {
		return nil, err
	}
	return Middleware(rg), nil
}

// Middleware adapts an existing route gate to PocketBase.
func Middleware(rg *httpx402.RouteGate) func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		ch, gated, err := rg.Challenge(e.Request)
		if !gated {
			return e.Next()
		}
		if err != nil {
			return e.InternalServerError("Internal server error", err)
		}

		rg.Gate.Serve(e.Response, e.Request, ch, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			e.Response, e.Request = w, r
			if payment, ok := httpx402.PaymentFromContext(r.Context()); ok {
				e.Set(PaymentKey, payment)
			}
			if err := e.Next(); err != nil {
				writeError(e, err)
			}
		}))
		return nil
	}
}

// writeError renders a handler error inside the gate so the status it
// carries decides whether the payment settles.
func writeError(e *core.RequestEvent, err error) {
	var apiErr *router.ApiError
	if !errors.As(err, &apiErr) {
		apiErr = router.NewInternalServerError("", err)
	}
	_ = e.JSON(apiErr.Status, apiErr)
}
