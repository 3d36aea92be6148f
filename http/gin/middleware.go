// Package gin provides Gin-compatible middleware for x402 payment gating.
// This package is a thin adapter that translates gin.Context to stdlib http
// patterns and delegates verification and settlement to the http package's
// Gate.
package gin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	httpx402 "github.com/algox402/x402-go/http"
)

// PaymentKey is the gin.Context key holding the verified *httpx402.Payment.
const PaymentKey = "x402_payment"

// NewGinX402Middleware creates a new x402 payment middleware for Gin.
//
// The middleware:
//   - Passes through OPTIONS requests and paths matching no route
//   - Returns 402 Payment Required if the X-PAYMENT header is missing or invalid
//   - Verifies payments with the facilitator
//   - Stores the payment in the Gin context via c.Set(PaymentKey, payment)
//   - Calls c.Next() once the payment verifies
//   - Settles after the handler chain when it produced a success status, or
//     before it for routes with SettleBeforeResponse
//
// Example usage:
//
//	mw, err := NewGinX402Middleware(&httpx402.Config{
//	    FacilitatorURL: "https://facilitator.example.com",
//	    PayTo:          "ALGO...",
//	    Routes: x402.Routes{
//	        "GET /premium/*": {Price: x402.Money("$0.01"), Network: x402.NetworkAlgorandTestnet},
//	    },
//	})
//	r := gin.Default()
//	r.Use(mw)
//	r.GET("/premium/data", func(c *gin.Context) {
//	    payment := c.MustGet(PaymentKey).(*httpx402.Payment)
//	    c.JSON(200, gin.H{"payer": payment.Payer})
//	})
func NewGinX402Middleware(config *httpx402.Config) (gin.HandlerFunc, error) {
	rg, err := httpx402.NewRouteGate(config)
	if err != nil {
		return nil, err
	}
	return Middleware(rg), nil
}

// Middleware adapts an existing route gate to Gin.
func Middleware(rg *httpx402.RouteGate) gin.HandlerFunc {
	return func(c *gin.Context) {
		ch, gated, err := rg.Challenge(c.Request)
		if !gated {
			c.Next()
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		payment, req, _ := rg.Gate.Admit(c.Writer, c.Request, ch)
		if payment == nil {
			c.Abort()
			return
		}
		c.Request = req
		c.Set(PaymentKey, payment)

		if ch.SettleBeforeResponse && !ch.VerifyOnly {
			if rg.Gate.SettleNow(c.Writer, c.Request, ch, payment) != httpx402.StateServed {
				c.Abort()
				return
			}
			c.Next()
			return
		}

		completed := false
		defer func() {
			if completed {
				return
			}
			if r := recover(); r != nil {
				rg.Gate.Complete(c.Request.Context(), ch, payment, http.StatusInternalServerError)
				panic(r)
			}
		}()
		c.Next()
		completed = true

		status := c.Writer.Status()
		if len(c.Errors) > 0 && !c.Writer.Written() {
			status = http.StatusInternalServerError
		}
		if c.Writer.Written() {
			c.Writer.Flush()
		}
		rg.Gate.Complete(c.Request.Context(), ch, payment, status)
	}
}
