package gin

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/gin-gonic/gin"

	"github.com/algox402/x402-go"
	"github.com/algox402/x402-go/avm/avmtest"
	"github.com/algox402/x402-go/encoding"
	"github.com/algox402/x402-go/facilitator/facilitatortest"
	httpx402 "github.com/algox402/x402-go/http"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	payer       = crypto.GenerateAccount()
	payTo       = crypto.GenerateAccount()
)

func paymentHeader(t *testing.T) string {
	t.Helper()
	group := avmtest.MustBuildGroup(avmtest.GroupSpec{
		Payer:  payer,
		PayTo:  payTo.Address,
		Asset:  avmtest.TestnetAsset,
		Amount: 10000,
	})
	header, err := encoding.EncodePayment(x402.PaymentPayload{
		X402Version: x402.X402Version,
		Scheme:      x402.SchemeExact,
		Network:     x402.NetworkAlgorandTestnet,
		Payload:     group.Payload,
	})
	if err != nil {
		t.Fatalf("encode payment: %v", err)
	}
	return header
}

// newRouter gates /premium/* and registers handler for GET /premium/data.
func newRouter(t *testing.T, fac *facilitatortest.Fake, settleFirst bool, handler gin.HandlerFunc) (*gin.Engine, *httpx402.Gate) {
	t.Helper()
	gate, err := httpx402.NewGate(httpx402.GateConfig{Facilitator: fac, Logger: quietLogger})
	if err != nil {
		t.Fatalf("NewGate() error = %v", err)
	}
	mw, err := NewGinX402Middleware(&httpx402.Config{
		Routes: x402.Routes{
			"GET /premium/*": {
				Price:                x402.Money("$0.01"),
				Network:              x402.NetworkAlgorandTestnet,
				SettleBeforeResponse: settleFirst,
			},
		},
		PayTo:  payTo.Address.String(),
		Gate:   gate,
		Logger: quietLogger,
	})
	if err != nil {
		t.Fatalf("NewGinX402Middleware() error = %v", err)
	}

	r := gin.New()
	r.Use(mw)
	r.GET("/premium/data", handler)
	r.GET("/public", func(c *gin.Context) { c.String(http.StatusOK, "free") })
	return r, gate
}

func drain(t *testing.T, gate *httpx402.Gate) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := gate.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func payerHandler(c *gin.Context) {
	payment := c.MustGet(PaymentKey).(*httpx402.Payment)
	c.JSON(http.StatusOK, gin.H{"payer": payment.Payer})
}

func TestGinMiddleware_NoPaymentReturns402(t *testing.T) {
	fac := facilitatortest.Valid("PAYER", "TX")
	r, gate := newRouter(t, fac, false, payerHandler)
	defer drain(t, gate)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/premium/data", nil))

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	var body x402.PaymentRequirementsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Accepts) != 1 || body.Accepts[0].PayTo != payTo.Address.String() {
		t.Errorf("accepts = %+v", body.Accepts)
	}
	if fac.VerifyCount() != 0 {
		t.Error("facilitator was consulted without a payment")
	}
}

func TestGinMiddleware_PublicRouteUntouched(t *testing.T) {
	r, gate := newRouter(t, facilitatortest.Valid("PAYER", "TX"), false, payerHandler)
	defer drain(t, gate)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/public", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "free" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestGinMiddleware_PaidRequestSettlesAfterResponse(t *testing.T) {
	fac := facilitatortest.Valid("PAYER", "TXGIN")
	r, gate := newRouter(t, fac, false, payerHandler)

	req := httptest.NewRequest(http.MethodGet, "/premium/data", nil)
	req.Header.Set("X-PAYMENT", paymentHeader(t))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["payer"] != payer.Address.String() {
		t.Errorf("payer = %q", body["payer"])
	}
	if rec.Header().Get("X-PAYMENT-RESPONSE") != "" {
		t.Error("deferred settlement must not set X-PAYMENT-RESPONSE")
	}

	drain(t, gate)
	if got := fac.SettleCount(); got != 1 {
		t.Errorf("settle calls = %d, want 1", got)
	}
}

func TestGinMiddleware_HandlerFailureSkipsSettlement(t *testing.T) {
	fac := facilitatortest.Valid("PAYER", "TX")
	r, gate := newRouter(t, fac, false, func(c *gin.Context) {
		c.AbortWithStatus(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/premium/data", nil)
	req.Header.Set("X-PAYMENT", paymentHeader(t))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	drain(t, gate)
	if got := fac.SettleCount(); got != 0 {
		t.Errorf("settle calls = %d, want 0", got)
	}
}

func TestGinMiddleware_SettleBeforeResponse(t *testing.T) {
	fac := facilitatortest.Valid("PAYER", "TXSYNC")
	r, gate := newRouter(t, fac, true, payerHandler)
	defer drain(t, gate)

	req := httptest.NewRequest(http.MethodGet, "/premium/data", nil)
	req.Header.Set("X-PAYMENT", paymentHeader(t))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	settled, err := encoding.DecodeSettlement(rec.Header().Get("X-PAYMENT-RESPONSE"))
	if err != nil {
		t.Fatalf("DecodeSettlement() error = %v", err)
	}
	if settled.Transaction != "TXSYNC" {
		t.Errorf("transaction = %q", settled.Transaction)
	}
	if got := fac.SettleCount(); got != 1 {
		t.Errorf("settle calls = %d, want 1", got)
	}
}

func TestGinMiddleware_RejectedSettlementAborts(t *testing.T) {
	fac := facilitatortest.Valid("PAYER", "TX")
	fac.SettleResp = &x402.SettlementResponse{ErrorReason: x402.ReasonInvalidPayment}
	called := false
	r, gate := newRouter(t, fac, true, func(c *gin.Context) {
		called = true
		c.String(http.StatusOK, "premium")
	})
	defer drain(t, gate)

	req := httptest.NewRequest(http.MethodGet, "/premium/data", nil)
	req.Header.Set("X-PAYMENT", paymentHeader(t))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("status = %d, want 402", rec.Code)
	}
	if called {
		t.Error("handler ran after settlement was rejected")
	}
}
