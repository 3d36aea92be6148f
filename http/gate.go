// Package http gates HTTP resources behind x402 payments on Algorand.
//
// Gate is the per-request state machine. NewX402Middleware applies it to a
// table of priced routes and NewPayLinkHandler applies it to stored payment
// links. Both serve content as soon as the payment verifies and settle it in
// the background once the response has been flushed.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/algox402/x402-go"
	"github.com/algox402/x402-go/facilitator"
	"github.com/algox402/x402-go/http/internal/helpers"
	"github.com/algox402/x402-go/metrics"
	"github.com/algox402/x402-go/settlement"
)

// State is the terminal state of one gated request.
type State string

const (
	// StateChallenge means no payment was attached and a 402 challenge was sent.
	StateChallenge State = "CHALLENGE"
	// StateRejected means the attached payment failed decoding, matching or
	// verification and a 402 was sent.
	StateRejected State = "REJECTED"
	// StateServed means the payment verified and the protected handler ran.
	StateServed State = "SERVED"
	// StateFault means an unexpected error produced a 500.
	StateFault State = "FAULT"
)

// Error message keys accepted in Challenge.ErrorMessages besides the
// facilitator's ErrorReason values.
const (
	MessagePaymentRequired = "payment_required"
	MessageNoMatch         = "no_matching_requirements"
)

var defaultMessages = map[string]string{
	MessagePaymentRequired: "X-PAYMENT header is required",
	MessageNoMatch:         "Unable to find matching payment requirements",
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// PaymentContextKey is the context key for storing verified payment information.
const PaymentContextKey = contextKey("x402_payment")

// Payment is a verified payment, available to the protected handler through
// PaymentFromContext.
type Payment struct {
	Payload     x402.PaymentPayload
	Requirement x402.PaymentRequirement
	Verify      *facilitator.VerifyResponse

	// Payer is the sender of the payment transaction.
	Payer string
	// GroupID is the base64 group id of the payment group, empty for a
	// single ungrouped transaction.
	GroupID string
}

// PaymentFromContext returns the verified payment stored by the gate.
func PaymentFromContext(ctx context.Context) (*Payment, bool) {
	p, ok := ctx.Value(PaymentContextKey).(*Payment)
	return p, ok
}

// SettledFunc is called after a payment has been confirmed on chain.
type SettledFunc func(ctx context.Context, payment *Payment, resp *x402.SettlementResponse) error

// Challenge is what one request must pay and how the gate responds.
type Challenge struct {
	// Requirements are the accepted payment options, built for this request.
	Requirements []x402.PaymentRequirement

	// ErrorMessages overrides the error field of 402 bodies, keyed by
	// ErrorReason or one of the Message* keys.
	ErrorMessages map[string]string

	// CustomPaywallHTML replaces the built-in browser challenge page.
	CustomPaywallHTML string

	// SettleBeforeResponse settles before the handler's response is released
	// and reports the result in X-PAYMENT-RESPONSE.
	SettleBeforeResponse bool

	// VerifyOnly skips settlement.
	VerifyOnly bool

	// OnSettled runs after a successful settlement.
	OnSettled SettledFunc
}

func (c *Challenge) message(key, fallback string) string {
	if msg, ok := c.ErrorMessages[key]; ok && msg != "" {
		return msg
	}
	if msg, ok := defaultMessages[key]; ok {
		return msg
	}
	return fallback
}

func (c *Challenge) testnet() bool {
	for _, req := range c.Requirements {
		if req.Network == x402.NetworkAlgorandTestnet {
			return true
		}
	}
	return false
}

// GateConfig configures a Gate.
type GateConfig struct {
	// Facilitator verifies and settles payments. Required.
	Facilitator facilitator.Interface

	// Fallback is tried when Facilitator returns an error.
	Fallback facilitator.Interface

	// Dispatcher runs deferred settlements. When nil the gate creates one.
	Dispatcher *settlement.Dispatcher

	// Timeouts bounds facilitator calls. Zero means x402.DefaultTimeouts.
	Timeouts x402.TimeoutConfig

	Metrics metrics.Recorder
	Logger  *slog.Logger
}

// Gate decides, for each request, between a payment challenge and serving
// the protected handler.
type Gate struct {
	fac        facilitator.Interface
	dispatcher *settlement.Dispatcher
	timeouts   x402.TimeoutConfig
	metrics    metrics.Recorder
	logger     *slog.Logger
}

// NewGate creates a Gate.
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.Facilitator == nil {
		return nil, errors.New("x402: gate requires a facilitator")
	}
	timeouts := cfg.Timeouts
	if timeouts == (x402.TimeoutConfig{}) {
		timeouts = x402.DefaultTimeouts
	}
	if err := timeouts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid timeouts: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rec := metrics.OrNoop(cfg.Metrics)
	fac := facilitator.WithFallback(cfg.Facilitator, cfg.Fallback, logger)

	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = settlement.New(settlement.Config{
			Facilitator: fac,
			Timeout:     timeouts.SettleTimeout,
			Metrics:     rec,
			Logger:      logger,
		})
	}

	return &Gate{
		fac:        fac,
		dispatcher: dispatcher,
		timeouts:   timeouts,
		metrics:    rec,
		logger:     logger,
	}, nil
}

// Facilitator returns the facilitator the gate verifies with.
func (g *Gate) Facilitator() facilitator.Interface {
	return g.fac
}

// FeePayers asks the facilitator which networks it pays fees on. A failed
// query is logged and yields an empty map so requirements go out without a
// fee payer.
func (g *Gate) FeePayers(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, g.timeouts.VerifyTimeout)
	defer cancel()
	supported, err := g.fac.Supported(ctx)
	if err != nil {
		g.logger.Warn("failed to fetch supported payment kinds", "error", err)
		return map[string]string{}
	}
	return supported.FeePayers()
}

// Shutdown waits for pending settlements to finish or for ctx to end.
func (g *Gate) Shutdown(ctx context.Context) error {
	return g.dispatcher.Shutdown(ctx)
}

// Serve runs one request through the gate and returns the state it ended in.
// next is only called once the payment has verified.
func (g *Gate) Serve(w http.ResponseWriter, r *http.Request, ch Challenge, next http.Handler) State {
	p, r, state := g.Admit(w, r, ch)
	if p == nil {
		return state
	}
	logger := g.logger.With("path", r.URL.Path)

	switch {
	case ch.VerifyOnly:
		next.ServeHTTP(w, r)
	case ch.SettleBeforeResponse:
		return g.serveSettledFirst(w, r, &ch, p, next, logger)
	default:
		serveThenComplete(w, r, next, func(status int) {
			g.Complete(r.Context(), ch, p, status)
		})
	}
	g.metrics.IncCounter(metrics.EventServed, metrics.Labels(p.Payload.Network, ""))
	return StateServed
}

// Admit takes the request up to verification. When the payment verifies it
// returns the payment and the request carrying it in its context; otherwise
// it writes the challenge, rejection or fault response and returns a nil
// payment with the state the request ended in.
func (g *Gate) Admit(w http.ResponseWriter, r *http.Request, ch Challenge) (*Payment, *http.Request, State) {
	logger := g.logger.With("path", r.URL.Path)
	network := ""
	if len(ch.Requirements) > 0 {
		network = ch.Requirements[0].Network
	}

	if r.Header.Get(helpers.PaymentHeader) == "" {
		logger.Info("no payment header provided")
		g.metrics.IncCounter(metrics.EventChallenge, metrics.Labels(network, ""))
		if helpers.IsBrowser(r) {
			g.sendPaywall(w, r, &ch, logger)
			return nil, r, StateChallenge
		}
		helpers.SendPaymentRequired(w, x402.PaymentRequirementsResponse{
			Error:   ch.message(MessagePaymentRequired, ""),
			Accepts: ch.Requirements,
		})
		return nil, r, StateChallenge
	}

	payment, err := helpers.ParsePaymentHeaderFromRequest(r)
	if err != nil {
		reason := x402.ReasonOf(err, x402.ReasonInvalidPayload)
		logger.Warn("invalid payment header", "reason", reason, "error", err)
		return nil, r, g.reject(w, &ch, network, string(reason), "")
	}
	network = payment.Network

	requirement, err := helpers.FindMatchingRequirement(payment, ch.Requirements)
	if err != nil {
		logger.Warn("no matching requirement", "scheme", payment.Scheme, "network", payment.Network)
		return nil, r, g.reject(w, &ch, network, MessageNoMatch, "")
	}

	logger.Info("verifying payment", "scheme", payment.Scheme, "network", payment.Network)
	verifyResp, err := g.verify(r.Context(), payment, requirement)
	if err != nil {
		logger.Error("facilitator verification failed", "network", network, "error", err)
		g.metrics.IncCounter(metrics.EventFault, metrics.Labels(network, string(x402.ReasonUnexpectedVerifyError)))
		helpers.SendError(w, http.StatusInternalServerError, "Payment verification failed")
		return nil, r, StateFault
	}
	if !verifyResp.IsValid {
		logger.Warn("payment verification failed", "reason", verifyResp.InvalidReason, "payer", verifyResp.Payer)
		g.metrics.IncCounter(metrics.EventVerifyInvalid, metrics.Labels(network, string(verifyResp.InvalidReason)))
		return nil, r, g.reject(w, &ch, network, string(verifyResp.InvalidReason), verifyResp.Payer)
	}
	g.metrics.IncCounter(metrics.EventVerifyValid, metrics.Labels(network, ""))

	p := &Payment{Payload: payment, Requirement: requirement, Verify: verifyResp}
	p.Payer, p.GroupID = helpers.GetPayer(payment)
	logger.Info("payment verified", "payer", p.Payer, "network", network)

	return p, r.WithContext(context.WithValue(r.Context(), PaymentContextKey, p)), StateServed
}

func (g *Gate) verify(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*facilitator.VerifyResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeouts.VerifyTimeout)
	defer cancel()
	return g.fac.Verify(ctx, payment, requirement)
}

func (g *Gate) reject(w http.ResponseWriter, ch *Challenge, network, key, payer string) State {
	g.metrics.IncCounter(metrics.EventRejected, metrics.Labels(network, key))
	helpers.SendPaymentRequired(w, x402.PaymentRequirementsResponse{
		Error:   ch.message(key, key),
		Accepts: ch.Requirements,
		Payer:   payer,
	})
	return StateRejected
}

func (g *Gate) sendPaywall(w http.ResponseWriter, r *http.Request, ch *Challenge, logger *slog.Logger) {
	page, err := renderPaywall(ch.CustomPaywallHTML, ch.Requirements, r.URL.String(), ch.testnet())
	if err != nil {
		logger.Error("failed to render paywall", "error", err)
		helpers.SendPaymentRequired(w, x402.PaymentRequirementsResponse{
			Error:   ch.message(MessagePaymentRequired, ""),
			Accepts: ch.Requirements,
		})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusPaymentRequired)
	_, _ = w.Write(page)
}

// Complete is the post-response hook. Call it once, after the protected
// handler has returned and its response has been flushed, with the status
// it produced. A status below 400 schedules settlement in the background.
func (g *Gate) Complete(ctx context.Context, ch Challenge, p *Payment, status int) {
	logger := g.logger.With("network", p.Payload.Network)
	if status >= http.StatusBadRequest {
		logger.Warn("handler returned non-success, skipping payment settlement", "status", status)
		return
	}
	if ch.VerifyOnly {
		return
	}

	job := settlement.Job{Payment: p.Payload, Requirement: p.Requirement}
	if ch.OnSettled != nil {
		onSettled := ch.OnSettled
		job.OnSettled = func(ctx context.Context, resp *x402.SettlementResponse) error {
			return onSettled(ctx, p, resp)
		}
	}
	id, err := g.dispatcher.Dispatch(ctx, job)
	if err != nil {
		logger.Error("settlement not scheduled", "payer", p.Payer, "error", err)
		return
	}
	logger.Info("settlement scheduled", "job", id, "payer", p.Payer)
}

// SettleNow settles p before the protected handler runs and adds the
// X-PAYMENT-RESPONSE header. On failure it writes the error response and
// returns StateRejected or StateFault; adapters must then stop the request.
func (g *Gate) SettleNow(w http.ResponseWriter, r *http.Request, ch Challenge, p *Payment) State {
	return g.settle(w, r, &ch, p, g.logger.With("path", r.URL.Path))
}

func (g *Gate) settle(w http.ResponseWriter, r *http.Request, ch *Challenge, p *Payment, logger *slog.Logger) State {
	network := p.Payload.Network
	logger.Info("settling payment", "payer", p.Payer)
	ctx, cancel := context.WithTimeout(r.Context(), g.timeouts.SettleTimeout)
	defer cancel()

	start := time.Now()
	resp, err := g.fac.Settle(ctx, p.Payload, p.Requirement)
	g.metrics.ObserveLatency(metrics.OpSettle, time.Since(start), metrics.Labels(network, ""))
	if err != nil {
		logger.Error("settlement failed", "error", err)
		g.metrics.IncCounter(metrics.EventSettleFailed, metrics.Labels(network, string(x402.ReasonUnexpectedSettleError)))
		helpers.SendError(w, http.StatusInternalServerError, "Payment settlement failed")
		return StateFault
	}
	if !resp.Success {
		logger.Warn("settlement unsuccessful", "reason", resp.ErrorReason)
		g.metrics.IncCounter(metrics.EventSettleFailed, metrics.Labels(network, string(resp.ErrorReason)))
		return g.reject(w, ch, network, string(resp.ErrorReason), p.Payer)
	}

	logger.Info("payment settled", "transaction", resp.Transaction)
	g.metrics.IncCounter(metrics.EventSettled, metrics.Labels(network, ""))
	if err := helpers.AddPaymentResponseHeader(w, resp); err != nil {
		logger.Warn("failed to add payment response header", "error", err)
	}
	if ch.OnSettled != nil {
		if err := ch.OnSettled(ctx, p, resp); err != nil {
			logger.Error("settlement callback failed", "transaction", resp.Transaction, "error", err)
		}
	}
	return StateServed
}

func (g *Gate) serveSettledFirst(w http.ResponseWriter, r *http.Request, ch *Challenge, p *Payment, next http.Handler, logger *slog.Logger) State {
	state := StateServed
	interceptor := &settlementInterceptor{
		w: w,
		settleFunc: func() bool {
			state = g.settle(w, r, ch, p, logger)
			return state == StateServed
		},
		onFailure: func(statusCode int) {
			logger.Warn("handler returned non-success, skipping payment settlement", "status", statusCode)
		},
	}
	next.ServeHTTP(interceptor, r)
	if !interceptor.committed {
		interceptor.WriteHeader(http.StatusOK)
	}
	if state == StateServed {
		g.metrics.IncCounter(metrics.EventServed, metrics.Labels(p.Payload.Network, ""))
	}
	return state
}
