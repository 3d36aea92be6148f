package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/algox402/x402-go"
	"github.com/algox402/x402-go/facilitator"
	"github.com/algox402/x402-go/http/internal/helpers"
	"github.com/algox402/x402-go/metrics"
	"github.com/algox402/x402-go/settlement"
)

// Config holds the configuration for the x402 middleware.
type Config struct {
	// Routes maps "<VERB> <path-pattern>" to the price and presentation of
	// each gated route. Requests matching no route pass through unchanged.
	Routes x402.Routes

	// PayTo is the recipient for routes that do not set their own.
	PayTo string

	// Gate, when set, is used as is and the facilitator fields below are
	// ignored. Share one Gate between middlewares to share its settlement
	// dispatcher.
	Gate *Gate

	// Facilitator is an in-process facilitator. When nil, FacilitatorURL is used.
	Facilitator facilitator.Interface

	// FacilitatorURL is the primary remote facilitator endpoint.
	FacilitatorURL string

	// FacilitatorAuth signs bearer tokens for the primary facilitator.
	FacilitatorAuth *FacilitatorAuth

	// FallbackFacilitatorURL is the optional backup facilitator.
	FallbackFacilitatorURL string

	// FallbackFacilitatorAuth signs bearer tokens for the fallback facilitator.
	FallbackFacilitatorAuth *FacilitatorAuth

	// VerifyOnly skips settlement if true (only verifies payments).
	VerifyOnly bool

	// OnSettled runs after each successful settlement.
	OnSettled SettledFunc

	Timeouts   x402.TimeoutConfig
	Dispatcher *settlement.Dispatcher
	Metrics    metrics.Recorder
	Logger     *slog.Logger
}

// newGate builds the gate described by config.
func (config *Config) newGate() (*Gate, error) {
	if config.Gate != nil {
		return config.Gate, nil
	}
	timeouts := config.Timeouts
	if timeouts == (x402.TimeoutConfig{}) {
		timeouts = x402.DefaultTimeouts
	}

	primary := config.Facilitator
	if primary == nil {
		if config.FacilitatorURL == "" {
			return nil, errors.New("x402: a facilitator or facilitator URL is required")
		}
		primary = &FacilitatorClient{
			BaseURL:  config.FacilitatorURL,
			Client:   &http.Client{},
			Timeouts: timeouts,
			Auth:     config.FacilitatorAuth,
			Logger:   config.Logger,
		}
	}
	var fallback facilitator.Interface
	if config.FallbackFacilitatorURL != "" {
		fallback = &FacilitatorClient{
			BaseURL:  config.FallbackFacilitatorURL,
			Client:   &http.Client{},
			Timeouts: timeouts,
			Auth:     config.FallbackFacilitatorAuth,
			Logger:   config.Logger,
		}
	}

	return NewGate(GateConfig{
		Facilitator: primary,
		Fallback:    fallback,
		Dispatcher:  config.Dispatcher,
		Timeouts:    timeouts,
		Metrics:     config.Metrics,
		Logger:      config.Logger,
	})
}

// RouteGate applies a Gate to a route table. Framework adapters use it to
// resolve the challenge for a request before handing it to the gate.
type RouteGate struct {
	Gate *Gate

	matcher    *x402.RouteMatcher
	payTo      string
	feePayers  map[string]string
	verifyOnly bool
	onSettled  SettledFunc
	logger     *slog.Logger
}

// NewRouteGate compiles config.Routes, checks every route can be priced and
// asks the facilitator which networks it pays fees on.
func NewRouteGate(config *Config) (*RouteGate, error) {
	matcher, err := x402.NewRouteMatcher(config.Routes)
	if err != nil {
		return nil, err
	}
	for _, p := range matcher.Patterns() {
		if _, err := x402.BuildRequirements(x402.RequirementsInput{
			Route:       p.Config,
			PayTo:       config.PayTo,
			ResourceURL: "http://localhost/",
		}); err != nil {
			return nil, fmt.Errorf("route %q: %w", p.Key, err)
		}
	}

	gate, err := config.newGate()
	if err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeouts := config.Timeouts
	if timeouts == (x402.TimeoutConfig{}) {
		timeouts = x402.DefaultTimeouts
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.RequestTimeout)
	defer cancel()
	feePayers := gate.FeePayers(ctx)
	logger.Info("payment requirements enriched from facilitator", "routes", len(matcher.Patterns()), "feePayers", len(feePayers))

	return &RouteGate{
		Gate:       gate,
		matcher:    matcher,
		payTo:      config.PayTo,
		feePayers:  feePayers,
		verifyOnly: config.VerifyOnly,
		onSettled:  config.OnSettled,
		logger:     logger,
	}, nil
}

// Challenge resolves what r must pay. ok is false when r is not gated:
// preflight requests and paths matching no route. A non-nil error means the
// route could not be priced.
func (rg *RouteGate) Challenge(r *http.Request) (ch Challenge, ok bool, err error) {
	if r.Method == http.MethodOptions {
		return Challenge{}, false, nil
	}
	route, ok := rg.matcher.Match(r.URL.Path, r.Method)
	if !ok {
		return Challenge{}, false, nil
	}

	network := route.Config.Network
	if network == "" {
		network = x402.NetworkAlgorand
	}
	reqs, err := x402.BuildRequirements(x402.RequirementsInput{
		Route:       route.Config,
		PayTo:       rg.payTo,
		ResourceURL: helpers.ResourceURL(r),
		Method:      r.Method,
		FeePayer:    rg.feePayers[network],
	})
	if err != nil {
		return Challenge{}, true, err
	}

	return Challenge{
		Requirements:         reqs,
		ErrorMessages:        route.Config.ErrorMessages,
		CustomPaywallHTML:    route.Config.CustomPaywallHTML,
		SettleBeforeResponse: route.Config.SettleBeforeResponse,
		VerifyOnly:           rg.verifyOnly,
		OnSettled:            rg.onSettled,
	}, true, nil
}

// NewX402Middleware creates a new x402 payment middleware.
// It returns a middleware function that wraps HTTP handlers with payment gating.
// Fee payer addresses are fetched once from the facilitator's supported kinds.
func NewX402Middleware(config *Config) (func(http.Handler) http.Handler, error) {
	rg, err := NewRouteGate(config)
	if err != nil {
		return nil, err
	}
	return rg.Middleware, nil
}

// Middleware gates next according to the route table.
func (rg *RouteGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ch, gated, err := rg.Challenge(r)
		if !gated {
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			rg.logger.Error("failed to build payment requirements", "path", r.URL.Path, "error", err)
			helpers.SendError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		rg.Gate.Serve(w, r, ch, next)
	})
}
