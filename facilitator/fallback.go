package facilitator

import (
	"context"
	"log/slog"

	"github.com/algox402/x402-go"
)

// WithFallback returns a facilitator that sends each call to primary and
// retries it on fallback when primary returns an error. Protocol rejections
// are results, not errors, so they are never retried on fallback. A nil
// fallback returns primary unchanged.
func WithFallback(primary, fallback Interface, logger *slog.Logger) Interface {
	if fallback == nil {
		return primary
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &withFallback{primary: primary, fallback: fallback, logger: logger}
}

type withFallback struct {
	primary  Interface
	fallback Interface
	logger   *slog.Logger
}

func (f *withFallback) Verify(ctx context.Context, payment x402.PaymentPayload, req x402.PaymentRequirement) (*VerifyResponse, error) {
	resp, err := f.primary.Verify(ctx, payment, req)
	if err == nil || ctx.Err() != nil {
		return resp, err
	}
	f.logger.Warn("primary facilitator failed, trying fallback", "operation", "verify", "error", err)
	return f.fallback.Verify(ctx, payment, req)
}

func (f *withFallback) Settle(ctx context.Context, payment x402.PaymentPayload, req x402.PaymentRequirement) (*x402.SettlementResponse, error) {
	resp, err := f.primary.Settle(ctx, payment, req)
	if err == nil || ctx.Err() != nil {
		return resp, err
	}
	f.logger.Warn("primary facilitator settlement failed, trying fallback", "operation", "settle", "error", err)
	return f.fallback.Settle(ctx, payment, req)
}

func (f *withFallback) Supported(ctx context.Context) (*SupportedResponse, error) {
	resp, err := f.primary.Supported(ctx)
	if err == nil || ctx.Err() != nil {
		return resp, err
	}
	f.logger.Warn("primary facilitator failed, trying fallback", "operation", "supported", "error", err)
	return f.fallback.Supported(ctx)
}
