// Package settlement runs payment settlement off the request path. A job is
// dispatched once the response has been flushed; it keeps running after the
// request context ends and is drained on shutdown.
package settlement

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/algox402/x402-go"
	"github.com/algox402/x402-go/facilitator"
	"github.com/algox402/x402-go/metrics"
)

// ErrClosed is returned by Dispatch after Shutdown has begun.
var ErrClosed = errors.New("settlement: dispatcher is shut down")

// Job is one payment waiting to be settled.
type Job struct {
	Payment     x402.PaymentPayload
	Requirement x402.PaymentRequirement

	// OnSettled runs after a successful settlement, with a context that
	// carries the remaining settle timeout.
	OnSettled func(ctx context.Context, resp *x402.SettlementResponse) error
}

// Config configures a Dispatcher.
type Config struct {
	Facilitator facilitator.Interface

	// Timeout bounds a single settlement including OnSettled. Zero means
	// x402.DefaultTimeouts.SettleTimeout.
	Timeout time.Duration

	Metrics metrics.Recorder
	Logger  *slog.Logger
}

// Dispatcher settles jobs in background goroutines.
type Dispatcher struct {
	fac     facilitator.Interface
	timeout time.Duration
	metrics metrics.Recorder
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = x402.DefaultTimeouts.SettleTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		fac:     cfg.Facilitator,
		timeout: timeout,
		metrics: metrics.OrNoop(cfg.Metrics),
		logger:  logger,
	}
}

// Dispatch starts settling job and returns its id. Values from ctx are kept
// but its cancellation is not: the job outlives the request that queued it.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) (string, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return "", ErrClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	id := uuid.NewString()
	go func() {
		defer d.wg.Done()
		d.run(context.WithoutCancel(ctx), id, job)
	}()
	return id, nil
}

func (d *Dispatcher) run(ctx context.Context, id string, job Job) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	network := job.Payment.Network
	logger := d.logger.With("job", id, "network", network)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("settlement panicked", "panic", r)
			d.metrics.IncCounter(metrics.EventSettleFailed, metrics.Labels(network, string(x402.ReasonUnexpectedSettleError)))
		}
	}()

	resp, err := d.fac.Settle(ctx, job.Payment, job.Requirement)
	if err != nil {
		logger.Error("settlement failed", "error", err)
		d.metrics.IncCounter(metrics.EventSettleFailed, metrics.Labels(network, string(x402.ReasonUnexpectedSettleError)))
		return
	}
	if !resp.Success {
		logger.Error("settlement rejected", "reason", resp.ErrorReason, "transaction", resp.Transaction)
		d.metrics.IncCounter(metrics.EventSettleFailed, metrics.Labels(network, string(resp.ErrorReason)))
		return
	}

	logger.Info("settlement confirmed", "transaction", resp.Transaction, "payer", resp.Payer)
	d.metrics.IncCounter(metrics.EventSettled, metrics.Labels(network, ""))
	if job.OnSettled == nil {
		return
	}
	if err := job.OnSettled(ctx, resp); err != nil {
		logger.Error("settlement callback failed", "transaction", resp.Transaction, "error", err)
	}
}

// Shutdown stops accepting jobs and waits for running ones to finish or for
// ctx to end, whichever comes first.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.logger.Warn("settlement drain interrupted", "error", ctx.Err())
		return ctx.Err()
	}
}
