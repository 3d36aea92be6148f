package settlement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algox402/x402-go"
	"github.com/algox402/x402-go/facilitator/facilitatortest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func job(onSettled func(context.Context, *x402.SettlementResponse) error) Job {
	return Job{
		Payment:     x402.PaymentPayload{X402Version: 1, Scheme: x402.SchemeExact, Network: x402.NetworkAlgorandTestnet},
		Requirement: x402.PaymentRequirement{Scheme: x402.SchemeExact, Network: x402.NetworkAlgorandTestnet},
		OnSettled:   onSettled,
	}
}

func TestDispatch_OutlivesRequestContext(t *testing.T) {
	fac := facilitatortest.Valid("PAYER", "TX1")
	fac.Block = make(chan struct{})
	d := New(Config{Facilitator: fac, Logger: quietLogger()})

	got := make(chan *x402.SettlementResponse, 1)
	ctx, cancel := context.WithCancel(context.Background())
	id, err := d.Dispatch(ctx, job(func(ctx context.Context, resp *x402.SettlementResponse) error {
		got <- resp
		return nil
	}))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	cancel()
	close(fac.Block)

	select {
	case resp := <-got:
		assert.Equal(t, "TX1", resp.Transaction)
		assert.Equal(t, x402.NetworkAlgorandTestnet, resp.Network)
	case <-time.After(2 * time.Second):
		t.Fatal("settlement did not complete after request context was cancelled")
	}
	require.NoError(t, d.Shutdown(context.Background()))
	assert.Equal(t, 1, fac.SettleCount())
}

func TestDispatch_FailureSkipsCallback(t *testing.T) {
	tests := []struct {
		name string
		fake *facilitatortest.Fake
	}{
		{"transport error", &facilitatortest.Fake{SettleErr: errors.New("connection refused")}},
		{"rejected", &facilitatortest.Fake{SettleResp: &x402.SettlementResponse{ErrorReason: x402.ReasonUnexpectedSettleError}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(Config{Facilitator: tt.fake, Logger: quietLogger()})
			var called atomic.Bool
			_, err := d.Dispatch(context.Background(), job(func(context.Context, *x402.SettlementResponse) error {
				called.Store(true)
				return nil
			}))
			require.NoError(t, err)
			require.NoError(t, d.Shutdown(context.Background()))
			assert.False(t, called.Load())
			assert.Equal(t, 1, tt.fake.SettleCount())
		})
	}
}

func TestShutdown_DrainsAndCloses(t *testing.T) {
	fac := facilitatortest.Valid("PAYER", "TX")
	fac.Block = make(chan struct{})
	d := New(Config{Facilitator: fac, Logger: quietLogger()})

	var settled atomic.Int32
	for i := 0; i < 3; i++ {
		_, err := d.Dispatch(context.Background(), job(func(context.Context, *x402.SettlementResponse) error {
			settled.Add(1)
			return nil
		}))
		require.NoError(t, err)
	}

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Shutdown(short), context.DeadlineExceeded, "jobs are still blocked")

	_, err := d.Dispatch(context.Background(), job(nil))
	assert.ErrorIs(t, err, ErrClosed)

	close(fac.Block)
	require.NoError(t, d.Shutdown(context.Background()))
	assert.Equal(t, int32(3), settled.Load())
}

func TestDispatch_TimeoutBoundsSettlement(t *testing.T) {
	fac := facilitatortest.Valid("PAYER", "TX")
	fac.Block = make(chan struct{})
	d := New(Config{Facilitator: fac, Timeout: 10 * time.Millisecond, Logger: quietLogger()})

	var called atomic.Bool
	_, err := d.Dispatch(context.Background(), job(func(context.Context, *x402.SettlementResponse) error {
		called.Store(true)
		return nil
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx), "blocked settlement gives up at its own timeout")
	assert.False(t, called.Load())
}

func TestDispatch_CallbackErrorIsLogged(t *testing.T) {
	fac := facilitatortest.Valid("PAYER", "TX")
	d := New(Config{Facilitator: fac, Logger: quietLogger()})

	_, err := d.Dispatch(context.Background(), job(func(context.Context, *x402.SettlementResponse) error {
		return errors.New("store unavailable")
	}))
	require.NoError(t, err)
	require.NoError(t, d.Shutdown(context.Background()))
}
