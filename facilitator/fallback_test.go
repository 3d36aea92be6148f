package facilitator_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algox402/x402-go"
	"github.com/algox402/x402-go/facilitator"
	"github.com/algox402/x402-go/facilitator/facilitatortest"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestWithFallback_NilFallbackReturnsPrimary(t *testing.T) {
	primary := facilitatortest.Valid("PAYER", "TX")
	assert.Same(t, facilitator.Interface(primary), facilitator.WithFallback(primary, nil, quiet))
}

func TestWithFallback_UsesFallbackOnError(t *testing.T) {
	primary := &facilitatortest.Fake{
		VerifyErr: x402.ErrFacilitatorUnavailable,
		SettleErr: x402.ErrFacilitatorUnavailable,
	}
	fallback := facilitatortest.Valid("PAYER", "TX2")
	f := facilitator.WithFallback(primary, fallback, quiet)

	payment := x402.PaymentPayload{Network: x402.NetworkAlgorandTestnet}
	vr, err := f.Verify(context.Background(), payment, x402.PaymentRequirement{})
	require.NoError(t, err)
	assert.True(t, vr.IsValid)

	sr, err := f.Settle(context.Background(), payment, x402.PaymentRequirement{})
	require.NoError(t, err)
	assert.Equal(t, "TX2", sr.Transaction)

	assert.Equal(t, 1, primary.VerifyCount())
	assert.Equal(t, 1, fallback.VerifyCount())
	assert.Equal(t, 1, fallback.SettleCount())
}

func TestWithFallback_RejectionIsNotRetried(t *testing.T) {
	primary := &facilitatortest.Fake{VerifyResp: facilitator.Invalid(x402.ReasonInvalidPayment)}
	fallback := facilitatortest.Valid("PAYER", "TX")
	f := facilitator.WithFallback(primary, fallback, quiet)

	vr, err := f.Verify(context.Background(), x402.PaymentPayload{}, x402.PaymentRequirement{})
	require.NoError(t, err)
	assert.False(t, vr.IsValid)
	assert.Equal(t, x402.ReasonInvalidPayment, vr.InvalidReason)
	assert.Zero(t, fallback.VerifyCount())
}

func TestWithFallback_BothFail(t *testing.T) {
	primary := &facilitatortest.Fake{SupportedErr: errors.New("primary down")}
	fallback := &facilitatortest.Fake{SupportedErr: errors.New("fallback down")}
	_, err := facilitator.WithFallback(primary, fallback, quiet).Supported(context.Background())
	assert.EqualError(t, err, "fallback down")
}
