package x402

import (
	"fmt"
	"time"
)

// TimeoutConfig bounds the blocking facilitator operations.
type TimeoutConfig struct {
	// VerifyTimeout bounds a verify call, including simulation.
	VerifyTimeout time.Duration

	// SettleTimeout bounds a settle call, including confirmation polling.
	SettleTimeout time.Duration

	// RequestTimeout bounds a whole gated request.
	RequestTimeout time.Duration
}

// DefaultTimeouts are used when no TimeoutConfig is provided.
var DefaultTimeouts = TimeoutConfig{
	VerifyTimeout:  5 * time.Second,
	SettleTimeout:  60 * time.Second,
	RequestTimeout: 120 * time.Second,
}

// Validate checks that the timeouts are positive and that settling is allowed
// at least as long as verifying.
func (c TimeoutConfig) Validate() error {
	if c.VerifyTimeout <= 0 {
		return fmt.Errorf("verify timeout must be positive, got %v", c.VerifyTimeout)
	}
	if c.SettleTimeout <= 0 {
		return fmt.Errorf("settle timeout must be positive, got %v", c.SettleTimeout)
	}
	if c.SettleTimeout < c.VerifyTimeout {
		return fmt.Errorf("settle timeout (%v) must not be shorter than verify timeout (%v)", c.SettleTimeout, c.VerifyTimeout)
	}
	return nil
}

func (c TimeoutConfig) WithVerifyTimeout(d time.Duration) TimeoutConfig {
	c.VerifyTimeout = d
	return c
}

func (c TimeoutConfig) WithSettleTimeout(d time.Duration) TimeoutConfig {
	c.SettleTimeout = d
	return c
}

func (c TimeoutConfig) WithRequestTimeout(d time.Duration) TimeoutConfig {
	c.RequestTimeout = d
	return c
}
