package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/algox402/x402-go"
	"github.com/algox402/x402-go/facilitator"
	"github.com/algox402/x402-go/retry"
)

// DefaultSupportedTTL is how long a FacilitatorClient caches /supported.
const DefaultSupportedTTL = 5 * time.Minute

// FacilitatorClient is a client for communicating with x402 facilitator services.
type FacilitatorClient struct {
	BaseURL  string
	Client   *http.Client
	Timeouts x402.TimeoutConfig

	// Retry applies to /verify and /supported. /settle is never retried
	// since a lost response does not mean the group was not submitted.
	Retry retry.Config

	// Auth, when set, signs a bearer token for every request.
	Auth *FacilitatorAuth

	// SupportedTTL bounds the /supported cache. Zero means DefaultSupportedTTL.
	SupportedTTL time.Duration

	Logger *slog.Logger

	mu            sync.Mutex
	supported     *facilitator.SupportedResponse
	supportedTime time.Time
}

var _ facilitator.Interface = (*FacilitatorClient)(nil)

func (c *FacilitatorClient) timeouts() x402.TimeoutConfig {
	if c.Timeouts == (x402.TimeoutConfig{}) {
		return x402.DefaultTimeouts
	}
	return c.Timeouts
}

func (c *FacilitatorClient) retryConfig() retry.Config {
	if c.Retry == (retry.Config{}) {
		return retry.DefaultConfig
	}
	return c.Retry
}

func (c *FacilitatorClient) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c *FacilitatorClient) httpClient() *http.Client {
	if c.Client == nil {
		return http.DefaultClient
	}
	return c.Client
}

// Verify verifies a payment authorization without executing the transaction.
func (c *FacilitatorClient) Verify(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*facilitator.VerifyResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts().VerifyTimeout)
	defer cancel()

	body, err := json.Marshal(facilitator.Request{
		X402Version:         x402.X402Version,
		PaymentPayload:      payment,
		PaymentRequirements: requirement,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	return retry.WithRetry(ctx, c.retryConfig(), retry.Transient, func() (*facilitator.VerifyResponse, error) {
		var resp facilitator.VerifyResponse
		if err := c.do(ctx, http.MethodPost, "/verify", body, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	})
}

// Settle executes a verified payment on the blockchain.
func (c *FacilitatorClient) Settle(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*x402.SettlementResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts().SettleTimeout)
	defer cancel()

	body, err := json.Marshal(facilitator.Request{
		X402Version:         x402.X402Version,
		PaymentPayload:      payment,
		PaymentRequirements: requirement,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp x402.SettlementResponse
	if err := c.do(ctx, http.MethodPost, "/settle", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Supported queries the facilitator for supported payment types. Responses
// are cached for SupportedTTL.
func (c *FacilitatorClient) Supported(ctx context.Context) (*facilitator.SupportedResponse, error) {
	ttl := c.SupportedTTL
	if ttl <= 0 {
		ttl = DefaultSupportedTTL
	}
	c.mu.Lock()
	if c.supported != nil && time.Since(c.supportedTime) < ttl {
		cached := c.supported
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeouts().VerifyTimeout)
	defer cancel()

	resp, err := retry.WithRetry(ctx, c.retryConfig(), retry.Transient, func() (*facilitator.SupportedResponse, error) {
		var resp facilitator.SupportedResponse
		if err := c.do(ctx, http.MethodGet, "/supported", nil, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.supported, c.supportedTime = resp, time.Now()
	c.mu.Unlock()
	return resp, nil
}

// EnrichRequirements fetches supported payment types from the facilitator and
// sets the advertised fee payer on each requirement for its network.
func (c *FacilitatorClient) EnrichRequirements(ctx context.Context, requirements []x402.PaymentRequirement) ([]x402.PaymentRequirement, error) {
	supported, err := c.Supported(ctx)
	if err != nil {
		return requirements, fmt.Errorf("failed to fetch supported payment types: %w", err)
	}
	return x402.WithFeePayer(requirements, supported.FeePayers()), nil
}

// do sends one request and decodes a 200 response into out. 5xx responses
// and transport failures wrap x402.ErrFacilitatorUnavailable so they are
// retried; other statuses are permanent.
func (c *FacilitatorClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	url := strings.TrimSuffix(c.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Auth != nil {
		if err := c.Auth.Authorize(req, path); err != nil {
			return retry.Permanent(err)
		}
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", x402.ErrFacilitatorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger().Warn("facilitator returned an error", "path", path, "status", resp.StatusCode, "body", string(snippet))
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %s status %d", x402.ErrFacilitatorUnavailable, path, resp.StatusCode)
		}
		return retry.Permanent(fmt.Errorf("facilitator %s failed: status %d", path, resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Permanent(fmt.Errorf("failed to decode %s response: %w", path, err))
	}
	return nil
}
