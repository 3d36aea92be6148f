package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"

	"github.com/algox402/x402-go/http/internal/helpers"
)

// DefaultTokenTTL is the lifetime of facilitator bearer tokens.
const DefaultTokenTTL = 2 * time.Minute

// ErrUnauthorized is returned when a bearer token is missing or invalid.
var ErrUnauthorized = errors.New("x402: unauthorized")

// FacilitatorAuth issues and checks the HS256 bearer tokens that protect the
// facilitator API. Each token is bound to one request method and endpoint
// path ("/verify", "/settle", "/supported"), relative to wherever the API is
// mounted, so a facilitator served under a prefix accepts the same tokens.
//
// FacilitatorAuth is immutable after construction and safe for concurrent use.
type FacilitatorAuth struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// requestClaims binds a token to "<METHOD> <path>".
type requestClaims struct {
	*jwt.Claims
	URI string `json:"uri"`
}

// NewFacilitatorAuth creates a FacilitatorAuth. The secret must be at least
// 32 bytes. A zero ttl means DefaultTokenTTL.
func NewFacilitatorAuth(secret []byte, issuer string, ttl time.Duration) (*FacilitatorAuth, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("facilitator secret must be at least 32 bytes, got %d", len(secret))
	}
	if issuer == "" {
		return nil, errors.New("issuer must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &FacilitatorAuth{secret: secret, issuer: issuer, ttl: ttl}, nil
}

// Token returns a signed token for one request.
func (a *FacilitatorAuth) Token(method, path string) (string, error) {
	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: a.secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create JWT signer: %w", err)
	}

	now := time.Now()
	claims := &requestClaims{
		Claims: &jwt.Claims{
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Expiry:    jwt.NewNumericDate(now.Add(a.ttl)),
		},
		URI: method + " " + path,
	}

	token, err := jwt.Signed(sig).Claims(claims).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize JWT: %w", err)
	}
	return token, nil
}

// Check validates token for a request to method and path.
func (a *FacilitatorAuth) Check(token, method, path string) error {
	parsed, err := jwt.ParseSigned(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	claims := requestClaims{Claims: &jwt.Claims{}}
	if err := parsed.Claims(a.secret, &claims); err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if err := claims.Claims.ValidateWithLeeway(jwt.Expected{Issuer: a.issuer, Time: time.Now()}, 5*time.Second); err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.URI != method+" "+path {
		return fmt.Errorf("%w: token issued for %q", ErrUnauthorized, claims.URI)
	}
	return nil
}

// Authorize sets the Authorization header of req with a token for endpoint,
// the path relative to the facilitator's base URL.
func (a *FacilitatorAuth) Authorize(req *http.Request, endpoint string) error {
	token, err := a.Token(req.Method, endpoint)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// Require rejects requests without a valid bearer token with 401. Mount it
// behind any prefix stripping so r.URL.Path is the endpoint path.
func (a *FacilitatorAuth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			helpers.SendError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if err := a.Check(token, r.Method, r.URL.Path); err != nil {
			helpers.SendError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
