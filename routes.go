package x402

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// DefaultMaxTimeoutSeconds is used when a route does not set MaxTimeoutSeconds.
const DefaultMaxTimeoutSeconds = 60

// RouteConfig describes how a payment-gated route is priced and presented.
type RouteConfig struct {
	// Price is the amount charged for the route.
	Price Price

	// Network is the network payments settle on. Defaults to "algorand".
	Network string

	// PayTo overrides the middleware-wide recipient for this route.
	PayTo string

	Description       string
	MimeType          string
	MaxTimeoutSeconds int

	// Resource overrides the resource URL derived from the request.
	Resource string

	InputSchema  *InputSchema
	OutputSchema *OutputSchema

	// Discoverable marks the route for listing by discovery services.
	Discoverable bool

	// CustomPaywallHTML replaces the built-in browser challenge page.
	CustomPaywallHTML string

	// ErrorMessages overrides the challenge error text keyed by ErrorReason
	// (or "payment_required" for the no-payment challenge).
	ErrorMessages map[string]string

	// SettleBeforeResponse settles synchronously and reports the outcome in the
	// X-PAYMENT-RESPONSE header instead of settling after the response.
	SettleBeforeResponse bool
}

// Routes maps "<VERB> <path-pattern>" (verb optional) to a route configuration.
type Routes map[string]RouteConfig

// PriceRoutes builds a Routes table from bare prices on the default network.
func PriceRoutes(prices map[string]Price) Routes {
	routes := make(Routes, len(prices))
	for pattern, price := range prices {
		routes[pattern] = RouteConfig{Price: price, Network: NetworkAlgorand}
	}
	return routes
}

// RoutePattern is a compiled route table entry.
type RoutePattern struct {
	// Verb is the upper-cased HTTP method, or "*" for any method.
	Verb    string
	Pattern *regexp.Regexp
	Config  RouteConfig

	// Key is the route table key the pattern was compiled from.
	Key string
}

// RouteMatcher resolves the most specific payment-gated route for a request.
type RouteMatcher struct {
	patterns []RoutePattern
}

var (
	routeSpecialChars = regexp.MustCompile(`[$()+.?^{|}]`)
	routeParam        = regexp.MustCompile(`\[[^\]]+\]`)
	repeatedSlashes   = regexp.MustCompile(`/+`)
)

// NewRouteMatcher compiles every route in the table.
// Path patterns use "*" as a non-greedy wildcard and "[name]" as a single
// segment placeholder. Matching is case-insensitive and anchored.
func NewRouteMatcher(routes Routes) (*RouteMatcher, error) {
	m := &RouteMatcher{patterns: make([]RoutePattern, 0, len(routes))}
	for key, cfg := range routes {
		p, err := compileRoute(key, cfg)
		if err != nil {
			return nil, err
		}
		m.patterns = append(m.patterns, p)
	}
	// Stable order so equally long sources resolve the same way every run.
	sort.Slice(m.patterns, func(i, j int) bool { return m.patterns[i].Key < m.patterns[j].Key })
	return m, nil
}

func compileRoute(key string, cfg RouteConfig) (RoutePattern, error) {
	verb, path := "*", strings.TrimSpace(key)
	if fields := strings.Fields(key); len(fields) > 1 {
		verb, path = fields[0], fields[1]
	}
	if path == "" {
		return RoutePattern{}, NewPaymentError(ErrCodeInvalidRoute, fmt.Sprintf("invalid route pattern: %q", key), ErrInvalidRoute)
	}

	src := routeSpecialChars.ReplaceAllStringFunc(path, func(s string) string { return `\` + s })
	src = strings.ReplaceAll(src, "*", ".*?")
	src = routeParam.ReplaceAllString(src, "[^/]+")
	src = strings.ReplaceAll(src, "/", `\/`)

	re, err := regexp.Compile("(?i)^" + src + "$")
	if err != nil {
		return RoutePattern{}, NewPaymentError(ErrCodeInvalidRoute, fmt.Sprintf("invalid route pattern: %q", key), err)
	}
	if cfg.Network == "" {
		cfg.Network = NetworkAlgorand
	}
	return RoutePattern{
		Verb:    strings.ToUpper(verb),
		Pattern: re,
		Config:  cfg,
		Key:     key,
	}, nil
}

// Patterns returns the compiled routes.
func (m *RouteMatcher) Patterns() []RoutePattern {
	return m.patterns
}

// Match returns the route gating path for method. When several routes match,
// the one with the longest pattern source wins. A path that cannot be decoded
// matches nothing.
func (m *RouteMatcher) Match(path, method string) (RoutePattern, bool) {
	normalized, ok := NormalizePath(path)
	if !ok {
		return RoutePattern{}, false
	}
	method = strings.ToUpper(method)

	var (
		best  RoutePattern
		found bool
	)
	for _, p := range m.patterns {
		if p.Verb != "*" && p.Verb != method {
			continue
		}
		if !p.Pattern.MatchString(normalized) {
			continue
		}
		if !found || len(p.Pattern.String()) > len(best.Pattern.String()) {
			best, found = p, true
		}
	}
	return best, found
}

// NormalizePath strips the query and fragment, percent-decodes the path,
// turns backslashes into slashes, collapses repeated slashes and trims a
// trailing slash unless the path is the root.
func NormalizePath(path string) (string, bool) {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	decoded, err := url.PathUnescape(path)
	if err != nil {
		return "", false
	}
	decoded = strings.ReplaceAll(decoded, `\`, "/")
	decoded = repeatedSlashes.ReplaceAllString(decoded, "/")
	if len(decoded) > 1 {
		decoded = strings.TrimRight(decoded, "/")
		if decoded == "" {
			decoded = "/"
		}
	}
	return decoded, true
}
