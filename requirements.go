package x402

import (
	"strings"
)

// RequirementsInput is the request context a route is priced against.
type RequirementsInput struct {
	// Route is the matched route configuration.
	Route RouteConfig

	// PayTo is the default recipient, used when the route sets none.
	PayTo string

	// ResourceURL is the absolute URL of the requested resource.
	ResourceURL string

	// Method is the request method, recorded in the output schema.
	Method string

	// FeePayer is the facilitator address advertised for the route's network,
	// empty when the facilitator does not cover fees.
	FeePayer string
}

// BuildRequirements assembles the payment options for a matched route. A fresh
// slice is built for every call; requirements are never shared across requests.
func BuildRequirements(in RequirementsInput) ([]PaymentRequirement, error) {
	network := in.Route.Network
	if network == "" {
		network = NetworkAlgorand
	}
	resolved, err := ResolvePrice(in.Route.Price, network)
	if err != nil {
		return nil, err
	}

	payTo := in.Route.PayTo
	if payTo == "" {
		payTo = in.PayTo
	}
	if payTo == "" {
		return nil, NewPaymentError(ErrCodeInvalidRequirements, "payTo address is required", ErrInvalidRequirements).
			WithReason(ReasonInvalidPaymentRequirements)
	}

	resource := in.Route.Resource
	if resource == "" {
		resource = in.ResourceURL
	}

	timeout := in.Route.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = DefaultMaxTimeoutSeconds
	}

	req := PaymentRequirement{
		Scheme:            SchemeExact,
		Network:           network,
		MaxAmountRequired: resolved.MaxAmountRequired,
		Resource:          resource,
		Description:       in.Route.Description,
		MimeType:          in.Route.MimeType,
		PayTo:             payTo,
		MaxTimeoutSeconds: timeout,
		Asset:             resolved.Asset.String(),
		OutputSchema:      buildOutputSchema(in.Route, in.Method),
	}
	if in.FeePayer != "" {
		req.Extra = &RequirementExtra{FeePayer: in.FeePayer}
	}
	return []PaymentRequirement{req}, nil
}

func buildOutputSchema(route RouteConfig, method string) *OutputSchema {
	schema := &OutputSchema{}
	if route.OutputSchema != nil {
		*schema = *route.OutputSchema
	}

	input := InputSchema{Type: InputSchemaTypeHTTP, Method: strings.ToUpper(method)}
	if route.InputSchema != nil {
		input = *route.InputSchema
		if input.Type == "" {
			input.Type = InputSchemaTypeHTTP
		}
		if input.Method == "" {
			input.Method = strings.ToUpper(method)
		}
	}
	if schema.Input != nil {
		input = *schema.Input
	}
	schema.Input = &input
	return schema
}

// WithFeePayer returns a copy of reqs whose entries on feePayers' networks
// carry the advertised fee payer. feePayers maps network to address.
func WithFeePayer(reqs []PaymentRequirement, feePayers map[string]string) []PaymentRequirement {
	out := make([]PaymentRequirement, len(reqs))
	for i, r := range reqs {
		out[i] = r
		addr, ok := feePayers[r.Network]
		if !ok || addr == "" || r.Scheme != SchemeExact {
			continue
		}
		extra := RequirementExtra{}
		if r.Extra != nil {
			extra = *r.Extra
		}
		extra.FeePayer = addr
		out[i].Extra = &extra
	}
	return out
}
