package x402

import (
	"encoding/json"
	"math/big"

	"github.com/shopspring/decimal"
)

// X402Version is the only protocol version this package speaks.
const X402Version = 1

// SchemeExact is the only payment scheme currently defined for AVM networks.
const SchemeExact = "exact"

type InputSchemaType string

const (
	InputSchemaTypeHTTP InputSchemaType = "http"
)

type InputSchemaBodyType string

const (
	InputSchemaBodyTypeJSON              InputSchemaBodyType = "json"
	InputSchemaBodyTypeFormData          InputSchemaBodyType = "form-data"
	InputSchemaBodyTypeMultipartFormData InputSchemaBodyType = "multipart-form-data"
	InputSchemaBodyTypeText              InputSchemaBodyType = "text"
	InputSchemaBodyTypeBinary            InputSchemaBodyType = "binary"
)

// FieldDef defines the schema for a single field in the request or response.
type FieldDef struct {
	Type        string              `json:"type,omitempty"`
	Required    bool                `json:"required,omitempty"`
	Description string              `json:"description,omitempty"`
	Enum        []string            `json:"enum,omitempty"`
	Properties  map[string]FieldDef `json:"properties,omitempty"`
}

// InputSchema defines the expected structure of the client request.
type InputSchema struct {
	Type         InputSchemaType     `json:"type"`
	Method       string              `json:"method"`
	BodyType     InputSchemaBodyType `json:"bodyType,omitempty"`
	QueryParams  map[string]FieldDef `json:"queryParams,omitempty"`
	BodyFields   map[string]FieldDef `json:"bodyFields,omitempty"`
	HeaderFields map[string]FieldDef `json:"headerFields,omitempty"`
}

// OutputSchema describes the protected resource's request and response shapes.
// Input and Output are the recognized members; anything else a route declares
// travels in Additional and is flattened into the same JSON object.
type OutputSchema struct {
	Input      *InputSchema
	Output     map[string]FieldDef
	Additional map[string]any
}

// MarshalJSON flattens Additional next to the recognized members.
func (s OutputSchema) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Additional)+2)
	for k, v := range s.Additional {
		out[k] = v
	}
	if s.Input != nil {
		out["input"] = s.Input
	}
	if len(s.Output) > 0 {
		out["output"] = s.Output
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits recognized members from opaque extension fields.
func (s *OutputSchema) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = OutputSchema{}
	for k, v := range raw {
		switch k {
		case "input":
			var in InputSchema
			if err := json.Unmarshal(v, &in); err != nil {
				return err
			}
			s.Input = &in
		case "output":
			if err := json.Unmarshal(v, &s.Output); err != nil {
				return err
			}
		default:
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return err
			}
			if s.Additional == nil {
				s.Additional = make(map[string]any)
			}
			s.Additional[k] = val
		}
	}
	return nil
}

// RequirementExtra carries scheme-specific requirement data. FeePayer is set when
// the facilitator covers network fees for the (scheme, network) pair.
type RequirementExtra struct {
	FeePayer   string
	Additional map[string]any
}

// MarshalJSON flattens Additional next to feePayer.
func (e RequirementExtra) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Additional)+1)
	for k, v := range e.Additional {
		out[k] = v
	}
	if e.FeePayer != "" {
		out["feePayer"] = e.FeePayer
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads feePayer and keeps every other key opaque.
func (e *RequirementExtra) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = RequirementExtra{}
	for k, v := range raw {
		if k == "feePayer" {
			if s, ok := v.(string); ok {
				e.FeePayer = s
			}
			continue
		}
		if e.Additional == nil {
			e.Additional = make(map[string]any)
		}
		e.Additional[k] = v
	}
	return nil
}

// IsZero reports whether the extra has nothing to serialize.
func (e *RequirementExtra) IsZero() bool {
	return e == nil || (e.FeePayer == "" && len(e.Additional) == 0)
}

// PaymentRequirement represents a single payment option from a 402 response.
type PaymentRequirement struct {
	// Scheme is the payment scheme identifier ("exact").
	Scheme string `json:"scheme" validate:"required,oneof=exact"`

	// Network is the AVM network identifier ("algorand" or "algorand-testnet").
	Network string `json:"network" validate:"required,avmnetwork"`

	// MaxAmountRequired is the payment amount in atomic units of Asset.
	MaxAmountRequired string `json:"maxAmountRequired" validate:"required,atomic"`

	// Resource is the URL of the protected resource.
	Resource string `json:"resource" validate:"required,url"`

	// Description is a human-readable payment description.
	Description string `json:"description"`

	// MimeType is the content type of the protected resource.
	MimeType string `json:"mimeType"`

	// OutputSchema describes the protected resource, when the route declares one.
	OutputSchema *OutputSchema `json:"outputSchema,omitempty"`

	// PayTo is the Algorand address receiving the payment.
	PayTo string `json:"payTo" validate:"required,algoaddr"`

	// MaxTimeoutSeconds is the validity period for the payment.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds" validate:"gte=0"`

	// Asset is the ASA id as a decimal string.
	Asset string `json:"asset" validate:"required,atomic"`

	// Extra contains scheme-specific additional data such as the fee payer.
	Extra *RequirementExtra `json:"extra,omitempty"`
}

// FeePayer returns the advertised fee payer address, if any.
func (r PaymentRequirement) FeePayer() string {
	if r.Extra == nil {
		return ""
	}
	return r.Extra.FeePayer
}

// PaymentRequirementsResponse represents the complete 402 response body.
type PaymentRequirementsResponse struct {
	// X402Version is the protocol version (currently 1).
	X402Version int `json:"x402Version"`

	// Error is a human-readable error message or an ErrorReason.
	Error string `json:"error"`

	// Accepts is an array of payment options the server will accept.
	Accepts []PaymentRequirement `json:"accepts"`

	// Payer is reported when verification identified one.
	Payer string `json:"payer,omitempty"`
}

// AVMPayload is the exact-scheme payload for Algorand networks: a transaction
// group and the position of the asset transfer that pays for the resource.
type AVMPayload struct {
	// PaymentIndex is the index of the payment transaction in PaymentGroup.
	PaymentIndex int `json:"paymentIndex" validate:"gte=0"`

	// PaymentGroup holds base64 msgpack transactions, signed or unsigned.
	PaymentGroup []string `json:"paymentGroup" validate:"required,min=1,dive,required"`
}

// PaymentPayload represents a payment sent to the server in the X-PAYMENT header.
type PaymentPayload struct {
	// X402Version is the protocol version (currently 1).
	X402Version int `json:"x402Version" validate:"eq=1"`

	// Scheme is the payment scheme identifier ("exact").
	Scheme string `json:"scheme" validate:"required"`

	// Network is the AVM network identifier.
	Network string `json:"network" validate:"required,avmnetwork"`

	// Payload is the transaction group carrying the payment.
	Payload AVMPayload `json:"payload"`
}

// SettlementResponse represents the outcome of submitting a payment group.
type SettlementResponse struct {
	// Success indicates whether the group was confirmed.
	Success bool `json:"success"`

	// ErrorReason is set when Success is false.
	ErrorReason ErrorReason `json:"errorReason,omitempty"`

	// Transaction is the confirmed transaction id.
	Transaction string `json:"transaction,omitempty"`

	// Network is the network the group was submitted to.
	Network string `json:"network"`

	// Payer is the address that made the payment.
	Payer string `json:"payer,omitempty"`
}

// AmountToBigInt converts a decimal amount string to *big.Int in atomic units,
// truncating anything below the asset's precision.
// For example, "1.5" with 6 decimals becomes 1500000.
func AmountToBigInt(amount string, decimals int32) (*big.Int, error) {
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, ErrInvalidAmount
	}
	if value.IsNegative() {
		return nil, ErrInvalidAmount
	}
	return value.Shift(decimals).Truncate(0).BigInt(), nil
}

// BigIntToAmount converts a *big.Int in atomic units to a decimal string.
// For example, 1500000 with 6 decimals becomes "1.5".
func BigIntToAmount(value *big.Int, decimals int32) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -decimals).String()
}
