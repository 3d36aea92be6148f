package x402

import (
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/shopspring/decimal"
)

// Price is the amount a route charges. It is one of Money, Dollars or
// TokenAmount.
type Price interface {
	isPrice()
}

// Money is a currency string such as "$3.10" or "0.001", priced in the
// network's default asset.
type Money string

// Dollars is a numeric currency amount priced in the network's default asset.
type Dollars float64

// TokenAmount is an explicit amount of a specific asset.
type TokenAmount struct {
	Amount decimal.Decimal
	Asset  Asset
}

func (Money) isPrice()       {}
func (Dollars) isPrice()     {}
func (TokenAmount) isPrice() {}

var (
	minMoney = decimal.RequireFromString("0.0001")
	maxMoney = decimal.RequireFromString("999999999")

	nonMoneyChars = regexp.MustCompile(`[^0-9.-]+`)
)

// ResolvedPrice is a price expressed in atomic units of an asset.
type ResolvedPrice struct {
	MaxAmountRequired string
	Asset             Asset
}

// ResolvePrice converts price into an atomic amount on network. Currency
// prices must lie in [0.0001, 999999999] and use the network's default asset.
// Amounts are truncated to the asset's precision. Failures are returned as a
// *PaymentError with code ErrCodeInvalidPrice.
func ResolvePrice(price Price, network string) (ResolvedPrice, error) {
	switch p := price.(type) {
	case Money:
		cleaned := nonMoneyChars.ReplaceAllString(string(p), "")
		amount, err := decimal.NewFromString(cleaned)
		if err != nil {
			return ResolvedPrice{}, invalidPrice(string(p), fmt.Errorf("%w: %v", ErrInvalidPrice, err))
		}
		return resolveMoney(string(p), amount, network)
	case Dollars:
		if math.IsNaN(float64(p)) || math.IsInf(float64(p), 0) {
			return ResolvedPrice{}, invalidPrice(strconv.FormatFloat(float64(p), 'f', -1, 64), ErrInvalidPrice)
		}
		return resolveMoney(strconv.FormatFloat(float64(p), 'f', -1, 64), decimal.NewFromFloat(float64(p)), network)
	case TokenAmount:
		if p.Amount.IsNegative() {
			return ResolvedPrice{}, invalidPrice(p.Amount.String(), ErrInvalidAmount)
		}
		return ResolvedPrice{
			MaxAmountRequired: p.Amount.Shift(p.Asset.Decimals).Truncate(0).String(),
			Asset:             p.Asset,
		}, nil
	case nil:
		return ResolvedPrice{}, invalidPrice("<nil>", ErrInvalidPrice)
	default:
		return ResolvedPrice{}, invalidPrice(fmt.Sprintf("%v", p), ErrInvalidPrice)
	}
}

func resolveMoney(raw string, amount decimal.Decimal, network string) (ResolvedPrice, error) {
	if amount.LessThan(minMoney) || amount.GreaterThan(maxMoney) {
		return ResolvedPrice{}, invalidPrice(raw, fmt.Errorf("%w: must be between 0.0001 and 999999999", ErrInvalidPrice))
	}
	asset, err := DefaultAsset(network)
	if err != nil {
		return ResolvedPrice{}, NewPaymentError(ErrCodeInvalidPrice, "no default asset for network", err).
			WithDetails("network", network).
			WithReason(ReasonInvalidNetwork)
	}
	return ResolvedPrice{
		MaxAmountRequired: amount.Shift(asset.Decimals).Truncate(0).String(),
		Asset:             asset,
	}, nil
}

func invalidPrice(raw string, err error) *PaymentError {
	msg := fmt.Sprintf(`invalid price (price: %s), must be in the form "$3.10", 0.10, "0.001"`, raw)
	return NewPaymentError(ErrCodeInvalidPrice, msg, err).
		WithDetails("price", raw).
		WithReason(ReasonInvalidPaymentRequirements)
}
