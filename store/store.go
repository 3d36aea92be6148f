// Package store defines the persistence collaborators of the link-backed
// payment gate: links that price a piece of content, the payments recorded
// against them, and the bytes of uploaded files.
package store

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/algox402/x402-go"
)

// ContentType says how a link's content is delivered.
type ContentType string

const (
	// ContentFile links stream an uploaded file.
	ContentFile ContentType = "FILE"
	// ContentURL links redirect to an external URL.
	ContentURL ContentType = "URL"
)

// Link prices access to one file or URL.
type Link struct {
	ID            string          `json:"id"`
	CreatorWallet string          `json:"creatorWallet" validate:"required,algoaddr"`
	ContentType   ContentType     `json:"contentType" validate:"required,oneof=FILE URL"`
	ContentPath   string          `json:"contentPath" validate:"required"`
	Price         decimal.Decimal `json:"price"`
	Network       string          `json:"network" validate:"required,avmnetwork"`
	AssetID       uint64          `json:"assetId,string"`
	Decimals      int32           `json:"decimals"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// PriceString is the link price in the "$<amount>" form the price resolver
// accepts.
func (l *Link) PriceString() string {
	return "$" + l.Price.String()
}

// PaymentRecord is one settled payment against a link.
type PaymentRecord struct {
	ID           string          `json:"id"`
	LinkID       string          `json:"linkId"`
	PayerAddress string          `json:"payerAddress"`
	Amount       decimal.Decimal `json:"amount"`
	TxnID        string          `json:"txnId"`
	TxnGroupID   string          `json:"txnGroupId,omitempty"`
	Network      string          `json:"network"`
	Timestamp    time.Time       `json:"timestamp"`
}

// LinkStore persists links. GetLink returns x402.ErrLinkNotFound for unknown ids.
type LinkStore interface {
	CreateLink(ctx context.Context, link *Link) error
	GetLink(ctx context.Context, id string) (*Link, error)
	// ListLinks returns the creator's links, newest first.
	ListLinks(ctx context.Context, creatorWallet string) ([]Link, error)
}

// PaymentRecorder persists settled payments. Settlement notifications are
// at-least-once, so implementations must tolerate a repeated TxnID.
type PaymentRecorder interface {
	RecordPayment(ctx context.Context, rec *PaymentRecord) error
	// ListPayments returns the link's payments, newest first.
	ListPayments(ctx context.Context, linkID string) ([]PaymentRecord, error)
}

// ContentProvider stores and streams uploaded files by opaque handle.
// Open returns x402.ErrContentNotFound for unknown handles.
type ContentProvider interface {
	Save(ctx context.Context, name string, r io.Reader) (handle string, err error)
	Open(ctx context.Context, handle string) (io.ReadCloser, error)
}

// NewPaymentRecord converts a settled atomic amount into the decimal amount
// recorded for link.
func NewPaymentRecord(link *Link, payer, atomicAmount, txnID, txnGroupID string) (*PaymentRecord, error) {
	atomic, err := decimal.NewFromString(atomicAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", x402.ErrInvalidAmount, atomicAmount)
	}
	return &PaymentRecord{
		LinkID:       link.ID,
		PayerAddress: payer,
		Amount:       atomic.Shift(-link.Decimals),
		TxnID:        txnID,
		TxnGroupID:   txnGroupID,
		Network:      link.Network,
		Timestamp:    time.Now().UTC(),
	}, nil
}

// Earnings summarizes a link's payments.
type Earnings struct {
	Total   decimal.Decimal `json:"totalEarnings"`
	Count   int             `json:"paymentCount"`
	Average decimal.Decimal `json:"averagePayment"`
}

// DailyEarnings is the sum of payments received on one UTC day.
type DailyEarnings struct {
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// Summarize totals payments.
func Summarize(payments []PaymentRecord) Earnings {
	e := Earnings{Total: decimal.Zero, Average: decimal.Zero, Count: len(payments)}
	for _, p := range payments {
		e.Total = e.Total.Add(p.Amount)
	}
	if e.Count > 0 {
		e.Average = e.Total.Div(decimal.NewFromInt(int64(e.Count)))
	}
	return e
}

// ByDay groups payments by UTC day, oldest day first.
func ByDay(payments []PaymentRecord) []DailyEarnings {
	sums := make(map[string]decimal.Decimal)
	for _, p := range payments {
		day := p.Timestamp.UTC().Format(time.DateOnly)
		sums[day] = sums[day].Add(p.Amount)
	}
	out := make([]DailyEarnings, 0, len(sums))
	for day, amount := range sums {
		out = append(out, DailyEarnings{Date: day, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
