package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/algox402/x402-go"
	"github.com/algox402/x402-go/store"
)

func TestLinks(t *testing.T) {
	ctx := context.Background()
	s := New()

	old := &store.Link{CreatorWallet: "W", ContentType: store.ContentURL, ContentPath: "https://example.com", Price: decimal.NewFromInt(1), CreatedAt: time.Now().Add(-time.Hour)}
	newer := &store.Link{CreatorWallet: "W", ContentType: store.ContentFile, ContentPath: "a.pdf", Price: decimal.NewFromInt(2)}
	other := &store.Link{CreatorWallet: "X", ContentType: store.ContentFile, ContentPath: "b.pdf"}
	for _, l := range []*store.Link{old, newer, other} {
		if err := s.CreateLink(ctx, l); err != nil {
			t.Fatalf("CreateLink: %v", err)
		}
		if l.ID == "" {
			t.Fatal("CreateLink did not assign an id")
		}
	}

	got, err := s.GetLink(ctx, newer.ID)
	if err != nil {
		t.Fatalf("GetLink: %v", err)
	}
	if got.ContentPath != "a.pdf" {
		t.Errorf("GetLink returned %+v", got)
	}

	if _, err := s.GetLink(ctx, "missing"); !errors.Is(err, x402.ErrLinkNotFound) {
		t.Errorf("expected ErrLinkNotFound, got %v", err)
	}

	links, err := s.ListLinks(ctx, "W")
	if err != nil {
		t.Fatalf("ListLinks: %v", err)
	}
	if len(links) != 2 || links[0].ID != newer.ID {
		t.Errorf("ListLinks should return newest first, got %+v", links)
	}
}

func TestPayments(t *testing.T) {
	ctx := context.Background()
	s := New()

	first := &store.PaymentRecord{LinkID: "l", TxnID: "T1", Amount: decimal.NewFromInt(1), Timestamp: time.Now().Add(-time.Minute)}
	second := &store.PaymentRecord{LinkID: "l", TxnID: "T2", Amount: decimal.NewFromInt(2)}
	for _, p := range []*store.PaymentRecord{first, second} {
		if err := s.RecordPayment(ctx, p); err != nil {
			t.Fatalf("RecordPayment: %v", err)
		}
	}

	dup := &store.PaymentRecord{LinkID: "l", TxnID: "T1", Amount: decimal.NewFromInt(1)}
	if err := s.RecordPayment(ctx, dup); err != nil {
		t.Fatalf("duplicate RecordPayment: %v", err)
	}

	payments, err := s.ListPayments(ctx, "l")
	if err != nil {
		t.Fatalf("ListPayments: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("expected duplicate notification to be ignored, got %d payments", len(payments))
	}
	if payments[0].TxnID != "T2" {
		t.Errorf("expected newest first, got %s", payments[0].TxnID)
	}

	none, err := s.ListPayments(ctx, "other")
	if err != nil || len(none) != 0 {
		t.Errorf("expected no payments, got %v, %v", none, err)
	}
}
