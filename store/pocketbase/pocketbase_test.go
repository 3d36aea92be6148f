package pocketbase

import (
	"context"
	"errors"
	"testing"

	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"github.com/algox402/x402-go"
	"github.com/algox402/x402-go/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	app := core.NewBaseApp(core.BaseAppConfig{DataDir: t.TempDir()})
	if err := app.Bootstrap(); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := app.RunAllMigrations(); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	t.Cleanup(func() { _ = app.ResetBootstrapState() })

	s := New(app)
	if err := s.EnsureCollections(); err != nil {
		t.Fatalf("EnsureCollections: %v", err)
	}
	if err := s.EnsureCollections(); err != nil {
		t.Fatalf("EnsureCollections is not repeatable: %v", err)
	}
	return s
}

func TestLinkRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	link := &store.Link{
		CreatorWallet: "CREATOR",
		ContentType:   store.ContentFile,
		ContentPath:   "report-1.pdf",
		Price:         decimal.RequireFromString("3.10"),
		Network:       x402.NetworkAlgorandTestnet,
		AssetID:       10458941,
		Decimals:      6,
	}
	if err := s.CreateLink(ctx, link); err != nil {
		t.Fatalf("CreateLink: %v", err)
	}
	if link.ID == "" {
		t.Fatal("CreateLink did not assign an id")
	}

	got, err := s.GetLink(ctx, link.ID)
	if err != nil {
		t.Fatalf("GetLink: %v", err)
	}
	if got.CreatorWallet != "CREATOR" || got.ContentType != store.ContentFile || got.AssetID != 10458941 || got.Decimals != 6 {
		t.Errorf("unexpected link %+v", got)
	}
	if !got.Price.Equal(decimal.RequireFromString("3.1")) {
		t.Errorf("price = %s", got.Price)
	}

	if _, err := s.GetLink(ctx, "doesnotexist123"); !errors.Is(err, x402.ErrLinkNotFound) {
		t.Errorf("expected ErrLinkNotFound, got %v", err)
	}

	links, err := s.ListLinks(ctx, "CREATOR")
	if err != nil || len(links) != 1 {
		t.Fatalf("ListLinks = %v, %v", links, err)
	}
}

func TestRecordPayment_IgnoresRepeatedTransaction(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec := &store.PaymentRecord{LinkID: "l1", PayerAddress: "PAYER", Amount: decimal.RequireFromString("0.5"), TxnID: "TX1", Network: x402.NetworkAlgorand}
	if err := s.RecordPayment(ctx, rec); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	again := *rec
	again.ID = ""
	if err := s.RecordPayment(ctx, &again); err != nil {
		t.Fatalf("repeat RecordPayment: %v", err)
	}
	if again.ID != rec.ID {
		t.Errorf("repeat should resolve to the stored record")
	}

	payments, err := s.ListPayments(ctx, "l1")
	if err != nil {
		t.Fatalf("ListPayments: %v", err)
	}
	if len(payments) != 1 {
		t.Fatalf("expected 1 payment, got %d", len(payments))
	}
	if !payments[0].Amount.Equal(decimal.RequireFromString("0.5")) || payments[0].PayerAddress != "PAYER" {
		t.Errorf("unexpected payment %+v", payments[0])
	}
}
