// Package pocketbase stores links and payments as PocketBase records.
package pocketbase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"github.com/algox402/x402-go"
	"github.com/algox402/x402-go/store"
)

// Collection names.
const (
	LinksCollection    = "links"
	PaymentsCollection = "payments"
)

// Store implements store.LinkStore and store.PaymentRecorder on a PocketBase app.
type Store struct {
	app core.App
}

var (
	_ store.LinkStore       = (*Store)(nil)
	_ store.PaymentRecorder = (*Store)(nil)
)

// New returns a Store backed by app. Call EnsureCollections once the app is
// bootstrapped.
func New(app core.App) *Store {
	return &Store{app: app}
}

// EnsureCollections creates the links and payments collections when missing.
func (s *Store) EnsureCollections() error {
	if _, err := s.app.FindCollectionByNameOrId(LinksCollection); err != nil {
		links := core.NewBaseCollection(LinksCollection)
		links.Fields.Add(
			&core.TextField{Name: "creatorWallet", Required: true},
			&core.SelectField{Name: "contentType", Required: true, MaxSelect: 1, Values: []string{string(store.ContentFile), string(store.ContentURL)}},
			&core.TextField{Name: "contentPath", Required: true},
			&core.TextField{Name: "price", Required: true},
			&core.TextField{Name: "network", Required: true},
			&core.NumberField{Name: "assetId", OnlyInt: true},
			&core.NumberField{Name: "decimals", OnlyInt: true},
			&core.AutodateField{Name: "created", OnCreate: true},
		)
		links.AddIndex("idx_links_creator", false, "creatorWallet", "")
		if err := s.app.Save(links); err != nil {
			return fmt.Errorf("create %s collection: %w", LinksCollection, err)
		}
	}

	if _, err := s.app.FindCollectionByNameOrId(PaymentsCollection); err != nil {
		payments := core.NewBaseCollection(PaymentsCollection)
		payments.Fields.Add(
			&core.TextField{Name: "linkId", Required: true},
			&core.TextField{Name: "payerAddress", Required: true},
			&core.TextField{Name: "amount", Required: true},
			&core.TextField{Name: "txnId"},
			&core.TextField{Name: "txnGroupId"},
			&core.TextField{Name: "network"},
			&core.AutodateField{Name: "created", OnCreate: true},
		)
		payments.AddIndex("idx_payments_link", false, "linkId", "")
		payments.AddIndex("idx_payments_txn", true, "txnId", "txnId != ''")
		if err := s.app.Save(payments); err != nil {
			return fmt.Errorf("create %s collection: %w", PaymentsCollection, err)
		}
	}
	return nil
}

func (s *Store) CreateLink(ctx context.Context, link *store.Link) error {
	collection, err := s.app.FindCollectionByNameOrId(LinksCollection)
	if err != nil {
		return fmt.Errorf("find %s collection: %w", LinksCollection, err)
	}

	record := core.NewRecord(collection)
	record.Set("creatorWallet", link.CreatorWallet)
	record.Set("contentType", string(link.ContentType))
	record.Set("contentPath", link.ContentPath)
	record.Set("price", link.Price.String())
	record.Set("network", link.Network)
	record.Set("assetId", link.AssetID)
	record.Set("decimals", link.Decimals)
	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("save link: %w", err)
	}

	link.ID = record.Id
	link.CreatedAt = record.GetDateTime("created").Time()
	return nil
}

func (s *Store) GetLink(ctx context.Context, id string) (*store.Link, error) {
	record, err := s.app.FindRecordById(LinksCollection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, x402.ErrLinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find link %s: %w", id, err)
	}
	return linkFromRecord(record)
}

func (s *Store) ListLinks(ctx context.Context, creatorWallet string) ([]store.Link, error) {
	records, err := s.app.FindRecordsByFilter(
		LinksCollection,
		"creatorWallet = {:wallet}",
		"-created",
		0, 0,
		dbx.Params{"wallet": creatorWallet},
	)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}

	links := make([]store.Link, 0, len(records))
	for _, r := range records {
		l, err := linkFromRecord(r)
		if err != nil {
			return nil, err
		}
		links = append(links, *l)
	}
	return links, nil
}

// RecordPayment stores rec unless a payment with the same transaction id is
// already recorded.
func (s *Store) RecordPayment(ctx context.Context, rec *store.PaymentRecord) error {
	if rec.TxnID != "" {
		existing, err := s.app.FindFirstRecordByData(PaymentsCollection, "txnId", rec.TxnID)
		if err == nil {
			rec.ID = existing.Id
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("look up payment %s: %w", rec.TxnID, err)
		}
	}

	collection, err := s.app.FindCollectionByNameOrId(PaymentsCollection)
	if err != nil {
		return fmt.Errorf("find %s collection: %w", PaymentsCollection, err)
	}

	record := core.NewRecord(collection)
	record.Set("linkId", rec.LinkID)
	record.Set("payerAddress", rec.PayerAddress)
	record.Set("amount", rec.Amount.String())
	record.Set("txnId", rec.TxnID)
	record.Set("txnGroupId", rec.TxnGroupID)
	record.Set("network", rec.Network)
	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("save payment: %w", err)
	}

	rec.ID = record.Id
	rec.Timestamp = record.GetDateTime("created").Time()
	return nil
}

func (s *Store) ListPayments(ctx context.Context, linkID string) ([]store.PaymentRecord, error) {
	records, err := s.app.FindRecordsByFilter(
		PaymentsCollection,
		"linkId = {:link}",
		"-created",
		0, 0,
		dbx.Params{"link": linkID},
	)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	out := make([]store.PaymentRecord, 0, len(records))
	for _, r := range records {
		amount, err := decimal.NewFromString(r.GetString("amount"))
		if err != nil {
			return nil, fmt.Errorf("payment %s amount: %w", r.Id, err)
		}
		out = append(out, store.PaymentRecord{
			ID:           r.Id,
			LinkID:       r.GetString("linkId"),
			PayerAddress: r.GetString("payerAddress"),
			Amount:       amount,
			TxnID:        r.GetString("txnId"),
			TxnGroupID:   r.GetString("txnGroupId"),
			Network:      r.GetString("network"),
			Timestamp:    r.GetDateTime("created").Time(),
		})
	}
	return out, nil
}

func linkFromRecord(r *core.Record) (*store.Link, error) {
	price, err := decimal.NewFromString(r.GetString("price"))
	if err != nil {
		return nil, fmt.Errorf("link %s price: %w", r.Id, err)
	}
	return &store.Link{
		ID:            r.Id,
		CreatorWallet: r.GetString("creatorWallet"),
		ContentType:   store.ContentType(r.GetString("contentType")),
		ContentPath:   r.GetString("contentPath"),
		Price:         price,
		Network:       r.GetString("network"),
		AssetID:       uint64(r.GetInt("assetId")),
		Decimals:      int32(r.GetInt("decimals")),
		CreatedAt:     r.GetDateTime("created").Time(),
	}, nil
}
