// Package memory is an in-process LinkStore and PaymentRecorder.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/algox402/x402-go"
	"github.com/algox402/x402-go/store"
)

// Store keeps links and payments in maps guarded by a mutex.
type Store struct {
	mu       sync.RWMutex
	links    map[string]store.Link
	payments map[string][]store.PaymentRecord
	seen     map[string]bool
}

var (
	_ store.LinkStore       = (*Store)(nil)
	_ store.PaymentRecorder = (*Store)(nil)
)

// New creates an empty Store.
func New() *Store {
	return &Store{
		links:    make(map[string]store.Link),
		payments: make(map[string][]store.PaymentRecord),
		seen:     make(map[string]bool),
	}
}

func (s *Store) CreateLink(ctx context.Context, link *store.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	s.links[link.ID] = *link
	return nil
}

func (s *Store) GetLink(ctx context.Context, id string) (*store.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	link, ok := s.links[id]
	if !ok {
		return nil, x402.ErrLinkNotFound
	}
	return &link, nil
}

func (s *Store) ListLinks(ctx context.Context, creatorWallet string) ([]store.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Link
	for _, l := range s.links {
		if l.CreatorWallet == creatorWallet {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// RecordPayment stores rec once per transaction id; repeats are ignored.
func (s *Store) RecordPayment(ctx context.Context, rec *store.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.TxnID != "" && s.seen[rec.TxnID] {
		return nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	s.payments[rec.LinkID] = append(s.payments[rec.LinkID], *rec)
	if rec.TxnID != "" {
		s.seen[rec.TxnID] = true
	}
	return nil
}

func (s *Store) ListPayments(ctx context.Context, linkID string) ([]store.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.PaymentRecord, len(s.payments[linkID]))
	copy(out, s.payments[linkID])
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}
