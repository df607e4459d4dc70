// Package memory provides process-local session storage for running the
// storefront without a database.
package memory

import (
	"context"
	"sync"

	"github.com/xenking/sticker-storefront/internal/domain/cart"
	"github.com/xenking/sticker-storefront/internal/domain/order"
)

// KVStore keeps session entries in a map keyed by session and key.
type KVStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewKVStore returns an empty KVStore.
func NewKVStore() *KVStore {
	return &KVStore{data: make(map[string]map[string][]byte)}
}

// Scope returns the storage of a single session.
func (s *KVStore) Scope(sessionID string) cart.Storage {
	return &scoped{store: s, session: sessionID}
}

type scoped struct {
	store   *KVStore
	session string
}

var _ cart.Storage = (*scoped)(nil)

func (s *scoped) Get(_ context.Context, key string) ([]byte, error) {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	v, ok := s.store.data[s.session][key]
	if !ok {
		return nil, cart.ErrNoEntry
	}
	return append([]byte(nil), v...), nil
}

func (s *scoped) Set(_ context.Context, key string, value []byte) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	entries, ok := s.store.data[s.session]
	if !ok {
		entries = make(map[string][]byte)
		s.store.data[s.session] = entries
	}
	entries[key] = append([]byte(nil), value...)
	return nil
}

func (s *scoped) Delete(_ context.Context, key string) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	entries := s.store.data[s.session]
	delete(entries, key)
	if len(entries) == 0 {
		delete(s.store.data, s.session)
	}
	return nil
}

// ReceiptLog keeps receipts in memory.
type ReceiptLog struct {
	mu       sync.Mutex
	receipts []order.Receipt
}

var _ order.ReceiptLog = (*ReceiptLog)(nil)

// Record appends a receipt.
func (l *ReceiptLog) Record(_ context.Context, r order.Receipt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.receipts = append(l.receipts, r)
	return nil
}

// Receipts returns a copy of all recorded receipts.
func (l *ReceiptLog) Receipts() []order.Receipt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]order.Receipt(nil), l.receipts...)
}
