package order

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/sticker-storefront/internal/domain/album"
	"github.com/xenking/sticker-storefront/internal/domain/cart"
	"github.com/xenking/sticker-storefront/internal/domain/payment"
)

type syncState struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (s *syncState) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, cart.ErrNoEntry
	}
	return v, nil
}

func (s *syncState) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *syncState) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

type sessionStore map[string]*syncState

func (s sessionStore) Scope(id string) cart.Storage {
	return s[id]
}

type countingGateway struct {
	mu     sync.Mutex
	status payment.Status
	calls  int
}

func (g *countingGateway) CreatePix(context.Context, payment.PixRequest) (*payment.QRCode, error) {
	return nil, nil
}

func (g *countingGateway) Status(context.Context, string) (payment.Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.status, nil
}

func seededStore(t *testing.T) sessionStore {
	t.Helper()
	store := sessionStore{"s1": {data: map[string][]byte{}}}
	opts := cart.Options{Now: func() time.Time { return fixedNow }}

	sess, err := OpenSession(context.Background(), store, "s1", opts)
	require.NoError(t, err)
	a := album.Album{ID: "10", HasCommon: true}
	s, err := a.NewSticker("1", "Ana", album.StickerCommon)
	require.NoError(t, err)
	require.NoError(t, sess.Cart.AddToCart(context.Background(), a, []album.Sticker{s}))

	raw, err := json.Marshal(pixCache{PixData: payment.QRCode{ID: "pix_1", ExpiresAt: fixedNow.Add(time.Hour)}, OrderID: "ord_1"})
	require.NoError(t, err)
	require.NoError(t, sess.State.Set(context.Background(), PixCacheKey, raw))
	return store
}

func TestOpenSession_LoadsPersistedCart(t *testing.T) {
	store := seededStore(t)

	sess, err := OpenSession(context.Background(), store, "s1", cart.Options{Now: func() time.Time { return fixedNow }})

	require.NoError(t, err)
	assert.Equal(t, "s1", sess.ID)
	assert.Len(t, sess.Cart.Cart().Items, 1)
}

func TestWatcher_SettlesPaidSession(t *testing.T) {
	store := seededStore(t)
	gw := &countingGateway{status: payment.StatusPaid}
	svc := NewService(Config{PollInterval: time.Millisecond}, &mockOrderRepo{}, gw, &mockReceipts{})
	opts := cart.Options{Now: func() time.Time { return fixedNow }}

	w := NewWatcher(context.Background(), svc, store, opts, time.Second)
	w.Watch("s1", "pix_1")
	w.Wait()

	sess, err := OpenSession(context.Background(), store, "s1", opts)
	require.NoError(t, err)
	assert.Empty(t, sess.Cart.Cart().Items)
	assert.Empty(t, w.active)
}

func TestWatcher_IgnoresReplacedCharge(t *testing.T) {
	store := seededStore(t)
	gw := &countingGateway{status: payment.StatusPaid}
	svc := NewService(Config{PollInterval: time.Millisecond}, &mockOrderRepo{}, gw, &mockReceipts{})
	opts := cart.Options{Now: func() time.Time { return fixedNow }}

	w := NewWatcher(context.Background(), svc, store, opts, time.Second)
	w.Watch("s1", "pix_old")
	w.Wait()

	sess, err := OpenSession(context.Background(), store, "s1", opts)
	require.NoError(t, err)
	assert.Len(t, sess.Cart.Cart().Items, 1)
	assert.Contains(t, store["s1"].data, PixCacheKey)
}

func TestWatcher_StopsOnTimeout(t *testing.T) {
	store := seededStore(t)
	gw := &countingGateway{status: payment.StatusPending}
	svc := NewService(Config{PollInterval: time.Millisecond}, &mockOrderRepo{}, gw, &mockReceipts{})
	opts := cart.Options{Now: func() time.Time { return fixedNow }}

	w := NewWatcher(context.Background(), svc, store, opts, 20*time.Millisecond)
	w.Watch("s1", "pix_1")
	w.Wait()

	sess, err := OpenSession(context.Background(), store, "s1", opts)
	require.NoError(t, err)
	assert.Len(t, sess.Cart.Cart().Items, 1)
}

func TestWatcher_IgnoresDuplicateWatch(t *testing.T) {
	store := seededStore(t)
	gw := &countingGateway{status: payment.StatusPending}
	svc := NewService(Config{PollInterval: time.Hour}, &mockOrderRepo{}, gw, &mockReceipts{})
	ctx, cancel := context.WithCancel(context.Background())

	w := NewWatcher(ctx, svc, store, cart.Options{Now: func() time.Time { return fixedNow }}, time.Minute)
	w.Watch("s1", "pix_1")
	w.Watch("s1", "pix_1")
	require.Eventually(t, func() bool {
		gw.mu.Lock()
		defer gw.mu.Unlock()
		return gw.calls >= 1
	}, time.Second, time.Millisecond)
	cancel()
	w.Wait()

	assert.Equal(t, 1, gw.calls)
}
