package cart

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/sticker-storefront/internal/domain/album"
	"github.com/xenking/sticker-storefront/internal/domain/coupon"
)

const (
	// ItemsKey is the storage key of the persisted cart snapshot.
	ItemsKey = "cartItems"
	// CouponKey is the storage key of the applied coupon.
	CouponKey = "appliedCoupon"
	// DefaultTTL is how long a persisted cart survives without mutation.
	DefaultTTL = 73 * time.Hour
)

// ErrNoEntry is returned by Storage when a key holds no value.
var ErrNoEntry = errors.New("no entry")

// Storage is the durable key-value store backing a session's cart.
// Implementations return ErrNoEntry from Get for missing keys.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type snapshot struct {
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Options tune Load. Zero values select defaults.
type Options struct {
	TTL    time.Duration
	Now    func() time.Time
	Logger *zap.Logger
}

// Store owns a session's cart and applied coupon and writes every change
// through to Storage. Mutations build a new cart value, persist it and only
// then swap it in.
type Store struct {
	storage Storage
	lg      *zap.Logger
	now     func() time.Time

	mu     sync.Mutex
	cart   Cart
	coupon *coupon.Coupon
}

// Load restores the cart and applied coupon from storage. Snapshots older
// than the TTL are discarded and cleared. Malformed entries are logged,
// cleared and replaced by empty state.
func Load(ctx context.Context, storage Storage, opts Options) (*Store, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Store{
		storage: storage,
		lg:      opts.Logger,
		now:     opts.Now,
	}

	items, err := s.loadItems(ctx, opts.TTL)
	if err != nil {
		return nil, err
	}
	s.cart = Cart{Items: items}

	c, err := s.loadCoupon(ctx)
	if err != nil {
		return nil, err
	}
	s.coupon = c

	return s, nil
}

func (s *Store) loadItems(ctx context.Context, ttl time.Duration) ([]Item, error) {
	raw, err := s.storage.Get(ctx, ItemsKey)
	if errors.Is(err, ErrNoEntry) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		s.lg.Warn("Discarding malformed cart", zap.Error(err))
		return nil, s.discard(ctx, ItemsKey)
	}

	if age := s.now().Sub(snap.UpdatedAt); age > ttl {
		s.lg.Info("Discarding expired cart",
			zap.Time("updated_at", snap.UpdatedAt),
			zap.Duration("age", age),
		)
		return nil, s.discard(ctx, ItemsKey)
	}

	return normalize(snap.Items), nil
}

func (s *Store) loadCoupon(ctx context.Context) (*coupon.Coupon, error) {
	raw, err := s.storage.Get(ctx, CouponKey)
	if errors.Is(err, ErrNoEntry) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get applied coupon")
	}

	var c coupon.Coupon
	if err := json.Unmarshal(raw, &c); err != nil {
		s.lg.Warn("Discarding malformed applied coupon", zap.Error(err))
		return nil, s.discard(ctx, CouponKey)
	}

	// Usage counts are stale locally; only activity and expiry are rechecked.
	if !c.IsActive || c.Expired(s.now()) {
		s.lg.Info("Dropping applied coupon", zap.String("code", c.Code))
		return nil, s.discard(ctx, CouponKey)
	}
	return &c, nil
}

func (s *Store) discard(ctx context.Context, key string) error {
	if err := s.storage.Delete(ctx, key); err != nil {
		return errors.Wrapf(err, "clear %s", key)
	}
	return nil
}

// normalize merges lines that share a grouping key and prunes empty items,
// so snapshots written by older clients still satisfy the cart invariants.
func normalize(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		merged := Item{Album: it.Album}
		for _, l := range it.Lines {
			if l.Quantity < 1 {
				continue
			}
			if i := merged.find(l.Key()); i >= 0 {
				merged.Lines[i].Quantity += l.Quantity
				continue
			}
			merged.Lines = append(merged.Lines, l)
		}
		if len(merged.Lines) > 0 {
			out = append(out, merged)
		}
	}
	return out
}

// Cart returns a copy of the current cart.
func (s *Store) Cart() Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Clone()
}

// Subtotal returns the sum of unit price times quantity over every line.
func (s *Store) Subtotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Subtotal()
}

// AppliedCoupon returns a copy of the applied coupon, or nil.
func (s *Store) AppliedCoupon() *coupon.Coupon {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.coupon == nil {
		return nil
	}
	c := *s.coupon
	return &c
}

// Totals computes the order breakdown for the current cart and coupon.
func (s *Store) Totals(shipping decimal.Decimal) coupon.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return coupon.CalculateTotals(s.cart.Subtotal(), shipping, s.coupon)
}

// AddToCart merges picks into the album's lines, creating the album entry
// when needed. Empty picks are a no-op.
func (s *Store) AddToCart(ctx context.Context, a album.Album, picks []album.Sticker) error {
	if len(picks) == 0 {
		return nil
	}
	return s.mutate(ctx, func(c *Cart) bool {
		if i := c.find(a.ID); i >= 0 {
			c.Items[i].Album = a
			c.Items[i].Lines = Aggregate(a, c.Items[i].Lines, picks)
			return true
		}
		c.Items = append(c.Items, Item{Album: a, Lines: Aggregate(a, nil, picks)})
		return true
	})
}

// IncreaseQuantity adds one copy to a line. Unknown albums or lines are
// ignored.
func (s *Store) IncreaseQuantity(ctx context.Context, albumID, lineKey string) error {
	return s.mutate(ctx, func(c *Cart) bool {
		l := c.line(albumID, lineKey)
		if l == nil {
			return false
		}
		l.Quantity++
		return true
	})
}

// DecreaseQuantity removes one copy from a line, never going below one.
func (s *Store) DecreaseQuantity(ctx context.Context, albumID, lineKey string) error {
	return s.mutate(ctx, func(c *Cart) bool {
		l := c.line(albumID, lineKey)
		if l == nil || l.Quantity <= 1 {
			return false
		}
		l.Quantity--
		return true
	})
}

// RemoveSticker deletes a line and drops the album when it was the last one.
func (s *Store) RemoveSticker(ctx context.Context, albumID, lineKey string) error {
	return s.mutate(ctx, func(c *Cart) bool {
		i := c.find(albumID)
		if i < 0 {
			return false
		}
		it := &c.Items[i]
		j := it.find(lineKey)
		if j < 0 {
			return false
		}
		it.Lines = append(it.Lines[:j], it.Lines[j+1:]...)
		if len(it.Lines) == 0 {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
		}
		return true
	})
}

// RemoveFromCart deletes an album and all its lines.
func (s *Store) RemoveFromCart(ctx context.Context, albumID string) error {
	return s.mutate(ctx, func(c *Cart) bool {
		i := c.find(albumID)
		if i < 0 {
			return false
		}
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		return true
	})
}

// CleanCart empties the cart and clears the applied coupon.
func (s *Store) CleanCart(ctx context.Context) error {
	if err := s.mutate(ctx, func(c *Cart) bool {
		c.Items = nil
		return true
	}); err != nil {
		return err
	}
	return s.RemoveCoupon(ctx)
}

// ApplyCoupon replaces the applied coupon after rechecking that it is
// active, has uses left and has not expired.
func (s *Store) ApplyCoupon(ctx context.Context, c *coupon.Coupon) error {
	if err := c.Check(s.now()); err != nil {
		return err
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal coupon")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Set(ctx, CouponKey, raw); err != nil {
		return errors.Wrap(err, "save applied coupon")
	}
	applied := *c
	s.coupon = &applied
	return nil
}

// RemoveCoupon clears the applied coupon.
func (s *Store) RemoveCoupon(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Delete(ctx, CouponKey); err != nil {
		return errors.Wrap(err, "clear applied coupon")
	}
	s.coupon = nil
	return nil
}

// mutate applies fn to a copy of the cart. When fn reports a change the
// copy is persisted with a fresh timestamp and becomes the current cart.
func (s *Store) mutate(ctx context.Context, fn func(c *Cart) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cart.Clone()
	if !fn(&next) {
		return nil
	}

	raw, err := json.Marshal(snapshot{Items: next.Items, UpdatedAt: s.now().UTC()})
	if err != nil {
		return errors.Wrap(err, "marshal cart")
	}
	if err := s.storage.Set(ctx, ItemsKey, raw); err != nil {
		return errors.Wrap(err, "save cart")
	}
	s.cart = next
	return nil
}

func (c *Cart) line(albumID, lineKey string) *Line {
	i := c.find(albumID)
	if i < 0 {
		return nil
	}
	j := c.Items[i].find(lineKey)
	if j < 0 {
		return nil
	}
	return &c.Items[i].Lines[j]
}
