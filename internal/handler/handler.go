// Package handler implements the storefront HTTP API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/sticker-storefront/internal/domain/album"
	"github.com/xenking/sticker-storefront/internal/domain/cart"
	"github.com/xenking/sticker-storefront/internal/domain/coupon"
	"github.com/xenking/sticker-storefront/internal/domain/order"
	"github.com/xenking/sticker-storefront/internal/domain/payment"
)

// CouponValidator checks a code against the backend.
type CouponValidator interface {
	Validate(ctx context.Context, code string) (*coupon.Coupon, error)
}

// Checkout drives PIX payments for a session.
type Checkout interface {
	StartPix(ctx context.Context, sess order.Session, req order.CheckoutRequest) (*order.Checkout, error)
	CheckStatus(ctx context.Context, sess order.Session, pixID string) (payment.Status, error)
	ResetPix(ctx context.Context, sess order.Session) error
}

// ChargeWatcher follows a created charge in the background.
type ChargeWatcher interface {
	Watch(sessionID, pixID string)
}

// Config holds non-dependency settings for the Handler.
type Config struct {
	Shipping decimal.Decimal
	CartTTL  time.Duration
	Session  SessionConfig
}

// SessionConfig controls the session cookie.
type SessionConfig struct {
	CookieName string
	MaxAge     time.Duration
	Secure     bool
}

// Handler serves catalog, cart, coupon and checkout endpoints.
type Handler struct {
	catalog  album.Catalog
	coupons  CouponValidator
	checkout Checkout
	sessions order.SessionStore
	watcher  ChargeWatcher
	cfg      Config
	now      func() time.Time
	metrics  metrics
}

type metrics struct {
	cartMutations metric.Int64Counter
	coupons       metric.Int64Counter
	charges       metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) (metrics, error) {
	meter := mp.Meter("github.com/xenking/sticker-storefront/internal/handler")

	var (
		m   metrics
		err error
	)
	if m.cartMutations, err = meter.Int64Counter("storefront.cart.mutations",
		metric.WithDescription("Cart mutations by operation"),
	); err != nil {
		return m, errors.Wrap(err, "cart mutations counter")
	}
	if m.coupons, err = meter.Int64Counter("storefront.coupon.validations",
		metric.WithDescription("Coupon validations by result"),
	); err != nil {
		return m, errors.Wrap(err, "coupon counter")
	}
	if m.charges, err = meter.Int64Counter("storefront.pix.charges",
		metric.WithDescription("PIX charges started, by cache reuse"),
	); err != nil {
		return m, errors.Wrap(err, "charges counter")
	}
	return m, nil
}

// New creates a Handler. watcher may be nil.
func New(
	cfg Config,
	catalog album.Catalog,
	coupons CouponValidator,
	checkout Checkout,
	sessions order.SessionStore,
	watcher ChargeWatcher,
	mp metric.MeterProvider,
) (*Handler, error) {
	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = "sid"
	}
	if cfg.CartTTL <= 0 {
		cfg.CartTTL = cart.DefaultTTL
	}
	m, err := newMetrics(mp)
	if err != nil {
		return nil, err
	}
	return &Handler{
		catalog:  catalog,
		coupons:  coupons,
		checkout: checkout,
		sessions: sessions,
		watcher:  watcher,
		cfg:      cfg,
		now:      time.Now,
		metrics:  m,
	}, nil
}

// Register adds every API route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/schools", h.listSchools)
	mux.HandleFunc("GET /api/schools/{id}/albums", h.listSchoolAlbums)
	mux.HandleFunc("GET /api/albums", h.listAlbums)
	mux.HandleFunc("GET /api/albums/{id}", h.getAlbum)

	mux.Handle("GET /api/cart", h.withSession(h.getCart))
	mux.Handle("DELETE /api/cart", h.withSession(h.cleanCart))
	mux.Handle("POST /api/cart/albums/{albumId}/stickers", h.withSession(h.addStickers))
	mux.Handle("DELETE /api/cart/albums/{albumId}", h.withSession(h.removeAlbum))
	mux.Handle("POST /api/cart/albums/{albumId}/lines/{lineKey}/increase", h.withSession(h.increaseLine))
	mux.Handle("POST /api/cart/albums/{albumId}/lines/{lineKey}/decrease", h.withSession(h.decreaseLine))
	mux.Handle("DELETE /api/cart/albums/{albumId}/lines/{lineKey}", h.withSession(h.removeLine))
	mux.Handle("POST /api/cart/coupon", h.withSession(h.applyCoupon))
	mux.Handle("DELETE /api/cart/coupon", h.withSession(h.removeCoupon))

	mux.Handle("POST /api/checkout/pix", h.withSession(h.startPix))
	mux.Handle("GET /api/checkout/pix/{id}/status", h.withSession(h.pixStatus))
	mux.Handle("DELETE /api/checkout/pix", h.withSession(h.resetPix))
}
