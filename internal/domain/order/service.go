package order

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/sticker-storefront/internal/domain/cart"
	"github.com/xenking/sticker-storefront/internal/domain/payment"
)

// PixCacheKey is the session storage key of the last generated QR code.
const PixCacheKey = "pixQrCodeCache"

var (
	// ErrEmptyCart is returned when checking out a cart with no items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrUnavailable wraps failures of the payment gateway or order backend.
	ErrUnavailable = errors.New("checkout backend unavailable")
)

// Session is the per-visitor state a checkout operates on.
type Session struct {
	ID    string
	Cart  *cart.Store
	State cart.Storage
}

// CheckoutRequest carries the buyer data collected by the checkout form.
type CheckoutRequest struct {
	Customer payment.Customer
	Address  payment.Address
}

// Checkout is the result of starting a PIX payment.
type Checkout struct {
	OrderID string          `json:"orderId,omitempty"`
	QRCode  *payment.QRCode `json:"pix"`
	Cached  bool            `json:"cached"`
}

type pixCache struct {
	PixData      payment.QRCode `json:"pixData"`
	OrderID      string         `json:"orderId,omitempty"`
	ExpiresAt    time.Time      `json:"expiresAt"`
	FormDataHash string         `json:"formDataHash"`
}

// Config holds non-dependency settings for the Service.
type Config struct {
	Shipping     decimal.Decimal
	ExpiresIn    time.Duration
	PollInterval time.Duration
}

// Service drives checkout: PIX charge creation, order registration and
// payment status tracking.
type Service struct {
	orders   Repository
	payments payment.Gateway
	receipts ReceiptLog
	cfg      Config
	now      func() time.Time
}

// NewService creates a checkout Service with the required dependencies.
func NewService(
	cfg Config,
	orders Repository,
	payments payment.Gateway,
	receipts ReceiptLog,
) *Service {
	if cfg.ExpiresIn <= 0 {
		cfg.ExpiresIn = time.Hour
	}
	return &Service{
		orders:   orders,
		payments: payments,
		receipts: receipts,
		cfg:      cfg,
		now:      time.Now,
	}
}

// StartPix creates a PIX charge for the session cart, or returns the cached
// one when it is still valid for the same buyer and amount. A new charge is
// followed by an order record; the charge is cached only once its order
// exists, so a failed order is retried with a fresh charge.
func (s *Service) StartPix(ctx context.Context, sess Session, req CheckoutRequest) (*Checkout, error) {
	c := sess.Cart.Cart()
	if len(c.Items) == 0 {
		return nil, ErrEmptyCart
	}

	totals := sess.Cart.Totals(s.cfg.Shipping)
	customer := req.Customer
	customer.TaxID = digits(customer.TaxID)
	customer.Cellphone = digits(customer.Cellphone)
	hash := formHash(customer, totals.FinalTotal)

	if cached := s.cachedPix(ctx, sess.State, hash); cached != nil {
		return &Checkout{OrderID: cached.OrderID, QRCode: &cached.PixData, Cached: true}, nil
	}

	now := s.now()
	qr, err := s.payments.CreatePix(ctx, payment.PixRequest{
		Payment:     payment.Amount{Amount: payment.ToCents(totals.FinalTotal)},
		ExpiresIn:   int(s.cfg.ExpiresIn.Seconds()),
		Description: fmt.Sprintf("Pedido de figurinhas - %s", now.UTC().Format(time.RFC3339)),
		Customer:    customer,
		Address:     req.Address,
	})
	if err != nil {
		return nil, fmt.Errorf("create pix: %w", unavailable(err))
	}

	summary := BuildSummary(c, Customer{
		Name:  customer.Name,
		Email: customer.Email,
		Address: Address{
			Street:       req.Address.Street,
			Number:       req.Address.Number,
			Neighborhood: req.Address.Neighborhood,
			PostalCode:   req.Address.ZipCode,
			Complement:   req.Address.Complement,
			City:         req.Address.City,
			State:        req.Address.State,
		},
	}, totals.FinalTotal)
	summary.IntegrationID = qr.ID

	orderID, err := s.orders.Create(ctx, summary)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", unavailable(err))
	}

	if err := s.storePix(ctx, sess.State, pixCache{
		PixData:      *qr,
		OrderID:      orderID,
		ExpiresAt:    qr.ExpiresAt,
		FormDataHash: hash,
	}); err != nil {
		return nil, err
	}

	receipt := Receipt{
		OrderID:   orderID,
		SessionID: sess.ID,
		PixID:     qr.ID,
		Totals:    totals,
		CreatedAt: now,
	}
	if applied := sess.Cart.AppliedCoupon(); applied != nil {
		receipt.CouponCode = applied.Code
	}
	if err := s.receipts.Record(ctx, receipt); err != nil {
		// The order exists upstream; a missing local receipt is not fatal.
		zctx.From(ctx).Error("Record receipt", zap.String("order_id", orderID), zap.Error(err))
	}

	return &Checkout{OrderID: orderID, QRCode: qr}, nil
}

// CheckStatus fetches the status of a charge once and settles the session
// on terminal statuses of its current charge.
func (s *Service) CheckStatus(ctx context.Context, sess Session, pixID string) (payment.Status, error) {
	st, err := s.payments.Status(ctx, pixID)
	if err != nil {
		return "", fmt.Errorf("check status: %w", unavailable(err))
	}
	if err := s.settle(ctx, sess, pixID, st); err != nil {
		return st, err
	}
	return st, nil
}

// Watch polls a charge until it settles or ctx is done, settling the
// session on the terminal status.
func (s *Service) Watch(ctx context.Context, sess Session, pixID string) (payment.Status, error) {
	st, err := payment.Poll(ctx, s.payments, pixID, s.cfg.PollInterval, nil)
	if err != nil {
		return "", err
	}
	return st, s.settle(ctx, sess, pixID, st)
}

// ResetPix forgets the cached QR code so the next StartPix creates a new one.
func (s *Service) ResetPix(ctx context.Context, sess Session) error {
	if err := sess.State.Delete(ctx, PixCacheKey); err != nil {
		return errors.Wrap(err, "clear pix cache")
	}
	return nil
}

// settle cleans up after a terminal status. Charges other than the one
// cached for the session were settled or replaced already and are ignored.
func (s *Service) settle(ctx context.Context, sess Session, pixID string, st payment.Status) error {
	if !st.Terminal() {
		return nil
	}
	current, err := s.currentCharge(ctx, sess.State)
	if err != nil {
		return err
	}
	if current != pixID {
		zctx.From(ctx).Debug("Skipping settlement of stale charge",
			zap.String("pix_id", pixID),
			zap.String("current_pix_id", current),
		)
		return nil
	}
	if st == payment.StatusPaid {
		if err := sess.Cart.CleanCart(ctx); err != nil {
			return errors.Wrap(err, "clean cart")
		}
	}
	return s.ResetPix(ctx, sess)
}

// currentCharge returns the id of the cached charge, or "" when there is none.
func (s *Service) currentCharge(ctx context.Context, state cart.Storage) (string, error) {
	raw, err := state.Get(ctx, PixCacheKey)
	if errors.Is(err, cart.ErrNoEntry) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "read pix cache")
	}
	var entry pixCache
	if err := json.Unmarshal(raw, &entry); err != nil {
		return "", nil
	}
	return entry.PixData.ID, nil
}

func (s *Service) cachedPix(ctx context.Context, state cart.Storage, hash string) *pixCache {
	lg := zctx.From(ctx)

	raw, err := state.Get(ctx, PixCacheKey)
	if err != nil {
		if !errors.Is(err, cart.ErrNoEntry) {
			lg.Warn("Read pix cache", zap.Error(err))
		}
		return nil
	}

	var entry pixCache
	if err := json.Unmarshal(raw, &entry); err != nil {
		lg.Warn("Discarding malformed pix cache", zap.Error(err))
		_ = state.Delete(ctx, PixCacheKey)
		return nil
	}
	if !entry.ExpiresAt.After(s.now()) || entry.FormDataHash != hash {
		_ = state.Delete(ctx, PixCacheKey)
		return nil
	}
	return &entry
}

// storePix records the session's current charge. Entries without an expiry
// are never reused but still mark the charge that settles the session.
func (s *Service) storePix(ctx context.Context, state cart.Storage, entry pixCache) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "marshal pix cache")
	}
	if err := state.Set(ctx, PixCacheKey, raw); err != nil {
		return errors.Wrap(err, "save pix cache")
	}
	return nil
}

func unavailable(err error) error {
	var pe *payment.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func formHash(c payment.Customer, total decimal.Decimal) string {
	return c.TaxID + "-" + c.Email + "-" + total.StringFixed(2)
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
