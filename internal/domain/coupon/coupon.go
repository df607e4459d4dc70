package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported coupon discount strategies. The numeric
// values match the backend wire format.
type Type int

const (
	// TypePercent discounts a percentage of the subtotal.
	TypePercent Type = 0
	// TypeFixed discounts a fixed amount capped at the subtotal.
	TypeFixed Type = 1
	// TypeFreeShipping waives the shipping cost.
	TypeFreeShipping Type = 2
)

func (t Type) String() string {
	switch t {
	case TypePercent:
		return "percent"
	case TypeFixed:
		return "fixed"
	case TypeFreeShipping:
		return "free_shipping"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

var (
	// ErrInactive is returned when a coupon has been disabled.
	ErrInactive = errors.New("coupon not active")
	// ErrExhausted is returned when a coupon has no uses left.
	ErrExhausted = errors.New("coupon exhausted")
	// ErrExpired is returned when a coupon is past its expiry time.
	ErrExpired = errors.New("coupon expired")
	// ErrUnavailable wraps transport failures while talking to the
	// validation endpoint. It is never a business-rule rejection.
	ErrUnavailable = errors.New("coupon validation unavailable")
)

// NotFoundError is returned when the validation endpoint knows no coupon
// for a code. Message is the endpoint-supplied explanation.
type NotFoundError struct {
	Code    string
	Message string
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("coupon %s not found", e.Code)
}

// IsRejection reports whether err is a user-correctable business-rule
// rejection, as opposed to a transport or programming failure.
func IsRejection(err error) bool {
	if err == nil {
		return false
	}
	var nf *NotFoundError
	return errors.As(err, &nf) ||
		errors.Is(err, ErrInactive) ||
		errors.Is(err, ErrExhausted) ||
		errors.Is(err, ErrExpired)
}

// Coupon is a discount grant identified by a code.
type Coupon struct {
	ID               string          `json:"id"`
	Code             string          `json:"code"`
	Type             Type            `json:"type"`
	Value            decimal.Decimal `json:"value"`
	UsageLimit       int             `json:"usageLimit"`
	UsedCount        int             `json:"usedCount"`
	ExpiresAt        time.Time       `json:"expiresAt"`
	MinPurchaseValue decimal.Decimal `json:"minPurchaseValue"`
	IsActive         bool            `json:"isActive"`
}

// Check applies the local eligibility rules in order: active, usage left,
// not expired. A zero ExpiresAt never expires.
func (c *Coupon) Check(now time.Time) error {
	if !c.IsActive {
		return ErrInactive
	}
	if c.UsedCount >= c.UsageLimit {
		return ErrExhausted
	}
	if c.Expired(now) {
		return ErrExpired
	}
	return nil
}

// Expired reports whether the coupon's expiry is before now.
func (c *Coupon) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now)
}

// NormalizeCode trims and uppercases a user-entered code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// LookupResult is the validation endpoint response. Coupon is nil when the
// code is unknown.
type LookupResult struct {
	Coupon  *Coupon `json:"coupon"`
	Message string  `json:"message"`
}

// Client looks coupons up on the remote backend.
type Client interface {
	Lookup(ctx context.Context, code string) (*LookupResult, error)
}

// Filter is a probabilistic set of known codes. TestString must never
// return false for a code that exists.
type Filter interface {
	TestString(code string) bool
}
