package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/sticker-storefront/internal/domain/coupon"
)

var _ coupon.Client = (*Client)(nil)

type couponWire struct {
	ID               string          `json:"id"`
	Code             string          `json:"code"`
	Type             coupon.Type     `json:"type"`
	Value            decimal.Decimal `json:"value"`
	UsageLimit       int             `json:"usageLimit"`
	UsedCount        int             `json:"usedCount"`
	ExpiresAt        string          `json:"expiresAt"`
	MinPurchaseValue decimal.Decimal `json:"minPurchaseValue"`
	IsActive         bool            `json:"isActive"`
}

type lookupWire struct {
	Coupon  *couponWire `json:"coupon"`
	Message string      `json:"message"`
}

// Lookup asks the backend about a coupon code. Unknown codes yield a result
// with a nil Coupon, whether the backend answers 200 or 404.
func (c *Client) Lookup(ctx context.Context, code string) (*coupon.LookupResult, error) {
	var w lookupWire
	err := c.do(ctx, http.MethodGet, "/coupon/validate/"+url.PathEscape(code), nil, nil, &w)
	if se, ok := isStatus(err, http.StatusNotFound); ok {
		// The 404 body carries the same shape; an unreadable body still
		// means the code is unknown.
		_ = json.Unmarshal(se.Body, &w)
		w.Coupon = nil
		err = nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "validate coupon")
	}

	res := &coupon.LookupResult{Message: w.Message}
	if w.Coupon != nil {
		cp, err := w.Coupon.decode()
		if err != nil {
			return nil, errors.Wrap(err, "decode coupon")
		}
		res.Coupon = cp
	}
	return res, nil
}

func (w couponWire) decode() (*coupon.Coupon, error) {
	c := &coupon.Coupon{
		ID:               w.ID,
		Code:             w.Code,
		Type:             w.Type,
		Value:            w.Value,
		UsageLimit:       w.UsageLimit,
		UsedCount:        w.UsedCount,
		MinPurchaseValue: w.MinPurchaseValue,
		IsActive:         w.IsActive,
	}
	if w.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, w.ExpiresAt)
		if err != nil {
			return nil, errors.Wrapf(err, "parse expiresAt %q", w.ExpiresAt)
		}
		c.ExpiresAt = t
	}
	return c, nil
}
