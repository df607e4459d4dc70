package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/sticker-storefront/internal/domain/album"
	"github.com/xenking/sticker-storefront/internal/domain/cart"
	"github.com/xenking/sticker-storefront/internal/domain/coupon"
)

// Money leaves the API as JSON numbers.

type lineView struct {
	Key       string            `json:"key"`
	ID        string            `json:"id"`
	AlbumID   string            `json:"albumId"`
	Number    string            `json:"number"`
	Name      string            `json:"name"`
	Type      album.StickerType `json:"type"`
	UnitPrice float64           `json:"price"`
	Quantity  int               `json:"quantity"`
	Total     float64           `json:"total"`
}

type itemView struct {
	Album    album.Album `json:"album"`
	Stickers []lineView  `json:"stickers"`
	Total    float64     `json:"total"`
}

type couponView struct {
	Code             string     `json:"code"`
	Type             string     `json:"type"`
	Value            float64    `json:"value"`
	MinPurchaseValue float64    `json:"minPurchaseValue"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
}

type totalsView struct {
	Subtotal         float64 `json:"subtotal"`
	Discount         float64 `json:"discount"`
	ShippingDiscount float64 `json:"shippingDiscount"`
	Shipping         float64 `json:"shipping"`
	FinalTotal       float64 `json:"finalTotal"`
	DiscountType     string  `json:"discountType,omitempty"`
}

type cartView struct {
	Items  []itemView  `json:"items"`
	Count  int         `json:"count"`
	Coupon *couponView `json:"coupon"`
	Totals totalsView  `json:"totals"`
}

func newCartView(s *cart.Store, shipping decimal.Decimal) cartView {
	c := s.Cart()
	v := cartView{Items: make([]itemView, 0, len(c.Items))}
	for _, it := range c.Items {
		iv := itemView{
			Album:    it.Album,
			Stickers: make([]lineView, len(it.Lines)),
			Total:    it.Total().InexactFloat64(),
		}
		for i, l := range it.Lines {
			iv.Stickers[i] = lineView{
				Key:       l.Key(),
				ID:        l.ID,
				AlbumID:   l.AlbumID,
				Number:    l.Number,
				Name:      l.Name,
				Type:      l.Type,
				UnitPrice: l.UnitPrice.InexactFloat64(),
				Quantity:  l.Quantity,
				Total:     l.Total().InexactFloat64(),
			}
			v.Count += l.Quantity
		}
		v.Items = append(v.Items, iv)
	}

	if applied := s.AppliedCoupon(); applied != nil {
		v.Coupon = newCouponView(applied)
	}
	v.Totals = newTotalsView(s.Totals(shipping))
	return v
}

func newCouponView(c *coupon.Coupon) *couponView {
	v := &couponView{
		Code:             c.Code,
		Type:             c.Type.String(),
		Value:            c.Value.InexactFloat64(),
		MinPurchaseValue: c.MinPurchaseValue.InexactFloat64(),
	}
	if !c.ExpiresAt.IsZero() {
		exp := c.ExpiresAt
		v.ExpiresAt = &exp
	}
	return v
}

func newTotalsView(t coupon.Totals) totalsView {
	return totalsView{
		Subtotal:         t.Subtotal.InexactFloat64(),
		Discount:         t.Discount.InexactFloat64(),
		ShippingDiscount: t.ShippingDiscount.InexactFloat64(),
		Shipping:         t.Shipping.InexactFloat64(),
		FinalTotal:       t.FinalTotal.InexactFloat64(),
		DiscountType:     t.DiscountType,
	}
}
