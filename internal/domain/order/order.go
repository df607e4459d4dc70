package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/sticker-storefront/internal/domain/album"
	"github.com/xenking/sticker-storefront/internal/domain/cart"
	"github.com/xenking/sticker-storefront/internal/domain/coupon"
)

// Summary is the order record posted to the backend after checkout.
type Summary struct {
	IntegrationID string          `json:"integrationId,omitempty"`
	Albums        []AlbumOrder    `json:"albums"`
	Customer      Customer        `json:"customer"`
	PriceTotal    decimal.Decimal `json:"priceTotal"`
}

// AlbumOrder lists the stickers ordered for one album.
type AlbumOrder struct {
	AlbumID  string         `json:"albumId"`
	SchoolID string         `json:"schoolId"`
	Stickers []StickerOrder `json:"stickers"`
}

// StickerOrder is one grouped sticker line.
type StickerOrder struct {
	Type     album.StickerType `json:"type"`
	Number   string            `json:"number"`
	Quantity int               `json:"quantity"`
}

// Customer is the buyer as recorded on the order.
type Customer struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Address Address `json:"address"`
}

// Address is the delivery address as recorded on the order.
type Address struct {
	Street       string `json:"street"`
	Number       string `json:"number"`
	Neighborhood string `json:"neighborhood"`
	PostalCode   string `json:"postalCode"`
	Complement   string `json:"complement"`
	City         string `json:"city"`
	State        string `json:"state"`
}

// BuildSummary converts cart contents into an order summary.
func BuildSummary(c cart.Cart, customer Customer, total decimal.Decimal) Summary {
	albums := make([]AlbumOrder, 0, len(c.Items))
	for _, it := range c.Items {
		stickers := make([]StickerOrder, len(it.Lines))
		for i, l := range it.Lines {
			stickers[i] = StickerOrder{Type: l.Type, Number: l.Number, Quantity: l.Quantity}
		}
		albums = append(albums, AlbumOrder{
			AlbumID:  it.Album.ID,
			SchoolID: it.Album.SchoolID,
			Stickers: stickers,
		})
	}
	return Summary{Albums: albums, Customer: customer, PriceTotal: total}
}

// Receipt is the storefront's own record of a placed order.
type Receipt struct {
	OrderID    string
	SessionID  string
	PixID      string
	Totals     coupon.Totals
	CouponCode string
	CreatedAt  time.Time
}

// Repository creates order records on the backend.
type Repository interface {
	Create(ctx context.Context, s Summary) (string, error)
}

// ReceiptLog keeps placed-order receipts.
type ReceiptLog interface {
	Record(ctx context.Context, r Receipt) error
}
