package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-faster/errors"

	"github.com/xenking/sticker-storefront/internal/domain/order"
	"github.com/xenking/sticker-storefront/internal/domain/payment"
)

var (
	_ order.Repository = (*Client)(nil)
	_ payment.Gateway  = (*Client)(nil)
)

// summaryWire mirrors order.Summary with the numeric total the backend
// expects.
type summaryWire struct {
	IntegrationID string             `json:"integrationId,omitempty"`
	Albums        []order.AlbumOrder `json:"albums"`
	Customer      order.Customer     `json:"customer"`
	PriceTotal    float64            `json:"priceTotal"`
}

type createdWire struct {
	ID string `json:"id"`
}

// Create posts an order summary and returns the backend order id.
func (c *Client) Create(ctx context.Context, s order.Summary) (string, error) {
	var out createdWire
	err := c.do(ctx, http.MethodPost, "/order", nil, summaryWire{
		IntegrationID: s.IntegrationID,
		Albums:        s.Albums,
		Customer:      s.Customer,
		PriceTotal:    s.PriceTotal.InexactFloat64(),
	}, &out)
	if err != nil {
		return "", errors.Wrap(err, "create order")
	}
	return out.ID, nil
}

type pixWire struct {
	Data  *payment.QRCode `json:"data"`
	Error *string         `json:"error"`
}

// CreatePix creates a PIX charge. Refusals reported in the response
// envelope are returned as *payment.ProviderError.
func (c *Client) CreatePix(ctx context.Context, req payment.PixRequest) (*payment.QRCode, error) {
	var out pixWire
	if err := c.do(ctx, http.MethodPost, "/pix/order", nil, req, &out); err != nil {
		return nil, errors.Wrap(err, "create pix")
	}
	if out.Error != nil && *out.Error != "" {
		return nil, &payment.ProviderError{Message: *out.Error}
	}
	if out.Data == nil {
		return nil, &payment.ProviderError{Message: "empty response"}
	}
	return out.Data, nil
}

type statusWire struct {
	Status payment.Status `json:"status"`
}

// Status returns the current status of a charge.
func (c *Client) Status(ctx context.Context, id string) (payment.Status, error) {
	var out statusWire
	q := url.Values{"integrationId": {id}}
	if err := c.do(ctx, http.MethodGet, "/pix/order/status", q, nil, &out); err != nil {
		return "", errors.Wrap(err, "pix status")
	}
	switch out.Status {
	case payment.StatusPending, payment.StatusPaid, payment.StatusCanceled:
		return out.Status, nil
	default:
		return "", errors.Errorf("unknown pix status %q", out.Status)
	}
}
