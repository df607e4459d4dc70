package handler

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/sticker-storefront/internal/domain/coupon"
	"github.com/xenking/sticker-storefront/internal/domain/order"
)

type applyCouponRequest struct {
	Code string `json:"code"`
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request, sess order.Session) {
	var req applyCouponRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx := r.Context()

	c, err := h.coupons.Validate(ctx, req.Code)
	if err == nil {
		err = sess.Cart.ApplyCoupon(ctx, c)
	}
	h.countCoupon(ctx, err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartView(sess.Cart, h.cfg.Shipping))
}

func (h *Handler) removeCoupon(w http.ResponseWriter, r *http.Request, sess order.Session) {
	if err := sess.Cart.RemoveCoupon(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartView(sess.Cart, h.cfg.Shipping))
}

func (h *Handler) countCoupon(ctx context.Context, err error) {
	result := "applied"
	if err != nil {
		result = "error"
		if coupon.IsRejection(err) {
			result = "rejected"
		}
	}
	h.metrics.coupons.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
