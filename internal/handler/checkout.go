package handler

import (
	"net/http"
	"net/mail"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/sticker-storefront/internal/domain/order"
	"github.com/xenking/sticker-storefront/internal/domain/payment"
)

type pixRequest struct {
	Customer payment.Customer `json:"customer"`
	Address  payment.Address  `json:"address"`
}

func (req pixRequest) validate() error {
	c := req.Customer
	switch {
	case strings.TrimSpace(c.Name) == "":
		return badRequest("customer.name is required")
	case strings.TrimSpace(c.TaxID) == "":
		return badRequest("customer.taxId is required")
	case strings.TrimSpace(c.Email) == "":
		return badRequest("customer.email is required")
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return badRequest("customer.email is invalid")
	}
	return nil
}

func (h *Handler) startPix(w http.ResponseWriter, r *http.Request, sess order.Session) {
	var req pixRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx := r.Context()

	res, err := h.checkout.StartPix(ctx, sess, order.CheckoutRequest{
		Customer: req.Customer,
		Address:  req.Address,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.metrics.charges.Add(ctx, 1, metric.WithAttributes(attribute.Bool("cached", res.Cached)))
	if h.watcher != nil && !res.Cached {
		h.watcher.Watch(sess.ID, res.QRCode.ID)
	}

	code := http.StatusCreated
	if res.Cached {
		code = http.StatusOK
	}
	writeJSON(w, code, res)
}

type pixStatusResponse struct {
	Status      payment.Status `json:"status"`
	CartCleared bool           `json:"cartCleared"`
}

func (h *Handler) pixStatus(w http.ResponseWriter, r *http.Request, sess order.Session) {
	st, err := h.checkout.CheckStatus(r.Context(), sess, r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pixStatusResponse{
		Status:      st,
		CartCleared: st == payment.StatusPaid,
	})
}

func (h *Handler) resetPix(w http.ResponseWriter, r *http.Request, sess order.Session) {
	if err := h.checkout.ResetPix(r.Context(), sess); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
