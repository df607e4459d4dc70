package handler

import (
	"context"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/sticker-storefront/internal/domain/album"
	"github.com/xenking/sticker-storefront/internal/domain/order"
)

func (h *Handler) getCart(w http.ResponseWriter, _ *http.Request, sess order.Session) {
	writeJSON(w, http.StatusOK, newCartView(sess.Cart, h.cfg.Shipping))
}

type pickRequest struct {
	Number string            `json:"number"`
	Name   string            `json:"name"`
	Type   album.StickerType `json:"type"`
}

type addStickersRequest struct {
	Stickers []pickRequest `json:"stickers"`
}

func (h *Handler) addStickers(w http.ResponseWriter, r *http.Request, sess order.Session) {
	var req addStickersRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	for i, p := range req.Stickers {
		if strings.TrimSpace(p.Number) == "" {
			h.writeError(w, r, badRequest("stickers[%d]: number is required", i))
			return
		}
	}

	a, err := h.album(r, r.PathValue("albumId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	picks := make([]album.Sticker, 0, len(req.Stickers))
	for _, p := range req.Stickers {
		s, err := a.NewSticker(strings.TrimSpace(p.Number), p.Name, p.Type)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		picks = append(picks, s)
	}

	h.mutate(w, r, sess, "add", func(ctx context.Context) error {
		return sess.Cart.AddToCart(ctx, *a, picks)
	})
}

func (h *Handler) increaseLine(w http.ResponseWriter, r *http.Request, sess order.Session) {
	h.mutate(w, r, sess, "increase", func(ctx context.Context) error {
		return sess.Cart.IncreaseQuantity(ctx, r.PathValue("albumId"), r.PathValue("lineKey"))
	})
}

func (h *Handler) decreaseLine(w http.ResponseWriter, r *http.Request, sess order.Session) {
	h.mutate(w, r, sess, "decrease", func(ctx context.Context) error {
		return sess.Cart.DecreaseQuantity(ctx, r.PathValue("albumId"), r.PathValue("lineKey"))
	})
}

func (h *Handler) removeLine(w http.ResponseWriter, r *http.Request, sess order.Session) {
	h.mutate(w, r, sess, "remove_sticker", func(ctx context.Context) error {
		return sess.Cart.RemoveSticker(ctx, r.PathValue("albumId"), r.PathValue("lineKey"))
	})
}

func (h *Handler) removeAlbum(w http.ResponseWriter, r *http.Request, sess order.Session) {
	h.mutate(w, r, sess, "remove_album", func(ctx context.Context) error {
		return sess.Cart.RemoveFromCart(ctx, r.PathValue("albumId"))
	})
}

func (h *Handler) cleanCart(w http.ResponseWriter, r *http.Request, sess order.Session) {
	h.mutate(w, r, sess, "clean", sess.Cart.CleanCart)
}

// mutate runs op and answers with the resulting cart.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, sess order.Session, op string, fn func(ctx context.Context) error) {
	ctx := r.Context()
	if err := fn(ctx); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.metrics.cartMutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	writeJSON(w, http.StatusOK, newCartView(sess.Cart, h.cfg.Shipping))
}
