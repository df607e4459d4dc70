package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/sticker-storefront/internal/domain/cart"
	"github.com/xenking/sticker-storefront/internal/domain/order"
)

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess order.Session)

// withSession resolves the session cookie, issuing a new id when it is
// missing or malformed, and loads the session's cart.
func (h *Handler) withSession(next sessionHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := h.sessionID(w, r)
		ctx := zctx.With(r.Context(), zap.String("session_id", id))
		r = r.WithContext(ctx)

		sess, err := order.OpenSession(ctx, h.sessions, id, cart.Options{
			TTL:    h.cfg.CartTTL,
			Now:    h.now,
			Logger: zctx.From(ctx),
		})
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next(w, r, sess)
	})
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(h.cfg.Session.CookieName); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String()
		}
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.Session.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(h.cfg.Session.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.Session.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
