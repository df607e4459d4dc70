package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/sticker-storefront/internal/domain/album"
	"github.com/xenking/sticker-storefront/internal/domain/coupon"
	"github.com/xenking/sticker-storefront/internal/domain/order"
	"github.com/xenking/sticker-storefront/internal/domain/payment"
)

const maxBodyBytes = 1 << 20

// errUpstream marks failures of the remote backend.
var errUpstream = errors.New("upstream unavailable")

// badRequestError is a malformed or incomplete request.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string {
	return e.msg
}

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func upstream(err error) error {
	return fmt.Errorf("%w: %w", errUpstream, err)
}

// statusOf maps domain errors to a status code and a client message.
func statusOf(err error) (int, string) {
	var (
		bad         *badRequestError
		unknownType *album.UnknownTypeError
		provider    *payment.ProviderError
	)
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest, bad.msg
	case errors.Is(err, album.ErrNotFound):
		return http.StatusNotFound, "album not found"
	case coupon.IsRejection(err):
		return http.StatusUnprocessableEntity, rejectionMessage(err)
	case errors.Is(err, album.ErrTypeNotOffered), errors.As(err, &unknownType):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, order.ErrEmptyCart):
		return http.StatusUnprocessableEntity, "cart is empty"
	case errors.As(err, &provider):
		return http.StatusUnprocessableEntity, provider.Message
	case errors.Is(err, coupon.ErrUnavailable), errors.Is(err, order.ErrUnavailable), errors.Is(err, errUpstream):
		return http.StatusBadGateway, "backend unavailable, try again"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func rejectionMessage(err error) string {
	var nf *coupon.NotFoundError
	switch {
	case errors.As(err, &nf):
		return nf.Error()
	case errors.Is(err, coupon.ErrInactive):
		return "coupon is not active"
	case errors.Is(err, coupon.ErrExhausted):
		return "coupon usage limit reached"
	case errors.Is(err, coupon.ErrExpired):
		return "coupon has expired"
	default:
		return err.Error()
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := statusOf(err)
	lg := zctx.From(r.Context())
	if code >= http.StatusInternalServerError {
		lg.Error("Request failed", zap.Int("status", code), zap.Error(err))
	} else {
		lg.Debug("Request rejected", zap.Int("status", code), zap.Error(err))
	}
	writeJSON(w, code, errorResponse{Code: code, Message: msg})
}
