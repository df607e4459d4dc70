package backend

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/sticker-storefront/internal/domain/album"
	"github.com/xenking/sticker-storefront/internal/domain/coupon"
	"github.com/xenking/sticker-storefront/internal/domain/order"
	"github.com/xenking/sticker-storefront/internal/domain/payment"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// newTestClient serves routes from mux and returns a Client pointed at it.
func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/", Options{Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func writeJSON(t *testing.T, w http.ResponseWriter, code int, body string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, body)
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	_, err := New("/api", Options{})
	require.Error(t, err)
}

func TestCatalog(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /school", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, `[{"id":"s1","name":"Colégio Azul"}]`)
	})
	mux.HandleFunc("GET /album", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, `[{"id":"a1"},{"id":"a2"}]`)
	})
	mux.HandleFunc("GET /album/schoolId/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "s1", r.PathValue("id"))
		writeJSON(t, w, http.StatusOK, `[{"id":"a1","schoolId":"s1"}]`)
	})
	mux.HandleFunc("GET /album/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "a1" {
			writeJSON(t, w, http.StatusNotFound, `{"message":"not found"}`)
			return
		}
		writeJSON(t, w, http.StatusOK, `{"id":"a1","schoolId":"s1","hasCommon":true,"prices":{"common":2.5}}`)
	})
	c := newTestClient(t, mux)
	ctx := t.Context()

	schools, err := c.ListSchools(ctx)
	require.NoError(t, err)
	require.Len(t, schools, 1)
	assert.Equal(t, "Colégio Azul", schools[0].Name)

	all, err := c.ListAlbums(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	bySchool, err := c.ListAlbums(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, bySchool, 1)
	assert.Equal(t, "s1", bySchool[0].SchoolID)

	a, err := c.GetAlbum(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, a.HasCommon)
	price, err := a.UnitPrice(album.StickerCommon)
	require.NoError(t, err)
	assert.True(t, d("2.5").Equal(price), "expected 2.5, got %s", price)

	_, err = c.GetAlbum(ctx, "missing")
	require.ErrorIs(t, err, album.ErrNotFound)
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name       string
		code       int
		body       string
		wantCoupon bool
		wantMsg    string
		wantErr    bool
	}{
		{
			name:       "found",
			code:       http.StatusOK,
			body:       `{"coupon":{"id":"c1","code":"DEZ","type":1,"value":10,"usageLimit":5,"usedCount":1,"expiresAt":"2030-01-01T00:00:00Z","minPurchaseValue":0,"isActive":true},"message":"ok"}`,
			wantCoupon: true,
			wantMsg:    "ok",
		},
		{
			name:    "unknown with 200",
			code:    http.StatusOK,
			body:    `{"coupon":null,"message":"Cupom não encontrado"}`,
			wantMsg: "Cupom não encontrado",
		},
		{
			name:    "unknown with 404",
			code:    http.StatusNotFound,
			body:    `{"coupon":null,"message":"Cupom inválido"}`,
			wantMsg: "Cupom inválido",
		},
		{
			name:    "server error",
			code:    http.StatusInternalServerError,
			body:    `boom`,
			wantErr: true,
		},
		{
			name:    "bad expiry",
			code:    http.StatusOK,
			body:    `{"coupon":{"code":"X","expiresAt":"tomorrow"}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /coupon/validate/{code}", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, tt.code, tt.body)
			})
			c := newTestClient(t, mux)

			res, err := c.Lookup(t.Context(), "DEZ")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMsg, res.Message)
			if !tt.wantCoupon {
				assert.Nil(t, res.Coupon)
				return
			}
			require.NotNil(t, res.Coupon)
			assert.Equal(t, coupon.TypeFixed, res.Coupon.Type)
			assert.True(t, d("10").Equal(res.Coupon.Value))
			assert.Equal(t, 2030, res.Coupon.ExpiresAt.Year())
		})
	}
}

func TestLookup_EscapesCodeOnce(t *testing.T) {
	tests := []struct {
		code    string
		wantRaw string
	}{
		{code: "PROMO10", wantRaw: "/coupon/validate/PROMO10"},
		{code: "PROMO 10", wantRaw: "/coupon/validate/PROMO%2010"},
		{code: "A/B", wantRaw: "/coupon/validate/A%2FB"},
		{code: "50%OFF", wantRaw: "/coupon/validate/50%25OFF"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			var gotRaw, gotCode string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotRaw = r.URL.EscapedPath()
				gotCode, _ = url.PathUnescape(strings.TrimPrefix(gotRaw, "/coupon/validate/"))
				writeJSON(t, w, http.StatusNotFound, `{"message":"Cupom não encontrado"}`)
			}))
			t.Cleanup(srv.Close)
			c, err := New(srv.URL, Options{Timeout: 5 * time.Second})
			require.NoError(t, err)

			_, err = c.Lookup(t.Context(), tt.code)

			require.NoError(t, err)
			assert.Equal(t, tt.wantRaw, gotRaw)
			assert.Equal(t, tt.code, gotCode)
		})
	}
}

func TestGetAlbum_EscapesID(t *testing.T) {
	var gotRaw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRaw = r.URL.EscapedPath()
		writeJSON(t, w, http.StatusOK, `{"id":"a 1"}`)
	}))
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/api", Options{Timeout: 5 * time.Second})
	require.NoError(t, err)

	_, err = c.GetAlbum(t.Context(), "a 1")

	require.NoError(t, err)
	assert.Equal(t, "/api/album/a%201", gotRaw)
}

func TestCreateOrder_SendsNumericTotal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /order", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 27.5, body["priceTotal"])
		assert.Equal(t, "pix_1", body["integrationId"])
		writeJSON(t, w, http.StatusCreated, `{"id":"ord_1"}`)
	})
	c := newTestClient(t, mux)

	id, err := c.Create(t.Context(), order.Summary{IntegrationID: "pix_1", PriceTotal: d("27.50")})
	require.NoError(t, err)
	assert.Equal(t, "ord_1", id)
}

func TestCreatePix(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantID       string
		wantProvider string
	}{
		{
			name:   "created",
			body:   `{"data":{"id":"pix_1","amount":1700,"status":"PENDING","brCode":"000201","expiresAt":"2025-05-01T11:00:00Z"},"error":null}`,
			wantID: "pix_1",
		},
		{
			name:         "refused",
			body:         `{"data":null,"error":"invalid taxId"}`,
			wantProvider: "invalid taxId",
		},
		{
			name:         "empty",
			body:         `{"data":null,"error":null}`,
			wantProvider: "empty response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("POST /pix/order", func(w http.ResponseWriter, r *http.Request) {
				var req payment.PixRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, int64(1700), req.Payment.Amount)
				writeJSON(t, w, http.StatusOK, tt.body)
			})
			c := newTestClient(t, mux)

			qr, err := c.CreatePix(t.Context(), payment.PixRequest{Payment: payment.Amount{Amount: 1700}})
			if tt.wantProvider != "" {
				var pe *payment.ProviderError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, tt.wantProvider, pe.Message)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, qr.ID)
			assert.False(t, qr.ExpiresAt.IsZero())
		})
	}
}

func TestStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /pix/order/status", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("integrationId") {
		case "pix_1":
			writeJSON(t, w, http.StatusOK, `{"status":"PAID"}`)
		default:
			writeJSON(t, w, http.StatusOK, `{"status":"WHATEVER"}`)
		}
	})
	c := newTestClient(t, mux)

	st, err := c.Status(t.Context(), "pix_1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, st)

	_, err = c.Status(t.Context(), "pix_2")
	require.Error(t, err)
}

func TestStatusError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /school", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusBadGateway, `upstream`)
	})
	c := newTestClient(t, mux)

	_, err := c.ListSchools(t.Context())

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	assert.Equal(t, "upstream", string(se.Body))
}
