package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/sticker-storefront/internal/couponindex"
)

// fakeBackend mimics the sticker REST API.
type fakeBackend struct {
	paid    atomic.Bool
	lookups atomic.Int32
	orders  atomic.Int32
	pixBody atomic.Value // string
}

func (b *fakeBackend) handler(t *testing.T) http.Handler {
	write := func(w http.ResponseWriter, code int, body string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = io.WriteString(w, body)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /school", func(w http.ResponseWriter, _ *http.Request) {
		write(w, http.StatusOK, `[{"id":"s1","name":"Colégio Azul"}]`)
	})
	mux.HandleFunc("GET /album/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "10" {
			write(w, http.StatusNotFound, `{"message":"album not found"}`)
			return
		}
		write(w, http.StatusOK, `{"id":"10","schoolId":"s1","name":"Formatura","hasCommon":true,"hasA4":true}`)
	})
	mux.HandleFunc("GET /coupon/validate/{code}", func(w http.ResponseWriter, r *http.Request) {
		b.lookups.Add(1)
		if r.PathValue("code") != "FRETE" {
			write(w, http.StatusNotFound, `{"coupon":null,"message":"Cupom não encontrado"}`)
			return
		}
		write(w, http.StatusOK, `{"coupon":{"id":"c1","code":"FRETE","type":2,"value":0,"usageLimit":10,"usedCount":1,"expiresAt":"","minPurchaseValue":0,"isActive":true}}`)
	})
	mux.HandleFunc("POST /pix/order", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		b.pixBody.Store(string(body))
		expires := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
		write(w, http.StatusOK, `{"data":{"id":"pix_1","amount":1700,"status":"PENDING","brCode":"00020101","expiresAt":"`+expires+`"},"error":null}`)
	})
	mux.HandleFunc("POST /order", func(w http.ResponseWriter, r *http.Request) {
		b.orders.Add(1)
		var summary struct {
			IntegrationID string  `json:"integrationId"`
			PriceTotal    float64 `json:"priceTotal"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&summary))
		assert.Equal(t, "pix_1", summary.IntegrationID)
		assert.InDelta(t, 17.0, summary.PriceTotal, 0.001)
		write(w, http.StatusCreated, `{"id":"ord_1"}`)
	})
	mux.HandleFunc("GET /pix/order/status", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pix_1", r.URL.Query().Get("integrationId"))
		if b.paid.Load() {
			write(w, http.StatusOK, `{"status":"PAID"}`)
			return
		}
		write(w, http.StatusOK, `{"status":"PENDING"}`)
	})
	return mux
}

type testApp struct {
	t       *testing.T
	url     string
	client  *http.Client
	backend *fakeBackend
}

func testConfig(apiURL string) *Config {
	return &Config{
		Addr:            "127.0.0.1:0",
		APIURL:          apiURL,
		ShippingCost:    "10.00",
		CartTTL:         73 * time.Hour,
		PixPollInterval: time.Hour,
		PixExpiresIn:    time.Hour,
		RequestTimeout:  5 * time.Second,
		Session:         SessionConfig{CookieName: "sid", MaxAge: time.Hour},
		RateLimit:       RateLimitConfig{Max: 1000, Window: time.Minute},
		CORS:            CORSConfig{Origins: []string{"https://shop.example.com"}, AllowCredentials: true},
	}
}

func newTestApp(t *testing.T, mutate func(cfg *Config)) *testApp {
	t.Helper()

	fb := &fakeBackend{}
	api := httptest.NewServer(fb.handler(t))
	t.Cleanup(api.Close)

	cfg := testConfig(api.URL)
	if mutate != nil {
		mutate(cfg)
	}

	ctx, cancel := context.WithCancel(zctx.Base(context.Background(), zaptest.NewLogger(t)))
	srv, err := newServer(ctx, cfg, tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	require.NoError(t, err)
	srv.health.Start(ctx, time.Hour)
	srv.health.SetReady(true)

	front := httptest.NewServer(srv.handler)
	t.Cleanup(func() {
		front.Close()
		cancel()
		srv.health.Stop()
		srv.close()
	})

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testApp{
		t:       t,
		url:     front.URL,
		client:  &http.Client{Jar: jar, Timeout: 10 * time.Second},
		backend: fb,
	}
}

func (a *testApp) do(method, path, body string, header ...string) *http.Response {
	a.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, a.url+path, r)
	require.NoError(a.t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := a.client.Do(req)
	require.NoError(a.t, err)
	a.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type cartResponse struct {
	Items []struct {
		Album struct {
			ID string `json:"id"`
		} `json:"album"`
		Stickers []struct {
			Key      string `json:"key"`
			Quantity int    `json:"quantity"`
		} `json:"stickers"`
	} `json:"items"`
	Count  int `json:"count"`
	Coupon *struct {
		Code string `json:"code"`
	} `json:"coupon"`
	Totals struct {
		Subtotal         float64 `json:"subtotal"`
		ShippingDiscount float64 `json:"shippingDiscount"`
		FinalTotal       float64 `json:"finalTotal"`
		DiscountType     string  `json:"discountType"`
	} `json:"totals"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func TestHealthEndpoints(t *testing.T) {
	a := newTestApp(t, nil)

	for _, path := range []string{"/livez", "/readyz"} {
		resp := a.do(http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		body := decodeBody[map[string]any](t, resp)
		assert.Equal(t, "ok", body["status"], path)
	}
}

func TestMiddlewareChain(t *testing.T) {
	a := newTestApp(t, nil)

	t.Run("request id generated", func(t *testing.T) {
		resp := a.do(http.MethodGet, "/livez", "")
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	})
	t.Run("request id echoed", func(t *testing.T) {
		resp := a.do(http.MethodGet, "/livez", "", "X-Request-ID", "custom-request-id-12345")
		assert.Equal(t, "custom-request-id-12345", resp.Header.Get("X-Request-ID"))
	})
	t.Run("cors preflight", func(t *testing.T) {
		resp := a.do(http.MethodOptions, "/api/cart", "",
			"Origin", "https://shop.example.com",
			"Access-Control-Request-Method", "POST",
		)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "https://shop.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	})
	t.Run("unknown route", func(t *testing.T) {
		resp := a.do(http.MethodGet, "/api/nope", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestRateLimitPerSession(t *testing.T) {
	a := newTestApp(t, func(cfg *Config) { cfg.RateLimit.Max = 2 })

	// The first request has no cookie yet and counts against the address.
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/cart", "").StatusCode)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/cart", "").StatusCode)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/cart", "").StatusCode)
	resp := a.do(http.MethodGet, "/api/cart", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestCheckoutFlow(t *testing.T) {
	a := newTestApp(t, nil)

	resp := a.do(http.MethodGet, "/api/schools", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Fill the cart: two common copies of #1 and one A4 of #2.
	resp = a.do(http.MethodPost, "/api/cart/albums/10/stickers",
		`{"stickers":[{"number":"1","name":"Ana","type":"common"},{"number":"1","name":"Ana","type":"common"},{"number":"2","name":"Bia","type":"a4"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	c := decodeBody[cartResponse](t, resp)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 3, c.Count)
	assert.InDelta(t, 17.0, c.Totals.Subtotal, 0.001)
	assert.InDelta(t, 27.0, c.Totals.FinalTotal, 0.001)

	// Unknown coupon is a business rejection.
	resp = a.do(http.MethodPost, "/api/cart/coupon", `{"code":"nope"}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "Cupom não encontrado", decodeBody[errorResponse](t, resp).Message)

	// Free shipping, entered in lower case.
	resp = a.do(http.MethodPost, "/api/cart/coupon", `{"code":" frete "}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	c = decodeBody[cartResponse](t, resp)
	require.NotNil(t, c.Coupon)
	assert.Equal(t, "FRETE", c.Coupon.Code)
	assert.InDelta(t, 10.0, c.Totals.ShippingDiscount, 0.001)
	assert.InDelta(t, 17.0, c.Totals.FinalTotal, 0.001)

	// The cart survives across requests of the same session.
	c = decodeBody[cartResponse](t, a.do(http.MethodGet, "/api/cart", ""))
	assert.Equal(t, 3, c.Count)

	checkout := `{"customer":{"name":"Maria","email":"maria@example.com","taxId":"123.456.789-09","cellphone":"(11) 98765-4321"},` +
		`"address":{"zipCode":"01001-000","street":"Praça da Sé","number":"1","city":"São Paulo","state":"SP"}}`

	resp = a.do(http.MethodPost, "/api/checkout/pix", checkout)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	started := decodeBody[struct {
		OrderID string `json:"orderId"`
		Pix     struct {
			ID     string `json:"id"`
			BRCode string `json:"brCode"`
		} `json:"pix"`
		Cached bool `json:"cached"`
	}](t, resp)
	assert.Equal(t, "ord_1", started.OrderID)
	assert.Equal(t, "pix_1", started.Pix.ID)
	assert.False(t, started.Cached)

	var pixReq struct {
		Payment struct {
			Amount int64 `json:"amount"`
		} `json:"payment"`
		Customer struct {
			TaxID string `json:"taxId"`
		} `json:"customer"`
	}
	require.NoError(t, json.Unmarshal([]byte(a.backend.pixBody.Load().(string)), &pixReq))
	assert.Equal(t, int64(1700), pixReq.Payment.Amount)
	assert.Equal(t, "12345678909", pixReq.Customer.TaxID)

	// Same buyer and amount reuse the cached charge.
	resp = a.do(http.MethodPost, "/api/checkout/pix", checkout)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), a.backend.orders.Load())

	resp = a.do(http.MethodGet, "/api/checkout/pix/pix_1/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "PENDING", decodeBody[map[string]any](t, resp)["status"])

	a.backend.paid.Store(true)
	resp = a.do(http.MethodGet, "/api/checkout/pix/pix_1/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "PAID", status["status"])
	assert.Equal(t, true, status["cartCleared"])

	c = decodeBody[cartResponse](t, a.do(http.MethodGet, "/api/cart", ""))
	assert.Empty(t, c.Items)
	assert.Nil(t, c.Coupon)
}

func TestCouponIndexPrefilter(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "codes.txt")
	require.NoError(t, os.WriteFile(src, []byte("FRETE\n"), 0o600))
	f, _, err := couponindex.Build(context.Background(), []string{src}, couponindex.Options{Capacity: 100})
	require.NoError(t, err)
	index := filepath.Join(dir, "coupons.bloom.gz")
	require.NoError(t, couponindex.Save(index, f))

	a := newTestApp(t, func(cfg *Config) { cfg.CouponIndex = index })

	resp := a.do(http.MethodPost, "/api/cart/coupon", `{"code":"UNKNOWN"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, int32(0), a.backend.lookups.Load())

	resp = a.do(http.MethodPost, "/api/cart/coupon", `{"code":"FRETE"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), a.backend.lookups.Load())
}

func TestNewServer_Errors(t *testing.T) {
	ctx := zctx.Base(context.Background(), zaptest.NewLogger(t))

	cfg := testConfig("not a url")
	_, err := newServer(ctx, cfg, tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	require.Error(t, err)

	cfg = testConfig("http://127.0.0.1:1")
	cfg.CouponIndex = filepath.Join(t.TempDir(), "missing.gz")
	_, err = newServer(ctx, cfg, tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	require.Error(t, err)
}
