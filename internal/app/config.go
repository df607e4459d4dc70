package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"HTTP listen address"`
	APIURL      string `usage:"Base URL of the sticker REST backend" env:"API_URL" flag:"api-url"`
	DatabaseURL string `usage:"PostgreSQL connection URL; empty keeps sessions in memory" flag:"database-url"`
	CouponIndex string `usage:"Path to a known-code filter built by coupon-index" flag:"coupon-index"`

	ShippingCost    string        `default:"10.00" usage:"Flat shipping cost" flag:"shipping-cost"`
	CartTTL         time.Duration `default:"73h" usage:"Idle lifetime of a stored cart" flag:"cart-ttl"`
	PixPollInterval time.Duration `default:"5s" usage:"Interval between PIX status checks" flag:"pix-poll-interval"`
	PixExpiresIn    time.Duration `default:"1h" usage:"Lifetime requested for PIX charges" flag:"pix-expires-in"`
	RequestTimeout  time.Duration `default:"10s" usage:"Timeout of backend requests" flag:"request-timeout"`
	PurgeInterval   time.Duration `default:"1h" usage:"How often stale session state is purged; 0 disables" flag:"purge-interval"`

	Session   SessionConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// SessionConfig controls the session cookie.
type SessionConfig struct {
	CookieName string        `default:"sid" usage:"Session cookie name" flag:"session-cookie"`
	MaxAge     time.Duration `default:"720h" usage:"Session cookie lifetime" flag:"session-max-age"`
	Secure     bool          `default:"false" usage:"Mark the session cookie Secure" flag:"session-secure"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"true" usage:"Allow credentials; needed for the session cookie" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// Shipping returns the parsed shipping cost.
func (c *Config) Shipping() decimal.Decimal {
	// Validated by LoadConfig.
	return decimal.RequireFromString(c.ShippingCost)
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return load(aconfig.Config{
		Files: []string{"config.yaml", "/etc/storefront/config.yaml"},
	})
}

func load(ac aconfig.Config) (*Config, error) {
	ac.EnvPrefix = "STOREFRONT"
	ac.FileDecoders = map[string]aconfig.FileDecoder{
		".yaml": aconfigyaml.New(),
	}

	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.APIURL == "" {
		return errors.New("backend URL is required: set STOREFRONT_API_URL")
	}
	shipping, err := decimal.NewFromString(c.ShippingCost)
	if err != nil {
		return errors.Wrapf(err, "parse shipping cost %q", c.ShippingCost)
	}
	if shipping.IsNegative() {
		return errors.Errorf("shipping cost %s is negative", c.ShippingCost)
	}
	if c.PixPollInterval <= 0 {
		return errors.New("pix poll interval must be positive")
	}
	if c.CartTTL <= 0 {
		return errors.New("cart TTL must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STOREFRONT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
