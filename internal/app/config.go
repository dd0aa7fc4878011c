package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/paylink"
	"github.com/xenking/kart-checkout/internal/remote"
)

// Backend names accepted by Config.Backend.
const (
	BackendPostgres = "postgres"
	BackendRemote   = "remote"
)

// Config holds the complete application configuration, loadable from
// environment variables (KART_ prefix) or YAML config files. Command-line
// flags are left to each binary.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Backend     string `default:"postgres" usage:"Order and coupon backend: postgres or remote"`
	DatabaseURL string `usage:"PostgreSQL connection URL (KART_DATABASE_URL or DATABASE_URL)"`
	RemoteURL   string `usage:"Base URL of the remote storefront API"`
	PaymentURL  string `usage:"Base URL of the payment page"`
	Payment     PaymentConfig
	Redis       RedisConfig
	Coupons     CouponsConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// PaymentConfig sets the upper total for each capped payment method.
// CREDIT is always offered.
type PaymentConfig struct {
	PayPayLimit int64 `default:"500000" env:"PAYPAY_LIMIT" usage:"Largest total payable with PAYPAY"`
	AuPayLimit  int64 `default:"300000" env:"AUPAY_LIMIT"  usage:"Largest total payable with AUPAY"`
}

// Selector builds the payment method selector for these limits.
func (c PaymentConfig) Selector() *payment.Selector {
	return payment.NewSelector(
		payment.Rule{Method: payment.MethodCredit},
		payment.Rule{Method: payment.MethodPayPay, Limit: decimal.NewFromInt(c.PayPayLimit)},
		payment.Rule{Method: payment.MethodAuPay, Limit: decimal.NewFromInt(c.AuPayLimit)},
	)
}

// RedisConfig controls the coupon cache. An empty Addr disables it.
type RedisConfig struct {
	Addr string        `usage:"Redis address for the coupon cache"`
	TTL  time.Duration `default:"5m" usage:"Coupon cache entry lifetime"`
}

// CouponsConfig controls coupon lookup.
type CouponsConfig struct {
	Bloom        bool          `default:"true" usage:"Reject unknown coupon codes with a Bloom filter (postgres backend)"`
	BloomRefresh time.Duration `default:"30s" env:"BLOOM_REFRESH" usage:"How often the Bloom filter reloads coupon codes"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "KART",
		SkipFlags: true,
		Files:     []string{"config.yaml", "/etc/kart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set KART_DATABASE_URL or DATABASE_URL")
		}
	case BackendRemote:
	default:
		return errors.Errorf("unknown backend %q: want %q or %q", c.Backend, BackendPostgres, BackendRemote)
	}
	if c.Payment.PayPayLimit <= 0 || c.Payment.AuPayLimit <= 0 {
		return errors.New("payment limits must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's KART_-prefixed configuration, and fills in the public
// endpoints.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
	if c.RemoteURL == "" {
		c.RemoteURL = remote.DefaultBaseURL
	}
	if c.PaymentURL == "" {
		c.PaymentURL = paylink.DefaultBaseURL
	}
}
