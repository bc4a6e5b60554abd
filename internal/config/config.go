package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	Database    Database
	Auth        Auth
	SeedDemo    bool `env:"SEED_DEMO_DATA" envDefault:"false"`

	Pricing   Pricing   `envPrefix:"PRICING_"`
	Gateway   Gateway   `envPrefix:"GATEWAY_"`
	Paypal    Paypal    `envPrefix:"PAYPAL_"`
	BrainTree Braintree `envPrefix:"BRAINTREE_"`
	Queue     Queue     `envPrefix:"QUEUE_"`
	Redis     Redis     `envPrefix:"REDIS_"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}

type Database struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite"` // mysql | sqlite
	URL    string `env:"DATABASE_URL" envDefault:"orders.db"`
}

type Auth struct {
	JWTSecret string `env:"JWT_SECRET"`
}

type Pricing struct {
	Currency    string          `env:"CURRENCY" envDefault:"USD"`
	TaxRate     decimal.Decimal `env:"TAX_RATE" envDefault:"0.10"`
	ShippingFee decimal.Decimal `env:"SHIPPING_FEE" envDefault:"9.99"`
	CouponRate  decimal.Decimal `env:"COUPON_RATE" envDefault:"0.10"`
}

type Gateway struct {
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

type Paypal struct {
	BaseApiURL   string `env:"BASE_API_URL" envDefault:"https://api-m.sandbox.paypal.com"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	WebhookID    string `env:"WEBHOOK_ID"`
	ReturnURL    string `env:"RETURN_URL"`
	CancelURL    string `env:"CANCEL_URL"`
}

// Enabled reports whether any PayPal credential was configured.
func (p Paypal) Enabled() bool {
	return p.ClientID != "" || p.ClientSecret != ""
}

type Braintree struct {
	Environment string `env:"ENVIRONMENT" envDefault:"sandbox"`
	MerchantID  string `env:"MERCHANT_ID"`
	PublicKey   string `env:"PUBLIC_KEY"`
	PrivateKey  string `env:"PRIVATE_KEY"`
}

func (b Braintree) Enabled() bool {
	return b.MerchantID != "" || b.PublicKey != "" || b.PrivateKey != ""
}

type Queue struct {
	Backend           string        `env:"BACKEND" envDefault:"db"` // db | redis
	Workers           int           `env:"WORKERS" envDefault:"2"`
	MaxAttempts       int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	PollInterval      time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	RetryBackoff      time.Duration `env:"RETRY_BACKOFF" envDefault:"5s"`
	VisibilityTimeout time.Duration `env:"VISIBILITY_TIMEOUT" envDefault:"2m"`
	// EmbeddedWorker runs the notification workers inside the API process.
	EmbeddedWorker bool `env:"EMBEDDED_WORKER" envDefault:"true"`
}

type Redis struct {
	Addr      string `env:"ADDR" envDefault:"localhost:6379"`
	Password  string `env:"PASSWORD"`
	DB        int    `env:"DB" envDefault:"0"`
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"ecommerce"`
}

// Validate rejects configurations the process must not start with.
// Gateway credentials are all-or-nothing: a half configured gateway is fatal.
func (c *Config) Validate() error {
	var errs []error

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}

	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}

	if c.Paypal.Enabled() && (c.Paypal.ClientID == "" || c.Paypal.ClientSecret == "" || c.Paypal.BaseApiURL == "") {
		errs = append(errs, errors.New("paypal gateway requires PAYPAL_CLIENT_ID, PAYPAL_CLIENT_SECRET and PAYPAL_BASE_API_URL"))
	}

	if c.BrainTree.Enabled() && (c.BrainTree.MerchantID == "" || c.BrainTree.PublicKey == "" || c.BrainTree.PrivateKey == "") {
		errs = append(errs, errors.New("braintree gateway requires BRAINTREE_MERCHANT_ID, BRAINTREE_PUBLIC_KEY and BRAINTREE_PRIVATE_KEY"))
	}

	if c.Gateway.Timeout <= 0 {
		errs = append(errs, errors.New("GATEWAY_TIMEOUT must be positive"))
	}

	switch c.Queue.Backend {
	case "db", "redis":
	default:
		errs = append(errs, fmt.Errorf("unsupported QUEUE_BACKEND %q", c.Queue.Backend))
	}

	if c.Queue.MaxAttempts < 1 {
		errs = append(errs, errors.New("QUEUE_MAX_ATTEMPTS must be at least 1"))
	}

	if c.Pricing.TaxRate.IsNegative() || c.Pricing.ShippingFee.IsNegative() || c.Pricing.CouponRate.IsNegative() {
		errs = append(errs, errors.New("pricing rates and fees must not be negative"))
	}

	return errors.Join(errs...)
}
