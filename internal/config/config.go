// Package config loads per-process settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Storefront struct {
	Port         string   `envconfig:"PORT" default:"8081"`
	PostgresURL  string   `envconfig:"POSTGRES_URL" required:"true"`
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	RedisAddr    string   `envconfig:"REDIS_ADDR"`

	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY" required:"true"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET" required:"true"`
	// StripeAPIURL overrides the Stripe API base URL, e.g. for stripe-mock.
	StripeAPIURL       string        `envconfig:"STRIPE_API_URL"`
	ProviderTimeout    time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"10s"`
	CheckoutSessionTTL time.Duration `envconfig:"CHECKOUT_SESSION_TTL" default:"30m"`

	Currency             string `envconfig:"CURRENCY" default:"inr"`
	MinorUnits           int64  `envconfig:"CURRENCY_MINOR_UNITS" default:"100"`
	SurchargeBasisPoints int64  `envconfig:"SURCHARGE_BASIS_POINTS" default:"200"`

	StorefrontURL  string   `envconfig:"STOREFRONT_URL" default:"http://localhost:5173"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
	SellerAPIKey   string   `envconfig:"SELLER_API_KEY" required:"true"`
}

type Worker struct {
	KafkaBrokers    []string      `envconfig:"KAFKA_BROKERS" required:"true"`
	EmailServiceURL string        `envconfig:"EMAIL_SERVICE_URL" required:"true"`
	HTTPTimeout     time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`
}

type Email struct {
	Port string `envconfig:"PORT" default:"8084"`
}

type Admin struct {
	PostgresURL     string        `envconfig:"POSTGRES_URL" required:"true"`
	MigrationsPath  string        `envconfig:"MIGRATIONS_PATH" default:"file://migrations"`
	PendingOrderTTL time.Duration `envconfig:"PENDING_ORDER_TTL" default:"2h"`
}

func LoadStorefront() (Storefront, error) {
	var cfg Storefront
	if err := envconfig.Process("", &cfg); err != nil {
		return Storefront{}, err
	}
	if err := cfg.validate(); err != nil {
		return Storefront{}, err
	}
	return cfg, nil
}

func (c Storefront) validate() error {
	if c.SurchargeBasisPoints < 0 {
		return fmt.Errorf("SURCHARGE_BASIS_POINTS must not be negative, got %d", c.SurchargeBasisPoints)
	}
	if c.MinorUnits <= 0 {
		return fmt.Errorf("CURRENCY_MINOR_UNITS must be positive, got %d", c.MinorUnits)
	}
	// Stripe rejects sessions that expire sooner than 30 minutes.
	if c.CheckoutSessionTTL < 30*time.Minute {
		return fmt.Errorf("CHECKOUT_SESSION_TTL must be at least 30m, got %s", c.CheckoutSessionTTL)
	}
	if _, err := url.ParseRequestURI(c.StorefrontURL); err != nil {
		return fmt.Errorf("STOREFRONT_URL: %w", err)
	}
	return nil
}

// ReturnOrigin picks the origin buyers are redirected back to after hosted
// checkout. Only allow-listed origins are honoured.
func (c Storefront) ReturnOrigin(requested string) string {
	requested = strings.TrimRight(strings.TrimSpace(requested), "/")
	for _, o := range c.AllowedOrigins {
		if requested != "" && strings.TrimRight(o, "/") == requested {
			return requested
		}
	}
	return strings.TrimRight(c.StorefrontURL, "/")
}

func LoadWorker() (Worker, error) {
	var cfg Worker
	err := envconfig.Process("", &cfg)
	return cfg, err
}

func LoadEmail() (Email, error) {
	var cfg Email
	err := envconfig.Process("", &cfg)
	return cfg, err
}

func LoadAdmin() (Admin, error) {
	var cfg Admin
	err := envconfig.Process("", &cfg)
	return cfg, err
}

// Schema holds every storefront table.
const Schema = "storefront"

// WithSearchPath returns dsn with search_path pinned to schema. The setting is
// sent as a startup parameter, so it applies to every pooled connection.
func WithSearchPath(dsn, schema string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse postgres url: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("postgres url must use the postgres scheme, got %q", u.Scheme)
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
