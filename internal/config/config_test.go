package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg := &Config{}
	require.NoError(t, env.Parse(cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.True(t, decimal.RequireFromString("0.10").Equal(cfg.Pricing.TaxRate))
	assert.True(t, decimal.RequireFromString("9.99").Equal(cfg.Pricing.ShippingFee))
	assert.Equal(t, "USD", cfg.Pricing.Currency)
	assert.Equal(t, 10*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, "db", cfg.Queue.Backend)
	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	assert.True(t, cfg.Queue.EmbeddedWorker)
	assert.False(t, cfg.Paypal.Enabled())
	assert.False(t, cfg.BrainTree.Enabled())
}

func TestParsePrefixedGroups(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PRICING_TAX_RATE", "0.2")
	t.Setenv("QUEUE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("PAYPAL_CLIENT_ID", "id")
	t.Setenv("PAYPAL_CLIENT_SECRET", "secret")

	cfg := &Config{}
	require.NoError(t, env.Parse(cfg))
	require.NoError(t, cfg.Validate())

	assert.True(t, decimal.RequireFromString("0.2").Equal(cfg.Pricing.TaxRate))
	assert.Equal(t, "redis", cfg.Queue.Backend)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Paypal.Enabled())
}

func TestValidateRejectsIncompleteConfig(t *testing.T) {
	cfg := &Config{}
	t.Setenv("BRAINTREE_MERCHANT_ID", "merchant")
	t.Setenv("QUEUE_BACKEND", "kafka")
	require.NoError(t, env.Parse(cfg))

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET is required")
	assert.Contains(t, err.Error(), "braintree gateway requires")
	assert.Contains(t, err.Error(), `unsupported QUEUE_BACKEND "kafka"`)
}
