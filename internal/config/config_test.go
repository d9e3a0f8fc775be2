package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8090", cfg.Server.Address())
	assert.Equal(t, "sqlite", cfg.Remote.Type)
	assert.Equal(t, "file", cfg.Local.Type)
	assert.Equal(t, "memory", cfg.Notify.Type)
	assert.Equal(t, "jwt", cfg.Identity.Type)
	assert.True(t, cfg.Remote.BreakerEnabled)
	assert.False(t, cfg.NeedsRedis())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("REMOTE_DB_TYPE", "postgres")
	t.Setenv("NOTIFY_TYPE", "redis")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("REMOTE_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Remote.Type)
	assert.Equal(t, "3s", cfg.Remote.Timeout.String())
	assert.True(t, cfg.NeedsRedis())
	assert.True(t, cfg.Checkout.Enabled())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Checkout.Brokers)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-port")

	_, err := Load()
	assert.Error(t, err)
}

func TestDSNs(t *testing.T) {
	r := RemoteConfig{User: "cart", Password: "pw", Host: "db", Port: 5432, Name: "shop", SSLMode: "disable"}
	assert.Equal(t, "postgres://cart:pw@db:5432/shop?sslmode=disable", r.PostgresDSN())

	r.Port = 3306
	assert.Equal(t, "cart:pw@tcp(db:3306)/shop?parseTime=true", r.MySQLDSN())

	c := CacheConfig{RedisHost: "cache", RedisPort: 6380}
	assert.Equal(t, "cache:6380", c.RedisAddress())
}

func TestCheckoutEnabled(t *testing.T) {
	assert.False(t, (&CheckoutConfig{}).Enabled())
	assert.False(t, (&CheckoutConfig{Brokers: []string{" "}}).Enabled())
	assert.True(t, (&CheckoutConfig{Brokers: []string{"localhost:9092"}}).Enabled())
}
