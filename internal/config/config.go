package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all agent configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig
	App      AppConfig
	Local    LocalStoreConfig
	Remote   RemoteConfig
	Notify   NotifyConfig
	Cache    CacheConfig
	Identity IdentityConfig
	Checkout CheckoutConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"127.0.0.1"`
	Port            int           `envconfig:"SERVER_PORT" default:"8090"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	AllowedOrigins  []string      `envconfig:"SERVER_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"storefront-cart"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// LocalStoreConfig selects where the local cart snapshot survives restarts.
type LocalStoreConfig struct {
	Type string `envconfig:"LOCAL_STORE_TYPE" default:"file"` // file, sqlite, redis, memory
	Path string `envconfig:"LOCAL_STORE_PATH" default:"./data/cart.json"`
	Key  string `envconfig:"LOCAL_STORE_KEY" default:"shopping-cart"`
}

// RemoteConfig holds the remote cart store settings.
type RemoteConfig struct {
	Type    string        `envconfig:"REMOTE_DB_TYPE" default:"sqlite"` // sqlite, postgres, mysql, mongodb
	Timeout time.Duration `envconfig:"REMOTE_TIMEOUT" default:"10s"`

	// SQLite settings
	Path string `envconfig:"REMOTE_DB_PATH" default:"./data/remote_cart.db"`

	// PostgreSQL / MySQL settings
	Host     string `envconfig:"REMOTE_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"REMOTE_DB_PORT" default:"5432"`
	Name     string `envconfig:"REMOTE_DB_NAME" default:"storefront"`
	User     string `envconfig:"REMOTE_DB_USER" default:"postgres"`
	Password string `envconfig:"REMOTE_DB_PASS" default:""`
	SSLMode  string `envconfig:"REMOTE_DB_SSLMODE" default:"disable"`

	// MongoDB settings
	MongoURI        string `envconfig:"MONGODB_URI" default:"mongodb://localhost:27017"`
	MongoDatabase   string `envconfig:"MONGODB_DATABASE" default:"storefront"`
	MongoCollection string `envconfig:"MONGODB_COLLECTION" default:"cart_items"`

	// Circuit breaker around remote calls
	BreakerEnabled     bool          `envconfig:"REMOTE_BREAKER_ENABLED" default:"true"`
	BreakerMinRequests uint32        `envconfig:"REMOTE_BREAKER_MIN_REQUESTS" default:"5"`
	BreakerFailRatio   float64       `envconfig:"REMOTE_BREAKER_FAIL_RATIO" default:"0.5"`
	BreakerOpenTimeout time.Duration `envconfig:"REMOTE_BREAKER_OPEN_TIMEOUT" default:"30s"`
}

// NotifyConfig selects the change notification transport.
type NotifyConfig struct {
	Type string `envconfig:"NOTIFY_TYPE" default:"memory"` // memory, redis, postgres
}

// CacheConfig holds Redis settings shared by the Redis-backed components.
type CacheConfig struct {
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// IdentityConfig selects how bearer tokens are turned into user ids.
type IdentityConfig struct {
	Type      string `envconfig:"IDENTITY_TYPE" default:"jwt"` // jwt, redis
	JWTSecret string `envconfig:"JWT_SECRET" default:""`
	JWTIssuer string `envconfig:"JWT_ISSUER" default:""`
}

// CheckoutConfig holds the checkout-completed event consumer settings.
type CheckoutConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS" default:""`
	Topic   string   `envconfig:"KAFKA_TOPIC" default:"checkout-completed"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"cart-agent"` // prefix, the session id is appended per agent
}

// PostgresDSN returns the PostgreSQL connection string.
func (r *RemoteConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		r.User, r.Password, r.Host, r.Port, r.Name, r.SSLMode)
}

// MySQLDSN returns the MySQL data source name.
func (r *RemoteConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		r.User, r.Password, r.Host, r.Port, r.Name)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// Enabled reports whether any Kafka broker is configured.
func (c *CheckoutConfig) Enabled() bool {
	for _, b := range c.Brokers {
		if strings.TrimSpace(b) != "" {
			return true
		}
	}
	return false
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// NeedsRedis reports whether any configured component talks to Redis.
func (c *Config) NeedsRedis() bool {
	return c.Local.Type == "redis" || c.Notify.Type == "redis" || c.Identity.Type == "redis"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
