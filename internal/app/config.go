package app

import (
	"os"
	"strconv"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the API server configuration, loaded from PDV_-prefixed
// environment variables, flags, or YAML config files.
type Config struct {
	Addr              string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL       string        `usage:"PostgreSQL connection URL (PDV_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	PDVCodePepper     string        `usage:"HMAC pepper for PDV code hashing" flag:"pdv-code-pepper" env:"CODE_PEPPER"`
	DefaultCustomerID int64         `usage:"Customer charged when a sale names none (or CLIENTE_PADRAO_ID_VENDAS)" flag:"default-customer-id" env:"DEFAULT_CUSTOMER_ID"`
	AuditTimeout      time.Duration `default:"3s" usage:"Timeout for the post-commit audit log write" flag:"audit-timeout"`
	Redis             RedisConfig
	RateLimit         RateLimitConfig
	CORS              CORSConfig
	Graceful          GracefulConfig
}

// RedisConfig controls the catalog cache. An empty Addr disables it.
type RedisConfig struct {
	Addr       string        `default:"" usage:"Redis address or redis:// URL (or REDIS_URL)"`
	Password   string        `default:"" usage:"Redis password"`
	DB         int           `default:"0" usage:"Redis logical database"`
	CatalogTTL time.Duration `default:"1m" usage:"Lifetime of cached catalog listings" flag:"redis-catalog-ttl"`
}

// RateLimitConfig controls the per-terminal sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"300" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from the environment, flags and YAML files,
// then applies platform defaults and validates the result.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "PDV",
		Files:     []string{"config.yaml", "/etc/pdv/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if err := cfg.applyPlatformDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults fills unset fields from the unprefixed variables
// hosting platforms and the legacy deployment provide.
func (c *Config) applyPlatformDefaults() error {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
	if c.DefaultCustomerID == 0 {
		if v := os.Getenv("CLIENTE_PADRAO_ID_VENDAS"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return errors.Wrap(err, "parse CLIENTE_PADRAO_ID_VENDAS")
			}
			c.DefaultCustomerID = id
		}
	}
	return nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set PDV_DATABASE_URL or DATABASE_URL")
	case c.PDVCodePepper == "":
		return errors.New("PDV code pepper is required: set PDV_CODE_PEPPER")
	case c.DefaultCustomerID <= 0:
		return errors.New("default customer is required: set PDV_DEFAULT_CUSTOMER_ID or CLIENTE_PADRAO_ID_VENDAS")
	case c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0:
		return errors.New("rate limit max and window must be positive")
	}
	return nil
}
