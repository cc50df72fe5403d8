package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Row store backends.
const (
	RowStoreMongo    = "mongo"
	RowStorePostgres = "postgres"
)

type Config struct {
	Port      string `env:"PORT,      default=8080"`
	Env       string `env:"ENV,       default=development"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`
	LogFile   string `env:"LOG_FILE"`
	JWTSecret string `env:"JWT_SECRET, required"`

	SessionTTL      time.Duration `env:"SESSION_TTL,      default=24h"`
	SessionIdleTTL  time.Duration `env:"SESSION_IDLE_TTL, default=30m"`
	StoreTimeout    time.Duration `env:"STORE_TIMEOUT,    default=5s"`
	GuardWait       time.Duration `env:"GUARD_WAIT,       default=2s"`
	ResolverWorkers int           `env:"RESOLVER_WORKERS, default=8"`
	RowStore        string        `env:"ROW_STORE,        default=mongo"`

	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN, default=http://localhost:5173"`
	CookieSecure      bool   `env:"COOKIE_SECURE,       default=false"`

	Mongo     MongoConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	AMQP      AMQPConfig
	RateLimit RateLimitConfig
	Demo      DemoConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=gecofarm"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR, default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,   default=0"`
}

type PostgresConfig struct {
	DSN string `env:"POSTGRES_DSN"`
}

// AMQPConfig leaves auth events unpublished when URL is empty.
type AMQPConfig struct {
	URL      string `env:"AMQP_URL"`
	Exchange string `env:"AMQP_EXCHANGE, default=gecofarm.auth"`
}

type RateLimitConfig struct {
	Enabled  bool          `env:"RATE_LIMIT_ENABLED,  default=true"`
	Requests int           `env:"RATE_LIMIT_REQUESTS, default=10"`
	Window   time.Duration `env:"RATE_LIMIT_WINDOW,   default=1m"`
}

// DemoConfig seeds the demo credentials at startup. An empty password leaves
// that account unseeded.
type DemoConfig struct {
	AdminPassword    string `env:"DEMO_ADMIN_PASSWORD"`
	EmployeePassword string `env:"DEMO_EMPLOYEE_PASSWORD"`
}

// IsProduction reports whether ENV is "production".
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Parse reads the configuration from the process environment and checks the
// values envconfig cannot.
func Parse(ctx context.Context) (*Config, error) {
	return parse(ctx, envconfig.OsLookuper())
}

func parse(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.RowStore {
	case RowStoreMongo:
	case RowStorePostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("config: POSTGRES_DSN is required when ROW_STORE=%s", RowStorePostgres)
		}
	default:
		return fmt.Errorf("config: unknown ROW_STORE %q", c.RowStore)
	}
	if c.ResolverWorkers <= 0 {
		return fmt.Errorf("config: RESOLVER_WORKERS must be positive, got %d", c.ResolverWorkers)
	}
	return nil
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	cfg, err := Parse(context.Background())
	if err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return cfg
}
