package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Gateway   GatewayConfig
	Store     StoreConfig
	Auth      AuthConfig
	WebSocket WebSocketConfig
	Outbox    OutboxConfig
	Reconcile ReconcileConfig
	CORS      CORSConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port           string
	Host           string
	Env            string
	MetricsEnabled bool
}

type GatewayConfig struct {
	URL          string
	APIKey       string
	Timeout      time.Duration
	PollInterval time.Duration
}

type StoreConfig struct {
	// Driver is "sqlite" or "couch".
	Driver     string
	SQLitePath string
	Couch      CouchConfig
}

type CouchConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

func (c CouchConfig) URL() string {
	return fmt.Sprintf("http://%s:%s@%s:%s", c.User, c.Password, c.Host, c.Port)
}

type AuthConfig struct {
	// AccessKey is the shared credential clients present to the local API.
	AccessKey       string
	JWTSecret       string
	TokenExpiration time.Duration
}

type WebSocketConfig struct {
	ReadBufferSize   int
	WriteBufferSize  int
	WriteWait        time.Duration
	PongWait         time.Duration
	PingPeriod       time.Duration
	MaxConnPerClient int
}

type OutboxConfig struct {
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	QueueSize   int
}

type ReconcileConfig struct {
	IDPrefix string
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads the configuration from the environment after loading the
// given env files (".env" when none are given). Missing files are ignored.
func Load(envFiles ...string) (*Config, error) {
	godotenv.Load(envFiles...)

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
			Env:  getEnv("ENV", "development"),

			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
		Gateway: GatewayConfig{
			URL:          getEnv("SCRIPT_URL", ""),
			APIKey:       getEnv("SCRIPT_API_KEY", ""),
			Timeout:      getEnvAsDuration("SCRIPT_TIMEOUT", 30*time.Second),
			PollInterval: getEnvAsDuration("SYNC_INTERVAL", 60*time.Second),
		},
		Store: StoreConfig{
			Driver:     strings.ToLower(getEnv("STORE_DRIVER", "sqlite")),
			SQLitePath: getEnv("SQLITE_PATH", "data/inventory.db"),
			Couch: CouchConfig{
				Host:     getEnv("DB_HOST", "localhost"),
				Port:     getEnv("DB_PORT", "5984"),
				User:     getEnv("DB_USER", "admin"),
				Password: getEnv("DB_PASSWORD", "password"),
				Name:     getEnv("DB_NAME", "inventory"),
			},
		},
		Auth: AuthConfig{
			AccessKey:       getEnv("ACCESS_KEY", ""),
			JWTSecret:       getEnv("JWT_SECRET", "dev-secret-change-in-production"),
			TokenExpiration: getEnvAsDuration("JWT_EXPIRATION", 12*time.Hour),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:   getEnvAsInt("WS_READ_BUFFER_SIZE", 4096),
			WriteBufferSize:  getEnvAsInt("WS_WRITE_BUFFER_SIZE", 4096),
			WriteWait:        10 * time.Second,
			PongWait:         60 * time.Second,
			PingPeriod:       54 * time.Second,
			MaxConnPerClient: getEnvAsInt("WS_MAX_CONN_PER_CLIENT", 5),
		},
		Outbox: OutboxConfig{
			Timeout:     getEnvAsDuration("OUTBOX_TIMEOUT", 30*time.Second),
			MaxAttempts: getEnvAsInt("OUTBOX_MAX_ATTEMPTS", 1),
			Backoff:     getEnvAsDuration("OUTBOX_BACKOFF", 5*time.Second),
			QueueSize:   getEnvAsInt("OUTBOX_QUEUE_SIZE", 256),
		},
		Reconcile: ReconcileConfig{
			IDPrefix: getEnv("ID_PREFIX", "GEN-"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization,X-API-Key"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Gateway.URL == "" {
		return fmt.Errorf("SCRIPT_URL is required")
	}
	if c.Auth.AccessKey == "" {
		return fmt.Errorf("ACCESS_KEY is required")
	}
	switch c.Store.Driver {
	case "sqlite", "couch":
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q: want sqlite or couch", c.Store.Driver)
	}
	if c.Gateway.PollInterval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
