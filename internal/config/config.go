package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Storage  StorageConfig
	Postgres PostgresConfig
	SQLite   SQLiteConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Gateway  GatewayConfig
	Snapshot SnapshotConfig
	Router   RouterConfig
	AI       AIConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// StorageConfig selects the backend of the session table.
type StorageConfig struct {
	Driver string // postgres | sqlite | memory
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// SQLiteConfig holds the embedded database location.
type SQLiteConfig struct {
	Path          string
	RunMigrations bool
}

// RedisConfig holds Redis connection values. Addr may list several
// comma-separated cluster nodes.
type RedisConfig struct {
	Addr       string
	MasterName string
	Password   string
	DB         int
	KeyPrefix  string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines adapter authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	ClientID              string
	ClientSecretHash      string
	OperatorID            string
	OperatorSecretHash    string
	BcryptCost            int
}

// Enabled reports whether the adapter API requires a bearer token.
func (a AuthConfig) Enabled() bool {
	return a.ClientSecretHash != ""
}

// GatewayConfig describes where outbound deliveries are pushed.
type GatewayConfig struct {
	Kind            string // none | log | webhook | stream
	WebhookURL      string
	WebhookTimeout  time.Duration
	StreamTopic     string
	Workers         int
	QueueSize       int
	ResponderPoolID int64
}

// SnapshotConfig describes where auxiliary per-identity state is snapshotted.
type SnapshotConfig struct {
	Sink          string // file | redis | none
	Path          string
	RedisKey      string
	Codec         string // json | cbor
	FlushInterval time.Duration
}

// RouterConfig holds router policies layered on top of the core.
type RouterConfig struct {
	SweepWaitingAfter time.Duration
	SweepInterval     time.Duration
	SelfHelpWorkers   int
	SelfHelpPrompt    string
}

// AIConfig configures the self-help chat model.
type AIConfig struct {
	BaseURL     string
	Region      string
	APIKey      string
	Model       string
	Temperature *float64
	MaxTokens   *int
	Timeout     time.Duration
	HistorySize int
}

// Enabled reports whether enough credentials exist to build a chat model.
func (a AIConfig) Enabled() bool {
	return a.APIKey != "" && a.Model != ""
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	poolID, err := strconv.ParseInt(getEnv("GATEWAY_RESPONDER_POOL_ID", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid GATEWAY_RESPONDER_POOL_ID: %w", err)
	}
	temperature, err := getEnvAsOptionalFloat("AI_TEMPERATURE")
	if err != nil {
		return nil, err
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	var maxTokens *int
	if v := getEnvAsInt("AI_MAX_TOKENS", 500); v > 0 {
		maxTokens = &v
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-router"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Storage: StorageConfig{
			Driver: getEnv("STORAGE_DRIVER", "sqlite"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		SQLite: SQLiteConfig{
			Path:          getEnv("SQLITE_PATH", "support-router.db"),
			RunMigrations: getEnvAsBool("SQLITE_RUN_MIGRATIONS", true),
		},
		Redis: RedisConfig{
			Addr:       getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			MasterName: os.Getenv("REDIS_MASTER_NAME"),
			Password:   os.Getenv("REDIS_PASSWORD"),
			DB:         redisDB,
			KeyPrefix:  os.Getenv("REDIS_KEY_PREFIX"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			ClientID:              getEnv("AUTH_CLIENT_ID", "platform-adapter"),
			ClientSecretHash:      os.Getenv("AUTH_CLIENT_SECRET_HASH"),
			OperatorID:            getEnv("AUTH_OPERATOR_ID", "operator"),
			OperatorSecretHash:    os.Getenv("AUTH_OPERATOR_SECRET_HASH"),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Gateway: GatewayConfig{
			Kind:            getEnv("GATEWAY_KIND", "none"),
			WebhookURL:      getEnv("GATEWAY_WEBHOOK_URL", ""),
			WebhookTimeout:  getEnvAsDuration("GATEWAY_WEBHOOK_TIMEOUT", 10*time.Second),
			StreamTopic:     getEnv("GATEWAY_STREAM_TOPIC", "support.deliveries"),
			Workers:         getEnvAsInt("GATEWAY_WORKERS", 4),
			QueueSize:       getEnvAsInt("GATEWAY_QUEUE_SIZE", 256),
			ResponderPoolID: poolID,
		},
		Snapshot: SnapshotConfig{
			Sink:          getEnv("SNAPSHOT_SINK", "file"),
			Path:          getEnv("SNAPSHOT_PATH", "state.json"),
			RedisKey:      getEnv("SNAPSHOT_REDIS_KEY", "support-router:state"),
			Codec:         getEnv("SNAPSHOT_CODEC", "json"),
			FlushInterval: getEnvAsDuration("SNAPSHOT_FLUSH_INTERVAL", 500*time.Millisecond),
		},
		Router: RouterConfig{
			SweepWaitingAfter: getEnvAsDuration("ROUTER_SWEEP_WAITING_AFTER", 0),
			SweepInterval:     getEnvAsDuration("ROUTER_SWEEP_INTERVAL", time.Minute),
			SelfHelpWorkers:   getEnvAsInt("ROUTER_SELF_HELP_WORKERS", 2),
			SelfHelpPrompt:    getEnv("ROUTER_SELF_HELP_PROMPT", DefaultSelfHelpPrompt),
		},
		AI: AIConfig{
			BaseURL:     getEnv("AI_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
			Region:      getEnv("AI_REGION", "cn-beijing"),
			APIKey:      os.Getenv("AI_API_KEY"),
			Model:       os.Getenv("AI_MODEL"),
			Temperature: temperature,
			MaxTokens:   maxTokens,
			Timeout:     getEnvAsDuration("AI_TIMEOUT", 60*time.Second),
			HistorySize: getEnvAsInt("AI_HISTORY_SIZE", 20),
		},
	}

	return cfg, nil
}

// DefaultSelfHelpPrompt keeps the assistant within emotional self-help topics.
const DefaultSelfHelpPrompt = "You are a kind assistant for psychology, psychotherapy and emotional self-help. " +
	"Answer only within these topics; if the question drifts elsewhere, gently return to how the person feels. " +
	"Never diagnose or prescribe, and remind that answers do not replace an in-person consultation. " +
	"If you notice signs of immediate risk, ask the person to contact local emergency services or a hotline. " +
	"Write briefly, warmly and simply; suggest safe self-help techniques."

// Validate rejects unknown backend selections.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("config: STORAGE_DRIVER=postgres requires POSTGRES_DSN")
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			return fmt.Errorf("config: STORAGE_DRIVER=sqlite requires SQLITE_PATH")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}

	switch c.Snapshot.Sink {
	case "file", "redis", "none":
	default:
		return fmt.Errorf("config: unknown SNAPSHOT_SINK %q", c.Snapshot.Sink)
	}
	switch c.Snapshot.Codec {
	case "json", "cbor":
	default:
		return fmt.Errorf("config: unknown SNAPSHOT_CODEC %q", c.Snapshot.Codec)
	}

	if c.Auth.Enabled() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("config: AUTH_CLIENT_SECRET_HASH requires AUTH_JWT_SECRET")
	}

	switch c.Gateway.Kind {
	case "none", "log", "stream":
	case "webhook":
		if c.Gateway.WebhookURL == "" {
			return fmt.Errorf("config: GATEWAY_KIND=webhook requires GATEWAY_WEBHOOK_URL")
		}
	default:
		return fmt.Errorf("config: unknown GATEWAY_KIND %q", c.Gateway.Kind)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsOptionalFloat(key string) (*float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return &parsed, nil
}
