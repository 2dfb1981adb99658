package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	Service   ServiceConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Features  FeatureFlagsConfig
	Solana    SolanaConfig
	Pricing   PricingConfig
	AI        AIConfig
	Vectorize VectorizeConfig
	Search    SearchConfig
	Saga      SagaConfig
	Analytics AnalyticsConfig
	GCP       GCPConfig
	BigQuery  BigQueryConfig
	Cron      CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if cfg.Analytics.BigQueryEnabled && strings.TrimSpace(cfg.GCP.ProjectID) == "" {
		return nil, fmt.Errorf("%s is required when %s is set", EnvGCPProjectID, EnvAnalyticsBigQuery)
	}
	if cfg.Pricing.BaseUnits <= 0 {
		return nil, fmt.Errorf("%s must be positive", EnvPricingBaseUnits)
	}
	return &cfg, nil
}

// LoadJWT reads only the token settings, for tooling that has no other dependencies.
func LoadJWT() (JWTConfig, error) {
	var cfg JWTConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return JWTConfig{}, fmt.Errorf("parsing jwt config: %w", err)
	}
	return cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"ADBOARD_APP_ENV" required:"true"`
	Port         string   `envconfig:"ADBOARD_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"ADBOARD_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"ADBOARD_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"ADBOARD_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ADBOARD_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ADBOARD_DB_DSN"`
	Driver string `envconfig:"ADBOARD_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ADBOARD_DB_HOST"`
	LegacyPort     int    `envconfig:"ADBOARD_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ADBOARD_DB_USER"`
	LegacyPassword string `envconfig:"ADBOARD_DB_PASSWORD"`
	LegacyName     string `envconfig:"ADBOARD_DB_NAME"`
	LegacySSLMode  string `envconfig:"ADBOARD_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ADBOARD_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ADBOARD_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ADBOARD_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ADBOARD_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ADBOARD_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ADBOARD_REDIS_ADDR"`
	Password     string        `envconfig:"ADBOARD_REDIS_PASSWORD"`
	DB           int           `envconfig:"ADBOARD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ADBOARD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ADBOARD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ADBOARD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ADBOARD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ADBOARD_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig guards the admin surface. Tokens are minted out of band.
type JWTConfig struct {
	Secret string        `envconfig:"ADBOARD_JWT_SECRET" required:"true"`
	Issuer string        `envconfig:"ADBOARD_JWT_ISSUER" default:"adboard"`
	TTL    time.Duration `envconfig:"ADBOARD_JWT_TTL" default:"1h"`
}

type RateLimitConfig struct {
	CreateWindow  time.Duration `envconfig:"ADBOARD_RATE_LIMIT_CREATE_WINDOW" default:"1m"`
	CreateIPLimit int           `envconfig:"ADBOARD_RATE_LIMIT_CREATE_IP_LIMIT" default:"10"`
	EventWindow   time.Duration `envconfig:"ADBOARD_RATE_LIMIT_EVENT_WINDOW" default:"1m"`
	EventIPLimit  int           `envconfig:"ADBOARD_RATE_LIMIT_EVENT_IP_LIMIT" default:"120"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ADBOARD_AUTO_MIGRATE" default:"false"`
}

type SolanaConfig struct {
	RPCURL               string        `envconfig:"ADBOARD_SOLANA_RPC_URL" required:"true"`
	TreasuryTokenAccount string        `envconfig:"ADBOARD_SOLANA_TREASURY_TOKEN_ACCOUNT" required:"true"`
	TokenMint            string        `envconfig:"ADBOARD_SOLANA_TOKEN_MINT"`
	TokenDecimals        int32         `envconfig:"ADBOARD_SOLANA_TOKEN_DECIMALS" default:"6"`
	Commitment           string        `envconfig:"ADBOARD_SOLANA_COMMITMENT" default:"confirmed"`
	RequestTimeout       time.Duration `envconfig:"ADBOARD_SOLANA_REQUEST_TIMEOUT" default:"10s"`
	FetchAttempts        int           `envconfig:"ADBOARD_SOLANA_FETCH_ATTEMPTS" default:"3"`
	InitialBackoff       time.Duration `envconfig:"ADBOARD_SOLANA_INITIAL_BACKOFF" default:"1s"`
	MaximumBackoff       time.Duration `envconfig:"ADBOARD_SOLANA_MAXIMUM_BACKOFF" default:"5s"`
	ToleranceUnits       int64         `envconfig:"ADBOARD_SOLANA_TOLERANCE_UNITS" default:"1"`
}

// PricingConfig values are expressed in the token's smallest unit.
type PricingConfig struct {
	BaseUnits       int64 `envconfig:"ADBOARD_PRICING_BASE_UNITS" default:"100000"`
	PerDayUnits     int64 `envconfig:"ADBOARD_PRICING_PER_DAY_UNITS" default:"50000"`
	MediaUnits      int64 `envconfig:"ADBOARD_PRICING_MEDIA_UNITS" default:"50000"`
	MaxDurationDays int   `envconfig:"ADBOARD_PRICING_MAX_DURATION_DAYS" default:"90"`
}

type AIConfig struct {
	AccountID      string        `envconfig:"ADBOARD_AI_ACCOUNT_ID" required:"true"`
	APIToken       string        `envconfig:"ADBOARD_AI_API_TOKEN" required:"true"`
	BaseURL        string        `envconfig:"ADBOARD_AI_BASE_URL" default:"https://api.cloudflare.com/client/v4"`
	TextModel      string        `envconfig:"ADBOARD_AI_TEXT_MODEL" default:"@cf/meta/llama-3.1-8b-instruct"`
	EmbeddingModel string        `envconfig:"ADBOARD_AI_EMBEDDING_MODEL" default:"@cf/baai/bge-base-en-v1.5"`
	MaxTokens      int           `envconfig:"ADBOARD_AI_MAX_TOKENS" default:"512"`
	Timeout        time.Duration `envconfig:"ADBOARD_AI_TIMEOUT" default:"30s"`
}

type VectorizeConfig struct {
	IndexName string        `envconfig:"ADBOARD_VECTORIZE_INDEX" required:"true"`
	BaseURL   string        `envconfig:"ADBOARD_VECTORIZE_BASE_URL" default:"https://api.cloudflare.com/client/v4"`
	TopK      int           `envconfig:"ADBOARD_VECTORIZE_TOP_K" default:"50"`
	Timeout   time.Duration `envconfig:"ADBOARD_VECTORIZE_TIMEOUT" default:"10s"`
}

type SearchConfig struct {
	DefaultLimit int `envconfig:"ADBOARD_SEARCH_DEFAULT_LIMIT" default:"20"`
	MaxLimit     int `envconfig:"ADBOARD_SEARCH_MAX_LIMIT" default:"50"`
}

type SagaConfig struct {
	Timeout             time.Duration `envconfig:"ADBOARD_SAGA_TIMEOUT" default:"90s"`
	RevalidatePayment   bool          `envconfig:"ADBOARD_SAGA_REVALIDATE_PAYMENT" default:"false"`
	CompensationTimeout time.Duration `envconfig:"ADBOARD_SAGA_COMPENSATION_TIMEOUT" default:"30s"`
}

type AnalyticsConfig struct {
	DedupWindow     time.Duration `envconfig:"ADBOARD_ANALYTICS_DEDUP_WINDOW" default:"30m"`
	BigQueryEnabled bool          `envconfig:"ADBOARD_ANALYTICS_BIGQUERY_ENABLED" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ADBOARD_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"ADBOARD_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ADBOARD_GOOGLE_APPLICATION_CREDENTIALS"`
}

type BigQueryConfig struct {
	Dataset       string `envconfig:"ADBOARD_BIGQUERY_DATASET" default:"adboard"`
	AdEventsTable string `envconfig:"ADBOARD_BIGQUERY_AD_TABLE" default:"ad_events"`
}

type CronConfig struct {
	Interval             time.Duration `envconfig:"ADBOARD_CRON_INTERVAL" default:"15m"`
	ExpiredRetentionDays int           `envconfig:"ADBOARD_CRON_EXPIRED_RETENTION_DAYS" default:"30"`
	CleanupBatchSize     int           `envconfig:"ADBOARD_CRON_CLEANUP_BATCH_SIZE" default:"200"`
	ReindexEnabled       bool          `envconfig:"ADBOARD_CRON_REINDEX_ENABLED" default:"true"`
	ReindexBatchSize     int           `envconfig:"ADBOARD_CRON_REINDEX_BATCH_SIZE" default:"100"`
	ReindexGracePeriod   time.Duration `envconfig:"ADBOARD_CRON_REINDEX_GRACE_PERIOD" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
