package config

const (
	EnvPrefix = "ADBOARD"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv = "ADBOARD_APP_ENV"
	EnvPort   = "ADBOARD_APP_PORT"

	EnvDBDSN  = "ADBOARD_DB_DSN"
	EnvDBHost = "ADBOARD_DB_HOST"
	EnvDBUser = "ADBOARD_DB_USER"
	EnvDBName = "ADBOARD_DB_NAME"

	EnvRedisURL = "ADBOARD_REDIS_URL"

	EnvJWTSecret = "ADBOARD_JWT_SECRET"

	EnvSolanaRPCURL          = "ADBOARD_SOLANA_RPC_URL"
	EnvSolanaTreasuryAccount = "ADBOARD_SOLANA_TREASURY_TOKEN_ACCOUNT"
	EnvPricingBaseUnits      = "ADBOARD_PRICING_BASE_UNITS"
	EnvAIAccountID           = "ADBOARD_AI_ACCOUNT_ID"
	EnvAIAPIToken            = "ADBOARD_AI_API_TOKEN"
	EnvVectorizeIndex        = "ADBOARD_VECTORIZE_INDEX"
	EnvAnalyticsBigQuery     = "ADBOARD_ANALYTICS_BIGQUERY_ENABLED"
	EnvGCPProjectID          = "ADBOARD_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
