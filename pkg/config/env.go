package config

import "sort"

const (
	EnvPrefix = "DUKALINK"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "DUKALINK_APP_ENV"
	EnvPort      = "DUKALINK_APP_PORT"
	EnvLogLevel  = "DUKALINK_LOG_LEVEL"
	EnvRedisURL  = "DUKALINK_REDIS_URL"
	EnvJWTSecret = "DUKALINK_JWT_SECRET"
	EnvJWTIssuer = "DUKALINK_JWT_ISSUER"

	EnvDBDSN  = "DUKALINK_DB_DSN"
	EnvDBHost = "DUKALINK_DB_HOST"
	EnvDBUser = "DUKALINK_DB_USER"
	EnvDBName = "DUKALINK_DB_NAME"

	EnvMpesaEnvironment    = "DUKALINK_MPESA_ENVIRONMENT"
	EnvMpesaConsumerKey    = "DUKALINK_MPESA_CONSUMER_KEY"
	EnvMpesaConsumerSecret = "DUKALINK_MPESA_CONSUMER_SECRET"
	EnvMpesaPasskey        = "DUKALINK_MPESA_PASSKEY"
	EnvMpesaCallbackURL    = "DUKALINK_MPESA_CALLBACK_URL"

	EnvSettlementCommissionRate = "DUKALINK_SETTLEMENT_COMMISSION_RATE"
	EnvPubSubDomainTopic        = "DUKALINK_PUBSUB_DOMAIN_TOPIC"
	EnvGCPProjectID             = "DUKALINK_GCP_PROJECT_ID"

	EnvCheckoutDispatchTimeout = "DUKALINK_CHECKOUT_DISPATCH_TIMEOUT"
	EnvMpesaRequestTimeout     = "DUKALINK_MPESA_REQUEST_TIMEOUT"
)

const (
	MpesaEnvSandbox    = "sandbox"
	MpesaEnvProduction = "production"

	MpesaSandboxURL    = "https://sandbox.safaricom.co.ke"
	MpesaProductionURL = "https://api.safaricom.co.ke"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

func sortedStrings(values []string) []string {
	sort.Strings(values)
	return values
}
