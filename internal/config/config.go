package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string // "development" | "production"

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	// Session/OTP state backend: "memory" (single process) or "dynamo".
	KVBackend string

	StripeSecretKey     string
	StripeWebhookSecret string

	CashfreeAppID     string
	CashfreeSecretKey string
	CashfreeBaseURL   string

	// Mock checkout flow. Ignored when AppEnv is "production"; adapters
	// with missing credentials fail NotConfigured there, never degrade.
	GatewayAllowMock bool

	AppBaseURL string

	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string

	// Optional operator notifications and webhook payload archive.
	SNSPaymentTopicARN string
	S3WebhookBucket    string

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users        string
	Videos       string
	Payments     string
	Entitlements string
	KV           string // TTL key-value table backing OTP/session state when KVBackend=dynamo
}

// Production reports whether the service runs in the production environment.
func (c *Config) Production() bool { return c.AppEnv == "production" }

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users:        getEnv("DYNAMO_TABLE_USERS", "users"),
			Videos:       getEnv("DYNAMO_TABLE_VIDEOS", "videos"),
			Payments:     getEnv("DYNAMO_TABLE_PAYMENTS", "payments"),
			Entitlements: getEnv("DYNAMO_TABLE_ENTITLEMENTS", "entitlements"),
			KV:           getEnv("DYNAMO_TABLE_KV", "gate_kv"),
		},

		KVBackend: getEnv("KV_BACKEND", "memory"),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		CashfreeAppID:     getEnv("CASHFREE_APP_ID", ""),
		CashfreeSecretKey: getEnv("CASHFREE_SECRET_KEY", ""),
		CashfreeBaseURL:   getEnv("CASHFREE_BASE_URL", "https://sandbox.cashfree.com"),

		GatewayAllowMock: getEnv("GATEWAY_ALLOW_MOCK", "") == "1",

		AppBaseURL: getEnv("APP_BASE_URL", "http://localhost:3000"),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnv("SMTP_PORT", "1025"),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		SNSPaymentTopicARN: getEnv("SNS_PAYMENT_TOPIC_ARN", ""),
		S3WebhookBucket:    getEnv("S3_WEBHOOK_BUCKET", ""),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
