package env

import (
	"os"
)

const (
	AWSRegion        = "AWS_REGION"
	AWSID            = "AWS_ID"
	AWSSecret        = "AWS_SECRET"
	AWSToken         = "AWS_TOKEN"
	DynamoDBEndpoint = "DYNAMODB_ENDPOINT"
	AgentSecretKey   = "AGENT_SECRET"
	AuthRedisURL     = "AUTH_REDIS_URL"
	AuthRedisPass    = "AUTH_REDIS_PASS"
	ChatRedisURL     = "CHAT_REDIS_URL"
	ChatRedisPass    = "CHAT_REDIS_PASS"
	AMQPURL          = "AMQP_URL"
	WebUrl           = "WEB_URL"

	WebhookVerifyToken = "WEBHOOK_VERIFY_TOKEN"
	ProviderAPIURL     = "PROVIDER_API_URL"
	ProviderAPIToken   = "PROVIDER_API_TOKEN"
	DefaultPipeline    = "DEFAULT_PIPELINE"
	PostSalesPipeline  = "POST_SALES_PIPELINE"
)

// Required lists the variables every binary refuses to boot without.
// Checked from main rather than at package init so importing this
// package never panics in tests.
var Required = []string{
	AWSRegion,
	AgentSecretKey,
	ChatRedisURL,
	WebhookVerifyToken,
}

func MustBoot() {
	for _, key := range Required {
		if os.Getenv(key) == "" {
			panic("env: required environment variable not set: " + key)
		}
	}
}

func Get(key string) string {
	return os.Getenv(key)
}

func GetOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func MustGet(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic("env: required environment variable not set: " + key)
	}
	return val
}
