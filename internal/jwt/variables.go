package jwt

import (
	"time"

	"lead-routing-backend/internal/env"

	"github.com/go-redis/redis/v8"
)

var RedisClient *redis.Client

const RefreshTokenTTL = 24 * 30 * time.Hour

const (
	RoleAgent Role = iota
)

var roleSecrets = map[Role]string{}

func init() {
	roleSecrets[RoleAgent] = env.Get(env.AgentSecretKey)

	RedisClient = redis.NewClient(&redis.Options{
		Addr:     env.Get(env.AuthRedisURL),
		Password: env.Get(env.AuthRedisPass),
		DB:       0,
	})
}

// SetRoleSecret overrides the signing secret, mainly for tests.
func SetRoleSecret(role Role, secret string) {
	roleSecrets[role] = secret
}
