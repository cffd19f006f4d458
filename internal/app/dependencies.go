// Package app holds small constructors shared by the binaries under cmd.
package app

import (
	"github.com/alexedwards/argon2id"
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// HashPassword hashes a plaintext password with the default argon2id
// parameters. Both the API and the seeder must produce compatible hashes.
func HashPassword(password string) (string, error) {
	return argon2id.CreateHash(password, argon2id.DefaultParams)
}

// NewLimiterStore builds a Redis-backed store for ulule/limiter counters.
func NewLimiterStore(rdb *redis.Client) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{})
}
