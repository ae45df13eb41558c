package database

import (
	"context"

	"github.com/go-redis/redis/v8"
	logger "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// InitRedis connects the Redis client used for the session revocation
// denylist. Redis is optional: a nil return disables the denylist check
// rather than taking the service down.
func InitRedis() *redis.Client {
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	addr := viper.GetString("redis.host") + ":" + viper.GetString("redis.port")
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.WithError(err).Warn("Redis connection failed, continuing without revocation checks")
		return nil
	}

	logger.Info("Redis connection established")
	return rdb
}
