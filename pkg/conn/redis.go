package conn

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"calc/internal/errors"
	"calc/pkg/exception"
)

// RedisOption defines connection options for Redis.
type RedisOption struct {
	Address     string        `yaml:"address"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	Prefix      string        `yaml:"prefix"`
	DialTimeout time.Duration `yaml:"dialTimeout"`
}

// NewRedis connects to Redis and checks it answers.
func NewRedis(ctx context.Context, option RedisOption) (*redis.Client, error) {
	if option.Address == "" {
		return nil, errors.Wrap(exception.ErrEmptyConnection, "redis")
	}
	client := redis.NewClient(&redis.Options{
		Addr:        option.Address,
		Password:    option.Password,
		DB:          option.DB,
		DialTimeout: option.DialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis %s", option.Address)
	}
	return client, nil
}
