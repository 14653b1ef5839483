package redis

import (
	"context"
	"fmt"

	r "github.com/redis/go-redis/v9"
)

// Reexport go-redis's Nil constant for DX purposes.
const (
	Nil = r.Nil
)

type (
	Cmdable   = r.Cmdable
	Pipeliner = r.Pipeliner
)

type Client interface {
	Cmdable
	Close() error
}

type Config struct {
	Host     string `yaml:"host" env:"REDIS_HOST"`
	Port     int    `yaml:"port" env:"REDIS_PORT"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	Database int    `yaml:"database" env:"REDIS_DATABASE"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewClient creates a Redis client and verifies connectivity.
func NewClient(ctx context.Context, config *Config) (Client, error) {
	client := r.NewClient(&r.Options{
		Addr:     config.Addr(),
		Password: config.Password,
		DB:       config.Database,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}
