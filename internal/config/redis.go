package config

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis contains Redis connection parameters. Addr takes precedence over
// Host and Port.
type Redis struct {
	Addr     string `env:"ADDR"`
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     string `env:"PORT" envDefault:"6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	TLS      bool   `env:"TLS" envDefault:"false"`
}

// Address returns host:port of the server.
func (r Redis) Address() string {
	if r.Addr != "" {
		return r.Addr
	}
	return net.JoinHostPort(r.Host, r.Port)
}

// Options returns the go-redis client options.
func (r Redis) Options() *redis.Options {
	var tlsConf *tls.Config
	if r.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return &redis.Options{
		Addr:      r.Address(),
		Password:  r.Password,
		DB:        r.DB,
		TLSConfig: tlsConf,
	}
}

// NewRedisClient connects to Redis. It returns nil when the server
// cannot be reached; callers degrade to in-process stores.
func NewRedisClient(r Redis) *redis.Client {
	client := redis.NewClient(r.Options())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
