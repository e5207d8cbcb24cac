package cache

import (
	"crypto/tls"
	"time"
)

// Config holds the Redis connection settings shared by the entity and
// conversation stores.
type Config struct {
	URL      string
	Host     string
	Port     string
	Password string
	DB       int

	PoolSize        int
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
	PingTimeout     time.Duration

	TLSEnabled bool
	TLSConfig  *tls.Config
}

func DefaultConfig() *Config {
	return &Config{
		Host:         "localhost",
		Port:         "6379",
		DB:           0,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   3,
		PingTimeout:  10 * time.Second,
	}
}
