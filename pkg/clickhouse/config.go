package clickhouse

import (
	"errors"
	"time"
)

type ClientOption func(*ClientConfig)

// ClientConfig describes the journal database connection.
type ClientConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	DialTimeout time.Duration
	ReadTimeout time.Duration
	MaxExecTime time.Duration

	UseHTTP      bool
	AsyncInsert  bool
	WaitForAsync bool
}

func defaultClientConfig() ClientConfig {
	return ClientConfig{
		Port:            9000,
		Database:        "default",
		User:            "default",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     10 * time.Second,
	}
}

func (c ClientConfig) validate() error {
	switch {
	case c.Host == "":
		return errors.New("clickhouse: host is required")
	case c.Port <= 0:
		return errors.New("clickhouse: port must be positive")
	case c.MaxIdleConns > c.MaxOpenConns:
		return errors.New("clickhouse: idle connections exceed open connections")
	}
	return nil
}

// WithEndpoint sets where the journal database lives. Zero values keep defaults.
func WithEndpoint(host string, port int, database string) ClientOption {
	return func(c *ClientConfig) {
		c.Host = host
		if port > 0 {
			c.Port = port
		}
		if database != "" {
			c.Database = database
		}
	}
}

func WithCredentials(user, password string) ClientOption {
	return func(c *ClientConfig) {
		c.User, c.Password = user, password
	}
}

// WithPool bounds the database/sql pool.
func WithPool(maxOpen, maxIdle int, lifetime time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.MaxOpenConns, c.MaxIdleConns = maxOpen, maxIdle
		if lifetime > 0 {
			c.ConnMaxLifetime = lifetime
		}
	}
}

// WithTimeouts sets dial and read timeouts and the server-side query limit.
func WithTimeouts(dial, read, maxExec time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.DialTimeout, c.ReadTimeout, c.MaxExecTime = dial, read, maxExec
	}
}

// WithHTTP switches from the native protocol to the HTTP interface.
func WithHTTP(useHTTP bool) ClientOption {
	return func(c *ClientConfig) { c.UseHTTP = useHTTP }
}

// WithAsyncInsert lets the server buffer journal inserts; wait makes the
// insert return only after the buffer is flushed.
func WithAsyncInsert(enabled, wait bool) ClientOption {
	return func(c *ClientConfig) {
		c.AsyncInsert = enabled
		c.WaitForAsync = enabled && wait
	}
}
