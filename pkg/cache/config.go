package cache

import "time"

type RedisOption func(*RedisConfig)

// RedisConfig describes the Redis connection used for shared state.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int
	PoolTimeout  time.Duration
	PingTimeout  time.Duration

	// Prefix namespaces every key, "<prefix>:<key>".
	Prefix string
}

func defaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  30 * time.Second,
		PingTimeout:  5 * time.Second,
		Prefix:       "signalpulse",
	}
}

// WithRedisEndpoint selects the server and logical database. An empty addr
// keeps the default.
func WithRedisEndpoint(addr, password string, db int) RedisOption {
	return func(c *RedisConfig) {
		if addr != "" {
			c.Addr = addr
		}
		c.Password, c.DB = password, db
	}
}

func WithRedisPool(size, minIdle int, timeout time.Duration) RedisOption {
	return func(c *RedisConfig) {
		c.PoolSize, c.MinIdleConns, c.PoolTimeout = size, minIdle, timeout
	}
}

// WithRedisPrefix replaces the key namespace; "" disables it.
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) { c.Prefix = prefix }
}

func WithRedisPingTimeout(d time.Duration) RedisOption {
	return func(c *RedisConfig) {
		if d > 0 {
			c.PingTimeout = d
		}
	}
}
