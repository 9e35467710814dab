package clickhouse

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(ClientConfig{
		Host: "ch.local", Port: 9000, Database: "signalpulse", User: "svc", Password: "p@ss",
		DialTimeout: 5 * time.Second, MaxExecTime: 30 * time.Second, AsyncInsert: true, WaitForAsync: true,
	})
	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "clickhouse", u.Scheme)
	assert.Equal(t, "ch.local:9000", u.Host)
	assert.Equal(t, "/signalpulse", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss", pw)
	assert.Equal(t, "5s", u.Query().Get("dial_timeout"))
	assert.Equal(t, "30", u.Query().Get("max_execution_time"))
	assert.Equal(t, "1", u.Query().Get("wait_for_async_insert"))
}

func TestBuildDSNHTTP(t *testing.T) {
	dsn := buildDSN(ClientConfig{Host: "ch", Port: 8123, Database: "db", User: "default", UseHTTP: true})
	assert.Contains(t, dsn, "http://default:@ch:8123/db")
	assert.NotContains(t, dsn, "async_insert")
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient()
	assert.Error(t, err)
}

func TestClientOptions(t *testing.T) {
	cfg := defaultClientConfig()
	for _, opt := range []ClientOption{
		WithEndpoint("ch", 0, ""),
		WithPool(4, 2, 0),
		WithAsyncInsert(false, true),
		WithTimeouts(time.Second, 2*time.Second, 0),
	} {
		opt(&cfg)
	}
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "default", cfg.Database)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
	assert.False(t, cfg.WaitForAsync, "wait needs async insert")
	assert.NoError(t, cfg.validate())

	WithPool(1, 3, 0)(&cfg)
	assert.ErrorContains(t, cfg.validate(), "idle")
}
