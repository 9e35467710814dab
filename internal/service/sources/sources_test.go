package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalPulse/internal/domain/models"
	"SignalPulse/pkg/logger"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func serve(t *testing.T, path string, body string, status int, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

var (
	btc = models.Instrument{ID: "BTCUSDT", Category: models.CategoryCrypto, Source: "binance", Fallback: "coingecko",
		Symbols: map[string]string{"coingecko": "bitcoin"}}
	eth = models.Instrument{ID: "ETHUSDT", Category: models.CategoryCrypto, Source: "binance", Fallback: "coingecko",
		Symbols: map[string]string{"coingecko": "ethereum"}}
	eurusd = models.Instrument{ID: "EURUSD", Category: models.CategoryForex, Source: "exchangerate",
		Symbols: map[string]string{"exchangerate": "EUR/USD", "twelvedata": "EUR/USD"}}
	gold = models.Instrument{ID: "XAUUSD", Category: models.CategoryMetal, Source: "twelvedata",
		Symbols: map[string]string{"twelvedata": "XAU/USD"}}
)

func TestBinanceFetchQuote(t *testing.T) {
	srv := serve(t, "/api/v3/ticker/price", `{"symbol":"BTCUSDT","price":"50123.45000000"}`, http.StatusOK, nil)
	s := NewBinance(Spec{Name: "binance", Kind: KindBinance, BaseURL: srv.URL}, WithClock(clock))

	q, err := s.FetchQuote(context.Background(), btc)
	require.NoError(t, err)
	assert.Equal(t, "binance", q.Source)
	assert.Equal(t, "BTCUSDT", q.InstrumentID)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("50123.45")))
	assert.Equal(t, fixedNow, q.Timestamp)
}

func TestBinanceErrorsAreClassified(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		rateLimit bool
	}{
		{"too many requests", http.StatusTooManyRequests, `{"code":-1003}`, true},
		{"ip banned", http.StatusTeapot, `{"code":-1003}`, true},
		{"server error", http.StatusBadGateway, `bad gateway`, false},
		{"zero price", http.StatusOK, `{"symbol":"BTCUSDT","price":"0"}`, false},
		{"wrong symbol", http.StatusOK, `{"symbol":"ETHUSDT","price":"3000"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, "/api/v3/ticker/price", tt.body, tt.status, nil)
			s := NewBinance(Spec{Name: "binance", BaseURL: srv.URL})
			_, err := s.FetchQuote(context.Background(), btc)
			require.Error(t, err)
			assert.Equal(t, tt.rateLimit, models.IsRateLimit(err))
			if !tt.rateLimit {
				var tf *models.TransientFetchError
				assert.ErrorAs(t, err, &tf)
			}
		})
	}
}

func TestCoinGeckoBatchesIDs(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "bitcoin,ethereum", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":50010.5},"ethereum":{"usd":3001}}`))
	}))
	defer srv.Close()

	s := NewCoinGecko(Spec{Name: "coingecko", BaseURL: srv.URL, CacheTTL: time.Minute}, []models.Instrument{eth, btc}, WithClock(clock))
	qb, err := s.FetchQuote(context.Background(), btc)
	require.NoError(t, err)
	qe, err := s.FetchQuote(context.Background(), eth)
	require.NoError(t, err)

	assert.True(t, qb.Price.Equal(decimal.RequireFromString("50010.5")))
	assert.True(t, qe.Price.Equal(decimal.NewFromInt(3001)))
	assert.Equal(t, int32(1), hits.Load())
}

func TestCoinGeckoMissingCoin(t *testing.T) {
	srv := serve(t, "/simple/price", `{"bitcoin":{"eur":1}}`, http.StatusOK, nil)
	s := NewCoinGecko(Spec{Name: "coingecko", BaseURL: srv.URL}, []models.Instrument{btc, eth})
	_, err := s.FetchQuote(context.Background(), btc)
	assert.ErrorContains(t, err, "no usd price")
	_, err = s.FetchQuote(context.Background(), eth)
	assert.ErrorContains(t, err, "missing")
}

func TestExchangeRateSharesTablePerBase(t *testing.T) {
	var hits atomic.Int32
	srv := serve(t, "/latest/EUR", `{"base":"EUR","time_last_updated":1740830400,"rates":{"USD":1.08315,"JPY":162.1}}`, http.StatusOK, &hits)
	s := NewExchangeRate(Spec{Name: "exchangerate", BaseURL: srv.URL, CacheTTL: time.Minute}, WithClock(clock))

	q, err := s.FetchQuote(context.Background(), eurusd)
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("1.08315")))

	eurjpy := models.Instrument{ID: "EURJPY", Symbols: map[string]string{"exchangerate": "EURJPY"}}
	q, err = s.FetchQuote(context.Background(), eurjpy)
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("162.1")))
	assert.Equal(t, int32(1), hits.Load())

	bad := models.Instrument{ID: "EURXXX", Symbols: map[string]string{"exchangerate": "EUR/XXX"}}
	_, err = s.FetchQuote(context.Background(), bad)
	assert.ErrorContains(t, err, "no XXX rate")
}

func TestSplitPair(t *testing.T) {
	b, q, err := splitPair("usd/jpy")
	require.NoError(t, err)
	assert.Equal(t, "USD", b)
	assert.Equal(t, "JPY", q)

	_, _, err = splitPair("GOLD")
	assert.Error(t, err)
}

func TestTwelveData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-1", r.URL.Query().Get("apikey"))
		switch r.URL.Query().Get("symbol") {
		case "XAU/USD":
			_, _ = w.Write([]byte(`{"price":"2345.10000"}`))
		case "EUR/USD":
			_, _ = w.Write([]byte(`{"code":429,"message":"You have run out of API credits","status":"error"}`))
		default:
			_, _ = w.Write([]byte(`{"code":400,"message":"symbol not found","status":"error"}`))
		}
	}))
	defer srv.Close()

	s := NewTwelveData(Spec{Name: "twelvedata", BaseURL: srv.URL, APIKey: "key-1"}, WithClock(clock))
	q, err := s.FetchQuote(context.Background(), gold)
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("2345.1")))

	_, err = s.FetchQuote(context.Background(), eurusd)
	assert.True(t, models.IsRateLimit(err))

	_, err = s.FetchQuote(context.Background(), models.Instrument{ID: "NOPE"})
	require.Error(t, err)
	assert.False(t, models.IsRateLimit(err))
	assert.Contains(t, err.Error(), "symbol not found")
}

func TestNewByKind(t *testing.T) {
	for _, kind := range []string{KindBinance, KindCoinGecko, KindExchangeRate} {
		src, err := New(Spec{Name: kind, Kind: kind}, nil, logger.Nop())
		require.NoError(t, err)
		assert.Equal(t, kind, src.Name())
	}
	_, err := New(Spec{Name: "td", Kind: KindTwelveData}, nil, logger.Nop())
	assert.Error(t, err)
	src, err := New(Spec{Name: "fh", Kind: KindFinnhub, APIKey: "k"}, []models.Instrument{btc}, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, "fh", src.Name())
	_, err = New(Spec{Name: "x", Kind: "bloomberg"}, nil, logger.Nop())
	assert.Error(t, err)
}
