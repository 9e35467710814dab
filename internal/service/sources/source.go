// Package sources holds the provider adapters behind the QuoteSource contract.
package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"SignalPulse/internal/domain/models"
	drepo "SignalPulse/internal/domain/repository"
	"SignalPulse/internal/service/cache"
	"SignalPulse/internal/service/finnhub"
	pkghttp "SignalPulse/pkg/http"
	"SignalPulse/pkg/logger"
)

const (
	KindBinance      = "binance"
	KindCoinGecko    = "coingecko"
	KindExchangeRate = "exchangerate"
	KindTwelveData   = "twelvedata"
	KindFinnhub      = "finnhub"
)

// Spec describes one configured provider.
type Spec struct {
	Name     string
	Kind     string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Option tweaks the shared adapter plumbing.
type Option func(*base)

// WithClient replaces the HTTP client.
func WithClient(c *pkghttp.Client) Option {
	return func(b *base) { b.client = c }
}

// WithClock sets the clock used to stamp quotes that carry no provider time.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

type base struct {
	name    string
	baseURL string
	apiKey  string
	client  *pkghttp.Client
	tables  *cache.Tables
	now     func() time.Time
}

func newBase(spec Spec, defaultURL string, opts ...Option) base {
	b := base{
		name:    spec.Name,
		baseURL: strings.TrimRight(spec.BaseURL, "/"),
		apiKey:  spec.APIKey,
		tables:  cache.NewTables(spec.CacheTTL),
		now:     time.Now,
	}
	if b.name == "" {
		b.name = spec.Kind
	}
	if b.baseURL == "" {
		b.baseURL = defaultURL
	}
	for _, opt := range opts {
		opt(&b)
	}
	if b.client == nil {
		timeout := spec.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		b.client = pkghttp.NewClient(pkghttp.WithTimeout(timeout))
	}
	return b
}

func (b *base) Name() string { return b.name }

func (b *base) get(ctx context.Context, path string, query map[string][]string, dest interface{}) error {
	return b.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method:      pkghttp.MethodGet,
		URL:         b.baseURL + path,
		QueryParams: query,
	}, dest)
}

// classify turns a transport error into the domain taxonomy.
func (b *base) classify(instrument string, err error) error {
	var se *pkghttp.StatusError
	if errors.As(err, &se) && se.TooManyRequests() {
		return &models.RateLimitError{Source: b.name, RetryAfter: se.RetryAfter, Err: err}
	}
	if models.IsRateLimit(err) {
		return err
	}
	return &models.TransientFetchError{Source: b.name, Instrument: instrument, Err: err}
}

func (b *base) quote(inst models.Instrument, p decimal.Decimal, at time.Time) (models.Quote, error) {
	if !p.IsPositive() {
		return models.Quote{}, b.classify(inst.ID, fmt.Errorf("non-positive price %s", p))
	}
	if at.IsZero() {
		at = b.now()
	}
	return models.Quote{InstrumentID: inst.ID, Source: b.name, Price: p, Timestamp: at.UTC()}, nil
}

// New builds the adapter for spec.Kind. instruments are the ones this source
// may be asked for; batching adapters use them to request every symbol at once.
func New(spec Spec, instruments []models.Instrument, log *logger.Logger, opts ...Option) (drepo.QuoteSource, error) {
	switch spec.Kind {
	case KindBinance:
		return NewBinance(spec, opts...), nil
	case KindCoinGecko:
		return NewCoinGecko(spec, instruments, opts...), nil
	case KindExchangeRate:
		return NewExchangeRate(spec, opts...), nil
	case KindTwelveData:
		if spec.APIKey == "" {
			return nil, fmt.Errorf("%s: api key required", spec.Name)
		}
		return NewTwelveData(spec, opts...), nil
	case KindFinnhub:
		if spec.APIKey == "" {
			return nil, fmt.Errorf("%s: api key required", spec.Name)
		}
		symbols := make([]string, 0, len(instruments))
		for _, in := range instruments {
			symbols = append(symbols, in.SymbolFor(spec.Name))
		}
		return finnhub.New(spec.Name, spec.APIKey, spec.BaseURL, symbols, log), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", spec.Kind)
	}
}
