package ratelimit

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"SignalPulse/internal/domain/models"
	drepo "SignalPulse/internal/domain/repository"
)

// Source puts a token bucket in front of a QuoteSource. A fetch that cannot
// get a token before its context deadline fails as a rate limit without
// calling the provider.
type Source struct {
	inner drepo.QuoteSource
	lim   *rate.Limiter
}

// Wrap limits src to rps requests per second with the given burst.
func Wrap(src drepo.QuoteSource, rps float64, burst int) *Source {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &Source{inner: src, lim: rate.NewLimiter(limit, burst)}
}

func (s *Source) Name() string { return s.inner.Name() }

func (s *Source) FetchQuote(ctx context.Context, inst models.Instrument) (models.Quote, error) {
	if err := s.lim.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return models.Quote{}, err
		}
		return models.Quote{}, &models.RateLimitError{Source: s.inner.Name(), Err: err}
	}
	return s.inner.FetchQuote(ctx, inst)
}

// Allow reports whether a token is available right now without consuming it.
func (s *Source) Allow() bool { return s.lim.Tokens() >= 1 }

// Start and Close forward to the wrapped source when it holds a connection.
func (s *Source) Start(ctx context.Context) error {
	if lc, ok := s.inner.(drepo.Lifecycle); ok {
		return lc.Start(ctx)
	}
	return nil
}

func (s *Source) Close() error {
	if lc, ok := s.inner.(drepo.Lifecycle); ok {
		return lc.Close()
	}
	return nil
}

var (
	_ drepo.QuoteSource = (*Source)(nil)
	_ drepo.Lifecycle   = (*Source)(nil)
)
