package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"SignalPulse/internal/domain/models"
)

// ExchangeRate reads forex pairs from one rate table per base currency.
// Instrument symbols take the form "EUR/USD".
type ExchangeRate struct {
	base
}

func NewExchangeRate(spec Spec, opts ...Option) *ExchangeRate {
	return &ExchangeRate{base: newBase(spec, "https://api.exchangerate-api.com/v4", opts...)}
}

type rateTable struct {
	Base    string                     `json:"base"`
	Updated int64                      `json:"time_last_updated"`
	Rates   map[string]decimal.Decimal `json:"rates"`
}

func (s *ExchangeRate) FetchQuote(ctx context.Context, inst models.Instrument) (models.Quote, error) {
	baseCcy, quoteCcy, err := splitPair(inst.SymbolFor(s.name))
	if err != nil {
		return models.Quote{}, s.classify(inst.ID, err)
	}

	v, err := s.tables.Get(baseCcy, func() (interface{}, error) {
		var t rateTable
		err := s.get(ctx, "/latest/"+baseCcy, nil, &t)
		return t, err
	})
	if err != nil {
		return models.Quote{}, s.classify(inst.ID, err)
	}

	t := v.(rateTable)
	rate, ok := t.Rates[quoteCcy]
	if !ok {
		return models.Quote{}, s.classify(inst.ID, fmt.Errorf("no %s rate in %s table", quoteCcy, baseCcy))
	}
	return s.quote(inst, rate, s.now())
}

func splitPair(symbol string) (string, string, error) {
	parts := strings.Split(strings.ToUpper(symbol), "/")
	if len(parts) != 2 && len(symbol) == 6 {
		parts = []string{strings.ToUpper(symbol[:3]), strings.ToUpper(symbol[3:])}
	}
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("bad currency pair %q", symbol)
	}
	return parts[0], parts[1], nil
}
