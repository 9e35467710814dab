package sources

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"SignalPulse/internal/domain/models"
)

// Binance reads the public spot ticker.
type Binance struct {
	base
}

func NewBinance(spec Spec, opts ...Option) *Binance {
	return &Binance{base: newBase(spec, "https://api.binance.com", opts...)}
}

type binanceTicker struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

func (s *Binance) FetchQuote(ctx context.Context, inst models.Instrument) (models.Quote, error) {
	symbol := inst.SymbolFor(s.name)
	var t binanceTicker
	err := s.get(ctx, "/api/v3/ticker/price", map[string][]string{"symbol": {symbol}}, &t)
	if err != nil {
		return models.Quote{}, s.classify(inst.ID, err)
	}
	if t.Symbol != "" && t.Symbol != symbol {
		return models.Quote{}, s.classify(inst.ID, fmt.Errorf("ticker for %s, asked %s", t.Symbol, symbol))
	}
	return s.quote(inst, t.Price, s.now())
}
