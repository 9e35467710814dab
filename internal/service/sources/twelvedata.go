package sources

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"SignalPulse/internal/domain/models"
)

// TwelveData serves metals and forex. It reports quota errors in the body
// with HTTP 200.
type TwelveData struct {
	base
}

func NewTwelveData(spec Spec, opts ...Option) *TwelveData {
	return &TwelveData{base: newBase(spec, "https://api.twelvedata.com", opts...)}
}

type twelveDataPrice struct {
	Price   decimal.Decimal `json:"price"`
	Status  string          `json:"status"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
}

func (s *TwelveData) FetchQuote(ctx context.Context, inst models.Instrument) (models.Quote, error) {
	var out twelveDataPrice
	err := s.get(ctx, "/price", map[string][]string{
		"symbol": {inst.SymbolFor(s.name)},
		"apikey": {s.apiKey},
	}, &out)
	if err != nil {
		return models.Quote{}, s.classify(inst.ID, err)
	}
	if out.Status == "error" {
		err := fmt.Errorf("twelvedata %d: %s", out.Code, out.Message)
		if out.Code == http.StatusTooManyRequests {
			return models.Quote{}, &models.RateLimitError{Source: s.name, Err: err}
		}
		return models.Quote{}, s.classify(inst.ID, err)
	}
	return s.quote(inst, out.Price, s.now())
}
