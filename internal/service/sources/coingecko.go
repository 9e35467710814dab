package sources

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"SignalPulse/internal/domain/models"
)

// CoinGecko asks for every configured coin id in one simple/price call and
// serves the rest of the poll cycle from the cached table.
type CoinGecko struct {
	base
	ids []string
}

func NewCoinGecko(spec Spec, instruments []models.Instrument, opts ...Option) *CoinGecko {
	s := &CoinGecko{base: newBase(spec, "https://api.coingecko.com/api/v3", opts...)}
	seen := make(map[string]bool)
	for _, in := range instruments {
		id := strings.ToLower(in.SymbolFor(s.name))
		if !seen[id] {
			seen[id] = true
			s.ids = append(s.ids, id)
		}
	}
	sort.Strings(s.ids)
	return s
}

type geckoPrices map[string]map[string]decimal.Decimal

func (s *CoinGecko) FetchQuote(ctx context.Context, inst models.Instrument) (models.Quote, error) {
	id := strings.ToLower(inst.SymbolFor(s.name))
	ids := s.ids
	if !contains(ids, id) {
		ids = append(append([]string{}, ids...), id)
	}

	v, err := s.tables.Get(strings.Join(ids, ","), func() (interface{}, error) {
		var out geckoPrices
		err := s.get(ctx, "/simple/price", map[string][]string{
			"ids":           {strings.Join(ids, ",")},
			"vs_currencies": {"usd"},
		}, &out)
		return out, err
	})
	if err != nil {
		return models.Quote{}, s.classify(inst.ID, err)
	}

	row, ok := v.(geckoPrices)[id]
	if !ok {
		return models.Quote{}, s.classify(inst.ID, fmt.Errorf("coin %q missing from response", id))
	}
	price, ok := row["usd"]
	if !ok {
		return models.Quote{}, s.classify(inst.ID, fmt.Errorf("coin %q has no usd price", id))
	}
	return s.quote(inst, price, s.now())
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
