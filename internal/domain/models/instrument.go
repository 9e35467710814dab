package models

// Category groups instruments with similar volatility.
type Category string

const (
	CategoryCrypto Category = "crypto"
	CategoryMetal  Category = "metal"
	CategoryForex  Category = "forex"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryCrypto, CategoryMetal, CategoryForex:
		return true
	default:
		return false
	}
}

// Instrument is a tradable asset tracked by the engine. Defined at startup, never mutated.
type Instrument struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Category  Category          `json:"category"`
	Source    string            `json:"source"`
	Fallback  string            `json:"fallback,omitempty"`
	Precision int32             `json:"precision"`
	Symbols   map[string]string `json:"-"` // provider name -> provider symbol
}

// SymbolFor returns the symbol a provider knows this instrument by.
func (i Instrument) SymbolFor(source string) string {
	if s, ok := i.Symbols[source]; ok && s != "" {
		return s
	}
	return i.ID
}

// Sources lists the primary source followed by the fallback, if any.
func (i Instrument) Sources() []string {
	if i.Fallback == "" || i.Fallback == i.Source {
		return []string{i.Source}
	}
	return []string{i.Source, i.Fallback}
}

// DependsOn reports whether source feeds this instrument.
func (i Instrument) DependsOn(source string) bool {
	return i.Source == source || i.Fallback == source
}
