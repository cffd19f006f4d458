package pricing

import "errors"

// Money represents a monetary value stored in minor units.
type Money = int64

var (
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	ErrNegativePrice   = errors.New("base price must be non-negative")
)

// Tier is one volume-discount breakpoint. Tiers are matched high-to-low on
// MinQty; exactly one tier applies for any valid quantity.
type Tier struct {
	MinQty      int
	DiscountBps int32
	Label       string
}

// DefaultTiers encodes the storefront's standing volume policy: 10% off at
// two units, 15% off at three or more. Order matters, highest MinQty first.
var DefaultTiers = []Tier{
	{MinQty: 3, DiscountBps: 1500, Label: "15% OFF"},
	{MinQty: 2, DiscountBps: 1000, Label: "10% OFF"},
}

// Quote is the computed price for one product at one quantity. It is
// ephemeral output, recomputed on every selection change and never stored.
type Quote struct {
	UnitPrice  Money  `json:"unit_price"`
	TotalPrice Money  `json:"total_price"`
	Savings    Money  `json:"savings"`
	TierLabel  string `json:"tier_label,omitempty"`
}

// Engine resolves volume tiers and computes quotes. The zero value is not
// usable; construct with NewEngine.
type Engine struct {
	tiers []Tier
}

// NewEngine validates and orders the tier table. An empty table is allowed
// and yields zero-discount quotes for every quantity.
func NewEngine(tiers []Tier) (*Engine, error) {
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].MinQty > sorted[j-1].MinQty; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	for _, t := range sorted {
		if t.MinQty < 1 {
			return nil, errors.New("tier min quantity must be >= 1")
		}
		if t.DiscountBps < 0 || t.DiscountBps >= 10000 {
			return nil, errors.New("tier discount must be in [0, 10000) bps")
		}
	}
	return &Engine{tiers: sorted}, nil
}

// Default returns an engine over DefaultTiers.
func Default() *Engine {
	e, err := NewEngine(DefaultTiers)
	if err != nil {
		panic(err)
	}
	return e
}

// ResolveTier returns the highest tier whose MinQty the quantity satisfies.
// A quantity below every breakpoint gets the zero tier with no label.
func (e *Engine) ResolveTier(qty int) (Tier, error) {
	if qty < 1 {
		return Tier{}, ErrInvalidQuantity
	}
	for _, t := range e.tiers {
		if qty >= t.MinQty {
			return t, nil
		}
	}
	return Tier{MinQty: 1}, nil
}

// ComputeQuote prices qty units at basePrice minor units. The discounted unit
// price is rounded half-up to the nearest minor unit, then multiplied, so
// TotalPrice == UnitPrice*qty holds exactly.
func (e *Engine) ComputeQuote(basePrice Money, qty int) (Quote, error) {
	if basePrice < 0 {
		return Quote{}, ErrNegativePrice
	}
	tier, err := e.ResolveTier(qty)
	if err != nil {
		return Quote{}, err
	}
	unit := (basePrice*Money(10000-tier.DiscountBps) + 5000) / 10000
	total := unit * Money(qty)
	return Quote{
		UnitPrice:  unit,
		TotalPrice: total,
		Savings:    basePrice*Money(qty) - total,
		TierLabel:  tier.Label,
	}, nil
}
