package pricing

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"boneboard-backend/internal/config"
	"boneboard-backend/internal/domain"

	"github.com/shopspring/decimal"
)

// Kind is a listing kind with its own base fee.
type Kind string

const (
	KindProject Kind = "project"
	KindJob     Kind = "job"
	KindFunding Kind = "funding"
)

// ParseKind accepts "project", "job" or "funding" in any case.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindProject, KindJob, KindFunding:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// Composition decides how the duration and project discounts combine.
type Composition string

const (
	// Compound applies each factor multiplicatively.
	Compound Composition = "compound"
	// Additive sums the discount fractions first, floored at zero.
	Additive Composition = "additive"
)

// Tier is one step of the duration discount schedule.
type Tier struct {
	Months   int
	Discount decimal.Decimal
}

// RateTable is read-only after construction and safe for concurrent use.
type RateTable struct {
	base               map[Kind]map[domain.Currency]decimal.Decimal
	tiers              []Tier
	projectDiscount    decimal.Decimal
	featuredMultiplier decimal.Decimal
	composition        Composition
}

// NewRateTable validates and copies its inputs. Tiers may be given in any order.
func NewRateTable(base map[Kind]map[domain.Currency]decimal.Decimal, tiers []Tier, projectDiscount, featuredMultiplier decimal.Decimal, composition Composition) (*RateTable, error) {
	one := decimal.NewFromInt(1)
	if composition == "" {
		composition = Compound
	}
	if composition != Compound && composition != Additive {
		return nil, fmt.Errorf("%w: unknown composition %q", ErrInvalidRateTable, composition)
	}
	if projectDiscount.IsNegative() || projectDiscount.GreaterThanOrEqual(one) {
		return nil, fmt.Errorf("%w: project discount %s outside [0,1)", ErrInvalidRateTable, projectDiscount)
	}
	if featuredMultiplier.LessThan(one) {
		return nil, fmt.Errorf("%w: featured multiplier %s below 1", ErrInvalidRateTable, featuredMultiplier)
	}

	sorted := append([]Tier(nil), tiers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Months < sorted[j].Months })
	for i, t := range sorted {
		if t.Months <= 0 {
			return nil, fmt.Errorf("%w: tier of %d months", ErrInvalidRateTable, t.Months)
		}
		if i > 0 && sorted[i-1].Months == t.Months {
			return nil, fmt.Errorf("%w: duplicate tier for %d months", ErrInvalidRateTable, t.Months)
		}
		if t.Discount.IsNegative() || t.Discount.GreaterThanOrEqual(one) {
			return nil, fmt.Errorf("%w: tier discount %s outside [0,1)", ErrInvalidRateTable, t.Discount)
		}
	}

	fees := make(map[Kind]map[domain.Currency]decimal.Decimal, len(base))
	for kind, byCur := range base {
		fees[kind] = make(map[domain.Currency]decimal.Decimal, len(byCur))
		for cur, fee := range byCur {
			if fee.IsNegative() {
				return nil, fmt.Errorf("%w: negative base fee for %s/%s", ErrInvalidRateTable, kind, cur)
			}
			fees[kind][cur] = fee
		}
	}

	return &RateTable{
		base:               fees,
		tiers:              sorted,
		projectDiscount:    projectDiscount,
		featuredMultiplier: featuredMultiplier,
		composition:        composition,
	}, nil
}

// FromConfig builds a RateTable from the env-provided pricing settings.
func FromConfig(p config.Pricing) (*RateTable, error) {
	projectDiscount, err := decimal.NewFromString(strings.TrimSpace(p.ProjectDiscount))
	if err != nil {
		return nil, fmt.Errorf("%w: project discount %q", ErrInvalidRateTable, p.ProjectDiscount)
	}
	multiplier, err := decimal.NewFromString(strings.TrimSpace(p.FeaturedMultiplier))
	if err != nil {
		return nil, fmt.Errorf("%w: featured multiplier %q", ErrInvalidRateTable, p.FeaturedMultiplier)
	}
	tiers, err := ParseTiers(p.DurationDiscounts)
	if err != nil {
		return nil, err
	}

	base := make(map[Kind]map[domain.Currency]decimal.Decimal)
	for _, kind := range []Kind{KindProject, KindJob, KindFunding} {
		for _, cur := range []domain.Currency{domain.CurrencyBONE, domain.CurrencyADA} {
			raw, ok := p.Fees[config.FeeKey(string(kind), string(cur))]
			if !ok || raw == "" {
				continue
			}
			fee, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: fee %s/%s %q", ErrInvalidRateTable, kind, cur, raw)
			}
			if base[kind] == nil {
				base[kind] = make(map[domain.Currency]decimal.Decimal)
			}
			base[kind][cur] = fee
		}
	}
	return NewRateTable(base, tiers, projectDiscount, multiplier, Composition(p.Composition))
}

// DefaultRateTable returns the standard platform rates.
func DefaultRateTable() *RateTable {
	rt, err := FromConfig(config.DefaultPricing())
	if err != nil {
		panic(err)
	}
	return rt
}

// ParseTiers parses "months:discount" pairs separated by commas.
func ParseTiers(s string) ([]Tier, error) {
	var tiers []Tier
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		monthsStr, discStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("%w: tier %q", ErrInvalidRateTable, part)
		}
		months, err := strconv.Atoi(strings.TrimSpace(monthsStr))
		if err != nil {
			return nil, fmt.Errorf("%w: tier months %q", ErrInvalidRateTable, monthsStr)
		}
		disc, err := decimal.NewFromString(strings.TrimSpace(discStr))
		if err != nil {
			return nil, fmt.Errorf("%w: tier discount %q", ErrInvalidRateTable, discStr)
		}
		tiers = append(tiers, Tier{Months: months, Discount: disc})
	}
	return tiers, nil
}

// Composition reports the configured composition policy.
func (r *RateTable) Composition() Composition { return r.composition }

// Tiers returns a copy of the discount schedule in ascending order.
func (r *RateTable) Tiers() []Tier { return append([]Tier(nil), r.tiers...) }

// DurationDiscount is the discount of the largest tier not exceeding months,
// or zero below the smallest tier.
func (r *RateTable) DurationDiscount(months int) decimal.Decimal {
	discount := decimal.Zero
	for _, t := range r.tiers {
		if t.Months > months {
			break
		}
		discount = t.Discount
	}
	return discount
}

func (r *RateTable) baseFee(kind Kind, cur domain.Currency) (decimal.Decimal, error) {
	byCur, ok := r.base[kind]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	fee, ok := byCur[cur]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q for %s", ErrInvalidCurrency, cur, kind)
	}
	return fee, nil
}
