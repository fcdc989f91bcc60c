// Package pricing computes listing fees for projects, jobs and funding
// campaigns from a RateTable.
package pricing

import (
	"fmt"

	"boneboard-backend/internal/domain"

	"github.com/shopspring/decimal"
)

// Engine is stateless; Quote never touches storage.
type Engine struct {
	Rates *RateTable
}

func NewEngine(rates *RateTable) *Engine {
	return &Engine{Rates: rates}
}

// Quote returns the fee for a listing of kind lasting durationMonths.
//
// compound: base × (1 − duration) × (1 − project) × featured
// additive: base × (1 − (duration + project)) × featured, the factor floored at 0
//
// Rounding happens once, half-up to two digits, at the end.
func (e *Engine) Quote(kind Kind, durationMonths int, currency domain.Currency, featured bool) (domain.Money, error) {
	if durationMonths <= 0 {
		return domain.Money{}, fmt.Errorf("%w: %d", ErrInvalidDuration, durationMonths)
	}
	base, err := e.Rates.baseFee(kind, currency)
	if err != nil {
		return domain.Money{}, err
	}

	one := decimal.NewFromInt(1)
	duration := e.Rates.DurationDiscount(durationMonths)
	kindDiscount := decimal.Zero
	if kind == KindProject {
		kindDiscount = e.Rates.projectDiscount
	}

	var price decimal.Decimal
	switch e.Rates.composition {
	case Additive:
		factor := one.Sub(duration.Add(kindDiscount))
		if factor.IsNegative() {
			factor = decimal.Zero
		}
		price = base.Mul(factor)
	default:
		price = base.Mul(one.Sub(duration)).Mul(one.Sub(kindDiscount))
	}
	if featured {
		price = price.Mul(e.Rates.featuredMultiplier)
	}
	return domain.NewMoney(price, currency), nil
}

// BreakdownLine is one row of a price table.
type BreakdownLine struct {
	Months          int          `json:"months"`
	DiscountPercent string       `json:"discount_percent"`
	Price           domain.Money `json:"price"`
	MonthlyPrice    domain.Money `json:"monthly_price"`
}

// Breakdown quotes every duration from 1 to maxMonths.
func (e *Engine) Breakdown(kind Kind, currency domain.Currency, featured bool, maxMonths int) ([]BreakdownLine, error) {
	if maxMonths <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDuration, maxMonths)
	}
	lines := make([]BreakdownLine, 0, maxMonths)
	for m := 1; m <= maxMonths; m++ {
		price, err := e.Quote(kind, m, currency, featured)
		if err != nil {
			return nil, err
		}
		monthly := domain.NewMoney(price.Amount.Div(decimal.NewFromInt(int64(m))), currency)
		lines = append(lines, BreakdownLine{
			Months:          m,
			DiscountPercent: e.Rates.DurationDiscount(m).Shift(2).StringFixed(0),
			Price:           price,
			MonthlyPrice:    monthly,
		})
	}
	return lines, nil
}
