package pricing

import (
	"strconv"

	pricingsvc "boneboard-backend/internal/application/pricing"
	"boneboard-backend/internal/domain"
	"boneboard-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const maxBreakdownMonths = 24

type Handlers struct {
	Engine *pricingsvc.Engine
}

type quoteQuery struct {
	kind     pricingsvc.Kind
	currency domain.Currency
	featured bool
}

func parseQuoteQuery(c *fiber.Ctx) (*quoteQuery, error) {
	kind, err := pricingsvc.ParseKind(c.Query("kind"))
	if err != nil {
		return nil, err
	}
	cur := domain.CurrencyPrimary
	if s := c.Query("currency"); s != "" {
		if cur, err = domain.ParseCurrency(s); err != nil {
			return nil, pricingsvc.ErrInvalidCurrency
		}
	}
	return &quoteQuery{kind: kind, currency: cur, featured: c.QueryBool("featured", false)}, nil
}

// GET /api/v1/pricing/quote?kind=job&months=3&currency=BONE&featured=false
func (h *Handlers) Quote(c *fiber.Ctx) error {
	q, err := parseQuoteQuery(c)
	if err != nil {
		return err
	}
	months, err := strconv.Atoi(c.Query("months", "1"))
	if err != nil {
		return pricingsvc.ErrInvalidDuration
	}
	price, err := h.Engine.Quote(q.kind, months, q.currency, q.featured)
	if err != nil {
		return err
	}
	return response.Success(c, "Quote computed", fiber.Map{
		"kind":     q.kind,
		"months":   months,
		"featured": q.featured,
		"price":    price,
	}, nil)
}

// GET /api/v1/pricing/breakdown?kind=funding&currency=ADA&max=12
func (h *Handlers) Breakdown(c *fiber.Ctx) error {
	q, err := parseQuoteQuery(c)
	if err != nil {
		return err
	}
	max := c.QueryInt("max", 12)
	if max > maxBreakdownMonths {
		return response.Error(c, "max must be at most "+strconv.Itoa(maxBreakdownMonths), fiber.StatusBadRequest, nil)
	}
	lines, err := h.Engine.Breakdown(q.kind, q.currency, q.featured, max)
	if err != nil {
		return err
	}
	return response.Success(c, "Breakdown computed", lines, fiber.Map{
		"kind":        q.kind,
		"currency":    q.currency,
		"composition": h.Engine.Rates.Composition(),
	})
}
