package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is the settlement denomination of a fee or contribution.
type Currency string

const (
	// CurrencyBONE is the platform token and the primary denomination.
	CurrencyBONE Currency = "BONE"
	// CurrencyADA is the alternative denomination.
	CurrencyADA Currency = "ADA"

	CurrencyPrimary = CurrencyBONE
	CurrencyAlt     = CurrencyADA
)

// moneyScale is the number of fractional digits carried by every Money amount.
const moneyScale = 2

var (
	ErrUnknownCurrency  = errors.New("Unknown currency")
	ErrCurrencyMismatch = errors.New("Currency mismatch")
	ErrInvalidMoney     = errors.New("Invalid money amount")
)

// ParseCurrency accepts "BONE"/"ADA" in any case.
func ParseCurrency(s string) (Currency, error) {
	switch c := Currency(strings.ToUpper(strings.TrimSpace(s))); c {
	case CurrencyBONE, CurrencyADA:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, s)
}

// Money is a fixed-point amount with two fractional digits in one currency.
// Values of different currencies never mix; there is no implicit conversion.
type Money struct {
	Amount   decimal.Decimal
	Currency Currency
}

// NewMoney rounds amount half-up to two fractional digits.
func NewMoney(amount decimal.Decimal, currency Currency) Money {
	return Money{Amount: amount.Round(moneyScale), Currency: currency}
}

// ParseMoney parses a decimal string such as "50.00".
func ParseMoney(amount string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidMoney, amount)
	}
	if d.Exponent() < -moneyScale && !d.Equal(d.Round(moneyScale)) {
		return Money{}, fmt.Errorf("%w: more than %d fractional digits in %q", ErrInvalidMoney, moneyScale, amount)
	}
	return NewMoney(d, currency), nil
}

// MustMoney is ParseMoney for literals; it panics on malformed input.
func MustMoney(amount string, currency Currency) Money {
	m, err := ParseMoney(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// ZeroMoney returns 0.00 in currency.
func ZeroMoney(currency Currency) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

func (m Money) sameCurrency(other Money) error {
	if m.Currency != other.Currency {
		return fmt.Errorf("%w: %s != %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return nil
}

// Add returns m + other.
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// Sub returns m - other.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}, nil
}

// Cmp compares m with other: -1, 0 or +1.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.sameCurrency(other); err != nil {
		return 0, err
	}
	return m.Amount.Cmp(other.Amount), nil
}

func (m Money) IsZero() bool     { return m.Amount.IsZero() }
func (m Money) IsPositive() bool { return m.Amount.IsPositive() }
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }

// Equal reports identical amount and currency.
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// FormatMajor renders the amount with exactly two fractional digits.
func (m Money) FormatMajor() string {
	return m.Amount.StringFixed(moneyScale)
}

// String renders e.g. "400.00 BONE".
func (m Money) String() string {
	return m.FormatMajor() + " " + string(m.Currency)
}

type moneyJSON struct {
	Amount   string   `json:"amount"`
	Currency Currency `json:"currency"`
	Display  string   `json:"display,omitempty"`
}

// MarshalJSON keeps the amount as a string so no precision is lost in transit.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{
		Amount:   m.FormatMajor(),
		Currency: m.Currency,
		Display:  m.String(),
	})
}

// UnmarshalJSON accepts {"amount":"50.00","currency":"ADA"}; amount may also be a JSON number.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount   json.RawMessage `json:"amount"`
		Currency string          `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	cur, err := ParseCurrency(raw.Currency)
	if err != nil {
		return err
	}
	amount := strings.Trim(string(raw.Amount), `"`)
	parsed, err := ParseMoney(amount, cur)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
