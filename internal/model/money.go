package model

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/currency"
)

// Money is a monetary value carried alongside the raw text it was parsed
// from. Amount rounded to Precision decimal places is the canonical
// comparison value.
type Money struct {
	Amount       float64 `json:"amount" yaml:"amount"`
	CurrencyCode string  `json:"currency_code" yaml:"currency_code"`
	Precision    int     `json:"precision" yaml:"precision"`
	Raw          string  `json:"raw,omitempty" yaml:"raw,omitempty"`
}

// NewMoney validates and constructs a Money. The currency code must be a
// valid ISO-4217 3-letter code and precision must be in [0,4].
func NewMoney(amount float64, code string, precision int, raw string) (Money, error) {
	if amount < 0 {
		return Money{}, eris.Errorf("money: negative amount %v", amount)
	}
	if precision < 0 || precision > 4 {
		return Money{}, eris.Errorf("money: precision %d out of range [0,4]", precision)
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if _, err := currency.ParseISO(code); err != nil {
		return Money{}, eris.Wrapf(err, "money: invalid currency code %q", code)
	}
	return Money{Amount: amount, CurrencyCode: code, Precision: precision, Raw: raw}, nil
}

// MinorUnits returns the amount as integer minor units, rounded to the
// money's precision (e.g. 149.004 at precision 2 -> 14900).
func (m Money) MinorUnits() int64 {
	return int64(math.Round(m.Amount * math.Pow10(m.Precision)))
}

// IsZero reports whether the money value is unset.
func (m Money) IsZero() bool {
	return m.CurrencyCode == "" && m.Amount == 0 && m.Raw == ""
}

// currencySymbols maps leading symbols to ISO codes, in lookup order.
// Ambiguous symbols ($, kr) resolve to the most common code; rule-set
// configs can override. The symbol appearing earliest in the text wins.
var currencySymbols = []struct {
	Symbol string
	Code   string
}{
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"₹", "INR"},
	{"₩", "KRW"},
}

var (
	moneyCodeRe   = regexp.MustCompile(`\b([A-Z]{3})\b`)
	moneyNumberRe = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
)

// ParseMoney parses a price string in en-US numeric format ("$1,149.00",
// "149 USD", "EUR 12.5"). Currency is inferred from a symbol or embedded
// ISO code, defaulting to USD; precision is inferred from the decimal
// places present, capped at 4.
func ParseMoney(text string) (Money, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Money{}, eris.New("money: empty input")
	}

	code := ""
	first := len(trimmed)
	for _, sym := range currencySymbols {
		if i := strings.Index(trimmed, sym.Symbol); i >= 0 && i < first {
			code = sym.Code
			first = i
		}
	}
	if m := moneyCodeRe.FindString(trimmed); m != "" {
		if _, err := currency.ParseISO(m); err == nil {
			code = m
		}
	}
	if code == "" {
		code = "USD"
	}

	num := moneyNumberRe.FindString(trimmed)
	if num == "" {
		return Money{}, eris.Errorf("money: no numeric value in %q", text)
	}
	num = strings.ReplaceAll(num, ",", "")

	amount, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return Money{}, eris.Wrapf(err, "money: parse %q", num)
	}

	precision := 0
	if i := strings.IndexByte(num, '.'); i >= 0 {
		precision = len(num) - i - 1
		if precision > 4 {
			precision = 4
		}
	}

	return NewMoney(amount, code, precision, trimmed)
}
