// Package money renders amounts in the Brazilian real display format.
package money

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/RoqueChristian/backup-inteligencia/internal/coerce"
)

// Symbol prefixes every formatted amount.
const Symbol = "R$"

// FormatBRL renders v as "R$ 1.234,50". Negative amounts keep the sign after
// the symbol ("R$ -50,00"). Null or unreadable input renders as "R$ 0,00".
func FormatBRL(v any) string {
	d, _ := coerce.Decimal(v)
	return Symbol + " " + Format(d)
}

// Format renders d with dot thousands grouping and a two digit decimal comma,
// without the currency symbol.
func Format(d decimal.Decimal) string {
	fixed := d.Round(2).StringFixed(2)
	negative := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	intPart, frac, _ := strings.Cut(fixed, ".")
	var b strings.Builder
	if negative && !isZeroText(intPart, frac) {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	b.WriteByte(',')
	b.WriteString(frac)
	return b.String()
}

// DecimalComma renders d with two places and a decimal comma and no grouping,
// the layout used by the semicolon-delimited exports.
func DecimalComma(d decimal.Decimal) string {
	return strings.Replace(d.Round(2).StringFixed(2), ".", ",", 1)
}

func isZeroText(intPart, frac string) bool {
	return strings.Trim(intPart, "0") == "" && strings.Trim(frac, "0") == ""
}
