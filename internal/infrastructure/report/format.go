package report

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Formatter renders numbers and labels for one locale
type Formatter struct {
	tag     language.Tag
	printer *message.Printer
	title   cases.Caser
}

// NewFormatter parses a BCP 47 locale such as "en-US" or "de-DE"
func NewFormatter(locale string) (*Formatter, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("invalid report locale %q: %w", locale, err)
	}
	return &Formatter{
		tag:     tag,
		printer: message.NewPrinter(tag),
		title:   cases.Title(tag),
	}, nil
}

// Locale returns the canonical locale tag
func (f *Formatter) Locale() string {
	return f.tag.String()
}

// Paper returns the paper size customary for the locale
func (f *Formatter) Paper() Paper {
	return PaperFor(f.tag)
}

// Amount formats a money amount with two decimals and locale grouping
func (f *Formatter) Amount(d decimal.Decimal) string {
	v, _ := d.Round(2).Float64()
	return f.printer.Sprint(number.Decimal(v, number.Scale(2)))
}

// Count formats an integer with locale grouping
func (f *Formatter) Count(n int) string {
	return f.printer.Sprint(number.Decimal(n))
}

// Percent formats a ratio such as 0.153 as a percentage with one decimal
func (f *Formatter) Percent(ratio float64) string {
	return f.printer.Sprint(number.Percent(ratio, number.Scale(1)))
}

// Title capitalises an identifier such as "pessimistic" for display
func (f *Formatter) Title(s string) string {
	return f.title.String(s)
}

// Date formats a calendar date
func (f *Formatter) Date(t time.Time) string {
	return t.Format("2006-01-02")
}
