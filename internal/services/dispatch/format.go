package dispatch

import (
	"fmt"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"billwatch/internal/domain"
)

// Formatter renders amounts and due dates for user-facing reminder text.
// Locale and currency come from config so deployments outside the default
// region read naturally.
type Formatter struct {
	tag  language.Tag
	unit currency.Unit
	loc  *time.Location
}

func NewFormatter(locale, currencyCode string, loc *time.Location) (*Formatter, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("parse locale %q: %w", locale, err)
	}
	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		return nil, fmt.Errorf("parse currency %q: %w", currencyCode, err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Formatter{tag: tag, unit: unit, loc: loc}, nil
}

// Amount renders "₹1,500.00" style strings with locale digit grouping.
func (f *Formatter) Amount(v float64) string {
	p := message.NewPrinter(f.tag)
	sym := p.Sprint(currency.NarrowSymbol(f.unit))
	return sym + p.Sprint(number.Decimal(v, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

func (f *Formatter) DueDate(t time.Time) string {
	return t.In(f.loc).Format("Mon, 02 Jan 2006 at 15:04")
}

// Subject builds the reminder subject line shared by email and push.
func (f *Formatter) Subject(ob *domain.Obligation, now time.Time) string {
	if ob.OverdueAt(now) {
		return fmt.Sprintf("Overdue: %s (%s)", ob.Title, f.Amount(ob.Amount))
	}
	return fmt.Sprintf("Payment due: %s (%s)", ob.Title, f.Amount(ob.Amount))
}

// Body builds the reminder message text shared by all channels.
func (f *Formatter) Body(ob *domain.Obligation, now time.Time) string {
	due := ob.EffectiveDueDate()
	if ob.OverdueAt(now) {
		return fmt.Sprintf("%s of %s was due on %s. Please pay it as soon as possible.",
			ob.Title, f.Amount(ob.Amount), f.DueDate(due))
	}
	return fmt.Sprintf("%s of %s is due on %s.",
		ob.Title, f.Amount(ob.Amount), f.DueDate(due))
}
