package presenter

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"eventpay/internal/models"
)

const (
	currencyCode = "NPR"
	timeLayout   = "Jan 2, 2006, 3:04 PM"
	dateLayout   = "Jan 2, 2006"
)

var (
	printer       = message.NewPrinter(language.English)
	paisaPerRupee = decimal.NewFromInt(100)
	defaultZone   = loadZone("Asia/Kathmandu")
)

// FormatAmount formats an amount given in paisa, e.g. 250000 -> "NPR 2,500.00".
func FormatAmount(paisa int64) string {
	return formatRupees(decimal.NewFromInt(paisa).Div(paisaPerRupee))
}

// FormatRupees formats an amount already in rupees.
func FormatRupees(rupees int64) string {
	return formatRupees(decimal.NewFromInt(rupees))
}

// ParseRupees converts a rupee amount such as "2500" or "2,500.50" to paisa.
// More than two decimal places is rejected.
func ParseRupees(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	paisa := d.Mul(paisaPerRupee)
	if !paisa.Equal(paisa.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than two decimal places", s)
	}
	if !paisa.IsPositive() {
		return 0, fmt.Errorf("amount %q must be positive", s)
	}
	return paisa.IntPart(), nil
}

func formatRupees(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	fixed := d.StringFixed(2)
	cents := fixed[strings.IndexByte(fixed, '.')+1:]
	whole := printer.Sprint(number.Decimal(d.Truncate(0).IntPart()))
	return currencyCode + " " + sign + whole + "." + cents
}

// FormatTime renders a timestamp in the given zone, or Nepal time when loc is nil.
func FormatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "-"
	}
	if loc == nil {
		loc = defaultZone
	}
	return t.In(loc).Format(timeLayout)
}

// FormatDate renders only the calendar date.
func FormatDate(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "-"
	}
	if loc == nil {
		loc = defaultZone
	}
	return t.In(loc).Format(dateLayout)
}

// PaymentCard holds every display string for one payment.
type PaymentCard struct {
	ID        uint
	Pidx      string
	BookingID uint
	Badge     BadgeInfo
	Amount    string
	Customer  string
	CreatedAt string
	UpdatedAt string
	Settled   bool
}

// View derives a PaymentCard from the status projection.
func View(p models.PaymentView, loc *time.Location) PaymentCard {
	customer := p.CustomerName
	if customer == "" {
		customer = "-"
	}
	return PaymentCard{
		ID:        p.ID,
		Pidx:      p.Pidx,
		BookingID: p.BookingID,
		Badge:     Badge(string(p.Status)),
		Amount:    FormatAmount(p.Amount),
		Customer:  customer,
		CreatedAt: FormatTime(p.CreatedAt, loc),
		UpdatedAt: FormatTime(p.UpdatedAt, loc),
		Settled:   p.Status.IsTerminal(),
	}
}

func loadZone(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
