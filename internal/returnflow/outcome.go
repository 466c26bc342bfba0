// Package returnflow interprets the gateway return URL and drives the
// success page's redirect countdown.
package returnflow

import (
	"net/url"
	"strings"
)

// Kind is the outcome shown on the return page.
type Kind string

const (
	KindSuccess Kind = "success"
	KindFailed  Kind = "failed"
	KindPending Kind = "pending"
	KindUnknown Kind = "unknown"
)

// Query parameters set by the callback redirect.
const (
	ParamPayment = "payment"
	ParamBooking = "booking"
	ParamError   = "error"
)

// Outcome is the parsed return URL.
type Outcome struct {
	Payment    string
	Booking    string
	Error      string
	HumanError string
	Kind       Kind
}

// Parse reads the return query. Parameters are independent: a failed
// payment may still carry a booking id, and missing values stay empty.
func Parse(q url.Values) Outcome {
	o := Outcome{
		Payment: strings.TrimSpace(q.Get(ParamPayment)),
		Booking: strings.TrimSpace(q.Get(ParamBooking)),
		Error:   strings.TrimSpace(q.Get(ParamError)),
	}
	o.HumanError = HumanizeError(o.Error)

	switch strings.ToLower(o.Payment) {
	case "success":
		o.Kind = KindSuccess
	case "failed":
		o.Kind = KindFailed
	case "pending":
		o.Kind = KindPending
	default:
		o.Kind = KindUnknown
	}
	return o
}

// Title is the page heading for the outcome.
func (o Outcome) Title() string {
	switch o.Kind {
	case KindSuccess:
		return "Payment Successful"
	case KindFailed:
		return "Payment Failed"
	case KindPending:
		return "Payment Pending"
	default:
		return "Unknown"
	}
}

// Message is the body text for the outcome.
func (o Outcome) Message() string {
	switch o.Kind {
	case KindSuccess:
		return "Your booking has been confirmed. You will be redirected shortly."
	case KindFailed:
		return "We could not process your payment."
	case KindPending:
		return "Your payment is being processed. This may take a few moments."
	default:
		return "We could not determine the status of your payment."
	}
}

// HumanizeError turns a machine error code into readable text,
// e.g. "card_declined" becomes "card declined".
func HumanizeError(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	return strings.Join(strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(code)), " ")
}
