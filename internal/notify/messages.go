package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// RateSummary is the snapshot of an exchange rate carried into messages.
type RateSummary struct {
	ExchangeName string
	Rate         decimal.Decimal
	WeekStart    time.Time
	SubmittedBy  string
}

// SubmissionMessage is sent immediately when an exchange rate awaits approval.
func SubmissionMessage(r RateSummary) (subject, body string) {
	subject = "Exchange rate awaiting approval"
	body = fmt.Sprintf("New exchange rate for approval: %s = %s (week of %s), submitted by %s. Please review and approve.",
		r.ExchangeName, r.Rate.String(), r.WeekStart.Format(dateLayout), r.SubmittedBy)
	return subject, body
}

// EscalationMessage reminds approvers that a rate has been pending for too long.
func EscalationMessage(r RateSummary, pendingFor time.Duration) (subject, body string) {
	subject = "Exchange rate still pending"
	body = fmt.Sprintf("REMINDER: exchange rate %s = %s (week of %s), submitted by %s, has been pending for %s. Approval is required.",
		r.ExchangeName, r.Rate.String(), r.WeekStart.Format(dateLayout), r.SubmittedBy, formatMinutes(pendingFor))
	return subject, body
}

// OutcomeMessage reports an approval or rejection.
func OutcomeMessage(r RateSummary, approved bool, decidedBy, reason string) (subject, body string) {
	var b strings.Builder
	if approved {
		subject = "Exchange rate approved"
		fmt.Fprintf(&b, "The exchange rate %s = %s for the week of %s was approved by %s.",
			r.ExchangeName, r.Rate.String(), r.WeekStart.Format(dateLayout), decidedBy)
	} else {
		subject = "Exchange rate rejected"
		fmt.Fprintf(&b, "The exchange rate %s = %s for the week of %s was rejected by %s.",
			r.ExchangeName, r.Rate.String(), r.WeekStart.Format(dateLayout), decidedBy)
		if reason != "" {
			fmt.Fprintf(&b, " Reason: %s", reason)
		}
	}
	if r.SubmittedBy != "" {
		fmt.Fprintf(&b, "\nSubmitted by: %s", r.SubmittedBy)
	}
	return subject, b.String()
}

func formatMinutes(d time.Duration) string {
	m := int(d.Round(time.Minute) / time.Minute)
	if m == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}
