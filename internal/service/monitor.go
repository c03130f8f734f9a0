package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"assay-backoffice/internal/auth"
	"assay-backoffice/internal/escalation"
	"assay-backoffice/internal/notify"
	"assay-backoffice/internal/storage"
)

// EscalationNotifier texts the escalation role set when a rate stays pending.
type EscalationNotifier struct {
	notifier *notify.Service
	delay    time.Duration
}

// NewEscalationNotifier builds the notifier; delay is quoted in the reminder text.
func NewEscalationNotifier(notifier *notify.Service, delay time.Duration) *EscalationNotifier {
	return &EscalationNotifier{notifier: notifier, delay: delay}
}

// NotifyEscalation implements escalation.Notifier. Delivery is best-effort.
func (n *EscalationNotifier) NotifyEscalation(ctx context.Context, esc escalation.Escalation) error {
	pendingFor := n.delay
	if !esc.ArmedAt.IsZero() && !esc.FireAt.IsZero() {
		pendingFor = esc.FireAt.Sub(esc.ArmedAt)
	}
	subject, body := notify.EscalationMessage(notify.RateSummary{
		ExchangeName: esc.ExchangeName,
		Rate:         esc.Rate,
		WeekStart:    esc.WeekStart,
		SubmittedBy:  esc.SubmittedBy,
	}, pendingFor)
	n.notifier.NotifyUsersWithRoles(ctx, auth.RateEscalationRecipients, subject, body, notify.ChannelSMS)
	return nil
}

var _ escalation.Notifier = (*EscalationNotifier)(nil)

// ArmedLister exposes the armed escalation table.
type ArmedLister interface {
	Scheduled() []escalation.Escalation
}

// Monitor reports the state of the approval queue on every tick.
type Monitor struct {
	rates  storage.RateStore
	armed  ArmedLister
	logger zerolog.Logger
}

// NewMonitor constructs a Monitor.
func NewMonitor(rates storage.RateStore, armed ArmedLister, logger zerolog.Logger) *Monitor {
	return &Monitor{rates: rates, armed: armed, logger: logger.With().Str("component", "monitor").Logger()}
}

// Tick logs pending records and armed timers. Pending records with no armed
// timer (for example after a restart) are reported at WARN.
func (m *Monitor) Tick(ctx context.Context, slot time.Time) error {
	pending, err := m.rates.CountPending(ctx)
	if err != nil {
		return fmt.Errorf("count pending rates: %w", err)
	}
	armed := m.armed.Scheduled()

	ev := m.logger.Info()
	if pending > int64(len(armed)) {
		ev = m.logger.Warn()
	}
	ev = ev.Time("slot", slot).Int64("pending", pending).Int("armed", len(armed))
	if len(armed) > 0 {
		ev = ev.Time("next_fire", armed[0].FireAt).Str("next_rate_id", armed[0].RateID)
	}
	ev.Msg("approval queue")
	return nil
}
