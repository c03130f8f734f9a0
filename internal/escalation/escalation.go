package escalation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"assay-backoffice/internal/storage"
)

var (
	armedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assay_escalations_armed",
		Help: "Escalation timers currently armed",
	})
	firedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assay_escalations_fired_total",
		Help: "Escalation timers that fired, by outcome",
	}, []string{"outcome"})
)

// ErrInvalidDelay is returned when Schedule is given a non-positive delay.
var ErrInvalidDelay = errors.New("escalation delay must be positive")

// Escalation is the snapshot carried by an armed timer.
type Escalation struct {
	RateID       string          `json:"rateRecordId"`
	ExchangeName string          `json:"exchangeName"`
	Rate         decimal.Decimal `json:"rate"`
	WeekStart    time.Time       `json:"weekStart"`
	SubmittedBy  string          `json:"submittedBy"`
	ArmedAt      time.Time       `json:"armedAt"`
	FireAt       time.Time       `json:"fireAt"`
}

// StatusReader reports the current lifecycle state of a rate record.
type StatusReader interface {
	RateStatus(ctx context.Context, id string) (storage.RateStatus, error)
}

// Notifier delivers the reminder for a record that is still pending.
type Notifier interface {
	NotifyEscalation(ctx context.Context, esc Escalation) error
}

// Result classifies what happened when a timer fired.
type Result string

const (
	ResultSent    Result = "sent"
	ResultSkipped Result = "skipped"
	ResultFailed  Result = "failed"
)

// Outcome is reported once per fired timer.
type Outcome struct {
	RateID string
	Status storage.RateStatus
	Result Result
	Err    error
}

// Timer is the handle returned by AfterFunc. *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

// AfterFunc arms f to run once after d.
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Options tune scheduler behaviour.
type Options struct {
	// FireTimeout bounds the status read and notification of a single fire.
	FireTimeout time.Duration
	AfterFunc   AfterFunc
	Now         func() time.Time
	// OnOutcome, when set, observes every fire.
	OnOutcome func(Outcome)
}

type entry struct {
	esc   Escalation
	timer Timer
}

// Scheduler keeps at most one one-shot escalation timer per rate record.
// Entries live in memory only and are lost when the process exits.
type Scheduler struct {
	status   StatusReader
	notifier Notifier
	opts     Options
	logger   zerolog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// New constructs a Scheduler.
func New(status StatusReader, notifier Notifier, opts Options, logger zerolog.Logger) *Scheduler {
	if status == nil || notifier == nil {
		panic("escalation scheduler requires a status reader and a notifier")
	}
	if opts.FireTimeout <= 0 {
		opts.FireTimeout = 30 * time.Second
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = stdAfterFunc
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		status:   status,
		notifier: notifier,
		opts:     opts,
		logger:   logger.With().Str("component", "escalation").Logger(),
		entries:  make(map[string]*entry),
	}
}

// Schedule arms a timer for esc.RateID, replacing any timer already armed for it.
func (s *Scheduler) Schedule(esc Escalation, delay time.Duration) error {
	if esc.RateID == "" {
		return errors.New("escalation requires a rate record id")
	}
	if delay <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDelay, delay)
	}

	now := s.opts.Now().UTC()
	esc.ArmedAt = now
	esc.FireAt = now.Add(delay)
	e := &entry{esc: esc}

	s.mu.Lock()
	replaced := s.stopLocked(esc.RateID)
	e.timer = s.opts.AfterFunc(delay, func() { s.fire(e) })
	s.entries[esc.RateID] = e
	armed := len(s.entries)
	s.mu.Unlock()

	armedGauge.Set(float64(armed))
	s.logger.Info().
		Str("rate_id", esc.RateID).
		Str("exchange", esc.ExchangeName).
		Dur("delay", delay).
		Time("fire_at", esc.FireAt).
		Bool("replaced", replaced).
		Msg("escalation armed")
	return nil
}

// Cancel stops and forgets the timer for id. Unknown ids are ignored.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	removed := s.stopLocked(id)
	armed := len(s.entries)
	s.mu.Unlock()

	if removed {
		armedGauge.Set(float64(armed))
		s.logger.Info().Str("rate_id", id).Msg("escalation cancelled")
	}
}

// Scheduled returns the armed escalations ordered by fire time.
func (s *Scheduler) Scheduled() []Escalation {
	s.mu.Lock()
	out := make([]Escalation, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.esc)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].RateID < out[j].RateID
		}
		return out[i].FireAt.Before(out[j].FireAt)
	})
	return out
}

// ClearAll stops every armed timer.
func (s *Scheduler) ClearAll() {
	s.mu.Lock()
	n := len(s.entries)
	for id, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, id)
	}
	s.mu.Unlock()

	armedGauge.Set(0)
	if n > 0 {
		s.logger.Info().Int("count", n).Msg("cleared armed escalations")
	}
}

func (s *Scheduler) stopLocked(id string) bool {
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.entries, id)
	return true
}

// release drops e only if it is still the armed entry for its id, so a
// stale fire never removes a timer that was re-armed meanwhile.
func (s *Scheduler) release(e *entry) {
	s.mu.Lock()
	if cur, ok := s.entries[e.esc.RateID]; ok && cur == e {
		delete(s.entries, e.esc.RateID)
	}
	armed := len(s.entries)
	s.mu.Unlock()
	armedGauge.Set(float64(armed))
}

func (s *Scheduler) fire(e *entry) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.FireTimeout)
	defer cancel()

	out := s.evaluate(ctx, e.esc)
	s.release(e)

	firedTotal.WithLabelValues(string(out.Result)).Inc()
	if s.opts.OnOutcome != nil {
		s.opts.OnOutcome(out)
	}
}

func (s *Scheduler) evaluate(ctx context.Context, esc Escalation) Outcome {
	out := Outcome{RateID: esc.RateID}
	logger := s.logger.With().Str("rate_id", esc.RateID).Logger()

	status, err := s.status.RateStatus(ctx, esc.RateID)
	if err != nil {
		logger.Error().Err(err).Msg("escalation status check failed")
		out.Result, out.Err = ResultFailed, err
		return out
	}
	out.Status = status

	if status != storage.StatusPending {
		logger.Info().Str("status", string(status)).Msg("rate no longer pending; escalation skipped")
		out.Result = ResultSkipped
		return out
	}

	if err := s.notifier.NotifyEscalation(ctx, esc); err != nil {
		logger.Error().Err(err).Msg("escalation notification failed")
		out.Result, out.Err = ResultFailed, err
		return out
	}

	logger.Info().Str("exchange", esc.ExchangeName).Msg("escalation sent")
	out.Result = ResultSent
	return out
}
