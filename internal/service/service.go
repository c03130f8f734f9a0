package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"assay-backoffice/internal/auth"
	"assay-backoffice/internal/escalation"
	"assay-backoffice/internal/notify"
	"assay-backoffice/internal/storage"
)

var (
	// ErrInvalidInput marks malformed requests.
	ErrInvalidInput = errors.New("invalid input")
	// ErrForbidden marks an actor lacking the role for an operation.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound marks a missing rate record.
	ErrNotFound = errors.New("rate not found")
	// ErrNotPending marks a decision on an already decided record.
	ErrNotPending = errors.New("rate is not pending")
	// ErrDuplicatePeriod marks a second record for the same (type, item, week).
	ErrDuplicatePeriod = errors.New("a rate already exists for this item and week")
)

// Escalations arms and disarms the delayed reminder for a record.
type Escalations interface {
	Schedule(esc escalation.Escalation, delay time.Duration) error
	Cancel(id string)
}

// Options tune the workflow.
type Options struct {
	EscalationDelay time.Duration
	Now             func() time.Time
}

// Service runs the weekly price submission and approval workflow.
type Service struct {
	rates       storage.RateStore
	notifier    *notify.Service
	escalations Escalations
	opts        Options
	logger      zerolog.Logger
}

// New constructs the workflow service.
func New(rates storage.RateStore, notifier *notify.Service, escalations Escalations, opts Options, logger zerolog.Logger) *Service {
	if opts.EscalationDelay <= 0 {
		opts.EscalationDelay = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		rates:       rates,
		notifier:    notifier,
		escalations: escalations,
		opts:        opts,
		logger:      logger.With().Str("component", "service").Logger(),
	}
}

// Submit records a new PENDING price for a week. Exchange rates also notify
// approvers immediately and arm the escalation reminder.
func (s *Service) Submit(ctx context.Context, actor storage.User, req SubmitRequest) (storage.RateRecord, error) {
	if err := req.validate(); err != nil {
		return storage.RateRecord{}, err
	}

	start, end, err := s.period(req.WeekStartDate)
	if err != nil {
		return storage.RateRecord{}, err
	}
	typ := storage.RateType(req.Type)

	_, err = s.rates.FindRateForPeriod(ctx, typ, req.ItemID, start)
	switch {
	case err == nil:
		return storage.RateRecord{}, ErrDuplicatePeriod
	case !errors.Is(err, storage.ErrNotFound):
		return storage.RateRecord{}, fmt.Errorf("check existing rate: %w", err)
	}

	rec, err := s.rates.CreateRate(ctx, storage.RateRecord{
		ID:            uuid.NewString(),
		Type:          typ,
		ItemID:        req.ItemID,
		Price:         *req.Price,
		WeekStartDate: start,
		WeekEndDate:   end,
		Status:        storage.StatusPending,
		SubmittedBy:   actor.ID,
		CreatedAt:     s.opts.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicatePeriod) {
			return storage.RateRecord{}, ErrDuplicatePeriod
		}
		return storage.RateRecord{}, fmt.Errorf("create rate: %w", err)
	}

	s.logger.Info().
		Str("rate_id", rec.ID).
		Str("type", string(rec.Type)).
		Str("item_id", rec.ItemID).
		Str("price", rec.Price.String()).
		Time("week_start", rec.WeekStartDate).
		Str("submitted_by", actor.ID).
		Msg("rate submitted")

	if rec.Type == storage.RateTypeExchange {
		if s.announce(ctx, rec, actor) {
			rec.NotificationSent = true
		}
	}
	return rec, nil
}

// announce sends the immediate SMS and arms the reminder. Failures are logged only.
func (s *Service) announce(ctx context.Context, rec storage.RateRecord, actor storage.User) bool {
	summary := summarize(rec, displayName(actor))

	s.notifier.LogSMSReadiness(ctx, auth.RateSubmissionRecipients)
	subject, body := notify.SubmissionMessage(summary)
	s.notifier.NotifyUsersWithRoles(ctx, auth.RateSubmissionRecipients, subject, body, notify.ChannelSMS)

	esc := escalation.Escalation{
		RateID:       rec.ID,
		ExchangeName: summary.ExchangeName,
		Rate:         rec.Price,
		WeekStart:    rec.WeekStartDate,
		SubmittedBy:  summary.SubmittedBy,
	}
	if err := s.escalations.Schedule(esc, s.opts.EscalationDelay); err != nil {
		s.logger.Error().Err(err).Str("rate_id", rec.ID).Msg("arm escalation")
	}

	if err := s.rates.MarkNotificationSent(ctx, rec.ID); err != nil {
		s.logger.Warn().Err(err).Str("rate_id", rec.ID).Msg("mark notification sent")
		return false
	}
	return true
}

// Decide approves or rejects a pending record.
func (s *Service) Decide(ctx context.Context, actor storage.User, id string, req DecideRequest) (storage.RateRecord, error) {
	if err := req.validate(); err != nil {
		return storage.RateRecord{}, err
	}
	if !auth.RateDeciders.Has(actor.Role) {
		return storage.RateRecord{}, fmt.Errorf("%w: role %s cannot approve rates", ErrForbidden, actor.Role)
	}

	current, err := s.rates.GetRate(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.RateRecord{}, ErrNotFound
		}
		return storage.RateRecord{}, fmt.Errorf("load rate: %w", err)
	}
	if current.Status != storage.StatusPending {
		return storage.RateRecord{}, ErrNotPending
	}

	decision := storage.Decision{
		Status:    storage.StatusApproved,
		DecidedBy: actor.ID,
		DecidedAt: s.opts.Now().UTC(),
	}
	if req.Action == "reject" {
		reason := req.Reason
		decision.Status = storage.StatusRejected
		decision.Reason = &reason
	}

	rec, err := s.rates.DecideRate(ctx, id, decision)
	switch {
	case errors.Is(err, storage.ErrNotPending):
		return storage.RateRecord{}, ErrNotPending
	case errors.Is(err, storage.ErrNotFound):
		return storage.RateRecord{}, ErrNotFound
	case err != nil:
		return storage.RateRecord{}, fmt.Errorf("decide rate: %w", err)
	}

	s.escalations.Cancel(id)

	s.logger.Info().
		Str("rate_id", id).
		Str("status", string(rec.Status)).
		Str("decided_by", actor.ID).
		Msg("rate decided")

	if rec.Type == storage.RateTypeExchange {
		submitter := rec.SubmittedByName
		if submitter == "" {
			submitter = rec.SubmittedBy
		}
		subject, body := notify.OutcomeMessage(summarize(rec, submitter), rec.Status == storage.StatusApproved, displayName(actor), req.Reason)
		s.notifier.NotifySuperAdmins(ctx, subject, body)
	}
	return rec, nil
}

// List returns records matching filter, newest week first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]storage.RateRecord, error) {
	var f storage.RateFilter
	if filter.Type != "" {
		typ, err := storage.ParseRateType(filter.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		f.Type = typ
	}
	f.ItemID = filter.ItemID
	f.ApprovedOnly = filter.ApprovedOnly
	if filter.Week != "" {
		day, err := ParseDate(filter.Week)
		if err != nil {
			return nil, err
		}
		start, _ := WeekBounds(day)
		f.WeekStart = &start
	}

	recs, err := s.rates.ListRates(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list rates: %w", err)
	}
	return recs, nil
}

func (s *Service) period(weekStart string) (time.Time, time.Time, error) {
	if weekStart == "" {
		start, end := WeekBounds(s.opts.Now())
		return start, end, nil
	}
	start, err := ParseDate(weekStart)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 0, 6), nil
}

func summarize(rec storage.RateRecord, submittedBy string) notify.RateSummary {
	name := rec.ItemName
	if name == "" {
		name = rec.ItemID
	}
	return notify.RateSummary{
		ExchangeName: name,
		Rate:         rec.Price,
		WeekStart:    rec.WeekStartDate,
		SubmittedBy:  submittedBy,
	}
}

func displayName(u storage.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}
