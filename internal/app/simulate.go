package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"assay-backoffice/internal/auth"
	"assay-backoffice/internal/escalation"
	"assay-backoffice/internal/notify"
	"assay-backoffice/internal/service"
	"assay-backoffice/internal/storage"
)

// SimulateOptions drive an in-process run of the approval workflow.
type SimulateOptions struct {
	Exchange     string
	Price        decimal.Decimal
	Delay        time.Duration
	ApproveAfter time.Duration
}

// SimulateEscalation submits an exchange rate against an in-memory store with
// log-only notifications, then either approves it after ApproveAfter or lets
// the escalation fire. It returns the escalation outcome, if any fired.
func (a *App) SimulateEscalation(ctx context.Context, opts SimulateOptions) (*escalation.Outcome, error) {
	if opts.Delay <= 0 {
		return nil, errors.New("delay must be greater than zero")
	}
	if !opts.Price.IsPositive() {
		return nil, errors.New("price must be greater than zero")
	}

	store := storage.NewMemoryStore()
	seedSimulationUsers(store)
	store.PutItem(storage.Item{ID: "sim-exchange", Type: storage.RateTypeExchange, Name: opts.Exchange})

	outcomes := make(chan escalation.Outcome, 1)
	notifier := notify.NewService(store, nil, nil, a.Logger)
	escalations := escalation.New(store, service.NewEscalationNotifier(notifier, opts.Delay), escalation.Options{
		FireTimeout: a.Config.Escalation.FireTimeout,
		OnOutcome:   func(o escalation.Outcome) { outcomes <- o },
	}, a.Logger)
	defer escalations.ClearAll()

	rates := service.New(store, notifier, escalations, service.Options{EscalationDelay: opts.Delay}, a.Logger)

	submitter, _ := store.GetUser(ctx, "sim-teller")
	rec, err := rates.Submit(ctx, submitter, service.SubmitRequest{
		Type:   string(storage.RateTypeExchange),
		ItemID: "sim-exchange",
		Price:  &opts.Price,
	})
	if err != nil {
		return nil, fmt.Errorf("submit simulated rate: %w", err)
	}

	var approve <-chan time.Time
	if opts.ApproveAfter > 0 {
		timer := time.NewTimer(opts.ApproveAfter)
		defer timer.Stop()
		approve = timer.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o := <-outcomes:
		a.Logger.Info().Str("rate_id", o.RateID).Str("result", string(o.Result)).Msg("simulated escalation fired")
		return &o, nil
	case <-approve:
		approver, _ := store.GetUser(ctx, "sim-ceo")
		if _, err := rates.Decide(ctx, approver, rec.ID, service.DecideRequest{Action: "approve"}); err != nil {
			return nil, fmt.Errorf("approve simulated rate: %w", err)
		}
		a.Logger.Info().Str("rate_id", rec.ID).Int("armed", len(escalations.Scheduled())).Msg("simulated rate approved before escalation")
		return nil, nil
	}
}

func seedSimulationUsers(store *storage.MemoryStore) {
	phones := map[auth.Role]string{
		auth.RoleSuperAdmin: "+233 20 000 0001",
		auth.RoleCEO:        "+233 20 000 0002",
		auth.RoleDeputyCEO:  "+233 20 000 0003",
	}
	for role, p := range phones {
		p := p // per-iteration copy; go directive is below 1.22
		store.PutUser(storage.User{
			ID:       "sim-" + rolesSlug(role),
			Name:     "Simulated " + string(role),
			Email:    rolesSlug(role) + "@example.invalid",
			Phone:    &p,
			Role:     role,
			IsActive: true,
		})
	}
	store.PutUser(storage.User{ID: "sim-teller", Name: "Simulated TELLER", Role: auth.RoleTeller, IsActive: true})
}

func rolesSlug(r auth.Role) string {
	switch r {
	case auth.RoleSuperAdmin:
		return "superadmin"
	case auth.RoleCEO:
		return "ceo"
	case auth.RoleDeputyCEO:
		return "deputy"
	default:
		return "user"
	}
}
