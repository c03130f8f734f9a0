package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"assay-backoffice/internal/api"
	"assay-backoffice/internal/auth"
	"assay-backoffice/internal/config"
	"assay-backoffice/internal/escalation"
	"assay-backoffice/internal/notify"
	"assay-backoffice/internal/scheduler"
	"assay-backoffice/internal/service"
	"assay-backoffice/internal/storage"
)

const devAdminID = "dev-admin"

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

type backend interface {
	storage.RateStore
	storage.UserStore
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// openBackend returns the PostgreSQL store, or an in-memory store with a
// seeded super admin when no DSN is configured outside production.
func (a *App) openBackend(ctx context.Context) (backend, func(), error) {
	store, closer, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store != nil {
		return store, closer, nil
	}
	if a.Config.IsProduction() {
		return nil, nil, errors.New("database.dsn is required in production")
	}

	a.Logger.Warn().Msg("database.dsn not configured; using in-memory store, data is lost on exit")
	mem := storage.NewMemoryStore()
	mem.PutUser(storage.User{ID: devAdminID, Name: "Dev Admin", Role: auth.RoleSuperAdmin, IsActive: true})
	return mem, func() {}, nil
}

// requireStore opens the PostgreSQL store for commands that only make sense against it.
func (a *App) requireStore(ctx context.Context, action string) (*storage.Store, func(), error) {
	store, closer, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, fmt.Errorf("database not configured; cannot %s", action)
	}
	return store, closer, nil
}

func (a *App) newNotifier(users storage.UserStore) *notify.Service {
	var sms notify.SMSProvider
	if cfg := a.Config.SMS; cfg.APIKey != "" {
		sms = notify.NewHTTPSMSProvider(notify.HTTPSMSOptions{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Sender:  cfg.Sender,
			Timeout: cfg.RequestTimeout,
		}, a.Logger)
	} else {
		a.Logger.Warn().Msg("sms.api_key not configured; SMS messages will only be logged")
	}

	var email notify.EmailProvider
	if cfg := a.Config.Email; cfg.APIKey != "" {
		email = notify.NewSendgridProvider(notify.SendgridOptions{
			APIKey:        cfg.APIKey,
			FromAddress:   cfg.FromAddress,
			FromName:      cfg.FromName,
			SubjectPrefix: cfg.SubjectPrefix,
		}, a.Logger)
	} else {
		a.Logger.Warn().Msg("email.api_key not configured; emails will only be logged")
	}

	return notify.NewService(users, sms, email, a.Logger)
}

func (a *App) newTokens() (*auth.Tokens, error) {
	return auth.NewTokens(a.Config.Auth.JWTSecret, a.Config.Auth.Issuer, a.Config.Auth.TokenTTL)
}

// Serve runs the HTTP API, the escalation scheduler and the queue monitor
// until SIGINT or SIGTERM.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	tokens, err := a.newTokens()
	if err != nil {
		return err
	}

	notifier := a.newNotifier(store)
	escalations := escalation.New(store, service.NewEscalationNotifier(notifier, a.Config.Escalation.Delay), escalation.Options{
		FireTimeout: a.Config.Escalation.FireTimeout,
	}, a.Logger)
	defer escalations.ClearAll()

	rates := service.New(store, notifier, escalations, service.Options{
		EscalationDelay: a.Config.Escalation.Delay,
	}, a.Logger)

	if _, ok := store.(*storage.MemoryStore); ok {
		if token, err := tokens.Issue(devAdminID, auth.RoleSuperAdmin); err == nil {
			a.Logger.Warn().Str("user_id", devAdminID).Str("token", token).Msg("issued development token")
		}
	}

	handler := api.NewServer(api.Deps{
		Rates:     rates,
		Readiness: notifier,
		Armed:     escalations,
		Users:     store,
		Tokens:    tokens,
	}, a.Logger)

	srv := &http.Server{
		Addr:         a.Config.Server.Address,
		Handler:      handler,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}

	if a.Config.Monitor.Enabled {
		sched, err := scheduler.New(scheduler.Options{
			Name:        "approval-monitor",
			Interval:    a.Config.Monitor.Interval,
			AlignToSlot: true,
		}, a.Logger)
		if err != nil {
			return err
		}
		monitor := service.NewMonitor(store, escalations, a.Logger)
		go func() {
			if err := sched.Run(ctx, monitor.Tick); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Error().Err(err).Msg("monitor stopped")
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("address", srv.Addr).Msg("starting http server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			a.Logger.Error().Err(err).Msg("http server terminated with error")
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error().Err(err).Msg("http server shutdown")
		return err
	}

	a.Logger.Info().Msg("service stopped")
	return nil
}

// Migrate applies the embedded schema to the configured database.
func (a *App) Migrate(ctx context.Context) error {
	store, closeStore, err := a.requireStore(ctx, "migrate")
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	a.Logger.Info().Msg("schema applied")
	return nil
}

// ExportOptions hold parameters for exporting rate history.
type ExportOptions struct {
	Type     string
	ItemID   string
	From     *time.Time
	To       *time.Time
	CSVPath  string
	XLSXPath string
	PNGPath  string
	MaxRows  int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Type   string
	ItemID string
}

// NotifyTestOptions configure a one-off delivery check.
type NotifyTestOptions struct {
	Phone   string
	Email   string
	Message string
}
