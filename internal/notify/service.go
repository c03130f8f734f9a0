package notify

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"assay-backoffice/internal/auth"
	"assay-backoffice/internal/storage"
)

var notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "assay_notifications_total",
	Help: "Notification delivery attempts by channel and result",
}, []string{"channel", "result"})

// Channel selects how a user is contacted.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelBoth  Channel = "both"
)

func (c Channel) includes(other Channel) bool {
	return c == other || c == ChannelBoth
}

// Service resolves recipients by role and delivers over SMS and email.
// Delivery is best-effort: failures are logged and never returned.
type Service struct {
	users  storage.UserStore
	sms    SMSProvider
	email  EmailProvider
	logger zerolog.Logger
}

// NewService wires the sender. A nil provider puts that channel in dev mode:
// messages are logged and reported as delivered.
func NewService(users storage.UserStore, sms SMSProvider, email EmailProvider, logger zerolog.Logger) *Service {
	return &Service{
		users:  users,
		sms:    sms,
		email:  email,
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// SendEmail delivers one email and reports success.
func (s *Service) SendEmail(ctx context.Context, to, subject, message string) bool {
	to = strings.TrimSpace(to)
	if to == "" {
		s.logger.Warn().Str("subject", subject).Msg("email skipped: empty address")
		notificationsTotal.WithLabelValues(string(ChannelEmail), "invalid").Inc()
		return false
	}

	if s.email == nil {
		s.logger.Info().Str("to", to).Str("subject", subject).Str("body", message).Msg("email provider not configured; logging message instead")
		notificationsTotal.WithLabelValues(string(ChannelEmail), "dev").Inc()
		return true
	}

	if err := s.email.SendEmail(ctx, to, subject, message); err != nil {
		s.logger.Error().Err(err).Str("to", to).Str("subject", subject).Msg("email delivery failed")
		notificationsTotal.WithLabelValues(string(ChannelEmail), "failed").Inc()
		return false
	}
	notificationsTotal.WithLabelValues(string(ChannelEmail), "sent").Inc()
	return true
}

// SendSMS validates the number and delivers one text message.
func (s *Service) SendSMS(ctx context.Context, to, message string) bool {
	if !validPhone(to) {
		s.logger.Warn().Str("to", to).Msg("sms skipped: invalid phone number")
		notificationsTotal.WithLabelValues(string(ChannelSMS), "invalid").Inc()
		return false
	}
	number := phoneDigits(to)

	if s.sms == nil {
		s.logger.Info().Str("to", number).Str("body", message).Msg("sms provider not configured; logging message instead")
		notificationsTotal.WithLabelValues(string(ChannelSMS), "dev").Inc()
		return true
	}

	if err := s.sms.SendSMS(ctx, []string{number}, message); err != nil {
		s.logger.Error().Err(err).Str("to", number).Msg("sms delivery failed")
		notificationsTotal.WithLabelValues(string(ChannelSMS), "failed").Inc()
		return false
	}
	notificationsTotal.WithLabelValues(string(ChannelSMS), "sent").Inc()
	return true
}

// NotifyUsersWithRoles contacts every user holding one of roles over channel.
// Users are handled independently; a missing address only skips that user.
func (s *Service) NotifyUsersWithRoles(ctx context.Context, roles auth.RoleSet, subject, message string, channel Channel) {
	users, err := s.users.ListUsersByRoles(ctx, roles.Roles(), false)
	if err != nil {
		s.logger.Error().Err(err).Strs("roles", roles.Strings()).Msg("load notification recipients")
		return
	}
	s.deliver(ctx, users, subject, message, channel)
}

// NotifySuperAdmins emails every active SUPERADMIN.
func (s *Service) NotifySuperAdmins(ctx context.Context, subject, message string) {
	users, err := s.users.ListUsersByRoles(ctx, []auth.Role{auth.RoleSuperAdmin}, true)
	if err != nil {
		s.logger.Error().Err(err).Msg("load super admins")
		return
	}
	s.deliver(ctx, users, subject, message, ChannelEmail)
}

func (s *Service) deliver(ctx context.Context, users []storage.User, subject, message string, channel Channel) {
	if len(users) == 0 {
		s.logger.Warn().Str("subject", subject).Msg("no recipients found")
		return
	}

	var sent, failed, skipped int
	for _, u := range users {
		if channel.includes(ChannelEmail) {
			switch {
			case strings.TrimSpace(u.Email) == "":
				skipped++
				s.logger.Debug().Str("user_id", u.ID).Msg("user has no email address")
			case s.SendEmail(ctx, u.Email, subject, message):
				sent++
			default:
				failed++
			}
		}
		if channel.includes(ChannelSMS) {
			switch {
			case u.Phone == nil || strings.TrimSpace(*u.Phone) == "":
				skipped++
				s.logger.Warn().Str("user_id", u.ID).Str("role", string(u.Role)).Msg("user has no phone number")
			case s.SendSMS(ctx, *u.Phone, message):
				sent++
			default:
				failed++
			}
		}
	}

	s.logger.Info().
		Str("subject", subject).
		Str("channel", string(channel)).
		Int("users", len(users)).
		Int("sent", sent).
		Int("failed", failed).
		Int("skipped", skipped).
		Msg("notification dispatched")
}
