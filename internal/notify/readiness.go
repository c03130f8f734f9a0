package notify

import (
	"context"
	"fmt"
	"strings"

	"assay-backoffice/internal/auth"
)

// PhoneState classifies a user's phone number for SMS delivery.
type PhoneState string

const (
	PhoneValid   PhoneState = "valid"
	PhoneInvalid PhoneState = "invalid"
	PhoneMissing PhoneState = "missing"
)

// RecipientReadiness is one user's SMS reachability.
type RecipientReadiness struct {
	UserID string     `json:"userId"`
	Name   string     `json:"name"`
	Role   auth.Role  `json:"role"`
	Phone  string     `json:"phone,omitempty"`
	State  PhoneState `json:"state"`
}

// Readiness summarises SMS reachability for a role set.
type Readiness struct {
	Roles        []string             `json:"roles"`
	Total        int                  `json:"total"`
	ValidPhone   int                  `json:"validPhone"`
	InvalidPhone int                  `json:"invalidPhone"`
	NoPhone      int                  `json:"noPhone"`
	Users        []RecipientReadiness `json:"users"`
}

// CheckSMSReadiness reports how many users in roles could receive an SMS right now.
func (s *Service) CheckSMSReadiness(ctx context.Context, roles auth.RoleSet) (Readiness, error) {
	users, err := s.users.ListUsersByRoles(ctx, roles.Roles(), false)
	if err != nil {
		return Readiness{}, fmt.Errorf("load users for sms readiness: %w", err)
	}

	out := Readiness{Roles: roles.Strings(), Total: len(users), Users: make([]RecipientReadiness, 0, len(users))}
	for _, u := range users {
		entry := RecipientReadiness{UserID: u.ID, Name: u.Name, Role: u.Role}
		switch {
		case u.Phone == nil || strings.TrimSpace(*u.Phone) == "":
			entry.State = PhoneMissing
			out.NoPhone++
		case validPhone(*u.Phone):
			entry.Phone = *u.Phone
			entry.State = PhoneValid
			out.ValidPhone++
		default:
			entry.Phone = *u.Phone
			entry.State = PhoneInvalid
			out.InvalidPhone++
		}
		out.Users = append(out.Users, entry)
	}
	return out, nil
}

// LogSMSReadiness logs the expected SMS coverage before a blast.
func (s *Service) LogSMSReadiness(ctx context.Context, roles auth.RoleSet) {
	r, err := s.CheckSMSReadiness(ctx, roles)
	if err != nil {
		s.logger.Warn().Err(err).Msg("sms readiness check failed")
		return
	}
	ev := s.logger.Info()
	if r.ValidPhone == 0 {
		ev = s.logger.Warn()
	}
	ev.Strs("roles", r.Roles).
		Int("total", r.Total).
		Int("valid_phone", r.ValidPhone).
		Int("invalid_phone", r.InvalidPhone).
		Int("no_phone", r.NoPhone).
		Msg("sms readiness")
}
