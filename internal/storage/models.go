package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"assay-backoffice/internal/auth"
)

// RateType distinguishes commodity prices from exchange rates.
type RateType string

const (
	RateTypeCommodity RateType = "COMMODITY"
	RateTypeExchange  RateType = "EXCHANGE"
)

// ParseRateType parses a rate type case-insensitively.
func ParseRateType(s string) (RateType, error) {
	switch t := RateType(strings.ToUpper(strings.TrimSpace(s))); t {
	case RateTypeCommodity, RateTypeExchange:
		return t, nil
	default:
		return "", fmt.Errorf("unknown rate type %q", s)
	}
}

// RateStatus is the approval lifecycle state of a rate record.
type RateStatus string

const (
	StatusPending  RateStatus = "PENDING"
	StatusApproved RateStatus = "APPROVED"
	StatusRejected RateStatus = "REJECTED"
)

// RateRecord is one commodity or exchange price for a week.
type RateRecord struct {
	ID               string          `json:"id"`
	Type             RateType        `json:"type"`
	ItemID           string          `json:"itemId"`
	ItemName         string          `json:"itemName,omitempty"`
	Price            decimal.Decimal `json:"price"`
	WeekStartDate    time.Time       `json:"weekStartDate"`
	WeekEndDate      time.Time       `json:"weekEndDate"`
	Status           RateStatus      `json:"status"`
	SubmittedBy      string          `json:"submittedBy"`
	SubmittedByName  string          `json:"submittedByName,omitempty"`
	ApprovedBy       *string         `json:"approvedBy"`
	ApprovedByName   *string         `json:"approvedByName,omitempty"`
	ApprovedAt       *time.Time      `json:"approvedAt"`
	RejectionReason  *string         `json:"rejectionReason"`
	NotificationSent bool            `json:"notificationSent"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// Decision is the outcome applied to a pending record.
type Decision struct {
	Status    RateStatus
	DecidedBy string
	DecidedAt time.Time
	Reason    *string
}

// RateFilter narrows rate listings. Zero values mean "any".
type RateFilter struct {
	Type         RateType
	ItemID       string
	WeekStart    *time.Time
	ApprovedOnly bool
	Limit        int
}

// User is a back-office account that can receive notifications.
type User struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email,omitempty"`
	Phone    *string   `json:"phone,omitempty"`
	Role     auth.Role `json:"role"`
	IsActive bool      `json:"isActive"`
}

// Item is an exchange or commodity referenced by rate records.
type Item struct {
	ID   string
	Type RateType
	Name string
}
