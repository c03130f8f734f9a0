package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// SubmitRequest is the body of a new weekly price submission.
type SubmitRequest struct {
	Type          string           `json:"type" validate:"required,oneof=COMMODITY EXCHANGE"`
	ItemID        string           `json:"itemId" validate:"required"`
	Price         *decimal.Decimal `json:"price" validate:"required"`
	WeekStartDate string           `json:"weekStartDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// DecideRequest is the body of an approve/reject call.
type DecideRequest struct {
	Action string `json:"action" validate:"required,oneof=approve reject"`
	Reason string `json:"reason,omitempty" validate:"required_if=Action reject"`
}

// ListFilter narrows a rate listing. Week is any date within the wanted week.
type ListFilter struct {
	Type         string
	ItemID       string
	Week         string
	ApprovedOnly bool
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

func (r *SubmitRequest) normalize() {
	r.Type = strings.ToUpper(strings.TrimSpace(r.Type))
	r.ItemID = strings.TrimSpace(r.ItemID)
	r.WeekStartDate = strings.TrimSpace(r.WeekStartDate)
}

func (r *SubmitRequest) validate() error {
	r.normalize()
	if err := validateStruct(r); err != nil {
		return err
	}
	if !r.Price.IsPositive() {
		return fmt.Errorf("%w: price must be greater than zero", ErrInvalidInput)
	}
	return nil
}

func (r *DecideRequest) validate() error {
	r.Action = strings.ToLower(strings.TrimSpace(r.Action))
	r.Reason = strings.TrimSpace(r.Reason)
	return validateStruct(r)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describeField(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(msgs, "; "))
}

func describeField(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "required_if":
		return fe.Field() + " is required when rejecting"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "datetime":
		return fe.Field() + " must be YYYY-MM-DD"
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
