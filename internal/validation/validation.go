// Package validation checks policy transfer objects before they reach the
// service layer.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"

	"github.com/jbweber/homelab/policyd/internal/domain"
)

// Amounts must fit the NUMERIC(19,2) columns that store them
const (
	amountScale         = 2
	amountIntegerDigits = 17

	// literals with more fraction digits than this are rejected without
	// checking whether the excess is all zeros
	maxAmountFractionDigits = 18
)

// Rules are the optional business rules applied on top of the required-field checks
type Rules struct {
	NonNegativeAmounts bool     // coverageAmount and premium must be >= 0
	RequireDateOrder   bool     // startDate must not be after endDate
	AllowedTypes       []string // empty allows any non-blank type
}

// DefaultRules returns the rules enabled out of the box
func DefaultRules() Rules {
	return Rules{
		NonNegativeAmounts: true,
		RequireDateOrder:   true,
	}
}

// FieldError describes a single rejected field, named by its JSON key
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is returned when a policy fails validation
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// FieldMap returns the failures keyed by field
func (e *Error) FieldMap() map[string]string {
	m := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		if _, seen := m[f.Field]; !seen {
			m[f.Field] = f.Message
		}
	}
	return m
}

// Validator validates PolicyDTOs against a rule set. It is safe for concurrent use.
type Validator struct {
	validate *validator.Validate
	rules    Rules
	allowed  map[string]struct{}
}

// New creates a Validator enforcing rules
func New(rules Rules) *Validator {
	v := &Validator{
		validate: validator.New(),
		rules:    rules,
		allowed:  make(map[string]struct{}, len(rules.AllowedTypes)),
	}
	for _, t := range rules.AllowedTypes {
		if t = strings.TrimSpace(t); t != "" {
			v.allowed[strings.ToUpper(t)] = struct{}{}
		}
	}

	v.validate.RegisterTagNameFunc(jsonFieldName)
	v.validate.RegisterCustomTypeFunc(presenceValue, decimal.NullDecimal{}, civil.Date{})
	// notblank is registered from the non-standard set; the error is impossible for a fixed tag
	_ = v.validate.RegisterValidation("notblank", validators.NotBlank)
	v.validate.RegisterStructValidation(v.policyRules, domain.PolicyDTO{})

	return v
}

// Rules returns the rule set in effect
func (v *Validator) Rules() Rules {
	return v.rules
}

// ValidatePolicy returns a *Error describing every rejected field, or nil
func (v *Validator) ValidatePolicy(dto domain.PolicyDTO) error {
	err := v.validate.Struct(dto)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate policy: %w", err)
	}

	out := &Error{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return out
}

func (v *Validator) policyRules(sl validator.StructLevel) {
	dto := sl.Current().Interface().(domain.PolicyDTO)

	if tag := amountViolation(dto.CoverageAmount); tag != "" {
		sl.ReportError(dto.CoverageAmount, "coverageAmount", "CoverageAmount", tag, "")
	}
	if tag := amountViolation(dto.Premium); tag != "" {
		sl.ReportError(dto.Premium, "premium", "Premium", tag, "")
	}

	if v.rules.NonNegativeAmounts {
		if dto.CoverageAmount.Valid && dto.CoverageAmount.Decimal.IsNegative() {
			sl.ReportError(dto.CoverageAmount, "coverageAmount", "CoverageAmount", "nonnegative", "")
		}
		if dto.Premium.Valid && dto.Premium.Decimal.IsNegative() {
			sl.ReportError(dto.Premium, "premium", "Premium", "nonnegative", "")
		}
	}

	if v.rules.RequireDateOrder && dto.StartDate.IsValid() && dto.EndDate.IsValid() {
		if dto.EndDate.Before(dto.StartDate) {
			sl.ReportError(dto.EndDate, "endDate", "EndDate", "afterstart", "startDate")
		}
	}

	if len(v.allowed) > 0 && strings.TrimSpace(dto.Type) != "" {
		if _, ok := v.allowed[strings.ToUpper(strings.TrimSpace(dto.Type))]; !ok {
			sl.ReportError(dto.Type, "type", "Type", "oneof", strings.Join(v.rules.AllowedTypes, ", "))
		}
	}
}

// amountViolation returns the failing tag when a present amount cannot be
// stored without rounding. Only the coefficient length and exponent are
// inspected before the bounds hold, so huge exponents are never expanded.
func amountViolation(amount decimal.NullDecimal) string {
	if !amount.Valid {
		return ""
	}
	d := amount.Decimal
	exp := int64(d.Exponent())

	if int64(d.NumDigits())+exp > amountIntegerDigits {
		return "magnitude"
	}
	if exp >= -amountScale {
		return ""
	}
	if -exp > maxAmountFractionDigits || !d.Equal(d.Truncate(amountScale)) {
		return "scale"
	}
	return ""
}

// presenceValue exposes nullable amounts and dates to the required tag
func presenceValue(field reflect.Value) interface{} {
	switch val := field.Interface().(type) {
	case decimal.NullDecimal:
		if !val.Valid {
			return nil
		}
		return true
	case civil.Date:
		if !val.IsValid() {
			return ""
		}
		return val.String()
	}
	return nil
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "notblank":
		return "must not be blank"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "magnitude":
		return fmt.Sprintf("must be less than 10^%d in absolute value", amountIntegerDigits)
	case "scale":
		return fmt.Sprintf("must have at most %d decimal places", amountScale)
	case "nonnegative":
		return "must not be negative"
	case "afterstart":
		return "must not be before " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}
