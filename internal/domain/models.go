package domain

import (
	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"
)

func init() {
	// Amounts go over the wire as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Policy represents an insurance policy as it is persisted
type Policy struct {
	ID             int64           // Unique identifier, assigned by the store
	PolicyNumber   string          // Caller-supplied policy number
	Type           string          // Policy type (e.g., "AUTO", "HOME")
	CoverageAmount decimal.Decimal // Insured amount
	Premium        decimal.Decimal // Premium amount
	StartDate      civil.Date      // First day of coverage
	EndDate        civil.Date      // Last day of coverage
}

// IsNew reports whether the policy has not been stored yet
func (p Policy) IsNew() bool {
	return p.ID == 0
}

// PolicyDTO is the externally visible representation of a Policy, used for
// both request and response bodies.
//
// Amounts are nullable so a missing value can be told apart from zero.
type PolicyDTO struct {
	ID             *int64              `json:"id"`
	PolicyNumber   string              `json:"policyNumber" validate:"notblank,max=64"`
	Type           string              `json:"type" validate:"notblank,max=32"`
	CoverageAmount decimal.NullDecimal `json:"coverageAmount" validate:"required"`
	Premium        decimal.NullDecimal `json:"premium" validate:"required"`
	StartDate      civil.Date          `json:"startDate" validate:"required"`
	EndDate        civil.Date          `json:"endDate" validate:"required"`
}
