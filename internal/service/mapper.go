package service

import (
	"github.com/shopspring/decimal"

	"github.com/jbweber/homelab/policyd/internal/domain"
)

// Mapper converts between stored policies and their transfer representation
type Mapper interface {
	ToDTO(p domain.Policy) domain.PolicyDTO
	ToEntity(dto domain.PolicyDTO) domain.Policy
}

// PolicyMapper is the field-by-field Mapper
type PolicyMapper struct{}

// ToDTO implements Mapper
func (PolicyMapper) ToDTO(p domain.Policy) domain.PolicyDTO {
	id := p.ID
	return domain.PolicyDTO{
		ID:             &id,
		PolicyNumber:   p.PolicyNumber,
		Type:           p.Type,
		CoverageAmount: decimal.NewNullDecimal(p.CoverageAmount),
		Premium:        decimal.NewNullDecimal(p.Premium),
		StartDate:      p.StartDate,
		EndDate:        p.EndDate,
	}
}

// ToEntity implements Mapper. A DTO without an id yields an unsaved entity.
func (PolicyMapper) ToEntity(dto domain.PolicyDTO) domain.Policy {
	p := domain.Policy{
		PolicyNumber:   dto.PolicyNumber,
		Type:           dto.Type,
		CoverageAmount: dto.CoverageAmount.Decimal,
		Premium:        dto.Premium.Decimal,
		StartDate:      dto.StartDate,
		EndDate:        dto.EndDate,
	}
	if dto.ID != nil {
		p.ID = *dto.ID
	}
	return p
}
