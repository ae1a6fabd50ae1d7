// Package service implements the policy CRUD operations on top of the
// repository layer.
package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/jbweber/homelab/policyd/internal/domain"
	"github.com/jbweber/homelab/policyd/internal/notify"
	"github.com/jbweber/homelab/policyd/internal/repository"
)

// PolicyService implements list, get, create, update and delete for policies.
// It holds no state of its own and is safe for concurrent use.
type PolicyService struct {
	repo      repository.Repository[domain.Policy, int64]
	mapper    Mapper
	publisher notify.Publisher
	logger    *zap.Logger
}

// NewPolicyService creates a policy service. A nil mapper, publisher or
// logger is replaced by PolicyMapper, notify.NopPublisher and a no-op logger.
func NewPolicyService(
	repo repository.Repository[domain.Policy, int64],
	mapper Mapper,
	publisher notify.Publisher,
	logger *zap.Logger,
) *PolicyService {
	if mapper == nil {
		mapper = PolicyMapper{}
	}
	if publisher == nil {
		publisher = notify.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyService{
		repo:      repo,
		mapper:    mapper,
		publisher: publisher,
		logger:    logger.Named("policy-service"),
	}
}

// ListPolicies returns every stored policy in store order
func (s *PolicyService) ListPolicies(ctx context.Context) ([]domain.PolicyDTO, error) {
	policies, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	dtos := make([]domain.PolicyDTO, 0, len(policies))
	for _, p := range policies {
		dtos = append(dtos, s.mapper.ToDTO(p))
	}
	return dtos, nil
}

// GetPolicy returns the policy stored under id, or a *NotFoundError
func (s *PolicyService) GetPolicy(ctx context.Context, id int64) (domain.PolicyDTO, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return domain.PolicyDTO{}, err
	}
	return s.mapper.ToDTO(p), nil
}

// CreatePolicy stores a new policy. Any id carried by dto is ignored.
func (s *PolicyService) CreatePolicy(ctx context.Context, dto domain.PolicyDTO) (domain.PolicyDTO, error) {
	entity := s.mapper.ToEntity(dto)
	entity.ID = 0

	saved, err := s.repo.Save(ctx, entity)
	if err != nil {
		return domain.PolicyDTO{}, err
	}

	s.logger.Info("policy created",
		zap.Int64("id", saved.ID),
		zap.String("policy_number", saved.PolicyNumber))
	s.publish(ctx, notify.OpCreated, saved.ID)

	return s.mapper.ToDTO(saved), nil
}

// UpdatePolicy replaces all business fields of the policy stored under id.
// The id carried by dto is ignored.
func (s *PolicyService) UpdatePolicy(ctx context.Context, id int64, dto domain.PolicyDTO) (domain.PolicyDTO, error) {
	existing, err := s.find(ctx, id)
	if err != nil {
		return domain.PolicyDTO{}, err
	}

	incoming := s.mapper.ToEntity(dto)
	existing.PolicyNumber = incoming.PolicyNumber
	existing.Type = incoming.Type
	existing.CoverageAmount = incoming.CoverageAmount
	existing.Premium = incoming.Premium
	existing.StartDate = incoming.StartDate
	existing.EndDate = incoming.EndDate

	saved, err := s.repo.Save(ctx, existing)
	if err != nil {
		// Deleted between the lookup and the write
		if errors.Is(err, repository.ErrNotFound) {
			return domain.PolicyDTO{}, &NotFoundError{ID: id}
		}
		return domain.PolicyDTO{}, err
	}

	s.logger.Info("policy updated", zap.Int64("id", saved.ID))
	s.publish(ctx, notify.OpUpdated, saved.ID)

	return s.mapper.ToDTO(saved), nil
}

// DeletePolicy permanently removes the policy stored under id
func (s *PolicyService) DeletePolicy(ctx context.Context, id int64) error {
	existing, err := s.find(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, existing); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &NotFoundError{ID: id}
		}
		return err
	}

	s.logger.Info("policy deleted", zap.Int64("id", id))
	s.publish(ctx, notify.OpDeleted, id)

	return nil
}

func (s *PolicyService) find(ctx context.Context, id int64) (domain.Policy, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Policy{}, &NotFoundError{ID: id}
		}
		return domain.Policy{}, err
	}
	return p, nil
}

// publish announces a committed write. Delivery failures never fail the request.
func (s *PolicyService) publish(ctx context.Context, op notify.Op, id int64) {
	if err := s.publisher.Publish(ctx, notify.Event{Op: op, ID: id}); err != nil {
		s.logger.Warn("policy event delivery failed",
			zap.String("op", string(op)),
			zap.Int64("id", id),
			zap.Error(err))
	}
}
