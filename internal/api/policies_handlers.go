package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jbweber/homelab/policyd/internal/domain"
	"github.com/jbweber/homelab/policyd/internal/validation"
)

// PolicyService defines the service interface for policy handlers
type PolicyService interface {
	ListPolicies(ctx context.Context) ([]domain.PolicyDTO, error)
	GetPolicy(ctx context.Context, id int64) (domain.PolicyDTO, error)
	CreatePolicy(ctx context.Context, dto domain.PolicyDTO) (domain.PolicyDTO, error)
	UpdatePolicy(ctx context.Context, id int64, dto domain.PolicyDTO) (domain.PolicyDTO, error)
	DeletePolicy(ctx context.Context, id int64) error
}

// Policies groups policy handlers for testability
type Policies struct {
	service   PolicyService
	validator *validation.Validator
	logger    *zap.Logger
}

// NewPolicies creates the policy handlers
func NewPolicies(svc PolicyService, v *validation.Validator, logger *zap.Logger) *Policies {
	return &Policies{service: svc, validator: v, logger: logger}
}

// RegisterPolicyRoutes mounts the policy endpoints under /api/policies
func RegisterPolicyRoutes(r chi.Router, p *Policies) {
	r.Route("/api/policies", func(r chi.Router) {
		r.Get("/", p.ListPoliciesHandler)
		r.Post("/", p.CreatePolicyHandler)
		r.Get("/{id}", p.GetPolicyHandler)
		r.Put("/{id}", p.UpdatePolicyHandler)
		r.Delete("/{id}", p.DeletePolicyHandler)
	})
}

// ListPoliciesHandler handles GET /api/policies
func (p *Policies) ListPoliciesHandler(w http.ResponseWriter, r *http.Request) {
	policies, err := p.service.ListPolicies(r.Context())
	if err != nil {
		writeServiceError(p.logger, w, r, err, "Failed to list policies")
		return
	}
	writeJSON(p.logger, w, http.StatusOK, policies)
}

// GetPolicyHandler handles GET /api/policies/{id}
func (p *Policies) GetPolicyHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(p.logger, w, http.StatusBadRequest, "Invalid policy ID")
		return
	}

	policy, err := p.service.GetPolicy(r.Context(), id)
	if err != nil {
		writeServiceError(p.logger, w, r, err, "Failed to get policy")
		return
	}
	writeJSON(p.logger, w, http.StatusOK, policy)
}

// CreatePolicyHandler handles POST /api/policies.
//
// Request: PolicyDTO JSON body; any "id" is ignored.
// Response: 201 Created with the stored policy and a Location header,
// or 400 for malformed or invalid input.
func (p *Policies) CreatePolicyHandler(w http.ResponseWriter, r *http.Request) {
	dto, ok := p.bindPolicy(w, r)
	if !ok {
		return
	}

	created, err := p.service.CreatePolicy(r.Context(), dto)
	if err != nil {
		writeServiceError(p.logger, w, r, err, "Failed to create policy")
		return
	}

	if created.ID != nil {
		w.Header().Set("Location", fmt.Sprintf("/api/policies/%d", *created.ID))
	}
	writeJSON(p.logger, w, http.StatusCreated, created)
}

// UpdatePolicyHandler handles PUT /api/policies/{id}.
//
// All business fields are replaced; the path id wins over any id in the body.
func (p *Policies) UpdatePolicyHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(p.logger, w, http.StatusBadRequest, "Invalid policy ID")
		return
	}

	dto, ok := p.bindPolicy(w, r)
	if !ok {
		return
	}

	updated, err := p.service.UpdatePolicy(r.Context(), id, dto)
	if err != nil {
		writeServiceError(p.logger, w, r, err, "Failed to update policy")
		return
	}
	writeJSON(p.logger, w, http.StatusOK, updated)
}

// DeletePolicyHandler handles DELETE /api/policies/{id}
func (p *Policies) DeletePolicyHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(p.logger, w, http.StatusBadRequest, "Invalid policy ID")
		return
	}

	if err := p.service.DeletePolicy(r.Context(), id); err != nil {
		writeServiceError(p.logger, w, r, err, "Failed to delete policy")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// bindPolicy decodes and validates the request body, writing a 400 on failure
func (p *Policies) bindPolicy(w http.ResponseWriter, r *http.Request) (domain.PolicyDTO, bool) {
	var dto domain.PolicyDTO
	if err := decodeJSON(w, r, &dto); err != nil {
		writeError(p.logger, w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return domain.PolicyDTO{}, false
	}

	if err := p.validator.ValidatePolicy(dto); err != nil {
		writeServiceError(p.logger, w, r, err, "Failed to validate policy")
		return domain.PolicyDTO{}, false
	}
	return dto, true
}
