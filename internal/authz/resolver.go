// Package authz decides whether a responder may apply a personnel-status
// transition to an emergency call. The resolver only decides; it performs no
// mutation and has no admin override: a mismatched affiliation is always
// rejected regardless of who asks.
package authz

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"emergency-response/internal/models"
)

var (
	// ErrInvalidStatus is returned when the requested status is not a known value.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrForbidden is returned when the responder's affiliation does not match
	// the call's service.
	ErrForbidden = errors.New("forbidden")
)

// Resolver authorizes personnel status transitions.
type Resolver struct {
	logger *zap.Logger
}

// NewResolver creates a new authorization resolver.
func NewResolver(logger *zap.Logger) *Resolver {
	return &Resolver{
		logger: logger.Named("authz"),
	}
}

// Authorize checks that requested is a valid status and that the responder's
// derived affiliation matches the call's service. The affiliation comes from
// the personnel's concrete type, so a client can never elevate itself by
// claiming a different service.
func (r *Resolver) Authorize(p models.Personnel, callService models.Service, requested models.Status) error {
	if !requested.Valid() {
		return errors.Wrapf(ErrInvalidStatus,
			"status %q is not one of %s, %s, %s",
			requested, models.StatusPending, models.StatusActive, models.StatusResolved)
	}

	affiliation := p.Affiliation()
	if affiliation != callService {
		r.logger.Warn("Status transition denied",
			zap.String("personnel_id", p.PersonnelID().String()),
			zap.String("role", p.RoleLabel()),
			zap.String("affiliation", string(affiliation)),
			zap.String("call_service", string(callService)))
		return errors.Wrapf(ErrForbidden,
			"personnel with role %q may not update a call for %s",
			p.RoleLabel(), callService)
	}

	return nil
}
