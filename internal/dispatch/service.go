// Package dispatch implements the call lifecycle: creation, the two
// independent status tracks, and the event emission each transition triggers.
//
// The two status fields are deliberately never reconciled. A caller may
// consider a situation resolved before responders confirm dispatch
// completion, or after; the system tracks both perspectives and leaves the
// disagreement visible. Status values are also not forward-only: a resolved
// call can be re-opened at any time, since a responder must always be able to
// correct a false resolution.
package dispatch

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"emergency-response/internal/authz"
	"emergency-response/internal/metrics"
	"emergency-response/internal/models"
	"emergency-response/internal/repository"
)

// CallStore is the persistence contract for emergency calls.
type CallStore interface {
	Create(ctx context.Context, call *models.EmergencyCall) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.EmergencyCall, error)
	List(ctx context.Context) ([]*models.EmergencyCall, error)
	ListByService(ctx context.Context, service models.Service) ([]*models.EmergencyCall, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.EmergencyCall, error)
	UpdateStatusByUser(ctx context.Context, id uuid.UUID, status models.Status) (*models.EmergencyCall, error)
	UpdateStatusByPersonnel(ctx context.Context, id uuid.UUID, status models.Status, by models.UpdatedBy) (*models.EmergencyCall, error)
}

// PersonnelDirectory is the persistence contract for the responder directory.
type PersonnelDirectory interface {
	Create(ctx context.Context, rec *models.PersonnelRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PersonnelRecord, error)
	GetByEmail(ctx context.Context, email string) (*models.PersonnelRecord, error)
	List(ctx context.Context) ([]*models.PersonnelRecord, error)
}

// Publisher is the relay contract. Delivery is best-effort; a publish error
// never fails the triggering request.
type Publisher interface {
	BroadcastToDashboards(event *models.Event) error
	NotifyUser(userID string, event *models.Event) error
}

// Requester identifies who is asking for a caller-side status change: the
// owning user's id from an authenticated session, or a phone number for
// anonymous calls.
type Requester struct {
	UserID *uuid.UUID
	Phone  string
}

// Service applies call lifecycle transitions.
type Service struct {
	store     CallStore
	directory PersonnelDirectory
	resolver  *authz.Resolver
	relay     Publisher
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// NewService creates the dispatch service. collector may be nil.
func NewService(
	store CallStore,
	directory PersonnelDirectory,
	resolver *authz.Resolver,
	relay Publisher,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:     store,
		directory: directory,
		resolver:  resolver,
		relay:     relay,
		metrics:   collector,
		logger:    logger.Named("dispatch"),
	}
}

// CreateCall validates and persists a new emergency call, then broadcasts it
// to every connected dashboard. userID is nil for anonymous calls, which must
// carry a fallback name or phone instead.
func (s *Service) CreateCall(ctx context.Context, req *models.CreateCallRequest, userID *uuid.UUID) (*models.EmergencyCall, error) {
	if !req.Service.Valid() {
		return nil, errors.Wrapf(ErrInvalidInput, "service %q is not a known service", req.Service)
	}
	if req.Latitude == nil || req.Longitude == nil {
		return nil, errors.Wrap(ErrInvalidInput, "latitude and longitude are required")
	}
	if userID == nil && req.Name == "" && req.Phone == "" {
		return nil, errors.Wrap(ErrInvalidInput, "an anonymous call requires a name or phone number")
	}

	call := &models.EmergencyCall{
		UserID:            userID,
		Service:           req.Service,
		Latitude:          *req.Latitude,
		Longitude:         *req.Longitude,
		StatusByUser:      models.StatusPending,
		StatusByPersonnel: models.StatusPending,
	}
	if req.Address != "" {
		call.Address = &req.Address
	}
	if userID == nil {
		if req.Name != "" {
			call.FallbackName = &req.Name
		}
		if req.Phone != "" {
			call.FallbackPhone = &req.Phone
		}
	}

	if err := s.store.Create(ctx, call); err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "persisting call: %v", err)
	}

	if s.metrics != nil {
		s.metrics.CallCreated(string(call.Service))
	}
	s.publish(&models.Event{Type: models.EventNewEmergencyCall, Call: call})

	return call, nil
}

// GetCall retrieves one call.
func (s *Service) GetCall(ctx context.Context, id uuid.UUID) (*models.EmergencyCall, error) {
	call, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	return call, nil
}

// ListCalls retrieves all calls, newest first.
func (s *Service) ListCalls(ctx context.Context) ([]*models.EmergencyCall, error) {
	calls, err := s.store.List(ctx)
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	return calls, nil
}

// ListCallsByService retrieves calls for one service.
func (s *Service) ListCallsByService(ctx context.Context, service models.Service) ([]*models.EmergencyCall, error) {
	if !service.Valid() {
		return nil, errors.Wrapf(ErrInvalidInput, "service %q is not a known service", service)
	}
	calls, err := s.store.ListByService(ctx, service)
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	return calls, nil
}

// ListCallsByUser retrieves calls owned by one user.
func (s *Service) ListCallsByUser(ctx context.Context, userID uuid.UUID) ([]*models.EmergencyCall, error) {
	calls, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	return calls, nil
}

// SetUserStatus applies a caller-side status change. The requester must own
// the call, or, for an anonymous call, present the phone number the call was
// created with. Any valid status is accepted from any state.
func (s *Service) SetUserStatus(ctx context.Context, id uuid.UUID, status models.Status, requester Requester) (*models.EmergencyCall, error) {
	if !status.Valid() {
		return nil, errors.Wrapf(ErrInvalidInput, "status %q is not a known status", status)
	}

	call, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapStoreError(err)
	}

	if call.Anonymous() {
		if call.FallbackPhone == nil || requester.Phone == "" || requester.Phone != *call.FallbackPhone {
			return nil, errors.Wrap(ErrForbidden, "phone number does not match the call record")
		}
	} else {
		if requester.UserID == nil || *requester.UserID != *call.UserID {
			return nil, errors.Wrap(ErrForbidden, "only the call owner may update the caller status")
		}
	}

	updated, err := s.store.UpdateStatusByUser(ctx, id, status)
	if err != nil {
		return nil, s.mapStoreError(err)
	}

	if s.metrics != nil {
		s.metrics.StatusUpdated("user")
	}
	s.publish(&models.Event{Type: models.EventCallUserUpdate, Call: updated})

	return updated, nil
}

// SetPersonnelStatus applies a responder-side status change. The responder is
// looked up in the directory and the affiliation check always runs against
// the stored record. On success the update is broadcast to dashboards and,
// when the call has an owning user, pushed to that user's sessions.
func (s *Service) SetPersonnelStatus(ctx context.Context, id uuid.UUID, status models.Status, personnelID uuid.UUID) (*models.EmergencyCall, error) {
	call, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapStoreError(err)
	}

	rec, err := s.directory.GetByID(ctx, personnelID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.Wrapf(ErrForbidden, "personnel %s is not registered", personnelID)
		}
		return nil, errors.Wrapf(ErrUnavailable, "loading personnel record: %v", err)
	}

	personnel, err := rec.Personnel()
	if err != nil {
		return nil, errors.Wrap(err, "corrupt personnel record")
	}

	if err := s.resolver.Authorize(personnel, call.Service, status); err != nil {
		switch {
		case errors.Is(err, authz.ErrInvalidStatus):
			return nil, errors.Wrapf(ErrInvalidInput, "%v", err)
		case errors.Is(err, authz.ErrForbidden):
			return nil, errors.Wrapf(ErrForbidden, "%v", err)
		}
		return nil, err
	}

	by := models.UpdatedBy{
		ID:   personnel.PersonnelID(),
		Name: personnel.DisplayName(),
		Role: personnel.RoleLabel(),
	}

	updated, err := s.store.UpdateStatusByPersonnel(ctx, id, status, by)
	if err != nil {
		return nil, s.mapStoreError(err)
	}

	if s.metrics != nil {
		s.metrics.StatusUpdated("personnel")
	}
	s.publish(&models.Event{Type: models.EventCallUpdated, Call: updated})
	if updated.UserID != nil {
		s.notifyOwner(updated.UserID.String(), &models.Event{Type: models.EventYourCallUpdated, Call: updated})
	}

	return updated, nil
}

// RegisterPersonnel adds a responder to the directory. Email addresses are
// unique across the directory.
func (s *Service) RegisterPersonnel(ctx context.Context, req *models.CreatePersonnelRequest) (*models.PersonnelRecord, error) {
	if req.Name == "" || req.Email == "" {
		return nil, errors.Wrap(ErrInvalidInput, "name and email are required")
	}

	if _, err := s.directory.GetByEmail(ctx, req.Email); err == nil {
		return nil, errors.Wrapf(ErrInvalidInput, "email %s is already registered", req.Email)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, errors.Wrapf(ErrUnavailable, "checking personnel email: %v", err)
	}

	rec := &models.PersonnelRecord{
		Name:  req.Name,
		Email: req.Email,
		Type:  req.Type,
	}

	switch req.Type {
	case models.PersonnelTypePolice:
		if req.SONumber != "" {
			so := req.SONumber
			rec.SONumber = &so
		}
	case models.PersonnelTypeFireHealth:
		if req.Role != models.RoleFire && req.Role != models.RoleHealth {
			return nil, errors.Wrapf(ErrInvalidInput, "role %q is not valid for fire-health personnel", req.Role)
		}
		role := req.Role
		rec.Role = &role
	default:
		return nil, errors.Wrapf(ErrInvalidInput, "personnel type %q is not known", req.Type)
	}

	if err := s.directory.Create(ctx, rec); err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "persisting personnel record: %v", err)
	}

	return rec, nil
}

// ListPersonnel retrieves the responder directory.
func (s *Service) ListPersonnel(ctx context.Context) ([]*models.PersonnelRecord, error) {
	recs, err := s.directory.List(ctx)
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "listing personnel: %v", err)
	}
	return recs, nil
}

// publish broadcasts an event to dashboards. Delivery failures are swallowed:
// a dead session never fails the request that triggered the event.
func (s *Service) publish(event *models.Event) {
	if err := s.relay.BroadcastToDashboards(event); err != nil {
		s.logger.Debug("Event broadcast failed",
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
}

// notifyOwner pushes an event to the owning user's sessions, if any.
func (s *Service) notifyOwner(userID string, event *models.Event) {
	if err := s.relay.NotifyUser(userID, event); err != nil {
		s.logger.Debug("User notification failed",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

func (s *Service) mapStoreError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return errors.Wrapf(ErrNotFound, "%v", err)
	}
	return errors.Wrapf(ErrUnavailable, "%v", err)
}
