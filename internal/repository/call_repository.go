package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"emergency-response/internal/database"
	"emergency-response/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// CallRepository handles emergency call persistence. All reads return calls
// newest-first; all writes are single-row atomic updates.
type CallRepository struct {
	*database.Repository
}

// NewCallRepository creates a new call repository.
func NewCallRepository(db *database.Database, logger *zap.Logger) *CallRepository {
	return &CallRepository{
		Repository: database.NewRepository(db, logger.Named("call_repository")),
	}
}

// Create persists a new emergency call.
func (r *CallRepository) Create(ctx context.Context, call *models.EmergencyCall) error {
	if call.ID == uuid.Nil {
		call.ID = uuid.New()
	}
	call.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO emergency_calls (
			id, user_id, fallback_name, fallback_phone, service,
			latitude, longitude, address, status_by_user, status_by_personnel,
			last_updated_by, created_at
		) VALUES (
			:id, :user_id, :fallback_name, :fallback_phone, :service,
			:latitude, :longitude, :address, :status_by_user, :status_by_personnel,
			:last_updated_by, :created_at
		)`

	if _, err := r.DB().NamedExecContext(ctx, query, call); err != nil {
		return errors.Wrap(err, "failed to create emergency call")
	}

	r.Logger().Info("Emergency call created",
		zap.String("call_id", call.ID.String()),
		zap.String("service", string(call.Service)))
	return nil
}

// GetByID retrieves a call by ID.
func (r *CallRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.EmergencyCall, error) {
	var call models.EmergencyCall

	query := `SELECT * FROM emergency_calls WHERE id = $1`

	if err := r.DB().GetContext(ctx, &call, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "emergency call %s", id)
		}
		return nil, errors.Wrap(err, "failed to get emergency call")
	}

	return &call, nil
}

// List retrieves all calls, newest first.
func (r *CallRepository) List(ctx context.Context) ([]*models.EmergencyCall, error) {
	var calls []*models.EmergencyCall

	query := `SELECT * FROM emergency_calls ORDER BY created_at DESC`

	if err := r.DB().SelectContext(ctx, &calls, query); err != nil {
		return nil, errors.Wrap(err, "failed to list emergency calls")
	}

	return calls, nil
}

// ListByService retrieves calls for one service, newest first.
func (r *CallRepository) ListByService(ctx context.Context, service models.Service) ([]*models.EmergencyCall, error) {
	var calls []*models.EmergencyCall

	query := `SELECT * FROM emergency_calls WHERE service = $1 ORDER BY created_at DESC`

	if err := r.DB().SelectContext(ctx, &calls, query, service); err != nil {
		return nil, errors.Wrapf(err, "failed to list calls for service %s", service)
	}

	return calls, nil
}

// ListByUser retrieves calls owned by one user, newest first.
func (r *CallRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.EmergencyCall, error) {
	var calls []*models.EmergencyCall

	query := `SELECT * FROM emergency_calls WHERE user_id = $1 ORDER BY created_at DESC`

	if err := r.DB().SelectContext(ctx, &calls, query, userID); err != nil {
		return nil, errors.Wrapf(err, "failed to list calls for user %s", userID)
	}

	return calls, nil
}

// UpdateStatusByUser sets the caller-side status and returns the updated row.
// Last write wins on concurrent updates; there is no version check.
func (r *CallRepository) UpdateStatusByUser(ctx context.Context, id uuid.UUID, status models.Status) (*models.EmergencyCall, error) {
	var call models.EmergencyCall

	query := `
		UPDATE emergency_calls
		SET status_by_user = $2
		WHERE id = $1
		RETURNING *`

	if err := r.DB().GetContext(ctx, &call, query, id, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "emergency call %s", id)
		}
		return nil, errors.Wrap(err, "failed to update user status")
	}

	r.Logger().Info("Caller status updated",
		zap.String("call_id", id.String()),
		zap.String("status", string(status)))
	return &call, nil
}

// UpdateStatusByPersonnel sets the responder-side status together with the
// record of who applied it, and returns the updated row.
func (r *CallRepository) UpdateStatusByPersonnel(ctx context.Context, id uuid.UUID, status models.Status, by models.UpdatedBy) (*models.EmergencyCall, error) {
	var call models.EmergencyCall

	query := `
		UPDATE emergency_calls
		SET status_by_personnel = $2, last_updated_by = $3
		WHERE id = $1
		RETURNING *`

	if err := r.DB().GetContext(ctx, &call, query, id, status, by); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "emergency call %s", id)
		}
		return nil, errors.Wrap(err, "failed to update personnel status")
	}

	r.Logger().Info("Responder status updated",
		zap.String("call_id", id.String()),
		zap.String("status", string(status)),
		zap.String("updated_by", by.Name))
	return &call, nil
}
