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

// PersonnelRepository handles the responder directory. Rows store the
// registration type and role; the effective affiliation is always re-derived
// from those fields, never from client input.
type PersonnelRepository struct {
	*database.Repository
}

// NewPersonnelRepository creates a new personnel repository.
func NewPersonnelRepository(db *database.Database, logger *zap.Logger) *PersonnelRepository {
	return &PersonnelRepository{
		Repository: database.NewRepository(db, logger.Named("personnel_repository")),
	}
}

// Create registers a responder in the directory.
func (r *PersonnelRepository) Create(ctx context.Context, rec *models.PersonnelRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO personnel (id, name, email, type, role, so_number, created_at)
		VALUES (:id, :name, :email, :type, :role, :so_number, :created_at)`

	if _, err := r.DB().NamedExecContext(ctx, query, rec); err != nil {
		return errors.Wrap(err, "failed to create personnel record")
	}

	r.Logger().Info("Personnel registered",
		zap.String("personnel_id", rec.ID.String()),
		zap.String("type", string(rec.Type)))
	return nil
}

// GetByID retrieves a personnel record by ID.
func (r *PersonnelRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PersonnelRecord, error) {
	var rec models.PersonnelRecord

	query := `SELECT * FROM personnel WHERE id = $1`

	if err := r.DB().GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "personnel %s", id)
		}
		return nil, errors.Wrap(err, "failed to get personnel record")
	}

	return &rec, nil
}

// GetByEmail retrieves a personnel record by email.
func (r *PersonnelRepository) GetByEmail(ctx context.Context, email string) (*models.PersonnelRecord, error) {
	var rec models.PersonnelRecord

	query := `SELECT * FROM personnel WHERE email = $1`

	if err := r.DB().GetContext(ctx, &rec, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "personnel with email %s", email)
		}
		return nil, errors.Wrap(err, "failed to get personnel record by email")
	}

	return &rec, nil
}

// List retrieves all registered personnel, newest first.
func (r *PersonnelRepository) List(ctx context.Context) ([]*models.PersonnelRecord, error) {
	var recs []*models.PersonnelRecord

	query := `SELECT * FROM personnel ORDER BY created_at DESC`

	if err := r.DB().SelectContext(ctx, &recs, query); err != nil {
		return nil, errors.Wrap(err, "failed to list personnel")
	}

	return recs, nil
}
