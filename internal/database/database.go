package database

import (
	"context"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"emergency-response/internal/config"
)

// Database wraps the shared connection pool to the call store.
type Database struct {
	db     *sqlx.DB
	logger *zap.Logger
	config *config.DatabaseConfig
}

// New connects to PostgreSQL and configures the pool.
func New(cfg *config.DatabaseConfig, logger *zap.Logger) (*Database, error) {
	if cfg == nil {
		return nil, errors.New("database config is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	d := &Database{
		logger: logger.Named("database"),
		config: cfg,
	}

	if err := d.connect(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	return d, nil
}

func (d *Database) connect() error {
	d.logger.Info("Connecting to database",
		zap.String("host", d.config.Host),
		zap.Int("port", d.config.Port),
		zap.String("name", d.config.Name))

	db, err := sqlx.Open("postgres", d.config.ConnectionString())
	if err != nil {
		return errors.Wrap(err, "failed to open postgres connection")
	}

	db.SetMaxOpenConns(d.config.MaxOpenConns)
	db.SetMaxIdleConns(d.config.MaxIdleConns)
	db.SetConnMaxLifetime(d.config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), d.config.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return errors.Wrap(err, "failed to ping database")
	}

	d.db = db
	d.logger.Info("Successfully connected to database")
	return nil
}

// Close closes the connection pool.
func (d *Database) Close() error {
	if d.db != nil {
		d.logger.Info("Closing database connection")
		return d.db.Close()
	}
	return nil
}

// DB returns the underlying sqlx.DB instance.
func (d *Database) DB() *sqlx.DB {
	return d.db
}

// Health pings the database with a short timeout.
func (d *Database) Health(ctx context.Context) error {
	if d.db == nil {
		return errors.New("database connection not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return d.db.PingContext(ctx)
}

// RunMigrations applies pending schema migrations.
func (d *Database) RunMigrations() error {
	d.logger.Info("Running database migrations", zap.String("path", d.config.MigrationsPath))

	driver, err := postgres.WithInstance(d.db.DB, &postgres.Config{})
	if err != nil {
		return errors.Wrap(err, "failed to create migration driver")
	}

	m, err := migrate.NewWithDatabaseInstance(d.config.MigrationsPath, "postgres", driver)
	if err != nil {
		return errors.Wrap(err, "failed to create migration instance")
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return errors.Wrap(err, "failed to run migrations")
	}

	if err == migrate.ErrNoChange {
		d.logger.Info("No new migrations to apply")
	} else {
		d.logger.Info("Successfully applied database migrations")
	}

	return nil
}

// Repository is the base type embedded by the concrete repositories.
type Repository struct {
	db     *Database
	logger *zap.Logger
}

// NewRepository creates a base repository.
func NewRepository(db *Database, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger.Named("repository"),
	}
}

// DB returns the database instance.
func (r *Repository) DB() *sqlx.DB {
	return r.db.DB()
}

// Logger returns the repository logger.
func (r *Repository) Logger() *zap.Logger {
	return r.logger
}
