package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// robotManagerSchema creates the table the relational backend writes to.
const robotManagerSchema = `
CREATE TABLE IF NOT EXISTS robot_manager (
    id          SERIAL PRIMARY KEY,
    robot_id    TEXT NOT NULL UNIQUE,
    electricity INTEGER NOT NULL,
    activate    BOOLEAN NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// robotManagerUniqueIndex backs ON CONFLICT (robot_id) on tables created
// without the UNIQUE constraint.
const robotManagerUniqueIndex = `
CREATE UNIQUE INDEX IF NOT EXISTS robot_manager_robot_id_key
    ON robot_manager (robot_id)`

// PgxQuerier is the subset of *pgxpool.Pool used by PostgresRepository.
type PgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresRepository stores statuses in the robot_manager table.
//
// Thread Safety:
//   - Safe for concurrent use; the pool hands each call its own connection.
type PostgresRepository struct {
	db PgxQuerier
}

// NewPostgresRepository creates a repository over a pgx pool.
func NewPostgresRepository(db PgxQuerier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates robot_manager when it does not exist and makes
// sure robot_id is unique on an existing table.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, robotManagerSchema); err != nil {
		return fmt.Errorf("creating robot_manager table: %w", err)
	}
	if _, err := r.db.Exec(ctx, robotManagerUniqueIndex); err != nil {
		return fmt.Errorf("creating robot_manager robot_id index: %w", err)
	}
	return nil
}

// UpsertStatus inserts or updates the row for status.RobotID.
func (r *PostgresRepository) UpsertStatus(ctx context.Context, status Status) error {
	if status.RobotID == "" {
		return ErrInvalidStatus
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO robot_manager (robot_id, electricity, activate, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (robot_id) DO UPDATE SET
			electricity = EXCLUDED.electricity,
			activate    = EXCLUDED.activate,
			updated_at  = EXCLUDED.updated_at`,
		status.RobotID, status.Electricity, status.Active, status.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upserting robot_manager: %w", err)
	}
	return nil
}

// GetStatus returns the row for robotID, or ErrNotFound.
func (r *PostgresRepository) GetStatus(ctx context.Context, robotID string) (*Status, error) {
	var s Status
	err := r.db.QueryRow(ctx, `
		SELECT robot_id, electricity, activate, updated_at
		FROM robot_manager WHERE robot_id = $1`, robotID).
		Scan(&s.RobotID, &s.Electricity, &s.Active, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying robot_manager: %w", err)
	}
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

// ListStatuses returns every row ordered by robot ID.
func (r *PostgresRepository) ListStatuses(ctx context.Context) ([]Status, error) {
	rows, err := r.db.Query(ctx, `
		SELECT robot_id, electricity, activate, updated_at
		FROM robot_manager ORDER BY robot_id`)
	if err != nil {
		return nil, fmt.Errorf("listing robot_manager: %w", err)
	}

	statuses, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Status, error) {
		var s Status
		err := row.Scan(&s.RobotID, &s.Electricity, &s.Active, &s.UpdatedAt)
		s.UpdatedAt = s.UpdatedAt.UTC()
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning robot_manager: %w", err)
	}
	if statuses == nil {
		statuses = []Status{}
	}
	return statuses, nil
}

// HealthCheck pings the server.
func (r *PostgresRepository) HealthCheck(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}
	return nil
}
