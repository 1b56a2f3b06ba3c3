package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/robolink-gateway/internal/infrastructure/database"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// storedTimeLayout keeps the fraction at nine digits so TEXT timestamps
// sort in time order. time.RFC3339Nano still parses it.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRepository stores statuses in the robot_status table and, when
// history is enabled, appends every reading to telemetry_history.
type SQLiteRepository struct {
	db      *database.DB
	history bool
}

// NewSQLiteRepository creates a repository on a migrated database.
//
// Parameters:
//   - db: Open database with the telemetry migrations applied
//   - history: Append each reading to telemetry_history as well
func NewSQLiteRepository(db *database.DB, history bool) *SQLiteRepository {
	return &SQLiteRepository{db: db, history: history}
}

// UpsertStatus writes the latest reading for status.RobotID.
func (r *SQLiteRepository) UpsertStatus(ctx context.Context, status Status) error {
	if status.RobotID == "" {
		return ErrInvalidStatus
	}
	at := status.UpdatedAt.UTC().Format(storedTimeLayout)
	activate := boolToInt(status.Active)

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO robot_status (robot_id, electricity, activate, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (robot_id) DO UPDATE SET
				electricity = excluded.electricity,
				activate    = excluded.activate,
				updated_at  = excluded.updated_at`,
			status.RobotID, status.Electricity, activate, at)
		if err != nil {
			return fmt.Errorf("upserting robot status: %w", err)
		}

		if !r.history {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO telemetry_history (robot_id, electricity, activate, recorded_at)
			VALUES (?, ?, ?, ?)`,
			status.RobotID, status.Electricity, activate, at)
		if err != nil {
			return fmt.Errorf("appending telemetry history: %w", err)
		}
		return nil
	})
}

// GetStatus returns the latest status for robotID, or ErrNotFound.
func (r *SQLiteRepository) GetStatus(ctx context.Context, robotID string) (*Status, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT robot_id, electricity, activate, updated_at
		FROM robot_status WHERE robot_id = ?`, robotID)

	status, err := scanStatus(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying robot status: %w", err)
	}
	return status, nil
}

// ListStatuses returns every stored status ordered by robot ID.
func (r *SQLiteRepository) ListStatuses(ctx context.Context) ([]Status, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT robot_id, electricity, activate, updated_at
		FROM robot_status ORDER BY robot_id`)
	if err != nil {
		return nil, fmt.Errorf("listing robot statuses: %w", err)
	}
	defer rows.Close()

	statuses := []Status{}
	for rows.Next() {
		status, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning robot status: %w", err)
		}
		statuses = append(statuses, *status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating robot statuses: %w", err)
	}
	return statuses, nil
}

// History returns the newest readings for robotID, newest first.
// limit is clamped to 1..500 and defaults to 50.
func (r *SQLiteRepository) History(ctx context.Context, robotID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT robot_id, electricity, activate, recorded_at
		FROM telemetry_history
		WHERE robot_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?`, robotID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying telemetry history: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var (
			e        HistoryEntry
			activate int
			recorded string
		)
		if err := rows.Scan(&e.RobotID, &e.Electricity, &activate, &recorded); err != nil {
			return nil, fmt.Errorf("scanning telemetry history: %w", err)
		}
		e.Active = activate == 1
		if e.RecordedAt, err = time.Parse(time.RFC3339Nano, recorded); err != nil {
			return nil, fmt.Errorf("parsing recorded_at %q: %w", recorded, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating telemetry history: %w", err)
	}
	return entries, nil
}

// HealthCheck checks the underlying database.
func (r *SQLiteRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStatus(row rowScanner) (*Status, error) {
	var (
		s        Status
		activate int
		updated  string
	)
	if err := row.Scan(&s.RobotID, &s.Electricity, &activate, &updated); err != nil {
		return nil, err
	}
	s.Active = activate == 1

	var err error
	if s.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("parsing updated_at %q: %w", updated, err)
	}
	return &s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
