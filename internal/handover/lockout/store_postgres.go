package lockout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore keeps lockout records in otp_lockouts. It writes outside
// any caller transaction so a failure survives the rollback of the attempt
// that caused it.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `reservation_id, failure_count, window_start, locked_until`

func scanRecord(row *sql.Row) (*Record, error) {
	var (
		rec    Record
		locked sql.NullTime
	)
	if err := row.Scan(&rec.Key, &rec.Failures, &rec.WindowStart, &locked); err != nil {
		return nil, err
	}
	if locked.Valid {
		rec.LockedUntil = &locked.Time
	}
	return &rec, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM otp_lockouts WHERE reservation_id = $1`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get otp lockout: %w", err)
	}
	return rec, nil
}

// RecordFailure increments atomically so concurrent failures cannot slip
// past the threshold.
func (s *PostgresStore) RecordFailure(ctx context.Context, key string, now time.Time, window time.Duration) (*Record, error) {
	query := `
		INSERT INTO otp_lockouts (reservation_id, failure_count, window_start, locked_until, updated_at)
		VALUES ($1, 1, $2, NULL, $2)
		ON CONFLICT (reservation_id) DO UPDATE SET
			failure_count = CASE WHEN otp_lockouts.window_start <= $3 THEN 1 ELSE otp_lockouts.failure_count + 1 END,
			window_start = CASE WHEN otp_lockouts.window_start <= $3 THEN $2 ELSE otp_lockouts.window_start END,
			updated_at = $2
		RETURNING ` + recordColumns
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, key, now, now.Add(-window)))
	if err != nil {
		return nil, fmt.Errorf("record otp failure: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Lock(ctx context.Context, key string, until, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO otp_lockouts (reservation_id, failure_count, window_start, locked_until, updated_at)
		VALUES ($1, 0, $3, $2, $3)
		ON CONFLICT (reservation_id) DO UPDATE SET
			failure_count = 0,
			window_start = $3,
			locked_until = $2,
			updated_at = $3`,
		key, until, now)
	if err != nil {
		return fmt.Errorf("lock otp verification: %w", err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM otp_lockouts WHERE reservation_id = $1`, key); err != nil {
		return fmt.Errorf("clear otp lockout: %w", err)
	}
	return nil
}
