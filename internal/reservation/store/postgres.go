package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"petregistry/internal/platform/postgres"
	"petregistry/internal/reservation/models"
	"petregistry/pkg/domain"
	"petregistry/pkg/platform/sentinel"
	txcontext "petregistry/pkg/platform/tx"
)

// PostgresStore persists reservations, their timeline and OTP records.
// Calls join the transaction carried by ctx.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const reservationColumns = `
	id, code, pet_code, item_id, requester_id, status,
	expires_at, scheduled_at, handover_location, prior_pet_status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var (
		r                  models.Reservation
		id                 uuid.UUID
		status             string
		expires, scheduled sql.NullTime
	)
	err := row.Scan(&id, &r.Code, &r.PetCode, &r.ItemID, &r.RequesterID, &status,
		&expires, &scheduled, &r.HandoverLocation, &r.PriorPetStatus, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.ID = domain.ReservationID(id)
	r.Status = models.Status(status)
	if expires.Valid {
		r.ExpiresAt = &expires.Time
	}
	if scheduled.Valid {
		r.ScheduledAt = &scheduled.Time
	}
	return &r, nil
}

// reservationCodeConstraint is the name Postgres gives the UNIQUE on code.
const reservationCodeConstraint = "reservations_code_key"

func (s *PostgresStore) Create(ctx context.Context, r *models.Reservation) error {
	q := s.q(ctx)
	_, err := q.ExecContext(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		uuid.UUID(r.ID), string(r.Code), string(r.PetCode), r.ItemID, string(r.RequesterID), string(r.Status),
		r.ExpiresAt, r.ScheduledAt, r.HandoverLocation, r.PriorPetStatus, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err, reservationCodeConstraint) {
			return fmt.Errorf("reservation %s: %w", r.Code, models.ErrCodeTaken)
		}
		if postgres.IsUniqueViolation(err, "") {
			return fmt.Errorf("active reservation for %s: %w", r.PetCode, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	for _, entry := range r.Timeline {
		if err := s.AppendTimeline(ctx, r.ID, entry); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.ReservationID) (*models.Reservation, error) {
	return s.get(ctx, `WHERE id = $1`, uuid.UUID(id), false)
}

// GetForUpdate locks the reservation row until the transaction ends.
func (s *PostgresStore) GetForUpdate(ctx context.Context, id domain.ReservationID) (*models.Reservation, error) {
	return s.get(ctx, `WHERE id = $1`, uuid.UUID(id), true)
}

func (s *PostgresStore) GetByCode(ctx context.Context, code domain.ReservationCode) (*models.Reservation, error) {
	return s.get(ctx, `WHERE code = $1`, string(code), false)
}

func (s *PostgresStore) ActiveForPet(ctx context.Context, pet domain.PetCode) (*models.Reservation, error) {
	return s.get(ctx, `WHERE pet_code = $1 AND status NOT IN ('handed_over', 'rejected', 'cancelled')`, string(pet), false)
}

func (s *PostgresStore) get(ctx context.Context, where string, arg any, lock bool) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations ` + where
	if lock {
		query += ` FOR UPDATE`
	}
	r, err := scanReservation(s.q(ctx).QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reservation %v: %w", arg, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load reservation: %w", err)
	}
	if r.Timeline, err = s.timeline(ctx, r.ID); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) Update(ctx context.Context, r *models.Reservation) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE reservations
		SET status = $2, expires_at = $3, scheduled_at = $4, handover_location = $5, updated_at = $6
		WHERE id = $1`,
		uuid.UUID(r.ID), string(r.Status), r.ExpiresAt, r.ScheduledAt, r.HandoverLocation, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("reservation %s: %w", r.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) AppendTimeline(ctx context.Context, id domain.ReservationID, entry models.TimelineEntry) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO reservation_timeline (reservation_id, status, at, actor, note)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.UUID(id), string(entry.Status), entry.At, entry.Actor, entry.Note,
	)
	if err != nil {
		return fmt.Errorf("append timeline: %w", err)
	}
	return nil
}

func (s *PostgresStore) timeline(ctx context.Context, id domain.ReservationID) ([]models.TimelineEntry, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT status, at, actor, note FROM reservation_timeline
		WHERE reservation_id = $1 ORDER BY id`, uuid.UUID(id))
	if err != nil {
		return nil, fmt.Errorf("load timeline: %w", err)
	}
	defer rows.Close()
	var out []models.TimelineEntry
	for rows.Next() {
		var (
			e      models.TimelineEntry
			status string
		)
		if err := rows.Scan(&status, &e.At, &e.Actor, &e.Note); err != nil {
			return nil, fmt.Errorf("scan timeline: %w", err)
		}
		e.Status = models.Status(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) List(ctx context.Context, f models.Filter) ([]*models.Reservation, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.RequesterID != "" {
		where = append(where, "requester_id = "+arg(string(f.RequesterID)))
	}
	if f.PetCode != "" {
		where = append(where, "pet_code = "+arg(string(f.PetCode)))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	q := s.q(ctx)
	var total int
	if err := q.QueryRowContext(ctx, `SELECT count(*) FROM reservations`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reservations: %w", err)
	}

	query := `SELECT ` + reservationColumns + ` FROM reservations` + clause +
		` ORDER BY created_at, code LIMIT ` + arg(f.Limit) + ` OFFSET ` + arg(f.Offset)
	out, err := s.queryReservations(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *PostgresStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.Reservation, error) {
	return s.queryReservations(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE status = 'pending' AND expires_at <= $1
		ORDER BY expires_at LIMIT $2`, now, limit)
}

func (s *PostgresStore) queryReservations(ctx context.Context, query string, args ...any) ([]*models.Reservation, error) {
	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	var out []*models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for _, r := range out {
		if r.Timeline, err = s.timeline(ctx, r.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresStore) ExistingCodes(ctx context.Context, codes []string) (map[string]bool, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `SELECT code FROM reservations WHERE code = ANY($1)`, pq.Array(codes))
	if err != nil {
		return nil, fmt.Errorf("check reservation codes: %w", err)
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out[c] = true
	}
	return out, rows.Err()
}

func (s *PostgresStore) AppendOTP(ctx context.Context, rec *models.OTPRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO handover_otps (id, reservation_id, otp_hash, issued_at, used_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, uuid.UUID(rec.ReservationID), rec.Hash, rec.IssuedAt, rec.UsedAt,
	)
	if err != nil {
		return fmt.Errorf("insert otp: %w", err)
	}
	return nil
}

const otpColumns = `id, reservation_id, otp_hash, issued_at, used_at`

func scanOTP(row rowScanner) (*models.OTPRecord, error) {
	var (
		rec  models.OTPRecord
		rid  uuid.UUID
		used sql.NullTime
	)
	if err := row.Scan(&rec.ID, &rid, &rec.Hash, &rec.IssuedAt, &used); err != nil {
		return nil, err
	}
	rec.ReservationID = domain.ReservationID(rid)
	if used.Valid {
		rec.UsedAt = &used.Time
	}
	return &rec, nil
}

// LatestUnusedOTP returns the most recently issued record if it is unused.
func (s *PostgresStore) LatestUnusedOTP(ctx context.Context, id domain.ReservationID) (*models.OTPRecord, error) {
	rec, err := scanOTP(s.q(ctx).QueryRowContext(ctx, `
		SELECT `+otpColumns+` FROM handover_otps
		WHERE reservation_id = $1 ORDER BY seq DESC LIMIT 1`, uuid.UUID(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("otp for %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load otp: %w", err)
	}
	if rec.IsUsed() {
		return nil, fmt.Errorf("otp for %s: %w", id, sentinel.ErrNotFound)
	}
	return rec, nil
}

// MarkOTPUsed consumes the record once; a second call returns ErrAlreadyUsed.
func (s *PostgresStore) MarkOTPUsed(ctx context.Context, otpID string, at time.Time) error {
	res, err := s.q(ctx).ExecContext(ctx,
		`UPDATE handover_otps SET used_at = $2 WHERE id = $1 AND used_at IS NULL`, otpID, at)
	if err != nil {
		return fmt.Errorf("mark otp used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark otp used: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("otp %s: %w", otpID, sentinel.ErrAlreadyUsed)
	}
	return nil
}

func (s *PostgresStore) OTPs(ctx context.Context, id domain.ReservationID) ([]models.OTPRecord, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+otpColumns+` FROM handover_otps
		WHERE reservation_id = $1 ORDER BY seq`, uuid.UUID(id))
	if err != nil {
		return nil, fmt.Errorf("load otps: %w", err)
	}
	defer rows.Close()
	var out []models.OTPRecord
	for rows.Next() {
		rec, err := scanOTP(rows)
		if err != nil {
			return nil, fmt.Errorf("scan otp: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
