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
	"petregistry/internal/registry/models"
	"petregistry/pkg/domain"
	"petregistry/pkg/platform/sentinel"
	txcontext "petregistry/pkg/platform/tx"
)

// PostgresStore persists registry rows in registry_entries and
// ownership_history. Calls join the transaction carried by ctx.
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

const entryColumns = `
	pet_code, origin_source, direct_pet_id, shop_item_id, adoption_pet_id,
	name, species_ref, breed_ref, image_refs,
	current_owner_id, current_location, current_status, last_transfer_at,
	is_deceased, deceased_at, deceased_reason,
	first_added_by, first_added_at, last_seen_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.Entry, error) {
	var (
		e                        models.Entry
		direct, shop, adoption   sql.NullString
		owner                    sql.NullString
		origin, location         string
		lastTransfer, deceasedAt sql.NullTime
	)
	err := row.Scan(
		&e.PetCode, &origin, &direct, &shop, &adoption,
		&e.Descriptive.Name, &e.Descriptive.SpeciesRef, &e.Descriptive.BreedRef, pq.Array(&e.Descriptive.ImageRefs),
		&owner, &location, &e.CurrentStatus, &lastTransfer,
		&e.IsDeceased, &deceasedAt, &e.DeceasedReason,
		&e.FirstAddedBy, &e.FirstAddedAt, &e.LastSeenAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.OriginSource = domain.OriginSource(origin)
	e.OriginRefs = models.OriginRefs{DirectPetID: direct.String, ShopItemID: shop.String, AdoptionPetID: adoption.String}
	e.CurrentOwnerID = domain.OwnerID(owner.String)
	e.CurrentLocation = models.Location(location)
	if lastTransfer.Valid {
		e.LastTransferAt = &lastTransfer.Time
	}
	if deceasedAt.Valid {
		e.DeceasedAt = &deceasedAt.Time
	}
	return &e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func imageRefs(refs []string) any {
	if refs == nil {
		refs = []string{}
	}
	return pq.Array(refs)
}

func (s *PostgresStore) get(ctx context.Context, code domain.PetCode, lock bool) (*models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM registry_entries WHERE pet_code = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	e, err := scanEntry(s.q(ctx).QueryRowContext(ctx, query, string(code)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pet %s: %w", code, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get registry entry: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) Get(ctx context.Context, code domain.PetCode) (*models.Entry, error) {
	return s.get(ctx, code, false)
}

// GetForUpdate row-locks the entry for the rest of the transaction.
func (s *PostgresStore) GetForUpdate(ctx context.Context, code domain.PetCode) (*models.Entry, error) {
	return s.get(ctx, code, true)
}

func (s *PostgresStore) FindByOriginRef(ctx context.Context, refs models.OriginRefs) (*models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM registry_entries
		WHERE ($1 <> '' AND direct_pet_id = $1)
		   OR ($2 <> '' AND shop_item_id = $2)
		   OR ($3 <> '' AND adoption_pet_id = $3)
		LIMIT 1`
	e, err := scanEntry(s.q(ctx).QueryRowContext(ctx, query, refs.DirectPetID, refs.ShopItemID, refs.AdoptionPetID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find registry entry by origin: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) Insert(ctx context.Context, e *models.Entry) error {
	query := `INSERT INTO registry_entries (` + entryColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`
	_, err := s.q(ctx).ExecContext(ctx, query,
		string(e.PetCode), string(e.OriginSource),
		nullString(e.OriginRefs.DirectPetID), nullString(e.OriginRefs.ShopItemID), nullString(e.OriginRefs.AdoptionPetID),
		e.Descriptive.Name, e.Descriptive.SpeciesRef, e.Descriptive.BreedRef, imageRefs(e.Descriptive.ImageRefs),
		nullString(string(e.CurrentOwnerID)), string(e.CurrentLocation), e.CurrentStatus, nullTime(e.LastTransferAt),
		e.IsDeceased, nullTime(e.DeceasedAt), e.DeceasedReason,
		e.FirstAddedBy, e.FirstAddedAt, e.LastSeenAt, e.CreatedAt, e.UpdatedAt,
	)
	if postgres.IsUniqueViolation(err, "") {
		return fmt.Errorf("pet %s: %w", e.PetCode, sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert registry entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, e *models.Entry) error {
	query := `UPDATE registry_entries SET
		direct_pet_id = $2, shop_item_id = $3, adoption_pet_id = $4,
		name = $5, species_ref = $6, breed_ref = $7, image_refs = $8,
		current_owner_id = $9, current_location = $10, current_status = $11, last_transfer_at = $12,
		is_deceased = $13, deceased_at = $14, deceased_reason = $15,
		last_seen_at = $16, updated_at = $17
		WHERE pet_code = $1`
	res, err := s.q(ctx).ExecContext(ctx, query,
		string(e.PetCode),
		nullString(e.OriginRefs.DirectPetID), nullString(e.OriginRefs.ShopItemID), nullString(e.OriginRefs.AdoptionPetID),
		e.Descriptive.Name, e.Descriptive.SpeciesRef, e.Descriptive.BreedRef, imageRefs(e.Descriptive.ImageRefs),
		nullString(string(e.CurrentOwnerID)), string(e.CurrentLocation), e.CurrentStatus, nullTime(e.LastTransferAt),
		e.IsDeceased, nullTime(e.DeceasedAt), e.DeceasedReason,
		e.LastSeenAt, e.UpdatedAt,
	)
	if postgres.IsUniqueViolation(err, "") {
		return fmt.Errorf("pet %s origin ref: %w", e.PetCode, sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("update registry entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pet %s: %w", e.PetCode, sentinel.ErrNotFound)
	}
	return nil
}

// AppendHistory closes the open record and inserts rec as the next sequence.
// Must run inside the pet's transaction.
func (s *PostgresStore) AppendHistory(ctx context.Context, rec *models.HistoryRecord) error {
	q := s.q(ctx)
	var seq int
	if err := q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM ownership_history WHERE pet_code = $1`,
		string(rec.PetCode),
	).Scan(&seq); err != nil {
		return fmt.Errorf("next history seq: %w", err)
	}

	if _, err := q.ExecContext(ctx,
		`UPDATE ownership_history SET end_date = $3 WHERE pet_code = $1 AND seq = $2 AND end_date IS NULL`,
		string(rec.PetCode), seq, rec.TransferDate,
	); err != nil {
		return fmt.Errorf("close previous history record: %w", err)
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Seq = seq + 1
	_, err := q.ExecContext(ctx, `
		INSERT INTO ownership_history (
			id, pet_code, seq, previous_owner_id, new_owner_id, transfer_type,
			transfer_date, transfer_price, reason, performed_by, idempotency_key
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		rec.ID, string(rec.PetCode), rec.Seq,
		nullString(string(rec.PreviousOwnerID)), nullString(string(rec.NewOwnerID)), string(rec.TransferType),
		rec.TransferDate, rec.TransferPrice, rec.Reason, rec.PerformedBy, nullString(rec.IdempotencyKey),
	)
	if postgres.IsUniqueViolation(err, "") {
		return fmt.Errorf("history for %s: %w", rec.PetCode, sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

const historyColumns = `id, pet_code, seq, previous_owner_id, new_owner_id, transfer_type,
	transfer_date, transfer_price, reason, performed_by, end_date, idempotency_key`

func scanHistory(row rowScanner) (models.HistoryRecord, error) {
	var (
		r              models.HistoryRecord
		prev, next     sql.NullString
		key            sql.NullString
		endDate        sql.NullTime
		code, transfer string
	)
	err := row.Scan(&r.ID, &code, &r.Seq, &prev, &next, &transfer,
		&r.TransferDate, &r.TransferPrice, &r.Reason, &r.PerformedBy, &endDate, &key)
	if err != nil {
		return r, err
	}
	r.PetCode = domain.PetCode(code)
	r.PreviousOwnerID = domain.OwnerID(prev.String)
	r.NewOwnerID = domain.OwnerID(next.String)
	r.TransferType = models.TransferType(transfer)
	r.IdempotencyKey = key.String
	if endDate.Valid {
		r.EndDate = &endDate.Time
	}
	return r, nil
}

func (s *PostgresStore) History(ctx context.Context, code domain.PetCode) ([]models.HistoryRecord, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+historyColumns+` FROM ownership_history WHERE pet_code = $1 ORDER BY seq`, string(code))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []models.HistoryRecord
	for rows.Next() {
		r, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FindHistoryByKey(ctx context.Context, code domain.PetCode, key string) (*models.HistoryRecord, error) {
	r, err := scanHistory(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM ownership_history WHERE pet_code = $1 AND idempotency_key = $2`,
		string(code), key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find history by key: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) Search(ctx context.Context, f models.Filters) (*models.SearchResult, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if !f.IncludeDeceased {
		where = append(where, "NOT is_deceased")
	}
	if f.Location != "" {
		where = append(where, "current_location = "+arg(string(f.Location)))
	}
	if f.Status != "" {
		where = append(where, "current_status = "+arg(f.Status))
	}
	if f.Origin != "" {
		where = append(where, "origin_source = "+arg(string(f.Origin)))
	}
	if !f.OwnerID.IsZero() {
		where = append(where, "current_owner_id = "+arg(string(f.OwnerID)))
	}
	if f.Term != "" {
		p := arg("%" + escapeLike(f.Term) + "%")
		where = append(where, "(pet_code ILIKE "+p+" OR name ILIKE "+p+" OR species_ref ILIKE "+p+" OR breed_ref ILIKE "+p+")")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.q(ctx).QueryRowContext(ctx, `SELECT count(*) FROM registry_entries`+clause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count registry entries: %w", err)
	}

	query := `SELECT ` + entryColumns + ` FROM registry_entries` + clause +
		` ORDER BY pet_code LIMIT ` + arg(f.Limit) + ` OFFSET ` + arg(f.Offset)
	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search registry entries: %w", err)
	}
	defer rows.Close()

	result := &models.SearchResult{Total: total}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registry entry: %w", err)
		}
		result.Entries = append(result.Entries, e)
	}
	return result, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ExistingCodes implements identity.CodeChecker with one query per batch.
func (s *PostgresStore) ExistingCodes(ctx context.Context, codes []string) (map[string]bool, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT pet_code FROM registry_entries WHERE pet_code = ANY($1)`, pq.Array(codes))
	if err != nil {
		return nil, fmt.Errorf("check pet codes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan pet code: %w", err)
		}
		out[c] = true
	}
	return out, rows.Err()
}
