package postgres

// Package postgres provides a pgx-backed storage implementation that satisfies
// the repository and writer interfaces used by the HTTP API and services.
//
// It is intentionally small and explicit. The schema lives in embedded
// migrations (see migrate.go); this package maps between the domain entities
// and SQL rows. The at-most-once materialization guarantee rests on a partial
// unique index over (user_id, source_rule_id, period_key).

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/treiswell/fintrack/internal/errs"
	"github.com/treiswell/fintrack/internal/ledger"
)

// Store holds a pgx connection pool and implements the read/write interfaces
// used across the service layer. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Open establishes a pgx pool using the provided connection string.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil { return nil, err }
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil { return nil, err }
	// Verify connection
	if err := pool.Ping(ctx); err != nil { pool.Close(); return nil, err }
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() { if s.pool != nil { s.pool.Close() } }

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

// --- Rule reads ---

// ListRules returns all rules for a user and kind, active and inactive alike,
// ordered by creation time.
func (s *Store) ListRules(ctx context.Context, userID uuid.UUID, kind ledger.Kind) ([]ledger.Rule, error) {
	rows, err := s.pool.Query(ctx, `
		select id, user_id, kind, description, amount_minor, currency, category, recurrence, start_date, end_date, active, created_at
		from rules
		where user_id = $1 and kind = $2
		order by created_at asc, id asc
	`, userID, kind)
	if err != nil { return nil, err }
	defer rows.Close()
	out := make([]ledger.Rule, 0)
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil { return nil, err }
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRule fetches a single rule by id for a user.
func (s *Store) GetRule(ctx context.Context, userID, ruleID uuid.UUID) (ledger.Rule, error) {
	row := s.pool.QueryRow(ctx, `
		select id, user_id, kind, description, amount_minor, currency, category, recurrence, start_date, end_date, active, created_at
		from rules
		where id = $1 and user_id = $2
	`, ruleID, userID)
	r, err := scanRule(row)
	if errors.Is(err, pgx.ErrNoRows) { return ledger.Rule{}, errs.ErrNotFound }
	if err != nil { return ledger.Rule{}, err }
	return r, nil
}

// ActiveRules returns every active rule across all users, ordered by creation
// time. The sweeper walks this set.
func (s *Store) ActiveRules(ctx context.Context) ([]ledger.Rule, error) {
	rows, err := s.pool.Query(ctx, `
		select id, user_id, kind, description, amount_minor, currency, category, recurrence, start_date, end_date, active, created_at
		from rules
		where active
		order by created_at asc, id asc
	`)
	if err != nil { return nil, err }
	defer rows.Close()
	out := make([]ledger.Rule, 0)
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil { return nil, err }
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Rule writes ---

// CreateRule inserts a rule row.
func (s *Store) CreateRule(ctx context.Context, r ledger.Rule) (ledger.Rule, error) {
	minor, _ := r.Amount.MinorUnits()
	_, err := s.pool.Exec(ctx, `
		insert into rules (id, user_id, kind, description, amount_minor, currency, category, recurrence, start_date, end_date, active, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, r.ID, r.UserID, r.Kind, r.Description, minor, r.Amount.Curr().Code(), r.Category, r.Recurrence, r.StartDate, r.EndDate, r.Active, r.CreatedAt)
	if err != nil { return ledger.Rule{}, err }
	return r, nil
}

// UpdateRule updates mutable fields (description, amount, category,
// recurrence, dates, active). Kind is immutable.
func (s *Store) UpdateRule(ctx context.Context, r ledger.Rule) (ledger.Rule, error) {
	minor, _ := r.Amount.MinorUnits()
	ct, err := s.pool.Exec(ctx, `
		update rules
		set description=$1, amount_minor=$2, currency=$3, category=$4, recurrence=$5, start_date=$6, end_date=$7, active=$8
		where id=$9 and user_id=$10
	`, r.Description, minor, r.Amount.Curr().Code(), r.Category, r.Recurrence, r.StartDate, r.EndDate, r.Active, r.ID, r.UserID)
	if err != nil { return ledger.Rule{}, err }
	if ct.RowsAffected() == 0 { return ledger.Rule{}, errs.ErrNotFound }
	return r, nil
}

// --- Entry reads ---

// GetEntry returns an entry by id for a user.
func (s *Store) GetEntry(ctx context.Context, userID, entryID uuid.UUID) (ledger.Entry, error) {
	row := s.pool.QueryRow(ctx, `
		select id, user_id, kind, description, amount_minor, currency, category, date, source_rule_id, created_at
		from entries
		where id = $1 and user_id = $2
	`, entryID, userID)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) { return ledger.Entry{}, errs.ErrNotFound }
	if err != nil { return ledger.Entry{}, err }
	return e, nil
}

// EntriesByPeriod returns entries of one kind whose date falls inside the
// period, newest first. Ties on date keep insertion order.
func (s *Store) EntriesByPeriod(ctx context.Context, userID uuid.UUID, kind ledger.Kind, p ledger.Period) ([]ledger.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		select id, user_id, kind, description, amount_minor, currency, category, date, source_rule_id, created_at
		from entries
		where user_id = $1 and kind = $2 and date >= $3 and date < $4
		order by date desc, created_at asc, id asc
	`, userID, kind, p.Start(), p.End())
	if err != nil { return nil, err }
	defer rows.Close()
	out := make([]ledger.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil { return nil, err }
		out = append(out, e)
	}
	return out, rows.Err()
}

// EntriesByRule returns every entry materialized from the rule, newest first.
func (s *Store) EntriesByRule(ctx context.Context, userID, ruleID uuid.UUID) ([]ledger.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		select id, user_id, kind, description, amount_minor, currency, category, date, source_rule_id, created_at
		from entries
		where user_id = $1 and source_rule_id = $2
		order by date desc, created_at asc, id asc
	`, userID, ruleID)
	if err != nil { return nil, err }
	defer rows.Close()
	out := make([]ledger.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil { return nil, err }
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Entry writes ---

// CreateEntry inserts a manual entry row. The period_key column stays null so
// the materialization index never sees manual entries.
func (s *Store) CreateEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	minor, _ := e.Amount.MinorUnits()
	_, err := s.pool.Exec(ctx, `
		insert into entries (id, user_id, kind, description, amount_minor, currency, category, date, source_rule_id, period_key, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,null,$10)
	`, e.ID, e.UserID, e.Kind, e.Description, minor, e.Amount.Curr().Code(), e.Category, e.Date, e.SourceRuleID, e.CreatedAt)
	if err != nil { return ledger.Entry{}, err }
	return e, nil
}

// UpdateEntry updates mutable fields of an entry. The period_key is recomputed
// from the new date so the materialization slot follows a rule-derived entry
// across periods; moving it onto an already materialized (rule, period) trips
// the unique index and surfaces as ErrConflict.
func (s *Store) UpdateEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	minor, _ := e.Amount.MinorUnits()
	ct, err := s.pool.Exec(ctx, `
		update entries
		set description=$1, amount_minor=$2, currency=$3, category=$4, date=$5,
			period_key=case when source_rule_id is not null then $6 end
		where id=$7 and user_id=$8
	`, e.Description, minor, e.Amount.Curr().Code(), e.Category, e.Date, ledger.PeriodOf(e.Date).Key(), e.ID, e.UserID)
	if isUniqueViolation(err) { return ledger.Entry{}, errs.ErrConflict }
	if err != nil { return ledger.Entry{}, err }
	if ct.RowsAffected() == 0 { return ledger.Entry{}, errs.ErrNotFound }
	return e, nil
}

// DeleteEntry removes an entry. Deleting a materialized entry frees its
// (rule, period) slot because the index row disappears with it.
func (s *Store) DeleteEntry(ctx context.Context, userID, entryID uuid.UUID) error {
	ct, err := s.pool.Exec(ctx, `delete from entries where id=$1 and user_id=$2`, entryID, userID)
	if err != nil { return err }
	if ct.RowsAffected() == 0 { return errs.ErrNotFound }
	return nil
}

// MaterializeEntry inserts e as the entry for (user, rule, period) if no such
// entry exists yet, relying on the partial unique index to arbitrate
// concurrent calls. When the slot is already taken the existing row is
// returned with created=false.
func (s *Store) MaterializeEntry(ctx context.Context, e ledger.Entry, p ledger.Period) (ledger.Entry, bool, error) {
	if e.SourceRuleID == nil { return ledger.Entry{}, false, errs.ErrInvalid }
	minor, _ := e.Amount.MinorUnits()
	ct, err := s.pool.Exec(ctx, `
		insert into entries (id, user_id, kind, description, amount_minor, currency, category, date, source_rule_id, period_key, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		on conflict (user_id, source_rule_id, period_key) where source_rule_id is not null do nothing
	`, e.ID, e.UserID, e.Kind, e.Description, minor, e.Amount.Curr().Code(), e.Category, e.Date, e.SourceRuleID, p.Key(), e.CreatedAt)
	if err != nil { return ledger.Entry{}, false, err }
	if ct.RowsAffected() == 1 { return e, true, nil }
	row := s.pool.QueryRow(ctx, `
		select id, user_id, kind, description, amount_minor, currency, category, date, source_rule_id, created_at
		from entries
		where user_id = $1 and source_rule_id = $2 and period_key = $3
	`, e.UserID, e.SourceRuleID, p.Key())
	existing, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the race against a concurrent delete; treat as unavailable so
		// the caller retries.
		return ledger.Entry{}, false, errs.ErrUnavailable
	}
	if err != nil { return ledger.Entry{}, false, err }
	return existing, false, nil
}

// isUniqueViolation reports whether err is a postgres unique constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Row mapping ---

type rowScanner interface{ Scan(dest ...any) error }

func scanRule(row rowScanner) (ledger.Rule, error) {
	var r ledger.Rule
	var minor int64
	var currency string
	if err := row.Scan(&r.ID, &r.UserID, &r.Kind, &r.Description, &minor, &currency, &r.Category, &r.Recurrence, &r.StartDate, &r.EndDate, &r.Active, &r.CreatedAt); err != nil {
		return ledger.Rule{}, err
	}
	r.Amount, _ = money.NewAmountFromMinorUnits(currency, minor)
	return r, nil
}

func scanEntry(row rowScanner) (ledger.Entry, error) {
	var e ledger.Entry
	var minor int64
	var currency string
	if err := row.Scan(&e.ID, &e.UserID, &e.Kind, &e.Description, &minor, &currency, &e.Category, &e.Date, &e.SourceRuleID, &e.CreatedAt); err != nil {
		return ledger.Entry{}, err
	}
	e.Amount, _ = money.NewAmountFromMinorUnits(currency, minor)
	return e, nil
}
