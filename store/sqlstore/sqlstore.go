/*
Package sqlstore implements generic.TxStore on database/sql.

PURPOSE:
  One set of queries serves both SQLite and PostgreSQL. Queries are written
  with "?" placeholders and rebound to "$n" for PostgreSQL; everything else
  (upserts with ON CONFLICT, TEXT dates) is portable between the two.

KEY TABLES:
  pilots:           Crew roster (rank, seniority, active flag)
  requests:         Pilot requests; details and conflicts as JSON columns
  period_statuses:  Status overrides for roster periods (absent = OPEN)
  alert_milestones: (period_code, milestone) -> fired_at
  alert_deliveries: Delivery log for deadline alerts

DATES:
  Calendar dates are stored as YYYY-MM-DD text, so lexical comparison is
  date comparison. Timestamps are RFC3339 text in UTC.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, which also serialises WithTx within
  one process. SQLite takes a database-wide write lock, so that is enough
  there. On PostgreSQL several processes can share the database, so WithTx
  runs at SERIALIZABLE and retries a transaction the server aborted with a
  serialization failure: an approval's check-then-write never commits
  against a sibling approved concurrently by another instance.

SEE ALSO:
  - store/sqlite: SQLite driver wiring
  - store/postgres: PostgreSQL driver wiring
  - generic/store.go: Interface definitions
*/
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/warp/crew-roster/factory"
	"github.com/warp/crew-roster/generic"
)

// Dialect selects the placeholder style.
type Dialect int

const (
	Question Dialect = iota // SQLite: ?
	Dollar                  // PostgreSQL: $1, $2 ...
)

// Schema is the portable DDL shared by both drivers.
const Schema = `
CREATE TABLE IF NOT EXISTS pilots (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	pilot_rank TEXT NOT NULL,
	seniority INTEGER NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE INDEX IF NOT EXISTS idx_pilots_rank ON pilots(pilot_rank, active);

CREATE TABLE IF NOT EXISTS requests (
	id TEXT PRIMARY KEY,
	pilot_id TEXT NOT NULL,
	pilot_rank TEXT NOT NULL,
	seniority INTEGER NOT NULL,
	category TEXT NOT NULL,
	details_json TEXT NOT NULL DEFAULT '{}',
	start_date TEXT NOT NULL,
	end_date TEXT NOT NULL,
	period_code TEXT NOT NULL,
	status TEXT NOT NULL,
	priority_score INTEGER NOT NULL DEFAULT 0,
	conflicts_json TEXT NOT NULL DEFAULT '[]',
	decided_by TEXT NOT NULL DEFAULT '',
	decided_at TEXT,
	denial_reason TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_requests_pilot_dates ON requests(pilot_id, start_date, end_date);
CREATE INDEX IF NOT EXISTS idx_requests_period_status ON requests(period_code, status);
CREATE INDEX IF NOT EXISTS idx_requests_rank_status ON requests(pilot_rank, status, start_date);

CREATE TABLE IF NOT EXISTS period_statuses (
	code TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS alert_milestones (
	period_code TEXT NOT NULL,
	milestone INTEGER NOT NULL,
	fired_at TEXT NOT NULL,
	PRIMARY KEY (period_code, milestone)
);

CREATE TABLE IF NOT EXISTS alert_deliveries (
	id TEXT PRIMARY KEY,
	period_code TEXT NOT NULL,
	milestone INTEGER NOT NULL,
	days_until INTEGER NOT NULL,
	outcome TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	recipients_json TEXT NOT NULL DEFAULT '[]',
	attempted_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alert_deliveries_period ON alert_deliveries(period_code, attempted_at);
`

// Options configures a Store.
type Options struct {
	Dialect Dialect
	// IsUniqueViolation recognises the driver's unique-constraint error.
	IsUniqueViolation func(error) bool
	// IsSerializationFailure recognises a transaction the database aborted
	// to preserve SERIALIZABLE isolation. WithTx retries those.
	IsSerializationFailure func(error) bool
	// Now is the clock for created_at/updated_at. Defaults to time.Now.
	Now func() time.Time
}

// Store implements generic.TxStore.
type Store struct {
	db   *sql.DB
	opts Options
	mu   sync.RWMutex
}

// New wraps an open database. Call Migrate before first use.
func New(db *sql.DB, opts Options) *Store {
	if opts.IsUniqueViolation == nil {
		opts.IsUniqueViolation = func(error) bool { return false }
	}
	if opts.IsSerializationFailure == nil {
		opts.IsSerializationFailure = func(error) bool { return false }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{db: db, opts: opts}
}

// Migrate creates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Reset deletes every row. Used when loading demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, table := range []string{"alert_deliveries", "alert_milestones", "period_statuses", "requests", "pilots"} {
		if _, err := sqlTx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return sqlTx.Commit()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) with(q querier) ops {
	return ops{q: q, opts: s.opts}
}

// =============================================================================
// LOCKED ENTRY POINTS (generic.Store)
// =============================================================================

func (s *Store) CreateRequest(ctx context.Context, r generic.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.with(s.db).CreateRequest(ctx, r)
}

func (s *Store) UpdateRequest(ctx context.Context, r generic.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.with(s.db).UpdateRequest(ctx, r)
}

func (s *Store) GetRequest(ctx context.Context, id generic.RequestID) (generic.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.with(s.db).GetRequest(ctx, id)
}

func (s *Store) ListRequests(ctx context.Context, f generic.RequestFilter) ([]generic.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.with(s.db).ListRequests(ctx, f)
}

func (s *Store) SavePilot(ctx context.Context, p generic.Pilot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.with(s.db).SavePilot(ctx, p)
}

func (s *Store) GetPilot(ctx context.Context, id generic.PilotID) (generic.Pilot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.with(s.db).GetPilot(ctx, id)
}

func (s *Store) ListPilots(ctx context.Context, rank generic.Rank) ([]generic.Pilot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.with(s.db).ListPilots(ctx, rank)
}

func (s *Store) CrewSize(ctx context.Context, rank generic.Rank, span generic.DateRange) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.with(s.db).CrewSize(ctx, rank, span)
}

func (s *Store) PeriodStatus(ctx context.Context, code string) (generic.PeriodStatus, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.with(s.db).PeriodStatus(ctx, code)
}

func (s *Store) SetPeriodStatus(ctx context.Context, code string, status generic.PeriodStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.with(s.db).SetPeriodStatus(ctx, code, status)
}

func (s *Store) FiredMilestones(ctx context.Context, code string) (map[int]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.with(s.db).FiredMilestones(ctx, code)
}

func (s *Store) ClaimMilestone(ctx context.Context, code string, milestone int, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.with(s.db).ClaimMilestone(ctx, code, milestone, at)
}

func (s *Store) ReleaseMilestone(ctx context.Context, code string, milestone int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.with(s.db).ReleaseMilestone(ctx, code, milestone)
}

func (s *Store) LogDelivery(ctx context.Context, rec generic.DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.with(s.db).LogDelivery(ctx, rec)
}

func (s *Store) ListDeliveries(ctx context.Context, code string, limit int) ([]generic.DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.with(s.db).ListDeliveries(ctx, code, limit)
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// txAttempts bounds WithTx retries after serialization failures.
const txAttempts = 3

// WithTx executes a function within a database transaction. fn may run
// more than once, so it must only touch the store it is handed.
func (s *Store) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for attempt := 0; attempt < txAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !s.opts.IsSerializationFailure(err) {
			return err
		}
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(generic.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, s.txOptions())
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	view := s.with(sqlTx)
	if err := fn(&view); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txOptions picks SERIALIZABLE for PostgreSQL, whose default READ
// COMMITTED would let two instances approve overlapping requests.
func (s *Store) txOptions() *sql.TxOptions {
	if s.opts.Dialect == Dollar {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}

// =============================================================================
// QUERIES - shared by the pool and by transactions
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type ops struct {
	q    querier
	opts Options
}

func (o ops) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return o.q.ExecContext(ctx, Rebind(o.opts.Dialect, query), args...)
}

func (o ops) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return o.q.QueryContext(ctx, Rebind(o.opts.Dialect, query), args...)
}

func (o ops) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return o.q.QueryRowContext(ctx, Rebind(o.opts.Dialect, query), args...)
}

func (o ops) now() string {
	return formatTime(o.opts.Now())
}

// ---- requests --------------------------------------------------------------

const requestColumns = `id, pilot_id, pilot_rank, seniority, category, details_json, start_date, end_date,
	period_code, status, priority_score, conflicts_json, decided_by, decided_at, denial_reason,
	created_at, updated_at`

func (o ops) CreateRequest(ctx context.Context, r generic.Request) error {
	details, conflicts, err := encodeRequestJSON(r)
	if err != nil {
		return err
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = o.opts.Now()
	}

	_, err = o.exec(ctx, `
		INSERT INTO requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(r.ID), string(r.PilotID), string(r.Rank), r.Seniority, string(r.Category()), details,
		r.Start.String(), r.End.String(), r.PeriodCode, string(r.Status), r.PriorityScore, conflicts,
		r.DecidedBy, nullTime(r.DecidedAt), r.DenialReason, formatTime(created), formatTime(created),
	)
	if err != nil {
		if o.opts.IsUniqueViolation(err) {
			return fmt.Errorf("%w: request %s already exists", generic.ErrDuplicateSubmission, r.ID)
		}
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}

func (o ops) UpdateRequest(ctx context.Context, r generic.Request) error {
	_, conflicts, err := encodeRequestJSON(r)
	if err != nil {
		return err
	}

	res, err := o.exec(ctx, `
		UPDATE requests
		SET status = ?, priority_score = ?, conflicts_json = ?, decided_by = ?, decided_at = ?,
		    denial_reason = ?, updated_at = ?
		WHERE id = ?`,
		string(r.Status), r.PriorityScore, conflicts, r.DecidedBy, nullTime(r.DecidedAt),
		r.DenialReason, o.now(), string(r.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &generic.NotFoundError{Kind: "request", Key: string(r.ID)}
	}
	return nil
}

func (o ops) GetRequest(ctx context.Context, id generic.RequestID) (generic.Request, error) {
	rows, err := o.query(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, string(id))
	if err != nil {
		return generic.Request{}, fmt.Errorf("failed to query request: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return generic.Request{}, err
		}
		return generic.Request{}, &generic.NotFoundError{Kind: "request", Key: string(id)}
	}
	return scanRequest(rows)
}

func (o ops) ListRequests(ctx context.Context, f generic.RequestFilter) ([]generic.Request, error) {
	var (
		where []string
		args  []any
	)
	if f.PilotID != "" {
		where = append(where, "pilot_id = ?")
		args = append(args, string(f.PilotID))
	}
	if f.Rank != "" {
		where = append(where, "pilot_rank = ?")
		args = append(args, string(f.Rank))
	}
	if f.PeriodCode != "" {
		where = append(where, "period_code = ?")
		args = append(args, f.PeriodCode)
	}
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if f.Overlaps != nil {
		where = append(where, "start_date <= ? AND end_date >= ?")
		args = append(args, f.Overlaps.End.String(), f.Overlaps.Start.String())
	}
	if f.StartYear != 0 {
		where = append(where, "start_date >= ? AND start_date <= ?")
		args = append(args, generic.StartOfYear(f.StartYear).String(), generic.EndOfYear(f.StartYear).String())
	}

	query := `SELECT ` + requestColumns + ` FROM requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_date ASC, id ASC"

	rows, err := o.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var out []generic.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRequest(rows *sql.Rows) (generic.Request, error) {
	var (
		r                  generic.Request
		id, pilotID        string
		rank, category     string
		detailsJSON        string
		start, end         string
		status             string
		conflictsJSON      string
		decidedAt          sql.NullString
		createdAt, updated string
	)
	err := rows.Scan(
		&id, &pilotID, &rank, &r.Seniority, &category, &detailsJSON, &start, &end,
		&r.PeriodCode, &status, &r.PriorityScore, &conflictsJSON, &r.DecidedBy, &decidedAt, &r.DenialReason,
		&createdAt, &updated,
	)
	if err != nil {
		return r, fmt.Errorf("failed to scan request: %w", err)
	}

	r.ID = generic.RequestID(id)
	r.PilotID = generic.PilotID(pilotID)
	r.Rank = generic.Rank(rank)
	r.Status = generic.Status(status)

	if r.Details, err = factory.DecodeDetails(generic.Category(category), []byte(detailsJSON)); err != nil {
		return r, fmt.Errorf("request %s: %w", id, err)
	}
	if r.Start, err = generic.ParseDate(start); err != nil {
		return r, fmt.Errorf("request %s: %w", id, err)
	}
	if r.End, err = generic.ParseDate(end); err != nil {
		return r, fmt.Errorf("request %s: %w", id, err)
	}
	if conflictsJSON != "" {
		var stored []conflictRecord
		if err := json.Unmarshal([]byte(conflictsJSON), &stored); err != nil {
			return r, fmt.Errorf("request %s: bad conflicts: %w", id, err)
		}
		r.Conflicts = fromConflictRecords(stored)
	}
	if decidedAt.Valid && decidedAt.String != "" {
		t := parseTime(decidedAt.String)
		r.DecidedAt = &t
	}
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updated)
	return r, nil
}

// ---- pilots ----------------------------------------------------------------

func (o ops) SavePilot(ctx context.Context, p generic.Pilot) error {
	_, err := o.exec(ctx, `
		INSERT INTO pilots (id, name, email, pilot_rank, seniority, active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			pilot_rank = excluded.pilot_rank,
			seniority = excluded.seniority,
			active = excluded.active`,
		string(p.ID), p.Name, p.Email, string(p.Rank), p.Seniority, p.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to save pilot: %w", err)
	}
	return nil
}

func (o ops) GetPilot(ctx context.Context, id generic.PilotID) (generic.Pilot, error) {
	var (
		p    generic.Pilot
		pid  string
		rank string
	)
	err := o.queryRow(ctx,
		`SELECT id, name, email, pilot_rank, seniority, active FROM pilots WHERE id = ?`, string(id),
	).Scan(&pid, &p.Name, &p.Email, &rank, &p.Seniority, &p.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Pilot{}, &generic.NotFoundError{Kind: "pilot", Key: string(id)}
	}
	if err != nil {
		return generic.Pilot{}, fmt.Errorf("failed to get pilot: %w", err)
	}
	p.ID = generic.PilotID(pid)
	p.Rank = generic.Rank(rank)
	return p, nil
}

func (o ops) ListPilots(ctx context.Context, rank generic.Rank) ([]generic.Pilot, error) {
	query := `SELECT id, name, email, pilot_rank, seniority, active FROM pilots`
	var args []any
	if rank != "" {
		query += ` WHERE pilot_rank = ?`
		args = append(args, string(rank))
	}
	query += ` ORDER BY seniority ASC, id ASC`

	rows, err := o.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pilots: %w", err)
	}
	defer rows.Close()

	var out []generic.Pilot
	for rows.Next() {
		var (
			p       generic.Pilot
			id, rnk string
		)
		if err := rows.Scan(&id, &p.Name, &p.Email, &rnk, &p.Seniority, &p.Active); err != nil {
			return nil, fmt.Errorf("failed to scan pilot: %w", err)
		}
		p.ID = generic.PilotID(id)
		p.Rank = generic.Rank(rnk)
		out = append(out, p)
	}
	return out, rows.Err()
}

// CrewSize counts active pilots of the rank. The roster has no per-day
// availability, so span only scopes the question.
func (o ops) CrewSize(ctx context.Context, rank generic.Rank, _ generic.DateRange) (int, error) {
	var n int
	err := o.queryRow(ctx,
		`SELECT COUNT(*) FROM pilots WHERE pilot_rank = ? AND active = ?`, string(rank), true,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count crew: %w", err)
	}
	return n, nil
}

// ---- periods ---------------------------------------------------------------

func (o ops) PeriodStatus(ctx context.Context, code string) (generic.PeriodStatus, bool, error) {
	var status string
	err := o.queryRow(ctx, `SELECT status FROM period_statuses WHERE code = ?`, code).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.PeriodOpen, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get period status: %w", err)
	}
	return generic.PeriodStatus(status), true, nil
}

func (o ops) SetPeriodStatus(ctx context.Context, code string, status generic.PeriodStatus) error {
	_, err := o.exec(ctx, `
		INSERT INTO period_statuses (code, status, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		code, string(status), o.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to set period status: %w", err)
	}
	return nil
}

// ---- alerts ----------------------------------------------------------------

func (o ops) FiredMilestones(ctx context.Context, code string) (map[int]time.Time, error) {
	rows, err := o.query(ctx, `SELECT milestone, fired_at FROM alert_milestones WHERE period_code = ?`, code)
	if err != nil {
		return nil, fmt.Errorf("failed to query milestones: %w", err)
	}
	defer rows.Close()

	out := make(map[int]time.Time)
	for rows.Next() {
		var (
			m  int
			at string
		)
		if err := rows.Scan(&m, &at); err != nil {
			return nil, fmt.Errorf("failed to scan milestone: %w", err)
		}
		out[m] = parseTime(at)
	}
	return out, rows.Err()
}

// ClaimMilestone relies on the (period_code, milestone) primary key: of
// several instances inserting the same pair, one sees a row affected.
func (o ops) ClaimMilestone(ctx context.Context, code string, milestone int, at time.Time) (bool, error) {
	res, err := o.exec(ctx, `
		INSERT INTO alert_milestones (period_code, milestone, fired_at) VALUES (?, ?, ?)
		ON CONFLICT (period_code, milestone) DO NOTHING`,
		code, milestone, formatTime(at),
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim milestone: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim milestone: %w", err)
	}
	return n == 1, nil
}

func (o ops) ReleaseMilestone(ctx context.Context, code string, milestone int) error {
	_, err := o.exec(ctx, `DELETE FROM alert_milestones WHERE period_code = ? AND milestone = ?`, code, milestone)
	if err != nil {
		return fmt.Errorf("failed to release milestone: %w", err)
	}
	return nil
}

func (o ops) LogDelivery(ctx context.Context, rec generic.DeliveryRecord) error {
	recipients, err := json.Marshal(rec.Recipients)
	if err != nil {
		return err
	}
	if rec.Recipients == nil {
		recipients = []byte("[]")
	}
	_, err = o.exec(ctx, `
		INSERT INTO alert_deliveries (id, period_code, milestone, days_until, outcome, detail, recipients_json, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PeriodCode, rec.Milestone, rec.DaysUntil, string(rec.Outcome), rec.Detail,
		string(recipients), formatTime(rec.AttemptedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to log delivery: %w", err)
	}
	return nil
}

func (o ops) ListDeliveries(ctx context.Context, code string, limit int) ([]generic.DeliveryRecord, error) {
	query := `SELECT id, period_code, milestone, days_until, outcome, detail, recipients_json, attempted_at FROM alert_deliveries`
	var args []any
	if code != "" {
		query += ` WHERE period_code = ?`
		args = append(args, code)
	}
	query += ` ORDER BY attempted_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ` + strconv.Itoa(limit)
	}

	rows, err := o.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	var out []generic.DeliveryRecord
	for rows.Next() {
		var (
			rec        generic.DeliveryRecord
			outcome    string
			recipients string
			at         string
		)
		if err := rows.Scan(&rec.ID, &rec.PeriodCode, &rec.Milestone, &rec.DaysUntil, &outcome, &rec.Detail, &recipients, &at); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		rec.Outcome = generic.DeliveryOutcome(outcome)
		rec.AttemptedAt = parseTime(at)
		if recipients != "" {
			_ = json.Unmarshal([]byte(recipients), &rec.Recipients)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

// Rebind rewrites "?" placeholders for the dialect.
func Rebind(d Dialect, query string) string {
	if d != Dollar {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// conflictRecord is the stored JSON shape of a generic.Conflict.
type conflictRecord struct {
	Type      string `json:"type"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	RelatedID string `json:"related_id,omitempty"`
	Date      string `json:"date,omitempty"`
	Blocking  bool   `json:"blocking,omitempty"`
}

func encodeRequestJSON(r generic.Request) (details, conflicts string, err error) {
	raw, err := factory.EncodeDetails(r.Details)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode details: %w", err)
	}
	recs := make([]conflictRecord, 0, len(r.Conflicts))
	for _, c := range r.Conflicts {
		rec := conflictRecord{
			Type:      string(c.Type),
			Severity:  string(c.Severity),
			Message:   c.Message,
			RelatedID: string(c.RelatedID),
			Blocking:  c.Blocking,
		}
		if c.Date != nil {
			rec.Date = c.Date.String()
		}
		recs = append(recs, rec)
	}
	cj, err := json.Marshal(recs)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode conflicts: %w", err)
	}
	return string(raw), string(cj), nil
}

func fromConflictRecords(recs []conflictRecord) []generic.Conflict {
	if len(recs) == 0 {
		return nil
	}
	out := make([]generic.Conflict, 0, len(recs))
	for _, rec := range recs {
		c := generic.Conflict{
			Type:      generic.ConflictType(rec.Type),
			Severity:  generic.Severity(rec.Severity),
			Message:   rec.Message,
			RelatedID: generic.RequestID(rec.RelatedID),
			Blocking:  rec.Blocking,
		}
		if rec.Date != "" {
			if tp, err := generic.ParseDate(rec.Date); err == nil {
				c.Date = &tp
			}
		}
		out = append(out, c)
	}
	return out
}

// timeLayout is RFC3339 with fixed nanoseconds so text order is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

var _ generic.TxStore = (*Store)(nil)
var _ generic.Store = (*ops)(nil)
