// Package postgres implements repository.Store on PostgreSQL.
//
// Claim and Release rely on conditional updates: a row only changes while it
// is still in the expected prior status, and zero affected rows means another
// caller got there first.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/okian/lineup/internal/adapters/repository"
	"github.com/okian/lineup/internal/domain/model"
	"github.com/okian/lineup/pkg/metrics"
)

const (
	storeLabel = "postgres"

	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	activeIndex = "queue_entries_one_active"

	entryColumns = `id, subject_id, line_id, service_class, needs_assistance, joined_at,
		status, assigned_counter, service_started_at, service_completed_at`
)

//go:embed schema.sql
var schema string

var _ repository.Store = (*Store)(nil)

// Store is a pgx backed repository.Store.
type Store struct {
	pool *pgxpool.Pool
	owns bool
}

// New wraps an existing pool. Close leaves the pool open.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to dsn, verifies the connection and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{pool: pool, owns: true}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the tables and indexes when missing. It is idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close implements repository.Store.
func (s *Store) Close() error {
	if s.owns {
		s.pool.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (model.QueueEntry, error) {
	var (
		e      model.QueueEntry
		class  int16
		status string
	)
	if err := row.Scan(&e.ID, &e.SubjectID, &e.LineID, &class, &e.NeedsAssistance, &e.JoinedAt,
		&status, &e.AssignedCounter, &e.ServiceStartedAt, &e.ServiceCompletedAt); err != nil {
		return model.QueueEntry{}, err
	}
	e.ServiceClass = model.ServiceClass(class)
	e.Status = model.EntryStatus(status)
	return e, nil
}

func scanEntries(rows pgx.Rows) ([]model.QueueEntry, error) {
	defer rows.Close()
	var out []model.QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanLine(row rowScanner) (model.Line, error) {
	var l model.Line
	err := row.Scan(&l.ID, &l.Code, &l.Destination, &l.DeadlineAt, &l.CreatedAt)
	return l, err
}

func scanCounter(row rowScanner) (model.Counter, error) {
	var (
		c      model.Counter
		status string
	)
	if err := row.Scan(&c.ID, &c.Name, &status, &c.CurrentEntry); err != nil {
		return model.Counter{}, err
	}
	c.Status = model.CounterStatus(status)
	return c, nil
}

func pgCode(err error) (code, constraint string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

// CreateLine implements repository.Store.
func (s *Store) CreateLine(ctx context.Context, line model.Line) (model.Line, error) {
	defer metrics.RecordStoreOperation(storeLabel, "create_line", time.Now())

	if strings.TrimSpace(line.ID) == "" {
		return model.Line{}, fmt.Errorf("create line: empty id: %w", repository.ErrInvalidLine)
	}
	if line.CreatedAt.IsZero() {
		line.CreatedAt = time.Now().UTC()
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO lines (id, code, destination, deadline_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, code, destination, deadline_at, created_at
	`, line.ID, line.Code, line.Destination, line.DeadlineAt, line.CreatedAt)
	out, err := scanLine(row)
	if err != nil {
		if code, _ := pgCode(err); code == pgUniqueViolation {
			return model.Line{}, fmt.Errorf("line %q: %w", line.ID, model.ErrDuplicate)
		}
		return model.Line{}, fmt.Errorf("create line: %w", err)
	}
	return out, nil
}

// GetLine implements repository.Store.
func (s *Store) GetLine(ctx context.Context, id string) (model.Line, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, code, destination, deadline_at, created_at FROM lines WHERE id = $1
	`, id)
	l, err := scanLine(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Line{}, model.NotFoundError("line", id)
		}
		return model.Line{}, fmt.Errorf("get line: %w", err)
	}
	return l, nil
}

// ListLines implements repository.Store.
func (s *Store) ListLines(ctx context.Context) ([]model.Line, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, code, destination, deadline_at, created_at FROM lines ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list lines: %w", err)
	}
	defer rows.Close()

	var out []model.Line
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("list lines: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CreateCounter implements repository.Store.
func (s *Store) CreateCounter(ctx context.Context, counter model.Counter) (model.Counter, error) {
	defer metrics.RecordStoreOperation(storeLabel, "create_counter", time.Now())

	if strings.TrimSpace(counter.ID) == "" {
		return model.Counter{}, fmt.Errorf("create counter: empty id: %w", repository.ErrInvalidEntry)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO counters (id, name, status) VALUES ($1, $2, 'IDLE')
		RETURNING id, name, status, current_entry
	`, counter.ID, counter.Name)
	out, err := scanCounter(row)
	if err != nil {
		if code, _ := pgCode(err); code == pgUniqueViolation {
			return model.Counter{}, fmt.Errorf("counter %q: %w", counter.ID, model.ErrDuplicate)
		}
		return model.Counter{}, fmt.Errorf("create counter: %w", err)
	}
	return out, nil
}

// GetCounter implements repository.Store.
func (s *Store) GetCounter(ctx context.Context, id string) (model.Counter, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, name, status, current_entry FROM counters WHERE id = $1`, id)
	c, err := scanCounter(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Counter{}, model.NotFoundError("counter", id)
		}
		return model.Counter{}, fmt.Errorf("get counter: %w", err)
	}
	return c, nil
}

// ListCounters implements repository.Store.
func (s *Store) ListCounters(ctx context.Context) ([]model.Counter, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, status, current_entry FROM counters ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list counters: %w", err)
	}
	defer rows.Close()

	var out []model.Counter
	for rows.Next() {
		c, err := scanCounter(rows)
		if err != nil {
			return nil, fmt.Errorf("list counters: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateEntry implements repository.Store. The partial unique index on
// (subject_id, line_id) enforces a single active entry.
func (s *Store) CreateEntry(ctx context.Context, entry model.QueueEntry) (model.QueueEntry, error) {
	defer metrics.RecordStoreOperation(storeLabel, "create_entry", time.Now())

	if err := repository.ValidateEntry(&entry); err != nil {
		return model.QueueEntry{}, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO queue_entries (id, subject_id, line_id, service_class, needs_assistance, joined_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+entryColumns,
		entry.ID, entry.SubjectID, entry.LineID, int16(entry.ServiceClass), entry.NeedsAssistance,
		entry.JoinedAt, string(entry.Status))
	out, err := scanEntry(row)
	if err == nil {
		return out, nil
	}

	switch code, constraint := pgCode(err); {
	case code == pgForeignKeyViolation:
		return model.QueueEntry{}, model.NotFoundError("line", entry.LineID)
	case code == pgUniqueViolation && constraint == activeIndex:
		existing, lookupErr := s.activeID(ctx, entry.SubjectID, entry.LineID)
		if lookupErr != nil {
			return model.QueueEntry{}, fmt.Errorf("create entry: %w", lookupErr)
		}
		return model.QueueEntry{}, &model.AlreadyActiveError{ExistingID: existing}
	case code == pgUniqueViolation:
		return model.QueueEntry{}, fmt.Errorf("entry %q: %w", entry.ID, model.ErrDuplicate)
	}
	return model.QueueEntry{}, fmt.Errorf("create entry: %w", err)
}

func (s *Store) activeID(ctx context.Context, subjectID, lineID string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM queue_entries
		WHERE subject_id = $1 AND line_id = $2 AND status IN ('WAITING', 'CALLED')
	`, subjectID, lineID).Scan(&id)
	return id, err
}

// GetEntry implements repository.Store.
func (s *Store) GetEntry(ctx context.Context, id string) (model.QueueEntry, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM queue_entries WHERE id = $1`, id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.QueueEntry{}, model.NotFoundError("entry", id)
		}
		return model.QueueEntry{}, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

func (s *Store) lineExists(ctx context.Context, lineID string) error {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM lines WHERE id = $1`, lineID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.NotFoundError("line", lineID)
	}
	return err
}

func (s *Store) listByStatus(ctx context.Context, op, lineID string, statuses ...string) ([]model.QueueEntry, error) {
	if err := s.lineExists(ctx, lineID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+entryColumns+` FROM queue_entries
		WHERE line_id = $1 AND status = ANY($2)
		ORDER BY joined_at, id
	`, lineID, statuses)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out, err := scanEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// ListWaiting implements repository.Store.
func (s *Store) ListWaiting(ctx context.Context, lineID string) ([]model.QueueEntry, error) {
	defer metrics.RecordStoreOperation(storeLabel, "list_waiting", time.Now())
	return s.listByStatus(ctx, "list waiting", lineID, string(model.StatusWaiting))
}

// ListActive implements repository.Store.
func (s *Store) ListActive(ctx context.Context, lineID string) ([]model.QueueEntry, error) {
	return s.listByStatus(ctx, "list active", lineID, string(model.StatusWaiting), string(model.StatusCalled))
}

// ListCompleted implements repository.Store.
func (s *Store) ListCompleted(ctx context.Context, lineID string, limit int) ([]model.QueueEntry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("list completed: %d: %w", limit, repository.ErrInvalidLimit)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+entryColumns+` FROM queue_entries
		WHERE line_id = $1 AND status = 'COMPLETED'
		ORDER BY service_completed_at DESC, id
		LIMIT $2
	`, lineID, limit)
	if err != nil {
		return nil, fmt.Errorf("list completed: %w", err)
	}
	out, err := scanEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("list completed: %w", err)
	}
	return out, nil
}

// ActiveEntries implements repository.Store.
func (s *Store) ActiveEntries(ctx context.Context, subjectID string) ([]model.QueueEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+entryColumns+` FROM queue_entries
		WHERE subject_id = $1 AND status IN ('WAITING', 'CALLED')
		ORDER BY joined_at, id
	`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("active entries: %w", err)
	}
	out, err := scanEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("active entries: %w", err)
	}
	return out, nil
}

// Claim implements repository.Store. The counter and the entry are flipped in
// one transaction; either conditional update matching no row aborts both.
func (s *Store) Claim(ctx context.Context, entryID, counterID string, at time.Time) (out model.QueueEntry, err error) {
	defer metrics.RecordStoreOperation(storeLabel, "claim", time.Now())

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.QueueEntry{}, fmt.Errorf("claim: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE counters SET status = 'BUSY', current_entry = $2
		WHERE id = $1 AND status = 'IDLE'
	`, counterID, entryID)
	if err != nil {
		return model.QueueEntry{}, fmt.Errorf("claim: counter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var one int
		if qerr := tx.QueryRow(ctx, `SELECT 1 FROM counters WHERE id = $1`, counterID).Scan(&one); errors.Is(qerr, pgx.ErrNoRows) {
			err = model.NotFoundError("counter", counterID)
		} else {
			err = fmt.Errorf("counter %s: %w", counterID, model.ErrCounterBusy)
		}
		return model.QueueEntry{}, err
	}

	called, _ := model.ActionCall.Target()
	row := tx.QueryRow(ctx, `
		UPDATE queue_entries
		SET status = $4, assigned_counter = $2, service_started_at = $3
		WHERE id = $1 AND status = 'WAITING'
		RETURNING `+entryColumns, entryID, counterID, at, string(called))
	out, err = scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		var status string
		if qerr := tx.QueryRow(ctx, `SELECT status FROM queue_entries WHERE id = $1`, entryID).Scan(&status); errors.Is(qerr, pgx.ErrNoRows) {
			err = model.NotFoundError("entry", entryID)
		} else {
			err = fmt.Errorf("entry %s is %s: %w", entryID, status, model.ErrClaimConflict)
		}
		return model.QueueEntry{}, err
	}
	if err != nil {
		return model.QueueEntry{}, fmt.Errorf("claim: entry: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return model.QueueEntry{}, fmt.Errorf("claim: commit: %w", err)
	}
	return out, nil
}

// Release implements repository.Store. One statement moves the entry and
// frees the counter still bound to it.
func (s *Store) Release(ctx context.Context, entryID string, to model.EntryStatus, at time.Time) (model.QueueEntry, error) {
	defer metrics.RecordStoreOperation(storeLabel, "release", time.Now())

	action, ok := model.ReleaseAction(to)
	if !ok {
		return model.QueueEntry{}, fmt.Errorf("release to %s: %w", to, model.ErrInvalidTransition)
	}
	target, _ := action.Target()

	row := s.pool.QueryRow(ctx, `
		WITH prior AS (
			SELECT id, assigned_counter FROM queue_entries
			WHERE id = $1 AND status = 'CALLED'
			FOR UPDATE
		), released AS (
			UPDATE queue_entries q
			SET status = $2, assigned_counter = NULL, service_completed_at = $3
			FROM prior
			WHERE q.id = prior.id
			RETURNING q.id, q.subject_id, q.line_id, q.service_class, q.needs_assistance, q.joined_at,
				q.status, q.assigned_counter, q.service_started_at, q.service_completed_at,
				prior.assigned_counter AS prior_counter
		), freed AS (
			UPDATE counters c
			SET status = 'IDLE', current_entry = NULL
			FROM released
			WHERE c.id = released.prior_counter AND c.current_entry = released.id
		)
		SELECT id, subject_id, line_id, service_class, needs_assistance, joined_at,
			status, assigned_counter, service_started_at, service_completed_at
		FROM released
	`, entryID, string(target), at)
	e, err := scanEntry(row)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.QueueEntry{}, fmt.Errorf("release: %w", err)
	}

	current, getErr := s.GetEntry(ctx, entryID)
	if getErr != nil {
		return model.QueueEntry{}, getErr
	}
	return model.QueueEntry{}, fmt.Errorf("entry %s is %s: %w", entryID, current.Status, model.ErrInvalidTransition)
}
