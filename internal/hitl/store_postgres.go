package hitl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const caseColumns = `id, session_id, category, trigger_message, status, priority, reviewer_reply, created_at, resolved_at`

// PostgresStore persists cases in the cases table so the reviewer queue
// survives restarts.
type PostgresStore struct {
	db     *sql.DB
	tracer trace.Tracer
}

// NewPostgresStore creates a store over an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	if db == nil {
		panic("hitl: db cannot be nil")
	}
	return &PostgresStore{
		db:     db,
		tracer: otel.Tracer("parentcare/hitl-store"),
	}
}

// Create inserts a new case unless the session already has an open one.
// The one-open-case-per-session invariant is enforced by the unique
// partial index on session_id: if two processes race past the check, the
// loser's insert hits the index and the existing case is returned.
func (s *PostgresStore) Create(ctx context.Context, c Case) (Case, bool, error) {
	ctx, span := s.tracer.Start(ctx, "hitl.store_create")
	defer span.End()
	span.SetAttributes(attribute.String("case.session_id", c.SessionID))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Case{}, false, fmt.Errorf("hitl: begin create case: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		SELECT ` + caseColumns + `
		FROM cases
		WHERE session_id = $1 AND status != $2
		LIMIT 1
	`
	existing, err := scanCase(tx.QueryRowContext(ctx, query, c.SessionID, StatusResolved))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Case{}, false, fmt.Errorf("hitl: check open case: %w", err)
	}

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.Status = StatusPending
	insert := `
		INSERT INTO cases (id, session_id, category, trigger_message, status, priority, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := tx.ExecContext(ctx, insert,
		c.ID, c.SessionID, c.Category, c.TriggerMessage, c.Status, c.Priority, c.CreatedAt,
	); err != nil {
		_ = tx.Rollback()
		if isUniqueViolation(err) {
			existing, selErr := scanCase(s.db.QueryRowContext(ctx, query, c.SessionID, StatusResolved))
			if selErr != nil {
				return Case{}, false, fmt.Errorf("hitl: reload open case: %w", selErr)
			}
			return existing, false, nil
		}
		return Case{}, false, fmt.Errorf("hitl: insert case: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Case{}, false, fmt.Errorf("hitl: commit create case: %w", err)
	}
	return c, true, nil
}

// Get returns the case with the given id.
func (s *PostgresStore) Get(ctx context.Context, id string) (Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id = $1`
	c, err := scanCase(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Case{}, ErrCaseNotFound
	}
	if err != nil {
		return Case{}, fmt.Errorf("hitl: get case: %w", err)
	}
	return c, nil
}

// List returns cases with the given status, or all cases when status is
// empty, high priority first then oldest first.
func (s *PostgresStore) List(ctx context.Context, status Status) ([]Case, error) {
	ctx, span := s.tracer.Start(ctx, "hitl.store_list")
	defer span.End()

	query := `
		SELECT ` + caseColumns + `
		FROM cases
		WHERE ($1 = '' OR status = $1)
		ORDER BY
			CASE priority WHEN 'high' THEN 1 ELSE 2 END,
			created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, status)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("hitl: list cases: %w", err)
	}
	defer rows.Close()

	var cases []Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("hitl: scan case: %w", err)
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hitl: iterate cases: %w", err)
	}
	return cases, nil
}

// Claim transitions a pending case to in_progress.
func (s *PostgresStore) Claim(ctx context.Context, id string) (Case, error) {
	ctx, span := s.tracer.Start(ctx, "hitl.store_claim")
	defer span.End()

	query := `UPDATE cases SET status = $1 WHERE id = $2 AND status = $3`
	result, err := s.db.ExecContext(ctx, query, StatusInProgress, id, StatusPending)
	if err != nil {
		span.RecordError(err)
		return Case{}, fmt.Errorf("hitl: claim case: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return Case{}, fmt.Errorf("hitl: claim case result: %w", err)
	}
	if rows == 0 {
		return Case{}, s.transitionError(ctx, id, ErrCaseClaimed)
	}
	return s.Get(ctx, id)
}

// Resolve transitions any open case to resolved, recording the reply.
func (s *PostgresStore) Resolve(ctx context.Context, id, reply string) (Case, error) {
	ctx, span := s.tracer.Start(ctx, "hitl.store_resolve")
	defer span.End()

	now := time.Now()
	query := `
		UPDATE cases
		SET status = $1, reviewer_reply = $2, resolved_at = $3
		WHERE id = $4 AND status != $1
	`
	result, err := s.db.ExecContext(ctx, query, StatusResolved, reply, now, id)
	if err != nil {
		span.RecordError(err)
		return Case{}, fmt.Errorf("hitl: resolve case: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return Case{}, fmt.Errorf("hitl: resolve case result: %w", err)
	}
	if rows == 0 {
		return Case{}, s.transitionError(ctx, id, ErrCaseResolved)
	}
	return s.Get(ctx, id)
}

// transitionError distinguishes a missing case from an invalid transition
// after an UPDATE matched no rows.
func (s *PostgresStore) transitionError(ctx context.Context, id string, fallback error) error {
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status == StatusResolved {
		return ErrCaseResolved
	}
	return fallback
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (Case, error) {
	var c Case
	var reply sql.NullString
	var resolvedAt sql.NullTime
	if err := row.Scan(
		&c.ID, &c.SessionID, &c.Category, &c.TriggerMessage,
		&c.Status, &c.Priority, &reply, &c.CreatedAt, &resolvedAt,
	); err != nil {
		return Case{}, err
	}
	if reply.Valid {
		c.ReviewerReply = reply.String
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		c.ResolvedAt = &t
	}
	return c, nil
}
