package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/spec-kit/support-router/internal/domain"
)

type sqliteSessionRepository struct {
	db *sql.DB
}

// NewSQLiteSessionRepository instantiates the embedded repository.
func NewSQLiteSessionRepository(db *sql.DB) SessionRepository {
	return &sqliteSessionRepository{db: db}
}

func (r *sqliteSessionRepository) Insert(ctx context.Context, session *domain.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (ticket, requester_identity, status, created_at) VALUES (?, ?, ?, ?)`,
		session.Ticket, int64(session.Requester), string(session.Status), session.CreatedAt.UTC())
	if err == nil {
		return nil
	}
	if isSQLiteUniqueViolation(err) {
		if strings.Contains(err.Error(), "requester_identity") {
			return domain.ErrRequesterAlreadyActive
		}
		return domain.ErrDuplicateTicket
	}
	return err
}

func (r *sqliteSessionRepository) MarkActive(ctx context.Context, ticket string, responder domain.Identity) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET responder_identity = ?, status = 'active'
		 WHERE ticket = ? AND status = 'waiting' AND responder_identity IS NULL`,
		int64(responder), ticket)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return domain.ErrResponderAlreadyActive
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.missingOr(ctx, ticket, domain.ErrAlreadyClaimed)
	}
	return nil
}

func (r *sqliteSessionRepository) MarkClosed(ctx context.Context, ticket string, closedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET status = 'closed', closed_at = ? WHERE ticket = ? AND status <> 'closed'`,
		closedAt.UTC(), ticket)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.missingOr(ctx, ticket, nil)
	}
	return nil
}

func (r *sqliteSessionRepository) GetByTicket(ctx context.Context, ticket string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT ticket, requester_identity, responder_identity, status, created_at, closed_at
		 FROM sessions WHERE ticket = ?`, ticket)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return session, err
}

func (r *sqliteSessionRepository) ListOpen(ctx context.Context) ([]domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ticket, requester_identity, responder_identity, status, created_at, closed_at
		 FROM sessions WHERE status <> 'closed' ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *session)
	}
	return result, rows.Err()
}

func (r *sqliteSessionRepository) missingOr(ctx context.Context, ticket string, fallback error) error {
	if _, err := r.GetByTicket(ctx, ticket); err != nil {
		return err
	}
	return fallback
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
