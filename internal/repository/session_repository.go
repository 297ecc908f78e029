package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-router/internal/domain"
)

// SessionRepository is the durable session table. It is the system of record for
// session lifecycle; the in-process store is rebuilt from it at startup.
type SessionRepository interface {
	Insert(ctx context.Context, session *domain.Session) error
	MarkActive(ctx context.Context, ticket string, responder domain.Identity) error
	MarkClosed(ctx context.Context, ticket string, closedAt time.Time) error
	GetByTicket(ctx context.Context, ticket string) (*domain.Session, error)
	ListOpen(ctx context.Context) ([]domain.Session, error)
}

type sessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository instantiates the Postgres repository.
func NewSessionRepository(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepository{pool: pool}
}

func (r *sessionRepository) Insert(ctx context.Context, session *domain.Session) error {
	const query = `
        INSERT INTO sessions (ticket, requester_identity, status, created_at)
        VALUES ($1,$2,$3,$4)`
	_, err := r.pool.Exec(ctx, query,
		session.Ticket,
		int64(session.Requester),
		session.Status,
		session.CreatedAt,
	)
	return mapPgInsertError(err)
}

func (r *sessionRepository) MarkActive(ctx context.Context, ticket string, responder domain.Identity) error {
	const query = `
        UPDATE sessions SET responder_identity=$1, status='active'
        WHERE ticket=$2 AND status='waiting' AND responder_identity IS NULL`
	cmd, err := r.pool.Exec(ctx, query, int64(responder), ticket)
	if err != nil {
		if isPgUniqueViolation(err) {
			return domain.ErrResponderAlreadyActive
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return r.missingOr(ctx, ticket, domain.ErrAlreadyClaimed)
	}
	return nil
}

func (r *sessionRepository) MarkClosed(ctx context.Context, ticket string, closedAt time.Time) error {
	const query = `
        UPDATE sessions SET status='closed', closed_at=$1
        WHERE ticket=$2 AND status<>'closed'`
	cmd, err := r.pool.Exec(ctx, query, closedAt, ticket)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		// already closed is fine; unknown is not
		return r.missingOr(ctx, ticket, nil)
	}
	return nil
}

func (r *sessionRepository) GetByTicket(ctx context.Context, ticket string) (*domain.Session, error) {
	const query = `
        SELECT ticket, requester_identity, responder_identity, status, created_at, closed_at
        FROM sessions WHERE ticket=$1`
	session, err := scanSession(r.pool.QueryRow(ctx, query, ticket))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return session, err
}

func (r *sessionRepository) ListOpen(ctx context.Context) ([]domain.Session, error) {
	const query = `
        SELECT ticket, requester_identity, responder_identity, status, created_at, closed_at
        FROM sessions WHERE status<>'closed' ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

func (r *sessionRepository) missingOr(ctx context.Context, ticket string, fallback error) error {
	if _, err := r.GetByTicket(ctx, ticket); err != nil {
		return err
	}
	return fallback
}

// rowScanner covers pgx.Row and pgx.Rows as well as *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		session   domain.Session
		requester int64
		responder *int64
	)
	if err := row.Scan(
		&session.Ticket,
		&requester,
		&responder,
		&session.Status,
		&session.CreatedAt,
		&session.ClosedAt,
	); err != nil {
		return nil, err
	}
	session.Requester = domain.Identity(requester)
	if responder != nil {
		id := domain.Identity(*responder)
		session.Responder = &id
	}
	return &session, nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func mapPgInsertError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if strings.Contains(pgErr.ConstraintName, "requester") {
			return domain.ErrRequesterAlreadyActive
		}
		return domain.ErrDuplicateTicket
	}
	return err
}
