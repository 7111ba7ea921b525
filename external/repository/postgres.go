package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/foxseedlab/genkaipoint/internal/genkai"
	"github.com/foxseedlab/genkaipoint/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolationCode = "23505"

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (r *PostgresStore) Close() {
	r.pool.Close()
}

func (r *PostgresStore) AppendSession(ctx context.Context, input repository.AppendSessionInput) (*genkai.Session, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO vc_sessions (user_id, joined_at)
		 VALUES ($1, $2)
		 RETURNING id, user_id, joined_at, left_at`,
		input.UserID, input.JoinedAt)
	s, err := scanSession(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrOpenSessionExists
		}
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return &s, nil
}

func (r *PostgresStore) CloseSession(ctx context.Context, input repository.CloseSessionInput) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE vc_sessions SET left_at = GREATEST($2, joined_at)
		 WHERE user_id = $1 AND left_at IS NULL`,
		input.UserID, input.LeftAt)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNoOpenSession
	}
	return nil
}

func (r *PostgresStore) ReopenSession(ctx context.Context, sessionID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE vc_sessions SET left_at = NULL WHERE id = $1 AND left_at IS NOT NULL`,
		sessionID)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrOpenSessionExists
		}
		return fmt.Errorf("reopen session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrSessionNotFound
	}
	return nil
}

func (r *PostgresStore) ListUserSessions(ctx context.Context, userID string) ([]genkai.Session, error) {
	return r.querySessions(ctx,
		`SELECT id, user_id, joined_at, left_at FROM vc_sessions
		 WHERE user_id = $1 ORDER BY joined_at ASC`,
		userID)
}

func (r *PostgresStore) ListAllSessions(ctx context.Context) ([]genkai.Session, error) {
	return r.querySessions(ctx,
		`SELECT id, user_id, joined_at, left_at FROM vc_sessions ORDER BY joined_at ASC`)
}

func (r *PostgresStore) ListOpenUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM vc_sessions WHERE left_at IS NULL ORDER BY user_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list open users: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list open users: %w", err)
	}
	return ids, nil
}

func (r *PostgresStore) querySessions(ctx context.Context, sql string, args ...any) ([]genkai.Session, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var list []genkai.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func scanSession(row pgx.Row) (genkai.Session, error) {
	var s genkai.Session
	if err := row.Scan(&s.ID, &s.UserID, &s.JoinedAt, &s.LeftAt); err != nil {
		return genkai.Session{}, err
	}
	s.JoinedAt = s.JoinedAt.UTC()
	if s.LeftAt != nil {
		left := s.LeftAt.UTC()
		s.LeftAt = &left
	}
	return s, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
