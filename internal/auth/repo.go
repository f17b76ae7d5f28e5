package auth

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gestionrh/gestionrh-console/internal/platform/db"
)

// Repository defines persistence operations for the console session registry.
type Repository interface {
	CreateSession(ctx context.Context, rec SessionRecord) error
	DeleteSession(ctx context.Context, id string) error
	RecentSessions(ctx context.Context, email string, limit int) ([]SessionRecord, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CreateSession records a sign-in and prunes the user's expired rows.
func (r *PGRepository) CreateSession(ctx context.Context, rec SessionRecord) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM console_sessions WHERE email = $1 AND expires_at < $2`, rec.Email, rec.CreatedAt.UTC()); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO console_sessions (id, email, created_at, expires_at, ip, ua) VALUES ($1, $2, $3, $4, $5, $6)`,
			rec.ID,
			rec.Email,
			pgtype.Timestamptz{Time: rec.CreatedAt.UTC(), Valid: true},
			pgtype.Timestamptz{Time: rec.ExpiresAt.UTC(), Valid: true},
			pgtype.Text{String: rec.IP, Valid: rec.IP != ""},
			pgtype.Text{String: rec.UserAgent, Valid: rec.UserAgent != ""},
		)
		return err
	})
}

// DeleteSession removes a session record from the database.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM console_sessions WHERE id = $1`, id)
	return err
}

// RecentSessions lists the latest sign-ins of email.
func (r *PGRepository) RecentSessions(ctx context.Context, email string, limit int) ([]SessionRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, email, COALESCE(ip, ''), COALESCE(ua, ''), created_at, expires_at FROM console_sessions WHERE email = $1 ORDER BY created_at DESC LIMIT $2`, email, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (SessionRecord, error) {
		var rec SessionRecord
		err := row.Scan(&rec.ID, &rec.Email, &rec.IP, &rec.UserAgent, &rec.CreatedAt, &rec.ExpiresAt)
		return rec, err
	})
}

// PruneExpired deletes every session record that expired before now.
func (r *PGRepository) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM console_sessions WHERE expires_at < $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)

// nopRepository is used when no database is configured.
type nopRepository struct{}

func (nopRepository) CreateSession(context.Context, SessionRecord) error { return nil }
func (nopRepository) DeleteSession(context.Context, string) error        { return nil }
func (nopRepository) RecentSessions(context.Context, string, int) ([]SessionRecord, error) {
	return nil, nil
}
