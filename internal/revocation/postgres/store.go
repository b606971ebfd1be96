package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/frahmantamala/project-access/internal/revocation"
	"github.com/jmoiron/sqlx"
)

const (
	insertRevokedToken = `INSERT INTO revoked_tokens (user_id, jti, revoked_at, reason, expires_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (jti) DO NOTHING`
	existsRevokedToken = `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1)`
	deleteExpiredToken = `DELETE FROM revoked_tokens WHERE expires_at IS NOT NULL AND expires_at <= $1`
)

type RevocationStore struct {
	db *sqlx.DB
}

func NewRevocationStore(db *sqlx.DB) *RevocationStore {
	return &RevocationStore{db: db}
}

// Insert reports false when the jti was already present.
func (s *RevocationStore) Insert(ctx context.Context, e revocation.Entry) (bool, error) {
	var reason sql.NullString
	if e.Reason != "" {
		reason = sql.NullString{String: e.Reason, Valid: true}
	}
	var expiresAt sql.NullTime
	if !e.ExpiresAt.IsZero() {
		expiresAt = sql.NullTime{Time: e.ExpiresAt.UTC(), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, insertRevokedToken, e.UserID, e.JTI, e.RevokedAt.UTC(), reason, expiresAt)
	if err != nil {
		return false, fmt.Errorf("insert revoked token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert revoked token: %w", err)
	}
	return n == 1, nil
}

func (s *RevocationStore) Exists(ctx context.Context, jti string) (bool, error) {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, existsRevokedToken, jti); err != nil {
		return false, fmt.Errorf("lookup revoked token: %w", err)
	}
	return exists, nil
}

func (s *RevocationStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, deleteExpiredToken, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired revoked tokens: %w", err)
	}
	return res.RowsAffected()
}
