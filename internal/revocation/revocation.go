// Package revocation keeps the denylist of token identifiers that must be
// rejected before their natural expiry.
package revocation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

const (
	ReasonLogout         = "logout"
	ReasonRotated        = "rotated"
	ReasonPasswordChange = "password_change"
	ReasonAdmin          = "admin"
)

var ErrMissingJTI = errors.New("revocation: jti is required")

// Entry is one denylisted token. ExpiresAt is the token's own expiry and
// bounds how long the entry has to be kept; zero means unknown.
type Entry struct {
	JTI       string
	UserID    int64
	Reason    string
	ExpiresAt time.Time
	RevokedAt time.Time
}

// Store persists entries. Insert must be a no-op when the jti already exists
// and reports whether this call created the entry.
type Store interface {
	Insert(ctx context.Context, e Entry) (bool, error)
	Exists(ctx context.Context, jti string) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type Registry struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewRegistry(store Store, logger *slog.Logger) *Registry {
	return &Registry{store: store, logger: logger, now: time.Now}
}

// WithClock replaces the time source used for RevokedAt.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Revoke records e.JTI as revoked. Revoking the same jti again succeeds
// and leaves the first entry untouched.
func (r *Registry) Revoke(ctx context.Context, e Entry) error {
	_, err := r.Consume(ctx, e)
	return err
}

// Consume records e.JTI like Revoke and reports whether this call was the one
// that revoked it. Of any number of concurrent calls for one jti exactly one
// gets true.
func (r *Registry) Consume(ctx context.Context, e Entry) (bool, error) {
	e.JTI = strings.TrimSpace(e.JTI)
	if e.JTI == "" {
		return false, ErrMissingJTI
	}
	if e.RevokedAt.IsZero() {
		e.RevokedAt = r.now().UTC()
	}

	inserted, err := r.store.Insert(ctx, e)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to revoke token", "jti", e.JTI, "user_id", e.UserID, "error", err)
		return false, err
	}
	if !inserted {
		r.logger.DebugContext(ctx, "token already revoked", "jti", e.JTI, "user_id", e.UserID)
		return false, nil
	}

	r.logger.InfoContext(ctx, "token revoked", "jti", e.JTI, "user_id", e.UserID, "reason", e.Reason)
	return true, nil
}

func (r *Registry) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, ErrMissingJTI
	}
	return r.store.Exists(ctx, jti)
}

// Prune drops entries whose token expired before the given time.
// Verification checks expiry first, so skipping this never lets a token through.
func (r *Registry) Prune(ctx context.Context, before time.Time) (int64, error) {
	n, err := r.store.DeleteExpired(ctx, before)
	if err != nil {
		return 0, err
	}
	r.logger.InfoContext(ctx, "pruned revoked tokens", "deleted", n, "before", before)
	return n, nil
}
