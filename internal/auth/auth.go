package auth

import (
	"context"
	"strconv"
	"time"

	directory "github.com/frahmantamala/project-access/internal/core/datamodel/directory"
	"github.com/frahmantamala/project-access/internal/revocation"
	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

type RoleClaim struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// Claims is the payload of an access token. Role is null for users without a role.
type Claims struct {
	Type        string     `json:"typ"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Role        *RoleClaim `json:"role"`
	Permissions []string   `json:"permissions"`
	IsSuperuser bool       `json:"is_superuser"`
	IsActive    bool       `json:"is_active"`
	Version     int        `json:"ver"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

func (c *Claims) HasPermission(code string) bool {
	for _, p := range c.Permissions {
		if p == code {
			return true
		}
	}
	return false
}

// RefreshClaims carries only identity. Remember keeps the lifetime class across rotations.
type RefreshClaims struct {
	Type     string `json:"typ"`
	Version  int    `json:"ver"`
	Remember bool   `json:"rmb,omitempty"`
	jwt.RegisteredClaims
}

func (c *RefreshClaims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// UserSnapshot is returned next to the tokens so clients can render the user without another call.
type UserSnapshot struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Phone       *string    `json:"phone,omitempty"`
	PhotoURL    *string    `json:"photo_url,omitempty"`
	Role        *RoleClaim `json:"role"`
	ServiceID   *int64     `json:"service_id,omitempty"`
	Permissions []string   `json:"permissions"`
	IsActive    bool       `json:"is_active"`
	IsStaff     bool       `json:"is_staff"`
	IsSuperuser bool       `json:"is_superuser"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

type AuthTokens struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type LoginResponse struct {
	AuthTokens
	User UserSnapshot `json:"user"`
}

// UserStore is the slice of the directory the auth flows read and write.
// Lookups return (nil, nil) when no row matches.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*directory.User, error)
	GetUserByID(ctx context.Context, id int64) (*directory.User, error)
	GetRole(ctx context.Context, id int64) (*directory.Role, error)
	UpdateLastLogin(ctx context.Context, userID int64, at time.Time) error
	// UpdatePassword stores the new hash and increments the user's token version.
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
}

type PermissionSource interface {
	PermissionCodesForRole(ctx context.Context, roleID int64) ([]string, error)
}

type RevocationRegistry interface {
	Revoke(ctx context.Context, e revocation.Entry) error
	// Consume revokes e.JTI and reports whether this call was the one that did.
	Consume(ctx context.Context, e revocation.Entry) (bool, error)
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type ctxKey string

const ContextClaimsKey ctxKey = "claims"

func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ContextClaimsKey, claims)
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ContextClaimsKey).(*Claims)
	return c, ok && c != nil
}
