package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/frahmantamala/project-access/internal"
	"github.com/frahmantamala/project-access/internal/core/common/validation"
	directory "github.com/frahmantamala/project-access/internal/core/datamodel/directory"
	"github.com/frahmantamala/project-access/internal/notification"
)

// ResetTokenGenerator mints password reset tokens of the form
//
//	base64url(user_id) "." base36(issued_unix) "." hex(hmac)
//
// The MAC covers the user's password hash, last login and token version, so a
// token stops verifying once the password changes or the user logs in again.
type ResetTokenGenerator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewResetTokenGenerator(secret string, ttl time.Duration) *ResetTokenGenerator {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ResetTokenGenerator{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (g *ResetTokenGenerator) WithClock(now func() time.Time) *ResetTokenGenerator {
	g.now = now
	return g
}

func (g *ResetTokenGenerator) Generate(user *directory.User) string {
	ts := g.now().Unix()
	uid := base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(user.ID, 10)))
	return uid + "." + strconv.FormatInt(ts, 36) + "." + g.mac(user, ts)
}

// Check reports whether token was minted for user's current state and is younger than the TTL.
func (g *ResetTokenGenerator) Check(user *directory.User, token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	uid, ok := ResetTokenUserID(token)
	if !ok || uid != user.ID {
		return false
	}
	ts, err := strconv.ParseInt(parts[1], 36, 64)
	if err != nil {
		return false
	}
	if !g.now().Before(time.Unix(ts, 0).Add(g.ttl)) {
		return false
	}
	return hmac.Equal([]byte(parts[2]), []byte(g.mac(user, ts)))
}

func (g *ResetTokenGenerator) mac(user *directory.User, ts int64) string {
	var lastLogin int64
	if user.LastLoginAt != nil {
		lastLogin = user.LastLoginAt.Unix()
	}
	h := hmac.New(sha256.New, g.secret)
	fmt.Fprintf(h, "%d|%d|%s|%d|%d", user.ID, ts, user.PasswordHash, lastLogin, user.TokenVersion)
	return hex.EncodeToString(h.Sum(nil))
}

// ResetTokenUserID extracts the user id a reset token claims to be bound to. It does not verify the token.
func ResetTokenUserID(token string) (int64, bool) {
	head, _, found := strings.Cut(token, ".")
	if !found {
		return 0, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(head)
	if err != nil {
		return 0, false
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// RequestPasswordReset never reveals whether the email matched. Only store
// failures are reported.
func (s *Service) RequestPasswordReset(ctx context.Context, dto PasswordResetRequestDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}

	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.users.GetUserByEmail(ctx, validation.NormalizeEmail(dto.Email))
	if err != nil {
		return internal.NewInternalError("failed to load user", err)
	}
	if user == nil || !user.IsActive {
		s.metrics.reset("request", "no_match")
		s.logger.DebugContext(ctx, "password reset requested for unknown or inactive account")
		return nil
	}

	link, err := s.resetLink(s.resetTokens.Generate(user))
	if err != nil {
		return internal.NewInternalError("invalid password reset url", err)
	}

	if err := s.notifier.NotifyPasswordReset(ctx, notification.PasswordReset{
		User:     recipient(user),
		ResetURL: link,
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to send password reset notification", "user_id", user.ID, "error", err)
	}

	s.metrics.reset("request", outcomeSuccess)
	return nil
}

// ConfirmPasswordReset sets the new password when the token is valid for the user's
// current state. Every failure is the same InvalidResetToken error.
func (s *Service) ConfirmPasswordReset(ctx context.Context, dto PasswordResetConfirmDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}

	userID, ok := ResetTokenUserID(dto.Token)
	if !ok {
		s.metrics.reset("confirm", outcomeFailure)
		return internal.ErrInvalidResetToken
	}

	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return internal.NewInternalError("failed to load user", err)
	}
	if user == nil || !user.IsActive || !s.resetTokens.Check(user, dto.Token) {
		s.metrics.reset("confirm", outcomeFailure)
		return internal.ErrInvalidResetToken
	}

	if err := s.setPassword(ctx, user.ID, dto.NewPassword); err != nil {
		return err
	}

	s.metrics.reset("confirm", outcomeSuccess)
	return nil
}

func (s *Service) resetLink(token string) (string, error) {
	u, err := url.Parse(s.resetURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func recipient(u *directory.User) notification.Recipient {
	return notification.Recipient{
		UserID:    u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}
