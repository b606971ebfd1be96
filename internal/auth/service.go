package auth

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/frahmantamala/project-access/internal"
	"github.com/frahmantamala/project-access/internal/core/common/validation"
	directory "github.com/frahmantamala/project-access/internal/core/datamodel/directory"
	"github.com/frahmantamala/project-access/internal/notification"
	"github.com/frahmantamala/project-access/internal/revocation"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type ServiceAPI interface {
	Authenticate(ctx context.Context, dto LoginDTO) (*LoginResponse, error)
	Refresh(ctx context.Context, dto RefreshTokenDTO) (*LoginResponse, error)
	VerifyAccessToken(ctx context.Context, tokenString string) (*Claims, error)
	Logout(ctx context.Context, claims *Claims, dto LogoutDTO) error
	RevokeToken(ctx context.Context, dto RevokeTokenDTO) error
	ChangePassword(ctx context.Context, claims *Claims, dto ChangePasswordDTO) error
	CurrentUser(ctx context.Context, userID int64) (*UserSnapshot, error)
	RequestPasswordReset(ctx context.Context, dto PasswordResetRequestDTO) error
	ConfirmPasswordReset(ctx context.Context, dto PasswordResetConfirmDTO) error
}

type Dependencies struct {
	Users        UserStore
	Permissions  PermissionSource
	Tokens       TokenGenerator
	Revocations  RevocationRegistry
	ResetTokens  *ResetTokenGenerator
	Notifier     notification.Notifier
	Metrics      *Metrics
	Logger       *slog.Logger
	ResetURL     string
	BCryptCost   int
	StoreTimeout time.Duration
	Now          func() time.Time
}

type Service struct {
	users        UserStore
	resolver     *PermissionResolver
	tokens       TokenGenerator
	revocations  RevocationRegistry
	resetTokens  *ResetTokenGenerator
	notifier     notification.Notifier
	metrics      *Metrics
	logger       *slog.Logger
	resetURL     string
	bcryptCost   int
	storeTimeout time.Duration
	now          func() time.Time
}

func NewService(deps Dependencies) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.BCryptCost == 0 {
		deps.BCryptCost = bcrypt.DefaultCost
	}
	return &Service{
		users:        deps.Users,
		resolver:     NewPermissionResolver(deps.Permissions),
		tokens:       deps.Tokens,
		revocations:  deps.Revocations,
		resetTokens:  deps.ResetTokens,
		notifier:     deps.Notifier,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		resetURL:     deps.ResetURL,
		bcryptCost:   deps.BCryptCost,
		storeTimeout: deps.StoreTimeout,
		now:          deps.Now,
	}
}

// Authenticate runs the login gates in order: lookup, active flag, password.
// A disabled account is reported before the password is checked.
func (s *Service) Authenticate(ctx context.Context, dto LoginDTO) (*LoginResponse, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.users.GetUserByEmail(ctx, validation.NormalizeEmail(dto.Email))
	if err != nil {
		s.metrics.login(outcomeFailure)
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if user == nil {
		s.metrics.login(outcomeFailure)
		return nil, internal.ErrInvalidCredentials
	}
	if !user.IsActive {
		s.metrics.login(outcomeFailure)
		s.logger.WarnContext(ctx, "login rejected: account disabled", "user_id", user.ID)
		return nil, internal.ErrAccountDisabled
	}
	if err := VerifyPassword(user.PasswordHash, dto.Password); err != nil {
		s.metrics.login(outcomeFailure)
		return nil, internal.ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, internal.NewInternalError("failed to record login", err)
	}
	user.LastLoginAt = &now

	resp, err := s.issue(ctx, user, dto.RememberMe)
	if err != nil {
		return nil, err
	}

	s.metrics.login(outcomeSuccess)
	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID, "remember_me", dto.RememberMe)
	return resp, nil
}

// Refresh rotates a refresh token: the presented jti is revoked and a new pair
// of the same lifetime class is issued. Tokens minted before the last password
// change carry a stale version and are rejected. When the same token is
// presented concurrently only the caller whose revocation lands first gets a
// new pair.
func (s *Service) Refresh(ctx context.Context, dto RefreshTokenDTO) (*LoginResponse, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	claims, err := s.tokens.ParseRefreshToken(dto.RefreshToken)
	if err != nil {
		return nil, err
	}

	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.checkRevoked(ctx, claims.ID); err != nil {
		return nil, err
	}

	userID, _ := claims.UserID()
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if user == nil {
		return nil, internal.ErrInvalidToken
	}
	if !user.IsActive {
		return nil, internal.ErrAccountDisabled
	}
	if claims.Version != user.TokenVersion {
		s.logger.WarnContext(ctx, "refresh rejected: token version is stale",
			"user_id", user.ID, "token_version", claims.Version, "current_version", user.TokenVersion)
		return nil, internal.ErrTokenRevoked
	}

	won, err := s.revocations.Consume(ctx, revocation.Entry{
		JTI:       claims.ID,
		UserID:    user.ID,
		Reason:    revocation.ReasonRotated,
		ExpiresAt: claims.ExpiresAt.Time,
	})
	if err != nil {
		return nil, internal.NewInternalError("failed to revoke token", err)
	}
	if !won {
		s.logger.WarnContext(ctx, "refresh rejected: token already rotated", "user_id", user.ID, "jti", claims.ID)
		return nil, internal.ErrTokenRevoked
	}
	s.metrics.revoked(revocation.ReasonRotated)

	return s.issue(ctx, user, claims.Remember)
}

// VerifyAccessToken checks signature, then expiry, then the denylist.
// An expired token that was also revoked reports Expired.
func (s *Service) VerifyAccessToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := s.tokens.ParseAccessToken(tokenString)
	if err != nil {
		s.metrics.verification(resultCode(err))
		return nil, err
	}

	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.checkRevoked(ctx, claims.ID); err != nil {
		s.metrics.verification(resultCode(err))
		return nil, err
	}

	s.metrics.verification(outcomeSuccess)
	return claims, nil
}

// Logout revokes the presented access token and, when supplied, the refresh
// token issued with it. A refresh token that is invalid, expired or owned by
// someone else is ignored.
func (s *Service) Logout(ctx context.Context, claims *Claims, dto LogoutDTO) error {
	userID, err := claims.UserID()
	if err != nil {
		return internal.ErrTokenMalformed
	}

	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.revoke(ctx, revocation.Entry{
		JTI:       claims.ID,
		UserID:    userID,
		Reason:    revocation.ReasonLogout,
		ExpiresAt: claims.ExpiresAt.Time,
	}); err != nil {
		return err
	}

	if dto.RefreshToken == "" {
		return nil
	}
	refresh, err := s.tokens.ParseRefreshToken(dto.RefreshToken)
	if err != nil || refresh.Subject != claims.Subject {
		s.logger.DebugContext(ctx, "logout: refresh token not revoked", "user_id", userID, "error", err)
		return nil
	}
	return s.revoke(ctx, revocation.Entry{
		JTI:       refresh.ID,
		UserID:    userID,
		Reason:    revocation.ReasonLogout,
		ExpiresAt: refresh.ExpiresAt.Time,
	})
}

func (s *Service) RevokeToken(ctx context.Context, dto RevokeTokenDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}

	reason := dto.Reason
	if reason == "" {
		reason = revocation.ReasonAdmin
	}
	entry := revocation.Entry{JTI: dto.JTI, UserID: dto.UserID, Reason: reason}
	if dto.ExpiresAt != nil {
		entry.ExpiresAt = *dto.ExpiresAt
	}

	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.revoke(ctx, entry)
}

// ChangePassword sets a new password for the caller, invalidates every refresh
// token issued before it and revokes the access token used for the request.
func (s *Service) ChangePassword(ctx context.Context, claims *Claims, dto ChangePasswordDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}
	userID, err := claims.UserID()
	if err != nil {
		return internal.ErrTokenMalformed
	}

	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return internal.NewInternalError("failed to load user", err)
	}
	if user == nil {
		return internal.ErrUserNotFound
	}
	if err := VerifyPassword(user.PasswordHash, dto.OldPassword); err != nil {
		return internal.NewValidationFieldError("old_password", "current password is incorrect", internal.ErrCodeInvalidCredentials)
	}

	if err := s.setPassword(ctx, user.ID, dto.NewPassword); err != nil {
		return err
	}

	return s.revoke(ctx, revocation.Entry{
		JTI:       claims.ID,
		UserID:    user.ID,
		Reason:    revocation.ReasonPasswordChange,
		ExpiresAt: claims.ExpiresAt.Time,
	})
}

func (s *Service) CurrentUser(ctx context.Context, userID int64) (*UserSnapshot, error) {
	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if user == nil {
		return nil, internal.ErrUserNotFound
	}

	role, perms, err := s.roleAndPermissions(ctx, user)
	if err != nil {
		return nil, err
	}
	snap := snapshot(user, role, perms)
	return &snap, nil
}

func (s *Service) HashPassword(password string) (string, error) {
	return HashPassword(password, s.bcryptCost)
}

// issue resolves the user's permissions fresh and mints a token pair.
func (s *Service) issue(ctx context.Context, user *directory.User, remember bool) (*LoginResponse, error) {
	role, perms, err := s.roleAndPermissions(ctx, user)
	if err != nil {
		return nil, err
	}

	access, accessClaims, err := s.tokens.GenerateAccessToken(Claims{
		Username:         user.Username,
		Email:            user.Email,
		Role:             role,
		Permissions:      perms,
		IsSuperuser:      user.IsSuperuser,
		IsActive:         user.IsActive,
		Version:          user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{Subject: strconv.FormatInt(user.ID, 10)},
	}, remember)
	if err != nil {
		return nil, internal.NewInternalError("failed to sign access token", err)
	}

	refresh, refreshClaims, err := s.tokens.GenerateRefreshToken(user.ID, user.TokenVersion, remember)
	if err != nil {
		return nil, internal.NewInternalError("failed to sign refresh token", err)
	}

	return &LoginResponse{
		AuthTokens: AuthTokens{
			AccessToken:      access,
			RefreshToken:     refresh,
			TokenType:        "Bearer",
			AccessExpiresAt:  accessClaims.ExpiresAt.Time,
			RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
		},
		User: snapshot(user, role, perms),
	}, nil
}

func (s *Service) roleAndPermissions(ctx context.Context, user *directory.User) (*RoleClaim, []string, error) {
	if user.RoleID == nil {
		return nil, []string{}, nil
	}

	role, err := s.users.GetRole(ctx, *user.RoleID)
	if err != nil {
		return nil, nil, internal.NewInternalError("failed to load role", err)
	}
	if role == nil {
		// role was removed after the user row was read
		return nil, []string{}, nil
	}

	perms, err := s.resolver.Resolve(ctx, user)
	if err != nil {
		return nil, nil, internal.NewInternalError("failed to resolve permissions", err)
	}
	return &RoleClaim{ID: role.ID, Code: role.Code, Name: role.DisplayName}, perms, nil
}

func (s *Service) setPassword(ctx context.Context, userID int64, password string) error {
	hash, err := s.HashPassword(password)
	if err != nil {
		return internal.NewInternalError("failed to hash password", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, internal.ErrUserNotFound) {
			return internal.ErrUserNotFound
		}
		return internal.NewInternalError("failed to update password", err)
	}
	s.logger.InfoContext(ctx, "password updated", "user_id", userID)
	return nil
}

func (s *Service) checkRevoked(ctx context.Context, jti string) error {
	revoked, err := s.revocations.IsRevoked(ctx, jti)
	if err != nil {
		return internal.NewInternalError("failed to check token revocation", err)
	}
	if revoked {
		return internal.ErrTokenRevoked
	}
	return nil
}

func (s *Service) revoke(ctx context.Context, e revocation.Entry) error {
	if err := s.revocations.Revoke(ctx, e); err != nil {
		return internal.NewInternalError("failed to revoke token", err)
	}
	s.metrics.revoked(e.Reason)
	return nil
}

func snapshot(user *directory.User, role *RoleClaim, perms []string) UserSnapshot {
	return UserSnapshot{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Phone:       user.Phone,
		PhotoURL:    user.PhotoURL,
		Role:        role,
		ServiceID:   user.ServiceID,
		Permissions: perms,
		IsActive:    user.IsActive,
		IsStaff:     user.IsStaff,
		IsSuperuser: user.IsSuperuser,
		LastLoginAt: user.LastLoginAt,
	}
}

func resultCode(err error) string {
	if appErr, ok := internal.IsAppError(err); ok {
		return string(appErr.Code)
	}
	return outcomeFailure
}
