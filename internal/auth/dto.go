package auth

import (
	"time"

	errors "github.com/frahmantamala/project-access/internal"
	"github.com/frahmantamala/project-access/internal/core/common/validation"
)

type LoginDTO struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

func (d LoginDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("email", d.Email).Required().Email()
	v.Field("password", d.Password).Required()
	return v.Validate()
}

type RefreshTokenDTO struct {
	RefreshToken string `json:"refresh_token"`
}

func (d RefreshTokenDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("refresh_token", d.RefreshToken).Required()
	return v.Validate()
}

// LogoutDTO optionally names the refresh token issued alongside the presented access token.
type LogoutDTO struct {
	RefreshToken string `json:"refresh_token"`
}

type PasswordResetRequestDTO struct {
	Email string `json:"email"`
}

func (d PasswordResetRequestDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("email", d.Email).Required().Email()
	return v.Validate()
}

type PasswordResetConfirmDTO struct {
	Token       string `json:"reset_token"`
	NewPassword string `json:"new_password"`
}

func (d PasswordResetConfirmDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("reset_token", d.Token).Required()
	v.Field("new_password", d.NewPassword).Password()
	return v.Validate()
}

type ChangePasswordDTO struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (d ChangePasswordDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("old_password", d.OldPassword).Required()
	v.Field("new_password", d.NewPassword).Password()
	return v.Validate()
}

// RevokeTokenDTO is the administrative revocation request.
type RevokeTokenDTO struct {
	JTI       string     `json:"jti"`
	UserID    int64      `json:"user_id"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (d RevokeTokenDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("jti", d.JTI).Required().MaxLength(64)
	v.Field("user_id", d.UserID).Required()
	v.Field("reason", d.Reason).MaxLength(255)
	return v.Validate()
}
