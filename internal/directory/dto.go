package directory

import (
	errors "github.com/frahmantamala/project-access/internal"
	"github.com/frahmantamala/project-access/internal/core/common/validation"
	"github.com/frahmantamala/project-access/internal/notification"
)

type CreateRoleDTO struct {
	Code        string `json:"code"`
	DisplayName string `json:"display_name"`
}

func (d CreateRoleDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("code", d.Code).Required().Code().MaxLength(64)
	v.Field("display_name", d.DisplayName).Required().MaxLength(128)
	return v.Validate()
}

type CreatePermissionDTO struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (d CreatePermissionDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("code", d.Code).Required().Code().MaxLength(128)
	return v.Validate()
}

type CreateServiceDTO struct {
	Code        string `json:"code"`
	DisplayName string `json:"display_name"`
}

func (d CreateServiceDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("code", d.Code).Required().Code().MaxLength(64)
	v.Field("display_name", d.DisplayName).Required().MaxLength(128)
	return v.Validate()
}

// SignupDTO is self-registration. Role and staff flags cannot be chosen here.
type SignupDTO struct {
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Phone     *string `json:"phone"`
}

func (d SignupDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("username", d.Username).Required().MaxLength(150)
	v.Field("email", d.Email).Required().Email().MaxLength(254)
	v.Field("password", d.Password).Password()
	v.Field("first_name", d.FirstName).MaxLength(150)
	v.Field("last_name", d.LastName).MaxLength(150)
	if d.Phone != nil {
		v.Field("phone", *d.Phone).MaxLength(32)
	}
	return v.Validate()
}

// CreateUserDTO is the administrative variant of SignupDTO.
type CreateUserDTO struct {
	SignupDTO
	RoleID      *int64 `json:"role_id"`
	ServiceID   *int64 `json:"service_id"`
	IsActive    *bool  `json:"is_active"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
}

// UpdateUserDTO is a partial update; nil fields are left alone.
// A role_id of 0 detaches the user from their role.
type UpdateUserDTO struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Phone       *string `json:"phone"`
	PhotoURL    *string `json:"photo_url"`
	RoleID      *int64  `json:"role_id"`
	IsActive    *bool   `json:"is_active"`
	IsStaff     *bool   `json:"is_staff"`
	IsSuperuser *bool   `json:"is_superuser"`
}

func (d UpdateUserDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	if d.FirstName != nil {
		v.Field("first_name", *d.FirstName).MaxLength(150)
	}
	if d.LastName != nil {
		v.Field("last_name", *d.LastName).MaxLength(150)
	}
	if d.Phone != nil {
		v.Field("phone", *d.Phone).MaxLength(32)
	}
	return v.Validate()
}

// AssignServiceDTO moves a user into a service. Project is optional context for the notification.
type AssignServiceDTO struct {
	ServiceID int64                 `json:"service_id"`
	Project   *notification.Project `json:"project"`
}

func (d AssignServiceDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("service_id", d.ServiceID).Required()
	return v.Validate()
}

type RemoveServiceDTO struct {
	Project *notification.Project `json:"project"`
}
