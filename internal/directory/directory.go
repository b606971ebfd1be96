package directory

import (
	"time"

	directoryDatamodel "github.com/frahmantamala/project-access/internal/core/datamodel/directory"
)

type Role struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type Permission struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Team is the public view of a service row: a team or department. Users belong to at most one.
type Team struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// User is the public view of a directory user; the password hash never leaves the store layer.
type User struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Phone       *string    `json:"phone,omitempty"`
	PhotoURL    *string    `json:"photo_url,omitempty"`
	RoleID      *int64     `json:"role_id"`
	ServiceID   *int64     `json:"service_id"`
	IsActive    bool       `json:"is_active"`
	IsStaff     bool       `json:"is_staff"`
	IsSuperuser bool       `json:"is_superuser"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// FullName falls back to the username when no name is set.
func (u *User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	default:
		return u.Username
	}
}

// normalizeFlags enforces is_superuser => is_staff.
func normalizeFlags(u *directoryDatamodel.User) {
	if u.IsSuperuser {
		u.IsStaff = true
	}
}

func RoleFromDataModel(r *directoryDatamodel.Role) *Role {
	return &Role{ID: r.ID, Code: r.Code, DisplayName: r.DisplayName, CreatedAt: r.CreatedAt}
}

func PermissionFromDataModel(p *directoryDatamodel.Permission) *Permission {
	return &Permission{ID: p.ID, Code: p.Code, Description: p.Description, CreatedAt: p.CreatedAt}
}

func TeamFromDataModel(s *directoryDatamodel.Service) *Team {
	return &Team{ID: s.ID, Code: s.Code, DisplayName: s.DisplayName, CreatedAt: s.CreatedAt}
}

func UserFromDataModel(u *directoryDatamodel.User) *User {
	return &User{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Phone:       u.Phone,
		PhotoURL:    u.PhotoURL,
		RoleID:      u.RoleID,
		ServiceID:   u.ServiceID,
		IsActive:    u.IsActive,
		IsStaff:     u.IsStaff,
		IsSuperuser: u.IsSuperuser,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}
