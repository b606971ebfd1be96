package directory

import "time"

type Role struct {
	ID          int64     `gorm:"primaryKey"`
	Code        string    `gorm:"column:code;uniqueIndex;size:64;not null"`
	DisplayName string    `gorm:"column:display_name;size:128;not null"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (Role) TableName() string { return "roles" }

type Permission struct {
	ID          int64     `gorm:"primaryKey"`
	Code        string    `gorm:"column:code;uniqueIndex;size:128;not null"`
	Description string    `gorm:"column:description"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (Permission) TableName() string { return "permissions" }

// RolePermission binds a permission to a role. The pair is unique.
type RolePermission struct {
	ID           int64     `gorm:"primaryKey"`
	RoleID       int64     `gorm:"column:role_id;not null;uniqueIndex:idx_role_permission"`
	PermissionID int64     `gorm:"column:permission_id;not null;uniqueIndex:idx_role_permission"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (RolePermission) TableName() string { return "role_permissions" }

// Service is a team or department a user may belong to.
type Service struct {
	ID          int64     `gorm:"primaryKey"`
	Code        string    `gorm:"column:code;uniqueIndex;size:64;not null"`
	DisplayName string    `gorm:"column:display_name;size:128;not null"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (Service) TableName() string { return "services" }

type User struct {
	ID           int64      `gorm:"primaryKey"`
	Username     string     `gorm:"column:username;uniqueIndex;size:150;not null"`
	Email        string     `gorm:"column:email;uniqueIndex;size:254;not null"`
	PasswordHash string     `gorm:"column:password_hash;not null"`
	FirstName    string     `gorm:"column:first_name;size:150"`
	LastName     string     `gorm:"column:last_name;size:150"`
	Phone        *string    `gorm:"column:phone;size:32"`
	PhotoURL     *string    `gorm:"column:photo_url"`
	RoleID       *int64     `gorm:"column:role_id;index"`
	ServiceID    *int64     `gorm:"column:service_id;index"`
	IsActive     bool       `gorm:"column:is_active;not null"`
	IsStaff      bool       `gorm:"column:is_staff;not null"`
	IsSuperuser  bool       `gorm:"column:is_superuser;not null"`
	TokenVersion int        `gorm:"column:token_version;not null"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at"`
}

func (User) TableName() string { return "users" }

// RevokedToken is a denylist entry keyed by the token's jti. Rows are only inserted and queried.
type RevokedToken struct {
	ID        int64      `gorm:"primaryKey"`
	UserID    int64      `gorm:"column:user_id;not null;index"`
	JTI       string     `gorm:"column:jti;uniqueIndex;size:64;not null"`
	RevokedAt time.Time  `gorm:"column:revoked_at;not null"`
	Reason    *string    `gorm:"column:reason"`
	ExpiresAt *time.Time `gorm:"column:expires_at;index"`
}

func (RevokedToken) TableName() string { return "revoked_tokens" }

// Models lists every table owned by the directory, in dependency order.
func Models() []interface{} {
	return []interface{}{&Role{}, &Permission{}, &RolePermission{}, &Service{}, &User{}, &RevokedToken{}}
}
