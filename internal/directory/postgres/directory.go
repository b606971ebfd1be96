package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/frahmantamala/project-access/internal"
	directory "github.com/frahmantamala/project-access/internal/core/datamodel/directory"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateRole(ctx context.Context, role *directory.Role) error {
	return translate(r.db.WithContext(ctx).Create(role).Error, internal.ErrDuplicateValue)
}

func (r *Repository) GetRole(ctx context.Context, id int64) (*directory.Role, error) {
	var role directory.Role
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

func (r *Repository) ListRoles(ctx context.Context) ([]*directory.Role, error) {
	var roles []*directory.Role
	err := r.db.WithContext(ctx).Order("code").Find(&roles).Error
	return roles, err
}

// DeleteRole detaches members and bindings explicitly so the outcome does not
// depend on foreign key actions.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&directory.User{}).Where("role_id = ?", id).
			Updates(map[string]interface{}{"role_id": nil, "updated_at": time.Now().UTC()}).Error; err != nil {
			return err
		}
		if err := tx.Where("role_id = ?", id).Delete(&directory.RolePermission{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&directory.Role{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return internal.ErrRoleNotFound
		}
		return nil
	})
}

func (r *Repository) CreatePermission(ctx context.Context, perm *directory.Permission) error {
	return translate(r.db.WithContext(ctx).Create(perm).Error, internal.ErrDuplicateValue)
}

func (r *Repository) GetPermission(ctx context.Context, id int64) (*directory.Permission, error) {
	var perm directory.Permission
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&perm).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &perm, nil
}

func (r *Repository) ListPermissions(ctx context.Context) ([]*directory.Permission, error) {
	var perms []*directory.Permission
	err := r.db.WithContext(ctx).Order("code").Find(&perms).Error
	return perms, err
}

func (r *Repository) DeletePermission(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("permission_id = ?", id).Delete(&directory.RolePermission{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&directory.Permission{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return internal.ErrPermissionNotFound
		}
		return nil
	})
}

func (r *Repository) CreateBinding(ctx context.Context, roleID, permissionID int64) error {
	binding := &directory.RolePermission{RoleID: roleID, PermissionID: permissionID}
	return translate(r.db.WithContext(ctx).Create(binding).Error, internal.ErrDuplicateBinding)
}

func (r *Repository) DeleteBinding(ctx context.Context, roleID, permissionID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("role_id = ? AND permission_id = ?", roleID, permissionID).
		Delete(&directory.RolePermission{})
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) ListRolePermissions(ctx context.Context, roleID int64) ([]*directory.Permission, error) {
	var perms []*directory.Permission
	err := r.db.WithContext(ctx).
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Where("role_permissions.role_id = ?", roleID).
		Order("permissions.code").
		Find(&perms).Error
	return perms, err
}

func (r *Repository) CreateService(ctx context.Context, svc *directory.Service) error {
	return translate(r.db.WithContext(ctx).Create(svc).Error, internal.ErrDuplicateValue)
}

func (r *Repository) GetService(ctx context.Context, id int64) (*directory.Service, error) {
	var svc directory.Service
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&svc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &svc, nil
}

func (r *Repository) ListServices(ctx context.Context) ([]*directory.Service, error) {
	var services []*directory.Service
	err := r.db.WithContext(ctx).Order("code").Find(&services).Error
	return services, err
}

func (r *Repository) DeleteService(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&directory.User{}).Where("service_id = ?", id).
			Updates(map[string]interface{}{"service_id": nil, "updated_at": time.Now().UTC()}).Error; err != nil {
			return err
		}
		res := tx.Delete(&directory.Service{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return internal.ErrServiceNotFound
		}
		return nil
	})
}

func (r *Repository) CreateUser(ctx context.Context, user *directory.User) error {
	return translate(r.db.WithContext(ctx).Create(user).Error, internal.ErrDuplicateValue)
}

func (r *Repository) GetUser(ctx context.Context, id int64) (*directory.User, error) {
	var user directory.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// UpdateUserColumns writes only the given columns of one user. Credential
// columns (password_hash, token_version, last_login_at) belong to the auth
// repository and are rejected here.
func (r *Repository) UpdateUserColumns(ctx context.Context, id int64, columns map[string]interface{}) error {
	for name := range columns {
		if _, ok := credentialColumns[name]; ok {
			return fmt.Errorf("directory: column %q is not writable here", name)
		}
	}
	if _, ok := columns["updated_at"]; !ok {
		columns["updated_at"] = time.Now().UTC()
	}

	res := r.db.WithContext(ctx).Model(&directory.User{}).Where("id = ?", id).Updates(columns)
	if res.Error != nil {
		return translate(res.Error, internal.ErrDuplicateValue)
	}
	if res.RowsAffected == 0 {
		return internal.ErrUserNotFound
	}
	return nil
}

var credentialColumns = map[string]struct{}{
	"password_hash": {},
	"token_version": {},
	"last_login_at": {},
}

func (r *Repository) EmailTaken(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&directory.User{}).
		Where("LOWER(email) = LOWER(?)", email).
		Count(&count).Error
	return count > 0, err
}

func (r *Repository) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&directory.User{}).
		Where("username = ?", username).
		Count(&count).Error
	return count > 0, err
}

// translate maps a unique violation to dup. Drivers without an error
// translator are matched on their message.
func translate(err error, dup *internal.AppError) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return dup.WithCause(err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key") {
		return dup.WithCause(err)
	}
	return err
}
