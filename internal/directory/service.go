package directory

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/frahmantamala/project-access/internal"
	"github.com/frahmantamala/project-access/internal/auth"
	"github.com/frahmantamala/project-access/internal/core/common/validation"
	directoryDatamodel "github.com/frahmantamala/project-access/internal/core/datamodel/directory"
	"github.com/frahmantamala/project-access/internal/notification"
)

// RepositoryAPI persists directory entities. Getters return (nil, nil) when
// the row does not exist. Creates return internal.ErrDuplicateValue on a
// unique violation and CreateBinding returns internal.ErrDuplicateBinding.
type RepositoryAPI interface {
	CreateRole(ctx context.Context, role *directoryDatamodel.Role) error
	GetRole(ctx context.Context, id int64) (*directoryDatamodel.Role, error)
	ListRoles(ctx context.Context) ([]*directoryDatamodel.Role, error)
	// DeleteRole detaches users and bindings from the role, then deletes it.
	DeleteRole(ctx context.Context, id int64) error

	CreatePermission(ctx context.Context, perm *directoryDatamodel.Permission) error
	GetPermission(ctx context.Context, id int64) (*directoryDatamodel.Permission, error)
	ListPermissions(ctx context.Context) ([]*directoryDatamodel.Permission, error)
	DeletePermission(ctx context.Context, id int64) error

	CreateBinding(ctx context.Context, roleID, permissionID int64) error
	DeleteBinding(ctx context.Context, roleID, permissionID int64) (bool, error)
	ListRolePermissions(ctx context.Context, roleID int64) ([]*directoryDatamodel.Permission, error)

	CreateService(ctx context.Context, svc *directoryDatamodel.Service) error
	GetService(ctx context.Context, id int64) (*directoryDatamodel.Service, error)
	ListServices(ctx context.Context) ([]*directoryDatamodel.Service, error)
	// DeleteService detaches users from the service, then deletes it.
	DeleteService(ctx context.Context, id int64) error

	CreateUser(ctx context.Context, user *directoryDatamodel.User) error
	GetUser(ctx context.Context, id int64) (*directoryDatamodel.User, error)
	// UpdateUserColumns writes only the named columns and returns
	// internal.ErrUserNotFound when no row matched.
	UpdateUserColumns(ctx context.Context, id int64, columns map[string]interface{}) error
	EmailTaken(ctx context.Context, email string) (bool, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
}

// Service implements the directory operations on top of a RepositoryAPI.
type Service struct {
	repo         RepositoryAPI
	notifier     notification.Notifier
	logger       *slog.Logger
	bcryptCost   int
	storeTimeout time.Duration
}

func NewService(repo RepositoryAPI, notifier notification.Notifier, logger *slog.Logger, bcryptCost int, storeTimeout time.Duration) *Service {
	return &Service{
		repo:         repo,
		notifier:     notifier,
		logger:       logger,
		bcryptCost:   bcryptCost,
		storeTimeout: storeTimeout,
	}
}

func (s *Service) CreateRole(ctx context.Context, dto CreateRoleDTO) (*Role, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	role := &directoryDatamodel.Role{Code: strings.TrimSpace(dto.Code), DisplayName: strings.TrimSpace(dto.DisplayName)}
	if err := s.repo.CreateRole(ctx, role); err != nil {
		return nil, storeError(err, "code", "a role with this code already exists")
	}
	s.logger.InfoContext(ctx, "role created", "role_id", role.ID, "code", role.Code)
	return RoleFromDataModel(role), nil
}

func (s *Service) ListRoles(ctx context.Context) ([]*Role, error) {
	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	rows, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, internal.NewInternalError("failed to list roles", err)
	}
	out := make([]*Role, 0, len(rows))
	for _, r := range rows {
		out = append(out, RoleFromDataModel(r))
	}
	return out, nil
}

// DeleteRole leaves former members without a role rather than deleting them.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return storeError(err, "", "")
	}
	s.logger.InfoContext(ctx, "role deleted", "role_id", id)
	return nil
}

func (s *Service) CreatePermission(ctx context.Context, dto CreatePermissionDTO) (*Permission, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	perm := &directoryDatamodel.Permission{Code: strings.TrimSpace(dto.Code), Description: dto.Description}
	if err := s.repo.CreatePermission(ctx, perm); err != nil {
		return nil, storeError(err, "code", "a permission with this code already exists")
	}
	return PermissionFromDataModel(perm), nil
}

func (s *Service) ListPermissions(ctx context.Context) ([]*Permission, error) {
	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	rows, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, internal.NewInternalError("failed to list permissions", err)
	}
	return permissionsFromDataModel(rows), nil
}

func (s *Service) DeletePermission(ctx context.Context, id int64) error {
	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.repo.DeletePermission(ctx, id); err != nil {
		return storeError(err, "", "")
	}
	return nil
}

// GrantPermission binds a permission to a role. Binding the same pair twice is a conflict.
func (s *Service) GrantPermission(ctx context.Context, roleID, permissionID int64) error {
	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.requireRole(ctx, roleID); err != nil {
		return err
	}
	perm, err := s.repo.GetPermission(ctx, permissionID)
	if err != nil {
		return internal.NewInternalError("failed to load permission", err)
	}
	if perm == nil {
		return internal.ErrPermissionNotFound
	}

	if err := s.repo.CreateBinding(ctx, roleID, permissionID); err != nil {
		return storeError(err, "", "")
	}
	s.logger.InfoContext(ctx, "permission granted", "role_id", roleID, "permission", perm.Code)
	return nil
}

func (s *Service) RevokePermission(ctx context.Context, roleID, permissionID int64) error {
	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	deleted, err := s.repo.DeleteBinding(ctx, roleID, permissionID)
	if err != nil {
		return internal.NewInternalError("failed to revoke permission", err)
	}
	if !deleted {
		return internal.NewNotFoundError("Role does not grant this permission", internal.ErrCodePermissionNotFound)
	}
	s.logger.InfoContext(ctx, "permission revoked", "role_id", roleID, "permission_id", permissionID)
	return nil
}

func (s *Service) ListRolePermissions(ctx context.Context, roleID int64) ([]*Permission, error) {
	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.requireRole(ctx, roleID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListRolePermissions(ctx, roleID)
	if err != nil {
		return nil, internal.NewInternalError("failed to list role permissions", err)
	}
	return permissionsFromDataModel(rows), nil
}

func (s *Service) CreateService(ctx context.Context, dto CreateServiceDTO) (*Team, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	svc := &directoryDatamodel.Service{Code: strings.TrimSpace(dto.Code), DisplayName: strings.TrimSpace(dto.DisplayName)}
	if err := s.repo.CreateService(ctx, svc); err != nil {
		return nil, storeError(err, "code", "a service with this code already exists")
	}
	s.logger.InfoContext(ctx, "service created", "service_id", svc.ID, "code", svc.Code)
	return TeamFromDataModel(svc), nil
}

func (s *Service) ListServices(ctx context.Context) ([]*Team, error) {
	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	rows, err := s.repo.ListServices(ctx)
	if err != nil {
		return nil, internal.NewInternalError("failed to list services", err)
	}
	out := make([]*Team, 0, len(rows))
	for _, r := range rows {
		out = append(out, TeamFromDataModel(r))
	}
	return out, nil
}

// DeleteService leaves former members without a service.
func (s *Service) DeleteService(ctx context.Context, id int64) error {
	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.repo.DeleteService(ctx, id); err != nil {
		return storeError(err, "", "")
	}
	s.logger.InfoContext(ctx, "service deleted", "service_id", id)
	return nil
}

// Signup registers a regular user. Role and staff flags are never taken from the caller.
func (s *Service) Signup(ctx context.Context, dto SignupDTO) (*User, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	return s.createUser(ctx, dto, nil, nil, true, false, false)
}

func (s *Service) CreateUser(ctx context.Context, dto CreateUserDTO) (*User, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if dto.IsStaff || dto.IsSuperuser {
		if err := s.requireSuperuserActor(ctx); err != nil {
			return nil, err
		}
	}
	active := true
	if dto.IsActive != nil {
		active = *dto.IsActive
	}
	return s.createUser(ctx, dto.SignupDTO, dto.RoleID, dto.ServiceID, active, dto.IsStaff, dto.IsSuperuser)
}

func (s *Service) createUser(ctx context.Context, dto SignupDTO, roleID, serviceID *int64, active, staff, superuser bool) (*User, error) {
	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	email := validation.NormalizeEmail(dto.Email)
	username := strings.TrimSpace(dto.Username)
	if err := s.checkUnique(ctx, email, username); err != nil {
		return nil, err
	}
	if roleID != nil {
		if err := s.requireRole(ctx, *roleID); err != nil {
			return nil, err
		}
	}
	if serviceID != nil {
		if _, err := s.loadService(ctx, *serviceID); err != nil {
			return nil, err
		}
	}

	hash, err := auth.HashPassword(dto.Password, s.bcryptCost)
	if err != nil {
		return nil, internal.NewInternalError("failed to hash password", err)
	}

	user := &directoryDatamodel.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(dto.FirstName),
		LastName:     strings.TrimSpace(dto.LastName),
		Phone:        dto.Phone,
		RoleID:       roleID,
		ServiceID:    serviceID,
		IsActive:     active,
		IsStaff:      staff,
		IsSuperuser:  superuser,
	}
	normalizeFlags(user)

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, storeError(err, "", "")
	}
	s.logger.InfoContext(ctx, "user created", "user_id", user.ID, "username", user.Username)
	return UserFromDataModel(user), nil
}

func (s *Service) checkUnique(ctx context.Context, email, username string) error {
	taken, err := s.repo.EmailTaken(ctx, email)
	if err != nil {
		return internal.NewInternalError("failed to check email", err)
	}
	if taken {
		return internal.NewConflictFieldError("email", "a user with this email already exists")
	}
	taken, err = s.repo.UsernameTaken(ctx, username)
	if err != nil {
		return internal.NewInternalError("failed to check username", err)
	}
	if taken {
		return internal.NewConflictFieldError("username", "a user with this username already exists")
	}
	return nil
}

func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.loadUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return UserFromDataModel(user), nil
}

// UpdateUser applies a partial patch. Only the patched columns are written, so
// a concurrent password change is never overwritten.
func (s *Service) UpdateUser(ctx context.Context, id int64, dto UpdateUserDTO) (*User, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.loadUser(ctx, id)
	if err != nil {
		return nil, err
	}

	columns := map[string]interface{}{}
	if dto.FirstName != nil {
		columns["first_name"] = strings.TrimSpace(*dto.FirstName)
	}
	if dto.LastName != nil {
		columns["last_name"] = strings.TrimSpace(*dto.LastName)
	}
	if dto.Phone != nil {
		columns["phone"] = *dto.Phone
	}
	if dto.PhotoURL != nil {
		columns["photo_url"] = *dto.PhotoURL
	}
	if dto.RoleID != nil {
		if *dto.RoleID == 0 {
			columns["role_id"] = nil
		} else {
			if err := s.requireRole(ctx, *dto.RoleID); err != nil {
				return nil, err
			}
			columns["role_id"] = *dto.RoleID
		}
	}
	if dto.IsActive != nil {
		columns["is_active"] = *dto.IsActive
	}
	if dto.IsStaff != nil || dto.IsSuperuser != nil {
		if err := s.requireSuperuserActor(ctx); err != nil {
			return nil, err
		}
		if dto.IsStaff != nil {
			user.IsStaff = *dto.IsStaff
		}
		if dto.IsSuperuser != nil {
			user.IsSuperuser = *dto.IsSuperuser
		}
		normalizeFlags(user)
		columns["is_staff"] = user.IsStaff
		columns["is_superuser"] = user.IsSuperuser
	}
	if len(columns) == 0 {
		return UserFromDataModel(user), nil
	}

	if err := s.repo.UpdateUserColumns(ctx, id, columns); err != nil {
		return nil, storeError(err, "", "")
	}
	s.logger.InfoContext(ctx, "user updated", "user_id", id, "columns", len(columns))
	return s.reloadUser(ctx, id)
}

// AssignService moves the user into a service and notifies them. A failed
// notification never fails the assignment.
func (s *Service) AssignService(ctx context.Context, userID int64, dto AssignServiceDTO) (*User, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	svc, err := s.loadService(ctx, dto.ServiceID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateUserColumns(ctx, userID, map[string]interface{}{"service_id": svc.ID}); err != nil {
		return nil, storeError(err, "", "")
	}
	serviceID := svc.ID
	user.ServiceID = &serviceID
	s.logger.InfoContext(ctx, "user assigned to service", "user_id", user.ID, "service_id", svc.ID)

	change := s.teamChange(ctx, user, svc, dto.Project)
	if err := s.notifier.NotifyTeamAssignment(ctx, change); err != nil {
		s.logger.WarnContext(ctx, "team assignment notification failed", "user_id", user.ID, "error", err)
	}
	return UserFromDataModel(user), nil
}

func (s *Service) RemoveFromService(ctx context.Context, userID int64, dto RemoveServiceDTO) (*User, error) {
	ctx, cancel := internal.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.ServiceID == nil {
		return nil, internal.NewNotFoundError("User is not a member of any service", internal.ErrCodeServiceNotFound)
	}
	svc, err := s.loadService(ctx, *user.ServiceID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateUserColumns(ctx, userID, map[string]interface{}{"service_id": nil}); err != nil {
		return nil, storeError(err, "", "")
	}
	user.ServiceID = nil
	s.logger.InfoContext(ctx, "user removed from service", "user_id", user.ID, "service_id", svc.ID)

	change := s.teamChange(ctx, user, svc, dto.Project)
	if err := s.notifier.NotifyTeamRemoval(ctx, change); err != nil {
		s.logger.WarnContext(ctx, "team removal notification failed", "user_id", user.ID, "error", err)
	}
	return UserFromDataModel(user), nil
}

// teamChange builds the notification payload. The actor is the authenticated
// caller, if any.
func (s *Service) teamChange(ctx context.Context, user *directoryDatamodel.User, svc *directoryDatamodel.Service, project *notification.Project) notification.TeamChange {
	change := notification.TeamChange{
		User: notification.Recipient{
			UserID:    user.ID,
			Email:     user.Email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
		},
		ServiceID:   svc.ID,
		ServiceCode: svc.Code,
		ServiceName: svc.DisplayName,
		Project:     project,
	}

	actorID := internal.UserIDFromContext(ctx)
	if actorID == 0 {
		return change
	}
	change.Actor = &notification.Actor{UserID: actorID}
	actor, err := s.repo.GetUser(ctx, actorID)
	if err != nil || actor == nil {
		return change
	}
	change.Actor.Name = UserFromDataModel(actor).FullName()
	return change
}

func (s *Service) loadUser(ctx context.Context, id int64) (*directoryDatamodel.User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if user == nil {
		return nil, internal.ErrUserNotFound
	}
	return user, nil
}

func (s *Service) reloadUser(ctx context.Context, id int64) (*User, error) {
	user, err := s.loadUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return UserFromDataModel(user), nil
}

// requireSuperuserActor admits only an active superuser caller.
func (s *Service) requireSuperuserActor(ctx context.Context) error {
	actorID := internal.UserIDFromContext(ctx)
	if actorID == 0 {
		return internal.ErrPrivilegedFlags
	}
	actor, err := s.repo.GetUser(ctx, actorID)
	if err != nil {
		return internal.NewInternalError("failed to load acting user", err)
	}
	if actor == nil || !actor.IsActive || !actor.IsSuperuser {
		s.logger.WarnContext(ctx, "privileged flag change refused", "actor_id", actorID)
		return internal.ErrPrivilegedFlags
	}
	return nil
}

func (s *Service) loadService(ctx context.Context, id int64) (*directoryDatamodel.Service, error) {
	svc, err := s.repo.GetService(ctx, id)
	if err != nil {
		return nil, internal.NewInternalError("failed to load service", err)
	}
	if svc == nil {
		return nil, internal.ErrServiceNotFound
	}
	return svc, nil
}

func (s *Service) requireRole(ctx context.Context, id int64) error {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return internal.NewInternalError("failed to load role", err)
	}
	if role == nil {
		return internal.ErrRoleNotFound
	}
	return nil
}

func permissionsFromDataModel(rows []*directoryDatamodel.Permission) []*Permission {
	out := make([]*Permission, 0, len(rows))
	for _, p := range rows {
		out = append(out, PermissionFromDataModel(p))
	}
	return out
}

// storeError passes domain errors through. A duplicate is tagged with field when one is given.
func storeError(err error, field, message string) error {
	if field != "" && errors.Is(err, internal.ErrDuplicateValue) {
		return internal.NewConflictFieldError(field, message)
	}
	if appErr, ok := internal.IsAppError(err); ok {
		return appErr
	}
	return internal.NewInternalError("directory store failure", err)
}
