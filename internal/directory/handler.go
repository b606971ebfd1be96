package directory

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/project-access/internal"
	"github.com/frahmantamala/project-access/internal/transport"
)

type ServiceAPI interface {
	CreateRole(ctx context.Context, dto CreateRoleDTO) (*Role, error)
	ListRoles(ctx context.Context) ([]*Role, error)
	DeleteRole(ctx context.Context, id int64) error
	CreatePermission(ctx context.Context, dto CreatePermissionDTO) (*Permission, error)
	ListPermissions(ctx context.Context) ([]*Permission, error)
	DeletePermission(ctx context.Context, id int64) error
	GrantPermission(ctx context.Context, roleID, permissionID int64) error
	RevokePermission(ctx context.Context, roleID, permissionID int64) error
	ListRolePermissions(ctx context.Context, roleID int64) ([]*Permission, error)
	CreateService(ctx context.Context, dto CreateServiceDTO) (*Team, error)
	ListServices(ctx context.Context) ([]*Team, error)
	DeleteService(ctx context.Context, id int64) error
	Signup(ctx context.Context, dto SignupDTO) (*User, error)
	CreateUser(ctx context.Context, dto CreateUserDTO) (*User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	UpdateUser(ctx context.Context, id int64, dto UpdateUserDTO) (*User, error)
	AssignService(ctx context.Context, userID int64, dto AssignServiceDTO) (*User, error)
	RemoveFromService(ctx context.Context, userID int64, dto RemoveServiceDTO) (*User, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI, lg *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var dto SignupDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	user, err := h.Service.Signup(r.Context(), dto)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, user)
}

func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var dto CreateRoleDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	role, err := h.Service.CreateRole(r.Context(), dto)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, role)
}

func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.Service.ListRoles(r.Context())
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, roles)
}

func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.PathID(r, "roleID")
	if appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}
	if err := h.Service.DeleteRole(r.Context(), id); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.PathID(r, "roleID")
	if appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}
	perms, err := h.Service.ListRolePermissions(r.Context(), id)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, perms)
}

func (h *Handler) GrantPermission(w http.ResponseWriter, r *http.Request) {
	roleID, permissionID, ok := h.bindingIDs(w, r)
	if !ok {
		return
	}
	if err := h.Service.GrantPermission(r.Context(), roleID, permissionID); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RevokePermission(w http.ResponseWriter, r *http.Request) {
	roleID, permissionID, ok := h.bindingIDs(w, r)
	if !ok {
		return
	}
	if err := h.Service.RevokePermission(r.Context(), roleID, permissionID); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) bindingIDs(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	roleID, appErr := h.PathID(r, "roleID")
	if appErr != nil {
		h.WriteAppError(w, r, appErr)
		return 0, 0, false
	}
	permissionID, appErr := h.PathID(r, "permissionID")
	if appErr != nil {
		h.WriteAppError(w, r, appErr)
		return 0, 0, false
	}
	return roleID, permissionID, true
}

func (h *Handler) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var dto CreatePermissionDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	perm, err := h.Service.CreatePermission(r.Context(), dto)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, perm)
}

func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.Service.ListPermissions(r.Context())
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, perms)
}

func (h *Handler) DeletePermission(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.PathID(r, "permissionID")
	if appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}
	if err := h.Service.DeletePermission(r.Context(), id); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var dto CreateServiceDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	svc, err := h.Service.CreateService(r.Context(), dto)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, svc)
}

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.Service.ListServices(r.Context())
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, services)
}

func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.PathID(r, "serviceID")
	if appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}
	if err := h.Service.DeleteService(r.Context(), id); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var dto CreateUserDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	user, err := h.Service.CreateUser(r.Context(), dto)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, user)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.PathID(r, "userID")
	if appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}
	user, err := h.Service.GetUser(r.Context(), id)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.PathID(r, "userID")
	if appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}
	var dto UpdateUserDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	user, err := h.Service.UpdateUser(r.Context(), id, dto)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) AssignService(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.PathID(r, "userID")
	if appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}
	var dto AssignServiceDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	user, err := h.Service.AssignService(r.Context(), id, dto)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, user)
}

// RemoveFromService accepts an optional body carrying project context.
func (h *Handler) RemoveFromService(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.PathID(r, "userID")
	if appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}
	var dto RemoveServiceDTO
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&dto); err != nil && !errors.Is(err, io.EOF) {
			h.WriteAppError(w, r, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
			return
		}
	}

	user, err := h.Service.RemoveFromService(r.Context(), id, dto)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, user)
}
