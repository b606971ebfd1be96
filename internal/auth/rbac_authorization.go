package auth

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/project-access/internal"
	"github.com/frahmantamala/project-access/internal/transport"
)

// Permission codes guarding the administrative surface.
const (
	PermRolesManage       = "roles:manage"
	PermPermissionsManage = "permissions:manage"
	PermServicesManage    = "services:manage"
	PermUsersManage       = "users:manage"
	PermTokensRevoke      = "tokens:revoke"
)

// AdminPermissions lists every code the seeder binds to the admin role.
var AdminPermissions = []string{
	PermPermissionsManage,
	PermRolesManage,
	PermServicesManage,
	PermTokensRevoke,
	PermUsersManage,
}

type RBACAuthorization struct {
	*transport.BaseHandler
	checker PermissionChecker
	logger  *slog.Logger
}

func NewRBACAuthorization(checker PermissionChecker, logger *slog.Logger) *RBACAuthorization {
	return &RBACAuthorization{
		BaseHandler: transport.NewBaseHandler(logger),
		checker:     checker,
		logger:      logger,
	}
}

// RequirePermission admits requests whose claims grant every listed code.
// It must run after AuthMiddleware.
func (ra *RBACAuthorization) RequirePermission(permissions ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				ra.logger.WarnContext(r.Context(), "authorization check failed: no claims in context")
				ra.WriteAppError(w, r, internal.ErrInvalidToken)
				return
			}

			if !ra.checker.HasAllPermissions(claims, permissions) {
				ra.logger.WarnContext(r.Context(), "access denied: insufficient permissions",
					"user_id", claims.Subject,
					"required_permissions", permissions,
					"user_permissions", claims.Permissions)
				ra.WriteAppError(w, r, internal.ErrForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyPermission admits requests whose claims grant at least one listed code.
func (ra *RBACAuthorization) RequireAnyPermission(permissions ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				ra.WriteAppError(w, r, internal.ErrInvalidToken)
				return
			}
			if !ra.checker.HasAnyPermission(claims, permissions) {
				ra.logger.WarnContext(r.Context(), "access denied: none of the permissions granted",
					"user_id", claims.Subject,
					"required_permissions", permissions)
				ra.WriteAppError(w, r, internal.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
