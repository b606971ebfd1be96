package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/project-access/internal/auth"
	"github.com/frahmantamala/project-access/internal/directory"
	"github.com/frahmantamala/project-access/internal/transport/middleware"
	"github.com/frahmantamala/project-access/internal/transport/swagger"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	goredis "github.com/go-redis/redis/v8"
)

type Options struct {
	DB               *sql.DB
	Redis            goredis.Cmdable
	AuthHandler      *auth.Handler
	DirectoryHandler *directory.Handler
	RBAC             *auth.RBACAuthorization
	AllowedOrigins   string
	// HTTPMetrics and MetricsHandler are nil when metrics are disabled.
	HTTPMetrics    *middleware.HTTPMetrics
	MetricsHandler http.Handler
	MetricsPath    string
	Logger         *slog.Logger
}

func RegisterAllRoutes(router *chi.Mux, opts Options) {
	healthHandler := NewHealthHandler(opts.DB, opts.Redis)
	authHandler := opts.AuthHandler
	dirHandler := opts.DirectoryHandler
	rbac := opts.RBAC

	router.Use(middleware.CORS(opts.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(opts.Logger))
	router.Use(middleware.LoggingMiddleware(opts.Logger))
	if opts.HTTPMetrics != nil {
		router.Use(opts.HTTPMetrics.Instrument)
	}

	router.Get("/openapi.yml", swagger.SpecHandler())
	router.Handle("/swagger/*", swagger.Handler())
	if opts.MetricsHandler != nil {
		router.Handle(opts.MetricsPath, opts.MetricsHandler)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/login", authHandler.Login)
			sr.Post("/refresh", authHandler.RefreshToken)
			sr.Post("/signup", dirHandler.Signup)
			sr.Post("/password-reset", authHandler.RequestPasswordReset)
			sr.Post("/password-reset/confirm", authHandler.ConfirmPasswordReset)
		})

		r.Group(func(pr chi.Router) {
			pr.Use(authHandler.AuthMiddleware)

			pr.Post("/auth/logout", authHandler.Logout)
			pr.Post("/auth/password", authHandler.ChangePassword)
			pr.Get("/users/me", authHandler.Me)

			pr.With(rbac.RequirePermission(auth.PermTokensRevoke)).Post("/auth/tokens/revoke", authHandler.RevokeToken)

			pr.Group(func(rr chi.Router) {
				rr.Use(rbac.RequirePermission(auth.PermRolesManage))
				rr.Get("/roles", dirHandler.ListRoles)
				rr.Post("/roles", dirHandler.CreateRole)
				rr.Delete("/roles/{roleID}", dirHandler.DeleteRole)
				rr.Get("/roles/{roleID}/permissions", dirHandler.ListRolePermissions)
				rr.Put("/roles/{roleID}/permissions/{permissionID}", dirHandler.GrantPermission)
				rr.Delete("/roles/{roleID}/permissions/{permissionID}", dirHandler.RevokePermission)
			})

			pr.Group(func(rr chi.Router) {
				rr.Use(rbac.RequirePermission(auth.PermPermissionsManage))
				rr.Get("/permissions", dirHandler.ListPermissions)
				rr.Post("/permissions", dirHandler.CreatePermission)
				rr.Delete("/permissions/{permissionID}", dirHandler.DeletePermission)
			})

			pr.Group(func(rr chi.Router) {
				rr.Use(rbac.RequirePermission(auth.PermServicesManage))
				rr.Get("/services", dirHandler.ListServices)
				rr.Post("/services", dirHandler.CreateService)
				rr.Delete("/services/{serviceID}", dirHandler.DeleteService)
			})

			// readable by role managers as well
			pr.With(rbac.RequireAnyPermission(auth.PermUsersManage, auth.PermRolesManage)).
				Get("/users/{userID}", dirHandler.GetUser)

			pr.Group(func(ur chi.Router) {
				ur.Use(rbac.RequirePermission(auth.PermUsersManage))
				ur.Post("/users", dirHandler.CreateUser)
				ur.Patch("/users/{userID}", dirHandler.UpdateUser)
				ur.Put("/users/{userID}/service", dirHandler.AssignService)
				ur.Delete("/users/{userID}/service", dirHandler.RemoveFromService)
			})
		})
	})
}
