package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/frahmantamala/project-access/internal"
	"github.com/frahmantamala/project-access/pkg/logger"
	"github.com/go-chi/chi"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			Errors []internal.ValidationError `json:"errors"`
		} `json:"details"`
	} `json:"error"`
}

var _ = ginkgo.Describe("Handler", func() {
	var (
		env    *testEnv
		router *chi.Mux
	)

	ginkgo.BeforeEach(func() {
		env = newTestEnv()
		env.seedAlice()

		h := NewHandler(env.service, logger.Discard())
		rbac := NewRBACAuthorization(NewPermissionChecker(), logger.Discard())

		router = chi.NewRouter()
		router.Post("/auth/login", h.Login)
		router.Post("/auth/refresh", h.RefreshToken)
		router.Post("/auth/password-reset", h.RequestPasswordReset)
		router.Post("/auth/password-reset/confirm", h.ConfirmPasswordReset)
		router.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)
			r.Post("/auth/logout", h.Logout)
			r.Post("/auth/password", h.ChangePassword)
			r.Get("/users/me", h.Me)
			r.With(rbac.RequirePermission(PermTokensRevoke)).Post("/auth/tokens/revoke", h.RevokeToken)
			r.With(rbac.RequirePermission("projects:create")).Get("/projects", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			r.With(rbac.RequireAnyPermission("reports:view", "projects:delete")).Get("/reports", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			r.With(rbac.RequireAnyPermission("reports:view", "reports:export")).Get("/reports/export", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		})
	})

	do := func(method, path, token string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			gomega.Expect(json.NewEncoder(&buf).Encode(body)).To(gomega.Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	decodeError := func(rec *httptest.ResponseRecorder) errorBody {
		var body errorBody
		gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(gomega.Succeed())
		return body
	}

	login := func() LoginResponse {
		rec := do(http.MethodPost, "/auth/login", "", map[string]interface{}{"email": "alice@x.com", "password": "Secret123"})
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		var resp LoginResponse
		gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(gomega.Succeed())
		return resp
	}

	ginkgo.Describe("POST /auth/login", func() {
		ginkgo.It("returns tokens and the user snapshot", func() {
			rec := do(http.MethodPost, "/auth/login", "", map[string]interface{}{"email": "alice@x.com", "password": "Secret123"})

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			var raw map[string]interface{}
			gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &raw)).To(gomega.Succeed())
			gomega.Expect(raw).To(gomega.HaveKey("access_token"))
			gomega.Expect(raw).To(gomega.HaveKey("refresh_token"))
			gomega.Expect(raw).To(gomega.HaveKey("user"))
		})

		ginkgo.It("answers 401 with a generic message on bad credentials", func() {
			rec := do(http.MethodPost, "/auth/login", "", map[string]interface{}{"email": "alice@x.com", "password": "nope"})

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(decodeError(rec).Error.Code).To(gomega.Equal(string(internal.ErrCodeInvalidCredentials)))
		})

		ginkgo.It("returns field-tagged validation errors", func() {
			rec := do(http.MethodPost, "/auth/login", "", map[string]interface{}{"email": "bad"})

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
			errs := decodeError(rec).Error.Details.Errors
			gomega.Expect(errs).To(gomega.HaveLen(2))
			gomega.Expect(errs[0].Field).To(gomega.Equal("email"))
			gomega.Expect(errs[1].Field).To(gomega.Equal("password"))
		})

		ginkgo.It("rejects an undecodable body", func() {
			req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString("{"))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
		})
	})

	ginkgo.Describe("AuthMiddleware", func() {
		ginkgo.It("admits a valid token", func() {
			resp := login()
			rec := do(http.MethodGet, "/users/me", resp.AccessToken, nil)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			var snap UserSnapshot
			gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &snap)).To(gomega.Succeed())
			gomega.Expect(snap.Email).To(gomega.Equal("alice@x.com"))
		})

		ginkgo.It("rejects a missing token", func() {
			rec := do(http.MethodGet, "/users/me", "", nil)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
		})

		ginkgo.It("does not reveal why a token was rejected", func() {
			resp := login()
			gomega.Expect(do(http.MethodPost, "/auth/logout", resp.AccessToken, nil).Code).To(gomega.Equal(http.StatusNoContent))

			rec := do(http.MethodGet, "/users/me", resp.AccessToken, nil)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(decodeError(rec).Error.Code).To(gomega.Equal(string(internal.ErrCodeInvalidToken)))

			rec = do(http.MethodGet, "/users/me", "x.y.z", nil)
			gomega.Expect(decodeError(rec).Error.Code).To(gomega.Equal(string(internal.ErrCodeInvalidToken)))
		})

		ginkgo.It("reports expiry so clients can refresh", func() {
			resp := login()
			env.clock.Advance(31 * time.Minute)

			rec := do(http.MethodGet, "/users/me", resp.AccessToken, nil)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(decodeError(rec).Error.Code).To(gomega.Equal(string(internal.ErrCodeTokenExpired)))
		})
	})

	ginkgo.Describe("RequirePermission", func() {
		ginkgo.It("admits holders of the permission", func() {
			resp := login()
			gomega.Expect(do(http.MethodGet, "/projects", resp.AccessToken, nil).Code).To(gomega.Equal(http.StatusOK))
		})

		ginkgo.It("forbids users lacking it", func() {
			resp := login()
			rec := do(http.MethodPost, "/auth/tokens/revoke", resp.AccessToken, map[string]interface{}{"jti": "j", "user_id": 1})

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusForbidden))
			gomega.Expect(decodeError(rec).Error.Code).To(gomega.Equal(string(internal.ErrCodeForbidden)))
		})

		ginkgo.It("lets superusers through", func() {
			env.store.users[10].IsSuperuser = true
			resp := login()

			rec := do(http.MethodPost, "/auth/tokens/revoke", resp.AccessToken, map[string]interface{}{"jti": "j", "user_id": 1})
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusNoContent))
		})
	})

	ginkgo.Describe("RequireAnyPermission", func() {
		ginkgo.It("admits holders of one of the permissions", func() {
			resp := login()
			gomega.Expect(do(http.MethodGet, "/reports", resp.AccessToken, nil).Code).To(gomega.Equal(http.StatusOK))
		})

		ginkgo.It("forbids users holding none of them", func() {
			resp := login()
			rec := do(http.MethodGet, "/reports/export", resp.AccessToken, nil)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusForbidden))
			gomega.Expect(decodeError(rec).Error.Code).To(gomega.Equal(string(internal.ErrCodeForbidden)))
		})

		ginkgo.It("lets superusers through", func() {
			env.store.users[10].IsSuperuser = true
			resp := login()

			gomega.Expect(do(http.MethodGet, "/reports/export", resp.AccessToken, nil).Code).To(gomega.Equal(http.StatusOK))
		})
	})

	ginkgo.Describe("POST /auth/password-reset", func() {
		ginkgo.It("answers identically for known and unknown emails", func() {
			known := do(http.MethodPost, "/auth/password-reset", "", map[string]string{"email": "alice@x.com"})
			unknown := do(http.MethodPost, "/auth/password-reset", "", map[string]string{"email": "ghost@x.com"})

			gomega.Expect(known.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(unknown.Code).To(gomega.Equal(known.Code))
			gomega.Expect(unknown.Body.String()).To(gomega.Equal(known.Body.String()))
		})

		ginkgo.It("rejects an invalid reset token with 400", func() {
			rec := do(http.MethodPost, "/auth/password-reset/confirm", "", map[string]string{"reset_token": "bogus", "new_password": "LongEnough1"})

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
			gomega.Expect(decodeError(rec).Error.Code).To(gomega.Equal(string(internal.ErrCodeInvalidResetToken)))
		})
	})

	ginkgo.Describe("POST /auth/refresh", func() {
		ginkgo.It("issues a new pair", func() {
			resp := login()
			rec := do(http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": resp.RefreshToken})
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		})

		ginkgo.It("hides the reason a refresh token was refused", func() {
			resp := login()
			gomega.Expect(do(http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": resp.RefreshToken}).Code).To(gomega.Equal(http.StatusOK))

			rec := do(http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": resp.RefreshToken})
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(decodeError(rec).Error.Code).To(gomega.Equal(string(internal.ErrCodeInvalidToken)))
		})
	})

	ginkgo.Describe("POST /auth/password", func() {
		ginkgo.It("changes the password and ends the session", func() {
			resp := login()
			rec := do(http.MethodPost, "/auth/password", resp.AccessToken, map[string]string{"old_password": "Secret123", "new_password": "Another456"})
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusNoContent))

			gomega.Expect(do(http.MethodGet, "/users/me", resp.AccessToken, nil).Code).To(gomega.Equal(http.StatusUnauthorized))
		})
	})
})
