package directory

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/frahmantamala/project-access/internal"
	directoryPostgres "github.com/frahmantamala/project-access/internal/directory/postgres"
	"github.com/frahmantamala/project-access/internal/notification"
	"github.com/frahmantamala/project-access/pkg/logger"
	"github.com/go-chi/chi"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
)

type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Details struct {
			Errors []internal.ValidationError `json:"errors"`
		} `json:"details"`
	} `json:"error"`
}

var _ = ginkgo.Describe("Handler", func() {
	var router *chi.Mux

	ginkgo.BeforeEach(func() {
		lg := logger.Discard()
		svc := NewService(directoryPostgres.NewRepository(openTestDB()), notification.NewLogNotifier(lg), lg, bcrypt.MinCost, 0)
		h := NewHandler(svc, lg)

		router = chi.NewRouter()
		router.Post("/auth/signup", h.Signup)
		router.Post("/roles", h.CreateRole)
		router.Get("/roles", h.ListRoles)
		router.Delete("/roles/{roleID}", h.DeleteRole)
		router.Post("/permissions", h.CreatePermission)
		router.Put("/roles/{roleID}/permissions/{permissionID}", h.GrantPermission)
		router.Get("/roles/{roleID}/permissions", h.ListRolePermissions)
		router.Post("/services", h.CreateService)
		router.Put("/users/{userID}/service", h.AssignService)
		router.Delete("/users/{userID}/service", h.RemoveFromService)
	})

	do := func(method, path string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			gomega.Expect(json.NewEncoder(&buf).Encode(body)).To(gomega.Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	decodeError := func(rec *httptest.ResponseRecorder) errorBody {
		var body errorBody
		gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(gomega.Succeed())
		return body
	}

	ginkgo.It("creates a user on signup and never echoes the password", func() {
		rec := do(http.MethodPost, "/auth/signup", map[string]string{
			"username": "alice", "email": "alice@x.com", "password": "Secret123",
		})

		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusCreated))
		gomega.Expect(rec.Body.String()).ToNot(gomega.ContainSubstring("Secret123"))
		gomega.Expect(rec.Body.String()).ToNot(gomega.ContainSubstring("password"))
		var user User
		gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &user)).To(gomega.Succeed())
		gomega.Expect(user.RoleID).To(gomega.BeNil())
	})

	ginkgo.It("ignores role and staff flags smuggled into a signup body", func() {
		rec := do(http.MethodPost, "/auth/signup", map[string]interface{}{
			"username": "mallory", "email": "m@x.com", "password": "Secret123",
			"is_superuser": true, "is_staff": true, "role_id": 1,
		})

		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusCreated))
		var user User
		gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &user)).To(gomega.Succeed())
		gomega.Expect(user.IsSuperuser).To(gomega.BeFalse())
		gomega.Expect(user.IsStaff).To(gomega.BeFalse())
		gomega.Expect(user.RoleID).To(gomega.BeNil())
	})

	ginkgo.It("answers 409 with the conflicting field on duplicate signup", func() {
		body := map[string]string{"username": "alice", "email": "alice@x.com", "password": "Secret123"}
		gomega.Expect(do(http.MethodPost, "/auth/signup", body).Code).To(gomega.Equal(http.StatusCreated))

		rec := do(http.MethodPost, "/auth/signup", body)

		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusConflict))
		errBody := decodeError(rec)
		gomega.Expect(errBody.Error.Details.Errors).To(gomega.HaveLen(1))
		gomega.Expect(errBody.Error.Details.Errors[0].Field).To(gomega.Equal("email"))
	})

	ginkgo.It("answers 400 with field details on invalid signup", func() {
		rec := do(http.MethodPost, "/auth/signup", map[string]string{"email": "bad", "password": "short"})

		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
		errBody := decodeError(rec)
		gomega.Expect(errBody.Error.Type).To(gomega.Equal(string(internal.ErrorTypeValidation)))
		gomega.Expect(errBody.Error.Details.Errors).To(gomega.HaveLen(3))
	})

	ginkgo.It("binds permissions to roles and conflicts on a repeated binding", func() {
		gomega.Expect(do(http.MethodPost, "/roles", map[string]string{"code": "editor", "display_name": "Editor"}).Code).
			To(gomega.Equal(http.StatusCreated))
		gomega.Expect(do(http.MethodPost, "/permissions", map[string]string{"code": "projects:edit"}).Code).
			To(gomega.Equal(http.StatusCreated))

		gomega.Expect(do(http.MethodPut, "/roles/1/permissions/1", nil).Code).To(gomega.Equal(http.StatusNoContent))

		rec := do(http.MethodPut, "/roles/1/permissions/1", nil)
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusConflict))
		gomega.Expect(decodeError(rec).Error.Code).To(gomega.Equal(string(internal.ErrCodeDuplicateBinding)))

		rec = do(http.MethodGet, "/roles/1/permissions", nil)
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		var perms []Permission
		gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &perms)).To(gomega.Succeed())
		gomega.Expect(perms).To(gomega.HaveLen(1))
	})

	ginkgo.It("rejects non-numeric path ids", func() {
		rec := do(http.MethodDelete, "/roles/abc", nil)
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
	})

	ginkgo.It("returns 404 when deleting a missing role", func() {
		rec := do(http.MethodDelete, "/roles/42", nil)
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusNotFound))
		gomega.Expect(decodeError(rec).Error.Code).To(gomega.Equal(string(internal.ErrCodeRoleNotFound)))
	})

	ginkgo.It("assigns and removes a service membership", func() {
		gomega.Expect(do(http.MethodPost, "/auth/signup", map[string]string{
			"username": "alice", "email": "alice@x.com", "password": "Secret123",
		}).Code).To(gomega.Equal(http.StatusCreated))
		gomega.Expect(do(http.MethodPost, "/services", map[string]string{"code": "platform", "display_name": "Platform"}).Code).
			To(gomega.Equal(http.StatusCreated))

		rec := do(http.MethodPut, "/users/1/service", map[string]int64{"service_id": 1})
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))

		rec = do(http.MethodDelete, "/users/1/service", nil)
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		var user User
		gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &user)).To(gomega.Succeed())
		gomega.Expect(user.ServiceID).To(gomega.BeNil())
	})
})
