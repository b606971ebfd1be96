package auth

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/project-access/internal"
	"github.com/frahmantamala/project-access/internal/transport"
	"github.com/frahmantamala/project-access/pkg/logger"
)

const passwordResetAck = "If an account with that email exists, a password reset link has been sent."

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

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	resp, err := h.Service.Authenticate(r.Context(), dto)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var dto RefreshTokenDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	resp, err := h.Service.Refresh(r.Context(), dto)
	if err != nil {
		h.WriteAppError(w, r, publicTokenError(r, err))
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

// Logout revokes the bearer token. The body is optional.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, r, internal.ErrInvalidToken)
		return
	}

	var dto LogoutDTO
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&dto); err != nil && !errors.Is(err, io.EOF) {
			h.WriteAppError(w, r, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
			return
		}
	}

	if err := h.Service.Logout(r.Context(), claims, dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var dto PasswordResetRequestDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	if err := h.Service.RequestPasswordReset(r.Context(), dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"message": passwordResetAck})
}

func (h *Handler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var dto PasswordResetConfirmDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	if err := h.Service.ConfirmPasswordReset(r.Context(), dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password has been reset."})
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, r, internal.ErrInvalidToken)
		return
	}

	var dto ChangePasswordDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	if err := h.Service.ChangePassword(r.Context(), claims, dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID := internal.UserIDFromContext(r.Context())
	if userID == 0 {
		h.WriteAppError(w, r, internal.ErrInvalidToken)
		return
	}

	user, err := h.Service.CurrentUser(r.Context(), userID)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	var dto RevokeTokenDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	if err := h.Service.RevokeToken(r.Context(), dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AuthMiddleware verifies the bearer token and attaches its claims, the user
// id and a user-scoped logger to the request context.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.WriteAppError(w, r, internal.ErrInvalidToken)
			return
		}

		claims, err := h.Service.VerifyAccessToken(r.Context(), token)
		if err != nil {
			h.WriteAppError(w, r, publicTokenError(r, err))
			return
		}

		userID, err := claims.UserID()
		if err != nil {
			h.WriteAppError(w, r, internal.ErrInvalidToken)
			return
		}

		ctx := ContextWithClaims(r.Context(), claims)
		ctx = internal.ContextWithUserID(ctx, userID)
		ctx = logger.With(ctx, "user_id", userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// publicTokenError hides which verification step failed. Only expiry is
// reported as such, since clients act on it by refreshing.
func publicTokenError(r *http.Request, err error) error {
	appErr, ok := internal.IsAppError(err)
	if !ok || appErr.Type != internal.ErrorTypeUnauthorized {
		return err
	}
	logger.From(r.Context()).InfoContext(r.Context(), "token rejected", "reason", appErr.Code)
	switch appErr.Code {
	case internal.ErrCodeTokenExpired, internal.ErrCodeInvalidToken:
		return appErr
	default:
		return internal.ErrInvalidToken
	}
}
