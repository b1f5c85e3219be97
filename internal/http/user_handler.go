package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/slot-booking/internal/application"
)

type userService interface {
	Register(ctx context.Context, params application.RegisterParams) (application.User, error)
	GetUser(ctx context.Context, id string) (application.User, error)
	UpdateProfile(ctx context.Context, params application.UpdateProfileParams) (application.User, error)
	ChangePassword(ctx context.Context, params application.ChangePasswordParams) error
}

type UserHandler struct {
	service   userService
	tokens    tokenIssuer
	responder responder
	logger    *slog.Logger
}

// NewUserHandler wires the account endpoints. tokens re-issues the session
// after an email change, since session restore looks the account up by email.
func NewUserHandler(service userService, tokens tokenIssuer, logger *slog.Logger) *UserHandler {
	base := defaultLogger(logger)
	return &UserHandler{service: service, tokens: tokens, responder: newResponder(base), logger: base}
}

func (h *UserHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "UserHandler", operation, attrs...)
}

// Register handles self-service signup.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Register", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode signup request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Register")

	user, err := h.service.Register(r.Context(), application.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		Company:  req.Company,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "signup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("user_id", user.ID).InfoContext(r.Context(), "user registered")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, userResponse{User: toUserDTO(user)})
}

// Me returns the caller's account.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	user, err := h.service.GetUser(r.Context(), principal.UserID)
	if err != nil {
		h.log(r.Context(), "Me", "principal_id", principal.UserID).ErrorContext(r.Context(), "failed to load current user", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, userResponse{User: toUserDTO(user)})
}

// UpdateMe changes the caller's email or company.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "UpdateMe", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode profile update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "UpdateMe", "principal_id", principal.UserID)

	user, err := h.service.UpdateProfile(r.Context(), application.UpdateProfileParams{
		UserID:  principal.UserID,
		Email:   req.Email,
		Company: req.Company,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "profile update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	resp := userResponse{User: toUserDTO(user)}
	if req.Email != nil && h.tokens != nil {
		token, expiresAt, err := h.tokens.Issue(user.ID, user.Email, user.Role.String())
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to reissue session token", "error", err)
			h.responder.writeError(r.Context(), w, http.StatusInternalServerError, nil)
			return
		}
		setSessionCookie(w, token, expiresAt)
		w.Header().Set("X-Session-Token", token)
		resp.Token = token
		resp.ExpiresAt = expiresAt.UTC().Format(time.RFC3339Nano)
	}

	logger.InfoContext(r.Context(), "profile updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

// ChangePassword replaces the caller's password.
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "ChangePassword", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode password change", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "ChangePassword", "principal_id", principal.UserID)

	err := h.service.ChangePassword(r.Context(), application.ChangePasswordParams{
		UserID:          principal.UserID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "password change failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "password changed")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Company  string `json:"company"`
}

type updateProfileRequest struct {
	Email   *string `json:"email"`
	Company *string `json:"company"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type userResponse struct {
	User      userDTO `json:"user"`
	Token     string  `json:"token,omitempty"`
	ExpiresAt string  `json:"expires_at,omitempty"`
}

type userDTO struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Company   string `json:"company"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toUserDTO(user application.User) userDTO {
	return userDTO{
		ID:        user.ID,
		Email:     user.Email,
		Company:   user.Company,
		Role:      user.Role.String(),
		CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: user.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
