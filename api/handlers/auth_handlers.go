package handlers

import (
	"net/http"
	"strings"

	"incidentdesk/config"
	"incidentdesk/core/auth"
	"incidentdesk/core/store"
)

type AuthHandler struct {
	cfg  *config.AppConfig
	auth *auth.Service
	rs   *Responder
}

func NewAuthHandler(cfg *config.AppConfig, svc *auth.Service, rs *Responder) *AuthHandler {
	return &AuthHandler{cfg: cfg, auth: svc, rs: rs}
}

type authPayload struct {
	User   *store.User  `json:"user"`
	Tokens *auth.Tokens `json:"tokens,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	u, tokens, err := h.auth.Register(r.Context(), in)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.OK(w, http.StatusCreated, "User registered successfully", authPayload{User: u, Tokens: tokens})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in auth.LoginInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	u, tokens, err := h.auth.Login(r.Context(), in)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.OK(w, http.StatusOK, "Login successful", authPayload{User: u, Tokens: tokens})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeJSON(w, r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	if strings.TrimSpace(in.RefreshToken) == "" {
		h.rs.Fail(w, http.StatusUnauthorized, "Refresh token is required")
		return
	}
	tokens, err := h.auth.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.OK(w, http.StatusOK, "Token refreshed successfully", tokens)
}

// Logout accepts an empty body; only the given refresh token's session is closed.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &in); err != nil {
			h.rs.Error(w, r, err)
			return
		}
	}
	if err := h.auth.Logout(r.Context(), principal(r), in.RefreshToken); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.OK(w, http.StatusOK, "Logged out successfully", nil)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	h.rs.OK(w, http.StatusOK, "", principal(r).User)
}

func (h *AuthHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.auth.Sessions(r.Context(), principal(r))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.OK(w, http.StatusOK, "", sessions)
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var in auth.ProfileInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	u, err := h.auth.UpdateProfile(r.Context(), principal(r), in)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.OK(w, http.StatusOK, "Profile updated successfully", u)
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	tokens, err := h.auth.ChangePassword(r.Context(), principal(r), in.CurrentPassword, in.NewPassword)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.OK(w, http.StatusOK, "Password changed successfully. Other sessions have been signed out.", tokens)
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	token, err := h.auth.ForgotPassword(r.Context(), in.Email)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	var data any
	if token != "" && !h.cfg.IsProduction() {
		data = map[string]string{"resetToken": token}
	}
	h.rs.OK(w, http.StatusOK, "If the email exists, a password reset link has been issued", data)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	if err := h.auth.ResetPassword(r.Context(), urlParam(r, "token"), in.Password); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.OK(w, http.StatusOK, "Password reset successfully. Please login.", nil)
}
