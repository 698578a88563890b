package auth

import (
	"encoding/json"
	"net/http"
)

// Handler serves the token endpoints.
type Handler struct {
	tokenSvc    *TokenService
	devIdentity *Identity
}

// NewHandler creates a token handler. devIdentity enables the dev login
// endpoint and may be nil.
func NewHandler(tokenSvc *TokenService, devIdentity *Identity) *Handler {
	return &Handler{tokenSvc: tokenSvc, devIdentity: devIdentity}
}

// RegisterRoutes registers the token endpoints on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/token/refresh", h.HandleRefresh)
	if h.devIdentity != nil {
		mux.HandleFunc("POST /auth/dev/login", h.HandleDevLogin)
	}
}

// HandleRefresh exchanges a refresh token for new access + refresh tokens.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
		return
	}

	identity, err := h.tokenSvc.ValidateToken(req.RefreshToken)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error": "invalid refresh token",
		})
		return
	}

	if identity.TokenType != "refresh" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error": "refresh token required",
		})
		return
	}

	h.issue(w, identity)
}

// HandleDevLogin issues tokens for the configured dev identity and sets the
// session cookie.
func (h *Handler) HandleDevLogin(w http.ResponseWriter, _ *http.Request) {
	accessToken, err := h.tokenSvc.CreateAccessToken(h.devIdentity)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "token creation failed",
		})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    accessToken,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	h.issue(w, h.devIdentity)
}

func (h *Handler) issue(w http.ResponseWriter, identity *Identity) {
	accessToken, err := h.tokenSvc.CreateAccessToken(identity)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "token creation failed",
		})
		return
	}

	refreshToken, err := h.tokenSvc.CreateRefreshToken(identity)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "token creation failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "Bearer",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
