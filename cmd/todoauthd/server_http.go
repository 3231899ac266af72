package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kzhama/todoauth/internal/config"
	domain "github.com/kzhama/todoauth/internal/domain/auth"
	"github.com/kzhama/todoauth/internal/secret"
	authsvc "github.com/kzhama/todoauth/internal/services/auth"
)

const refreshCookie = "refresh_token"

func buildHTTPServer(cfg *config.Config, logger *zap.Logger, svc *authsvc.Service) *http.Server {
	h := &handlers{svc: svc, log: logger.Named("http"), cookieName: cfg.Auth.CookieName}

	protected := svc.Middleware(cfg.Auth.CookieName)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /v1/auth/register", h.register)
	mux.HandleFunc("POST /v1/auth/login", h.login)
	mux.HandleFunc("POST /v1/auth/refresh", h.refresh)
	mux.Handle("POST /v1/auth/logout", protected(http.HandlerFunc(h.logout)))
	mux.Handle("GET /v1/me", protected(http.HandlerFunc(h.me)))

	return &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

type handlers struct {
	svc        *authsvc.Service
	log        *zap.Logger
	cookieName string
}

type registerRequest struct {
	FamilyName string `json:"family_name"`
	GivenName  string `json:"given_name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	u, err := h.svc.Register(r.Context(), authsvc.RegisterInput{
		FamilyName: req.FamilyName,
		GivenName:  req.GivenName,
		Email:      req.Email,
		Password:   secret.New(req.Password),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": u.ID.String(), "email": u.Email.String()})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	pair, err := h.svc.Login(r.Context(), req.Email, secret.New(req.Password))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writePair(w, pair)
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := authsvc.TokenFromRequest(r, refreshCookie)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	pair, err := h.svc.Refresh(r.Context(), token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writePair(w, pair)
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	u, ok := authsvc.UserFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.svc.Logout(r.Context(), u.ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	clearCookie(w, h.cookieName)
	clearCookie(w, refreshCookie)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	u, ok := authsvc.UserFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          u.ID.String(),
		"family_name": u.FamilyName.String(),
		"given_name":  u.GivenName.String(),
		"email":       u.Email.String(),
		"last_login":  u.LastLoginAt,
	})
}

func (h *handlers) writePair(w http.ResponseWriter, pair *domain.TokenPair) {
	setCookie(w, h.cookieName, pair.Access.Expose(), pair.AccessExpiresAt)
	setCookie(w, refreshCookie, pair.Refresh.Expose(), pair.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":       pair.Access.Expose(),
		"access_expires_at":  pair.AccessExpiresAt,
		"refresh_token":      pair.Refresh.Expose(),
		"refresh_expires_at": pair.RefreshExpiresAt,
	})
}

// writeError maps domain errors to statuses. Invalid credentials and a
// locked account produce the same response on purpose.
func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]any{"messages": ve.Failures})
	case errors.Is(err, domain.ErrEmailTaken):
		writeJSONError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrAccountLocked):
		writeJSONError(w, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, domain.ErrUnauthorized):
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
	default:
		h.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"messages": []string{msg}})
}

func setCookie(w http.ResponseWriter, name, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
