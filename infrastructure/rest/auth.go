package rest

import (
	"chat-relay/domain"
	"chat-relay/domain/api"
	"chat-relay/errors"
	"chat-relay/services"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

type AuthHandler struct {
	accounts services.IAuthService
	log      *slog.Logger
}

func NewAuthHandler(accounts services.IAuthService, log *slog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, log: log.With("handler", "auth")}
}

// RegisterRoutes leaves register and login open, authn guards the contacts.
func (h *AuthHandler) RegisterRoutes(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
	r.With(authn).Get("/allusers/{id}", h.handleAllUsers)
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	body, err := decode[api.RegisterRequest](w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, api.AuthResponse{Status: false, Msg: err.Error()})
		return
	}
	user, err := h.accounts.Register(r.Context(), body.Username, body.Email, body.Password)
	if err != nil {
		h.log.Info("registration refused", "username", body.Username, "error", err)
		writeJSON(w, errors.MapToHTTPStatus(err), api.AuthResponse{Status: false, Msg: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, api.AuthResponse{Status: true, User: lo.ToPtr(toAPIUser(user))})
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	body, err := decode[api.LoginRequest](w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, api.AuthResponse{Status: false, Msg: err.Error()})
		return
	}
	user, token, err := h.accounts.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		writeJSON(w, errors.MapToHTTPStatus(err), api.AuthResponse{Status: false, Msg: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, api.AuthResponse{Status: true, User: lo.ToPtr(toAPIUser(user)), Token: token})
}

func (h *AuthHandler) handleAllUsers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := actingAs(r, id); err != nil {
		writeError(w, err)
		return
	}
	users, err := h.accounts.Contacts(r.Context(), domain.UserIdentity(id))
	if err != nil {
		h.log.Error("contacts lookup failed", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(users, func(u domain.User, _ int) api.User { return toAPIUser(u) }))
}

// toAPIUser never exposes the password hash.
func toAPIUser(u domain.User) api.User {
	return api.User{ID: string(u.ID), Username: u.Username, Email: u.Email, CreatedAt: u.CreatedAt}
}
