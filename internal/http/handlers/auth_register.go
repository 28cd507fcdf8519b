package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/authcore/internal/auth"
	httpx "github.com/dropDatabas3/authcore/internal/http"
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// NewRegisterHandler da de alta un principal y devuelve su primer par de tokens.
func NewRegisterHandler(svc auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if !httpx.ReadJSON(w, r, &req) {
			return
		}
		req.Email = strings.TrimSpace(strings.ToLower(req.Email))
		if req.Email == "" || req.Password == "" {
			httpx.WriteError(w, http.StatusBadRequest, "missing_fields", "email and password are required")
			return
		}

		pair, err := svc.Register(r.Context(), auth.RegisterInput{
			Email:    req.Email,
			Name:     strings.TrimSpace(req.Name),
			Password: req.Password,
		})
		if err != nil {
			httpx.RecordAuthAttempt("register", "rejected")
			httpx.WriteAuthError(w, err)
			return
		}
		httpx.RecordAuthAttempt("register", "ok")
		httpx.WriteJSON(w, http.StatusCreated, newTokenPairResponse(pair, time.Now()))
	}
}
