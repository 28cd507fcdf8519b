package handlers

import (
	"net/http"
	"time"

	"github.com/dropDatabas3/authcore/internal/auth"
	httpx "github.com/dropDatabas3/authcore/internal/http"
)

type RefreshRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// NewRefreshHandler rota el refresh token y emite un par nuevo. El access
// token puede venir vencido; solo se usa para ligar el refresh a su dueño.
func NewRefreshHandler(svc auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RefreshRequest
		if !httpx.ReadJSON(w, r, &req) {
			return
		}
		if req.AccessToken == "" || req.RefreshToken == "" {
			httpx.WriteError(w, http.StatusBadRequest, "missing_fields", "access_token and refresh_token are required")
			return
		}

		pair, err := svc.Refresh(r.Context(), req.AccessToken, req.RefreshToken)
		if err != nil {
			httpx.RecordAuthAttempt("refresh", "rejected")
			httpx.WriteAuthError(w, err)
			return
		}
		httpx.RecordAuthAttempt("refresh", "ok")
		httpx.WriteJSON(w, http.StatusOK, newTokenPairResponse(pair, time.Now()))
	}
}
