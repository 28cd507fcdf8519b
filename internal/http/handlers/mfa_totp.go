package handlers

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/authcore/internal/auth"
	httpx "github.com/dropDatabas3/authcore/internal/http"
)

type TotpEnableResponse struct {
	Secret         string `json:"secret"`
	ManualEntryKey string `json:"manual_entry_key"`
	OTPAuthURL     string `json:"otpauth_url"`
}

type TotpCodeRequest struct {
	Code string `json:"code"`
}

// NewTotpEnableHandler inicia el enrolamiento TOTP del principal autenticado.
// Queda pendiente hasta que un código válido pase por el verify.
func NewTotpEnableHandler(svc auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pid := httpx.PrincipalFromContext(r.Context())
		if pid == "" {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
			return
		}

		prov, err := svc.EnableTotp(r.Context(), pid)
		if err != nil {
			httpx.WriteAuthError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, TotpEnableResponse{
			Secret:         prov.Secret,
			ManualEntryKey: prov.ManualEntryKey,
			OTPAuthURL:     prov.OTPAuthURL,
		})
	}
}

// NewTotpVerifyHandler confirma el enrolamiento con el primer código válido.
func NewTotpVerifyHandler(svc auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pid := httpx.PrincipalFromContext(r.Context())
		if pid == "" {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
			return
		}
		var req TotpCodeRequest
		if !httpx.ReadJSON(w, r, &req) {
			return
		}
		req.Code = strings.TrimSpace(req.Code)
		if req.Code == "" {
			httpx.WriteError(w, http.StatusBadRequest, "missing_fields", "code is required")
			return
		}

		if err := svc.VerifyTotp(r.Context(), pid, req.Code); err != nil {
			httpx.RecordTotpCheck(false)
			httpx.WriteAuthError(w, err)
			return
		}
		httpx.RecordTotpCheck(true)
		httpx.WriteJSON(w, http.StatusOK, map[string]bool{"enabled": true})
	}
}

type TotpDisableRequest struct {
	Password string `json:"password"`
}

// NewTotpDisableHandler apaga TOTP; re-verifica el password y revoca las
// sesiones activas del principal.
func NewTotpDisableHandler(svc auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pid := httpx.PrincipalFromContext(r.Context())
		if pid == "" {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
			return
		}
		var req TotpDisableRequest
		if !httpx.ReadJSON(w, r, &req) {
			return
		}
		if req.Password == "" {
			httpx.WriteError(w, http.StatusBadRequest, "missing_fields", "password is required")
			return
		}

		if err := svc.DisableTotp(r.Context(), pid, req.Password); err != nil {
			httpx.WriteAuthError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]bool{"enabled": false})
	}
}
