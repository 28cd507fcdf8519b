package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/authcore/internal/auth"
	httpx "github.com/dropDatabas3/authcore/internal/http"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse: o bien el par de tokens, o bien el desafío de segundo factor.
type LoginResponse struct {
	RequiresTwoFactor bool   `json:"requires_two_factor,omitempty"`
	ChallengeToken    string `json:"challenge_token,omitempty"`

	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

type LoginWithTotpRequest struct {
	Email          string `json:"email,omitempty"`
	Password       string `json:"password,omitempty"`
	Code           string `json:"code"`
	ChallengeToken string `json:"challenge_token,omitempty"`
}

func writeLoginResult(w http.ResponseWriter, op string, res *auth.LoginResult) {
	if res.RequiresTwoFactor {
		httpx.RecordAuthAttempt(op, "ok")
		httpx.WriteJSON(w, http.StatusOK, LoginResponse{
			RequiresTwoFactor: true,
			ChallengeToken:    res.ChallengeToken,
		})
		return
	}
	httpx.RecordAuthAttempt(op, "ok")
	pair := newTokenPairResponse(res.Pair, time.Now())
	httpx.WriteJSON(w, http.StatusOK, LoginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
	})
}

// NewLoginHandler autentica con email y password. Si la cuenta tiene TOTP
// habilitado responde con un challenge_token en lugar de tokens.
func NewLoginHandler(svc auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if !httpx.ReadJSON(w, r, &req) {
			return
		}
		req.Email = strings.TrimSpace(strings.ToLower(req.Email))
		if req.Email == "" || req.Password == "" {
			httpx.WriteError(w, http.StatusBadRequest, "missing_fields", "email and password are required")
			return
		}

		res, err := svc.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			httpx.RecordAuthAttempt("login", "rejected")
			httpx.WriteAuthError(w, err)
			return
		}
		writeLoginResult(w, "login", res)
	}
}

// NewLoginWithTotpHandler maneja el segundo factor: con email+password y sin
// código responde el challenge (requires_two_factor), y lo completa con
// challenge_token+code o con email+password+code en una sola llamada.
func NewLoginWithTotpHandler(svc auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginWithTotpRequest
		if !httpx.ReadJSON(w, r, &req) {
			return
		}
		req.Code = strings.TrimSpace(req.Code)
		if req.ChallengeToken == "" && (req.Email == "" || req.Password == "") {
			httpx.WriteError(w, http.StatusBadRequest, "missing_fields", "challenge_token or email+password required")
			return
		}

		res, err := svc.LoginWithTotp(r.Context(), auth.LoginWithTotpInput{
			Email:          strings.TrimSpace(strings.ToLower(req.Email)),
			Password:       req.Password,
			Code:           req.Code,
			ChallengeToken: req.ChallengeToken,
		})
		if err != nil {
			httpx.RecordAuthAttempt("login_totp", "rejected")
			if req.Code != "" {
				httpx.RecordTotpCheck(false)
			}
			httpx.WriteAuthError(w, err)
			return
		}
		if req.Code != "" {
			httpx.RecordTotpCheck(true)
		}
		writeLoginResult(w, "login_totp", res)
	}
}
