package handlers

import (
	"time"

	"github.com/dropDatabas3/authcore/internal/auth"
)

// TokenPairResponse es el cuerpo de toda emisión exitosa de tokens.
type TokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"` // "Bearer"
	ExpiresIn    int64  `json:"expires_in"` // segundos
}

func newTokenPairResponse(pair *auth.TokenPair, now time.Time) TokenPairResponse {
	return TokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(pair.ExpiresAt.Sub(now).Seconds()),
	}
}
