package jwt

import (
	"fmt"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

func (i *Issuer) keyfunc(t *jwtv5.Token) (any, error) {
	// El método permitido ya se restringe con WithValidMethods; esto cubre
	// un alg HMAC distinto (HS384/HS512) colado en el header.
	if t.Method.Alg() != jwtv5.SigningMethodHS256.Alg() {
		return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
	}
	return i.Key, nil
}

// Parse valida firma, método (sólo HS256), issuer, audience y vigencia.
// Devuelve las claims como map[string]any.
func (i *Issuer) Parse(token string) (map[string]any, error) {
	tok, err := jwtv5.Parse(token, i.keyfunc,
		jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithIssuer(i.Iss),
		jwtv5.WithAudience(i.Aud),
	)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseIgnoringExpiry valida firma y método pero NO la vigencia.
// Es el parse del flujo de refresh: el access token vencido sigue siendo la
// prueba de identidad, el refresh token aporta la frescura.
func (i *Issuer) ParseIgnoringExpiry(token string) (map[string]any, error) {
	parser := jwtv5.NewParser(
		jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithoutClaimsValidation(),
	)
	tok, err := parser.Parse(token, i.keyfunc)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Subject extrae el claim "nameid" (ID del principal) de un set de claims.
func Subject(claims map[string]any) string {
	s, _ := claims["nameid"].(string)
	return s
}
