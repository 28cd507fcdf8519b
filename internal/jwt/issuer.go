package jwt

import (
	"errors"
	"time"

	"github.com/google/uuid"
	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Issuer firma access tokens con HMAC-SHA256 y una clave simétrica fija.
type Issuer struct {
	Iss       string // "iss"
	Aud       string // "aud"
	Key       []byte // secreto HMAC
	AccessTTL time.Duration
}

func NewIssuer(iss, aud string, key []byte) *Issuer {
	return &Issuer{
		Iss:       iss,
		Aud:       aud,
		Key:       key,
		AccessTTL: 15 * time.Minute,
	}
}

// Identity son los datos del principal que viajan en el access token.
type Identity struct {
	PrincipalID string
	Email       string
	Name        string
	Roles       []string
}

// Errores de emisión/validación.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSigningKey = errors.New("signing key not configured")
)

// IssueAccess emite un access token para la identidad dada.
// Claims: nameid (ID del principal), email, name, jti y role (uno por rol),
// además de iss/aud/iat/nbf/exp.
func (i *Issuer) IssueAccess(id Identity, now time.Time) (string, time.Time, error) {
	if len(i.Key) == 0 {
		return "", time.Time{}, ErrNoSigningKey
	}
	now = now.UTC()
	exp := now.Add(i.AccessTTL)

	claims := jwtv5.MapClaims{
		"iss":    i.Iss,
		"aud":    i.Aud,
		"iat":    now.Unix(),
		"nbf":    now.Unix(),
		"exp":    exp.Unix(),
		"nameid": id.PrincipalID,
		"email":  id.Email,
		"name":   id.Name,
		"jti":    uuid.NewString(),
	}
	if len(id.Roles) > 0 {
		claims["role"] = id.Roles
	}

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(i.Key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}
