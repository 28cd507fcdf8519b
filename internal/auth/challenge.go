package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dropDatabas3/authcore/internal/cache"
	"github.com/dropDatabas3/authcore/internal/domain/repository"
	tokens "github.com/dropDatabas3/authcore/internal/security/token"
)

// twofaChallenge es lo que se cachea entre el primer y el segundo paso del
// login con TOTP. La key es un token opaco aleatorio, NO derivable del email.
type twofaChallenge struct {
	PrincipalID string    `json:"principal_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func challengeKey(token string) string {
	// se cachea bajo el hash para que un dump del cache no exponga tokens usables
	return "2fa:challenge:" + tokens.SHA256Hex(token)
}

// createChallenge emite el token del challenge y lo cachea con TTL corto.
func (s *service) createChallenge(ctx context.Context, principalID string) (string, error) {
	token, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return "", fmt.Errorf("%w: generate challenge token", ErrCrypto)
	}
	payload, err := json.Marshal(twofaChallenge{
		PrincipalID: principalID,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal challenge", ErrCrypto)
	}
	if err := s.deps.Cache.Set(ctx, challengeKey(token), string(payload), s.deps.ChallengeTTL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return token, nil
}

// consumeChallenge resuelve y quema el challenge (single-use).
func (s *service) consumeChallenge(ctx context.Context, token string) (*repository.Principal, error) {
	key := challengeKey(token)
	payload, err := s.deps.Cache.Get(ctx, key)
	if err != nil {
		if cache.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	_ = s.deps.Cache.Delete(ctx, key)

	var ch twofaChallenge
	if err := json.Unmarshal([]byte(payload), &ch); err != nil {
		return nil, ErrInvalidCredentials
	}
	p, err := s.getPrincipal(ctx, ch.PrincipalID)
	if err != nil {
		return nil, err
	}
	if p.IsDisabled() {
		return nil, ErrInvalidCredentials
	}
	return p, nil
}
