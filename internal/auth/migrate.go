package auth

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/authcore/internal/domain/repository"
	"github.com/dropDatabas3/authcore/internal/observability/logger"
	"github.com/dropDatabas3/authcore/internal/security/cipher"
)

// MigrateLegacySecret cifra el secreto TOTP de un principal si todavía está
// guardado en texto plano (sin prefijo de formato). Idempotente: un secreto
// ya cifrado no se toca. Retorna true si hubo migración.
func MigrateLegacySecret(ctx context.Context, principals repository.PrincipalRepository, c *cipher.Cipher, principalID string) (bool, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.totp"),
		logger.Op("MigrateLegacySecret"),
		logger.PrincipalID(principalID),
	)

	p, err := principals.GetByID(ctx, principalID)
	if err != nil {
		return false, err
	}
	if p.TotpSecret == "" || cipher.IsEncrypted(p.TotpSecret) {
		return false, nil
	}

	encrypted, err := c.Encrypt(p.TotpSecret)
	if err != nil {
		return false, fmt.Errorf("%w: encrypt legacy secret", ErrCrypto)
	}
	if err := principals.UpdateTotp(ctx, p.ID, repository.UpdateTotpInput{Secret: &encrypted}); err != nil {
		return false, storeErr(err)
	}

	log.Info("legacy totp secret migrated")
	return true, nil
}
