package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/authcore/internal/domain/repository"
	"github.com/dropDatabas3/authcore/internal/observability/logger"
	"github.com/dropDatabas3/authcore/internal/security/cipher"
	"github.com/dropDatabas3/authcore/internal/security/password"
	"github.com/dropDatabas3/authcore/internal/security/totp"
)

// EnableTotp genera un secreto nuevo, lo guarda cifrado y devuelve el material
// de provisioning. El enrolamiento queda pendiente hasta VerifyTotp.
func (s *service) EnableTotp(ctx context.Context, principalID string) (*TotpProvisioning, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.totp"),
		logger.Op("EnableTotp"),
		logger.PrincipalID(principalID),
	)

	p, err := s.getPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if p.TotpEnabled {
		return nil, ErrTotpAlreadyEnabled
	}

	secret := totp.GenerateSecret()
	encrypted, err := s.deps.Cipher.Encrypt(secret)
	if err != nil {
		log.Error("secret encryption failed", logger.Err(err))
		return nil, fmt.Errorf("%w: encrypt totp secret", ErrCrypto)
	}

	enabled := false
	counter := int64(0)
	if err := s.deps.Principals.UpdateTotp(ctx, p.ID, repository.UpdateTotpInput{
		Secret:          &encrypted,
		Enabled:         &enabled,
		LastUsedCounter: &counter,
	}); err != nil {
		return nil, storeErr(err)
	}

	log.Info("totp enrollment started")
	return &TotpProvisioning{
		Secret:         secret,
		ManualEntryKey: totp.ManualEntryKey(secret),
		OTPAuthURL:     totp.OTPAuthURL(s.deps.TotpIssuer, p.Email, secret),
	}, nil
}

// VerifyTotp valida el primer código del enrolamiento y activa el segundo
// factor.
func (s *service) VerifyTotp(ctx context.Context, principalID, code string) error {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.totp"),
		logger.Op("VerifyTotp"),
		logger.PrincipalID(principalID),
	)

	p, err := s.getPrincipal(ctx, principalID)
	if err != nil {
		return err
	}
	if p.TotpSecret == "" {
		return ErrTotpNotSetUp
	}

	counter, err := s.verifyCode(p, code)
	if err != nil {
		return err
	}

	enabled := true
	if err := s.deps.Principals.UpdateTotp(ctx, p.ID, repository.UpdateTotpInput{
		Enabled:         &enabled,
		LastUsedCounter: &counter,
	}); err != nil {
		return storeErr(err)
	}

	log.Info("totp enabled")
	return nil
}

// DisableTotp apaga el segundo factor. Re-verifica el password (una sesión
// robada no puede apagar el 2FA sola) y revoca todas las sesiones activas
// del principal.
func (s *service) DisableTotp(ctx context.Context, principalID, pass string) error {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.totp"),
		logger.Op("DisableTotp"),
		logger.PrincipalID(principalID),
	)

	p, err := s.getPrincipal(ctx, principalID)
	if err != nil {
		return err
	}
	if !p.TotpEnabled {
		return ErrTotpNotEnabled
	}

	if pass == "" || p.PasswordHash == "" || !password.Verify(pass, p.PasswordHash) {
		return ErrInvalidCredentials
	}

	empty := ""
	disabled := false
	counter := int64(0)
	if err := s.deps.Principals.UpdateTotp(ctx, p.ID, repository.UpdateTotpInput{
		Secret:          &empty,
		Enabled:         &disabled,
		LastUsedCounter: &counter,
	}); err != nil {
		return storeErr(err)
	}

	if n, err := s.deps.Refresh.RevokeAllByPrincipal(ctx, p.ID, s.now()); err != nil {
		log.Warn("session revocation failed", logger.Err(err))
	} else if n > 0 {
		log.Info("sessions revoked", logger.Count(n))
	}

	log.Info("totp disabled")
	return nil
}

// checkTotpCode es la verificación del flujo de login: valida y persiste el
// contador consumido.
func (s *service) checkTotpCode(ctx context.Context, p *repository.Principal, code string) error {
	counter, err := s.verifyCode(p, code)
	if err != nil {
		return err
	}
	if err := s.deps.Principals.UpdateTotp(ctx, p.ID, repository.UpdateTotpInput{
		LastUsedCounter: &counter,
	}); err != nil {
		return storeErr(err)
	}
	return nil
}

// verifyCode descifra el secreto y valida el código con anti-replay.
// Devuelve el contador matcheado para persistir.
func (s *service) verifyCode(p *repository.Principal, code string) (int64, error) {
	secret, err := s.secretPlaintext(p.TotpSecret)
	if err != nil {
		return 0, err
	}
	ok, counter := totp.Verify(secret, code, s.now(), s.deps.TotpWindowSteps, p.TotpLastUsedCounter)
	if !ok {
		return 0, ErrInvalidTotpCode
	}
	return counter, nil
}

// secretPlaintext resuelve el secreto almacenado: los valores con prefijo de
// formato se descifran, los legacy sin prefijo se usan tal cual (quedaron de
// antes de la migración; ver el comando totp-migrate).
func (s *service) secretPlaintext(stored string) (string, error) {
	if stored == "" {
		return "", ErrTotpNotSetUp
	}
	if !cipher.IsEncrypted(stored) {
		return stored, nil
	}
	secret, err := s.deps.Cipher.Decrypt(stored)
	if err != nil {
		if errors.Is(err, cipher.ErrNotEncrypted) {
			return stored, nil
		}
		return "", fmt.Errorf("%w: decrypt totp secret", ErrCrypto)
	}
	return secret, nil
}

func (s *service) getPrincipal(ctx context.Context, id string) (*repository.Principal, error) {
	p, err := s.deps.Principals.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, storeErr(err)
	}
	return p, nil
}
