// Package auth implementa el núcleo de autenticación: registro, login con
// password, segundo factor TOTP y rotación de refresh tokens.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/authcore/internal/cache"
	"github.com/dropDatabas3/authcore/internal/domain/repository"
	jwtx "github.com/dropDatabas3/authcore/internal/jwt"
	"github.com/dropDatabas3/authcore/internal/observability/logger"
	"github.com/dropDatabas3/authcore/internal/security/cipher"
	"github.com/dropDatabas3/authcore/internal/security/password"
	tokens "github.com/dropDatabas3/authcore/internal/security/token"
)

// DefaultRole se asigna a todo principal nuevo.
const DefaultRole = "User"

// Service define las operaciones de autenticación.
type Service interface {
	Register(ctx context.Context, in RegisterInput) (*TokenPair, error)
	Login(ctx context.Context, email, pass string) (*LoginResult, error)
	LoginWithTotp(ctx context.Context, in LoginWithTotpInput) (*LoginResult, error)
	Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenPair, error)
	EnableTotp(ctx context.Context, principalID string) (*TotpProvisioning, error)
	VerifyTotp(ctx context.Context, principalID, code string) error
	DisableTotp(ctx context.Context, principalID, pass string) error
}

// Deps contiene las dependencias del service.
type Deps struct {
	Principals repository.PrincipalRepository
	Refresh    repository.RefreshRepository
	Issuer     *jwtx.Issuer
	Cipher     *cipher.Cipher
	Cache      cache.Client

	Policy     password.Policy
	HashParams password.Params // zero value => password.Default

	TotpIssuer      string
	TotpWindowSteps int // default 1

	RefreshTTL   time.Duration // default 168h
	ChallengeTTL time.Duration // default 5m

	// Clock permite inyectar el tiempo en tests. nil => time.Now.
	Clock func() time.Time
}

type service struct {
	deps Deps
}

// NewService crea el service con defaults saneados.
func NewService(deps Deps) Service {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.HashParams == (password.Params{}) {
		deps.HashParams = password.Default
	}
	if deps.TotpWindowSteps <= 0 {
		deps.TotpWindowSteps = 1
	}
	if deps.RefreshTTL <= 0 {
		deps.RefreshTTL = 168 * time.Hour
	}
	if deps.ChallengeTTL <= 0 {
		deps.ChallengeTTL = 5 * time.Minute
	}
	if deps.TotpIssuer == "" && deps.Issuer != nil {
		deps.TotpIssuer = deps.Issuer.Iss
	}
	return &service{deps: deps}
}

// ─── DTOs ───

type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

type LoginWithTotpInput struct {
	Email    string
	Password string
	Code     string
	// ChallengeToken permite completar el segundo paso sin reenviar el
	// password, presentando el token opaco devuelto por el primer paso.
	ChallengeToken string
}

// TokenPair es el resultado de toda emisión exitosa.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// LoginResult distingue el login directo del que queda pendiente de TOTP.
type LoginResult struct {
	RequiresTwoFactor bool
	ChallengeToken    string
	Pair              *TokenPair // nil cuando RequiresTwoFactor
}

// TotpProvisioning es el material para enrolar la app autenticadora.
type TotpProvisioning struct {
	Secret         string
	ManualEntryKey string
	OTPAuthURL     string
}

// ─── Register ───

func (s *service) Register(ctx context.Context, in RegisterInput) (*TokenPair, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth"),
		logger.Op("Register"),
	)

	email := strings.TrimSpace(strings.ToLower(in.Email))
	name := strings.TrimSpace(in.Name)
	if email == "" || in.Password == "" {
		return nil, ErrInvalidCredentials
	}

	if ok, reasons := s.deps.Policy.Validate(in.Password); !ok {
		log.Debug("weak password rejected", logger.Count(len(reasons)))
		return nil, &WeakPasswordError{Reasons: reasons}
	}

	hash, err := password.Hash(s.deps.HashParams, in.Password)
	if err != nil {
		log.Error("password hash failed", logger.Err(err))
		return nil, fmt.Errorf("%w: hash password", ErrCrypto)
	}

	p, err := s.deps.Principals.Create(ctx, repository.CreatePrincipalInput{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Roles:        []string{DefaultRole},
	})
	if err != nil {
		if repository.IsConflict(err) {
			log.Debug("duplicate email", logger.Email(email))
			return nil, ErrDuplicateEmail
		}
		log.Error("create principal failed", logger.Err(err))
		return nil, storeErr(err)
	}

	log.Info("principal registered", logger.PrincipalID(p.ID))
	return s.issuePair(ctx, p)
}

// ─── Login ───

func (s *service) Login(ctx context.Context, email, pass string) (*LoginResult, error) {
	return s.LoginWithTotp(ctx, LoginWithTotpInput{Email: email, Password: pass})
}

// LoginWithTotp es el flujo de login unificado. Sin código y sin TOTP
// habilitado emite tokens directo; con TOTP habilitado y sin código devuelve
// un challenge; con código completa el segundo factor.
func (s *service) LoginWithTotp(ctx context.Context, in LoginWithTotpInput) (*LoginResult, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth"),
		logger.Op("Login"),
	)

	var p *repository.Principal
	var err error

	if in.ChallengeToken != "" && in.Code != "" {
		p, err = s.consumeChallenge(ctx, in.ChallengeToken)
		if err != nil {
			return nil, err
		}
	} else {
		p, err = s.checkCredentials(ctx, in.Email, in.Password)
		if err != nil {
			return nil, err
		}
	}

	log = log.With(logger.PrincipalID(p.ID))

	if p.TotpEnabled {
		if in.Code == "" {
			token, err := s.createChallenge(ctx, p.ID)
			if err != nil {
				log.Error("challenge creation failed", logger.Err(err))
				return nil, err
			}
			log.Info("login pending second factor")
			return &LoginResult{RequiresTwoFactor: true, ChallengeToken: token}, nil
		}
		if err := s.checkTotpCode(ctx, p, in.Code); err != nil {
			log.Debug("totp code rejected")
			return nil, err
		}
	}

	if err := s.deps.Principals.TouchLastLogin(ctx, p.ID, s.now()); err != nil {
		// no bloquea el login
		log.Warn("touch last login failed", logger.Err(err))
	}

	pair, err := s.issuePair(ctx, p)
	if err != nil {
		return nil, err
	}
	log.Info("login successful")
	return &LoginResult{Pair: pair}, nil
}

// checkCredentials resuelve el principal por email y verifica el password.
// Email desconocido, password incorrecto y cuenta deshabilitada devuelven el
// MISMO error.
func (s *service) checkCredentials(ctx context.Context, email, pass string) (*repository.Principal, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || pass == "" {
		return nil, ErrInvalidCredentials
	}
	p, err := s.deps.Principals.GetByEmail(ctx, email)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, storeErr(err)
	}
	if p.IsDisabled() {
		return nil, ErrInvalidCredentials
	}
	if p.PasswordHash == "" || !password.Verify(pass, p.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return p, nil
}

// ─── Refresh ───

func (s *service) Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenPair, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth"),
		logger.Op("Refresh"),
	)

	accessToken = strings.TrimSpace(accessToken)
	refreshToken = strings.TrimSpace(refreshToken)
	if accessToken == "" || refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}

	// El access token vencido sigue siendo la prueba de identidad: firma y
	// alg se validan, la vigencia no.
	claims, err := s.deps.Issuer.ParseIgnoringExpiry(accessToken)
	if err != nil {
		log.Debug("access token rejected", logger.Err(err))
		return nil, ErrInvalidRefreshToken
	}
	principalID := jwtx.Subject(claims)
	if principalID == "" {
		return nil, ErrInvalidRefreshToken
	}

	rec, err := s.deps.Refresh.GetByHash(ctx, tokens.SHA256Hex(refreshToken))
	if err != nil {
		if repository.IsNotFound(err) {
			log.Debug("refresh token not found")
			return nil, ErrInvalidRefreshToken
		}
		return nil, storeErr(err)
	}

	now := s.now()
	if rec.PrincipalID != principalID || rec.RevokedAt != nil || !now.Before(rec.ExpiresAt) {
		log.Debug("refresh token revoked, expired or foreign")
		return nil, ErrInvalidRefreshToken
	}

	p, err := s.deps.Principals.GetByID(ctx, rec.PrincipalID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, storeErr(err)
	}
	if p.IsDisabled() {
		log.Info("principal disabled", logger.PrincipalID(p.ID))
		return nil, ErrInvalidRefreshToken
	}

	// Revocar ANTES de emitir: el Revoke es compare-and-set, así que de dos
	// rotaciones concurrentes con el mismo token sólo una pasa de acá.
	if err := s.deps.Refresh.Revoke(ctx, rec.ID, now); err != nil {
		if repository.IsNotFound(err) {
			log.Debug("lost revoke race")
			return nil, ErrInvalidRefreshToken
		}
		return nil, storeErr(err)
	}

	pair, err := s.issuePair(ctx, p)
	if err != nil {
		return nil, err
	}
	log.Info("refresh successful", logger.PrincipalID(p.ID))
	return pair, nil
}

// ─── helpers ───

// issuePair emite access + refresh y persiste el hash del refresh.
func (s *service) issuePair(ctx context.Context, p *repository.Principal) (*TokenPair, error) {
	now := s.now()
	access, exp, err := s.deps.Issuer.IssueAccess(jwtx.Identity{
		PrincipalID: p.ID,
		Email:       p.Email,
		Name:        p.Name,
		Roles:       p.Roles,
	}, now)
	if err != nil {
		return nil, fmt.Errorf("%w: sign access token", ErrCrypto)
	}

	rawRefresh, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return nil, fmt.Errorf("%w: generate refresh token", ErrCrypto)
	}

	_, err = s.deps.Refresh.Create(ctx, repository.CreateRefreshInput{
		PrincipalID: p.ID,
		TokenHash:   tokens.SHA256Hex(rawRefresh),
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.deps.RefreshTTL),
	})
	if err != nil {
		return nil, storeErr(err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: rawRefresh,
		ExpiresAt:    exp,
	}, nil
}

func (s *service) now() time.Time {
	return s.deps.Clock().UTC()
}

// storeErr clasifica errores del repositorio que no son NotFound/Conflict
// como indisponibilidad del store.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if repository.IsNotFound(err) || repository.IsConflict(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
