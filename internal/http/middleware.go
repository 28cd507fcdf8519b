package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	jwtx "github.com/dropDatabas3/authcore/internal/jwt"
	"github.com/dropDatabas3/authcore/internal/observability/logger"
	"github.com/dropDatabas3/authcore/internal/rate"
)

type principalKey struct{}

// PrincipalFromContext devuelve el ID del principal autenticado, si hay.
func PrincipalFromContext(ctx context.Context) string {
	v, _ := ctx.Value(principalKey{}).(string)
	return v
}

// WithRequestScope inyecta request_id y un logger scoped en el contexto.
func WithRequestScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", rid)

		log := logger.L().With(logger.RequestID(rid))
		ctx := logger.ToContext(r.Context(), log)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		log.Debug("request done",
			logger.Method(r.Method),
			logger.Path(r.URL.Path),
			logger.Duration(time.Since(start)),
		)
	})
}

// WithAuth exige un bearer token válido y deja el principal en el contexto.
func WithAuth(issuer *jwtx.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(strings.ToLower(raw), "bearer ") {
				WriteError(w, http.StatusUnauthorized, "missing_token", "bearer token required")
				return
			}
			claims, err := issuer.Parse(strings.TrimSpace(raw[len("bearer "):]))
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "invalid_token", "invalid or expired token")
				return
			}
			pid := jwtx.Subject(claims)
			if pid == "" {
				WriteError(w, http.StatusUnauthorized, "invalid_token", "invalid or expired token")
				return
			}
			ctx := context.WithValue(r.Context(), principalKey{}, pid)
			ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.PrincipalID(pid)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithRateLimit limita por key (extraída del request) con ventana fija.
// limiter nil desactiva el límite.
func WithRateLimit(limiter rate.Limiter, keyFn func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := limiter.Allow(r.Context(), keyFn(r))
			if err != nil {
				// el limiter caído no voltea el login
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				w.Header().Set("Retry-After", res.RetryAfter.Truncate(time.Second).String())
				WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RemoteIP extrae la IP del cliente (X-Forwarded-For o RemoteAddr).
func RemoteIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		if i := strings.IndexByte(xf, ','); i > 0 {
			return strings.TrimSpace(xf[:i])
		}
		return strings.TrimSpace(xf)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i > 0 {
		host = host[:i]
	}
	return host
}
