package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	jwtx "github.com/dropDatabas3/authcore/internal/jwt"
	"github.com/dropDatabas3/authcore/internal/rate"
)

// RouterDeps agrupa lo que el router necesita para armar los endpoints.
type RouterDeps struct {
	Issuer *jwtx.Issuer

	// LoginLimiter limita intentos de login por IP. nil desactiva.
	LoginLimiter rate.Limiter

	// Metrics es el handler de /metrics; nil lo omite.
	Metrics http.Handler

	// Ready reporta si las dependencias (store, cache) responden.
	Ready func() error

	// Handlers de auth, inyectados para no acoplar este paquete al de handlers.
	Register      http.HandlerFunc
	Login         http.HandlerFunc
	LoginWithTotp http.HandlerFunc
	Refresh       http.HandlerFunc
	TotpEnable    http.HandlerFunc
	TotpVerify    http.HandlerFunc
	TotpDisable   http.HandlerFunc
}

// NewRouter arma el árbol de rutas con middlewares de request scope y métricas.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(WithRequestScope)
	r.Use(WithMetrics)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(); err != nil {
				WriteError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
				return
			}
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	loginLimit := WithRateLimit(d.LoginLimiter, func(r *http.Request) string {
		return "login:" + RemoteIP(r)
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", d.Register)
		r.With(loginLimit).Post("/login", d.Login)
		r.With(loginLimit).Post("/login-with-totp", d.LoginWithTotp)
		r.Post("/refresh", d.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.Issuer))
			r.Post("/totp/enable", d.TotpEnable)
			r.Post("/totp/verify", d.TotpVerify)
			r.Post("/totp/disable", d.TotpDisable)
		})
	})

	return r
}
