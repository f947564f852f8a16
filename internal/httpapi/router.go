// Package httpapi is the JSON HTTP boundary over an [authcore.Engine],
// mounted under /api/v1/auth.
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// FederatedProvider is an OAuth2 identity provider such as
// federated/google.Provider.
type FederatedProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (authcore.FederatedProfile, error)
}

type Deps struct {
	Engine *authcore.Engine
	// Google is optional; without it the google routes answer 404.
	Google FederatedProvider
	// FrontendURL receives ?code=<code> after a federated login.
	FrontendURL string
	// Metrics, when set, is served at GET /metrics.
	Metrics http.Handler
	// SecureCookies marks the OAuth state cookie Secure.
	SecureCookies bool
	Logger        *slog.Logger
}

func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	h := &handler{
		engine:        deps.Engine,
		google:        deps.Google,
		frontendURL:   deps.FrontendURL,
		secureCookies: deps.SecureCookies,
		logger:        deps.Logger,
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(recovery(deps.Logger))
	r.Use(requestLogging(deps.Logger))
	r.Use(clientIP)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeOK(w, "ok", nil)
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	reject := middleware.WithRejector(h.reject)
	var tokens middleware.Validator
	if deps.Engine != nil {
		tokens = deps.Engine
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/signin", h.signIn)
		r.Post("/signup", h.signUp)
		r.Post("/validate-2fa", h.validateTwoFactor)
		r.Post("/exchange-code", h.exchangeCode)
		r.Post("/forget-password", h.forgetPassword)
		r.Post("/reset-password", h.resetPassword)
		r.Get("/google/login", h.googleLogin)
		r.Get("/google/callback", h.googleCallback)

		r.With(middleware.RequireRefresh(tokens, reject)).Post("/refresh", h.refresh)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAccess(tokens, reject))
			r.Post("/enable-2fa", h.enableTwoFactor)
			r.Post("/disable-2fa", h.disableTwoFactor)
			r.Post("/verify-2fa", h.verifyTwoFactor)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorMessage(w, r, http.StatusNotFound, "Cannot "+r.Method+" "+r.URL.Path)
	})
	return r
}

// clientIP hands the caller's address to the engine's per-IP limits. Run
// after RealIP so proxies are honored.
func clientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		next.ServeHTTP(w, r.WithContext(authcore.WithClientIP(r.Context(), ip)))
	})
}
