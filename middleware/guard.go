package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the claims a guard stored for this request.
func ClaimsFromContext(ctx context.Context) (*authcore.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*authcore.Claims)
	return claims, ok
}

// WithClaims is what the guards use to attach claims. Tests of downstream
// handlers can call it directly.
func WithClaims(ctx context.Context, claims *authcore.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// Validator is the subset of *authcore.Engine the guards need.
type Validator interface {
	ValidateAccess(ctx context.Context, token string) (*authcore.Claims, error)
	ValidateRefresh(ctx context.Context, token string) (*authcore.Claims, error)
}

// Rejector writes the response for a rejected request. The default is a
// plain-text 401.
type Rejector func(w http.ResponseWriter, r *http.Request, err error)

type options struct {
	reject Rejector
}

type Option func(*options)

// WithRejector replaces the default 401 writer, for APIs that need a JSON
// error envelope.
func WithRejector(fn Rejector) Option {
	return func(o *options) {
		if fn != nil {
			o.reject = fn
		}
	}
}

func RequireAccess(v Validator, opts ...Option) func(http.Handler) http.Handler {
	if v == nil {
		return guard(nil, opts)
	}
	return guard(v.ValidateAccess, opts)
}

func RequireRefresh(v Validator, opts ...Option) func(http.Handler) http.Handler {
	if v == nil {
		return guard(nil, opts)
	}
	return guard(v.ValidateRefresh, opts)
}

func guard(validate func(context.Context, string) (*authcore.Claims, error), opts []Option) func(http.Handler) http.Handler {
	o := options{reject: defaultReject}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validate == nil {
				o.reject(w, r, authcore.ErrEngineNotReady)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				o.reject(w, r, authcore.ErrInvalidToken)
				return
			}

			claims, err := validate(r.Context(), token)
			if err != nil {
				o.reject(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func defaultReject(w http.ResponseWriter, _ *http.Request, _ error) {
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
