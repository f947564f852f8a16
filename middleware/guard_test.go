package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/jwt"
	gjwt "github.com/golang-jwt/jwt/v5"
)

type fakeValidator struct {
	access  map[string]string
	refresh map[string]string
}

func claimsFor(userID string, kind jwt.Kind) *authcore.Claims {
	return &authcore.Claims{Kind: kind, RegisteredClaims: gjwt.RegisteredClaims{Subject: userID}}
}

func (f fakeValidator) ValidateAccess(_ context.Context, token string) (*authcore.Claims, error) {
	if id, ok := f.access[token]; ok {
		return claimsFor(id, jwt.KindAccess), nil
	}
	return nil, authcore.ErrInvalidToken
}

func (f fakeValidator) ValidateRefresh(_ context.Context, token string) (*authcore.Claims, error) {
	if id, ok := f.refresh[token]; ok {
		return claimsFor(id, jwt.KindRefresh), nil
	}
	return nil, authcore.ErrInvalidToken
}

func echoSubject() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			http.Error(w, "no claims", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(claims.UserID()))
	})
}

func serve(h http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireAccess(t *testing.T) {
	v := fakeValidator{access: map[string]string{"at": "u1"}, refresh: map[string]string{"rt": "u1"}}
	h := RequireAccess(v)(echoSubject())

	rec := serve(h, "Bearer at")
	if rec.Code != http.StatusOK || rec.Body.String() != "u1" {
		t.Fatalf("expected pass-through, got %d %q", rec.Code, rec.Body.String())
	}

	rec = serve(h, "bearer at")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected case-insensitive scheme, got %d", rec.Code)
	}

	for _, header := range []string{"", "Bearer ", "Basic at", "Bearer rt", "at"} {
		if rec := serve(h, header); rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rec.Code)
		}
	}
}

func TestRequireRefreshRejectsAccessTokens(t *testing.T) {
	v := fakeValidator{access: map[string]string{"at": "u1"}, refresh: map[string]string{"rt": "u2"}}
	h := RequireRefresh(v)(echoSubject())

	if rec := serve(h, "Bearer rt"); rec.Code != http.StatusOK || rec.Body.String() != "u2" {
		t.Fatalf("expected refresh token to pass, got %d %q", rec.Code, rec.Body.String())
	}
	if rec := serve(h, "Bearer at"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected access token to be rejected, got %d", rec.Code)
	}
}

func TestGuardCustomRejector(t *testing.T) {
	var seen error
	h := RequireAccess(fakeValidator{}, WithRejector(func(w http.ResponseWriter, _ *http.Request, err error) {
		seen = err
		w.WriteHeader(http.StatusTeapot)
	}))(echoSubject())

	rec := serve(h, "Bearer nope")
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected custom status, got %d", rec.Code)
	}
	if !errors.Is(seen, authcore.ErrInvalidToken) {
		t.Fatalf("expected rejector to receive ErrInvalidToken, got %v", seen)
	}
}

func TestGuardNilValidator(t *testing.T) {
	h := RequireAccess(nil)(echoSubject())
	if rec := serve(h, "Bearer at"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without validator, got %d", rec.Code)
	}
}
