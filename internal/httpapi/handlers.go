package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/middleware"
)

const (
	stateCookieName = "authcore_oauth_state"
	stateCookieTTL  = 10 * time.Minute
)

type handler struct {
	engine        *authcore.Engine
	google        FederatedProvider
	frontendURL   string
	secureCookies bool
	logger        *slog.Logger
}

/*
====================================
RESPONSE DATA
====================================
*/

type userView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Enable2FA bool      `json:"enable2fa"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newUserView(u *authcore.User) *userView {
	if u == nil {
		return nil
	}
	return &userView{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Enable2FA: u.TwoFactorEnabled,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type tokensView struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type sessionView struct {
	tokensView
	User *userView `json:"user,omitempty"`
}

type twoFactorGateView struct {
	ChallengeID string `json:"challengeId"`
	Validate2FA string `json:"validate2FA"`
}

/*
====================================
PASSWORD LOGIN
====================================
*/

func (h *handler) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	switch res := result.(type) {
	case *authcore.AuthenticatedResult:
		writeOK(w, "User SignIn Successfully", sessionView{
			tokensView: tokensView{AccessToken: res.Tokens.AccessToken, RefreshToken: res.Tokens.RefreshToken},
			User:       newUserView(res.User),
		})
	case *authcore.TwoFactorRequiredResult:
		writeOK(w, res.Message, twoFactorGateView{ChallengeID: res.ChallengeID, Validate2FA: res.VerifyEndpoint})
	default:
		writeError(w, r, errors.New("unexpected login result"), h.logger)
	}
}

func (h *handler) signUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.engine.Signup(r.Context(), authcore.SignupInput{Email: req.Email, Password: req.Password, Name: req.Name})
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeOK(w, res.Message, sessionView{
		tokensView: tokensView{AccessToken: res.Tokens.AccessToken, RefreshToken: res.Tokens.RefreshToken},
		User:       newUserView(res.User),
	})
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		h.reject(w, r, authcore.ErrInvalidToken)
		return
	}

	res, err := h.engine.RefreshToken(r.Context(), claims.UserID())
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeOK(w, "Refresh Token", tokensView{AccessToken: res.Tokens.AccessToken, RefreshToken: res.Tokens.RefreshToken})
}

/*
====================================
TWO-FACTOR
====================================
*/

func (h *handler) validateTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req validateTwoFactorRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.engine.CompleteTwoFactorLogin(r.Context(), req.ChallengeID, req.Token)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeOK(w, "User SignIn Successfully", sessionView{
		tokensView: tokensView{AccessToken: res.Tokens.AccessToken, RefreshToken: res.Tokens.RefreshToken},
		User:       newUserView(res.User),
	})
}

func (h *handler) enableTwoFactor(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.subject(w, r)
	if !ok {
		return
	}

	res, err := h.engine.Enable2FA(r.Context(), userID)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeOK(w, "2FA enabled. Keep the secret key private.", map[string]string{
		"secret":          res.Secret,
		"provisioningUri": res.ProvisioningURI,
	})
}

func (h *handler) disableTwoFactor(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.subject(w, r)
	if !ok {
		return
	}

	user, err := h.engine.Disable2FA(r.Context(), userID)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeOK(w, "Disable 2FA successfully", newUserView(user))
}

func (h *handler) verifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.subject(w, r)
	if !ok {
		return
	}
	var req tokenRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.engine.Verify2FA(r.Context(), userID, req.Token)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeOK(w, "2FA verification complete", map[string]bool{"verified": res.Verified})
}

/*
====================================
FEDERATED LOGIN
====================================
*/

func (h *handler) googleLogin(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		writeErrorMessage(w, r, http.StatusNotFound, "google login is not configured")
		return
	}

	state, err := internal.NewOpaqueSecret()
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/api/v1/auth/google",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.google.AuthCodeURL(state), http.StatusFound)
}

func (h *handler) googleCallback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		writeErrorMessage(w, r, http.StatusNotFound, "google login is not configured")
		return
	}

	cookie, err := r.Cookie(stateCookieName)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		writeErrorMessage(w, r, http.StatusUnauthorized, "invalid oauth state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: "/api/v1/auth/google", MaxAge: -1})

	profile, err := h.google.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		h.logger.WarnContext(r.Context(), "federated exchange failed", slog.String("error", err.Error()))
		writeErrorMessage(w, r, http.StatusUnauthorized, "federated login failed")
		return
	}

	code, err := h.engine.FederatedLogin(r.Context(), profile)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	http.Redirect(w, r, h.frontendURL+"?code="+url.QueryEscape(code.Code), http.StatusFound)
}

func (h *handler) exchangeCode(w http.ResponseWriter, r *http.Request) {
	var req exchangeCodeRequest
	if !h.decode(w, r, &req) {
		return
	}

	pair, err := h.engine.ExchangeCodeWithToken(r.Context(), req.Code)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeOK(w, "User Fetched Successfully", tokensView{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

/*
====================================
PASSWORD RESET
====================================
*/

func (h *handler) forgetPassword(w http.ResponseWriter, r *http.Request) {
	var req forgetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.engine.ForgetPassword(r.Context(), req.Email)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeOK(w, res.Message, nil)
}

func (h *handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.engine.ResetPassword(r.Context(), req.Token, req.Password)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeOK(w, "Password reset successfully", newUserView(user))
}

/*
====================================
HELPERS
====================================
*/

func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeAndValidate(w, r, dst); err != nil {
		writeErrorMessage(w, r, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *handler) subject(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok || claims.UserID() == "" {
		h.reject(w, r, authcore.ErrInvalidToken)
		return "", false
	}
	return claims.UserID(), true
}

// reject is the guard rejector: a JSON 401, or 500 when the engine is
// missing.
func (h *handler) reject(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, authcore.ErrEngineNotReady) {
		writeError(w, r, err, h.logger)
		return
	}
	writeErrorMessage(w, r, http.StatusUnauthorized, "Unauthorized")
}
