// Package google resolves a Google OAuth2 login into an
// [authcore.FederatedProfile] for [authcore.Engine.FederatedLogin].
package google

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const defaultUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

var (
	ErrExchangeFailed   = errors.New("google: code exchange failed")
	ErrProfileFetch     = errors.New("google: userinfo request failed")
	ErrEmailNotVerified = errors.New("google: email not verified")
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// Endpoint and UserInfoURL default to Google's; tests override them.
	Endpoint    oauth2.Endpoint
	UserInfoURL string
}

type Provider struct {
	oauth       *oauth2.Config
	userInfoURL string
}

type userInfo struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

func New(cfg Config) (*Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, errors.New("google: client id, secret and redirect url are required")
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "email", "profile"}
	}
	if cfg.Endpoint.AuthURL == "" {
		cfg.Endpoint = endpoints.Google
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultUserInfoURL
	}
	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     cfg.Endpoint,
		},
		userInfoURL: cfg.UserInfoURL,
	}, nil
}

// AuthCodeURL is where the login route redirects the browser.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange trades the callback code for a token and reads the profile.
// Unverified Google emails are rejected.
func (p *Provider) Exchange(ctx context.Context, code string) (authcore.FederatedProfile, error) {
	if code == "" {
		return authcore.FederatedProfile{}, fmt.Errorf("%w: empty code", ErrExchangeFailed)
	}
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return authcore.FederatedProfile{}, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, http.NoBody)
	if err != nil {
		return authcore.FederatedProfile{}, fmt.Errorf("%w: %v", ErrProfileFetch, err)
	}
	resp, err := p.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return authcore.FederatedProfile{}, fmt.Errorf("%w: %v", ErrProfileFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return authcore.FederatedProfile{}, fmt.Errorf("%w: status %d", ErrProfileFetch, resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return authcore.FederatedProfile{}, fmt.Errorf("%w: %v", ErrProfileFetch, err)
	}
	if strings.TrimSpace(info.Email) == "" {
		return authcore.FederatedProfile{}, fmt.Errorf("%w: profile has no email", ErrProfileFetch)
	}
	if !info.EmailVerified {
		return authcore.FederatedProfile{}, ErrEmailNotVerified
	}
	return authcore.FederatedProfile{Email: info.Email, Name: info.Name}, nil
}

// NewState returns a random value for the OAuth2 state parameter.
func NewState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
