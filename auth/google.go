package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/whisperwall/whisperwall/storage/model"
)

const (
	// ProviderGoogle is the provider name recorded on users created through
	// the Google flow; it also prefixes their synthesized username.
	ProviderGoogle = "google"

	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

	defaultExchangeTimeout = 10 * time.Second
)

// ExternalProfile is the minimal provider profile needed to bind an identity.
type ExternalProfile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// GoogleAuthenticator completes the OAuth2 authorization-code flow with
// Google and finds or creates the matching user record.
type GoogleAuthenticator struct {
	Users model.UsersStore
	OAuth *oauth2.Config
	// Timeout bounds the code exchange plus the profile fetch.
	Timeout time.Duration
	// UserInfoURL overrides the Google userinfo endpoint in tests.
	UserInfoURL string
}

// NewGoogleAuthenticator wires a GoogleAuthenticator for the given client
// credentials and callback URL.
func NewGoogleAuthenticator(users model.UsersStore, clientID, clientSecret, redirectURL string) *GoogleAuthenticator {
	return &GoogleAuthenticator{
		Users: users,
		OAuth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     google.Endpoint,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.profile",
				"https://www.googleapis.com/auth/userinfo.email",
			},
		},
	}
}

// AuthCodeURL returns the provider authorization URL the browser is sent to.
// The state nonce is checked again on the callback.
func (a *GoogleAuthenticator) AuthCodeURL(state string) string {
	return a.OAuth.AuthCodeURL(state)
}

// Callback exchanges the authorization code for the caller's profile and
// returns the bound user, creating it on first sign-in. Exchange and profile
// failures surface as ErrExternalAuthFailed; the request never hangs beyond
// the configured timeout.
func (a *GoogleAuthenticator) Callback(ctx context.Context, code string) (*model.User, error) {
	timeout := a.Timeout
	if timeout == 0 {
		timeout = defaultExchangeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	token, err := a.OAuth.Exchange(ctx, code)
	if err != nil {
		log.WithError(err).Warn("google code exchange failed")
		return nil, ErrExternalAuthFailed
	}
	profile, err := a.fetchProfile(ctx, token)
	if err != nil {
		log.WithError(err).Warn("google profile fetch failed")
		return nil, ErrExternalAuthFailed
	}
	if profile.ID == "" {
		log.Warn("google profile without id")
		return nil, ErrExternalAuthFailed
	}
	return a.Users.GetOrCreateExternal(ProviderGoogle, profile.ID)
}

func (a *GoogleAuthenticator) fetchProfile(ctx context.Context, token *oauth2.Token) (*ExternalProfile, error) {
	url := a.UserInfoURL
	if url == "" {
		url = googleUserInfoURL
	}
	resp, err := a.OAuth.Client(ctx, token).Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.WithField("status", resp.StatusCode).WithField("body", string(body)).Debug("userinfo error response")
		return nil, ErrExternalAuthFailed
	}
	var profile ExternalProfile
	if err = json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, err
	}
	return &profile, nil
}
