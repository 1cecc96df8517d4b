package config

import (
	"github.com/pkg/errors"
)

// googleConf holds the Google OAuth2 client credentials. Leaving it empty
// disables the external sign-in path entirely.
type googleConf struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

// IsSet returns a bool indicating if Google sign-in was configured or not
func (c googleConf) IsSet() bool {
	return c.ClientID != "" || c.ClientSecret != "" || c.RedirectURL != ""
}

func (c *googleConf) validate() error {
	if !c.IsSet() {
		return nil
	}
	if c.ClientID == "" || c.ClientSecret == "" || c.RedirectURL == "" {
		return errors.New("error in google conf: client_id, client_secret and redirect_url must all be set")
	}
	return nil
}
