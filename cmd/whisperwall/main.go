package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/whisperwall/whisperwall"
	"github.com/whisperwall/whisperwall/auth"
	"github.com/whisperwall/whisperwall/cmd/whisperwall/config"
	"github.com/whisperwall/whisperwall/internal/logger"
	"github.com/whisperwall/whisperwall/internal/version"
)

func main() {
	var configFile string
	if len(os.Args) > 1 {
		configFile = os.Args[1]
	}
	config.Load(configFile)
	logger.Init()
	log.WithField("version", version.VERSION).Info("Loaded Config")
	c := config.Get()

	backs, err := config.LoadStorageBackends(c.Storage)
	if err != nil {
		log.Fatal(err)
	}

	sessionStorage, err := config.LoadSessionStorage(c.Sessions)
	if err != nil {
		log.WithError(err).Fatal("could not init session storage")
	}

	cipher, err := config.LoadFieldCipher(c.Encryption)
	if err != nil {
		log.WithError(err).Fatal("could not init field encryption")
	}

	var google *auth.GoogleAuthenticator
	if c.Google.IsSet() {
		google = auth.NewGoogleAuthenticator(
			backs.Users, c.Google.ClientID, c.Google.ClientSecret, c.Google.RedirectURL,
		)
		log.Info("Loaded Google sign-in")
	}

	ww, err := whisperwall.NewWhisperWall(
		c.Server,
		c.Sessions.SessionConf(c.Server.TLS.Enabled),
		whisperwall.RateLimitConf{
			Max:     c.RateLimit.Max,
			Window:  c.RateLimit.Window.Duration(),
			Storage: sessionStorage,
		},
		backs,
		sessionStorage,
		cipher,
		google,
	)
	if err != nil {
		panic(err)
	}
	log.Info("Initialized application")

	ww.Start()
}
