// Package whisperwall implements a small web application where users
// register with an email/password or sign in with Google, store one secret,
// and browse the wall of everybody's secrets.
package whisperwall

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/session"
	log "github.com/sirupsen/logrus"

	"github.com/whisperwall/whisperwall/auth"
	"github.com/whisperwall/whisperwall/internal/fieldcrypt"
	"github.com/whisperwall/whisperwall/storage/model"
)

// FiberServerConfig is the fiber.Config that is used to init the http fiber.App
var FiberServerConfig = fiber.Config{
	ReadTimeout:    3 * time.Second,
	WriteTimeout:   20 * time.Second,
	IdleTimeout:    150 * time.Second,
	ReadBufferSize: 8192,
	ErrorHandler:   handleError,
	Network:        "tcp",
}

// RateLimitConf configures the sliding-window limiter on the credential routes.
type RateLimitConf struct {
	// Max attempts per client address per window. 0 disables the limiter.
	Max int `yaml:"max"`
	// Window is the sliding window length.
	Window time.Duration `yaml:"window"`
	// Storage optionally shares the counter store across instances; when nil
	// the limiter keeps its counters in process memory.
	Storage fiber.Storage `yaml:"-"`
}

// WhisperWall is the assembled web application.
type WhisperWall struct {
	server     *fiber.App
	serverConf ServerConf

	sessions *session.Store
	users    model.UsersStore
	local    auth.LocalAuthenticator
	google   *auth.GoogleAuthenticator
	secrets  *fieldcrypt.Cipher
}

// NewWhisperWall wires the application: session middleware, access gates,
// the credential routes and the secrets wall. A nil secrets cipher stores
// secrets in cleartext (an explicit deployment mode, not a fallback).
func NewWhisperWall(
	serverConf ServerConf,
	sessionConf SessionConf,
	rateLimit RateLimitConf,
	storages model.Backends,
	sessionStorage fiber.Storage,
	secrets *fieldcrypt.Cipher,
	google *auth.GoogleAuthenticator,
) (*WhisperWall, error) {
	if tps := serverConf.TrustedProxies; len(tps) > 0 {
		FiberServerConfig.TrustedProxies = serverConf.TrustedProxies
		FiberServerConfig.EnableTrustedProxyCheck = true
	}
	FiberServerConfig.ProxyHeader = serverConf.ForwardedIPHeader
	server := fiber.New(FiberServerConfig)
	server.Use(recover.New())
	server.Use(compress.New())
	server.Use(logger.New())
	server.Use(requestid.New())

	ww := &WhisperWall{
		server:     server,
		serverConf: serverConf,
		sessions:   newSessionStore(sessionConf, sessionStorage),
		users:      storages.Users,
		local:      auth.LocalAuthenticator{Users: storages.Users},
		google:     google,
		secrets:    secrets,
	}
	server.Use(ww.resolveUser())

	ww.addAuthRoutes(rateLimit)
	ww.addSecretsRoutes()
	return ww, nil
}

// HttpHandlerFunc returns an http.HandlerFunc for serving all the necessary endpoints
func (ww *WhisperWall) HttpHandlerFunc() http.HandlerFunc {
	handler := adaptor.FiberApp(ww.server)
	return func(w http.ResponseWriter, r *http.Request) {
		// The fasthttp bridge routes by the raw request line. Requests built
		// in code via http.NewRequest carry none and would all land on "/",
		// so reconstruct it from the parsed URL.
		if r.RequestURI == "" {
			r.RequestURI = r.URL.RequestURI()
		}
		handler(w, r)
	}
}

// Listen starts an http server at the specific address for serving all the
// necessary endpoints
func (ww *WhisperWall) Listen(addr string) error {
	return ww.server.Listen(addr)
}

// Start serves the application according to the server configuration,
// blocking until the server exits.
func (ww *WhisperWall) Start() {
	conf := ww.serverConf
	if !conf.TLS.Enabled {
		log.WithField("port", conf.Port).Info("TLS is disabled starting http server")
		log.WithError(ww.server.Listen(fmt.Sprintf("%s:%d", conf.IPListen, conf.Port))).Fatal()
	}
	// TLS enabled
	if conf.TLS.RedirectHTTP {
		httpServer := fiber.New(FiberServerConfig)
		httpServer.All(
			"*", func(ctx *fiber.Ctx) error {
				//goland:noinspection HttpUrlsUsage
				return ctx.Redirect(
					strings.Replace(ctx.Request().URI().String(), "http://", "https://", 1),
					fiber.StatusPermanentRedirect,
				)
			},
		)
		log.Info("TLS and http redirect enabled, starting redirect server on port 80")
		go func() {
			log.WithError(httpServer.Listen(":80")).Fatal()
		}()
	}
	log.Info("TLS enabled, starting https server on port 443")
	log.WithError(ww.server.ListenTLS(":443", conf.TLS.Cert, conf.TLS.Key)).Fatal()
}

// handleError is the central fiber error handler. Infrastructure failures are
// logged with detail but rendered as a generic failure page; nothing internal
// reaches the client and no request ever crashes the process.
func handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if e, ok := err.(*fiber.Error); ok {
		fiberErr = e
		code = e.Code
	}
	if code >= fiber.StatusInternalServerError {
		log.WithError(err).WithField("path", c.Path()).Error("request failed")
	}
	if fiberErr != nil && code < fiber.StatusInternalServerError {
		return c.Status(code).SendString(fiberErr.Message)
	}
	return renderErrorPage(c, code)
}
