package whisperwall

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	log "github.com/sirupsen/logrus"

	"github.com/whisperwall/whisperwall/storage/model"
)

// SessionConf configures the cookie-referenced server-side sessions.
type SessionConf struct {
	// CookieName is the name of the session cookie.
	CookieName string `yaml:"cookie_name"`
	// Expiry is how long an idle session stays valid.
	Expiry time.Duration `yaml:"expiry"`
	// CookieSecure marks the cookie as https-only.
	CookieSecure bool `yaml:"cookie_secure"`
}

const (
	// Only the minimal identity needed to re-resolve the user is serialized
	// into the session; never the password hash or the secret.
	sessionKeyUserID     = "user_id"
	sessionKeyExternalID = "external_id"
	sessionKeyOAuthState = "oauth_state"

	localsUserKey = "resolved_user"
)

func newSessionStore(conf SessionConf, storage fiber.Storage) *session.Store {
	cookieName := conf.CookieName
	if cookieName == "" {
		cookieName = "whisperwall_session"
	}
	expiry := conf.Expiry
	if expiry == 0 {
		expiry = 24 * time.Hour
	}
	return session.New(
		session.Config{
			Storage:        storage,
			Expiration:     expiry,
			KeyLookup:      "cookie:" + cookieName,
			CookieHTTPOnly: true,
			CookieSecure:   conf.CookieSecure,
			CookieSameSite: "Lax",
		},
	)
}

// resolveUser reconstructs the user bound to the request's session, if any.
// External identities resolve through their external id, local accounts
// through the record id. Any resolution failure leaves the request
// unauthenticated; it never turns into a request error.
func (ww *WhisperWall) resolveUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := ww.sessions.Get(c)
		if err != nil {
			log.WithError(err).Warn("could not load session")
			return c.Next()
		}
		var u *model.User
		if extID, ok := sess.Get(sessionKeyExternalID).(string); ok && extID != "" {
			u, err = ww.users.FindByExternalID(extID)
		} else if id, ok := sess.Get(sessionKeyUserID).(uint); ok {
			u, err = ww.users.FindByID(id)
		}
		if err != nil {
			if !model.IsNotFound(err) {
				log.WithError(err).Warn("session user resolution failed, treating as unauthenticated")
			}
			u = nil
		}
		if u != nil {
			c.Locals(localsUserKey, u)
		}
		return c.Next()
	}
}

// currentUser returns the user resolved for this request, or nil.
func currentUser(c *fiber.Ctx) *model.User {
	u, _ := c.Locals(localsUserKey).(*model.User)
	return u
}

// requireAuthenticated redirects unauthenticated clients to the login page
// instead of executing the route.
func (ww *WhisperWall) requireAuthenticated(c *fiber.Ctx) error {
	if currentUser(c) == nil {
		return c.Redirect("/login", fiber.StatusFound)
	}
	return c.Next()
}

// requireAnonymous sends already-signed-in clients straight to the secrets
// wall instead of showing a login surface again.
func (ww *WhisperWall) requireAnonymous(c *fiber.Ctx) error {
	if currentUser(c) != nil {
		return c.Redirect("/secrets", fiber.StatusFound)
	}
	return c.Next()
}

// establishSession binds an authenticated user to a fresh session id. The id
// is regenerated so a pre-login cookie cannot be fixed onto the new identity.
func (ww *WhisperWall) establishSession(c *fiber.Ctx, u *model.User) error {
	sess, err := ww.sessions.Get(c)
	if err != nil {
		return err
	}
	if err = sess.Regenerate(); err != nil {
		return err
	}
	sess.Set(sessionKeyUserID, u.ID)
	if u.ExternalID != nil {
		sess.Set(sessionKeyExternalID, *u.ExternalID)
	}
	return sess.Save()
}

// logout destroys the server-side session record. It is idempotent: without
// a session, or called twice, it still ends unauthenticated at the landing
// page.
func (ww *WhisperWall) logout(c *fiber.Ctx) error {
	sess, err := ww.sessions.Get(c)
	if err == nil {
		if err = sess.Destroy(); err != nil {
			log.WithError(err).Warn("session destroy failed")
		}
	}
	return c.Redirect("/", fiber.StatusFound)
}
