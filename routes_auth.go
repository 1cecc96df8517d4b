package whisperwall

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/whisperwall/whisperwall/auth"
	"github.com/whisperwall/whisperwall/storage/model"
)

func (ww *WhisperWall) addAuthRoutes(rl RateLimitConf) {
	ww.server.Get(
		"/login", ww.requireAnonymous, func(c *fiber.Ctx) error {
			return render(c, "login", formData(c))
		},
	)
	ww.server.Post("/login", newAttemptLimiter(rl), ww.postLogin)
	ww.server.Get(
		"/register", func(c *fiber.Ctx) error {
			return render(c, "register", formData(c))
		},
	)
	ww.server.Post("/register", newAttemptLimiter(rl), ww.postRegister)
	ww.server.Get("/auth/google", ww.requireAnonymous, ww.googleInitiate)
	ww.server.Get("/auth/google/callback", ww.googleCallback)
	ww.server.Get("/logout", ww.logout)
}

// newAttemptLimiter builds a sliding-window limiter keyed by client address.
// It runs before any store lookup or password hashing, so flooding the
// credential routes stays cheap to reject.
func newAttemptLimiter(conf RateLimitConf) fiber.Handler {
	if conf.Max <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	window := conf.Window
	if window == 0 {
		window = 15 * time.Minute
	}
	return limiter.New(
		limiter.Config{
			Max:               conf.Max,
			Expiration:        window,
			Storage:           conf.Storage,
			LimiterMiddleware: limiter.SlidingWindow{},
			KeyGenerator: func(c *fiber.Ctx) string {
				// Each route keeps its own window even when the counter
				// store is shared with the other credential route.
				return c.Path() + ":" + c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return renderRateLimited(c)
			},
		},
	)
}

func (ww *WhisperWall) postLogin(c *fiber.Ctx) error {
	u, err := ww.local.Authenticate(c.FormValue("username"), c.FormValue("password"))
	if err != nil {
		if ve := auth.AsValidationError(err); ve != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ve)
		}
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return c.Redirect("/login?error=Invalid+email+or+password.", fiber.StatusFound)
		}
		return err
	}
	if err = ww.establishSession(c, u); err != nil {
		return err
	}
	return c.Redirect("/secrets", fiber.StatusFound)
}

func (ww *WhisperWall) postRegister(c *fiber.Ctx) error {
	u, err := ww.local.Register(c.FormValue("username"), c.FormValue("password"))
	if err != nil {
		if ve := auth.AsValidationError(err); ve != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ve)
		}
		if errors.Is(err, auth.ErrUsernameTaken) {
			return c.Redirect("/register?error=That+email+is+already+registered.", fiber.StatusFound)
		}
		return err
	}
	if err = ww.establishSession(c, u); err != nil {
		return err
	}
	return c.Redirect("/secrets", fiber.StatusFound)
}

func (ww *WhisperWall) googleInitiate(c *fiber.Ctx) error {
	if ww.google == nil {
		return c.Redirect("/login?error=Google+sign-in+is+not+configured.", fiber.StatusFound)
	}
	sess, err := ww.sessions.Get(c)
	if err != nil {
		return err
	}
	state, err := randomState()
	if err != nil {
		return err
	}
	sess.Set(sessionKeyOAuthState, state)
	if err = sess.Save(); err != nil {
		return err
	}
	return c.Redirect(ww.google.AuthCodeURL(state), fiber.StatusFound)
}

func (ww *WhisperWall) googleCallback(c *fiber.Ctx) error {
	if ww.google == nil {
		return c.Redirect("/login", fiber.StatusFound)
	}
	sess, err := ww.sessions.Get(c)
	if err != nil {
		return err
	}
	expectedState, _ := sess.Get(sessionKeyOAuthState).(string)
	sess.Delete(sessionKeyOAuthState)
	if err = sess.Save(); err != nil {
		return err
	}
	code := c.Query("code")
	if code == "" || expectedState == "" || c.Query("state") != expectedState {
		log.Warn("google callback with missing code or bad state")
		return c.Redirect("/login", fiber.StatusFound)
	}
	u, err := ww.google.Callback(c.UserContext(), code)
	if err != nil {
		if _, unavailable := err.(model.UnavailableError); unavailable {
			return err
		}
		return c.Redirect("/login", fiber.StatusFound)
	}
	if err = ww.establishSession(c, u); err != nil {
		return err
	}
	return c.Redirect("/secrets", fiber.StatusFound)
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
