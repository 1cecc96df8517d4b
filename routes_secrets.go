package whisperwall

import (
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

func (ww *WhisperWall) addSecretsRoutes() {
	ww.server.Get(
		"/", func(c *fiber.Ctx) error {
			return render(c, "home", fiber.Map{"User": currentUser(c)})
		},
	)
	ww.server.Get("/secrets", ww.requireAuthenticated, ww.getSecrets)
	ww.server.Get(
		"/submit", ww.requireAuthenticated, func(c *fiber.Ctx) error {
			return render(c, "submit", fiber.Map{"User": currentUser(c)})
		},
	)
	ww.server.Post("/submit", ww.requireAuthenticated, ww.postSubmit)
}

// wallEntry is one revealed secret on the shared wall. The wall is
// deliberately anonymous: secrets are shown, their authors are not.
type wallEntry struct {
	Secret string
}

// getSecrets renders every user's secret to any authenticated user. That is
// the point of the app: a shared anonymous-ish wall, not a per-user vault.
func (ww *WhisperWall) getSecrets(c *fiber.Ctx) error {
	users, err := ww.users.ListAll()
	if err != nil {
		return err
	}
	entries := make([]wallEntry, 0, len(users))
	for _, u := range users {
		if !u.HasSecret() {
			continue
		}
		plain, err := ww.secrets.DecryptField(u.Secret)
		if err != nil {
			// Fail closed: a bundle that does not authenticate (tampering,
			// key change) is omitted from the wall, never shown corrupted.
			log.WithError(err).WithField("user", u.ID).Error("could not decrypt stored secret")
			continue
		}
		entries = append(entries, wallEntry{Secret: plain})
	}
	return render(
		c, "secrets", fiber.Map{
			"User":    currentUser(c),
			"Entries": entries,
		},
	)
}

func (ww *WhisperWall) postSubmit(c *fiber.Ctx) error {
	stored, err := ww.secrets.EncryptField(c.FormValue("secret"))
	if err != nil {
		return err
	}
	if err = ww.users.SetSecret(currentUser(c).ID, stored); err != nil {
		return err
	}
	return c.Redirect("/secrets", fiber.StatusFound)
}
