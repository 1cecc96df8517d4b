package whisperwall

import (
	"crypto/rand"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/steinfletcher/apitest"
	jsonpath "github.com/steinfletcher/apitest-jsonpath"
	"github.com/stretchr/testify/require"

	"github.com/whisperwall/whisperwall/internal/fieldcrypt"
	"github.com/whisperwall/whisperwall/storage"
	"github.com/whisperwall/whisperwall/storage/model"
)

func newTestApp(t *testing.T, rateLimitMax int, rateLimitWindow time.Duration) (*storage.MemoryUsersStorage, http.Handler) {
	t.Helper()
	key := make([]byte, fieldcrypt.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	cipher, err := fieldcrypt.New(key)
	require.NoError(t, err)

	users := storage.NewMemoryUsersStorage()
	ww, err := NewWhisperWall(
		ServerConf{Port: 3000},
		SessionConf{Expiry: time.Hour},
		RateLimitConf{Max: rateLimitMax, Window: rateLimitWindow},
		model.Backends{Users: users},
		nil, // in-memory sessions
		cipher,
		nil, // no google in these tests
	)
	require.NoError(t, err)
	return users, ww.HttpHandlerFunc()
}

func sessionCookie(t *testing.T, res *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range res.Cookies() {
		if c.Name == "whisperwall_session" && c.Value != "" {
			return c
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

func bodyContains(t *testing.T, substr string) func(*http.Response, *http.Request) error {
	return func(res *http.Response, _ *http.Request) error {
		defer res.Body.Close()
		body, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), substr)
		return nil
	}
}

// The http.Handler bridge must route by the declared path even for requests
// that carry no raw request line (http.NewRequest leaves RequestURI empty,
// and the fasthttp adaptor would then treat everything as "/").
func TestHttpHandlerRoutesByPath(t *testing.T) {
	_, h := newTestApp(t, 100, time.Minute)

	apitest.New().Handler(h).
		Post("/register").
		FormData("username", "fern@example.com").
		FormData("password", "12345678").
		Expect(t).
		Status(http.StatusFound).
		Header("Location", "/secrets").
		End()
}

func TestGatesRedirectUnauthenticated(t *testing.T) {
	users, h := newTestApp(t, 100, time.Minute)

	for _, path := range []string{"/secrets", "/submit"} {
		apitest.New().Handler(h).
			Get(path).
			Expect(t).
			Status(http.StatusFound).
			Header("Location", "/login").
			End()
	}
	apitest.New().Handler(h).
		Post("/submit").
		FormData("secret", "should not be stored").
		Expect(t).
		Status(http.StatusFound).
		Header("Location", "/login").
		End()

	count, err := users.Count()
	require.NoError(t, err)
	require.Zero(t, count, "gated POST must not have any effect")
}

func TestRegisterValidationCollectsAllErrors(t *testing.T) {
	_, h := newTestApp(t, 100, time.Minute)

	apitest.New().Handler(h).
		Post("/register").
		FormData("username", "not-an-email").
		FormData("password", "short").
		Expect(t).
		Status(http.StatusBadRequest).
		Assert(jsonpath.Len("$.errors", 2)).
		End()
}

func TestRegisterLoginSubmitSecretsFlow(t *testing.T) {
	users, h := newTestApp(t, 100, time.Minute)

	res := apitest.New().Handler(h).
		Post("/register").
		FormData("username", "alice@example.com").
		FormData("password", "12345678").
		Expect(t).
		Status(http.StatusFound).
		Header("Location", "/secrets").
		End()
	cookie := sessionCookie(t, res.Response)

	// The fresh session resolves the user; the wall is still empty.
	apitest.New().Handler(h).
		Get("/secrets").
		Cookies(apitest.NewCookie(cookie.Name).Value(cookie.Value)).
		Expect(t).
		Status(http.StatusOK).
		Assert(bodyContains(t, "Nobody has shared a secret yet")).
		End()

	// The login page bounces an authenticated client to the wall.
	apitest.New().Handler(h).
		Get("/login").
		Cookies(apitest.NewCookie(cookie.Name).Value(cookie.Value)).
		Expect(t).
		Status(http.StatusFound).
		Header("Location", "/secrets").
		End()

	apitest.New().Handler(h).
		Post("/submit").
		Cookies(apitest.NewCookie(cookie.Name).Value(cookie.Value)).
		FormData("secret", "i still use tabs").
		Expect(t).
		Status(http.StatusFound).
		Header("Location", "/secrets").
		End()

	apitest.New().Handler(h).
		Get("/secrets").
		Cookies(apitest.NewCookie(cookie.Name).Value(cookie.Value)).
		Expect(t).
		Status(http.StatusOK).
		Assert(bodyContains(t, "i still use tabs")).
		End()

	// At rest the secret is an opaque bundle, not the plaintext.
	u, err := users.FindByUsername("alice@example.com")
	require.NoError(t, err)
	require.True(t, u.HasSecret())
	require.NotContains(t, u.Secret, "i still use tabs")
}

func TestLoginRejectsBadCredentialsGenerically(t *testing.T) {
	_, h := newTestApp(t, 100, time.Minute)

	apitest.New().Handler(h).
		Post("/register").
		FormData("username", "bob@example.com").
		FormData("password", "12345678").
		Expect(t).
		Status(http.StatusFound).
		End()

	wrongPassword := apitest.New().Handler(h).
		Post("/login").
		FormData("username", "bob@example.com").
		FormData("password", "12345679").
		Expect(t).
		Status(http.StatusFound).
		End()
	unknownUser := apitest.New().Handler(h).
		Post("/login").
		FormData("username", "nonexistent@x.com").
		FormData("password", "12345678").
		Expect(t).
		Status(http.StatusFound).
		End()
	require.Equal(
		t,
		wrongPassword.Response.Header.Get("Location"),
		unknownUser.Response.Header.Get("Location"),
		"the two failure modes must be observably identical",
	)
	require.True(t, strings.HasPrefix(wrongPassword.Response.Header.Get("Location"), "/login"))
}

func TestLoginAttemptsAreRateLimited(t *testing.T) {
	_, h := newTestApp(t, 2, time.Minute)

	for i := 0; i < 2; i++ {
		apitest.New().Handler(h).
			Post("/login").
			FormData("username", "eve@example.com").
			FormData("password", "12345678").
			Expect(t).
			Status(http.StatusFound).
			End()
	}
	apitest.New().Handler(h).
		Post("/login").
		FormData("username", "eve@example.com").
		FormData("password", "12345678").
		Expect(t).
		Status(http.StatusTooManyRequests).
		End()

	// The register route has its own window and is still open.
	apitest.New().Handler(h).
		Post("/register").
		FormData("username", "eve@example.com").
		FormData("password", "12345678").
		Expect(t).
		Status(http.StatusFound).
		End()
}

func TestLoginRateLimitResetsAfterWindow(t *testing.T) {
	_, h := newTestApp(t, 1, 100*time.Millisecond)

	attempt := func() *apitest.Result {
		res := apitest.New().Handler(h).
			Post("/login").
			FormData("username", "frank@example.com").
			FormData("password", "12345678").
			Expect(t).
			End()
		return &res
	}

	require.Equal(t, http.StatusFound, attempt().Response.StatusCode)
	require.Equal(t, http.StatusTooManyRequests, attempt().Response.StatusCode)

	// After the window has fully elapsed the counter no longer carries
	// weight and attempts are accepted again.
	time.Sleep(250 * time.Millisecond)
	require.Equal(t, http.StatusFound, attempt().Response.StatusCode)
}

func TestUndecryptableSecretIsOmittedFromWall(t *testing.T) {
	users, h := newTestApp(t, 100, time.Minute)

	res := apitest.New().Handler(h).
		Post("/register").
		FormData("username", "grace@example.com").
		FormData("password", "12345678").
		Expect(t).
		Status(http.StatusFound).
		End()
	cookie := sessionCookie(t, res.Response)

	apitest.New().Handler(h).
		Post("/submit").
		Cookies(apitest.NewCookie(cookie.Name).Value(cookie.Value)).
		FormData("secret", "the cake is real").
		Expect(t).
		Status(http.StatusFound).
		End()

	// A second user's stored bundle is corrupted behind the app's back,
	// as a key change or on-disk tampering would.
	const tampered = "bm90LWEtdmFsaWQtYnVuZGxl"
	mallory, err := users.CreateLocal("mallory@example.com", "12345678")
	require.NoError(t, err)
	require.NoError(t, users.SetSecret(mallory.ID, tampered))

	apitest.New().Handler(h).
		Get("/secrets").
		Cookies(apitest.NewCookie(cookie.Name).Value(cookie.Value)).
		Expect(t).
		Status(http.StatusOK).
		Assert(func(res *http.Response, _ *http.Request) error {
			defer res.Body.Close()
			body, err := io.ReadAll(res.Body)
			require.NoError(t, err)
			require.Contains(t, string(body), "the cake is real")
			require.NotContains(t, string(body), tampered, "an unauthenticated bundle must never be rendered")
			return nil
		}).
		End()
}

func TestLogoutIsIdempotent(t *testing.T) {
	_, h := newTestApp(t, 100, time.Minute)

	// Logging out without any session still lands unauthenticated at home.
	apitest.New().Handler(h).
		Get("/logout").
		Expect(t).
		Status(http.StatusFound).
		Header("Location", "/").
		End()

	res := apitest.New().Handler(h).
		Post("/register").
		FormData("username", "carol@example.com").
		FormData("password", "12345678").
		Expect(t).
		Status(http.StatusFound).
		End()
	cookie := sessionCookie(t, res.Response)

	for i := 0; i < 2; i++ {
		apitest.New().Handler(h).
			Get("/logout").
			Cookies(apitest.NewCookie(cookie.Name).Value(cookie.Value)).
			Expect(t).
			Status(http.StatusFound).
			Header("Location", "/").
			End()
	}

	apitest.New().Handler(h).
		Get("/secrets").
		Cookies(apitest.NewCookie(cookie.Name).Value(cookie.Value)).
		Expect(t).
		Status(http.StatusFound).
		Header("Location", "/login").
		End()
}

func TestGoogleRouteWithoutConfigurationBouncesToLogin(t *testing.T) {
	_, h := newTestApp(t, 100, time.Minute)

	res := apitest.New().Handler(h).
		Get("/auth/google").
		Expect(t).
		Status(http.StatusFound).
		End()
	require.True(t, strings.HasPrefix(res.Response.Header.Get("Location"), "/login"))
}
