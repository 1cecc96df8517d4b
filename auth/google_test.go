package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"golang.org/x/oauth2"

	"github.com/whisperwall/whisperwall/storage"
)

// fakeProvider serves the two provider endpoints the callback path touches.
func fakeProvider(t *testing.T, profileID string) (*httptest.Server, *oauth2.Config) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ExternalProfile{ID: profileID, Email: "user@example.com"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	cfg := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  srv.URL + "/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:  srv.URL + "/authorize",
			TokenURL: srv.URL + "/token",
		},
	}
	return srv, cfg
}

func TestCallbackCreatesUserOnFirstSignIn(t *testing.T) {
	srv, cfg := fakeProvider(t, "ext-42")
	users := storage.NewMemoryUsersStorage()
	a := &GoogleAuthenticator{Users: users, OAuth: cfg, UserInfoURL: srv.URL + "/userinfo"}

	u, err := a.Callback(context.Background(), "some-code")
	if err != nil {
		t.Fatalf("callback failed: %v", err)
	}
	if u.Username != "google-ext-42" {
		t.Fatalf("expected synthesized username, got %q", u.Username)
	}
	if u.ExternalID == nil || *u.ExternalID != "ext-42" {
		t.Fatal("external id not bound")
	}

	again, err := a.Callback(context.Background(), "another-code")
	if err != nil {
		t.Fatalf("second callback failed: %v", err)
	}
	if again.ID != u.ID {
		t.Fatalf("second sign-in must resolve the same user, got %d and %d", u.ID, again.ID)
	}
}

func TestConcurrentCallbacksCreateOneUser(t *testing.T) {
	srv, cfg := fakeProvider(t, "ext-race")
	users := storage.NewMemoryUsersStorage()
	a := &GoogleAuthenticator{Users: users, OAuth: cfg, UserInfoURL: srv.URL + "/userinfo"}

	const n = 8
	ids := make([]uint, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := a.Callback(context.Background(), "code")
			if err != nil {
				t.Errorf("callback %d: %v", i, err)
				return
			}
			ids[i] = u.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("concurrent callbacks produced distinct users: %v", ids)
		}
	}
	count, err := users.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one stored user, got %d", count)
	}
}

func TestCallbackExchangeFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	a := &GoogleAuthenticator{
		Users: storage.NewMemoryUsersStorage(),
		OAuth: &oauth2.Config{
			ClientID: "client", ClientSecret: "secret",
			Endpoint: oauth2.Endpoint{TokenURL: srv.URL + "/token"},
		},
	}
	if _, err := a.Callback(context.Background(), "bad-code"); err != ErrExternalAuthFailed {
		t.Fatalf("expected ErrExternalAuthFailed, got %v", err)
	}
}
