package storage

import (
	"os"
	"sync"
	"testing"

	"github.com/whisperwall/whisperwall/storage/model"
)

func newSQLiteStorage(t *testing.T) *Storage {
	t.Helper()
	// Skip if not running integration tests
	if os.Getenv("RUN_INTEGRATION_TESTS") != "true" {
		t.Skip("Skipping integration test. Set RUN_INTEGRATION_TESTS=true to run")
	}
	tempDir, err := os.MkdirTemp("", "whisperwall-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tempDir) })

	s, err := NewStorage(
		Config{
			Driver:    DriverSQLite,
			DataDir:   tempDir,
			UsersHash: Argon2idParams{Time: 1, MemoryKiB: 8 * 1024, Parallelism: 1, KeyLen: 32, SaltLen: 16},
		},
	)
	if err != nil {
		t.Fatalf("Failed to open SQLite storage: %v", err)
	}
	return s
}

// TestSQLiteLocalAccountLifecycle tests create, lookup and authentication of
// a local account against a real SQLite database
func TestSQLiteLocalAccountLifecycle(t *testing.T) {
	users := newSQLiteStorage(t).UsersStorage()

	u, err := users.CreateLocal("dave@example.com", "password-123")
	if err != nil {
		t.Fatalf("CreateLocal failed: %v", err)
	}
	if u.ID == 0 {
		t.Fatal("expected assigned id")
	}
	if u.PasswordHash != "" {
		t.Fatal("password hash must not leave the storage layer")
	}

	if _, err = users.CreateLocal("dave@example.com", "other-password"); !model.IsAlreadyExists(err) {
		t.Fatalf("expected AlreadyExistsError, got %v", err)
	}

	if _, err = users.Authenticate("dave@example.com", "password-123"); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if _, err = users.Authenticate("dave@example.com", "password-124"); err == nil {
		t.Fatal("wrong password must not authenticate")
	}

	if _, err = users.FindByUsername("unknown@example.com"); !model.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

// TestSQLiteSecretReadAfterWrite tests that a submitted secret is observed by
// the next read of the same record
func TestSQLiteSecretReadAfterWrite(t *testing.T) {
	users := newSQLiteStorage(t).UsersStorage()

	u, err := users.CreateLocal("erin@example.com", "password-123")
	if err != nil {
		t.Fatal(err)
	}
	if err = users.SetSecret(u.ID, "stored-bundle"); err != nil {
		t.Fatalf("SetSecret failed: %v", err)
	}
	got, err := users.FindByID(u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Secret != "stored-bundle" {
		t.Fatalf("read-after-write mismatch: %q", got.Secret)
	}
	// Overwrite keeps at most one secret.
	if err = users.SetSecret(u.ID, "newer-bundle"); err != nil {
		t.Fatal(err)
	}
	got, err = users.FindByID(u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Secret != "newer-bundle" {
		t.Fatalf("overwrite not observed: %q", got.Secret)
	}

	if err = users.SetSecret(99999, "x"); !model.IsNotFound(err) {
		t.Fatalf("expected NotFoundError for unknown id, got %v", err)
	}
}

// TestSQLiteGetOrCreateExternalRace tests that concurrent callbacks for the
// same new external id end with exactly one stored user
func TestSQLiteGetOrCreateExternalRace(t *testing.T) {
	users := newSQLiteStorage(t).UsersStorage()

	const n = 8
	var wg sync.WaitGroup
	ids := make([]uint, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := users.GetOrCreateExternal("google", "race-ext-id")
			if err != nil {
				t.Errorf("GetOrCreateExternal %d: %v", i, err)
				return
			}
			ids[i] = u.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("concurrent find-or-create produced distinct users: %v", ids)
		}
	}
	count, err := users.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one user, got %d", count)
	}

	u, err := users.FindByExternalID("race-ext-id")
	if err != nil {
		t.Fatal(err)
	}
	if u.Username != "google-race-ext-id" {
		t.Fatalf("unexpected synthesized username %q", u.Username)
	}
}
