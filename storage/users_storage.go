package storage

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
	"gorm.io/gorm"

	"github.com/whisperwall/whisperwall/storage/model"
)

// UsersStorage returns a UsersStorage
func (s *Storage) UsersStorage() *UsersStorage {
	return &UsersStorage{db: s.db, params: s.userParams}
}

// UsersStorage implements UsersStore using GORM
type UsersStorage struct {
	db     *gorm.DB
	params Argon2idParams
}

// Count returns the number of users present in the store
func (s *UsersStorage) Count() (int64, error) {
	var count int64
	if err := s.db.Model(&model.User{}).Count(&count).Error; err != nil {
		return 0, model.UnavailableErrorFrom(err)
	}
	return count, nil
}

// ListAll returns all users (without password hashes)
func (s *UsersStorage) ListAll() ([]model.User, error) {
	var users []model.User
	if err := s.db.Model(&model.User{}).Find(&users).Error; err != nil {
		return nil, model.UnavailableErrorFrom(err)
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

// FindByID returns the user with the given id
func (s *UsersStorage) FindByID(id uint) (*model.User, error) {
	var u model.User
	if err := s.db.First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NotFoundErrorFmt("user not found: %d", id)
		}
		return nil, model.UnavailableErrorFrom(err)
	}
	u.PasswordHash = ""
	return &u, nil
}

// FindByUsername returns the user with the given username
func (s *UsersStorage) FindByUsername(username string) (*model.User, error) {
	var u model.User
	if err := s.db.Where("username = ?", username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NotFoundErrorFmt("user not found: %s", username)
		}
		return nil, model.UnavailableErrorFrom(err)
	}
	u.PasswordHash = ""
	return &u, nil
}

// FindByExternalID returns the user with the given external identity id
func (s *UsersStorage) FindByExternalID(externalID string) (*model.User, error) {
	var u model.User
	if err := s.db.Where("external_id = ?", externalID).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NotFoundErrorFmt("no user for external id: %s", externalID)
		}
		return nil, model.UnavailableErrorFrom(err)
	}
	u.PasswordHash = ""
	return &u, nil
}

// CreateLocal creates a local account with an Argon2id-hashed password
func (s *UsersStorage) CreateLocal(username, password string) (*model.User, error) {
	if len(username) == 0 || len(password) == 0 {
		return nil, errors.Errorf("username and password are required")
	}
	hash, err := hashPasswordArgon2id(password, s.params)
	if err != nil {
		return nil, err
	}
	u := model.User{Username: username, PasswordHash: hash}
	if err := s.db.Create(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, model.AlreadyExistsErrorFmt("user already exists: %s", username)
		}
		return nil, model.UnavailableErrorFrom(err)
	}
	u.PasswordHash = ""
	return &u, nil
}

// GetOrCreateExternal returns the user bound to the given external identity,
// creating it if absent. The unique index on external_id makes the
// lookup-then-create safe under concurrent callbacks for the same identity:
// the losing create fails and we re-fetch the row the winner inserted.
func (s *UsersStorage) GetOrCreateExternal(provider, externalID string) (*model.User, error) {
	existing, err := s.FindByExternalID(externalID)
	if err == nil {
		return existing, nil
	}
	if !model.IsNotFound(err) {
		return nil, err
	}
	u := model.User{
		Username:   fmt.Sprintf("%s-%s", provider, externalID),
		Provider:   provider,
		ExternalID: &externalID,
	}
	if createErr := s.db.Create(&u).Error; createErr != nil {
		// Lost the race (or the username collided, which implies the same
		// identity): the record must exist now, so use it.
		if refetched, refetchErr := s.FindByExternalID(externalID); refetchErr == nil {
			return refetched, nil
		}
		return nil, model.UnavailableErrorFrom(createErr)
	}
	return &u, nil
}

// SetSecret overwrites the stored secret of the given user
func (s *UsersStorage) SetSecret(id uint, stored string) error {
	res := s.db.Model(&model.User{}).Where("id = ?", id).Update("secret", stored)
	if res.Error != nil {
		return model.UnavailableErrorFrom(res.Error)
	}
	if res.RowsAffected == 0 {
		return model.NotFoundErrorFmt("user not found: %d", id)
	}
	return nil
}

// dummyHash is verified against when the username is unknown so that a failed
// lookup costs the same as a failed password comparison.
const dummyHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$d9/ZCAa7FItiIWQlCI5BJPZrcyB5ZSGHifWtvpG50dU"

// Authenticate validates username/password and auto-upgrades the stored hash
// if the configured params changed. Unknown usernames and wrong passwords are
// indistinguishable to the caller.
func (s *UsersStorage) Authenticate(username, password string) (*model.User, error) {
	var u model.User
	if err := s.db.Where("username = ?", username).First(&u).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.UnavailableErrorFrom(err)
		}
		_, _ = verifyPasswordArgon2id(dummyHash, password)
		return nil, errors.Errorf("invalid credentials")
	}
	if u.PasswordHash == "" {
		// External-identity-only account, no password to check.
		_, _ = verifyPasswordArgon2id(dummyHash, password)
		return nil, errors.Errorf("invalid credentials")
	}
	ok, err := verifyPasswordArgon2id(u.PasswordHash, password)
	if err != nil || !ok {
		return nil, errors.Errorf("invalid credentials")
	}
	if stored, err := extractArgon2idParams(u.PasswordHash); err == nil && !argon2idParamsEqual(stored, s.params) && s.params.Time != 0 {
		if newHash, err := hashPasswordArgon2id(password, s.params); err == nil {
			_ = s.db.Model(&model.User{}).Where("id = ?", u.ID).Update("password_hash", newHash).Error
		}
	}
	u.PasswordHash = ""
	return &u, nil
}

// hashPasswordArgon2id returns a PHC-formatted argon2id hash string
// Format: $argon2id$v=19$m=65536,t=1,p=4$<saltB64>$<hashB64>
func hashPasswordArgon2id(password string, p Argon2idParams) (string, error) {
	if p.Time == 0 {
		p = defaultArgon2idParams()
	}
	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	dk := argon2.IDKey([]byte(password), salt, p.Time, p.MemoryKiB, p.Parallelism, p.KeyLen)
	saltB64 := base64.RawStdEncoding.EncodeToString(salt)
	hashB64 := base64.RawStdEncoding.EncodeToString(dk)
	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s", p.MemoryKiB, p.Time, p.Parallelism, saltB64, hashB64), nil
}

// verifyPasswordArgon2id verifies the given password against a PHC-formatted argon2id hash
func verifyPasswordArgon2id(encoded, password string) (bool, error) {
	params, salt, hash, err := parseArgon2id(encoded)
	if err != nil {
		return false, err
	}
	dk := argon2.IDKey([]byte(password), salt, params.Time, params.MemoryKiB, params.Parallelism, uint32(len(hash)))
	if subtle.ConstantTimeCompare(dk, hash) == 1 {
		return true, nil
	}
	return false, nil
}

// extractArgon2idParams parses a PHC-formatted argon2id string and returns parameters
func extractArgon2idParams(encoded string) (Argon2idParams, error) {
	p, _, _, err := parseArgon2id(encoded)
	return p, err
}

// parseArgon2id parses a PHC-formatted argon2id hash and returns parameters, salt and hash bytes.
func parseArgon2id(encoded string) (Argon2idParams, []byte, []byte, error) {
	var out Argon2idParams
	if !strings.HasPrefix(encoded, "$argon2id$") {
		return out, nil, nil, errors.Errorf("unsupported password hash format")
	}
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return out, nil, nil, errors.Errorf("invalid argon2id hash format")
	}
	if parts[2] != "v=19" {
		return out, nil, nil, errors.Errorf("unsupported argon2 version")
	}
	for _, kv := range strings.Split(parts[3], ",") {
		if strings.HasPrefix(kv, "m=") {
			v, err := strconv.ParseUint(strings.TrimPrefix(kv, "m="), 10, 32)
			if err != nil {
				return out, nil, nil, err
			}
			out.MemoryKiB = uint32(v)
		} else if strings.HasPrefix(kv, "t=") {
			v, err := strconv.ParseUint(strings.TrimPrefix(kv, "t="), 10, 32)
			if err != nil {
				return out, nil, nil, err
			}
			out.Time = uint32(v)
		} else if strings.HasPrefix(kv, "p=") {
			v, err := strconv.ParseUint(strings.TrimPrefix(kv, "p="), 10, 8)
			if err != nil {
				return out, nil, nil, err
			}
			out.Parallelism = uint8(v)
		}
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return out, nil, nil, err
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return out, nil, nil, err
	}
	out.SaltLen = uint32(len(salt))
	out.KeyLen = uint32(len(hash))
	return out, salt, hash, nil
}

func argon2idParamsEqual(a, b Argon2idParams) bool {
	return a.Time == b.Time && a.MemoryKiB == b.MemoryKiB && a.Parallelism == b.Parallelism && a.KeyLen == b.KeyLen && a.SaltLen == b.SaltLen
}

func defaultArgon2idParams() Argon2idParams {
	return Argon2idParams{Time: 1, MemoryKiB: 64 * 1024, Parallelism: 4, KeyLen: 32, SaltLen: 16}
}
