package storage

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// BadgerStorage is an on-disk fiber.Storage backed by badger. It backs both
// the session middleware and the rate limiter when no redis is configured.
type BadgerStorage struct {
	db *badger.DB
}

// NewBadgerStorage opens (or creates) a badger database in the given directory.
func NewBadgerStorage(dir string) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStorage{db: db}, nil
}

// Get returns the value for the given key, or nil if it is absent or expired.
func (s *BadgerStorage) Get(key string) ([]byte, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores the value under the given key with the given lifetime.
func (s *BadgerStorage) Set(key string, val []byte, exp time.Duration) error {
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), val)
		if exp > 0 {
			entry = entry.WithTTL(exp)
		}
		return txn.SetEntry(entry)
	})
}

// Delete removes the given key. Deleting an absent key is not an error.
func (s *BadgerStorage) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Reset drops all stored keys.
func (s *BadgerStorage) Reset() error {
	return s.db.DropAll()
}

// Close closes the underlying database.
func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

// RedisStorage is a fiber.Storage backed by a redis server, for deployments
// that want session state to survive restarts of this process or be shared
// across instances.
type RedisStorage struct {
	client *redis.Client
}

// NewRedisStorage connects to the redis server at the given address and
// verifies the connection.
func NewRedisStorage(addr, password string, db int) (*RedisStorage, error) {
	client := redis.NewClient(
		&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		},
	)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &RedisStorage{client: client}, nil
}

// Get returns the value for the given key, or nil if it is absent or expired.
func (s *RedisStorage) Get(key string) ([]byte, error) {
	val, err := s.client.Get(context.Background(), key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores the value under the given key with the given lifetime.
func (s *RedisStorage) Set(key string, val []byte, exp time.Duration) error {
	return s.client.Set(context.Background(), key, val, exp).Err()
}

// Delete removes the given key. Deleting an absent key is not an error.
func (s *RedisStorage) Delete(key string) error {
	return s.client.Del(context.Background(), key).Err()
}

// Reset drops all stored keys.
func (s *RedisStorage) Reset() error {
	return s.client.FlushDB(context.Background()).Err()
}

// Close closes the client connection.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}

var (
	_ fiber.Storage = (*BadgerStorage)(nil)
	_ fiber.Storage = (*RedisStorage)(nil)
)
