package storage

import (
	"gorm.io/gorm"

	"github.com/whisperwall/whisperwall/storage/model"
)

// Storage is the GORM-backed warehouse for all persisted application state.
type Storage struct {
	db         *gorm.DB
	userParams Argon2idParams
}

// NewStorage connects to the configured database and migrates the schema.
func NewStorage(cfg Config) (*Storage, error) {
	db, err := Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err = db.AutoMigrate(&model.User{}); err != nil {
		return nil, err
	}
	return &Storage{db: db, userParams: cfg.UsersHash}, nil
}
