package config

import (
	"encoding/base64"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/whisperwall/whisperwall/internal/fieldcrypt"
)

// encryptionConf toggles encryption-at-rest of the stored secrets. With no
// key configured the deployment explicitly runs in cleartext mode; changing
// the key invalidates everything encrypted under the old one.
type encryptionConf struct {
	// Key is the base64-encoded 32-byte field encryption key.
	Key string `yaml:"key"`
}

func (c *encryptionConf) validate() error {
	if c.Key == "" {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(c.Key)
	if err != nil {
		return errors.Wrap(err, "error in encryption conf: key is not valid base64")
	}
	if len(raw) != fieldcrypt.KeySize {
		return errors.Errorf("error in encryption conf: key must be %d bytes", fieldcrypt.KeySize)
	}
	return nil
}

// LoadFieldCipher returns the configured field cipher, or nil for cleartext
// mode.
func LoadFieldCipher(c encryptionConf) (*fieldcrypt.Cipher, error) {
	if c.Key == "" {
		log.Warn("no encryption key configured, secrets will be stored in cleartext")
		return nil, nil
	}
	cipher, err := fieldcrypt.NewFromBase64(c.Key)
	if err != nil {
		return nil, err
	}
	log.Info("Loaded field encryption key")
	return cipher, nil
}
