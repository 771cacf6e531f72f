package credentials

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const DefaultKeyringService = "usagebar"

// KeyringStore keeps secrets in the OS-native store (macOS Keychain, Windows
// Credential Manager, Secret Service on Linux). Each credential name is an
// account under one service.
type KeyringStore struct {
	Service string
}

func NewKeyringStore(service string) KeyringStore {
	if service == "" {
		service = DefaultKeyringService
	}
	return KeyringStore{Service: service}
}

func (s KeyringStore) Get(name string) ([]byte, error) {
	v, err := keyring.Get(s.Service, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("credentials: reading %s from keyring: %w", name, err)
	}
	return []byte(v), nil
}

func (s KeyringStore) Set(name string, value []byte) error {
	if err := keyring.Set(s.Service, name, string(value)); err != nil {
		return fmt.Errorf("credentials: writing %s to keyring: %w", name, err)
	}
	return nil
}

func (s KeyringStore) Delete(name string) error {
	if err := keyring.Delete(s.Service, name); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("credentials: deleting %s from keyring: %w", name, err)
	}
	return nil
}
