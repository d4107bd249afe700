package credential

import (
	"errors"
	"fmt"
	"os"

	"github.com/99designs/keyring"
)

const serviceName = "mailbrowse"

// PasswordEnv overrides the stored password when set.
const PasswordEnv = "MAILBROWSE_PASSWORD"

// ErrNotFound is returned when no credential is stored under a key.
var ErrNotFound = keyring.ErrKeyNotFound

// Store reads and writes credentials in a keyring.
type Store struct {
	ring keyring.Keyring
}

// Open returns a Store backed by the system keyring.
func Open() (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/mailbrowse/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("mailbrowse-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewStore(ring), nil
}

// NewStore wraps an already opened keyring.
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Get retrieves a credential value by key.
func (s *Store) Get(key string) (string, error) {
	item, err := s.ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key.
func (s *Store) Set(key, value string) error {
	err := s.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: "mailbrowse " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key. Deleting a missing key is not an
// error.
func (s *Store) Delete(key string) error {
	err := s.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// AccountKey is the keyring key of an IMAP account password.
func AccountKey(username, host string) string {
	return "imap:" + username + "@" + host
}

// Password returns the account password, preferring $MAILBROWSE_PASSWORD
// over the keyring.
func (s *Store) Password(username, host string) (string, error) {
	if pw, ok := os.LookupEnv(PasswordEnv); ok && pw != "" {
		return pw, nil
	}
	return s.Get(AccountKey(username, host))
}

// SetPassword stores the account password.
func (s *Store) SetPassword(username, host, password string) error {
	return s.Set(AccountKey(username, host), password)
}

// IsNotFound reports whether err means no credential was stored.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
