package credential

import (
	"errors"
	"fmt"
	"strings"

	"github.com/99designs/keyring"
)

const (
	serviceName = "notefeed"
	tokenKey    = "api-token"
)

// ErrEmptyToken is returned when saving a blank token.
var ErrEmptyToken = errors.New("credential: empty token")

// Vault holds the API bearer token in a keyring.
type Vault struct {
	ring keyring.Keyring
}

// Open returns a vault backed by the system keyring, falling back to an
// encrypted file under the user's config directory.
func Open() (*Vault, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/notefeed/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("notefeed-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewVault(ring), nil
}

// NewVault wraps an already opened keyring.
func NewVault(ring keyring.Keyring) *Vault {
	return &Vault{ring: ring}
}

// Token returns the stored token, or "" when none has been saved.
func (v *Vault) Token() (string, error) {
	item, err := v.ring.Get(tokenKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading token: %w", err)
	}
	return string(item.Data), nil
}

// SaveToken stores token, replacing any previous one.
func (v *Vault) SaveToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	err := v.ring.Set(keyring.Item{
		Key:         tokenKey,
		Data:        []byte(token),
		Label:       "notefeed API token",
		Description: "bearer token for the notifications API",
	})
	if err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	return nil
}

// Forget removes the stored token. It reports whether one was present.
func (v *Vault) Forget() (bool, error) {
	if _, err := v.ring.Get(tokenKey); errors.Is(err, keyring.ErrKeyNotFound) {
		return false, nil
	}
	if err := v.ring.Remove(tokenKey); err != nil {
		return false, fmt.Errorf("removing token: %w", err)
	}
	return true, nil
}
