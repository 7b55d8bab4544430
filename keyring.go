package ddns

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "ddns6"
	keyringAccount = "cloudflare_api_token"
)

// KeyringStore keeps the API token in the OS credential store
// (Keychain, Windows Credential Manager, or the Secret Service on Linux).
type KeyringStore struct {
	Service string
	Account string
}

// Keyring returns the KeyringStore used by the ddnscf command.
func Keyring() KeyringStore {
	return KeyringStore{Service: keyringService, Account: keyringAccount}
}

// Token implements ddns.TokenStore.
func (k KeyringStore) Token() (string, bool, error) {
	token, err := keyring.Get(k.Service, k.Account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("error reading token from keyring: %w", err)
	}
	token = strings.TrimSpace(token)
	return token, token != "", nil
}

// SetToken stores token, replacing any previous one.
func (k KeyringStore) SetToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token cannot be empty")
	}
	if err := keyring.Set(k.Service, k.Account, token); err != nil {
		return fmt.Errorf("error writing token to keyring: %w", err)
	}
	return nil
}

// ClearToken deletes the stored token. Clearing a missing token is not an error.
func (k KeyringStore) ClearToken() error {
	err := keyring.Delete(k.Service, k.Account)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("error deleting token from keyring: %w", err)
	}
	return nil
}
