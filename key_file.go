package ddns

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strings"
)

// KeyFile returns a TokenStore that reads the API token from the first line of the file at path.
//
// The file must not be readable by anyone but its owner.
// A missing file means no token.
func KeyFile(path string) TokenStore {
	return keyFile(path)
}

type keyFile string

func (k keyFile) Token() (string, bool, error) {
	path := string(k)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err := verifyPermissions(path); err != nil {
		return "", false, err
	}
	key, err := readKey(path)
	if err != nil {
		return "", false, err
	}
	return key, key != "", nil
}

// WriteKeyFile creates a key file at path holding token. An existing file is never overwritten.
func WriteKeyFile(path, token string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("unable to create \"%s\": %w", path, err)
	}
	if _, err := fmt.Fprintln(f, strings.TrimSpace(token)); err != nil {
		f.Close()
		return fmt.Errorf("error writing \"%s\": %w", path, err)
	}
	return f.Close()
}

func readKey(path string) (key string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("error reading key: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	keyb, _, err := r.ReadLine()
	if err != nil {
		return "", fmt.Errorf("error reading line: %w", err)
	}
	return strings.TrimSpace(string(keyb)), nil
}

func verifyPermissions(path string) error {
	// windows has no unix permission bits to check
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("error checking keyfile permissions: %w", err)
	}

	perms := info.Mode().Perm()
	// Error messages will state that we want 0600,
	// but we'll also accept 0400 which is even more restricted.
	// The file might be provided by some secrets managing software as readonly.
	if perms != 0600 && perms != 0400 {
		return fmt.Errorf("invalid permissions for \"%s\": expected file permissions \"-rw-------\"; found \"%s\"", path, fs.FileMode(perms))
	}

	return nil
}
