// Package auth persists the Authorization value sent with media requests in the system keyring.
package auth

import (
	"errors"
	"strings"

	"github.com/playbridge/playbridge/constant"
	"github.com/zalando/go-keyring"
)

const user = "authorization"

// ErrEmpty is returned when storing a blank value.
var ErrEmpty = errors.New("empty authorization value")

// SetAuthorization persists the Authorization header value.
func SetAuthorization(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return ErrEmpty
	}
	return keyring.Set(constant.App, user, value)
}

// GetAuthorization retrieves the stored value. A missing entry is not an error.
func GetAuthorization() (string, error) {
	value, err := keyring.Get(constant.App, user)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return value, err
}

// DeleteAuthorization removes the stored value.
func DeleteAuthorization() error {
	err := keyring.Delete(constant.App, user)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// Redact keeps the scheme and the last four characters of value.
func Redact(value string) string {
	scheme, credentials, ok := strings.Cut(value, " ")
	if !ok {
		scheme, credentials = "", value
	}

	masked := strings.Repeat("*", len(credentials))
	if len(credentials) > 4 {
		masked = masked[4:] + credentials[len(credentials)-4:]
	}

	if scheme == "" {
		return masked
	}
	return scheme + " " + masked
}
