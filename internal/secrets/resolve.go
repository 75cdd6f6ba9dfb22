// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

package secrets

import (
	"log/slog"
	"strings"

	basalterr "github.com/basalt-chat/basalt/pkg/errors"
	"github.com/spf13/viper"
)

const uriScheme = "keyring://"

// IsKeyringURI reports whether value is a keyring:// reference.
func IsKeyringURI(value string) bool {
	return strings.HasPrefix(value, uriScheme)
}

// URI builds the keyring:// reference for a stored secret.
func URI(service, name string) string {
	return uriScheme + service + "/" + name
}

// ParseKeyringURI splits keyring://service/name into its parts.
func ParseKeyringURI(uri string) (service, name string, err error) {
	rest, ok := strings.CutPrefix(uri, uriScheme)
	if !ok {
		return "", "", basalterr.Errorf(basalterr.CodeSecretInvalidInput, "not a keyring URI: %q", uri)
	}
	service, name, ok = strings.Cut(rest, "/")
	if !ok || service == "" || name == "" {
		return "", "", basalterr.Errorf(basalterr.CodeSecretInvalidInput,
			"invalid keyring URI %q: expected keyring://service/name", uri)
	}
	return service, name, nil
}

// Resolve returns the secret a keyring:// reference points at. Any other
// value is returned unchanged.
func Resolve(store Store, value string) (string, error) {
	if !IsKeyringURI(value) {
		return value, nil
	}

	service, name, err := ParseKeyringURI(value)
	if err != nil {
		return "", err
	}

	secret, err := store.Get(service, name)
	if err != nil {
		return "", basalterr.Wrapf(err, basalterr.CodeSecretResolveFailure, "resolving %q", value)
	}
	return secret, nil
}

// ResolveViperSecrets replaces every keyring:// value held by v with the
// secret it references. Failures are logged and the reference is left in
// place, so the setting fails loudly where it is used.
func ResolveViperSecrets(v *viper.Viper, store Store) {
	for _, key := range v.AllKeys() {
		value := v.GetString(key)
		if !IsKeyringURI(value) {
			continue
		}

		secret, err := Resolve(store, value)
		if err != nil {
			slog.Warn("keyring reference not resolved", "config_key", key, "error", err)
			continue
		}
		v.Set(key, secret)
	}
}
