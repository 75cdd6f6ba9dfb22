// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"

	basalterr "github.com/basalt-chat/basalt/pkg/errors"
	"github.com/zalando/go-keyring"
)

// indexName holds the JSON list of names stored for a service, since
// go-keyring cannot enumerate entries.
const indexName = "__basalt_index__"

// KeyringStore implements Store on top of the OS keyring (Keychain,
// secret-service or Credential Manager).
type KeyringStore struct{}

var _ Store = (*KeyringStore)(nil)

func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

func (s *KeyringStore) Set(service, name, value string) error {
	if err := checkInput("set", service, name); err != nil {
		return err
	}
	if err := keyring.Set(service, name, value); err != nil {
		return basalterr.Wrapf(err, basalterr.CodeSecretStoreFailure, "storing secret %s/%s", service, name)
	}

	names, err := s.List(service)
	if err != nil {
		return err
	}
	if slices.Contains(names, name) {
		return nil
	}
	return s.writeIndex(service, append(names, name))
}

func (s *KeyringStore) Get(service, name string) (string, error) {
	if err := checkInput("get", service, name); err != nil {
		return "", err
	}
	value, err := keyring.Get(service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", basalterr.Errorf(basalterr.CodeSecretNotFound, "secret %s/%s not found", service, name)
	}
	if err != nil {
		return "", basalterr.Wrapf(err, basalterr.CodeSecretStoreFailure, "reading secret %s/%s", service, name)
	}
	return value, nil
}

func (s *KeyringStore) Delete(service, name string) error {
	if err := checkInput("delete", service, name); err != nil {
		return err
	}
	err := keyring.Delete(service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return basalterr.Errorf(basalterr.CodeSecretNotFound, "secret %s/%s not found", service, name)
	}
	if err != nil {
		return basalterr.Wrapf(err, basalterr.CodeSecretDeleteFailure, "deleting secret %s/%s", service, name)
	}

	names, err := s.List(service)
	if err != nil {
		return err
	}
	return s.writeIndex(service, slices.DeleteFunc(names, func(n string) bool { return n == name }))
}

// List returns the names stored for service in insertion order.
func (s *KeyringStore) List(service string) ([]string, error) {
	raw, err := keyring.Get(service, indexName)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, basalterr.Wrapf(err, basalterr.CodeSecretStoreFailure, "reading secret index for %s", service)
	}

	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, basalterr.Wrapf(err, basalterr.CodeSecretStoreFailure, "decoding secret index for %s", service)
	}
	return names, nil
}

func (s *KeyringStore) writeIndex(service string, names []string) error {
	if len(names) == 0 {
		if err := keyring.Delete(service, indexName); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("removing empty secret index", "service", service, "error", err)
		}
		return nil
	}

	data, err := json.Marshal(names)
	if err != nil {
		return basalterr.Wrapf(err, basalterr.CodeSecretStoreFailure, "encoding secret index for %s", service)
	}
	if err := keyring.Set(service, indexName, string(data)); err != nil {
		return basalterr.Wrapf(err, basalterr.CodeSecretStoreFailure, "writing secret index for %s", service)
	}
	return nil
}

func checkInput(op, service, name string) error {
	if service == "" {
		return basalterr.Errorf(basalterr.CodeSecretInvalidInput, "secret %s: service must not be empty", op)
	}
	if name == "" || name == indexName {
		return basalterr.Errorf(basalterr.CodeSecretInvalidInput, "secret %s: invalid name %q", op, name)
	}
	return nil
}
