// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

// Package secrets keeps API keys out of config files by storing them in the
// operating system keyring and resolving keyring:// references.
package secrets

// Service is the keyring service Basalt stores its secrets under.
const Service = "basalt"

// Store provides secret storage keyed by service and name.
type Store interface {
	Set(service, name, value string) error
	// Get fails with CodeSecretNotFound when the name is unknown.
	Get(service, name string) (string, error)
	Delete(service, name string) error
	List(service string) ([]string, error)
}
