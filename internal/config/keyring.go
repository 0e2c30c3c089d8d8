/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"os"
	"strings"

	keyring "github.com/zalando/go-keyring"
)

// Service/keys for the OS keyring.
const (
	keyringService = "Thumbtory"
	keyringToken   = "backend_token"
	keyringSecret  = "server_auth_secret"
)

// TokenStore abstracts the keyring so tests can substitute an in-memory store.
type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

var tokenStore TokenStore = osKeyring{}

// osKeyring implements TokenStore using github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error {
	err := keyring.Delete(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// SetTokenStore swaps the secret store and returns a function restoring the previous one.
func SetTokenStore(s TokenStore) (restore func()) {
	prev := tokenStore
	tokenStore = s
	return func() { tokenStore = prev }
}

// AuthSecret returns the HMAC secret of the template server. TT_AUTH_SECRET
// wins over the keyring entry.
func AuthSecret() (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvAuthSecret)); v != "" {
		return v, nil
	}
	v, err := tokenStore.Get(keyringService, keyringSecret)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return v, nil
}

// SetAuthSecret stores the server secret in the keyring.
func SetAuthSecret(secret string) error {
	if strings.TrimSpace(secret) == "" {
		return tokenStore.Delete(keyringService, keyringSecret)
	}
	return tokenStore.Set(keyringService, keyringSecret, secret)
}

// ClearToken removes the stored backend token.
func ClearToken() error { return tokenStore.Delete(keyringService, keyringToken) }
