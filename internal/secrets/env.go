// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

const (
	// EnvBackendPriority puts the environment ahead of the keychain.
	EnvBackendPriority = 100

	envSecretPrefix = "APICONNECT_SECRET_"
)

// EnvBackend reads secrets from environment variables. A key is looked up
// as APICONNECT_SECRET_<KEY> first, then as the bare variable name.
type EnvBackend struct {
	lookup func(string) (string, bool)
}

// NewEnvBackend creates a backend over the process environment.
func NewEnvBackend() *EnvBackend {
	return &EnvBackend{lookup: os.LookupEnv}
}

// Name implements SecretBackend.
func (e *EnvBackend) Name() string { return "env" }

// Get implements SecretBackend.
func (e *EnvBackend) Get(ctx context.Context, key string) (string, error) {
	if v, ok := e.lookup(e.normalizeKey(key)); ok && v != "" {
		return v, nil
	}
	if v, ok := e.lookup(key); ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: environment variable %s not set", ErrSecretNotFound, key)
}

// Set implements SecretBackend. The environment is read-only.
func (e *EnvBackend) Set(ctx context.Context, key string, value string) error {
	return ErrReadOnlyBackend
}

// Delete implements SecretBackend. The environment is read-only.
func (e *EnvBackend) Delete(ctx context.Context, key string) error {
	return ErrReadOnlyBackend
}

// Available implements SecretBackend.
func (e *EnvBackend) Available() bool { return true }

// Priority implements SecretBackend.
func (e *EnvBackend) Priority() int { return EnvBackendPriority }

// normalizeKey maps "github/token" to APICONNECT_SECRET_GITHUB_TOKEN.
func (e *EnvBackend) normalizeKey(key string) string {
	r := strings.NewReplacer("/", "_", "-", "_", ".", "_")
	return envSecretPrefix + strings.ToUpper(r.Replace(key))
}
