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
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var refPattern = regexp.MustCompile(`\$\{([^{}]+)\}`)

// Resolver queries backends in priority order and expands references.
type Resolver struct {
	backends []SecretBackend
}

// NewResolver creates a resolver over the available backends.
func NewResolver(backends ...SecretBackend) *Resolver {
	available := make([]SecretBackend, 0, len(backends))
	for _, b := range backends {
		if b.Available() {
			available = append(available, b)
		}
	}
	sort.SliceStable(available, func(i, j int) bool {
		return available[i].Priority() > available[j].Priority()
	})
	return &Resolver{backends: available}
}

// NewDefaultResolver uses the environment and the OS keychain.
func NewDefaultResolver() *Resolver {
	return NewResolver(NewEnvBackend(), NewKeychainBackend())
}

// Get returns the first value found for key.
func (r *Resolver) Get(ctx context.Context, key string) (string, error) {
	if len(r.backends) == 0 {
		return "", fmt.Errorf("%w: no available backends", ErrBackendUnavailable)
	}

	var lastErr error
	for _, b := range r.backends {
		value, err := b.Get(ctx, key)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrSecretNotFound) {
			lastErr = err
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("failed to get secret %q: %w", key, lastErr)
	}
	return "", fmt.Errorf("%w: %q", ErrSecretNotFound, key)
}

// Set stores a secret in the named backend.
func (r *Resolver) Set(ctx context.Context, backendName, key, value string) error {
	b, err := r.backend(backendName)
	if err != nil {
		return err
	}
	if err := b.Set(ctx, key, value); err != nil {
		return fmt.Errorf("failed to set secret in %s: %w", backendName, err)
	}
	return nil
}

// Delete removes a secret from the named backend.
func (r *Resolver) Delete(ctx context.Context, backendName, key string) error {
	b, err := r.backend(backendName)
	if err != nil {
		return err
	}
	if err := b.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete secret from %s: %w", backendName, err)
	}
	return nil
}

// Expand replaces every ${...} reference in value. An unresolvable
// reference is an error; the value is never partially expanded.
func (r *Resolver) Expand(ctx context.Context, value string) (string, error) {
	if !strings.Contains(value, "${") {
		return value, nil
	}

	var firstErr error
	out := refPattern.ReplaceAllStringFunc(value, func(match string) string {
		if firstErr != nil {
			return match
		}
		ref := match[2 : len(match)-1]
		v, err := r.lookup(ctx, ref)
		if err != nil {
			firstErr = err
			return match
		}
		return v
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func (r *Resolver) lookup(ctx context.Context, ref string) (string, error) {
	scheme, key, scoped := strings.Cut(ref, ":")
	if !scoped {
		return r.Get(ctx, strings.TrimSpace(ref))
	}
	b, err := r.backend(scheme)
	if err != nil {
		return "", err
	}
	return b.Get(ctx, strings.TrimSpace(key))
}

func (r *Resolver) backend(name string) (SecretBackend, error) {
	for _, b := range r.backends {
		if b.Name() == name {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrBackendUnavailable, name)
}

// Backends returns the available backends in priority order.
func (r *Resolver) Backends() []SecretBackend {
	return r.backends
}
