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

package oauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// StateTTL bounds how long an authorization round trip may take.
const StateTTL = 10 * time.Minute

var (
	// ErrStateMissing is returned when a state is required but absent.
	ErrStateMissing = errors.New("oauth state is missing")

	// ErrStateInvalid is returned for a malformed, expired or forged state.
	ErrStateInvalid = errors.New("oauth state is invalid")

	// ErrStateMismatch is returned when the state belongs to another connector.
	ErrStateMismatch = errors.New("oauth state does not match connector")
)

// StateSigner issues and verifies the signed state parameter that binds an
// authorization redirect to a connector.
type StateSigner struct {
	secret []byte
	now    func() time.Time
}

// NewStateSigner creates a signer. An empty secret disables state.
func NewStateSigner(secret string) *StateSigner {
	if secret == "" {
		return nil
	}
	return &StateSigner{secret: []byte(secret), now: time.Now}
}

// Issue returns a state token for connectorID.
func (s *StateSigner) Issue(connectorID string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   connectorID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(StateTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign oauth state: %w", err)
	}
	return token, nil
}

// Verify checks state was issued by this signer for connectorID and has
// not expired.
func (s *StateSigner) Verify(state, connectorID string) error {
	if state == "" {
		return ErrStateMissing
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStateInvalid, err)
	}
	if claims.Subject != connectorID {
		return ErrStateMismatch
	}
	return nil
}
