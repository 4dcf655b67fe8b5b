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

// Package oauth acquires OAuth2 access tokens for connectors.
//
// The authorization code flow is split in two: AuthorizationURL sends the
// operator to the provider, which redirects back to /oauthcallback where
// Exchange trades the code for a token. The token is stored as the
// connector's bearer token.
package oauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tombee/apiconnect/internal/connector"
	"github.com/tombee/apiconnect/internal/log"
)

// CallbackPath is where providers redirect after authorization.
const CallbackPath = "/oauthcallback"

// Flow runs OAuth2 grants on behalf of connectors.
type Flow struct {
	publicURL string
	state     *StateSigner
	secrets   connector.SecretExpander
	client    *http.Client
	logger    *slog.Logger
}

// Option configures a Flow.
type Option func(*Flow)

// WithStateSigner makes authorization URLs carry a signed state.
func WithStateSigner(s *StateSigner) Option {
	return func(f *Flow) { f.state = s }
}

// WithSecrets expands ${...} references in client credentials.
func WithSecrets(s connector.SecretExpander) Option {
	return func(f *Flow) { f.secrets = s }
}

// WithHTTPClient sets the client used for token requests.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Flow) { f.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Flow) { f.logger = l }
}

// NewFlow creates a flow whose callback lives under publicURL.
func NewFlow(publicURL string, opts ...Option) *Flow {
	f := &Flow{
		publicURL: strings.TrimRight(publicURL, "/"),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = log.WithComponent(f.logger, "oauth")
	return f
}

// RedirectURI is the callback URL registered with the provider for c.
func (f *Flow) RedirectURI(connectorID string) string {
	return f.publicURL + CallbackPath + "?id=" + url.QueryEscape(connectorID)
}

// AuthorizationURL records the redirect URI on c and returns the URL that
// starts the authorization code grant.
func (f *Flow) AuthorizationURL(ctx context.Context, c *connector.Connector) (string, error) {
	if c.Auth.OAuth.AuthorizationURL == "" {
		return "", &connector.ConfigValidationError{Field: "auth.oauth.authorization_url", Reason: "authorization url is required"}
	}
	c.Auth.OAuth.RedirectURI = f.RedirectURI(c.ID)

	creds, err := f.credentials(ctx, c)
	if err != nil {
		return "", err
	}

	var state string
	if f.state != nil {
		if state, err = f.state.Issue(c.ID); err != nil {
			return "", err
		}
	}

	cfg := f.config(c, creds)
	return cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("id", c.ID)), nil
}

// VerifyState checks the state returned to the callback. It is a no-op
// when no state signer is configured.
func (f *Flow) VerifyState(state, connectorID string) error {
	if f.state == nil {
		return nil
	}
	return f.state.Verify(state, connectorID)
}

// Exchange trades an authorization code for an access token and stores it
// in c.Auth.BearerToken. A connector without a recorded redirect URI uses
// the flow's callback URL for it.
func (f *Flow) Exchange(ctx context.Context, c *connector.Connector, code string) error {
	if code == "" {
		return &connector.OAuthExchangeError{ConnectorID: c.ID, Reason: "authorization code is missing"}
	}
	if c.Auth.OAuth.AccessTokenURL == "" {
		return &connector.OAuthExchangeError{ConnectorID: c.ID, Reason: "access token url is not configured"}
	}
	creds, err := f.credentials(ctx, c)
	if err != nil {
		return err
	}

	// The token request must repeat the redirect URI of the authorize step.
	if c.Auth.OAuth.RedirectURI == "" {
		c.Auth.OAuth.RedirectURI = f.RedirectURI(c.ID)
	}

	cfg := f.config(c, creds)
	tok, err := cfg.Exchange(f.context(ctx), code)
	if err != nil {
		return exchangeError(c.ID, err)
	}
	c.Auth.BearerToken = tok.AccessToken
	f.logger.Info("oauth token stored",
		log.ConnectorKey, c.ID,
		"grant", "authorization_code",
		"token", log.SanitizeSecret(tok.AccessToken))
	return nil
}

// ClientCredentials obtains a token with the client credentials grant and
// stores it in c.Auth.BearerToken.
func (f *Flow) ClientCredentials(ctx context.Context, c *connector.Connector) error {
	if c.Auth.OAuth.AccessTokenURL == "" {
		return &connector.OAuthExchangeError{ConnectorID: c.ID, Reason: "access token url is not configured"}
	}
	creds, err := f.credentials(ctx, c)
	if err != nil {
		return err
	}

	cfg := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     c.Auth.OAuth.AccessTokenURL,
		Scopes:       c.Auth.OAuth.Scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tok, err := cfg.Token(f.context(ctx))
	if err != nil {
		return exchangeError(c.ID, err)
	}
	c.Auth.BearerToken = tok.AccessToken
	f.logger.Info("oauth token stored",
		log.ConnectorKey, c.ID,
		"grant", "client_credentials",
		"token", log.SanitizeSecret(tok.AccessToken))
	return nil
}

func (f *Flow) credentials(ctx context.Context, c *connector.Connector) (connector.OAuthConfig, error) {
	if f.secrets == nil {
		return c.Auth.OAuth, nil
	}
	expanded, err := connector.ExpandCredentials(ctx, f.secrets, c)
	if err != nil {
		return connector.OAuthConfig{}, &connector.OAuthExchangeError{ConnectorID: c.ID, Reason: "failed to resolve client credentials", Cause: err}
	}
	return expanded.Auth.OAuth, nil
}

func (f *Flow) config(c *connector.Connector, creds connector.OAuthConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  c.Auth.OAuth.RedirectURI,
		Scopes:       c.Auth.OAuth.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.Auth.OAuth.AuthorizationURL,
			TokenURL:  c.Auth.OAuth.AccessTokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (f *Flow) context(ctx context.Context) context.Context {
	if f.client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, f.client)
}

func exchangeError(connectorID string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		reason := re.ErrorCode
		if reason == "" && re.Response != nil {
			reason = re.Response.Status
		}
		return &connector.OAuthExchangeError{ConnectorID: connectorID, Reason: reason, Cause: err}
	}
	return &connector.OAuthExchangeError{ConnectorID: connectorID, Reason: "token request failed", Cause: err}
}
