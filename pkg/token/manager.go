// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package token maintains the access credential for the DAC platform.
//
// The manager keeps a single-slot cache of the access token. A cached token
// is re-verified (signature and expiry) before every reuse; a token that
// fails verification triggers a refetch. At most one fetch is in flight at
// any time: concurrent callers share the result of the pending fetch.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/sync/singleflight"

	"github.com/stacklok/dacsync/pkg/errors"
	"github.com/stacklok/dacsync/pkg/logger"
)

// fetchKey is the singleflight key; there is only one token slot.
const fetchKey = "token"

// tokenResponseSchema validates the identity provider's token response.
// Anything that does not match fails the acquire with invalid_token_response.
const tokenResponseSchema = `{
	"type": "object",
	"required": ["access_token", "token_type", "expires_in", "refresh_token"],
	"properties": {
		"access_token": {"type": "string", "minLength": 1},
		"token_type": {"type": "string", "enum": ["Bearer"]},
		"expires_in": {"type": "number"},
		"refresh_token": {"type": "string"}
	}
}`

var compiledTokenSchema = gojsonschema.NewStringLoader(tokenResponseSchema)

// tokenResponse is the subset of the token endpoint response the manager uses.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// Options configures a Manager.
type Options struct {
	// TokenURL is the identity provider's token endpoint.
	TokenURL string

	// ClientID, Username and Password are sent in the password-grant body.
	ClientID string
	Username string
	Password string

	// PublicKeyPEM is the PEM-encoded RS256 public key used to verify
	// cached access tokens before reuse.
	PublicKeyPEM []byte

	// HTTPClient is the client used for token fetches. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
}

// Manager obtains, caches, verifies and refreshes the platform access token.
type Manager struct {
	tokenURL string
	clientID string
	username string
	password string
	client   *http.Client
	verifier *verifier

	mu     sync.Mutex
	cached string

	group singleflight.Group
}

// NewManager creates a token manager. The public key is parsed eagerly so a
// misconfigured key fails at startup rather than mid-run.
func NewManager(opts Options) (*Manager, error) {
	if opts.TokenURL == "" {
		return nil, fmt.Errorf("token URL is required")
	}
	v, err := newVerifier(opts.PublicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token verification key: %w", err)
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Manager{
		tokenURL: opts.TokenURL,
		clientID: opts.ClientID,
		username: opts.Username,
		password: opts.Password,
		client:   client,
		verifier: v,
	}, nil
}

// Acquire returns a token that is believed valid. The cached token is
// verified before reuse; on token_expired (or any other verification
// failure) a refetch is forced. Concurrent callers while a fetch is running
// receive the result of that same fetch.
func (m *Manager) Acquire(ctx context.Context) (string, error) {
	m.mu.Lock()
	cached := m.cached
	m.mu.Unlock()

	if cached != "" {
		err := m.verifier.verify(cached)
		if err == nil {
			return cached, nil
		}
		if errors.IsTokenExpired(err) {
			logger.Debug("cached access token expired, refreshing")
		} else {
			// Any other verification failure is logged and treated as a
			// refresh trigger.
			logger.Warnf("cached access token failed verification: %v", err)
		}
	}

	tok, err, _ := m.group.Do(fetchKey, func() (any, error) {
		return m.fetch(ctx)
	})
	if err != nil {
		return "", err
	}
	return tok.(string), nil
}

// Invalidate clears the token slot so the next Acquire forces a fetch.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.cached = ""
	m.mu.Unlock()
}

// fetch POSTs the password grant to the token endpoint, validates the
// response shape, and stores the new token in the slot.
func (m *Manager) fetch(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {m.clientID},
		"username":   {m.username},
		"password":   {m.password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	result, err := gojsonschema.Validate(compiledTokenSchema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return "", errors.NewInvalidTokenResponseError("token response is not valid JSON", err)
	}
	if !result.Valid() {
		return "", errors.NewInvalidTokenResponseError(
			fmt.Sprintf("token response failed schema validation: %s", schemaErrors(result)), nil)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", errors.NewInvalidTokenResponseError("failed to decode token response", err)
	}

	m.mu.Lock()
	m.cached = tr.AccessToken
	m.mu.Unlock()

	logger.Debugf("fetched new access token, expires in %ds", tr.ExpiresIn)
	return tr.AccessToken, nil
}

// schemaErrors flattens a gojsonschema result into one message.
func schemaErrors(result *gojsonschema.Result) string {
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return strings.Join(msgs, "; ")
}
