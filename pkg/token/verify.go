// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"crypto/rsa"
	stderrors "errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/stacklok/dacsync/pkg/errors"
)

// verifier checks the signature and expiry of a cached access token.
type verifier struct {
	key *rsa.PublicKey
}

// newVerifier parses a PEM-encoded RSA public key.
func newVerifier(pemBytes []byte) (*verifier, error) {
	if len(pemBytes) == 0 {
		return nil, fmt.Errorf("public key is required")
	}

	parsed, err := jwk.ParseKey(pemBytes, jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("failed to parse PEM key: %w", err)
	}

	var raw any
	if err := jwk.Export(parsed, &raw); err != nil {
		return nil, fmt.Errorf("failed to export raw key: %w", err)
	}

	rsaKey, ok := raw.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("expected an RSA public key, got %T", raw)
	}

	return &verifier{key: rsaKey}, nil
}

// verify checks the token signature (RS256) and standard expiry.
// An expired token yields a token_expired error; any other failure is
// reported as-is for the caller to log.
func (v *verifier) verify(tokenString string) error {
	_, err := jwt.Parse(tokenString, func(_ *jwt.Token) (any, error) {
		return v.key, nil
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithExpirationRequired())
	if err == nil {
		return nil
	}
	if stderrors.Is(err, jwt.ErrTokenExpired) {
		return errors.NewTokenExpiredError("access token expired", err)
	}
	return fmt.Errorf("token verification failed: %w", err)
}
