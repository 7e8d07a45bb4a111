// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/dacsync/pkg/errors"
)

type signer struct {
	priv *rsa.PrivateKey
	pem  []byte
}

func newSigner(t *testing.T) *signer {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	return &signer{priv: priv, pem: pemBytes}
}

func (s *signer) sign(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "dacsync",
		"exp": expiresAt.Unix(),
	})
	signed, err := tok.SignedString(s.priv)
	require.NoError(t, err)
	return signed
}

// tokenServer serves the password-grant endpoint, handing out tokens from
// the queue and counting requests.
func tokenServer(t *testing.T, requests *atomic.Int64, next func() string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))
		assert.Equal(t, "dacsync", r.PostForm.Get("client_id"))
		assert.Equal(t, "svc-user", r.PostForm.Get("username"))
		assert.Equal(t, "hunter2", r.PostForm.Get("password"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  next(),
			"token_type":    "Bearer",
			"expires_in":    300,
			"refresh_token": "refresh",
		})
	}))
}

func newTestManager(t *testing.T, s *signer, url string) *Manager {
	t.Helper()
	m, err := NewManager(Options{
		TokenURL:     url,
		ClientID:     "dacsync",
		Username:     "svc-user",
		Password:     "hunter2",
		PublicKeyPEM: s.pem,
	})
	require.NoError(t, err)
	return m
}

func TestAcquireCachesValidToken(t *testing.T) {
	t.Parallel()

	s := newSigner(t)
	valid := s.sign(t, time.Now().Add(time.Hour))

	var requests atomic.Int64
	srv := tokenServer(t, &requests, func() string { return valid })
	defer srv.Close()

	m := newTestManager(t, s, srv.URL)

	for i := 0; i < 3; i++ {
		tok, err := m.Acquire(context.Background())
		require.NoError(t, err)
		assert.Equal(t, valid, tok)
	}
	assert.Equal(t, int64(1), requests.Load())
}

func TestAcquireSingleFlight(t *testing.T) {
	t.Parallel()

	s := newSigner(t)
	valid := s.sign(t, time.Now().Add(time.Hour))

	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		time.Sleep(50 * time.Millisecond) // hold concurrent callers on the same fetch
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":%q,"token_type":"Bearer","expires_in":300,"refresh_token":"r"}`, valid)
	}))
	defer srv.Close()

	m := newTestManager(t, s, srv.URL)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := m.Acquire(context.Background())
			assert.NoError(t, err)
			results[i] = tok
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), requests.Load())
	for _, tok := range results {
		assert.Equal(t, valid, tok)
	}
}

func TestAcquireRefreshesExpiredToken(t *testing.T) {
	t.Parallel()

	s := newSigner(t)
	expired := s.sign(t, time.Now().Add(-time.Minute))
	valid := s.sign(t, time.Now().Add(time.Hour))

	tokens := []string{expired, valid}
	var requests atomic.Int64
	srv := tokenServer(t, &requests, func() string {
		return tokens[int(requests.Load())-1]
	})
	defer srv.Close()

	m := newTestManager(t, s, srv.URL)

	tok, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, expired, tok)

	// The cached token is now expired; the next acquire must refetch.
	tok, err = m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, valid, tok)
	assert.Equal(t, int64(2), requests.Load())
}

func TestInvalidateForcesFetch(t *testing.T) {
	t.Parallel()

	s := newSigner(t)
	valid := s.sign(t, time.Now().Add(time.Hour))

	var requests atomic.Int64
	srv := tokenServer(t, &requests, func() string { return valid })
	defer srv.Close()

	m := newTestManager(t, s, srv.URL)

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)
	m.Invalidate()
	_, err = m.Acquire(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), requests.Load())
}

func TestAcquireRejectsInvalidTokenResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "missing access_token", body: `{"token_type":"Bearer","expires_in":300,"refresh_token":"r"}`},
		{name: "wrong token_type", body: `{"access_token":"x","token_type":"MAC","expires_in":300,"refresh_token":"r"}`},
		{name: "not json", body: `<html>nope</html>`},
	}

	s := newSigner(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			m := newTestManager(t, s, srv.URL)
			_, err := m.Acquire(context.Background())
			require.Error(t, err)
			assert.True(t, errors.IsInvalidTokenResponse(err))
		})
	}
}

func TestNewManagerRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewManager(Options{TokenURL: "https://auth.example.org/token"})
	require.Error(t, err)
}
