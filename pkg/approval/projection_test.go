// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package approval

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/dacsync/pkg/storage"
	"github.com/stacklok/dacsync/pkg/storage/sqlite"
)

func newStore(t *testing.T) *sqlite.ApplicationStore {
	t.Helper()
	store, err := sqlite.NewApplicationStore(context.Background(), filepath.Join(t.TempDir(), "apps.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestProjectApproved(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx := context.Background()

	expiryA := time.Date(2027, 1, 2, 0, 0, 0, 0, time.UTC)
	expiryB := time.Date(2026, 11, 30, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, storage.Application{
		ID:             "APP-1",
		ApplicantEmail: "alice@x",
		State:          storage.StateApproved,
		ExpiresAt:      expiryA,
		Collaborators:  []string{"bob@x", "carol@x"},
	}))
	require.NoError(t, store.Insert(ctx, storage.Application{
		ID:             "APP-2",
		ApplicantEmail: "bob@x", // duplicate across applications
		State:          storage.StateApproved,
		ExpiresAt:      expiryB,
		Collaborators:  []string{"dave@x"},
	}))
	require.NoError(t, store.Insert(ctx, storage.Application{
		ID:             "APP-3",
		ApplicantEmail: "eve@x",
		State:          storage.StateExpired, // must not be projected
		ExpiresAt:      expiryB,
	}))

	users, err := ProjectApproved(ctx, store)
	require.NoError(t, err)

	emails := make([]string, 0, len(users))
	for _, u := range users {
		emails = append(emails, u.Email)
	}
	assert.Equal(t, []string{"alice@x", "bob@x", "carol@x", "dave@x"}, emails)

	// First occurrence wins: bob entered via APP-1, so he carries its expiry.
	assert.Equal(t, expiryA, users[1].AppExpiry)
	assert.Equal(t, "APP-1", users[1].AppID)
	assert.Equal(t, expiryB, users[3].AppExpiry)
}

func TestProjectApprovedNoDuplicateEmails(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, storage.Application{
		ID:             "APP-1",
		ApplicantEmail: "alice@x",
		State:          storage.StateApproved,
		ExpiresAt:      time.Now().Add(24 * time.Hour).UTC(),
		Collaborators:  []string{"alice@x"}, // applicant listed as own collaborator
	}))

	users, err := ProjectApproved(ctx, store)
	require.NoError(t, err)

	seen := make(map[string]int)
	for _, u := range users {
		seen[u.Email]++
	}
	for email, n := range seen {
		assert.Equal(t, 1, n, "duplicate projection for %s", email)
	}
}

func TestProjectApprovedEmptyStore(t *testing.T) {
	t.Parallel()

	users, err := ProjectApproved(context.Background(), newStore(t))
	require.NoError(t, err)
	assert.Empty(t, users)
}
