// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package approval projects approved applications onto the deduplicated
// list of users authorized for the DAC.
package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/stacklok/dacsync/pkg/storage"
)

// ApprovedUser is one user authorized by an approved application, applicant
// or collaborator, carrying the application's expiry and id.
type ApprovedUser struct {
	Email     string
	AppExpiry time.Time
	AppID     string
}

// ProjectApproved reads the approved applications and emits one ApprovedUser
// per applicant and per collaborator, deduplicated by email with the first
// occurrence kept. Purely in-process; fails only if the store read fails.
func ProjectApproved(ctx context.Context, store storage.ApplicationStore) ([]ApprovedUser, error) {
	apps, err := store.ListApproved(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list approved applications: %w", err)
	}

	var users []ApprovedUser
	seen := make(map[string]struct{})
	add := func(email string, app storage.Application) {
		if email == "" {
			return
		}
		if _, ok := seen[email]; ok {
			return
		}
		seen[email] = struct{}{}
		users = append(users, ApprovedUser{
			Email:     email,
			AppExpiry: app.ExpiresAt,
			AppID:     app.ID,
		})
	}

	for _, app := range apps {
		add(app.ApplicantEmail, app)
		for _, collaborator := range app.Collaborators {
			add(collaborator, app)
		}
	}

	return users, nil
}
