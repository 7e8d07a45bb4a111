// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package storage provides the interface to the authoritative application
// store. The engine only ever reads from it; applications are managed by a
// separate system.
package storage

import (
	"context"
	"time"
)

// ApplicationState is the lifecycle state of a data-access application.
type ApplicationState string

// Application states relevant to reconciliation.
const (
	StateApproved ApplicationState = "approved"
	StateExpired  ApplicationState = "expired"
	StateRevoked  ApplicationState = "revoked"
)

// Application is one data-access application: an applicant plus their listed
// collaborators, with the expiry instant granted on approval.
type Application struct {
	// ID is the application identifier in the authoritative store.
	ID string

	// ApplicantEmail is the applicant's email address.
	ApplicantEmail string

	// State is the current lifecycle state.
	State ApplicationState

	// ExpiresAt is the instant the approval lapses.
	ExpiresAt time.Time

	// Collaborators are the collaborator email addresses listed on the
	// application.
	Collaborators []string
}

// ApplicationStore reads applications from the authoritative store.
type ApplicationStore interface {
	// ListApproved returns every application currently in the approved
	// state, collaborators included.
	ListApproved(ctx context.Context) ([]Application, error)

	// Close releases any resources held by the store.
	Close() error
}
