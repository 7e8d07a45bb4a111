// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package sqlite implements the application store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // sqlite driver

	"github.com/stacklok/dacsync/pkg/storage"
)

// ApplicationStore implements storage.ApplicationStore using SQLite.
type ApplicationStore struct {
	db *sql.DB
}

var _ storage.ApplicationStore = (*ApplicationStore)(nil)

// NewApplicationStore opens the database at path and applies pending
// migrations.
func NewApplicationStore(ctx context.Context, path string) (*ApplicationStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &ApplicationStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *ApplicationStore) Close() error {
	return s.db.Close()
}

// ListApproved returns every application currently in the approved state,
// collaborators included.
func (s *ApplicationStore) ListApproved(ctx context.Context) ([]storage.Application, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, applicant_email, expires_at
		FROM applications
		WHERE state = ?
		ORDER BY id`,
		string(storage.StateApproved),
	)
	if err != nil {
		return nil, fmt.Errorf("querying approved applications: %w", err)
	}
	defer rows.Close()

	var apps []storage.Application
	index := make(map[string]int)
	for rows.Next() {
		var app storage.Application
		var expiresAt string
		if err := rows.Scan(&app.ID, &app.ApplicantEmail, &expiresAt); err != nil {
			return nil, fmt.Errorf("scanning application: %w", err)
		}
		app.State = storage.StateApproved
		app.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt)
		if err != nil {
			return nil, fmt.Errorf("parsing expiry of application %s: %w", app.ID, err)
		}
		index[app.ID] = len(apps)
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating applications: %w", err)
	}

	if len(apps) == 0 {
		return apps, nil
	}

	collabRows, err := s.db.QueryContext(ctx,
		`SELECT c.application_id, c.email
		FROM collaborators c
		JOIN applications a ON a.id = c.application_id
		WHERE a.state = ?
		ORDER BY c.rowid`,
		string(storage.StateApproved),
	)
	if err != nil {
		return nil, fmt.Errorf("querying collaborators: %w", err)
	}
	defer collabRows.Close()

	for collabRows.Next() {
		var appID, email string
		if err := collabRows.Scan(&appID, &email); err != nil {
			return nil, fmt.Errorf("scanning collaborator: %w", err)
		}
		if i, ok := index[appID]; ok {
			apps[i].Collaborators = append(apps[i].Collaborators, email)
		}
	}
	if err := collabRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating collaborators: %w", err)
	}

	return apps, nil
}

// Insert stores an application with its collaborators. It exists for seed
// tooling and tests; the engine itself never writes.
func (s *ApplicationStore) Insert(ctx context.Context, app storage.Application) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO applications (id, applicant_email, state, expires_at)
		VALUES (?, ?, ?, ?)`,
		app.ID, app.ApplicantEmail, string(app.State), app.ExpiresAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting application: %w", err)
	}

	for _, email := range app.Collaborators {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO collaborators (application_id, email) VALUES (?, ?)`,
			app.ID, email,
		); err != nil {
			return fmt.Errorf("inserting collaborator: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
