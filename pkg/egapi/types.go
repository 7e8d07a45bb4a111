// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package egapi is the typed, authenticated, rate-limited client for the DAC
// platform API. All cross-cutting transport concerns (bearer auth with
// transparent refresh, global throttling, single-shot retries) live in the
// RoundTripper chain; the endpoint methods only shape requests and parse
// responses.
package egapi

import (
	"github.com/stacklok/dacsync/pkg/accession"
)

// Dataset is a dataset released under the DAC. Fetched once per job run,
// never mutated.
type Dataset struct {
	AccessionID accession.DatasetID `json:"accession_id"`
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
}

// PlatformUser is the platform's user record. Email may be null even when id
// is present; id is the true primary key.
type PlatformUser struct {
	ID          int64            `json:"id"`
	Username    string           `json:"username"`
	Email       *string          `json:"email"`
	AccessionID accession.UserID `json:"accession_id"`
}

// Permission is an existing grant on the platform. The engine only creates
// or revokes permissions, never edits them.
type Permission struct {
	PermissionID       int64               `json:"permission_id"`
	Username           string              `json:"username"`
	UserAccessionID    accession.UserID    `json:"user_accession_id"`
	DatasetAccessionID accession.DatasetID `json:"dataset_accession_id"`
	DacAccessionID     accession.DacID     `json:"dac_accession_id"`
}

// RequestData carries the free-text comment attached to a permission request.
type RequestData struct {
	Comment string `json:"comment"`
}

// PermissionRequest asks the platform for a grant. Construction-only.
type PermissionRequest struct {
	Username           string              `json:"username"`
	DatasetAccessionID accession.DatasetID `json:"dataset_accession_id"`
	RequestData        RequestData         `json:"request_data"`
}

// CreatedRequest is the platform's record of a pending permission request,
// returned by the bulk create endpoint.
type CreatedRequest struct {
	RequestID          int64               `json:"request_id"`
	Username           string              `json:"username"`
	DatasetAccessionID accession.DatasetID `json:"dataset_accession_id"`
}

// ApprovePermissionRequest approves a pending request. ExpiresAt is the
// ISO-8601 expiry of the approving application; the platform permission
// expiry equals the local application expiry.
type ApprovePermissionRequest struct {
	RequestID int64  `json:"request_id"`
	ExpiresAt string `json:"expires_at"`
}

// RevokePermissionRequest revokes an existing permission.
type RevokePermissionRequest struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
}

// approveResponse is the body of the bulk approve endpoint.
type approveResponse struct {
	NumGranted int `json:"num_granted"`
}

// revokeResponse is the body of the bulk revoke endpoint.
type revokeResponse struct {
	NumRevoked int `json:"num_revoked"`
}
