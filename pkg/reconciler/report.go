// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package reconciler

import (
	"time"
)

// CompletionStatus is the derived outcome of one reconciliation pass.
type CompletionStatus string

// Pass completion statuses.
const (
	StatusSuccess    CompletionStatus = "SUCCESS"
	StatusFailure    CompletionStatus = "FAILURE"
	StatusIncomplete CompletionStatus = "INCOMPLETE"
)

// deriveStatus derives a pass status from its error count and how many of
// the expected items were successfully processed.
func deriveStatus(errs, processed, expected int) CompletionStatus {
	switch {
	case errs > 0:
		return StatusFailure
	case processed == expected:
		return StatusSuccess
	default:
		return StatusIncomplete
	}
}

// PhaseDetails is the sub-report of one reconciliation pass.
type PhaseDetails struct {
	// Num is the number of permissions created or revoked by the pass.
	Num int `json:"num"`

	// Processed is the number of users (pass 1) or datasets (pass 2)
	// successfully processed.
	Processed int `json:"processed"`

	// Expected is the number of users or datasets the pass covered.
	Expected int `json:"expected"`

	// Status is derived from (errors, processed, expected).
	Status CompletionStatus `json:"status"`

	// Errors are the transport and schema errors recorded during the pass.
	Errors []string `json:"errors,omitempty"`

	// HasIncorrectPermissionsCount flags a failed post-revoke count check
	// (pass 2 only).
	HasIncorrectPermissionsCount bool `json:"hasIncorrectPermissionsCount,omitempty"`
}

// ReconciliationDetails carries the per-phase sub-reports of one run.
type ReconciliationDetails struct {
	// ApprovedUsersCount is the size of the deduplicated approved-user
	// projection from the authoritative store.
	ApprovedUsersCount int `json:"approvedDacoUsersCount"`

	// ResolvedUsersCount is the number of approved users that resolved to
	// a platform user record.
	ResolvedUsersCount int `json:"approvedEgaUsersCount"`

	// DatasetsCount is the number of datasets enumerated for the DAC.
	DatasetsCount int `json:"datasetsCount"`

	// PermissionsCreated reports the missing-permission creation pass.
	PermissionsCreated PhaseDetails `json:"permissionsCreated"`

	// PermissionsRevoked reports the stale-permission revocation pass.
	PermissionsRevoked PhaseDetails `json:"permissionsRevoked"`
}

// JobReport is the structured result of one reconciliation run.
type JobReport struct {
	JobName    string                `json:"job_name"`
	RunID      string                `json:"run_id"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Success    bool                  `json:"success"`
	Error      string                `json:"error,omitempty"`
	Details    ReconciliationDetails `json:"details"`
}

// Duration returns the wall-clock duration of the run.
func (r *JobReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
