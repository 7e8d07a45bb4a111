// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package reconciler brings the DAC platform's permission set into alignment
// with the authoritative approved-user list.
//
// A run executes two passes: the missing-permission creation pass walks
// every resolved user and grants what they lack; the revocation pass walks
// every dataset and revokes grants held by users no longer approved. Both
// passes are diff-driven, so a crashed or partial run converges on re-entry.
package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/dacsync/pkg/accession"
	"github.com/stacklok/dacsync/pkg/approval"
	"github.com/stacklok/dacsync/pkg/egapi"
	"github.com/stacklok/dacsync/pkg/errors"
	"github.com/stacklok/dacsync/pkg/logger"
	"github.com/stacklok/dacsync/pkg/metrics"
	"github.com/stacklok/dacsync/pkg/storage"
)

// State is the reconciler's position in its run lifecycle.
type State string

// Run states.
const (
	StateIdle                State = "Idle"
	StateFetchingDatasets    State = "FetchingDatasets"
	StateResolvingUsers      State = "ResolvingUsers"
	StateCreatingPermissions State = "CreatingPermissions"
	StateRevokingPermissions State = "RevokingPermissions"
	StateReporting           State = "Reporting"
	StateAborted             State = "Aborted"
)

const (
	defaultJobName = "dac-permissions-reconciliation"

	// grantComment identifies the DAC as grantor on created requests.
	grantComment = "Permission granted by the data access committee"

	// revokeReason is attached to every revocation.
	revokeReason = "DAC data access has expired"
)

// Options configures a Reconciler.
type Options struct {
	// DacID is the DAC accession to reconcile.
	DacID accession.DacID

	// API is the platform client.
	API PlatformAPI

	// Store is the authoritative application store.
	Store storage.ApplicationStore

	// PageLimit is the page size for dataset permission pagination.
	// Defaults to 50.
	PageLimit int

	// PageStep is how far the offset advances per page. Defaults to
	// PageLimit.
	PageStep int

	// MaxBatchSize is the ceiling on single-batch mutations. Defaults to
	// 2000.
	MaxBatchSize int

	// JobName names the job in reports. Defaults to
	// "dac-permissions-reconciliation".
	JobName string
}

// Reconciler runs the two reconciliation passes and produces the job report.
// State is per-run; a Reconciler must not run concurrently with itself.
type Reconciler struct {
	dacID    accession.DacID
	api      PlatformAPI
	store    storage.ApplicationStore
	pageSize int
	pageStep int
	maxBatch int
	jobName  string

	mu    sync.Mutex
	state State
}

// New creates a Reconciler.
func New(opts Options) (*Reconciler, error) {
	if !opts.DacID.Valid() {
		return nil, fmt.Errorf("invalid DAC accession %q", opts.DacID)
	}
	if opts.API == nil {
		return nil, fmt.Errorf("platform API is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("application store is required")
	}

	pageSize := opts.PageLimit
	if pageSize <= 0 {
		pageSize = 50
	}
	pageStep := opts.PageStep
	if pageStep <= 0 {
		pageStep = pageSize
	}
	maxBatch := opts.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = 2000
	}
	jobName := opts.JobName
	if jobName == "" {
		jobName = defaultJobName
	}

	return &Reconciler{
		dacID:    opts.DacID,
		api:      opts.API,
		store:    opts.Store,
		pageSize: pageSize,
		pageStep: pageStep,
		maxBatch: maxBatch,
		jobName:  jobName,
		state:    StateIdle,
	}, nil
}

// State returns the reconciler's current run state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Reconciler) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	logger.Debugw("reconciler state", "state", string(s))
}

// Run executes one reconciliation and returns its report. Only the dataset
// enumeration (and the authoritative store read) can abort the run; every
// other failure is recorded in the report and the run proceeds.
func (r *Reconciler) Run(ctx context.Context) JobReport {
	report := JobReport{
		JobName:   r.jobName,
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	defer r.setState(StateIdle)

	r.setState(StateFetchingDatasets)
	datasetsResult, err := r.api.GetDatasets(ctx, r.dacID)
	if err != nil {
		return r.abort(report, errors.NewFatalBootstrapError("failed to enumerate DAC datasets", err))
	}
	for _, failure := range datasetsResult.Failure {
		logger.Warnw("skipping invalid dataset record", "error", failure)
	}
	datasets := datasetsResult.Success

	approved, err := approval.ProjectApproved(ctx, r.store)
	if err != nil {
		return r.abort(report, errors.NewFatalBootstrapError("failed to read approved applications", err))
	}

	r.setState(StateResolvingUsers)
	resolved := resolveUsers(ctx, r.api, approved)
	logger.Infow("resolved approved users",
		"approved", len(approved), "resolved", len(resolved), "datasets", len(datasets))

	details := ReconciliationDetails{
		ApprovedUsersCount: len(approved),
		ResolvedUsersCount: len(resolved),
		DatasetsCount:      len(datasets),
	}

	r.setState(StateCreatingPermissions)
	details.PermissionsCreated = r.createMissingPermissions(ctx, datasets, resolved)

	r.setState(StateRevokingPermissions)
	details.PermissionsRevoked = r.revokeStalePermissions(ctx, datasets, resolved)

	r.setState(StateReporting)
	report.Details = details
	report.Success = len(details.PermissionsCreated.Errors) == 0 &&
		len(details.PermissionsRevoked.Errors) == 0
	report.FinishedAt = time.Now().UTC()

	result := "success"
	if !report.Success {
		result = "failure"
	}
	metrics.RunsTotal.WithLabelValues(result).Inc()
	metrics.PermissionsGrantedTotal.Add(float64(details.PermissionsCreated.Num))
	metrics.PermissionsRevokedTotal.Add(float64(details.PermissionsRevoked.Num))

	logger.Infow("reconciliation finished",
		"job", report.JobName,
		"run_id", report.RunID,
		"duration", report.Duration().String(),
		"granted", details.PermissionsCreated.Num,
		"revoked", details.PermissionsRevoked.Num,
		"success", report.Success)
	return report
}

// abort finalizes a failure report without touching any mutation endpoint.
func (r *Reconciler) abort(report JobReport, err error) JobReport {
	r.setState(StateAborted)
	logger.Errorw("reconciliation aborted", "job", report.JobName, "error", err)

	report.Success = false
	report.Error = err.Error()
	report.FinishedAt = time.Now().UTC()
	metrics.RunsTotal.WithLabelValues("failure").Inc()
	r.countAPIError(err)
	return report
}

// createMissingPermissions is pass 1: for every resolved user, grant the
// permissions they lack. A user is successfully processed iff every missing
// permission was granted and no transport or schema error was recorded for
// them.
func (r *Reconciler) createMissingPermissions(
	ctx context.Context, datasets []egapi.Dataset, resolved ResolvedMap,
) PhaseDetails {
	phase := PhaseDetails{Expected: len(resolved)}

	for username, user := range resolved {
		if ctx.Err() != nil {
			r.recordError(&phase, fmt.Errorf("run cancelled: %w", ctx.Err()))
			break
		}

		userErrs := 0
		record := func(err error) {
			r.recordError(&phase, err)
			userErrs++
		}

		held, err := r.fetchHeldDatasets(ctx, user, len(datasets), record)
		if err != nil {
			continue
		}

		var requests []egapi.PermissionRequest
		for _, dataset := range datasets {
			if held[dataset.AccessionID] {
				continue
			}
			requests = append(requests, egapi.PermissionRequest{
				Username:           username,
				DatasetAccessionID: dataset.AccessionID,
				RequestData:        egapi.RequestData{Comment: grantComment},
			})
		}

		missingCount := len(requests)
		grantedCount := 0
		expiresAt := user.AppExpiry.Format(time.RFC3339)

		for _, batch := range chunk(requests, r.maxBatch) {
			if ctx.Err() != nil {
				record(fmt.Errorf("run cancelled: %w", ctx.Err()))
				break
			}

			created, err := r.api.CreatePermissionRequests(ctx, batch)
			if err != nil {
				record(fmt.Errorf("failed to create permission requests for %s: %w", username, err))
				continue
			}
			for _, failure := range created.Failure {
				record(fmt.Errorf("invalid created request for %s: %w", username, failure))
			}
			if len(created.Success) == 0 {
				continue
			}

			approvals := make([]egapi.ApprovePermissionRequest, 0, len(created.Success))
			for _, req := range created.Success {
				approvals = append(approvals, egapi.ApprovePermissionRequest{
					RequestID: req.RequestID,
					ExpiresAt: expiresAt,
				})
			}

			granted, err := r.api.ApprovePermissionRequests(ctx, approvals)
			if err != nil {
				record(fmt.Errorf("failed to approve permission requests for %s: %w", username, err))
				continue
			}
			grantedCount += granted
		}

		if missingCount > 0 {
			logger.Infow("granted missing permissions",
				"username", username, "missing", missingCount, "granted", grantedCount)
		}
		phase.Num += grantedCount
		if userErrs == 0 && grantedCount == missingCount {
			phase.Processed++
		}
	}

	phase.Status = deriveStatus(len(phase.Errors), phase.Processed, phase.Expected)
	return phase
}

// fetchHeldDatasets returns the set of datasets the user already holds a
// permission for. The returned error only signals that the user must be
// skipped; it has already been recorded.
func (r *Reconciler) fetchHeldDatasets(
	ctx context.Context, user ResolvedUser, datasetCount int, record func(error),
) (map[accession.DatasetID]bool, error) {
	fetched, err := r.api.GetUserPermissions(ctx, user.ID, datasetCount)
	if err != nil {
		record(fmt.Errorf("failed to fetch permissions of user %d: %w", user.ID, err))
		return nil, err
	}
	for _, failure := range fetched.Failure {
		record(fmt.Errorf("invalid permission record for user %d: %w", user.ID, failure))
	}

	held := make(map[accession.DatasetID]bool, len(fetched.Success))
	for _, permission := range fetched.Success {
		held[permission.DatasetAccessionID] = true
	}
	return held, nil
}

// revokeStalePermissions is pass 2: for every dataset, revoke permissions
// held by users outside the resolved map. A failed page terminates
// pagination for that dataset only.
func (r *Reconciler) revokeStalePermissions(
	ctx context.Context, datasets []egapi.Dataset, resolved ResolvedMap,
) PhaseDetails {
	phase := PhaseDetails{Expected: len(datasets)}

	for _, dataset := range datasets {
		if ctx.Err() != nil {
			r.recordError(&phase, fmt.Errorf("run cancelled: %w", ctx.Err()))
			break
		}

		datasetErrs := 0
		record := func(err error) {
			r.recordError(&phase, err)
			datasetErrs++
		}

		// Deduplicate by permission_id in case the upstream pagination
		// repeats items across pages.
		permissions := make(map[int64]egapi.Permission)
		offset := 0
		for {
			page, err := r.api.GetDatasetPermissions(ctx, r.dacID, dataset.AccessionID, r.pageSize, offset)
			if err != nil {
				record(fmt.Errorf("failed to page permissions of dataset %s at offset %d: %w",
					dataset.AccessionID, offset, err))
				break
			}
			for _, failure := range page.Failure {
				record(fmt.Errorf("invalid permission record in dataset %s: %w", dataset.AccessionID, failure))
			}
			for _, permission := range page.Success {
				permissions[permission.PermissionID] = permission
			}
			if len(page.Success)+len(page.Failure) < r.pageSize {
				break
			}
			offset += r.pageStep
		}

		var toRevoke []egapi.RevokePermissionRequest
		for id, permission := range permissions {
			if _, ok := resolved[permission.Username]; !ok {
				toRevoke = append(toRevoke, egapi.RevokePermissionRequest{ID: id, Reason: revokeReason})
			}
		}

		revoked := 0
		for _, batch := range chunk(toRevoke, r.maxBatch) {
			if ctx.Err() != nil {
				record(fmt.Errorf("run cancelled: %w", ctx.Err()))
				break
			}
			n, err := r.api.RevokePermissions(ctx, batch)
			if err != nil {
				record(fmt.Errorf("failed to revoke permissions of dataset %s: %w", dataset.AccessionID, err))
				continue
			}
			revoked += n
		}

		if len(toRevoke) > 0 {
			logger.Infow("revoked stale permissions",
				"dataset", string(dataset.AccessionID), "stale", len(toRevoke), "revoked", revoked)
		}

		// Post-condition: what remains on the dataset must match the
		// resolved user count exactly.
		incorrectCount := len(permissions)-revoked != len(resolved)
		if incorrectCount {
			phase.HasIncorrectPermissionsCount = true
			logger.Warnw("post-revoke permission count mismatch",
				"dataset", string(dataset.AccessionID),
				"remaining", len(permissions)-revoked,
				"resolved", len(resolved))
		}

		phase.Num += revoked
		if datasetErrs == 0 && revoked == len(toRevoke) && !incorrectCount {
			phase.Processed++
		}
	}

	phase.Status = deriveStatus(len(phase.Errors), phase.Processed, phase.Expected)
	return phase
}

func (r *Reconciler) recordError(phase *PhaseDetails, err error) {
	logger.Errorw("reconciliation error", "error", err)
	phase.Errors = append(phase.Errors, err.Error())
	r.countAPIError(err)
}

func (*Reconciler) countAPIError(err error) {
	kind := errors.Kind(err)
	if kind == "" {
		kind = "unknown"
	}
	metrics.APIErrorsTotal.WithLabelValues(kind).Inc()
}
