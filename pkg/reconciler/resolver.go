// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package reconciler

import (
	"context"
	"time"

	"github.com/stacklok/dacsync/pkg/accession"
	"github.com/stacklok/dacsync/pkg/approval"
	"github.com/stacklok/dacsync/pkg/egapi"
	"github.com/stacklok/dacsync/pkg/errors"
	"github.com/stacklok/dacsync/pkg/logger"
)

// PlatformAPI is the slice of the platform client the reconciler uses.
// *egapi.Client satisfies it.
type PlatformAPI interface {
	GetDatasets(ctx context.Context, dacID accession.DacID) (egapi.ParseResult[egapi.Dataset], error)
	GetUser(ctx context.Context, email string) (egapi.PlatformUser, error)
	GetDatasetPermissions(
		ctx context.Context, dacID accession.DacID, datasetID accession.DatasetID, limit, offset int,
	) (egapi.ParseResult[egapi.Permission], error)
	GetUserPermissions(ctx context.Context, userID int64, limit int) (egapi.ParseResult[egapi.Permission], error)
	CreatePermissionRequests(
		ctx context.Context, requests []egapi.PermissionRequest,
	) (egapi.ParseResult[egapi.CreatedRequest], error)
	ApprovePermissionRequests(ctx context.Context, approvals []egapi.ApprovePermissionRequest) (int, error)
	RevokePermissions(ctx context.Context, revocations []egapi.RevokePermissionRequest) (int, error)
}

// ResolvedUser merges a platform user record with the approved application
// that authorized them.
type ResolvedUser struct {
	egapi.PlatformUser

	// AppExpiry is the approving application's expiry instant; it becomes
	// the platform permission expiry.
	AppExpiry time.Time

	// AppID is the approving application's id.
	AppID string
}

// ResolvedMap indexes resolved users by platform username. For the duration
// of a run its keys are precisely the usernames authorized for the DAC.
type ResolvedMap map[string]ResolvedUser

// resolveUsers looks up each approved user on the platform by email. A user
// that cannot be resolved (not found, schema failure, server error) is
// logged and omitted; reconciliation continues for the others.
func resolveUsers(ctx context.Context, api PlatformAPI, approved []approval.ApprovedUser) ResolvedMap {
	resolved := make(ResolvedMap, len(approved))
	for _, user := range approved {
		if ctx.Err() != nil {
			logger.Warnf("user resolution cancelled after %d of %d users", len(resolved), len(approved))
			return resolved
		}

		platformUser, err := api.GetUser(ctx, user.Email)
		if err != nil {
			switch {
			case errors.IsNotFound(err):
				logger.Infow("approved user not registered on the platform", "email", user.Email)
			case errors.IsSchemaFailure(err):
				logger.Warnw("platform returned an invalid user record", "email", user.Email, "error", err)
			default:
				logger.Warnw("failed to resolve user", "email", user.Email, "error", err)
			}
			continue
		}

		resolved[platformUser.Username] = ResolvedUser{
			PlatformUser: platformUser,
			AppExpiry:    user.AppExpiry,
			AppID:        user.AppID,
		}
	}
	return resolved
}
