// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes Prometheus counters for reconciliation runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts reconciliation runs by result.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dacsync_runs_total",
		Help: "Reconciliation runs by result.",
	}, []string{"result"})

	// PermissionsGrantedTotal counts permissions granted across runs.
	PermissionsGrantedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dacsync_permissions_granted_total",
		Help: "Permissions granted on the platform.",
	})

	// PermissionsRevokedTotal counts permissions revoked across runs.
	PermissionsRevokedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dacsync_permissions_revoked_total",
		Help: "Permissions revoked on the platform.",
	})

	// APIErrorsTotal counts platform API errors by kind.
	APIErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dacsync_api_errors_total",
		Help: "Platform API errors by error kind.",
	}, []string{"kind"})
)
