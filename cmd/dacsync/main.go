// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the dacsync CLI.
package main

import (
	"os"

	"github.com/stacklok/dacsync/cmd/dacsync/app"
	"github.com/stacklok/dacsync/pkg/logger"
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
