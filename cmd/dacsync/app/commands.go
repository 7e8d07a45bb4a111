// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the dacsync command-line
// application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:               "dacsync",
	DisableAutoGenTag: true,
	Short:             "dacsync reconciles DAC platform permissions with approved applications",
	Long: `dacsync keeps a data access committee's platform permissions in sync with its
authoritative list of approved applications. Each run grants the dataset
permissions approved users are missing and revokes the permissions of users
who are no longer approved, then emits a structured job report.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// NewRootCmd creates a new root command for the dacsync CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(runCmd)

	return rootCmd
}
