// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package accession defines the opaque accession identifier types used by the
// DAC platform. Each identifier is an upper-case ASCII string with a fixed
// prefix and exactly eleven digits; values are validated on ingress and a
// value failing its pattern is a parse failure for that record only.
package accession

import (
	"fmt"
	"regexp"
)

var (
	dacPattern     = regexp.MustCompile(`^EGAC\d{11}$`)
	datasetPattern = regexp.MustCompile(`^EGAD\d{11}$`)
	userPattern    = regexp.MustCompile(`^EGAW\d{11}$`)
)

// DacID identifies a Data Access Committee (EGAC followed by 11 digits).
type DacID string

// DatasetID identifies a dataset released under a DAC (EGAD followed by 11 digits).
type DatasetID string

// UserID identifies a platform user (EGAW followed by 11 digits).
type UserID string

// Valid reports whether the DAC accession matches its pattern.
func (d DacID) Valid() bool {
	return dacPattern.MatchString(string(d))
}

// Valid reports whether the dataset accession matches its pattern.
func (d DatasetID) Valid() bool {
	return datasetPattern.MatchString(string(d))
}

// Valid reports whether the user accession matches its pattern.
func (u UserID) Valid() bool {
	return userPattern.MatchString(string(u))
}

// ParseDacID validates s as a DAC accession.
func ParseDacID(s string) (DacID, error) {
	if !dacPattern.MatchString(s) {
		return "", fmt.Errorf("invalid DAC accession %q", s)
	}
	return DacID(s), nil
}

// ParseDatasetID validates s as a dataset accession.
func ParseDatasetID(s string) (DatasetID, error) {
	if !datasetPattern.MatchString(s) {
		return "", fmt.Errorf("invalid dataset accession %q", s)
	}
	return DatasetID(s), nil
}

// ParseUserID validates s as a user accession.
func ParseUserID(s string) (UserID, error) {
	if !userPattern.MatchString(s) {
		return "", fmt.Errorf("invalid user accession %q", s)
	}
	return UserID(s), nil
}
