// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package egapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/dacsync/pkg/errors"
)

func TestParseManyMixedItems(t *testing.T) {
	t.Parallel()

	data := []byte(`[
		{"accession_id": "EGAD00000000001", "title": "WGS cohort"},
		{"accession_id": "not-an-accession", "title": "broken"},
		{"title": "missing accession"},
		{"accession_id": "EGAD00000000002", "title": "RNA-seq", "description": "tissue panel"}
	]`)

	result, err := ParseMany[Dataset](compiledDatasetSchema, data)
	require.NoError(t, err)

	require.Len(t, result.Success, 2)
	assert.Equal(t, "EGAD00000000001", string(result.Success[0].AccessionID))
	assert.Equal(t, "RNA-seq", result.Success[1].Title)

	require.Len(t, result.Failure, 2)
	for _, failure := range result.Failure {
		assert.True(t, errors.IsSchemaFailure(failure))
	}
}

func TestParseManyNotAnArray(t *testing.T) {
	t.Parallel()

	_, err := ParseMany[Dataset](compiledDatasetSchema, []byte(`{"accession_id": "EGAD00000000001"}`))
	require.Error(t, err)
	assert.True(t, errors.IsSchemaFailure(err))
}

func TestParseManyEmptyArray(t *testing.T) {
	t.Parallel()

	result, err := ParseMany[Permission](compiledPermissionSchema, []byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, result.Success)
	assert.Empty(t, result.Failure)
}

func TestParseOnePlatformUserNullEmail(t *testing.T) {
	t.Parallel()

	// Email may be null even when id is present; id is the primary key.
	user, err := parseOne[PlatformUser](compiledPlatformUserSchema,
		[]byte(`{"id": 7, "username": "alice", "email": null, "accession_id": "EGAW00000000007"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)
	assert.Nil(t, user.Email)
}

func TestParseOneRejectsBadAccession(t *testing.T) {
	t.Parallel()

	_, err := parseOne[PlatformUser](compiledPlatformUserSchema,
		[]byte(`{"id": 7, "username": "alice", "email": null, "accession_id": "EGAD00000000007"}`))
	require.Error(t, err)
	assert.True(t, errors.IsSchemaFailure(err))
}
