// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package accession

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDacID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid", input: "EGAC00000000001", wantErr: false},
		{name: "wrong prefix", input: "EGAD00000000001", wantErr: true},
		{name: "too short", input: "EGAC0000000001", wantErr: true},
		{name: "too long", input: "EGAC000000000001", wantErr: true},
		{name: "lowercase", input: "egac00000000001", wantErr: true},
		{name: "non digits", input: "EGAC0000000000X", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			id, err := ParseDacID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Empty(t, id)
			} else {
				require.NoError(t, err)
				assert.Equal(t, DacID(tt.input), id)
				assert.True(t, id.Valid())
			}
		})
	}
}

func TestParseDatasetID(t *testing.T) {
	t.Parallel()

	id, err := ParseDatasetID("EGAD00000000042")
	require.NoError(t, err)
	assert.True(t, id.Valid())

	_, err = ParseDatasetID("EGAW00000000042")
	require.Error(t, err)
}

func TestParseUserID(t *testing.T) {
	t.Parallel()

	id, err := ParseUserID("EGAW00000000042")
	require.NoError(t, err)
	assert.True(t, id.Valid())

	_, err = ParseUserID("EGAD00000000042")
	require.Error(t, err)
}
