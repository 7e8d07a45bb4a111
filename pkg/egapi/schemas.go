// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package egapi

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// JSON schemas for every record shape crossing the wire. Validation is
// strict: accession identifiers must match their fixed patterns, and a
// record failing its schema is a parse failure for that record only.
const (
	datasetSchema = `{
		"type": "object",
		"required": ["accession_id", "title"],
		"properties": {
			"accession_id": {"type": "string", "pattern": "^EGAD[0-9]{11}$"},
			"title": {"type": "string"},
			"description": {"type": ["string", "null"]}
		}
	}`

	platformUserSchema = `{
		"type": "object",
		"required": ["id", "username", "accession_id"],
		"properties": {
			"id": {"type": "integer"},
			"username": {"type": "string", "minLength": 1},
			"email": {"type": ["string", "null"]},
			"accession_id": {"type": "string", "pattern": "^EGAW[0-9]{11}$"}
		}
	}`

	permissionSchema = `{
		"type": "object",
		"required": ["permission_id", "username", "user_accession_id", "dataset_accession_id", "dac_accession_id"],
		"properties": {
			"permission_id": {"type": "integer"},
			"username": {"type": "string", "minLength": 1},
			"user_accession_id": {"type": "string", "pattern": "^EGAW[0-9]{11}$"},
			"dataset_accession_id": {"type": "string", "pattern": "^EGAD[0-9]{11}$"},
			"dac_accession_id": {"type": "string", "pattern": "^EGAC[0-9]{11}$"}
		}
	}`

	createdRequestSchema = `{
		"type": "object",
		"required": ["request_id", "username", "dataset_accession_id"],
		"properties": {
			"request_id": {"type": "integer"},
			"username": {"type": "string", "minLength": 1},
			"dataset_accession_id": {"type": "string", "pattern": "^EGAD[0-9]{11}$"}
		}
	}`
)

var (
	compiledDatasetSchema        = mustSchema(datasetSchema)
	compiledPlatformUserSchema   = mustSchema(platformUserSchema)
	compiledPermissionSchema     = mustSchema(permissionSchema)
	compiledCreatedRequestSchema = mustSchema(createdRequestSchema)
)

func mustSchema(raw string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded schema: %v", err))
	}
	return schema
}
