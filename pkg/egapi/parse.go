// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package egapi

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/stacklok/dacsync/pkg/errors"
)

// ParseResult is the outcome of parsing a JSON array per item. The call as a
// whole succeeds even when some elements fail; only transport-level or
// top-level shape errors mark a call failed.
type ParseResult[T any] struct {
	Success []T
	Failure []error
}

// ParseMany validates each element of a JSON array against schema and
// decodes the valid ones into T. An element that fails validation or
// decoding lands in Failure as a schema_failure; it never aborts the others.
func ParseMany[T any](schema *gojsonschema.Schema, data []byte) (ParseResult[T], error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return ParseResult[T]{}, errors.NewSchemaFailureError("response is not a JSON array", err)
	}

	out := ParseResult[T]{Success: make([]T, 0, len(items))}
	for i, item := range items {
		result, err := schema.Validate(gojsonschema.NewBytesLoader(item))
		if err != nil {
			out.Failure = append(out.Failure,
				errors.NewSchemaFailureError(fmt.Sprintf("element %d is not valid JSON", i), err))
			continue
		}
		if !result.Valid() {
			out.Failure = append(out.Failure,
				errors.NewSchemaFailureError(
					fmt.Sprintf("element %d failed validation: %s", i, validationErrors(result)), nil))
			continue
		}

		var decoded T
		if err := json.Unmarshal(item, &decoded); err != nil {
			out.Failure = append(out.Failure,
				errors.NewSchemaFailureError(fmt.Sprintf("element %d failed to decode", i), err))
			continue
		}
		out.Success = append(out.Success, decoded)
	}

	return out, nil
}

// parseOne validates and decodes a single JSON object.
func parseOne[T any](schema *gojsonschema.Schema, data []byte) (T, error) {
	var decoded T

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return decoded, errors.NewSchemaFailureError("response is not valid JSON", err)
	}
	if !result.Valid() {
		return decoded, errors.NewSchemaFailureError(
			fmt.Sprintf("response failed validation: %s", validationErrors(result)), nil)
	}

	if err := json.Unmarshal(data, &decoded); err != nil {
		return decoded, errors.NewSchemaFailureError("response failed to decode", err)
	}
	return decoded, nil
}

func validationErrors(result *gojsonschema.Result) string {
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return strings.Join(msgs, "; ")
}
