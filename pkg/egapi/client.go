// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package egapi

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/stacklok/dacsync/pkg/accession"
	"github.com/stacklok/dacsync/pkg/errors"
)

// maxResponseSize caps response bodies to keep a misbehaving upstream from
// exhausting memory.
const maxResponseSize = 16 * 1024 * 1024

// Options configures a Client.
type Options struct {
	// BaseURL is the base URL of the platform API.
	BaseURL string

	// Tokens supplies the bearer credential.
	Tokens TokenSource

	// MaxRequestLimit requests are allowed per MaxRequestInterval, shared
	// across all endpoints. Bursting up to MaxRequestLimit is allowed.
	MaxRequestLimit    int
	MaxRequestInterval time.Duration

	// MaxBatchSize is the ceiling on single-batch mutation bodies. The
	// client rejects larger batches; it does not chunk on the caller's
	// behalf.
	MaxBatchSize int

	// Transport is the base RoundTripper. Defaults to http.DefaultTransport.
	Transport http.RoundTripper

	// Timeout is the per-request timeout. Defaults to 30s.
	Timeout time.Duration
}

// Client is the typed facade over the platform API.
type Client struct {
	baseURL  string
	http     *http.Client
	maxBatch int
}

// NewClient creates a platform API client with the full transport chain.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if opts.Tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}
	if opts.MaxRequestLimit <= 0 || opts.MaxRequestInterval <= 0 {
		return nil, fmt.Errorf("request throttle must be positive")
	}
	if opts.MaxBatchSize <= 0 {
		return nil, fmt.Errorf("max batch size must be positive")
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	limiter := rate.NewLimiter(
		rate.Limit(float64(opts.MaxRequestLimit)/opts.MaxRequestInterval.Seconds()),
		opts.MaxRequestLimit,
	)

	return &Client{
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		http: &http.Client{
			Transport: newTransport(opts.Tokens, limiter, opts.Transport),
			Timeout:   timeout,
		},
		maxBatch: opts.MaxBatchSize,
	}, nil
}

// MaxBatchSize returns the ceiling on single-batch mutations.
func (c *Client) MaxBatchSize() int {
	return c.maxBatch
}

// GetDatasets lists every dataset released under the DAC.
func (c *Client) GetDatasets(ctx context.Context, dacID accession.DacID) (ParseResult[Dataset], error) {
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/dacs/%s/datasets", dacID), nil, nil)
	if err != nil {
		return ParseResult[Dataset]{}, err
	}
	return ParseMany[Dataset](compiledDatasetSchema, body)
}

// GetUser resolves one platform user by email. A 404 surfaces as not_found.
func (c *Client) GetUser(ctx context.Context, email string) (PlatformUser, error) {
	body, err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(email), nil, nil)
	if err != nil {
		return PlatformUser{}, err
	}
	return parseOne[PlatformUser](compiledPlatformUserSchema, body)
}

// GetDatasetPermissions fetches one page of the DAC's permissions for a
// dataset.
func (c *Client) GetDatasetPermissions(
	ctx context.Context, dacID accession.DacID, datasetID accession.DatasetID, limit, offset int,
) (ParseResult[Permission], error) {
	query := url.Values{
		"dataset_accession_id": {string(datasetID)},
		"limit":                {strconv.Itoa(limit)},
		"offset":               {strconv.Itoa(offset)},
	}
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/dacs/%s/permissions", dacID), query, nil)
	if err != nil {
		return ParseResult[Permission]{}, err
	}
	return ParseMany[Permission](compiledPermissionSchema, body)
}

// GetUserPermissions fetches every permission one user holds, capped by
// limit (callers pass the known dataset count).
func (c *Client) GetUserPermissions(ctx context.Context, userID int64, limit int) (ParseResult[Permission], error) {
	query := url.Values{
		"user_id": {strconv.FormatInt(userID, 10)},
		"limit":   {strconv.Itoa(limit)},
	}
	body, err := c.do(ctx, http.MethodGet, "/permissions", query, nil)
	if err != nil {
		return ParseResult[Permission]{}, err
	}
	return ParseMany[Permission](compiledPermissionSchema, body)
}

// CreatePermissionRequests creates permission requests in bulk.
func (c *Client) CreatePermissionRequests(
	ctx context.Context, requests []PermissionRequest,
) (ParseResult[CreatedRequest], error) {
	if err := c.checkBatch(len(requests)); err != nil {
		return ParseResult[CreatedRequest]{}, err
	}
	body, err := c.do(ctx, http.MethodPost, "/requests", nil, requests)
	if err != nil {
		return ParseResult[CreatedRequest]{}, err
	}
	return ParseMany[CreatedRequest](compiledCreatedRequestSchema, body)
}

// ApprovePermissionRequests approves permission requests in bulk and returns
// the number granted.
func (c *Client) ApprovePermissionRequests(
	ctx context.Context, approvals []ApprovePermissionRequest,
) (int, error) {
	if err := c.checkBatch(len(approvals)); err != nil {
		return 0, err
	}
	body, err := c.do(ctx, http.MethodPut, "/requests", nil, approvals)
	if err != nil {
		return 0, err
	}
	var resp approveResponse
	if err := decodeJSON(body, &resp); err != nil {
		return 0, err
	}
	return resp.NumGranted, nil
}

// RevokePermissions revokes permissions in bulk and returns the number
// revoked.
func (c *Client) RevokePermissions(
	ctx context.Context, revocations []RevokePermissionRequest,
) (int, error) {
	if err := c.checkBatch(len(revocations)); err != nil {
		return 0, err
	}
	body, err := c.do(ctx, http.MethodDelete, "/permissions", nil, revocations)
	if err != nil {
		return 0, err
	}
	var resp revokeResponse
	if err := decodeJSON(body, &resp); err != nil {
		return 0, err
	}
	return resp.NumRevoked, nil
}

func (c *Client) checkBatch(size int) error {
	if size > c.maxBatch {
		return errors.NewBadRequestError(
			fmt.Sprintf("batch of %d exceeds the %d item ceiling", size, c.maxBatch), nil)
	}
	return nil
}

// do executes one request through the transport chain and maps the response
// status onto the error taxonomy.
func (c *Client) do(
	ctx context.Context, method, path string, query url.Values, payload any,
) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.NewBadRequestError("failed to encode request body", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, errors.NewBadRequestError("failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.NewServerError("failed to read response body", err)
	}

	return body, classifyStatus(resp.StatusCode, body)
}

// classifyTransportError maps client.Do failures onto the taxonomy. The
// transport chain reports exhausted retries through sentinel errors wrapped
// in *url.Error.
func classifyTransportError(err error) error {
	var typed *errors.Error
	if stderrors.As(err, &typed) {
		return typed
	}

	var retryStatus *retryStatusError
	if stderrors.As(err, &retryStatus) {
		switch retryStatus.status {
		case http.StatusTooManyRequests:
			return errors.NewTooManyRequestsError("retry exhausted", err)
		case http.StatusGatewayTimeout:
			return errors.NewGatewayTimeoutError("retry exhausted", err)
		}
	}

	if isConnReset(err) {
		return errors.NewConnResetError("retry exhausted", err)
	}
	return errors.NewServerError("request failed", err)
}

func classifyStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusBadRequest:
		return errors.NewBadRequestError(bodyPreview(body), nil)
	case status == http.StatusUnauthorized:
		// The auth transport already refreshed and retried once.
		return errors.NewServerError("still unauthorized after token refresh", nil)
	case status == http.StatusNotFound:
		return errors.NewNotFoundError(bodyPreview(body), nil)
	case status == http.StatusTooManyRequests:
		return errors.NewTooManyRequestsError(bodyPreview(body), nil)
	case status == http.StatusGatewayTimeout:
		return errors.NewGatewayTimeoutError(bodyPreview(body), nil)
	default:
		return errors.NewServerError(
			fmt.Sprintf("status %d: %s", status, bodyPreview(body)), nil)
	}
}

// decodeJSON decodes a mutation response body; a shape mismatch is a
// schema failure for the whole call.
func decodeJSON(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return errors.NewSchemaFailureError("failed to decode response body", err)
	}
	return nil
}

func bodyPreview(body []byte) string {
	const previewSize = 512
	if len(body) > previewSize {
		body = body[:previewSize]
	}
	return strings.TrimSpace(string(body))
}
