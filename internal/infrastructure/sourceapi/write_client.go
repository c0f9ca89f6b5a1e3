package sourceapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/syncline/backend/internal/domain/shared"
	"github.com/syncline/backend/internal/infrastructure/config"
)

// writeRequest is the wire format of a record-level write
type writeRequest struct {
	Version string          `json:"version"`
	Data    shared.Document `json:"data"`
}

// writeResponse is the success payload of a record-level write
type writeResponse struct {
	Version string `json:"version"`
}

// conflictResponse is the 409 payload: the server's current state
type conflictResponse struct {
	CurrentVersion    string          `json:"current_version"`
	ConflictingFields []string        `json:"conflicting_fields"`
	Data              shared.Document `json:"data"`
}

// WriteResult is the outcome of a successful write
type WriteResult struct {
	NewVersion string
}

// WriteClient is the record-level write side of the source system API.
// Attempts carry their own exponential backoff, nested inside and distinct
// from the worker's queue-level retry discipline.
type WriteClient struct {
	baseURL     string
	apiKey      string
	maxAttempts int
	backoffBase time.Duration
	httpClient  *http.Client
}

// NewWriteClient creates a write client from the source configuration
func NewWriteClient(cfg config.SourceConfig) *WriteClient {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = 500 * time.Millisecond
	}
	return &WriteClient{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Update writes a changed-fields payload against a record at the given
// version token. Returns the server's new version on success, a
// VersionConflictError on 409, or a SourceError otherwise.
func (c *WriteClient) Update(ctx context.Context, entityType, externalID string, payload shared.Document, version string) (*WriteResult, error) {
	return c.doWithRetry(ctx, entityType, externalID, writeRequest{
		Version: version,
		Data:    payload,
	})
}

// Discontinue soft-removes a record upstream. Deletes are never issued;
// the request is an update flipping the discontinued flag.
func (c *WriteClient) Discontinue(ctx context.Context, entityType, externalID, version string) (*WriteResult, error) {
	return c.doWithRetry(ctx, entityType, externalID, writeRequest{
		Version: version,
		Data:    shared.Document{"discontinued": true},
	})
}

// doWithRetry performs the write with attempt-level exponential backoff.
// Fatal errors and version conflicts return immediately.
func (c *WriteClient) doWithRetry(ctx context.Context, entityType, externalID string, req writeRequest) (*WriteResult, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.backoffBase * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return nil, newTransportError(ctx.Err())
			case <-time.After(backoff):
			}
		}

		result, err := c.doWrite(ctx, entityType, externalID, req)
		if err == nil {
			return result, nil
		}

		var conflictErr *VersionConflictError
		if errors.As(err, &conflictErr) {
			return nil, err
		}
		if !IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *WriteClient) doWrite(ctx context.Context, entityType, externalID string, writeReq writeRequest) (*WriteResult, error) {
	bodyBytes, err := json.Marshal(writeReq)
	if err != nil {
		return nil, fmt.Errorf("sourceapi: failed to marshal request: %w", err)
	}

	reqURL := fmt.Sprintf("%s/%s/%s", c.baseURL, entityType, externalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, reqURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("sourceapi: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, newTransportError(err)
	}

	switch {
	case resp.StatusCode == http.StatusConflict:
		var conflictResp conflictResponse
		if err := json.Unmarshal(body, &conflictResp); err != nil {
			return nil, fmt.Errorf("sourceapi: failed to parse conflict response: %w", err)
		}
		return nil, &VersionConflictError{
			ServerVersion:  conflictResp.CurrentVersion,
			ConflictFields: conflictResp.ConflictingFields,
			ServerDocument: conflictResp.Data,
		}
	case resp.StatusCode >= 400:
		return nil, newStatusError(resp.StatusCode, string(body))
	}

	var writeResp writeResponse
	if err := json.Unmarshal(body, &writeResp); err != nil {
		return nil, fmt.Errorf("sourceapi: failed to parse response: %w", err)
	}
	return &WriteResult{NewVersion: writeResp.Version}, nil
}
