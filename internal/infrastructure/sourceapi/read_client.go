package sourceapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/syncline/backend/internal/domain/ingestion"
	"github.com/syncline/backend/internal/domain/shared"
	"github.com/syncline/backend/internal/infrastructure/config"
)

// maxResponseSize limits response body reads to prevent memory exhaustion
const maxResponseSize = 32 * 1024 * 1024 // 32MB

// DeltaFilter narrows a read to records changed after a cursor
type DeltaFilter struct {
	CursorType  ingestion.CursorType
	CursorField string
	Cursor      string
}

// Page is one page of source-system records
type Page struct {
	Records []shared.Document `json:"records"`
	Total   int               `json:"total"`
	HasMore bool              `json:"has_more"`
}

// ReadClient is the paginated read side of the source system API
type ReadClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewReadClient creates a read client from the source configuration
func NewReadClient(cfg config.SourceConfig) *ReadClient {
	return &ReadClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// FetchPage reads one page from an endpoint. A non-nil delta filter asks
// the source for only records changed after the cursor.
func (c *ReadClient) FetchPage(ctx context.Context, endpoint string, offset, limit int, delta *DeltaFilter) (*Page, error) {
	params := url.Values{}
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(limit))
	if delta != nil && delta.Cursor != "" {
		switch delta.CursorType {
		case ingestion.CursorTypeID:
			params.Set("after_id", delta.Cursor)
		default:
			params.Set("updated_since", delta.Cursor)
		}
	}

	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("sourceapi: failed to create request: %w", err)
	}
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

	if resp.StatusCode >= 400 {
		return nil, newStatusError(resp.StatusCode, string(body))
	}

	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("sourceapi: failed to parse page: %w", err)
	}
	return &page, nil
}

// TimestampCursor formats a time as a delta cursor value
func TimestampCursor(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
