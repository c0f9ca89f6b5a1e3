package sourceapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncline/backend/internal/domain/ingestion"
	"github.com/syncline/backend/internal/domain/shared"
	"github.com/syncline/backend/internal/infrastructure/config"
)

func newTestReadClient(serverURL string) *ReadClient {
	return NewReadClient(config.SourceConfig{
		BaseURL: serverURL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	})
}

func TestReadClient_FetchPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products", r.URL.Path)
		assert.Equal(t, "40", r.URL.Query().Get("offset"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Page{
			Records: []shared.Document{
				{"id": "P-1", "name": "Widget"},
				{"id": "P-2", "name": "Gadget"},
			},
			Total:   120,
			HasMore: true,
		})
	}))
	defer server.Close()

	client := newTestReadClient(server.URL)
	page, err := client.FetchPage(context.Background(), "products", 40, 20, nil)

	require.NoError(t, err)
	assert.Len(t, page.Records, 2)
	assert.Equal(t, 120, page.Total)
	assert.True(t, page.HasMore)
	assert.Equal(t, "Widget", page.Records[0]["name"])
}

func TestReadClient_FetchPage_TimestampDelta(t *testing.T) {
	cursor := TimestampCursor(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, cursor, r.URL.Query().Get("updated_since"))
		assert.Empty(t, r.URL.Query().Get("after_id"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Page{Records: []shared.Document{}, HasMore: false})
	}))
	defer server.Close()

	client := newTestReadClient(server.URL)
	_, err := client.FetchPage(context.Background(), "products", 0, 20, &DeltaFilter{
		CursorType: ingestion.CursorTypeTimestamp,
		Cursor:     cursor,
	})
	require.NoError(t, err)
}

func TestReadClient_FetchPage_IDDelta(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "9000", r.URL.Query().Get("after_id"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Page{Records: []shared.Document{}, HasMore: false})
	}))
	defer server.Close()

	client := newTestReadClient(server.URL)
	_, err := client.FetchPage(context.Background(), "orders", 0, 20, &DeltaFilter{
		CursorType: ingestion.CursorTypeID,
		Cursor:     "9000",
	})
	require.NoError(t, err)
}

func TestReadClient_FetchPage_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestReadClient(server.URL)
	_, err := client.FetchPage(context.Background(), "products", 0, 20, nil)

	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestReadClient_FetchPage_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestReadClient(server.URL)
	_, err := client.FetchPage(context.Background(), "products", 0, 20, nil)

	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}
