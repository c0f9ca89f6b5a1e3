package ingestion

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIngestBatch(t *testing.T) {
	orgID := uuid.New()

	t.Run("starts a running batch", func(t *testing.T) {
		batch, err := NewIngestBatch(orgID, "/products", "product", SyncModeFull)
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, batch.ID)
		assert.Equal(t, BatchStatusRunning, batch.Status)
		assert.Equal(t, "/products", batch.Endpoint)
		assert.Equal(t, "product", batch.EntityType)
		assert.False(t, batch.StartedAt.IsZero())
		assert.Nil(t, batch.CompletedAt)
	})

	t.Run("validates inputs", func(t *testing.T) {
		_, err := NewIngestBatch(uuid.Nil, "/products", "product", SyncModeFull)
		assert.ErrorIs(t, err, ErrInvalidOrgID)

		_, err = NewIngestBatch(orgID, "", "product", SyncModeFull)
		assert.ErrorIs(t, err, ErrInvalidEndpoint)

		_, err = NewIngestBatch(orgID, "/products", "product", SyncMode("incremental"))
		assert.ErrorIs(t, err, ErrInvalidSyncMode)
	})
}

func TestBatchComplete(t *testing.T) {
	t.Run("clean run completes", func(t *testing.T) {
		batch, err := NewIngestBatch(uuid.New(), "/products", "product", SyncModeFull)
		require.NoError(t, err)

		require.NoError(t, batch.Complete(42))

		assert.Equal(t, BatchStatusCompleted, batch.Status)
		assert.Equal(t, 42, batch.RecordCount)
		require.NotNil(t, batch.CompletedAt)
		assert.True(t, batch.Succeeded())
	})

	t.Run("run with recorded errors completes as partial", func(t *testing.T) {
		batch, err := NewIngestBatch(uuid.New(), "/products", "product", SyncModeFull)
		require.NoError(t, err)
		batch.RecordError("record 17 has no id")

		require.NoError(t, batch.Complete(41))

		assert.Equal(t, BatchStatusPartial, batch.Status)
		assert.True(t, batch.Succeeded(), "partial batches still seed delta cursors")
	})

	t.Run("completing twice fails", func(t *testing.T) {
		batch, err := NewIngestBatch(uuid.New(), "/products", "product", SyncModeFull)
		require.NoError(t, err)
		require.NoError(t, batch.Complete(1))

		assert.ErrorIs(t, batch.Complete(1), ErrBatchAlreadyComplete)
	})
}

func TestBatchFail(t *testing.T) {
	batch, err := NewIngestBatch(uuid.New(), "/products", "product", SyncModeDelta)
	require.NoError(t, err)

	batch.Fail(12, "source returned 503")

	assert.Equal(t, BatchStatusFailed, batch.Status)
	assert.Equal(t, 12, batch.RecordCount, "partial progress is preserved")
	assert.Contains(t, batch.Errors, "source returned 503")
	require.NotNil(t, batch.CompletedAt)
	assert.False(t, batch.Succeeded())
}
