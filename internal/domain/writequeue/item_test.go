package writequeue

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncline/backend/internal/domain/shared"
)

func newTestItem() *Item {
	return NewItem(uuid.New(), uuid.New(), uuid.New(), "product", "SKU-1001",
		OperationUpdate, shared.Document{"name": "Oak Desk"})
}

func TestNewItem(t *testing.T) {
	item := newTestItem()

	assert.Equal(t, ItemStatusPending, item.Status)
	assert.Equal(t, DefaultMaxRetries, item.MaxRetries)
	assert.Zero(t, item.RetryCount)
	assert.Nil(t, item.NextAttemptAt)
	assert.False(t, item.IsDead())
}

func TestMarkProcessing(t *testing.T) {
	item := newTestItem()

	require.NoError(t, item.MarkProcessing())
	assert.Equal(t, ItemStatusProcessing, item.Status)

	assert.Error(t, item.MarkProcessing(), "only pending items can be claimed")
}

func TestMarkCompleted(t *testing.T) {
	item := newTestItem()
	require.NoError(t, item.MarkProcessing())

	item.MarkCompleted()

	assert.Equal(t, ItemStatusCompleted, item.Status)
	require.NotNil(t, item.CompletedAt)
}

func TestMarkFailed(t *testing.T) {
	t.Run("reschedules with growing backoff", func(t *testing.T) {
		item := newTestItem()

		require.NoError(t, item.MarkProcessing())
		item.MarkFailed("upstream timeout")

		assert.Equal(t, ItemStatusPending, item.Status)
		assert.Equal(t, 1, item.RetryCount)
		assert.Equal(t, "upstream timeout", item.LastError)
		require.NotNil(t, item.NextAttemptAt)
		firstDelay := time.Until(*item.NextAttemptAt)
		assert.Greater(t, firstDelay, time.Second)

		require.NoError(t, item.MarkProcessing())
		item.MarkFailed("upstream timeout")

		require.NotNil(t, item.NextAttemptAt)
		assert.Greater(t, time.Until(*item.NextAttemptAt), firstDelay)
	})

	t.Run("moves to dead letter once retries are exhausted", func(t *testing.T) {
		item := newTestItem()

		for attempt := 0; attempt < DefaultMaxRetries; attempt++ {
			require.NoError(t, item.MarkProcessing())
			item.MarkFailed("upstream timeout")
		}

		assert.Equal(t, ItemStatusFailed, item.Status)
		assert.True(t, item.IsDead())
		assert.Nil(t, item.NextAttemptAt)
	})

	t.Run("caps the backoff", func(t *testing.T) {
		item := newTestItem()
		item.MaxRetries = 100
		item.RetryCount = 20

		item.MarkFailed("upstream timeout")

		require.NotNil(t, item.NextAttemptAt)
		assert.LessOrEqual(t, time.Until(*item.NextAttemptAt), 30*time.Minute)
	})
}

func TestMarkFatal(t *testing.T) {
	item := newTestItem()

	item.MarkFatal("entity no longer exists upstream")

	assert.True(t, item.IsDead())
	assert.Equal(t, "entity no longer exists upstream", item.LastError)
	assert.Zero(t, item.RetryCount, "fatal failures do not consume retries")
}

func TestMarkConflicted(t *testing.T) {
	item := newTestItem()
	conflictID := uuid.New()

	item.MarkConflicted(conflictID)

	assert.True(t, item.IsDead())
	require.NotNil(t, item.ConflictID)
	assert.Equal(t, conflictID, *item.ConflictID)
}

func TestResetForRetry(t *testing.T) {
	t.Run("re-enqueues a dead item with a fresh budget", func(t *testing.T) {
		item := newTestItem()
		item.MarkConflicted(uuid.New())

		require.NoError(t, item.ResetForRetry())

		assert.Equal(t, ItemStatusPending, item.Status)
		assert.Zero(t, item.RetryCount)
		assert.Empty(t, item.LastError)
		assert.Nil(t, item.ConflictID)
		assert.False(t, item.IsDead())
	})

	t.Run("rejects items that are not dead", func(t *testing.T) {
		item := newTestItem()
		assert.Error(t, item.ResetForRetry())
	})
}

func TestNewSyncLog(t *testing.T) {
	item := newTestItem()
	item.RetryCount = 2

	log := NewSyncLog(item, 502, "bad gateway")

	assert.Equal(t, item.ID, log.ItemID)
	assert.Equal(t, item.OrgID, log.OrgID)
	assert.Equal(t, "SKU-1001", log.ExternalID)
	assert.Equal(t, OperationUpdate, log.Operation)
	assert.Equal(t, 2, log.Attempt)
	assert.Equal(t, 502, log.UpstreamStatus)
	assert.Equal(t, "bad gateway", log.Message)
}
