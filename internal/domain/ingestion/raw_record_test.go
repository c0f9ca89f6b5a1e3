package ingestion

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/syncline/backend/internal/domain/shared"
)

func TestNewRawRecord(t *testing.T) {
	orgID, batchID := uuid.New(), uuid.New()
	payload := shared.Document{"id": "1", "name": "Walnut Desk", "price": 149.5}

	record := NewRawRecord(orgID, batchID, "product", "1", payload)

	assert.NotEqual(t, uuid.Nil, record.ID)
	assert.Equal(t, batchID, record.BatchID)
	assert.Equal(t, "product", record.EntityType)
	assert.Equal(t, "1", record.ExternalID)
	assert.Equal(t, "id,name,price", record.Fingerprint)
	assert.False(t, record.IngestedAt.IsZero())
}

func TestStructuralFingerprint(t *testing.T) {
	t.Run("field order does not matter", func(t *testing.T) {
		a := StructuralFingerprint(shared.Document{"name": "x", "id": "1"})
		b := StructuralFingerprint(shared.Document{"id": "2", "name": "y"})
		assert.Equal(t, a, b)
	})

	t.Run("field set does", func(t *testing.T) {
		a := StructuralFingerprint(shared.Document{"id": "1", "name": "x"})
		b := StructuralFingerprint(shared.Document{"id": "1", "price": 1.0})
		assert.NotEqual(t, a, b)
	})

	t.Run("empty document", func(t *testing.T) {
		assert.Empty(t, StructuralFingerprint(shared.Document{}))
	})
}
