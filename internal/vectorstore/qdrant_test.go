package vectorstore

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointID_Deterministic(t *testing.T) {
	first := pointID("doc-1")
	second := pointID("doc-1")

	assert.Equal(t, first, second)

	parsed, err := uuid.Parse(first)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())
}

func TestPointID_DistinctDocuments(t *testing.T) {
	seen := map[string]string{}
	for _, docID := range []string{"doc-1", "doc-2", "doc-10", "포트폴리오-1"} {
		id := pointID(docID)
		for other, otherID := range seen {
			assert.NotEqual(t, otherID, id, "documents %q and %q collided", other, docID)
		}
		seen[docID] = id
	}
}
