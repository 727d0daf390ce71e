package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/pageproof-go/pkg/persistence"
	"github.com/Layr-Labs/pageproof-go/pkg/persistence/persistencetest"
)

func TestMemoryPersistence(t *testing.T) {
	persistencetest.RunDocumentPersistenceTests(t, func(t *testing.T) persistence.IDocumentPersistence {
		return NewMemoryPersistence(nil)
	})
}

func TestMemoryPersistence_DeepCopy_Mutation(t *testing.T) {
	mp := NewMemoryPersistence(nil)
	defer func() { _ = mp.Close() }()

	doc, leaves := persistencetest.NewTestDocument(t, 3)
	require.NoError(t, mp.SaveDocument(doc, leaves))

	// Mutating the caller's values after saving must not affect storage.
	originalRoot := doc.RootHash
	originalLeaf := leaves[0]
	doc.RootHash = "mutated"
	leaves[0] = "mutated"

	loaded, err := mp.LoadDocument(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, originalRoot, loaded.RootHash)

	loadedLeaves, err := mp.LoadLeafHashes(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, originalLeaf, loadedLeaves[0])

	// Mutating loaded values must not affect storage either.
	loadedLeaves[1] = "mutated"
	again, err := mp.LoadLeafHashes(doc.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", string(again[1]))
}
