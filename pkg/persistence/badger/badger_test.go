package badger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/pageproof-go/pkg/logger"
	"github.com/Layr-Labs/pageproof-go/pkg/persistence"
	"github.com/Layr-Labs/pageproof-go/pkg/persistence/persistencetest"
)

func TestBadgerPersistence(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	persistencetest.RunDocumentPersistenceTests(t, func(t *testing.T) persistence.IDocumentPersistence {
		bp, err := NewBadgerPersistence(t.TempDir(), testLogger)
		require.NoError(t, err)
		return bp
	})
}

func TestBadgerPersistence_LeavesEncoding(t *testing.T) {
	_, leaves := persistencetest.NewTestDocument(t, 3)

	packed := encodeLeaves(leaves)
	assert.Equal(t, string(leaves[0])+"\n"+string(leaves[1])+"\n"+string(leaves[2]), string(packed))
	assert.Equal(t, leaves, decodeLeaves(packed))
	assert.Nil(t, decodeLeaves(nil))
}

func TestBadgerPersistence_ManyPagesInOneTransaction(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	bp, err := NewBadgerPersistence(t.TempDir(), testLogger)
	require.NoError(t, err)
	defer func() { _ = bp.Close() }()

	const numPages = 250_000
	doc, leaves := persistencetest.NewTestDocument(t, numPages)
	require.NoError(t, bp.SaveDocument(doc, leaves))

	loaded, err := bp.LoadLeafHashes(doc.ID)
	require.NoError(t, err)
	require.Len(t, loaded, numPages)
	assert.Equal(t, leaves[0], loaded[0])
	assert.Equal(t, leaves[numPages-1], loaded[numPages-1])
	assert.Equal(t, leaves, loaded)

	// Overwriting with a smaller document must not leave stale leaves behind.
	smallDoc, smallLeaves := persistencetest.NewTestDocument(t, 2)
	smallDoc.ID = doc.ID
	require.NoError(t, bp.SaveDocument(smallDoc, smallLeaves))

	loaded, err = bp.LoadLeafHashes(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, smallLeaves, loaded)

	require.NoError(t, bp.DeleteDocument(doc.ID))
	loaded, err = bp.LoadLeafHashes(doc.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestBadgerPersistence_DocumentsDoNotShareKeys(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	bp, err := NewBadgerPersistence(t.TempDir(), testLogger)
	require.NoError(t, err)
	defer func() { _ = bp.Close() }()

	first, firstLeaves := persistencetest.NewTestDocument(t, 4)
	second, secondLeaves := persistencetest.NewTestDocument(t, 7)
	require.NoError(t, bp.SaveDocument(first, firstLeaves))
	require.NoError(t, bp.SaveDocument(second, secondLeaves))

	require.NoError(t, bp.DeleteDocument(first.ID))

	loaded, err := bp.LoadLeafHashes(second.ID)
	require.NoError(t, err)
	assert.Equal(t, secondLeaves, loaded)
}

func TestBadgerPersistence_Persistence_AcrossRestarts(t *testing.T) {
	tmpDir := t.TempDir()
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	doc, leaves := persistencetest.NewTestDocument(t, 9)

	// First instance: save data
	{
		bp, err := NewBadgerPersistence(tmpDir, testLogger)
		require.NoError(t, err)
		require.NoError(t, bp.SaveDocument(doc, leaves))
		require.NoError(t, bp.Close())
	}

	// Second instance: load data
	{
		bp, err := NewBadgerPersistence(tmpDir, testLogger)
		require.NoError(t, err)
		defer func() { _ = bp.Close() }()

		require.NoError(t, bp.HealthCheck())

		loaded, err := bp.LoadDocument(doc.ID)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, doc.RootHash, loaded.RootHash)

		loadedLeaves, err := bp.LoadLeafHashes(doc.ID)
		require.NoError(t, err)
		assert.Equal(t, leaves, loadedLeaves)

		docs, err := bp.ListDocuments()
		require.NoError(t, err)
		require.Len(t, docs, 1)
	}
}
