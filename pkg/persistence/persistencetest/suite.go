// Package persistencetest holds the behaviour every IDocumentPersistence
// backend must share, run by each backend's own tests.
package persistencetest

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/pageproof-go/pkg/merkle"
	"github.com/Layr-Labs/pageproof-go/pkg/persistence"
	"github.com/Layr-Labs/pageproof-go/pkg/types"
)

// Factory returns a fresh, open store. The suite closes it.
type Factory func(t *testing.T) persistence.IDocumentPersistence

// NewTestDocument returns a document with numPages generated pages, its
// root computed from the returned leaf hashes.
func NewTestDocument(t *testing.T, numPages int) (*types.Document, []merkle.Digest) {
	t.Helper()

	h := merkle.DefaultHasher()
	leaves := make([]merkle.Digest, numPages)
	for i := range leaves {
		leaves[i] = h.DigestLeaf([]byte(fmt.Sprintf("page %d of a test document", i)))
	}
	root, err := merkle.Build(h, leaves)
	require.NoError(t, err)

	return &types.Document{
		ID:            uuid.New().String(),
		Filename:      "test.txt",
		RootHash:      root.Hash,
		PageCount:     numPages,
		HashAlgorithm: h.Algorithm(),
		CreatedAt:     time.Now().UTC().Truncate(time.Millisecond),
	}, leaves
}

// RunDocumentPersistenceTests runs the shared conformance tests against stores
// created by newStore.
func RunDocumentPersistenceTests(t *testing.T, newStore Factory) {
	t.Run("SaveAndLoad", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		doc, leaves := NewTestDocument(t, 5)
		require.NoError(t, store.SaveDocument(doc, leaves))

		loaded, err := store.LoadDocument(doc.ID)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, doc.ID, loaded.ID)
		assert.Equal(t, doc.Filename, loaded.Filename)
		assert.Equal(t, doc.RootHash, loaded.RootHash)
		assert.Equal(t, doc.PageCount, loaded.PageCount)
		assert.Equal(t, doc.HashAlgorithm, loaded.HashAlgorithm)
		assert.True(t, doc.CreatedAt.Equal(loaded.CreatedAt))

		loadedLeaves, err := store.LoadLeafHashes(doc.ID)
		require.NoError(t, err)
		assert.Equal(t, leaves, loadedLeaves)
	})

	t.Run("LoadNotFound", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		doc, err := store.LoadDocument(uuid.New().String())
		require.NoError(t, err)
		assert.Nil(t, doc)

		leaves, err := store.LoadLeafHashes(uuid.New().String())
		require.NoError(t, err)
		assert.Nil(t, leaves)
	})

	t.Run("SaveInvalid", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		err := store.SaveDocument(nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nil Document")

		doc, leaves := NewTestDocument(t, 3)
		err = store.SaveDocument(doc, leaves[:2])
		require.Error(t, err)

		loaded, err := store.LoadDocument(doc.ID)
		require.NoError(t, err)
		assert.Nil(t, loaded, "rejected document must not be stored")
	})

	t.Run("Overwrite", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		doc, leaves := NewTestDocument(t, 6)
		require.NoError(t, store.SaveDocument(doc, leaves))

		// Re-saving with fewer pages must not leave stale trailing leaves.
		replacement, replacementLeaves := NewTestDocument(t, 2)
		replacement.ID = doc.ID
		require.NoError(t, store.SaveDocument(replacement, replacementLeaves))

		loaded, err := store.LoadDocument(doc.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, loaded.PageCount)

		loadedLeaves, err := store.LoadLeafHashes(doc.ID)
		require.NoError(t, err)
		assert.Equal(t, replacementLeaves, loadedLeaves)
	})

	t.Run("Delete", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		doc, leaves := NewTestDocument(t, 3)
		require.NoError(t, store.SaveDocument(doc, leaves))
		require.NoError(t, store.DeleteDocument(doc.ID))

		loaded, err := store.LoadDocument(doc.ID)
		require.NoError(t, err)
		assert.Nil(t, loaded)

		loadedLeaves, err := store.LoadLeafHashes(doc.ID)
		require.NoError(t, err)
		assert.Nil(t, loadedLeaves)

		// Idempotent
		require.NoError(t, store.DeleteDocument(doc.ID))
		require.NoError(t, store.DeleteDocument(uuid.New().String()))
	})

	t.Run("List", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		base := time.Now().UTC().Truncate(time.Millisecond)
		saved := make([]*types.Document, 3)
		for i := range saved {
			doc, leaves := NewTestDocument(t, i+1)
			// Saved out of chronological order.
			doc.CreatedAt = base.Add(time.Duration(len(saved)-i) * time.Second)
			require.NoError(t, store.SaveDocument(doc, leaves))
			saved[i] = doc
		}

		docs, err := store.ListDocuments()
		require.NoError(t, err)

		positions := make(map[string]int)
		for i, d := range docs {
			positions[d.ID] = i
		}
		for _, d := range saved {
			_, ok := positions[d.ID]
			require.True(t, ok, "document %s missing from list", d.ID)
		}
		assert.Less(t, positions[saved[2].ID], positions[saved[1].ID])
		assert.Less(t, positions[saved[1].ID], positions[saved[0].ID])
	})

	t.Run("LeafOrderManyPages", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		doc, leaves := NewTestDocument(t, 1203)
		require.NoError(t, store.SaveDocument(doc, leaves))

		loadedLeaves, err := store.LoadLeafHashes(doc.ID)
		require.NoError(t, err)
		require.Equal(t, leaves, loadedLeaves)

		// The tree rebuilt from stored leaves reproduces the stored root.
		h, err := merkle.NewHasher(doc.HashAlgorithm)
		require.NoError(t, err)
		root, err := merkle.Build(h, loadedLeaves)
		require.NoError(t, err)
		assert.Equal(t, doc.RootHash, root.Hash)
	})

	t.Run("ClosedStore", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.HealthCheck())

		require.NoError(t, store.Close())
		require.NoError(t, store.Close(), "Close must be idempotent")

		doc, leaves := NewTestDocument(t, 1)
		require.ErrorIs(t, store.SaveDocument(doc, leaves), persistence.ErrClosed)
		_, err := store.LoadDocument(doc.ID)
		require.ErrorIs(t, err, persistence.ErrClosed)
		_, err = store.LoadLeafHashes(doc.ID)
		require.ErrorIs(t, err, persistence.ErrClosed)
		_, err = store.ListDocuments()
		require.ErrorIs(t, err, persistence.ErrClosed)
		require.ErrorIs(t, store.DeleteDocument(doc.ID), persistence.ErrClosed)
		require.ErrorIs(t, store.HealthCheck(), persistence.ErrClosed)
	})

	t.Run("ThreadSafety", func(t *testing.T) {
		store := newStore(t)
		defer func() { _ = store.Close() }()

		const numGoroutines = 8
		const docsPerGoroutine = 10

		var wg sync.WaitGroup
		errCh := make(chan error, numGoroutines*docsPerGoroutine*2)
		for g := 0; g < numGoroutines; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < docsPerGoroutine; i++ {
					doc, leaves := NewTestDocument(t, i+1)
					if err := store.SaveDocument(doc, leaves); err != nil {
						errCh <- err
						continue
					}
					loaded, err := store.LoadLeafHashes(doc.ID)
					if err != nil {
						errCh <- err
						continue
					}
					if len(loaded) != len(leaves) {
						errCh <- fmt.Errorf("document %s: loaded %d leaves, want %d", doc.ID, len(loaded), len(leaves))
					}
				}
			}()
		}
		wg.Wait()
		close(errCh)

		for err := range errCh {
			t.Error(err)
		}
	})
}
