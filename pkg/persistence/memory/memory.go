package memory

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Layr-Labs/pageproof-go/pkg/merkle"
	"github.com/Layr-Labs/pageproof-go/pkg/persistence"
	"github.com/Layr-Labs/pageproof-go/pkg/types"
)

// MemoryPersistence is an in-memory implementation of IDocumentPersistence.
// This implementation is intended for TESTING and local development.
//
// All data is stored in memory and will be lost when the process exits.
// Thread-safe using sync.RWMutex for concurrent access.
// Copies data in and out to prevent external mutation.
type MemoryPersistence struct {
	mu sync.RWMutex

	// document id -> metadata
	documents map[string]*types.Document

	// document id -> leaf hashes ordered by page index
	leaves map[string][]merkle.Digest

	closed bool
}

// NewMemoryPersistence creates a new in-memory persistence layer.
// Logs a loud warning since data does not survive a restart.
func NewMemoryPersistence(logger *zap.Logger) *MemoryPersistence {
	if logger != nil {
		logger.Sugar().Warnw("Using in-memory persistence - ALL DOCUMENTS WILL BE LOST ON RESTART",
			"hint", "set PAGEPROOF_PERSISTENCE_TYPE=badger or redis for durable storage")
	}

	return &MemoryPersistence{
		documents: make(map[string]*types.Document),
		leaves:    make(map[string][]merkle.Digest),
	}
}

var _ persistence.IDocumentPersistence = (*MemoryPersistence)(nil)

// SaveDocument persists document metadata and leaf hashes.
func (m *MemoryPersistence) SaveDocument(doc *types.Document, leafHashes []merkle.Digest) error {
	if err := persistence.ValidateDocument(doc, leafHashes); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	m.documents[doc.ID] = persistence.CopyDocument(doc)
	m.leaves[doc.ID] = copyLeaves(leafHashes)

	return nil
}

// LoadDocument retrieves document metadata by id.
func (m *MemoryPersistence) LoadDocument(id string) (*types.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	doc, exists := m.documents[id]
	if !exists {
		return nil, nil // Not found is not an error
	}

	return persistence.CopyDocument(doc), nil
}

// LoadLeafHashes retrieves the ordered leaf hashes of a document.
func (m *MemoryPersistence) LoadLeafHashes(id string) ([]merkle.Digest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	leaves, exists := m.leaves[id]
	if !exists {
		return nil, nil
	}

	return copyLeaves(leaves), nil
}

// ListDocuments returns all documents sorted by creation time.
func (m *MemoryPersistence) ListDocuments() ([]*types.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	result := make([]*types.Document, 0, len(m.documents))
	for _, doc := range m.documents {
		result = append(result, persistence.CopyDocument(doc))
	}
	persistence.SortDocuments(result)

	return result, nil
}

// DeleteDocument removes a document and its leaf hashes.
func (m *MemoryPersistence) DeleteDocument(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	delete(m.documents, id)
	delete(m.leaves, id)
	return nil
}

// Close marks the persistence layer as closed.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the persistence layer is operational.
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return persistence.ErrClosed
	}
	return nil
}

func copyLeaves(leaves []merkle.Digest) []merkle.Digest {
	cp := make([]merkle.Digest, len(leaves))
	copy(cp, leaves)
	return cp
}
