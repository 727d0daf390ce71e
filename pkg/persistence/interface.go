package persistence

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Layr-Labs/pageproof-go/pkg/merkle"
	"github.com/Layr-Labs/pageproof-go/pkg/types"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("persistence layer is closed")

// IDocumentPersistence stores document metadata and the ordered per-page leaf
// hashes needed to rebuild a document's merkle tree.
// All implementations must be thread-safe.
//
// The interface supports:
// - Document records (metadata + leaf hashes keyed by document id and page index)
// - Listing and deletion
// - Lifecycle management (close, health check)
type IDocumentPersistence interface {
	// Documents

	// SaveDocument persists the document metadata together with its leaf hashes.
	// len(leafHashes) must equal doc.PageCount. Both are written atomically;
	// saving an existing id overwrites it.
	SaveDocument(doc *types.Document, leafHashes []merkle.Digest) error

	// LoadDocument retrieves document metadata by id.
	// Returns nil if the document doesn't exist, error only on storage failure.
	LoadDocument(id string) (*types.Document, error)

	// LoadLeafHashes returns the leaf hashes of a document ordered by page index.
	// Returns nil if the document doesn't exist, error only on storage failure.
	LoadLeafHashes(id string) ([]merkle.Digest, error)

	// ListDocuments returns all documents sorted by creation time, then id.
	// Returns empty slice if none exist, error only on storage failure.
	ListDocuments() ([]*types.Document, error)

	// DeleteDocument removes a document and its leaf hashes.
	// Idempotent - returns nil if the document doesn't exist.
	DeleteDocument(id string) error

	// Lifecycle Management

	// Close cleanly shuts down the persistence layer.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations return ErrClosed.
	Close() error

	// HealthCheck verifies the persistence layer is operational.
	// Returns nil if healthy, error describing the problem if not.
	HealthCheck() error
}

// ValidateDocument checks a document record before it is written.
func ValidateDocument(doc *types.Document, leafHashes []merkle.Digest) error {
	if doc == nil {
		return fmt.Errorf("cannot save nil Document")
	}
	if doc.ID == "" {
		return fmt.Errorf("document id cannot be empty")
	}
	// Backends embed the id in ":"-separated keys.
	if strings.ContainsAny(doc.ID, ":/ ") {
		return fmt.Errorf("document id %q contains reserved characters", doc.ID)
	}
	if doc.PageCount != len(leafHashes) {
		return fmt.Errorf("document %s declares %d pages but %d leaf hashes were given", doc.ID, doc.PageCount, len(leafHashes))
	}
	if doc.PageCount == 0 {
		return fmt.Errorf("document %s has no pages", doc.ID)
	}
	return nil
}

// SortDocuments orders documents by creation time, then id.
func SortDocuments(docs []*types.Document) {
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
}
