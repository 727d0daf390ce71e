package badger

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/Layr-Labs/pageproof-go/pkg/merkle"
	"github.com/Layr-Labs/pageproof-go/pkg/persistence"
	"github.com/Layr-Labs/pageproof-go/pkg/types"
)

// Key prefixes for namespacing
const (
	keyPrefixDocument    = "document:"
	keyPrefixLeaves      = "leaves:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v2"
)

// leafSeparator delimits hex digests inside a packed leaves value.
const leafSeparator = '\n'


// BadgerPersistence is a disk-backed persistence implementation using Badger.
// Provides durable storage with ACID guarantees. A document is stored as two
// keys, its metadata and its packed leaf hashes, written in a single
// transaction regardless of page count.
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewBadgerPersistence creates a new Badger-backed persistence layer.
// The database is opened at the specified path with SyncWrites enabled for durability.
// A background goroutine is started for garbage collection.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = newBadgerLoggerAdapter(logger)
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
	}

	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx)

	logger.Sugar().Infow("Badger persistence initialized", "path", absPath)

	return bp, nil
}

var _ persistence.IDocumentPersistence = (*BadgerPersistence)(nil)

// documentKey is the metadata key of a document.
func documentKey(id string) []byte {
	return []byte(keyPrefixDocument + id)
}

// leavesKey holds every leaf hash of a document in page order.
func leavesKey(id string) []byte {
	return []byte(keyPrefixLeaves + id)
}

func encodeLeaves(leaves []merkle.Digest) []byte {
	size := 0
	for _, leaf := range leaves {
		size += len(leaf) + 1
	}

	buf := make([]byte, 0, size)
	for i, leaf := range leaves {
		if i > 0 {
			buf = append(buf, leafSeparator)
		}
		buf = append(buf, leaf...)
	}
	return buf
}

func decodeLeaves(val []byte) []merkle.Digest {
	if len(val) == 0 {
		return nil
	}
	parts := bytes.Split(val, []byte{leafSeparator})
	leaves := make([]merkle.Digest, len(parts))
	for i, part := range parts {
		leaves[i] = merkle.Digest(part)
	}
	return leaves
}

// initSchema initializes or validates the schema version
func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}

		return nil
	})
}

// runGC runs periodic value log garbage collection in the background
func (b *BadgerPersistence) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// deleteDocumentTxn removes the metadata and leaf hashes of a document.
func deleteDocumentTxn(txn *badgerdb.Txn, id string) error {
	if err := txn.Delete(leavesKey(id)); err != nil {
		return err
	}
	return txn.Delete(documentKey(id))
}

// SaveDocument persists document metadata and its leaf hashes in one transaction.
func (b *BadgerPersistence) SaveDocument(doc *types.Document, leafHashes []merkle.Digest) error {
	if err := persistence.ValidateDocument(doc, leafHashes); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalDocument(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal Document: %w", err)
	}

	err = b.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Set(documentKey(doc.ID), data); err != nil {
			return err
		}
		return txn.Set(leavesKey(doc.ID), encodeLeaves(leafHashes))
	})
	if err != nil {
		return fmt.Errorf("failed to save Document %s: %w", doc.ID, err)
	}

	return nil
}

// LoadDocument retrieves document metadata
func (b *BadgerPersistence) LoadDocument(id string) (*types.Document, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(documentKey(id))
		if err == badgerdb.ErrKeyNotFound {
			return nil // Not found is not an error
		}
		if err != nil {
			return err
		}

		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load Document: %w", err)
	}

	if data == nil {
		return nil, nil
	}

	doc, err := persistence.UnmarshalDocument(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal Document: %w", err)
	}

	return doc, nil
}

// LoadLeafHashes retrieves leaf hashes ordered by page index
func (b *BadgerPersistence) LoadLeafHashes(id string) ([]merkle.Digest, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	var packed []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(leavesKey(id))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		packed, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load leaf hashes for %s: %w", id, err)
	}

	return decodeLeaves(packed), nil
}

// ListDocuments returns all documents sorted by creation time
func (b *BadgerPersistence) ListDocuments() ([]*types.Document, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	docs := make([]*types.Document, 0)
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixDocument)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				doc, err := persistence.UnmarshalDocument(val)
				if err != nil {
					b.logger.Sugar().Warnw("Failed to unmarshal Document, skipping",
						"key", string(item.Key()), "error", err)
					return nil
				}
				docs = append(docs, doc)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list Documents: %w", err)
	}

	persistence.SortDocuments(docs)
	return docs, nil
}

// DeleteDocument removes a document and its leaf hashes
func (b *BadgerPersistence) DeleteDocument(id string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return deleteDocumentTxn(txn, id)
	})
}

// Close shuts down the persistence layer
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
