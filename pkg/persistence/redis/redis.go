package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Layr-Labs/pageproof-go/pkg/merkle"
	"github.com/Layr-Labs/pageproof-go/pkg/persistence"
	"github.com/Layr-Labs/pageproof-go/pkg/types"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixDocument    = "pageproof:document:"
	keyPrefixPages       = "pageproof:pages:"
	keySchemaVersion     = "pageproof:metadata:schema_version"
	currentSchemaVersion = "v1"

	// Key set for listing operations (Redis doesn't support prefix iteration natively)
	keySetDocuments = "pageproof:documents:index"

	operationTimeout = 10 * time.Second
)

// RedisPersistence is a persistence implementation using Redis.
// Provides durable, shared storage suitable for running several proof servers
// against the same documents.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string // Custom prefix for all keys
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional custom prefix for all keys (for multi-tenant setups),
	// e.g. "tenant-a:" yields keys like "tenant-a:pageproof:document:<id>".
	KeyPrefix string
}

// NewRedisPersistence creates a new Redis-backed persistence layer.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", cfg.KeyPrefix)

	return rp, nil
}

var _ persistence.IDocumentPersistence = (*RedisPersistence)(nil)

// prefixKey adds the custom key prefix (if configured) to a key
func (r *RedisPersistence) prefixKey(key string) string {
	return r.keyPrefix + key
}

func (r *RedisPersistence) documentKey(id string) string {
	return r.prefixKey(keyPrefixDocument + id)
}

func (r *RedisPersistence) pagesKey(id string) string {
	return r.prefixKey(keyPrefixPages + id)
}

// initSchema initializes or validates the schema version
func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}

	return nil
}

// SaveDocument persists metadata and leaf hashes in a MULTI/EXEC transaction
func (r *RedisPersistence) SaveDocument(doc *types.Document, leafHashes []merkle.Digest) error {
	if err := persistence.ValidateDocument(doc, leafHashes); err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalDocument(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal Document: %w", err)
	}

	leaves := make([]interface{}, len(leafHashes))
	for i, leaf := range leafHashes {
		leaves[i] = string(leaf)
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.documentKey(doc.ID), data, 0)
	pipe.Del(ctx, r.pagesKey(doc.ID))
	pipe.RPush(ctx, r.pagesKey(doc.ID), leaves...)
	pipe.SAdd(ctx, r.prefixKey(keySetDocuments), doc.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save Document %s: %w", doc.ID, err)
	}

	return nil
}

// LoadDocument retrieves document metadata
func (r *RedisPersistence) LoadDocument(id string) (*types.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.documentKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load Document: %w", err)
	}

	doc, err := persistence.UnmarshalDocument(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal Document: %w", err)
	}

	return doc, nil
}

// LoadLeafHashes retrieves leaf hashes ordered by page index
func (r *RedisPersistence) LoadLeafHashes(id string) ([]merkle.Digest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	values, err := r.client.LRange(ctx, r.pagesKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load leaf hashes for %s: %w", id, err)
	}
	if len(values) == 0 {
		return nil, nil
	}

	leaves := make([]merkle.Digest, len(values))
	for i, v := range values {
		leaves[i] = merkle.Digest(v)
	}
	return leaves, nil
}

// ListDocuments returns all documents sorted by creation time
func (r *RedisPersistence) ListDocuments() ([]*types.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	indexKey := r.prefixKey(keySetDocuments)
	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list Document ids: %w", err)
	}

	docs := make([]*types.Document, 0, len(ids))
	if len(ids) == 0 {
		return docs, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.documentKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch Documents: %w", err)
	}

	for i, val := range values {
		if val == nil {
			// Key was in index but doesn't exist - clean up index
			if err := r.client.SRem(ctx, indexKey, ids[i]).Err(); err != nil {
				r.logger.Sugar().Warnw("Failed to remove stale Document from index", "document_id", ids[i], "error", err)
			}
			continue
		}

		data, ok := val.(string)
		if !ok {
			r.logger.Sugar().Warnw("Unexpected value type for Document", "key", keys[i])
			continue
		}

		doc, err := persistence.UnmarshalDocument([]byte(data))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal Document, skipping", "key", keys[i], "error", err)
			continue
		}
		docs = append(docs, doc)
	}

	persistence.SortDocuments(docs)
	return docs, nil
}

// DeleteDocument removes a document, its pages and its index entry
func (r *RedisPersistence) DeleteDocument(id string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.documentKey(id), r.pagesKey(id))
	pipe.SRem(ctx, r.prefixKey(keySetDocuments), id)

	_, err := pipe.Exec(ctx)
	return err
}

// Close shuts down the persistence layer
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
