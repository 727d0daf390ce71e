package redis

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Layr-Labs/pageproof-go/pkg/logger"
	"github.com/Layr-Labs/pageproof-go/pkg/persistence"
	"github.com/Layr-Labs/pageproof-go/pkg/persistence/persistencetest"
)

// requireRedis skips the test unless REDIS_TEST_ADDRESS points at a server.
// Every store gets its own key prefix, so tests never see each other's data.
func requireRedis(t *testing.T) *RedisPersistence {
	t.Helper()

	addr := os.Getenv("REDIS_TEST_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDRESS not set, skipping Redis tests")
	}

	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	rp, err := NewRedisPersistence(&RedisConfig{
		Address:   addr,
		DB:        15, // Use DB 15 for tests to avoid conflicts
		KeyPrefix: "test-" + uuid.New().String() + ":",
	}, testLogger)
	require.NoError(t, err, "Redis not available at %s", addr)

	return rp
}

func TestRedisPersistence(t *testing.T) {
	persistencetest.RunDocumentPersistenceTests(t, func(t *testing.T) persistence.IDocumentPersistence {
		return requireRedis(t)
	})
}

func TestRedisPersistence_IndexCleanup(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	doc, leaves := persistencetest.NewTestDocument(t, 2)
	require.NoError(t, rp.SaveDocument(doc, leaves))

	// Remove the metadata behind the index's back.
	require.NoError(t, rp.client.Del(t.Context(), rp.documentKey(doc.ID)).Err())

	docs, err := rp.ListDocuments()
	require.NoError(t, err)
	assert.Empty(t, docs)

	members, err := rp.client.SMembers(t.Context(), rp.prefixKey(keySetDocuments)).Result()
	require.NoError(t, err)
	assert.NotContains(t, members, doc.ID)
}

// failingSRemHook rejects every SREM sent outside a pipeline.
type failingSRemHook struct{}

func (failingSRemHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (failingSRemHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "srem" {
			err := errors.New("srem rejected")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (failingSRemHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisPersistence_IndexCleanupFailureIsLogged(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	core, observed := observer.New(zap.WarnLevel)
	rp.logger = zap.New(core)

	doc, leaves := persistencetest.NewTestDocument(t, 2)
	require.NoError(t, rp.SaveDocument(doc, leaves))
	require.NoError(t, rp.client.Del(t.Context(), rp.documentKey(doc.ID)).Err())

	rp.client.AddHook(failingSRemHook{})

	docs, err := rp.ListDocuments()
	require.NoError(t, err)
	assert.Empty(t, docs)

	entries := observed.FilterMessage("Failed to remove stale Document from index").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, doc.ID, entries[0].ContextMap()["document_id"])
	assert.Equal(t, "srem rejected", entries[0].ContextMap()["error"])
}

func TestNewRedisPersistence_InvalidConfig(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	_, err := NewRedisPersistence(nil, testLogger)
	require.Error(t, err)

	_, err = NewRedisPersistence(&RedisConfig{}, testLogger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address cannot be empty")
}
