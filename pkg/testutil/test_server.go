package testutil

import (
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/Layr-Labs/pageproof-go/pkg/client"
	"github.com/Layr-Labs/pageproof-go/pkg/logger"
	"github.com/Layr-Labs/pageproof-go/pkg/merkle"
	"github.com/Layr-Labs/pageproof-go/pkg/node"
	"github.com/Layr-Labs/pageproof-go/pkg/persistence"
	"github.com/Layr-Labs/pageproof-go/pkg/persistence/memory"
)

// TestServer is a node served over httptest with a client pointed at it.
type TestServer struct {
	Node   *node.Node
	Server *httptest.Server
	URL    string
	Client *client.Client
	Store  persistence.IDocumentPersistence
	logger *zap.Logger
}

// TestServerOptions tunes NewTestServer. The zero value gives a SHA-256 node
// over in-memory persistence.
type TestServerOptions struct {
	HashAlgorithm merkle.HashAlgorithm
	Store         persistence.IDocumentPersistence
	UploadRate    float64
	UploadBurst   int
}

// NewTestServer starts a node behind an httptest server. The server is closed
// by t.Cleanup; the store is left open so callers can reuse it.
func NewTestServer(t *testing.T, opts TestServerOptions) *TestServer {
	t.Helper()

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: testing.Verbose()})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	store := opts.Store
	if store == nil {
		store = memory.NewMemoryPersistence(l)
	}

	n, err := node.NewNode(node.Config{
		HashAlgorithm: opts.HashAlgorithm,
		UploadRate:    opts.UploadRate,
		UploadBurst:   opts.UploadBurst,
		Logger:        l,
	}, store)
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	server := httptest.NewServer(n.GetHandler())
	t.Cleanup(server.Close)

	c, err := client.NewClient(&client.ClientConfig{ServerURL: server.URL, Logger: l})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	l.Sugar().Debugw("Test server started", "url", server.URL, "hash_algorithm", n.HashAlgorithm())

	return &TestServer{
		Node:   n,
		Server: server,
		URL:    server.URL,
		Client: c,
		Store:  store,
		logger: l,
	}
}

// Close stops the HTTP server. Safe to call more than once.
func (ts *TestServer) Close() {
	ts.Server.Close()
}
