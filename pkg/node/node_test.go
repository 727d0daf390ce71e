package node

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Layr-Labs/pageproof-go/pkg/merkle"
	"github.com/Layr-Labs/pageproof-go/pkg/metrics"
	"github.com/Layr-Labs/pageproof-go/pkg/persistence/memory"
	"github.com/Layr-Labs/pageproof-go/pkg/types"
)

const threePageText = "first page\fsecond page\fthird page"

func newTestNode(t *testing.T, cfg Config) (*Node, *memory.MemoryPersistence) {
	t.Helper()

	store := memory.NewMemoryPersistence(nil)
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	n, err := NewNode(cfg, store)
	require.NoError(t, err)
	return n, store
}

func TestNewNode(t *testing.T) {
	t.Run("nil persistence", func(t *testing.T) {
		_, err := NewNode(Config{}, nil)
		require.Error(t, err)
	})

	t.Run("unsupported algorithm", func(t *testing.T) {
		_, err := NewNode(Config{HashAlgorithm: "md5"}, memory.NewMemoryPersistence(nil))
		require.ErrorIs(t, err, merkle.ErrUnsupportedAlgorithm)
	})

	t.Run("default algorithm", func(t *testing.T) {
		n, _ := newTestNode(t, Config{})
		assert.Equal(t, merkle.HashAlgorithmSHA256, n.HashAlgorithm())
	})
}

func TestIngestDocument(t *testing.T) {
	n, store := newTestNode(t, Config{})
	ctx := context.Background()

	doc, err := n.IngestDocument(ctx, "notes.txt", []byte(threePageText))
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "notes.txt", doc.Filename)
	assert.Equal(t, 3, doc.PageCount)
	assert.Equal(t, merkle.HashAlgorithmSHA256, doc.HashAlgorithm)

	h := merkle.DefaultHasher()
	expectedRoot, err := merkle.BuildFromContent(h, [][]byte{
		[]byte("first page"), []byte("second page"), []byte("third page"),
	})
	require.NoError(t, err)
	assert.Equal(t, expectedRoot.Hash, doc.RootHash)

	leaves, err := store.LoadLeafHashes(doc.ID)
	require.NoError(t, err)
	require.Len(t, leaves, 3)
	assert.Equal(t, h.DigestLeaf([]byte("second page")), leaves[1])

	assert.Equal(t, 1.0, testutil.ToFloat64(n.metrics.DocumentsIngested))
	assert.Equal(t, 3.0, testutil.ToFloat64(n.metrics.PagesHashed))
}

func TestIngestDocument_Invalid(t *testing.T) {
	n, store := newTestNode(t, Config{})
	ctx := context.Background()

	tests := []struct {
		name string
		file string
		data []byte
	}{
		{"empty", "empty.txt", nil},
		{"invalid utf-8", "bad.txt", []byte{0xff, 0xfe, 0xfd}},
		{"malformed pdf", "broken.pdf", []byte("%PDF-1.4 garbage")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.IngestDocument(ctx, tt.file, tt.data)
			require.ErrorIs(t, err, ErrInvalidDocument)
		})
	}

	docs, err := store.ListDocuments()
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestIngestDocument_CanceledContext(t *testing.T) {
	n, _ := newTestNode(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := n.IngestDocument(ctx, "notes.txt", []byte(threePageText))
	require.ErrorIs(t, err, context.Canceled)
}

func TestGenerateProof_EveryPage(t *testing.T) {
	for _, alg := range merkle.SupportedHashAlgorithms() {
		t.Run(alg.String(), func(t *testing.T) {
			n, _ := newTestNode(t, Config{HashAlgorithm: alg})
			ctx := context.Background()

			pages := make([]string, 7)
			for i := range pages {
				pages[i] = strings.Repeat("x", i+1)
			}
			doc, err := n.IngestDocument(ctx, "seven.txt", []byte(strings.Join(pages, "\f")))
			require.NoError(t, err)
			require.Equal(t, alg, doc.HashAlgorithm)

			h, err := merkle.NewHasher(alg)
			require.NoError(t, err)

			for i := range pages {
				resp, err := n.GenerateProof(ctx, doc.ID, i)
				require.NoError(t, err)
				assert.Equal(t, doc.ID, resp.DocumentID)
				assert.Equal(t, i, resp.PageIndex)
				assert.Equal(t, doc.RootHash, resp.RootHash)
				assert.Equal(t, h.DigestLeaf([]byte(pages[i])), resp.PageHash)
				assert.Len(t, resp.Proof, merkle.TreeHeight(len(pages)))
				assert.True(t, merkle.VerifyProof(h, resp.RootHash, resp.PageHash, resp.Proof))
			}

			assert.Equal(t, float64(len(pages)), testutil.ToFloat64(n.metrics.ProofsGenerated.WithLabelValues(metrics.OutcomeSuccess)))
		})
	}
}

func TestGenerateProof_Errors(t *testing.T) {
	n, _ := newTestNode(t, Config{})
	ctx := context.Background()

	doc, err := n.IngestDocument(ctx, "notes.txt", []byte(threePageText))
	require.NoError(t, err)

	_, err = n.GenerateProof(ctx, "missing", 0)
	require.ErrorIs(t, err, ErrDocumentNotFound)

	_, err = n.GenerateProof(ctx, doc.ID, -1)
	require.ErrorIs(t, err, ErrPageOutOfRange)

	_, err = n.GenerateProof(ctx, doc.ID, 3)
	require.ErrorIs(t, err, ErrPageOutOfRange)

	assert.Equal(t, 1.0, testutil.ToFloat64(n.metrics.ProofsGenerated.WithLabelValues(metrics.OutcomeNotFound)))
	assert.Equal(t, 2.0, testutil.ToFloat64(n.metrics.ProofsGenerated.WithLabelValues(metrics.OutcomeInvalid)))
}

func TestGenerateProof_RootMismatch(t *testing.T) {
	n, store := newTestNode(t, Config{})
	ctx := context.Background()

	doc, err := n.IngestDocument(ctx, "notes.txt", []byte(threePageText))
	require.NoError(t, err)

	leaves, err := store.LoadLeafHashes(doc.ID)
	require.NoError(t, err)

	tampered := *doc
	tampered.RootHash = merkle.DefaultHasher().DigestLeaf([]byte("not the root"))
	require.NoError(t, store.SaveDocument(&tampered, leaves))

	_, err = n.GenerateProof(ctx, doc.ID, 0)
	require.ErrorIs(t, err, ErrRootMismatch)
	assert.Equal(t, 1.0, testutil.ToFloat64(n.metrics.ProofsGenerated.WithLabelValues(metrics.OutcomeError)))
}

func TestGenerateProof_DuplicatePages(t *testing.T) {
	n, _ := newTestNode(t, Config{})
	ctx := context.Background()

	doc, err := n.IngestDocument(ctx, "dup.txt", []byte("same\fsame\fother"))
	require.NoError(t, err)

	first, err := n.GenerateProof(ctx, doc.ID, 0)
	require.NoError(t, err)
	second, err := n.GenerateProof(ctx, doc.ID, 1)
	require.NoError(t, err)

	// Identical pages share a leaf digest, so both requests prove the leftmost leaf.
	assert.Equal(t, first.Proof, second.Proof)
	assert.True(t, merkle.Verify(second.RootHash, second.PageHash, second.Proof))
}

func TestVerifyProof(t *testing.T) {
	n, _ := newTestNode(t, Config{})
	ctx := context.Background()

	doc, err := n.IngestDocument(ctx, "notes.txt", []byte(threePageText))
	require.NoError(t, err)
	resp, err := n.GenerateProof(ctx, doc.ID, 2)
	require.NoError(t, err)

	valid := &types.VerifyRequest{
		RootHash: resp.RootHash.String(),
		PageHash: resp.PageHash.String(),
		Proof:    resp.Proof,
	}

	tests := []struct {
		name   string
		modify func(req *types.VerifyRequest)
		want   bool
	}{
		{"valid", func(req *types.VerifyRequest) {}, true},
		{"explicit algorithm", func(req *types.VerifyRequest) { req.HashAlgorithm = merkle.HashAlgorithmSHA256 }, true},
		{"0x prefixed upper case root", func(req *types.VerifyRequest) {
			req.RootHash = "0x" + strings.ToUpper(req.RootHash)
		}, true},
		{"wrong algorithm", func(req *types.VerifyRequest) { req.HashAlgorithm = merkle.HashAlgorithmKeccak256 }, false},
		{"unknown algorithm", func(req *types.VerifyRequest) { req.HashAlgorithm = "md5" }, false},
		{"wrong page", func(req *types.VerifyRequest) {
			req.PageHash = merkle.DefaultHasher().DigestLeaf([]byte("first page")).String()
		}, false},
		{"short root", func(req *types.VerifyRequest) { req.RootHash = req.RootHash[:10] }, false},
		{"empty proof", func(req *types.VerifyRequest) { req.Proof = nil }, false},
		{"bad side", func(req *types.VerifyRequest) {
			req.Proof = append(merkle.Proof{}, req.Proof...)
			req.Proof[0].Side = "X"
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := *valid
			tt.modify(&req)
			assert.Equal(t, tt.want, n.VerifyProof(&req))
		})
	}

	assert.False(t, n.VerifyProof(nil))
}

func TestDocumentLifecycle(t *testing.T) {
	n, _ := newTestNode(t, Config{})
	ctx := context.Background()

	a, err := n.IngestDocument(ctx, "a.txt", []byte("alpha"))
	require.NoError(t, err)
	b, err := n.IngestDocument(ctx, "b.txt", []byte("beta\fgamma"))
	require.NoError(t, err)

	docs, err := n.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	got, err := n.GetDocument(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.RootHash, got.RootHash)

	require.NoError(t, n.DeleteDocument(ctx, a.ID))
	require.NoError(t, n.DeleteDocument(ctx, a.ID))

	_, err = n.GetDocument(ctx, a.ID)
	require.ErrorIs(t, err, ErrDocumentNotFound)

	docs, err = n.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, b.ID, docs[0].ID)
}

func TestSinglePageDocument(t *testing.T) {
	n, _ := newTestNode(t, Config{})
	ctx := context.Background()

	doc, err := n.IngestDocument(ctx, "one.txt", []byte("only page"))
	require.NoError(t, err)
	assert.Equal(t, merkle.DefaultHasher().DigestLeaf([]byte("only page")), doc.RootHash)

	resp, err := n.GenerateProof(ctx, doc.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, resp.Proof)
	assert.Equal(t, doc.RootHash, resp.PageHash)
	assert.True(t, n.VerifyProof(&types.VerifyRequest{
		RootHash: resp.RootHash.String(),
		PageHash: resp.PageHash.String(),
		Proof:    resp.Proof,
	}))
}
