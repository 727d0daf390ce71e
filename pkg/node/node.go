package node

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/Layr-Labs/pageproof-go/pkg/document"
	"github.com/Layr-Labs/pageproof-go/pkg/logger"
	"github.com/Layr-Labs/pageproof-go/pkg/merkle"
	"github.com/Layr-Labs/pageproof-go/pkg/metrics"
	"github.com/Layr-Labs/pageproof-go/pkg/persistence"
	"github.com/Layr-Labs/pageproof-go/pkg/types"
)

var (
	// ErrDocumentNotFound is returned when no document has the requested id.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrPageOutOfRange is returned for page indices outside [0, n_pages).
	ErrPageOutOfRange = errors.New("page index out of range")
	// ErrInvalidDocument wraps extraction failures caused by the uploaded file.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrRootMismatch is returned when the tree rebuilt from stored leaves
	// does not reproduce the stored root.
	ErrRootMismatch = errors.New("rebuilt merkle root does not match stored root")
)

// Node ingests documents, anchors each one by a merkle root over its page
// digests, and serves inclusion proofs for individual pages.
//
// Only the root and the ordered leaf digests are persisted. Trees are rebuilt
// from the stored leaves on every proof request and discarded afterwards.
type Node struct {
	Port int

	// Dependencies
	hasher  merkle.Hasher
	store   persistence.IDocumentPersistence
	server  *Server
	metrics *metrics.Metrics
	logger  *zap.Logger

	registry *prometheus.Registry
	now      func() time.Time
	newID    func() string
}

// Config holds node configuration
type Config struct {
	Port int

	// HashAlgorithm is used for newly ingested documents.
	HashAlgorithm merkle.HashAlgorithm

	MaxUploadBytes int64
	UploadRate     float64 // uploads per second, 0 disables limiting
	UploadBurst    int

	Logger   *zap.Logger          // Optional logger, will create default if nil
	Registry *prometheus.Registry // Optional registry, will create one if nil
}

// NewNode creates a new node instance with dependency injection
func NewNode(cfg Config, store persistence.IDocumentPersistence) (*Node, error) {
	if store == nil {
		return nil, fmt.Errorf("persistence cannot be nil")
	}

	nodeLogger := cfg.Logger
	if nodeLogger == nil {
		nodeLogger, _ = logger.NewLogger(&logger.LoggerConfig{Debug: false})
	}

	hasher, err := merkle.NewHasher(cfg.HashAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("invalid hash algorithm: %w", err)
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	n := &Node{
		Port:     cfg.Port,
		hasher:   hasher,
		store:    store,
		metrics:  metrics.New(registry),
		logger:   nodeLogger,
		registry: registry,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}

	n.server = NewServer(n, ServerConfig{
		Port:           cfg.Port,
		MaxUploadBytes: cfg.MaxUploadBytes,
		UploadRate:     cfg.UploadRate,
		UploadBurst:    cfg.UploadBurst,
	})

	return n, nil
}

// Start checks the persistence layer and starts the HTTP server
func (n *Node) Start() error {
	if err := n.store.HealthCheck(); err != nil {
		return fmt.Errorf("persistence health check failed: %w", err)
	}
	return n.server.Start()
}

// Stop gracefully shuts down the HTTP server
func (n *Node) Stop(ctx context.Context) error {
	return n.server.Stop(ctx)
}

// HashAlgorithm returns the algorithm used for new documents
func (n *Node) HashAlgorithm() merkle.HashAlgorithm {
	return n.hasher.Algorithm()
}

// IngestDocument extracts the pages of an uploaded file, hashes each page,
// builds the merkle tree and persists the root with the ordered leaf hashes.
func (n *Node) IngestDocument(ctx context.Context, filename string, data []byte) (*types.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pages, err := document.ExtractPages(filename, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	leaves := document.HashPages(n.hasher, pages)
	n.metrics.PagesHashed.Add(float64(len(leaves)))

	root, err := n.buildTree(n.hasher, leaves)
	if err != nil {
		return nil, fmt.Errorf("failed to build merkle tree: %w", err)
	}

	doc := &types.Document{
		ID:            n.newID(),
		Filename:      filename,
		RootHash:      root.Hash,
		PageCount:     len(leaves),
		HashAlgorithm: n.hasher.Algorithm(),
		CreatedAt:     n.now(),
	}

	if err := n.store.SaveDocument(doc, leaves); err != nil {
		return nil, fmt.Errorf("failed to persist document: %w", err)
	}
	n.metrics.DocumentsIngested.Inc()

	n.logger.Sugar().Infow("Document ingested",
		"document_id", doc.ID,
		"filename", filename,
		"pages", doc.PageCount,
		"root_hash", doc.RootHash,
		"hash_algorithm", doc.HashAlgorithm,
	)

	return doc, nil
}

// GenerateProof rebuilds a document's tree from its stored leaf hashes and
// returns the inclusion proof of one page.
func (n *Node) GenerateProof(ctx context.Context, id string, pageIndex int) (*types.ProofResponse, error) {
	resp, err := n.generateProof(ctx, id, pageIndex)
	n.metrics.ProofsGenerated.WithLabelValues(proofOutcome(err)).Inc()
	return resp, err
}

func (n *Node) generateProof(ctx context.Context, id string, pageIndex int) (*types.ProofResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := n.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	if pageIndex < 0 || pageIndex >= doc.PageCount {
		return nil, fmt.Errorf("%w: page %d requested, document has pages 0..%d", ErrPageOutOfRange, pageIndex, doc.PageCount-1)
	}

	leaves, err := n.store.LoadLeafHashes(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaf hashes: %w", err)
	}
	if len(leaves) != doc.PageCount {
		return nil, fmt.Errorf("document %s has %d stored leaf hashes, expected %d", id, len(leaves), doc.PageCount)
	}

	h, err := merkle.NewHasher(doc.Algorithm())
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", id, err)
	}

	root, err := n.buildTree(h, leaves)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild merkle tree: %w", err)
	}
	if root.Hash != doc.RootHash {
		n.logger.Sugar().Errorw("Rebuilt root differs from stored root",
			"document_id", id, "stored_root", doc.RootHash, "rebuilt_root", root.Hash)
		return nil, fmt.Errorf("%w: document %s", ErrRootMismatch, id)
	}

	pageHash := leaves[pageIndex]
	proof, err := merkle.GenerateProof(root, pageHash)
	if err != nil {
		return nil, fmt.Errorf("failed to generate proof for page %d: %w", pageIndex, err)
	}
	if !merkle.VerifyProof(h, doc.RootHash, pageHash, proof) {
		return nil, fmt.Errorf("%w: proof for page %d of %s does not verify", ErrRootMismatch, pageIndex, id)
	}

	n.logger.Sugar().Debugw("Proof generated",
		"document_id", id, "page_index", pageIndex, "proof_length", len(proof))

	return &types.ProofResponse{
		DocumentID:    id,
		PageHash:      pageHash,
		RootHash:      doc.RootHash,
		Proof:         proof,
		PageIndex:     pageIndex,
		HashAlgorithm: h.Algorithm(),
	}, nil
}

// VerifyProof checks a proof against a claimed root using only the request
// values. It never touches persistence and never fails: any malformed input
// is reported as an invalid proof.
func (n *Node) VerifyProof(req *types.VerifyRequest) bool {
	valid := verifyRequest(req)
	n.metrics.Verifications.WithLabelValues(strconv.FormatBool(valid)).Inc()
	return valid
}

func verifyRequest(req *types.VerifyRequest) bool {
	if req == nil {
		return false
	}
	h, err := merkle.NewHasher(req.HashAlgorithm)
	if err != nil {
		return false
	}
	return merkle.VerifyProof(h,
		merkle.NormalizeDigest(req.RootHash),
		merkle.NormalizeDigest(req.PageHash),
		req.Proof,
	)
}

// GetDocument returns a document's metadata
func (n *Node) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := n.store.LoadDocument(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	return doc, nil
}

// ListDocuments returns the metadata of every stored document
func (n *Node) ListDocuments(ctx context.Context) ([]*types.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return n.store.ListDocuments()
}

// DeleteDocument removes a document and its leaf hashes
func (n *Node) DeleteDocument(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.store.DeleteDocument(id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	n.logger.Sugar().Infow("Document deleted", "document_id", id)
	return nil
}

// HealthCheck reports whether the persistence layer is reachable
func (n *Node) HealthCheck() error {
	return n.store.HealthCheck()
}

func (n *Node) buildTree(h merkle.Hasher, leaves []merkle.Digest) (*merkle.Node, error) {
	start := time.Now()
	root, err := merkle.Build(h, leaves)
	n.metrics.TreeBuildSeconds.Observe(time.Since(start).Seconds())
	return root, err
}

func proofOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrDocumentNotFound), errors.Is(err, merkle.ErrTargetNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, ErrPageOutOfRange):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}
